package model

// DashboardDescriptor is the serialized dashboard. Cards are only present on
// an assembled dashboard response; the plain dashboard serialization never
// carries them.
type DashboardDescriptor struct {
	Name              string           `json:"name"`
	URIKey            string           `json:"uriKey"`
	Description       *string          `json:"description"`
	Icon              *string          `json:"icon"`
	Category          *string          `json:"category"`
	ShowRefreshButton bool             `json:"showRefreshButton"`
	Cards             []CardDescriptor `json:"cards,omitempty"`
}

// CardDescriptor is the serialized form of a card or metric.
type CardDescriptor struct {
	Name      string         `json:"name"`
	Component string         `json:"component"`
	URIKey    string         `json:"uriKey"`
	Meta      map[string]any `json:"meta"`
}

// Navigation node kinds.
const (
	NodeSection = "section"
	NodeItem    = "item"
)

// NavigationTree is the top-level navigation structure returned to the frontend.
type NavigationTree struct {
	Items []NavigationNode `json:"items"`
}

// NavigationNode is a single node in the navigation tree.
type NavigationNode struct {
	ID          string           `json:"id"`
	Kind        string           `json:"kind"`
	Label       string           `json:"label"`
	Path        string           `json:"path,omitempty"`
	Icon        string           `json:"icon,omitempty"`
	Badge       any              `json:"badge,omitempty"`
	Meta        map[string]any   `json:"meta,omitempty"`
	Collapsible bool             `json:"collapsible,omitempty"`
	Children    []NavigationNode `json:"children,omitempty"`
}

// FilterDescriptor describes a filter control for the frontend.
type FilterDescriptor struct {
	Key       string         `json:"key"`
	Name      string         `json:"name"`
	Component string         `json:"component"`
	Default   any            `json:"default,omitempty"`
	Options   map[string]any `json:"options"`
}

// OptionDescriptor is a selectable option of a filter.
type OptionDescriptor struct {
	Label string `json:"label"`
	Value any    `json:"value"`
}

// ColumnDescriptor describes a resource listing column.
type ColumnDescriptor struct {
	Field    string `json:"field"`
	Label    string `json:"label"`
	Sortable bool   `json:"sortable"`
}

// ResourceIndex is a filtered, paginated resource listing.
type ResourceIndex struct {
	Resource string             `json:"resource"`
	Label    string             `json:"label"`
	Columns  []ColumnDescriptor `json:"columns"`
	Filters  []FilterDescriptor `json:"filters"`
	Rows     []map[string]any   `json:"rows"`
	Total    int64              `json:"total"`
	Page     int                `json:"page"`
	PerPage  int                `json:"perPage"`
}
