package model

// DomainDefinition is the root structure of a definition file. Each file
// declares one domain's dashboards, metrics, resources, enums and menu.
type DomainDefinition struct {
	Domain     string                        `yaml:"domain"     json:"domain"`
	Version    string                        `yaml:"version"    json:"version"`
	Dashboards []DashboardDefinition         `yaml:"dashboards" json:"dashboards,omitempty"`
	Metrics    []MetricDefinition            `yaml:"metrics"    json:"metrics,omitempty"`
	Resources  []ResourceDefinition          `yaml:"resources"  json:"resources,omitempty"`
	Enums      map[string][]OptionDefinition `yaml:"enums"      json:"enums,omitempty"`
	Menu       []MenuSectionDefinition       `yaml:"menu"       json:"menu,omitempty"`

	// Checksum is computed at load time and not part of the YAML.
	Checksum string `yaml:"-" json:"-"`
	// SourceFile records the originating file path.
	SourceFile string `yaml:"-" json:"-"`
}

// DashboardDefinition declares a dashboard and the card keys it renders.
type DashboardDefinition struct {
	Name          string         `yaml:"name"           json:"name"`
	URIKey        string         `yaml:"uri_key"        json:"uri_key,omitempty"`
	Description   string         `yaml:"description"    json:"description,omitempty"`
	Icon          string         `yaml:"icon"           json:"icon,omitempty"`
	Category      string         `yaml:"category"       json:"category,omitempty"`
	RefreshButton bool           `yaml:"refresh_button" json:"refresh_button,omitempty"`
	Cards         []string       `yaml:"cards"          json:"cards"`
	Capabilities  []string       `yaml:"capabilities"   json:"capabilities,omitempty"`
	Meta          map[string]any `yaml:"meta"           json:"meta,omitempty"`
}

// Metric kinds.
const (
	MetricCount = "count"
	MetricTrend = "trend"
	MetricTable = "table"
)

// MetricDefinition declares a metric computed over a table.
type MetricDefinition struct {
	Key          string                   `yaml:"key"           json:"key"`
	Name         string                   `yaml:"name"          json:"name"`
	Kind         string                   `yaml:"kind"          json:"kind"`
	Table        string                   `yaml:"table"         json:"table"`
	DateColumn   string                   `yaml:"date_column"   json:"date_column,omitempty"`
	Where        map[string]any           `yaml:"where"         json:"where,omitempty"`
	Ranges       []RangeDefinition        `yaml:"ranges"        json:"ranges,omitempty"`
	CacheMinutes int                      `yaml:"cache_minutes" json:"cache_minutes,omitempty"`
	PerUser      bool                     `yaml:"per_user"      json:"per_user,omitempty"`
	Resource     string                   `yaml:"resource"      json:"resource,omitempty"`
	Capabilities []string                 `yaml:"capabilities"  json:"capabilities,omitempty"`
	Prefix       string                   `yaml:"prefix"        json:"prefix,omitempty"`
	Suffix       string                   `yaml:"suffix"        json:"suffix,omitempty"`
	OrderBy      string                   `yaml:"order_by"      json:"order_by,omitempty"`
	Limit        int                      `yaml:"limit"         json:"limit,omitempty"`
	Columns      []MetricColumnDefinition `yaml:"columns"       json:"columns,omitempty"`
	Actions      []RowActionDefinition    `yaml:"actions"       json:"actions,omitempty"`
	Meta         map[string]any           `yaml:"meta"          json:"meta,omitempty"`
}

// RangeDefinition is a selectable metric range.
type RangeDefinition struct {
	Token string `yaml:"token" json:"token"`
	Label string `yaml:"label" json:"label"`
}

// MetricColumnDefinition describes a column of a table metric.
type MetricColumnDefinition struct {
	Field     string `yaml:"field"     json:"field"`
	Label     string `yaml:"label"     json:"label"`
	Sortable  bool   `yaml:"sortable"  json:"sortable,omitempty"`
	Align     string `yaml:"align"     json:"align,omitempty"`
	Width     string `yaml:"width"     json:"width,omitempty"`
	Formatter string `yaml:"formatter" json:"formatter,omitempty"`
}

// RowActionDefinition describes a per-row action of a table metric.
type RowActionDefinition struct {
	Label     string `yaml:"label"     json:"label"`
	Icon      string `yaml:"icon"      json:"icon,omitempty"`
	Color     string `yaml:"color"     json:"color,omitempty"`
	URL       string `yaml:"url"       json:"url"`
	Condition string `yaml:"condition" json:"condition,omitempty"`
}

// ResourceDefinition declares a filterable resource listing.
type ResourceDefinition struct {
	Name         string             `yaml:"name"         json:"name"`
	URIKey       string             `yaml:"uri_key"      json:"uri_key,omitempty"`
	Table        string             `yaml:"table"        json:"table"`
	Icon         string             `yaml:"icon"         json:"icon,omitempty"`
	OrderBy      string             `yaml:"order_by"     json:"order_by,omitempty"`
	PerPage      int                `yaml:"per_page"     json:"per_page,omitempty"`
	Columns      []ColumnDefinition `yaml:"columns"      json:"columns"`
	Filters      []FilterDefinition `yaml:"filters"      json:"filters,omitempty"`
	Capabilities []string           `yaml:"capabilities" json:"capabilities,omitempty"`
}

// ColumnDefinition describes a resource listing column.
type ColumnDefinition struct {
	Field    string `yaml:"field"    json:"field"`
	Label    string `yaml:"label"    json:"label"`
	Sortable bool   `yaml:"sortable" json:"sortable,omitempty"`
}

// Filter types.
const (
	FilterSelect      = "select"
	FilterBoolean     = "boolean"
	FilterText        = "text"
	FilterDateRange   = "date_range"
	FilterNumberRange = "number_range"
)

// FilterDefinition declares a filter over a resource listing.
type FilterDefinition struct {
	Key     string   `yaml:"key"     json:"key,omitempty"`
	Name    string   `yaml:"name"    json:"name"`
	Type    string   `yaml:"type"    json:"type"`
	Column  string   `yaml:"column"  json:"column,omitempty"`
	Columns []string `yaml:"columns" json:"columns,omitempty"`
	Default any      `yaml:"default" json:"default,omitempty"`

	// Select sources.
	Options     []OptionDefinition `yaml:"options"      json:"options,omitempty"`
	Enum        string             `yaml:"enum"         json:"enum,omitempty"`
	Distinct    bool               `yaml:"distinct"     json:"distinct,omitempty"`
	Statuses    []string           `yaml:"statuses"     json:"statuses,omitempty"`
	DatePeriods bool               `yaml:"date_periods" json:"date_periods,omitempty"`
	Related     *RelatedDefinition `yaml:"related"      json:"related,omitempty"`

	// Boolean values.
	TrueValue  any    `yaml:"true_value"  json:"true_value,omitempty"`
	FalseValue any    `yaml:"false_value" json:"false_value,omitempty"`
	TrueLabel  string `yaml:"true_label"  json:"true_label,omitempty"`
	FalseLabel string `yaml:"false_label" json:"false_label,omitempty"`

	// Text search.
	Mode             string `yaml:"mode"              json:"mode,omitempty"`
	WithoutWildcards bool   `yaml:"without_wildcards" json:"without_wildcards,omitempty"`
	CaseSensitive    bool   `yaml:"case_sensitive"    json:"case_sensitive,omitempty"`

	// Ranges.
	DateOnly  bool     `yaml:"date_only"  json:"date_only,omitempty"`
	Min       *float64 `yaml:"min"        json:"min,omitempty"`
	Max       *float64 `yaml:"max"        json:"max,omitempty"`
	Step      float64  `yaml:"step"       json:"step,omitempty"`
	AutoRange bool     `yaml:"auto_range" json:"auto_range,omitempty"`
}

// RelatedDefinition sources select options from rows of another table.
type RelatedDefinition struct {
	Table string `yaml:"table" json:"table"`
	Value string `yaml:"value" json:"value"`
	Label string `yaml:"label" json:"label"`
}

// OptionDefinition is a static option of a select filter or enum.
type OptionDefinition struct {
	Label string `yaml:"label" json:"label"`
	Value any    `yaml:"value" json:"value"`
}

// MenuSectionDefinition declares a navigation section.
type MenuSectionDefinition struct {
	Name         string               `yaml:"name"         json:"name"`
	Path         string               `yaml:"path"         json:"path,omitempty"`
	Icon         string               `yaml:"icon"         json:"icon,omitempty"`
	Collapsible  bool                 `yaml:"collapsible"  json:"collapsible,omitempty"`
	Capabilities []string             `yaml:"capabilities" json:"capabilities,omitempty"`
	Dashboards   []string             `yaml:"dashboards"   json:"dashboards,omitempty"`
	Resources    []string             `yaml:"resources"    json:"resources,omitempty"`
	Items        []MenuItemDefinition `yaml:"items"        json:"items,omitempty"`
	Meta         map[string]any       `yaml:"meta"         json:"meta,omitempty"`
}

// MenuItemDefinition declares an ad-hoc navigation link.
type MenuItemDefinition struct {
	Label        string           `yaml:"label"        json:"label"`
	Path         string           `yaml:"path"         json:"path"`
	Icon         string           `yaml:"icon"         json:"icon,omitempty"`
	Capabilities []string         `yaml:"capabilities" json:"capabilities,omitempty"`
	Badge        *BadgeDefinition `yaml:"badge"        json:"badge,omitempty"`
	Meta         map[string]any   `yaml:"meta"         json:"meta,omitempty"`
}

// BadgeDefinition describes a navigation badge: either a static value or a
// row count over a table.
type BadgeDefinition struct {
	Value        any            `yaml:"value"         json:"value,omitempty"`
	Table        string         `yaml:"table"         json:"table,omitempty"`
	Where        map[string]any `yaml:"where"         json:"where,omitempty"`
	CacheSeconds int            `yaml:"cache_seconds" json:"cache_seconds,omitempty"`
}
