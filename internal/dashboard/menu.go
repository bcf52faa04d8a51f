package dashboard

import (
	"github.com/pitabwire/vitrine/internal/menu"
)

// PathPrefix is prepended to a dashboard's uriKey to form its link.
const PathPrefix = "/dashboards/"

// MenuItem links to d. The item carries d's metadata and is visible
// exactly when d is.
func MenuItem(d Dashboard) *menu.Item {
	item := menu.NewItem(d.Name(), PathPrefix+d.URIKey()).
		WithID("dashboard-" + d.URIKey()).
		WithMeta(map[string]any{
			"name":        d.Name(),
			"uriKey":      d.URIKey(),
			"description": d.Description(),
			"icon":        d.Icon(),
			"category":    d.Category(),
		}).
		CanSee(d.AuthorizedToSee)
	if icon := d.Icon(); icon != nil {
		item.WithIcon(*icon)
	}
	return item
}

// MenuSection groups links to dashboards under title.
func MenuSection(title string, dashboards []Dashboard, opts ...menu.SectionOption) (*menu.Section, error) {
	entries := make([]menu.Entry, 0, len(dashboards))
	for _, d := range dashboards {
		entries = append(entries, MenuItem(d))
	}
	return menu.NewSection(title, entries, opts...)
}
