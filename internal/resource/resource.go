// Package resource lists rows of a backing table through the filter layer.
package resource

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/pitabwire/vitrine/internal/auth"
	"github.com/pitabwire/vitrine/internal/cache"
	"github.com/pitabwire/vitrine/internal/filter"
	"github.com/pitabwire/vitrine/internal/menu"
	"github.com/pitabwire/vitrine/internal/naming"
	"github.com/pitabwire/vitrine/internal/observability"
	"github.com/pitabwire/vitrine/model"
)

// Pagination limits.
const (
	DefaultPerPage = 25
	MaxPerPage     = 100
)

// PathPrefix is prepended to a resource's uriKey to form its link.
const PathPrefix = "/resources/"

// FilterParam is the bracketed parameter prefix carrying filter values,
// e.g. filters[status]=open.
const FilterParam = "filters"

// Column is a listed field.
type Column struct {
	Field    string `yaml:"field"`
	Label    string `yaml:"label"`
	Sortable bool   `yaml:"sortable"`
}

// Order is a default sort.
type Order struct {
	Field string
	Desc  bool
}

// Resource is a filterable listing of a table.
type Resource struct {
	*auth.Authorizer

	name    string
	uriKey  string
	table   string
	icon    string
	columns []Column
	order   []Order
	filters []filter.Filter
	perPage int
}

// Option configures a Resource.
type Option func(*Resource)

// WithURIKey overrides the slug derived from the name.
func WithURIKey(key string) Option {
	return func(r *Resource) { r.uriKey = key }
}

// WithIcon sets the menu icon.
func WithIcon(icon string) Option {
	return func(r *Resource) { r.icon = icon }
}

// WithColumns sets the listed columns. Labels default to the humanized
// field name.
func WithColumns(cols ...Column) Option {
	return func(r *Resource) { r.columns = append(r.columns, cols...) }
}

// OrderBy appends a default sort.
func OrderBy(field string, desc bool) Option {
	return func(r *Resource) { r.order = append(r.order, Order{Field: field, Desc: desc}) }
}

// WithFilters appends filters, applied in the given order.
func WithFilters(fs ...filter.Filter) Option {
	return func(r *Resource) { r.filters = append(r.filters, fs...) }
}

// PerPage sets the default page size.
func PerPage(n int) Option {
	return func(r *Resource) { r.perPage = n }
}

// New creates a resource named name over table.
func New(name, table string, opts ...Option) (*Resource, error) {
	r := &Resource{
		Authorizer: auth.New(true),
		name:       name,
		uriKey:     naming.Slug(name),
		table:      table,
		perPage:    DefaultPerPage,
	}
	for _, opt := range opts {
		opt(r)
	}

	if r.table == "" {
		return nil, model.NewConfigurationError("resource %q has no table", name)
	}
	if r.uriKey == "" {
		return nil, model.NewConfigurationError("resource %q has an empty uriKey", name)
	}
	if len(r.columns) == 0 {
		return nil, model.NewConfigurationError("resource %q lists no columns", name)
	}
	if r.perPage <= 0 || r.perPage > MaxPerPage {
		return nil, model.NewConfigurationError("resource %q: perPage must be between 1 and %d", name, MaxPerPage)
	}
	seen := make(map[string]bool, len(r.filters))
	for _, f := range r.filters {
		if seen[f.Key()] {
			return nil, model.NewConfigurationError("resource %q: filter key %q declared twice", name, f.Key())
		}
		seen[f.Key()] = true
	}
	for i := range r.columns {
		if r.columns[i].Label == "" {
			r.columns[i].Label = naming.Humanize(r.columns[i].Field)
		}
	}
	r.Bind("resource:" + r.uriKey)
	return r, nil
}

// Name returns the display name.
func (r *Resource) Name() string { return r.name }

// URIKey returns the URL-safe identity.
func (r *Resource) URIKey() string { return r.uriKey }

// Table returns the backing table.
func (r *Resource) Table() string { return r.table }

// Filters returns the declared filters.
func (r *Resource) Filters() []filter.Filter { return r.filters }

// CanSee registers the visibility predicate.
func (r *Resource) CanSee(p auth.Predicate) *Resource {
	r.Authorizer.CanSee(p)
	return r
}

// CanSeeWhen restricts visibility to users the gate allows.
func (r *Resource) CanSeeWhen(gate auth.Gate, ability string, subject any) *Resource {
	r.Authorizer.CanSeeWhen(gate, ability, subject)
	return r
}

// CacheAuth caches visibility results in store for ttl.
func (r *Resource) CacheAuth(store cache.Store, ttl time.Duration) *Resource {
	r.Authorizer.CacheAuth(store, ttl)
	return r
}

// MenuItem links to the resource listing and is visible exactly when the
// resource is.
func (r *Resource) MenuItem() *menu.Item {
	item := menu.NewItem(r.name, PathPrefix+r.uriKey).
		WithID("resource-" + r.uriKey).
		WithMeta(map[string]any{"uriKey": r.uriKey}).
		CanSee(r.AuthorizedToSee)
	if r.icon != "" {
		item.WithIcon(r.icon)
	}
	return item
}

// Query returns db scoped to the table with req's filters and sort applied.
// Filters run in declaration order; a filter without a submitted value
// applies its default.
func (r *Resource) Query(db *gorm.DB, req *model.Request) *gorm.DB {
	query := db.Table(r.table)
	values := req.Prefixed(FilterParam)
	for _, f := range r.filters {
		var v any = f.Default()
		if submitted, ok := values[f.Key()]; ok {
			v = submitted
		}
		query = f.Apply(query, v)
	}
	return query
}

// Index lists one page of rows for req.
func (r *Resource) Index(ctx context.Context, db *gorm.DB, req *model.Request) (_ model.ResourceIndex, err error) {
	ctx, span := observability.StartSpan(ctx, "resource.index",
		observability.AttrResourceURIKey.String(r.uriKey))
	defer func() { observability.EndSpanWithError(span, err) }()

	page, perPage := r.Page(req)
	query := r.Query(db.WithContext(ctx), req)

	var total int64
	if err := query.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return model.ResourceIndex{}, fmt.Errorf("count %s: %w", r.uriKey, err)
	}

	rows := make([]map[string]any, 0, perPage)
	list := query.Session(&gorm.Session{}).Select(r.fields())
	if ob := r.orderBy(req); len(ob.Columns) > 0 {
		list = list.Order(ob)
	}
	if err := list.Limit(perPage).Offset((page - 1) * perPage).Find(&rows).Error; err != nil {
		return model.ResourceIndex{}, fmt.Errorf("list %s: %w", r.uriKey, err)
	}

	filters := make([]model.FilterDescriptor, 0, len(r.filters))
	for _, f := range r.filters {
		d, err := filter.Describe(ctx, req, f)
		if err != nil {
			return model.ResourceIndex{}, fmt.Errorf("describe filter %s: %w", f.Key(), err)
		}
		filters = append(filters, d)
	}

	return model.ResourceIndex{
		Resource: r.uriKey,
		Label:    r.name,
		Columns:  r.describeColumns(),
		Filters:  filters,
		Rows:     rows,
		Total:    total,
		Page:     page,
		PerPage:  perPage,
	}, nil
}

// Page returns the requested page and page size, clamped to valid bounds.
func (r *Resource) Page(req *model.Request) (page, perPage int) {
	page = max(req.IntParam("page", 1), 1)
	perPage = req.IntParam("perPage", r.perPage)
	if perPage < 1 {
		perPage = r.perPage
	}
	return page, min(perPage, MaxPerPage)
}

func (r *Resource) fields() []string {
	out := make([]string, len(r.columns))
	for i, c := range r.columns {
		out[i] = c.Field
	}
	return out
}

// orderBy honours sort/direction params for sortable columns, falling back
// to the default order.
func (r *Resource) orderBy(req *model.Request) clause.OrderBy {
	var ob clause.OrderBy
	if field := req.Param("sort"); field != "" {
		for _, c := range r.columns {
			if c.Field == field && c.Sortable {
				ob.Columns = append(ob.Columns, clause.OrderByColumn{
					Column: clause.Column{Name: field},
					Desc:   strings.EqualFold(req.Param("direction"), "desc"),
				})
				return ob
			}
		}
	}
	for _, o := range r.order {
		ob.Columns = append(ob.Columns, clause.OrderByColumn{Column: clause.Column{Name: o.Field}, Desc: o.Desc})
	}
	return ob
}

func (r *Resource) describeColumns() []model.ColumnDescriptor {
	out := make([]model.ColumnDescriptor, len(r.columns))
	for i, c := range r.columns {
		out[i] = model.ColumnDescriptor{Field: c.Field, Label: c.Label, Sortable: c.Sortable}
	}
	return out
}
