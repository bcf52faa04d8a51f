package definition

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/pitabwire/vitrine/internal/auth"
	"github.com/pitabwire/vitrine/internal/cache"
	"github.com/pitabwire/vitrine/internal/card"
	"github.com/pitabwire/vitrine/internal/dashboard"
	"github.com/pitabwire/vitrine/internal/filter"
	"github.com/pitabwire/vitrine/internal/menu"
	"github.com/pitabwire/vitrine/internal/metadata"
	"github.com/pitabwire/vitrine/internal/metric"
	"github.com/pitabwire/vitrine/internal/resource"
	"github.com/pitabwire/vitrine/model"
)

// Result holds the runtime objects built from definitions.
type Result struct {
	Dashboards []dashboard.Dashboard
	Resources  []*resource.Resource
	Menu       []menu.Entry
}

// Builder turns definitions into metrics, dashboards, resources and menu
// entries. Metrics are registered in the card registry under their key so
// dashboards can reference them next to cards registered in code.
type Builder struct {
	db        *gorm.DB
	cards     *card.Registry
	gate      auth.Gate
	meta      *metadata.Manager
	authCache cache.Store
	authTTL   time.Duration
	badges    cache.Store
	logger    *zap.Logger
	recorder  dashboard.FailureRecorder
}

// BuilderOption configures a Builder.
type BuilderOption func(*Builder)

// WithGate resolves capabilities lists. Without a gate, anything that
// declares capabilities stays hidden.
func WithGate(g auth.Gate) BuilderOption {
	return func(b *Builder) { b.gate = g }
}

// WithMetadata registers dashboard meta as class defaults.
func WithMetadata(m *metadata.Manager) BuilderOption {
	return func(b *Builder) { b.meta = m }
}

// WithAuthCache caches visibility decisions of every built object.
func WithAuthCache(store cache.Store, ttl time.Duration) BuilderOption {
	return func(b *Builder) { b.authCache, b.authTTL = store, ttl }
}

// WithBadgeCache caches counted menu badges.
func WithBadgeCache(store cache.Store) BuilderOption {
	return func(b *Builder) { b.badges = store }
}

// WithLogger sets the logger for card build failures.
func WithLogger(l *zap.Logger) BuilderOption {
	return func(b *Builder) { b.logger = l }
}

// WithFailureRecorder counts card build failures.
func WithFailureRecorder(r dashboard.FailureRecorder) BuilderOption {
	return func(b *Builder) { b.recorder = r }
}

// NewBuilder creates a Builder querying db.
func NewBuilder(db *gorm.DB, cards *card.Registry, opts ...BuilderOption) *Builder {
	b := &Builder{db: db, cards: cards, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build constructs everything defs declare. Definitions should have passed
// validation; unresolvable references are still reported as configuration
// errors.
func (b *Builder) Build(defs []model.DomainDefinition) (*Result, error) {
	for _, def := range defs {
		for _, md := range def.Metrics {
			m, err := b.buildMetric(md)
			if err != nil {
				return nil, err
			}
			if err := b.cards.RegisterCard(m); err != nil {
				return nil, err
			}
		}
	}

	out := &Result{}
	dashboards := make(map[string]dashboard.Dashboard)
	resources := make(map[string]*resource.Resource)

	for _, def := range defs {
		for _, dd := range def.Dashboards {
			d := b.buildDashboard(dd)
			dashboards[d.URIKey()] = d
			out.Dashboards = append(out.Dashboards, d)
		}
		enums := make(filter.Enums, len(def.Enums))
		for name, opts := range def.Enums {
			enums[name] = optionDescriptors(opts)
		}
		for _, rd := range def.Resources {
			r, err := b.buildResource(rd, enums)
			if err != nil {
				return nil, err
			}
			resources[r.URIKey()] = r
			out.Resources = append(out.Resources, r)
		}
	}

	for _, def := range defs {
		for _, sd := range def.Menu {
			s, err := b.buildSection(sd, dashboards, resources)
			if err != nil {
				return nil, err
			}
			out.Menu = append(out.Menu, s)
		}
	}
	return out, nil
}

func (b *Builder) buildMetric(def model.MetricDefinition) (*metric.Base, error) {
	query := func(ctx context.Context) *gorm.DB {
		q := b.db.WithContext(ctx).Table(def.Table)
		if len(def.Where) > 0 {
			q = q.Where(def.Where)
		}
		return q
	}

	var m *metric.Base
	switch def.Kind {
	case model.MetricCount:
		m = metric.NewValue(def.Name, func(ctx context.Context, _ *model.Request, w metric.Window) (metric.Result, error) {
			r, err := metric.Count(ctx, query(ctx), def.DateColumn, w)
			if err != nil {
				return nil, err
			}
			r.Prefix, r.Suffix = def.Prefix, def.Suffix
			return r, nil
		})
	case model.MetricTrend:
		m = metric.NewTrend(def.Name, func(ctx context.Context, _ *model.Request, w metric.Window) (metric.Result, error) {
			return metric.DailyTrend(ctx, query(ctx), def.DateColumn, w)
		})
	case model.MetricTable:
		columns := make([]metric.Column, len(def.Columns))
		for i, c := range def.Columns {
			columns[i] = metric.Column{
				Label: c.Label, Field: c.Field, Sortable: c.Sortable,
				Align: c.Align, Width: c.Width, Formatter: c.Formatter,
			}
		}
		actions := make([]metric.RowAction, 0, len(def.Actions))
		for _, ad := range def.Actions {
			a, err := metric.NewRowAction(ad.Label, ad.URL,
				metric.WithActionIcon(ad.Icon), metric.WithActionColor(ad.Color), metric.When(ad.Condition))
			if err != nil {
				return nil, err
			}
			actions = append(actions, a)
		}
		orderBy := def.OrderBy
		if orderBy == "" {
			orderBy = def.DateColumn
		}
		m = metric.NewTable(def.Name, func(ctx context.Context, _ *model.Request, w metric.Window) (metric.Result, error) {
			q := query(ctx)
			if def.DateColumn == "" {
				w = metric.Window{Token: metric.RangeAll, All: true}
			}
			rows, err := metric.Latest(ctx, q, def.DateColumn, orderBy, def.Limit, w)
			if err != nil {
				return nil, err
			}
			return metric.Table(columns, rows, actions...), nil
		})
	default:
		return nil, model.NewConfigurationError("metric %q: unknown kind %q", def.Name, def.Kind)
	}

	m.WithURIKey(MetricKey(def))
	if len(def.Meta) > 0 {
		m.WithMeta(def.Meta)
	}
	if len(def.Ranges) > 0 {
		ranges := make([]metric.Range, len(def.Ranges))
		for i, r := range def.Ranges {
			ranges[i] = metric.Range{Token: r.Token, Label: r.Label}
		}
		m.WithRanges(ranges...)
	}
	if def.CacheMinutes > 0 {
		m.CacheForMinutes(def.CacheMinutes)
	}
	if def.PerUser {
		m.CachePerUser()
	}

	switch {
	case len(def.Capabilities) > 0:
		m.CanSee(b.capabilities(def.Capabilities))
	case def.Resource != "":
		m.ForResource(b.gate, def.Resource)
	}
	if b.authCache != nil {
		m.CacheAuth(b.authCache, b.authTTL)
	}
	return m, nil
}

func (b *Builder) buildDashboard(def model.DashboardDefinition) *dashboard.Base {
	key := DashboardKey(def)
	cards := dashboard.FromKeys(key, b.cards, def.Cards,
		dashboard.WithLogger(b.logger), dashboard.WithFailureRecorder(b.recorder))
	d := dashboard.New(def.Name, cards).WithURIKey(key).WithName(def.Name)

	if def.Description != "" {
		d.WithDescription(def.Description)
	}
	if def.Icon != "" {
		d.WithIcon(def.Icon)
	}
	if def.Category != "" {
		d.WithCategory(def.Category)
	}
	if def.RefreshButton {
		d.ShowRefreshButton()
	}
	if len(def.Capabilities) > 0 {
		d.CanSee(b.capabilities(def.Capabilities))
	}
	if b.authCache != nil {
		d.CacheAuth(b.authCache, b.authTTL)
	}
	if b.meta != nil && len(def.Meta) > 0 {
		b.meta.SetDefaults(metadata.KindDashboard, key, def.Meta)
	}
	return d
}

func (b *Builder) buildResource(def model.ResourceDefinition, enums filter.Enums) (*resource.Resource, error) {
	opts := []resource.Option{resource.WithURIKey(ResourceKey(def))}
	if def.Icon != "" {
		opts = append(opts, resource.WithIcon(def.Icon))
	}
	if def.PerPage > 0 {
		opts = append(opts, resource.PerPage(def.PerPage))
	}
	for _, c := range def.Columns {
		opts = append(opts, resource.WithColumns(resource.Column{Field: c.Field, Label: c.Label, Sortable: c.Sortable}))
	}
	if fields := strings.Fields(def.OrderBy); len(fields) > 0 {
		desc := len(fields) > 1 && strings.EqualFold(fields[1], "desc")
		opts = append(opts, resource.OrderBy(fields[0], desc))
	}
	for _, fd := range def.Filters {
		f, err := b.buildFilter(fd, def.Table, enums)
		if err != nil {
			return nil, fmt.Errorf("resource %q: %w", def.Name, err)
		}
		opts = append(opts, resource.WithFilters(f))
	}

	r, err := resource.New(def.Name, def.Table, opts...)
	if err != nil {
		return nil, err
	}
	if len(def.Capabilities) > 0 {
		r.CanSee(b.capabilities(def.Capabilities))
	}
	if b.authCache != nil {
		r.CacheAuth(b.authCache, b.authTTL)
	}
	return r, nil
}

func (b *Builder) buildFilter(def model.FilterDefinition, table string, enums filter.Enums) (filter.Filter, error) {
	key := FilterKey(def)

	switch def.Type {
	case model.FilterSelect:
		opts := []filter.SelectOption{filter.SelectKey(key)}
		if def.Default != nil {
			opts = append(opts, filter.SelectDefault(def.Default))
		}
		if len(def.Options) > 0 {
			opts = append(opts, filter.Options(optionDescriptors(def.Options)...))
		}
		if def.Enum != "" {
			opts = append(opts, filter.Enum(enums, def.Enum))
		}
		if len(def.Statuses) > 0 {
			opts = append(opts, filter.Statuses(def.Statuses...))
		}
		if def.Distinct {
			opts = append(opts, filter.Distinct(b.db, table))
		}
		if rel := def.Related; rel != nil {
			opts = append(opts, filter.Related(b.db, rel.Table, rel.Value, rel.Label))
		}
		if def.DatePeriods {
			opts = append(opts, filter.DatePeriods())
		}
		return filter.NewSelect(def.Name, def.Column, opts...)

	case model.FilterBoolean:
		f := filter.NewBoolean(def.Name, def.Column).WithKey(key)
		if def.TrueValue != nil && def.FalseValue != nil {
			f.Values(def.TrueValue, def.FalseValue)
		}
		if def.TrueLabel != "" && def.FalseLabel != "" {
			f.Labels(def.TrueLabel, def.FalseLabel)
		}
		if def.Default != nil {
			f.WithDefault(def.Default)
		}
		return f, nil

	case model.FilterText:
		columns := def.Columns
		if def.Column != "" {
			columns = append([]string{def.Column}, columns...)
		}
		f, err := filter.NewText(def.Name, columns...)
		if err != nil {
			return nil, err
		}
		f.WithKey(key)
		if def.Mode != "" {
			f.Mode(def.Mode)
		}
		if def.WithoutWildcards {
			f.WithoutWildcards()
		}
		if def.CaseSensitive {
			f.CaseSensitive()
		}
		if def.Default != nil {
			f.WithDefault(def.Default)
		}
		return f, nil

	case model.FilterDateRange:
		f := filter.NewDateRange(def.Name, def.Column).WithKey(key)
		if def.DateOnly {
			f.DateOnly()
		}
		if def.Default != nil {
			f.WithDefault(def.Default)
		}
		return f, nil

	case model.FilterNumberRange:
		f := filter.NewNumberRange(def.Name, def.Column).WithKey(key)
		switch {
		case def.AutoRange:
			f.AutoRange(b.db, table)
		case def.Min != nil && def.Max != nil:
			f.Bounds(*def.Min, *def.Max)
		}
		if def.Step > 0 {
			f.Step(def.Step)
		}
		if def.Default != nil {
			f.WithDefault(def.Default)
		}
		return f, nil
	}
	return nil, model.NewConfigurationError("filter %q: unknown type %q", def.Name, def.Type)
}

func (b *Builder) buildSection(def model.MenuSectionDefinition, dashboards map[string]dashboard.Dashboard, resources map[string]*resource.Resource) (*menu.Section, error) {
	var entries []menu.Entry
	for _, key := range def.Dashboards {
		d, ok := dashboards[key]
		if !ok {
			return nil, model.NewConfigurationError("menu %q: dashboard %q not found", def.Name, key)
		}
		entries = append(entries, dashboard.MenuItem(d))
	}
	for _, key := range def.Resources {
		r, ok := resources[key]
		if !ok {
			return nil, model.NewConfigurationError("menu %q: resource %q not found", def.Name, key)
		}
		entries = append(entries, r.MenuItem())
	}
	for _, id := range def.Items {
		entries = append(entries, b.buildItem(id))
	}

	var opts []menu.SectionOption
	if def.Path != "" {
		opts = append(opts, menu.WithPath(def.Path))
	}
	if def.Icon != "" {
		opts = append(opts, menu.WithIcon(def.Icon))
	}
	if len(def.Meta) > 0 {
		opts = append(opts, menu.WithMeta(def.Meta))
	}
	if def.Collapsible {
		opts = append(opts, menu.Collapsible())
	}
	s, err := menu.NewSection(def.Name, entries, opts...)
	if err != nil {
		return nil, err
	}
	if len(def.Capabilities) > 0 {
		s.CanSee(b.capabilities(def.Capabilities))
	}
	if b.authCache != nil {
		s.CacheAuth(b.authCache, b.authTTL)
	}
	return s, nil
}

func (b *Builder) buildItem(def model.MenuItemDefinition) *menu.Item {
	item := menu.NewItem(def.Label, def.Path)
	if def.Icon != "" {
		item.WithIcon(def.Icon)
	}
	if len(def.Meta) > 0 {
		item.WithMeta(def.Meta)
	}
	if len(def.Capabilities) > 0 {
		item.CanSee(b.capabilities(def.Capabilities))
	}
	if b.authCache != nil {
		item.CacheAuth(b.authCache, b.authTTL)
	}

	badge := def.Badge
	switch {
	case badge == nil:
	case badge.Table != "":
		item.WithBadgeFunc(func(ctx context.Context, _ *model.Request) (any, error) {
			q := b.db.WithContext(ctx).Table(badge.Table)
			if len(badge.Where) > 0 {
				q = q.Where(badge.Where)
			}
			var n int64
			if err := q.Count(&n).Error; err != nil {
				return nil, fmt.Errorf("badge count %s: %w", badge.Table, err)
			}
			return n, nil
		})
		if b.badges != nil && badge.CacheSeconds > 0 {
			item.CacheBadge(b.badges, time.Duration(badge.CacheSeconds)*time.Second)
		}
	default:
		item.WithBadge(badge.Value)
	}
	return item
}

// capabilities requires every listed capability through the gate. A
// capability "orders:viewAny" asks for ability viewAny on subject orders.
func (b *Builder) capabilities(caps []string) auth.Predicate {
	preds := make([]auth.Predicate, len(caps))
	for i, c := range caps {
		subject, ability := splitCapability(c)
		preds[i] = auth.WhenGate(b.gate, ability, subject)
	}
	return auth.All(preds...)
}

func splitCapability(c string) (subject any, ability string) {
	i := strings.LastIndex(c, ":")
	if i <= 0 {
		return nil, c
	}
	return c[:i], c[i+1:]
}

func optionDescriptors(opts []model.OptionDefinition) []model.OptionDescriptor {
	out := make([]model.OptionDescriptor, len(opts))
	for i, o := range opts {
		out[i] = model.OptionDescriptor{Label: o.Label, Value: o.Value}
	}
	return out
}
