package dashboard

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/pitabwire/vitrine/internal/card"
	"github.com/pitabwire/vitrine/internal/metadata"
	"github.com/pitabwire/vitrine/internal/metric"
	"github.com/pitabwire/vitrine/internal/observability"
	"github.com/pitabwire/vitrine/model"
)

// Assembler renders registered dashboards for a request: visibility is
// applied, cards are loaded and metrics resolved, and metadata overrides
// and user preferences are layered on top.
type Assembler struct {
	registry *Registry
	metrics  *metric.Resolver
	meta     *metadata.Manager
	recorder FailureRecorder
	logger   *zap.Logger
}

// NewAssembler creates an Assembler. meta may be nil.
func NewAssembler(registry *Registry, metrics *metric.Resolver, meta *metadata.Manager, logger *zap.Logger) *Assembler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Assembler{registry: registry, metrics: metrics, meta: meta, logger: logger}
}

// WithRecorder counts skipped cards.
func (a *Assembler) WithRecorder(r FailureRecorder) *Assembler {
	a.recorder = r
	return a
}

// List returns the dashboards req may see, in registration order, without
// their cards.
func (a *Assembler) List(ctx context.Context, req *model.Request) (_ []model.DashboardDescriptor, err error) {
	ctx, span := observability.StartSpan(ctx, "dashboard.list",
		observability.AttrSubjectID.String(req.UserKey()))
	defer func() { observability.EndSpanWithError(span, err) }()

	var out []model.DashboardDescriptor
	for _, d := range a.registry.All() {
		ok, err := d.AuthorizedToSee(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("authorize dashboard %q: %w", d.URIKey(), err)
		}
		if !ok {
			continue
		}
		out = append(out, a.describe(ctx, req, d))
	}
	if out == nil {
		out = []model.DashboardDescriptor{}
	}
	return out, nil
}

// Dashboard assembles a single dashboard with its visible cards. Cards that
// fail to load are logged and left out.
func (a *Assembler) Dashboard(ctx context.Context, req *model.Request, uriKey string) (_ model.DashboardDescriptor, err error) {
	ctx, span := observability.StartSpan(ctx, "dashboard.assemble",
		observability.AttrDashboardURIKey.String(uriKey))
	defer func() { observability.EndSpanWithError(span, err) }()

	d, err := a.visible(ctx, req, uriKey)
	if err != nil {
		return model.DashboardDescriptor{}, err
	}
	cards, err := a.visibleCards(ctx, req, d)
	if err != nil {
		return model.DashboardDescriptor{}, err
	}

	desc := a.describe(ctx, req, d)
	desc.Cards = make([]model.CardDescriptor, 0, len(cards))
	for _, c := range cards {
		cd, err := a.card(ctx, req, c)
		if err != nil {
			a.log(ctx).Error("dashboard: card failed to load",
				zap.String("dashboard", d.URIKey()),
				zap.String("card", c.URIKey()),
				zap.Error(err),
			)
			if a.recorder != nil {
				a.recorder.RecordCardFailure(d.URIKey(), StageLoad)
			}
			continue
		}
		desc.Cards = append(desc.Cards, cd)
	}
	span.SetAttributes(observability.AttrCardCount.Int(len(desc.Cards)))
	return desc, nil
}

// Card assembles one card of a dashboard. Unlike Dashboard, a load failure
// is returned to the caller.
func (a *Assembler) Card(ctx context.Context, req *model.Request, uriKey, cardKey string) (_ model.CardDescriptor, err error) {
	ctx, span := observability.StartSpan(ctx, "dashboard.card",
		observability.AttrDashboardURIKey.String(uriKey),
		observability.AttrCardURIKey.String(cardKey))
	defer func() { observability.EndSpanWithError(span, err) }()

	d, err := a.visible(ctx, req, uriKey)
	if err != nil {
		return model.CardDescriptor{}, err
	}
	cards, err := a.visibleCards(ctx, req, d)
	if err != nil {
		return model.CardDescriptor{}, err
	}
	for _, c := range cards {
		if c.URIKey() == cardKey {
			return a.card(ctx, req, c)
		}
	}
	return model.CardDescriptor{}, model.NewNotFoundError(fmt.Sprintf("card %q not found on dashboard %q", cardKey, uriKey))
}

// visible returns the dashboard under uriKey if req may see it. Hidden
// dashboards are reported as missing.
func (a *Assembler) visible(ctx context.Context, req *model.Request, uriKey string) (Dashboard, error) {
	d, ok := a.registry.Get(uriKey)
	if !ok {
		return nil, model.NewNotFoundError(fmt.Sprintf("dashboard %q not found", uriKey))
	}
	allowed, err := d.AuthorizedToSee(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("authorize dashboard %q: %w", uriKey, err)
	}
	if !allowed {
		return nil, model.NewNotFoundError(fmt.Sprintf("dashboard %q not found", uriKey))
	}
	return d, nil
}

// visibleCards returns d's cards that req may see, keeping their order.
func (a *Assembler) visibleCards(ctx context.Context, req *model.Request, d Dashboard) ([]card.Card, error) {
	all, err := d.Cards(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("build cards for dashboard %q: %w", d.URIKey(), err)
	}
	out := make([]card.Card, 0, len(all))
	for _, c := range all {
		ok, err := c.AuthorizedToSee(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("authorize card %q: %w", c.URIKey(), err)
		}
		if ok {
			out = append(out, c)
		}
	}
	return out, nil
}

func (a *Assembler) card(ctx context.Context, req *model.Request, c card.Card) (model.CardDescriptor, error) {
	var (
		desc model.CardDescriptor
		err  error
	)
	if m, ok := c.(metric.Metric); ok && a.metrics != nil {
		desc, err = a.metrics.Describe(ctx, req, m)
	} else {
		desc, err = card.Describe(ctx, req, c)
	}
	if err != nil {
		return model.CardDescriptor{}, err
	}
	if a.meta != nil {
		meta, err := a.meta.Effective(ctx, metadata.KindCard, desc.URIKey, req.UserKey(), desc.Meta)
		if err != nil {
			a.log(ctx).Warn("dashboard: card preferences unavailable",
				zap.String("card", desc.URIKey), zap.Error(err))
		}
		desc.Meta = meta
	}
	return desc, nil
}

// describe serializes d with metadata overrides and preferences applied.
// Only the descriptor's own keys can be overridden.
func (a *Assembler) describe(ctx context.Context, req *model.Request, d Dashboard) model.DashboardDescriptor {
	desc := Describe(d)
	if a.meta == nil {
		return desc
	}
	base := map[string]any{
		"name":              desc.Name,
		"uriKey":            desc.URIKey,
		"description":       desc.Description,
		"icon":              desc.Icon,
		"category":          desc.Category,
		"showRefreshButton": desc.ShowRefreshButton,
	}
	meta, err := a.meta.Effective(ctx, metadata.KindDashboard, desc.URIKey, req.UserKey(), base)
	if err != nil {
		a.log(ctx).Warn("dashboard: preferences unavailable",
			zap.String("dashboard", desc.URIKey), zap.Error(err))
	}
	if s, ok := meta["name"].(string); ok && s != "" {
		desc.Name = s
	}
	desc.Description = optionalString(meta["description"], desc.Description)
	desc.Icon = optionalString(meta["icon"], desc.Icon)
	desc.Category = optionalString(meta["category"], desc.Category)
	if b, ok := meta["showRefreshButton"].(bool); ok {
		desc.ShowRefreshButton = b
	}
	return desc
}

func optionalString(v any, def *string) *string {
	switch s := v.(type) {
	case string:
		return &s
	case *string:
		return s
	case nil:
		return nil
	}
	return def
}

func (a *Assembler) log(ctx context.Context) *zap.Logger {
	return observability.RequestLogger(ctx, a.logger)
}
