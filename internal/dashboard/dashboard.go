// Package dashboard composes cards into named, authorized dashboards and
// assembles them per request.
package dashboard

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pitabwire/vitrine/internal/auth"
	"github.com/pitabwire/vitrine/internal/cache"
	"github.com/pitabwire/vitrine/internal/card"
	"github.com/pitabwire/vitrine/internal/naming"
	"github.com/pitabwire/vitrine/model"
)

// MainURIKey identifies the default dashboard, which everyone may see.
const MainURIKey = "main"

// Dashboard is a named collection of cards.
type Dashboard interface {
	Name() string
	URIKey() string
	Description() *string
	Icon() *string
	Category() *string
	ShouldShowRefreshButton() bool
	// Cards builds the dashboard's cards for req, in display order.
	Cards(ctx context.Context, req *model.Request) ([]card.Card, error)
	AuthorizedToSee(ctx context.Context, req *model.Request) (bool, error)
}

// CardsFunc builds a dashboard's cards per request.
type CardsFunc func(ctx context.Context, req *model.Request) ([]card.Card, error)

// Static returns a CardsFunc yielding the given cards.
func Static(cards ...card.Card) CardsFunc {
	return func(context.Context, *model.Request) ([]card.Card, error) {
		return append([]card.Card(nil), cards...), nil
	}
}

// Base implements Dashboard and is embedded by concrete dashboards.
type Base struct {
	*auth.Authorizer

	name        string
	uriKey      string
	uriKeySet   bool
	description *string
	icon        *string
	category    *string
	refresh     bool
	cards       CardsFunc
}

// New creates a dashboard named after a Go-style identifier:
// "SalesOverview" becomes "Sales Overview" with uriKey "sales-overview".
func New(class string, cards CardsFunc) *Base {
	d := &Base{
		Authorizer: auth.New(true),
		name:       naming.Humanize(class),
		cards:      cards,
	}
	d.uriKey = naming.Slug(d.name)
	d.Bind("dashboard:" + d.uriKey)
	return d
}

// Name returns the display name.
func (d *Base) Name() string { return d.name }

// URIKey returns the URL-safe identity.
func (d *Base) URIKey() string { return d.uriKey }

// Description returns the tooltip text, or nil.
func (d *Base) Description() *string { return d.description }

// Icon returns the icon, or nil.
func (d *Base) Icon() *string { return d.icon }

// Category returns the grouping category, or nil.
func (d *Base) Category() *string { return d.category }

// ShouldShowRefreshButton reports whether the refresh button is enabled.
func (d *Base) ShouldShowRefreshButton() bool { return d.refresh }

// WithName sets the display name. The uriKey follows the name unless it was
// set explicitly.
func (d *Base) WithName(name string) *Base {
	d.name = name
	if !d.uriKeySet {
		d.uriKey = naming.Slug(name)
		d.Bind("dashboard:" + d.uriKey)
	}
	return d
}

// WithURIKey fixes the uriKey.
func (d *Base) WithURIKey(key string) *Base {
	d.uriKey, d.uriKeySet = key, true
	d.Bind("dashboard:" + key)
	return d
}

// WithDescription sets the tooltip text.
func (d *Base) WithDescription(s string) *Base {
	d.description = &s
	return d
}

// WithIcon sets the icon.
func (d *Base) WithIcon(s string) *Base {
	d.icon = &s
	return d
}

// WithCategory sets the grouping category.
func (d *Base) WithCategory(s string) *Base {
	d.category = &s
	return d
}

// ShowRefreshButton enables the refresh button.
func (d *Base) ShowRefreshButton() *Base {
	d.refresh = true
	return d
}

// CanSee registers the visibility predicate.
func (d *Base) CanSee(p auth.Predicate) *Base {
	d.Authorizer.CanSee(p)
	return d
}

// CanSeeWhen restricts visibility to users the gate allows.
func (d *Base) CanSeeWhen(gate auth.Gate, ability string, subject any) *Base {
	d.Authorizer.CanSeeWhen(gate, ability, subject)
	return d
}

// CanSeeWhenPolicy restricts visibility to users the policy method allows.
func (d *Base) CanSeeWhenPolicy(policies *auth.Policies, policy, method string, args ...any) *Base {
	d.Authorizer.CanSeeWhenPolicy(policies, policy, method, args...)
	return d
}

// CacheAuth caches visibility results in store for ttl.
func (d *Base) CacheAuth(store cache.Store, ttl time.Duration) *Base {
	d.Authorizer.CacheAuth(store, ttl)
	return d
}

// AuthorizedToSee reports whether req may see the dashboard. The main
// dashboard is always visible.
func (d *Base) AuthorizedToSee(ctx context.Context, req *model.Request) (bool, error) {
	if d.uriKey == MainURIKey {
		return true, nil
	}
	return d.Authorizer.AuthorizedToSee(ctx, req)
}

// Cards implements Dashboard.
func (d *Base) Cards(ctx context.Context, req *model.Request) ([]card.Card, error) {
	if d.cards == nil {
		return nil, nil
	}
	return d.cards(ctx, req)
}

// Descriptor returns the dashboard's serialization without cards.
func (d *Base) Descriptor() model.DashboardDescriptor {
	return Describe(d)
}

// MarshalJSON emits exactly {name, uriKey, description, icon, category,
// showRefreshButton}.
func (d *Base) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Descriptor())
}

// Describe serializes any Dashboard without its cards.
func Describe(d Dashboard) model.DashboardDescriptor {
	return model.DashboardDescriptor{
		Name:              d.Name(),
		URIKey:            d.URIKey(),
		Description:       d.Description(),
		Icon:              d.Icon(),
		Category:          d.Category(),
		ShowRefreshButton: d.ShouldShowRefreshButton(),
	}
}
