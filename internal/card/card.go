// Package card defines dashboard cards: a meta bag for the frontend, an
// optional data loader and a visibility check.
package card

import (
	"context"
	"encoding/json"
	"maps"
	"sync"
	"time"

	"github.com/pitabwire/vitrine/internal/auth"
	"github.com/pitabwire/vitrine/internal/cache"
	"github.com/pitabwire/vitrine/internal/naming"
	"github.com/pitabwire/vitrine/model"
)

// ComponentSuffix is appended to a card's slug to name its frontend view.
const ComponentSuffix = "-card"

// Card is a unit of dashboard content.
type Card interface {
	Name() string
	Component() string
	URIKey() string
	Meta() map[string]any
	AuthorizedToSee(ctx context.Context, req *model.Request) (bool, error)
}

// Loader is implemented by cards that compute data per request. The data is
// published under meta["data"].
type Loader interface {
	Load(ctx context.Context, req *model.Request) (any, error)
}

// LoadFunc computes card data for a request.
type LoadFunc func(ctx context.Context, req *model.Request) (any, error)

// Base implements Card and is embedded by concrete cards.
type Base struct {
	*auth.Authorizer

	mu        sync.RWMutex
	name      string
	uriKey    string
	component string
	meta      map[string]any
	loader    LoadFunc
}

// New creates a card named after a Go-style identifier: "RecentOrders"
// becomes name "Recent Orders", uriKey "recent-orders" and component
// "recent-orders-card". Cards are visible by default.
func New(class string) *Base {
	slug := naming.Slug(class)
	b := &Base{
		Authorizer: auth.New(true),
		name:       naming.Humanize(class),
		uriKey:     slug,
		component:  slug + ComponentSuffix,
		meta:       make(map[string]any),
	}
	b.Authorizer.Bind(slug)
	return b
}

// Make is an alias of New for fluent construction.
func Make(class string) *Base {
	return New(class)
}

// Name returns the display name.
func (b *Base) Name() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.name
}

// URIKey returns the card's stable slug.
func (b *Base) URIKey() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.uriKey
}

// Component returns the frontend view name.
func (b *Base) Component() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.component
}

// WithName overrides the display name.
func (b *Base) WithName(name string) *Base {
	b.mu.Lock()
	b.name = name
	b.mu.Unlock()
	return b
}

// WithURIKey overrides the uriKey. Authorization cache keys follow it.
func (b *Base) WithURIKey(key string) *Base {
	b.mu.Lock()
	b.uriKey = key
	b.mu.Unlock()
	b.Authorizer.Bind(key)
	return b
}

// WithComponent overrides the frontend view name.
func (b *Base) WithComponent(component string) *Base {
	b.mu.Lock()
	b.component = component
	b.mu.Unlock()
	return b
}

// WithMeta shallow-merges m into the meta bag. Later keys win.
func (b *Base) WithMeta(m map[string]any) *Base {
	b.mu.Lock()
	maps.Copy(b.meta, m)
	b.mu.Unlock()
	return b
}

// Meta returns a snapshot of the meta bag.
func (b *Base) Meta() map[string]any {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return maps.Clone(b.meta)
}

// WithTitle sets meta["title"].
func (b *Base) WithTitle(title string) *Base {
	return b.WithMeta(map[string]any{"title": title})
}

// WithIcon sets meta["icon"].
func (b *Base) WithIcon(icon string) *Base {
	return b.WithMeta(map[string]any{"icon": icon})
}

// WithGroup sets meta["group"].
func (b *Base) WithGroup(group string) *Base {
	return b.WithMeta(map[string]any{"group": group})
}

// WithWidth sets meta["width"], e.g. "1/3" or "full".
func (b *Base) WithWidth(width string) *Base {
	return b.WithMeta(map[string]any{"width": width})
}

// Loading registers a per-request data loader.
func (b *Base) Loading(fn LoadFunc) *Base {
	b.mu.Lock()
	b.loader = fn
	b.mu.Unlock()
	return b
}

// Load runs the registered loader. Without one it returns nil data.
func (b *Base) Load(ctx context.Context, req *model.Request) (any, error) {
	b.mu.RLock()
	fn := b.loader
	b.mu.RUnlock()
	if fn == nil {
		return nil, nil
	}
	return fn(ctx, req)
}

// CanSee registers the visibility predicate.
func (b *Base) CanSee(p auth.Predicate) *Base {
	b.Authorizer.CanSee(p)
	return b
}

// CanSeeWhen makes visibility depend on a gate ability.
func (b *Base) CanSeeWhen(gate auth.Gate, ability string, subject any) *Base {
	b.Authorizer.CanSeeWhen(gate, ability, subject)
	return b
}

// CanSeeWhenPolicy makes visibility depend on a policy method.
func (b *Base) CanSeeWhenPolicy(policies *auth.Policies, policy, method string, args ...any) *Base {
	b.Authorizer.CanSeeWhenPolicy(policies, policy, method, args...)
	return b
}

// CacheAuth caches visibility results in store for ttl.
func (b *Base) CacheAuth(store cache.Store, ttl time.Duration) *Base {
	b.Authorizer.CacheAuth(store, ttl)
	return b
}

// Descriptor returns the static serialization of the card.
func (b *Base) Descriptor() model.CardDescriptor {
	return model.CardDescriptor{
		Name:      b.Name(),
		Component: b.Component(),
		URIKey:    b.URIKey(),
		Meta:      b.Meta(),
	}
}

// MarshalJSON emits {name, component, uriKey, meta}.
func (b *Base) MarshalJSON() ([]byte, error) {
	return json.Marshal(b.Descriptor())
}

// Describe serializes c for req. Cards implementing Loader have their data
// placed under meta["data"]; loader errors are returned.
func Describe(ctx context.Context, req *model.Request, c Card) (model.CardDescriptor, error) {
	meta := c.Meta()
	if meta == nil {
		meta = make(map[string]any)
	}
	if l, ok := c.(Loader); ok {
		data, err := l.Load(ctx, req)
		if err != nil {
			return model.CardDescriptor{}, err
		}
		if data != nil {
			meta["data"] = data
		}
	}
	return model.CardDescriptor{
		Name:      c.Name(),
		Component: c.Component(),
		URIKey:    c.URIKey(),
		Meta:      meta,
	}, nil
}
