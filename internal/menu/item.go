// Package menu builds the authorized navigation tree from items and
// sections.
package menu

import (
	"context"
	"fmt"
	"maps"
	"time"

	"go.uber.org/zap"

	"github.com/pitabwire/vitrine/internal/auth"
	"github.com/pitabwire/vitrine/internal/cache"
	"github.com/pitabwire/vitrine/internal/naming"
	"github.com/pitabwire/vitrine/internal/observability"
	"github.com/pitabwire/vitrine/model"
)

// Entry is a node of the navigation tree.
type Entry interface {
	AuthorizedToSee(ctx context.Context, req *model.Request) (bool, error)
	resolve(ctx context.Context, req *model.Request, r *Resolver) (model.NavigationNode, bool, error)
}

// BadgeFunc computes a badge value per request.
type BadgeFunc func(ctx context.Context, req *model.Request) (any, error)

// Item is a navigation link.
type Item struct {
	*auth.Authorizer

	id       string
	label    string
	path     string
	icon     string
	meta     map[string]any
	badge    any
	badgeFn  BadgeFunc
	badges   cache.Store
	badgeTTL time.Duration
}

// NewItem creates a link visible to everyone.
func NewItem(label, path string) *Item {
	id := naming.Slug(label)
	i := &Item{
		Authorizer: auth.New(true),
		id:         id,
		label:      label,
		path:       path,
		meta:       map[string]any{},
	}
	i.Bind("menu:" + id)
	return i
}

// Label returns the display label.
func (i *Item) Label() string { return i.label }

// Path returns the link target.
func (i *Item) Path() string { return i.path }

// WithID overrides the node id and the authorization cache identity.
func (i *Item) WithID(id string) *Item {
	i.id = id
	i.Bind("menu:" + id)
	return i
}

// WithIcon sets the icon.
func (i *Item) WithIcon(icon string) *Item {
	i.icon = icon
	return i
}

// WithMeta merges m into the item's meta.
func (i *Item) WithMeta(m map[string]any) *Item {
	maps.Copy(i.meta, m)
	return i
}

// WithBadge sets a static badge.
func (i *Item) WithBadge(v any) *Item {
	i.badge, i.badgeFn = v, nil
	return i
}

// WithBadgeFunc sets a badge computed per request.
func (i *Item) WithBadgeFunc(fn BadgeFunc) *Item {
	i.badge, i.badgeFn = nil, fn
	return i
}

// CacheBadge caches computed badges per user for ttl.
func (i *Item) CacheBadge(store cache.Store, ttl time.Duration) *Item {
	if ttl <= 0 {
		ttl = auth.DefaultTTL
	}
	i.badges, i.badgeTTL = store, ttl
	return i
}

// CanSee registers the visibility predicate.
func (i *Item) CanSee(p auth.Predicate) *Item {
	i.Authorizer.CanSee(p)
	return i
}

// CanSeeWhen restricts visibility to users the gate allows.
func (i *Item) CanSeeWhen(gate auth.Gate, ability string, subject any) *Item {
	i.Authorizer.CanSeeWhen(gate, ability, subject)
	return i
}

// CacheAuth caches the visibility result per user.
func (i *Item) CacheAuth(store cache.Store, ttl time.Duration) *Item {
	i.Authorizer.CacheAuth(store, ttl)
	return i
}

// BadgeCacheKey returns the store key of the badge for req.
func (i *Item) BadgeCacheKey(req *model.Request) string {
	return cache.Key(cache.NamespaceBadge, i.Identity(), req.UserKey())
}

// Badge resolves the badge for req. A nil value means no badge.
func (i *Item) Badge(ctx context.Context, req *model.Request) (any, error) {
	if i.badgeFn == nil {
		return i.badge, nil
	}
	if i.badges == nil {
		return i.badgeFn(ctx, req)
	}

	key := i.BadgeCacheKey(req)
	var cached any
	ok, err := cache.GetJSON(ctx, i.badges, key, &cached)
	switch {
	case err != nil:
		observability.LoggerFrom(ctx, zap.NewNop()).Warn("badge cache read failed",
			zap.String("item", i.id),
			zap.Error(err),
		)
	case ok:
		return cached, nil
	}
	v, err := i.badgeFn(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := cache.PutJSON(ctx, i.badges, key, v, i.badgeTTL); err != nil {
		return v, fmt.Errorf("cache badge %s: %w", i.id, err)
	}
	return v, nil
}

// ClearBadgeCache drops the cached badge for req.
func (i *Item) ClearBadgeCache(ctx context.Context, req *model.Request) error {
	if i.badges == nil {
		return nil
	}
	return i.badges.Forget(ctx, i.BadgeCacheKey(req))
}

func (i *Item) resolve(ctx context.Context, req *model.Request, r *Resolver) (model.NavigationNode, bool, error) {
	ok, err := i.AuthorizedToSee(ctx, req)
	if err != nil || !ok {
		return model.NavigationNode{}, false, err
	}
	node := model.NavigationNode{
		ID:    i.id,
		Kind:  model.NodeItem,
		Label: i.label,
		Path:  i.path,
		Icon:  i.icon,
	}
	if len(i.meta) > 0 {
		node.Meta = maps.Clone(i.meta)
	}
	badge, err := i.Badge(ctx, req)
	switch {
	case err != nil && badge == nil:
		r.logger(ctx).Warn("menu: badge failed, omitting",
			zap.String("item", i.id), zap.Error(err))
	case err != nil:
		r.logger(ctx).Warn("menu: badge not cached",
			zap.String("item", i.id), zap.Error(err))
		node.Badge = badge
	default:
		node.Badge = badge
	}
	return node, true, nil
}
