// Package auth provides the visibility check shared by dashboards, cards,
// metrics, menu nodes and resources: a registered predicate, an optional
// TTL-bounded result cache, and gate/policy helpers.
package auth

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/pitabwire/vitrine/internal/cache"
	"github.com/pitabwire/vitrine/internal/observability"
	"github.com/pitabwire/vitrine/model"
)

// DefaultTTL is used when caching is enabled without a positive TTL.
const DefaultTTL = 5 * time.Minute

// maxMemo bounds the per-user results held in memory.
const maxMemo = 4096

// Predicate decides whether a request may see an object.
type Predicate func(ctx context.Context, req *model.Request) (bool, error)

// State describes the authorization cache for one user.
type State int

const (
	// StateUnset means caching was never enabled.
	StateUnset State = iota
	// StatePrimed means caching is enabled but no live result is held.
	StatePrimed
	// StateEvaluated means a live result is held.
	StateEvaluated
)

func (s State) String() string {
	switch s {
	case StatePrimed:
		return "primed"
	case StateEvaluated:
		return "evaluated"
	default:
		return "unset"
	}
}

type memo struct {
	allowed   bool
	expiresAt time.Time
}

// Authorizer holds a visibility predicate and its cache. It is embedded by
// the types that need a visibility check and is safe for concurrent use.
type Authorizer struct {
	mu        sync.Mutex
	fallback  bool
	identity  string
	predicate Predicate
	cached    bool
	store     cache.Store
	ttl       time.Duration
	memo      map[string]memo
	now       func() time.Time
}

// New creates an Authorizer that answers fallback when no predicate is
// registered.
func New(fallback bool) *Authorizer {
	return &Authorizer{fallback: fallback, now: time.Now}
}

// Bind sets the identity (usually the uriKey) that cache keys are scoped to.
// Rebinding drops in-memory results.
func (a *Authorizer) Bind(identity string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.identity != identity {
		a.identity = identity
		a.memo = nil
	}
}

// Identity returns the bound identity.
func (a *Authorizer) Identity() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.identity
}

// SetFallback changes the answer used when no predicate is registered.
func (a *Authorizer) SetFallback(allowed bool) {
	a.mu.Lock()
	a.fallback = allowed
	a.mu.Unlock()
}

// CanSee registers the visibility predicate, replacing any previous one.
func (a *Authorizer) CanSee(p Predicate) *Authorizer {
	a.mu.Lock()
	a.predicate = p
	a.memo = nil
	a.mu.Unlock()
	return a
}

// HasPredicate reports whether a predicate is registered.
func (a *Authorizer) HasPredicate() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.predicate != nil
}

// CacheAuth enables result caching in store for ttl. A nil store keeps
// results in memory only.
func (a *Authorizer) CacheAuth(store cache.Store, ttl time.Duration) *Authorizer {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	a.mu.Lock()
	a.cached = true
	a.store = store
	a.ttl = ttl
	a.mu.Unlock()
	return a
}

// CacheKey returns the store key holding the result for req.
func (a *Authorizer) CacheKey(req *model.Request) string {
	return cache.Key(cache.NamespaceAuth, a.Identity(), req.UserKey())
}

// State reports the cache state for the user behind req.
func (a *Authorizer) State(req *model.Request) State {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.cached {
		return StateUnset
	}
	if m, ok := a.memo[req.UserKey()]; ok && a.now().Before(m.expiresAt) {
		return StateEvaluated
	}
	return StatePrimed
}

// Prime loads a stored result for the user behind req into memory so the
// next check answers without touching the predicate or the store.
func (a *Authorizer) Prime(ctx context.Context, req *model.Request) {
	a.mu.Lock()
	cached, store := a.cached, a.store
	a.mu.Unlock()
	if !cached || store == nil {
		return
	}

	var allowed bool
	found, err := cache.GetJSON(ctx, store, a.CacheKey(req), &allowed)
	if err != nil {
		observability.LoggerFrom(ctx, zap.NewNop()).Warn("authorization cache read failed",
			zap.String("identity", a.Identity()),
			zap.Error(err),
		)
		return
	}
	if found {
		a.remember(req.UserKey(), allowed)
	}
}

// AuthorizedToSee evaluates visibility for req. Without a predicate the
// fallback is returned. Predicate errors are returned unchanged and never
// cached.
func (a *Authorizer) AuthorizedToSee(ctx context.Context, req *model.Request) (bool, error) {
	a.mu.Lock()
	predicate, fallback, cached := a.predicate, a.fallback, a.cached
	a.mu.Unlock()

	if predicate == nil {
		return fallback, nil
	}
	if !cached {
		return predicate(ctx, req)
	}

	userKey := req.UserKey()
	if allowed, ok := a.recall(userKey); ok {
		return allowed, nil
	}

	a.Prime(ctx, req)
	if allowed, ok := a.recall(userKey); ok {
		return allowed, nil
	}

	allowed, err := predicate(ctx, req)
	if err != nil {
		return false, err
	}
	a.remember(userKey, allowed)

	a.mu.Lock()
	store, ttl := a.store, a.ttl
	a.mu.Unlock()
	if store != nil {
		if err := cache.PutJSON(ctx, store, a.CacheKey(req), allowed, ttl); err != nil {
			observability.LoggerFrom(ctx, zap.NewNop()).Warn("authorization cache write failed",
				zap.String("identity", a.Identity()),
				zap.Error(err),
			)
		}
	}
	return allowed, nil
}

// ClearAuthCache forgets the stored and in-memory result for the user
// behind req, forcing re-evaluation on the next check.
func (a *Authorizer) ClearAuthCache(ctx context.Context, req *model.Request) error {
	a.mu.Lock()
	delete(a.memo, req.UserKey())
	store := a.store
	a.mu.Unlock()

	if store == nil {
		return nil
	}
	return store.Forget(ctx, a.CacheKey(req))
}

func (a *Authorizer) recall(userKey string) (bool, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	m, ok := a.memo[userKey]
	if !ok {
		return false, false
	}
	if !a.now().Before(m.expiresAt) {
		delete(a.memo, userKey)
		return false, false
	}
	return m.allowed, true
}

func (a *Authorizer) remember(userKey string, allowed bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.memo == nil {
		a.memo = make(map[string]memo)
	}
	now := a.now()
	if len(a.memo) >= maxMemo {
		for k, m := range a.memo {
			if !now.Before(m.expiresAt) {
				delete(a.memo, k)
			}
		}
		if len(a.memo) >= maxMemo {
			a.memo = make(map[string]memo)
		}
	}
	a.memo[userKey] = memo{allowed: allowed, expiresAt: now.Add(a.ttl)}
}
