// Package capability resolves and caches user capabilities from a policy
// evaluator and exposes them as an ability gate.
package capability

import (
	"sync"
	"time"

	"github.com/pitabwire/vitrine/model"
)

type cacheEntry struct {
	caps    model.CapabilitySet
	expires time.Time
}

// CacheRecorder receives capability cache traffic.
type CacheRecorder interface {
	RecordCapabilityCacheHit()
	RecordCapabilityCacheMiss()
}

// Resolver implements model.CapabilityResolver with an in-memory cache keyed
// by tenant and subject.
type Resolver struct {
	evaluator model.PolicyEvaluator
	ttl       time.Duration
	recorder  CacheRecorder
	now       func() time.Time

	mu    sync.RWMutex
	cache map[string]cacheEntry
}

// NewResolver creates a Resolver with the given evaluator and cache TTL.
func NewResolver(evaluator model.PolicyEvaluator, ttl time.Duration) *Resolver {
	return &Resolver{
		evaluator: evaluator,
		ttl:       ttl,
		now:       time.Now,
		cache:     make(map[string]cacheEntry),
	}
}

// WithRecorder reports cache hits and misses to rec.
func (r *Resolver) WithRecorder(rec CacheRecorder) *Resolver {
	r.recorder = rec
	return r
}

func cacheKey(subjectID, tenantID string) string {
	return tenantID + "\x00" + subjectID
}

// Resolve returns the full capability set of the user. Results are cached
// for the configured TTL.
func (r *Resolver) Resolve(rctx *model.RequestContext) (model.CapabilitySet, error) {
	key := cacheKey(rctx.SubjectID, rctx.TenantID)

	r.mu.RLock()
	entry, ok := r.cache[key]
	r.mu.RUnlock()
	if ok && r.now().Before(entry.expires) {
		if r.recorder != nil {
			r.recorder.RecordCapabilityCacheHit()
		}
		return entry.caps, nil
	}
	if r.recorder != nil {
		r.recorder.RecordCapabilityCacheMiss()
	}

	caps, err := r.evaluator.ResolveCapabilities(rctx)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.cache[key] = cacheEntry{caps: caps, expires: r.now().Add(r.ttl)}
	r.mu.Unlock()

	return caps, nil
}

// Invalidate clears cached capabilities for the given user and tenant.
func (r *Resolver) Invalidate(subjectID, tenantID string) {
	r.mu.Lock()
	delete(r.cache, cacheKey(subjectID, tenantID))
	r.mu.Unlock()
}

// Purge drops every cached capability set, e.g. after the policy source
// changed.
func (r *Resolver) Purge() {
	r.mu.Lock()
	clear(r.cache)
	r.mu.Unlock()
}
