// Package metric implements cards that compute cached, time-range scoped
// aggregates: single values, trends and tables.
package metric

import (
	"context"
	"errors"
	"time"

	"github.com/pitabwire/vitrine/internal/auth"
	"github.com/pitabwire/vitrine/internal/cache"
	"github.com/pitabwire/vitrine/internal/card"
	"github.com/pitabwire/vitrine/internal/naming"
	"github.com/pitabwire/vitrine/model"
)

// Metric is a card whose content is calculated per request.
type Metric interface {
	card.Card
	Calculate(ctx context.Context, req *model.Request) (Result, error)
	Ranges() []Range
	// CacheFor is the result TTL; zero disables caching.
	CacheFor() time.Duration
	// PerUser partitions cached results by user.
	PerUser() bool
	// CacheParams names extra request parameters that change the result.
	CacheParams() []string
}

// CalculateFunc computes a result for the resolved window.
type CalculateFunc func(ctx context.Context, req *model.Request, w Window) (Result, error)

// ViewAbility is checked on a resource by ForResource.
const ViewAbility = "viewAny"

// Base implements Metric around a CalculateFunc. Metrics are hidden unless
// a predicate is registered.
type Base struct {
	*card.Base

	calc        CalculateFunc
	ranges      []Range
	cacheFor    time.Duration
	perUser     bool
	cacheParams []string
	now         func() time.Time
}

func newBase(class, component string, calc CalculateFunc) *Base {
	b := &Base{
		Base: card.New(class),
		calc: calc,
		now:  time.Now,
	}
	b.Base.WithComponent(component)
	b.Authorizer.SetFallback(false)
	return b
}

// New creates a metric rendered by the "<slug>-metric" component.
func New(class string, calc CalculateFunc) *Base {
	return newBase(class, naming.Slug(class)+"-metric", calc)
}

// NewValue creates a single-value metric.
func NewValue(class string, calc CalculateFunc) *Base {
	return newBase(class, "value-metric", calc).WithRanges(DefaultRanges()...)
}

// NewTrend creates a trend metric.
func NewTrend(class string, calc CalculateFunc) *Base {
	return newBase(class, "trend-metric", calc).WithRanges(DefaultRanges()...)
}

// NewTable creates a table metric. Table metrics have no ranges unless
// declared.
func NewTable(class string, calc CalculateFunc) *Base {
	return newBase(class, "table-metric", calc)
}

// WithRanges replaces the declared ranges. The first one is the default.
func (b *Base) WithRanges(ranges ...Range) *Base {
	b.ranges = append([]Range(nil), ranges...)
	return b
}

// CacheForMinutes caches results for the given minutes.
func (b *Base) CacheForMinutes(minutes int) *Base {
	b.cacheFor = time.Duration(minutes) * time.Minute
	return b
}

// CacheForDuration caches results for d.
func (b *Base) CacheForDuration(d time.Duration) *Base {
	b.cacheFor = d
	return b
}

// CachePerUser partitions cached results by user.
func (b *Base) CachePerUser() *Base {
	b.perUser = true
	return b
}

// CacheOn adds request parameters to the cache key.
func (b *Base) CacheOn(params ...string) *Base {
	b.cacheParams = append(b.cacheParams, params...)
	return b
}

// ForResource shows the metric to users holding the viewAny ability on
// resource.
func (b *Base) ForResource(gate auth.Gate, resource string) *Base {
	b.Authorizer.CanSeeWhen(gate, ViewAbility, resource)
	return b
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

// Ranges implements Metric.
func (b *Base) Ranges() []Range {
	return append([]Range(nil), b.ranges...)
}

// CacheFor implements Metric.
func (b *Base) CacheFor() time.Duration { return b.cacheFor }

// PerUser implements Metric.
func (b *Base) PerUser() bool { return b.perUser }

// CacheParams implements Metric.
func (b *Base) CacheParams() []string {
	return append([]string(nil), b.cacheParams...)
}

// SelectedRange returns the range token in effect for req.
func (b *Base) SelectedRange(req *model.Request) string {
	return SelectedRange(req.Param("range"), b.ranges)
}

// Window resolves the selected range for req in the request's timezone.
func (b *Base) Window(req *model.Request) (Window, error) {
	return Resolve(b.SelectedRange(req), b.now(), req.Location())
}

// Calculate implements Metric.
func (b *Base) Calculate(ctx context.Context, req *model.Request) (Result, error) {
	if b.calc == nil {
		return nil, errors.New("metric has no calculation")
	}
	w, err := b.Window(req)
	if err != nil {
		return nil, err
	}
	return b.calc(ctx, req, w)
}
