package metric

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/pitabwire/vitrine/internal/cache"
	"github.com/pitabwire/vitrine/internal/card"
	"github.com/pitabwire/vitrine/internal/observability"
	"github.com/pitabwire/vitrine/model"
)

// DefaultNoCacheParam is the request parameter that bypasses the result
// cache.
const DefaultNoCacheParam = "no_cache"

// Recorder receives metric calculation outcomes.
type Recorder interface {
	RecordMetricCalculation(uriKey string, duration time.Duration, err error)
}

// ResolverConfig controls result caching.
type ResolverConfig struct {
	CacheEnabled bool
	NoCacheParam string
}

// Resolver calculates metrics, caching results per metric, range, limit,
// timezone, declared parameters and, for per-user metrics, user.
type Resolver struct {
	store    cache.Store
	cfg      ResolverConfig
	recorder Recorder
	group    singleflight.Group
}

// NewResolver creates a Resolver. A nil store disables caching.
func NewResolver(store cache.Store, cfg ResolverConfig) *Resolver {
	if cfg.NoCacheParam == "" {
		cfg.NoCacheParam = DefaultNoCacheParam
	}
	return &Resolver{store: store, cfg: cfg}
}

// WithRecorder reports calculations to rec.
func (r *Resolver) WithRecorder(rec Recorder) *Resolver {
	r.recorder = rec
	return r
}

// CacheKey returns the cache key of m's result for req.
func (r *Resolver) CacheKey(m Metric, req *model.Request) string {
	parts := []string{
		m.URIKey(),
		"range=" + SelectedRange(req.Param("range"), m.Ranges()),
		"limit=" + req.Param("limit"),
		"tz=" + req.Timezone(),
	}
	for _, p := range m.CacheParams() {
		parts = append(parts, p+"="+req.Param(p))
	}
	if m.PerUser() {
		parts = append(parts, "user="+req.UserKey())
	}
	return cache.Key(cache.NamespaceMetric, parts...)
}

func (r *Resolver) cacheable(m Metric, req *model.Request) bool {
	return r.store != nil && r.cfg.CacheEnabled && m.CacheFor() > 0 && !req.BoolParam(r.cfg.NoCacheParam)
}

// Result returns m's encoded result for req, from cache when possible.
func (r *Resolver) Result(ctx context.Context, req *model.Request, m Metric) (json.RawMessage, error) {
	if !r.cacheable(m, req) {
		return r.calculate(ctx, req, m)
	}

	key := r.CacheKey(m, req)
	logger := observability.LoggerFrom(ctx, zap.NewNop())

	raw, found, err := r.store.Get(ctx, key)
	if err != nil {
		logger.Warn("metric cache read failed", zap.String("metric", m.URIKey()), zap.Error(err))
	} else if found {
		logger.Debug("metric cache hit", zap.String("metric", m.URIKey()))
		trace.SpanFromContext(ctx).SetAttributes(observability.AttrCacheHit.Bool(true))
		return raw, nil
	}

	v, err, _ := r.group.Do(key, func() (any, error) {
		// Shared by every waiter on key; not tied to the starter's cancellation.
		fillCtx := context.WithoutCancel(ctx)
		out, err := r.calculate(fillCtx, req, m)
		if err != nil {
			return nil, err
		}
		if err := r.store.Put(fillCtx, key, out, m.CacheFor()); err != nil {
			logger.Warn("metric cache write failed", zap.String("metric", m.URIKey()), zap.Error(err))
		}
		return out, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(json.RawMessage), nil
}

func (r *Resolver) calculate(ctx context.Context, req *model.Request, m Metric) (_ json.RawMessage, err error) {
	ctx, span := observability.StartSpan(ctx, "metric.calculate",
		observability.AttrCardURIKey.String(m.URIKey()),
		observability.AttrRange.String(SelectedRange(req.Param("range"), m.Ranges())),
	)
	start := time.Now()
	defer func() {
		if r.recorder != nil {
			r.recorder.RecordMetricCalculation(m.URIKey(), time.Since(start), err)
		}
		observability.EndSpanWithError(span, err)
	}()

	result, err := m.Calculate(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("calculating metric %s: %w", m.URIKey(), err)
	}
	if result == nil {
		return nil, fmt.Errorf("metric %s returned no result", m.URIKey())
	}
	out, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("encoding metric %s: %w", m.URIKey(), err)
	}
	return out, nil
}

// Describe serializes m for req with its ranges, selected range and result
// in the meta bag.
func (r *Resolver) Describe(ctx context.Context, req *model.Request, m Metric) (model.CardDescriptor, error) {
	desc, err := card.Describe(ctx, req, m)
	if err != nil {
		return model.CardDescriptor{}, err
	}
	result, err := r.Result(ctx, req, m)
	if err != nil {
		return model.CardDescriptor{}, err
	}
	ranges := m.Ranges()
	if ranges == nil {
		ranges = []Range{}
	}
	desc.Meta["ranges"] = ranges
	desc.Meta["selectedRange"] = SelectedRange(req.Param("range"), ranges)
	desc.Meta["result"] = result
	return desc, nil
}
