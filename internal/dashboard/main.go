package dashboard

import (
	"context"

	"go.uber.org/zap"

	"github.com/pitabwire/vitrine/internal/card"
	"github.com/pitabwire/vitrine/internal/observability"
	"github.com/pitabwire/vitrine/model"
)

// FailureRecorder counts cards skipped during assembly.
type FailureRecorder interface {
	RecordCardFailure(dashboard, stage string)
}

// Failure stages.
const (
	StageBuild = "build"
	StageLoad  = "load"
)

// MainOption configures dashboards built from card keys.
type MainOption func(*mainConfig)

type mainConfig struct {
	logger   *zap.Logger
	recorder FailureRecorder
}

// WithLogger sets the fallback logger for card build failures.
func WithLogger(l *zap.Logger) MainOption {
	return func(c *mainConfig) { c.logger = l }
}

// WithFailureRecorder counts card build failures.
func WithFailureRecorder(r FailureRecorder) MainOption {
	return func(c *mainConfig) { c.recorder = r }
}

// FromKeys builds cards from registry keys on every call. A key that
// cannot be built is logged and skipped; the other cards still render.
func FromKeys(dashboardKey string, registry *card.Registry, keys []string, opts ...MainOption) CardsFunc {
	cfg := mainConfig{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&cfg)
	}
	keys = append([]string(nil), keys...)

	return func(ctx context.Context, _ *model.Request) ([]card.Card, error) {
		cards, errs := registry.Build(keys)
		for _, e := range errs {
			observability.RequestLogger(ctx, cfg.logger).Error("dashboard: card skipped",
				zap.String("dashboard", dashboardKey),
				zap.String("card", e.Key),
				zap.Error(e.Err),
			)
			if cfg.recorder != nil {
				cfg.recorder.RecordCardFailure(dashboardKey, StageBuild)
			}
		}
		return cards, nil
	}
}

// NewMain creates the main dashboard from configured card keys.
func NewMain(registry *card.Registry, keys []string, opts ...MainOption) *Base {
	return New("Main", FromKeys(MainURIKey, registry, keys, opts...)).WithURIKey(MainURIKey)
}
