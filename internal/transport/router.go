package transport

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/pitabwire/vitrine/internal/config"
	"github.com/pitabwire/vitrine/internal/dashboard"
	"github.com/pitabwire/vitrine/internal/menu"
	"github.com/pitabwire/vitrine/internal/metadata"
	"github.com/pitabwire/vitrine/internal/observability"
	"github.com/pitabwire/vitrine/internal/resource"
)

// Dependencies holds everything the HTTP layer is wired to.
type Dependencies struct {
	Config       *config.Config
	Logger       *zap.Logger
	Metrics      *observability.Metrics
	Authenticate func(http.Handler) http.Handler

	Dashboards *dashboard.Assembler
	Resources  *resource.Registry
	DB         *gorm.DB
	// Menu returns the current navigation entries; it is called per request
	// so definition reloads are picked up.
	Menu     func() []menu.Entry
	Metadata *metadata.Manager

	Readiness observability.ReadinessChecks
}

// NewRouter creates the chi router with the full middleware pipeline.
// Health, readiness and metrics endpoints bypass authentication.
func NewRouter(deps Dependencies) chi.Router {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := chi.NewRouter()

	r.Use(Recovery(logger))
	r.Use(observability.TracingMiddleware)
	if deps.Metrics != nil {
		r.Use(deps.Metrics.MetricsMiddleware)
	}
	r.Use(CORS(deps.Config.Server.CORS))
	r.Use(RequestID(logger))
	r.Use(SecurityHeaders)

	r.Get("/health", observability.HandleHealth())
	r.Get("/ready", observability.HandleReady(deps.Readiness))
	if m := deps.Config.Observability.Metrics; m.Enabled {
		path := m.Path
		if path == "" {
			path = "/metrics"
		}
		r.Method(http.MethodGet, path, observability.Handler())
	}

	authenticate := deps.Authenticate
	if authenticate == nil {
		authenticate = func(next http.Handler) http.Handler { return next }
	}

	h := &handlers{
		logger:       logger,
		dashboards:   deps.Dashboards,
		resources:    deps.Resources,
		db:           deps.DB,
		queryTimeout: deps.Config.Database.QueryTimeout,
		menu:         deps.Menu,
		navigation:   menu.NewResolver(logger),
		metadata:     deps.Metadata,
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(authenticate)
		r.Use(BuildRequestContextMiddleware(deps.Config.Identity.ClaimPaths))
		r.Use(HandlerTimeout(deps.Config.Server.HandlerTimeout))
		r.Use(RequestLogging(logger))

		r.Get("/dashboards", h.listDashboards)
		r.Get("/dashboards/{uriKey}", h.getDashboard)
		r.Get("/dashboards/{uriKey}/cards/{cardKey}", h.getCard)
		r.Get("/navigation", h.getNavigation)
		r.Get("/resources/{uriKey}", h.getResourceIndex)
		r.Put("/preferences/{kind}/{key}", h.putPreference)
		r.Delete("/preferences/{kind}/{key}", h.deletePreference)
	})

	return r
}
