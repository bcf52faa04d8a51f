// Package main is the entry point for the vitrine admin panel server.
// It wires all dependencies together and starts the HTTP server.
package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/pitabwire/vitrine/internal/cache"
	"github.com/pitabwire/vitrine/internal/capability"
	"github.com/pitabwire/vitrine/internal/config"
	"github.com/pitabwire/vitrine/internal/dashboard"
	"github.com/pitabwire/vitrine/internal/definition"
	"github.com/pitabwire/vitrine/internal/metadata"
	"github.com/pitabwire/vitrine/internal/metric"
	"github.com/pitabwire/vitrine/internal/observability"
	"github.com/pitabwire/vitrine/internal/transport"
)

// Build-time variables set via ldflags:
//
//	go build -ldflags "-X main.version=1.0.0 -X main.commit=abc1234"
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return 1
	}

	observability.Version = version
	observability.Commit = commit

	logger, err := observability.NewLogger(cfg.Observability)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger error: %v\n", err)
		return 1
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	tracingShutdown, err := observability.InitTracing(ctx, cfg.Observability.Tracing, "vitrine", version)
	if err != nil {
		logger.Error("tracing initialization failed", zap.Error(err))
		return 1
	}

	metrics := observability.InitMetrics(prometheus.DefaultRegisterer)

	store, storeCloser, err := buildCacheStore(cfg.Cache, logger)
	if err != nil {
		logger.Error("cache store initialization failed", zap.Error(err))
		return 1
	}
	defer storeCloser()
	store = cache.NewInstrumented(store, metrics)

	db, sqlDB, err := openDatabase(cfg.Database)
	if err != nil {
		logger.Error("database initialization failed", zap.Error(err))
		return 1
	}
	defer func() { _ = sqlDB.Close() }()

	prefs, prefsCloser, err := buildPreferenceStore(ctx, cfg.Preferences, logger)
	if err != nil {
		logger.Error("preference store initialization failed", zap.Error(err))
		return 1
	}
	defer prefsCloser()
	meta := metadata.NewManager(prefs)

	builderOpts := []definition.BuilderOption{
		definition.WithMetadata(meta),
		definition.WithAuthCache(store, cfg.Cache.DefaultTTL),
		definition.WithBadgeCache(store),
	}
	gate, reloadPolicies, err := buildGate(cfg.Capability, metrics)
	if err != nil {
		logger.Error("capability gate initialization failed", zap.Error(err))
		return 1
	}
	if gate != nil {
		builderOpts = append(builderOpts, definition.WithGate(gate))
	} else {
		logger.Warn("no static policy file configured, capability-gated objects stay hidden")
	}

	p, err := newPanel(cfg.Definitions, db, logger, metrics, builderOpts...)
	if err != nil {
		logger.Error("panel initialization failed", zap.Error(err))
		return 1
	}
	files, err := p.load()
	if err != nil {
		logger.Error("definition loading failed", zap.Error(err))
		return 1
	}
	metrics.SetDefinitionsLoaded(files)
	metrics.SetDashboardsLoaded(p.dashboards.Len())

	resolver := metric.NewResolver(store, metric.ResolverConfig{
		CacheEnabled: cfg.Metrics.CacheEnabled,
		NoCacheParam: cfg.Metrics.NoCacheParam,
	}).WithRecorder(metrics)
	assembler := dashboard.NewAssembler(p.dashboards, resolver, meta, logger).WithRecorder(metrics)

	readiness := observability.ReadinessChecks{
		DashboardsLoaded: func() bool { return p.dashboards.Len() > 0 },
		CacheStore:       store,
		Database:         sqlHealth{sqlDB},
	}
	if prefs != nil {
		readiness.PreferenceStore = prefs
	}

	var authenticate func(http.Handler) http.Handler
	if cfg.Identity.JWKSURL != "" {
		jwks := transport.NewJWKSClient(cfg.Identity.JWKSURL, cfg.Identity.JWKSCacheTTL, logger)
		authenticate = transport.JWTAuthenticator(cfg.Identity, jwks, logger)
	}

	router := transport.NewRouter(transport.Dependencies{
		Config:       cfg,
		Logger:       logger,
		Metrics:      metrics,
		Authenticate: authenticate,
		Dashboards:   assembler,
		Resources:    p.resources,
		DB:           db,
		Menu:         p.Menu,
		Metadata:     meta,
		Readiness:    readiness,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	bgCtx, bgCancel := context.WithCancel(ctx)
	defer bgCancel()
	go reloadOnHangup(bgCtx, p, reloadPolicies, metrics, logger)

	logger.Info("server started",
		zap.Int("port", cfg.Server.Port),
		zap.String("version", version),
		zap.String("commit", commit),
		zap.Int("definitions", files),
	)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown initiated")
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
		return 1
	}

	shutdownTimeout := cfg.Server.ShutdownTimeout
	if shutdownTimeout == 0 {
		shutdownTimeout = 30 * time.Second
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}
	bgCancel()

	if err := tracingShutdown(shutdownCtx); err != nil {
		logger.Error("tracing shutdown error", zap.Error(err))
	}

	logger.Info("shutdown complete")
	return 0
}

// reloadOnHangup rebuilds the panel from disk on SIGHUP and, when a policy
// file is configured, rereads it. A failed reload keeps the previous state
// in service.
func reloadOnHangup(ctx context.Context, p *panel, reloadPolicies func() error, metrics *observability.Metrics, logger *zap.Logger) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			if reloadPolicies != nil {
				if err := reloadPolicies(); err != nil {
					logger.Error("policy reload failed, keeping previous policies", zap.Error(err))
				}
			}
			files, err := p.load()
			if err != nil {
				logger.Error("definition reload failed, keeping previous definitions", zap.Error(err))
				continue
			}
			metrics.SetDefinitionsLoaded(files)
			metrics.SetDashboardsLoaded(p.dashboards.Len())
		}
	}
}

// buildCacheStore creates the shared cache based on config.
func buildCacheStore(cfg config.StoreConfig, logger *zap.Logger) (cache.Store, func(), error) {
	switch cfg.Driver {
	case "memory", "":
		logger.Info("using in-memory cache store")
		return cache.NewMemoryStore(cfg.MaxEntries), func() {}, nil
	case "redis":
		addr := os.Getenv(cfg.AddrEnv)
		if addr == "" {
			return nil, nil, fmt.Errorf("cache store: %s environment variable not set", cfg.AddrEnv)
		}
		client := redis.NewClient(&redis.Options{Addr: addr, DB: cfg.DB})
		return cache.NewRedisStore(client, cfg.Prefix), func() { _ = client.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unsupported cache driver: %q", cfg.Driver)
	}
}

// openDatabase connects gorm to the reporting database.
func openDatabase(cfg config.DatabaseConfig) (*gorm.DB, *sql.DB, error) {
	dsn := os.Getenv(cfg.DSNEnv)
	if dsn == "" {
		return nil, nil, fmt.Errorf("database: %s environment variable not set", cfg.DSNEnv)
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("database: connect: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, nil, fmt.Errorf("database: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	return db, sqlDB, nil
}

type sqlHealth struct{ db *sql.DB }

func (h sqlHealth) HealthCheck(ctx context.Context) error {
	return h.db.PingContext(ctx)
}

// buildPreferenceStore creates the user preference store based on config.
func buildPreferenceStore(ctx context.Context, cfg config.PreferencesConfig, logger *zap.Logger) (metadata.PreferenceStore, func(), error) {
	switch cfg.Driver {
	case "memory", "":
		logger.Info("using in-memory preference store")
		return metadata.NewMemoryPreferenceStore(), func() {}, nil
	case "postgres":
		dsn := os.Getenv(cfg.DSNEnv)
		if dsn == "" {
			return nil, nil, fmt.Errorf("preference store: %s environment variable not set", cfg.DSNEnv)
		}

		poolCfg, err := pgxpool.ParseConfig(dsn)
		if err != nil {
			return nil, nil, fmt.Errorf("preference store: parse DSN: %w", err)
		}
		poolCfg.MaxConns = int32(cfg.MaxOpenConns)
		poolCfg.MinConns = int32(cfg.MaxIdleConns)
		poolCfg.MaxConnLifetime = cfg.ConnMaxLifetime

		pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
		if err != nil {
			return nil, nil, fmt.Errorf("preference store: connect: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("preference store: ping: %w", err)
		}

		store := metadata.NewPgPreferenceStore(pool)
		if err := store.Migrate(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("preference store: %w", err)
		}
		return store, pool.Close, nil
	default:
		return nil, nil, fmt.Errorf("unsupported preference store driver: %q", cfg.Driver)
	}
}

// buildGate creates the capability gate from the static policy file, or
// returns nil when none is configured. The returned reload rereads the file
// and drops cached capability sets.
func buildGate(cfg config.CapabilityConfig, metrics *observability.Metrics) (*capability.Gate, func() error, error) {
	if cfg.StaticPolicyFile == "" {
		return nil, nil, nil
	}
	evaluator, err := capability.NewStaticPolicyEvaluator(cfg.StaticPolicyFile)
	if err != nil {
		return nil, nil, fmt.Errorf("static policy: %w", err)
	}
	resolver := capability.NewResolver(evaluator, cfg.Cache.TTL).WithRecorder(metrics)
	reload := func() error {
		if err := evaluator.Sync(); err != nil {
			return err
		}
		resolver.Purge()
		return nil
	}
	return capability.NewGate(resolver, evaluator), reload, nil
}
