package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/gorm"
	"gorm.io/gorm/utils/tests"

	"github.com/pitabwire/vitrine/internal/cache"
	"github.com/pitabwire/vitrine/internal/card"
	"github.com/pitabwire/vitrine/internal/config"
	"github.com/pitabwire/vitrine/internal/dashboard"
	"github.com/pitabwire/vitrine/internal/filter"
	"github.com/pitabwire/vitrine/internal/menu"
	"github.com/pitabwire/vitrine/internal/metadata"
	"github.com/pitabwire/vitrine/internal/metric"
	"github.com/pitabwire/vitrine/internal/observability"
	"github.com/pitabwire/vitrine/internal/resource"
	"github.com/pitabwire/vitrine/model"
)

const (
	subjectHeader = "X-Test-Subject"
	rolesHeader   = "X-Test-Roles"
)

// headerAuth stands in for JWT verification: the subject and roles come
// from test headers.
func headerAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sub := r.Header.Get(subjectHeader)
		if sub == "" {
			next.ServeHTTP(w, r)
			return
		}
		claims := map[string]any{"sub": sub, "zoneinfo": "Europe/Berlin"}
		if roles := r.Header.Get(rolesHeader); roles != "" {
			var list []any
			for _, role := range strings.Split(roles, ",") {
				list = append(list, role)
			}
			claims["roles"] = list
		}
		next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
	})
}

func rejectAuth(http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		WriteError(w, model.NewUnauthorizedError("rejected"))
	})
}

func adminOnly(_ context.Context, req *model.Request) (bool, error) {
	return req.User != nil && req.User.HasRole("admin"), nil
}

func signedIn(_ context.Context, req *model.Request) (bool, error) {
	return req.Authenticated(), nil
}

type testEnv struct {
	deps    Dependencies
	metrics *observability.Metrics
	prefs   *metadata.MemoryPreferenceStore
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	cfg := config.Defaults()
	cfg.Server.CORS.AllowedOrigins = []string{"https://app.example.com"}
	cfg.Server.HandlerTimeout = 5 * time.Second

	orders := card.New("Orders").Loading(func(_ context.Context, req *model.Request) (any, error) {
		return map[string]any{"open": 3, "user": req.UserKey()}, nil
	})
	secret := card.New("Payroll").CanSee(adminOnly)

	mainDashboard := dashboard.New("Main", dashboard.Static(orders)).WithURIKey(dashboard.MainURIKey).CanSee(adminOnly)
	sales := dashboard.New("Sales", dashboard.Static(orders, secret)).WithIcon("chart").CanSee(signedIn)
	finance := dashboard.New("Finance", nil).CanSee(adminOnly)

	dashboards, err := dashboard.NewRegistry(mainDashboard, sales, finance)
	if err != nil {
		t.Fatalf("dashboard.NewRegistry: %v", err)
	}

	prefs := metadata.NewMemoryPreferenceStore()
	meta := metadata.NewManager(prefs)
	resolver := metric.NewResolver(cache.NewMemoryStore(0), metric.ResolverConfig{CacheEnabled: true, NoCacheParam: "no_cache"})
	assembler := dashboard.NewAssembler(dashboards, resolver, meta, zap.NewNop())

	status, err := filter.NewSelect("Status", "status", filter.Options(model.OptionDescriptor{Label: "Paid", Value: "paid"}))
	if err != nil {
		t.Fatalf("NewSelect: %v", err)
	}
	ordersResource, err := resource.New("Orders", "orders",
		resource.WithColumns(
			resource.Column{Field: "id", Sortable: true},
			resource.Column{Field: "status"},
		),
		resource.WithFilters(status),
	)
	if err != nil {
		t.Fatalf("resource.New: %v", err)
	}
	payroll, err := resource.New("Payroll", "payroll", resource.WithColumns(resource.Column{Field: "id"}))
	if err != nil {
		t.Fatalf("resource.New: %v", err)
	}
	payroll.CanSee(adminOnly)
	resources, err := resource.NewRegistry(ordersResource, payroll)
	if err != nil {
		t.Fatalf("resource.NewRegistry: %v", err)
	}

	db, err := gorm.Open(tests.DummyDialector{}, &gorm.Config{DryRun: true})
	if err != nil {
		t.Fatalf("gorm.Open: %v", err)
	}

	section, err := dashboard.MenuSection("Dashboards", dashboards.All())
	if err != nil {
		t.Fatalf("MenuSection: %v", err)
	}
	entries := []menu.Entry{section, ordersResource.MenuItem(), payroll.MenuItem()}

	metrics := observability.InitMetrics(prometheus.NewRegistry())
	return &testEnv{
		metrics: metrics,
		prefs:   prefs,
		deps: Dependencies{
			Config:       cfg,
			Logger:       zap.NewNop(),
			Metrics:      metrics,
			Authenticate: headerAuth,
			Dashboards:   assembler,
			Resources:    resources,
			DB:           db,
			Menu:         func() []menu.Entry { return entries },
			Metadata:     meta,
			Readiness: observability.ReadinessChecks{
				DashboardsLoaded: func() bool { return dashboards.Len() > 0 },
			},
		},
	}
}

func (e *testEnv) router() http.Handler {
	return NewRouter(e.deps)
}

func serve(h http.Handler, method, path, subject, roles string, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if subject != "" {
		req.Header.Set(subjectHeader, subject)
	}
	if roles != "" {
		req.Header.Set(rolesHeader, roles)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

// --- Router tests ---

func TestNewRouter_health(t *testing.T) {
	w := serve(newTestEnv(t).router(), "GET", "/health", "", "", "")

	if w.Code != 200 {
		t.Errorf("status = %d, want 200", w.Code)
	}
	var body observability.HealthResponse
	_ = json.NewDecoder(w.Body).Decode(&body)
	if body.Status != "ok" {
		t.Errorf("status = %q, want ok", body.Status)
	}
}

func TestNewRouter_ready(t *testing.T) {
	env := newTestEnv(t)
	if w := serve(env.router(), "GET", "/ready", "", "", ""); w.Code != 200 {
		t.Errorf("status = %d, want 200", w.Code)
	}

	env.deps.Readiness.DashboardsLoaded = func() bool { return false }
	if w := serve(env.router(), "GET", "/ready", "", "", ""); w.Code != 503 {
		t.Errorf("status = %d, want 503 without dashboards", w.Code)
	}
}

func TestNewRouter_metricsEndpoint(t *testing.T) {
	env := newTestEnv(t)
	if w := serve(env.router(), "GET", "/metrics", "", "", ""); w.Code != 200 {
		t.Errorf("status = %d, want 200", w.Code)
	}

	env.deps.Config.Observability.Metrics.Enabled = false
	if w := serve(env.router(), "GET", "/metrics", "", "", ""); w.Code != 404 {
		t.Errorf("status = %d, want 404 when metrics are disabled", w.Code)
	}
}

func TestNewRouter_authenticatedRoutesAreRegistered(t *testing.T) {
	env := newTestEnv(t)
	env.deps.Authenticate = rejectAuth
	r := env.router()

	routes := []struct {
		method string
		path   string
	}{
		{"GET", "/api/dashboards"},
		{"GET", "/api/dashboards/main"},
		{"GET", "/api/dashboards/main/cards/orders"},
		{"GET", "/api/navigation"},
		{"GET", "/api/resources/orders"},
		{"PUT", "/api/preferences/dashboard/main"},
		{"DELETE", "/api/preferences/dashboard/main"},
	}
	for _, tc := range routes {
		t.Run(tc.method+" "+tc.path, func(t *testing.T) {
			if w := serve(r, tc.method, tc.path, "", "", ""); w.Code != 401 {
				t.Errorf("status = %d, want 401 (auth should reject)", w.Code)
			}
		})
	}
}

func TestNewRouter_publicRoutesBypassAuth(t *testing.T) {
	env := newTestEnv(t)
	env.deps.Authenticate = rejectAuth
	r := env.router()

	for _, path := range []string{"/health", "/ready", "/metrics"} {
		t.Run(path, func(t *testing.T) {
			if w := serve(r, "GET", path, "", "", ""); w.Code != 200 {
				t.Errorf("status = %d, want 200 (should bypass auth)", w.Code)
			}
		})
	}
}

func TestNewRouter_recordsRoutePattern(t *testing.T) {
	env := newTestEnv(t)
	r := env.router()

	for _, key := range []string{"main", "sales"} {
		serve(r, "GET", "/api/dashboards/"+key, "u1", "admin", "")
	}

	v := testutil.ToFloat64(env.metrics.HTTPRequestsTotal.WithLabelValues("GET", "/api/dashboards/{uriKey}", "200"))
	if v != 2 {
		t.Errorf("requests = %v, want 2", v)
	}
}

func TestNewRouter_securityHeadersOnHealth(t *testing.T) {
	w := serve(newTestEnv(t).router(), "GET", "/health", "", "", "")
	if got := w.Header().Get("X-Frame-Options"); got != "DENY" {
		t.Errorf("X-Frame-Options = %q, want DENY", got)
	}
	if got := w.Header().Get(CorrelationHeader); got == "" {
		t.Error("health response should carry a correlation id")
	}
}

// --- Middleware tests ---

func TestRecovery_catchesPanic(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	handler := Recovery(zap.New(core))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("test panic")
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("GET", "/boom", nil))

	if w.Code != 500 {
		t.Errorf("status = %d, want 500 after panic", w.Code)
	}
	if logs.FilterMessage("panic recovered").Len() != 1 {
		t.Errorf("panic should be logged once, got %d", logs.Len())
	}
}

func TestRecovery_passesThrough(t *testing.T) {
	handler := Recovery(nil)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("GET", "/", nil))

	if w.Code != 200 {
		t.Errorf("status = %d, want 200", w.Code)
	}
}

func TestCORS_preflight(t *testing.T) {
	cfg := config.CORSConfig{
		AllowedOrigins: []string{"https://app.example.com"},
		AllowedMethods: []string{"GET", "PUT"},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:         3600,
	}

	handler := CORS(cfg)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Error("handler should not be called for preflight")
	}))

	req := httptest.NewRequest("OPTIONS", "/", nil)
	req.Header.Set("Origin", "https://app.example.com")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != 204 {
		t.Errorf("status = %d, want 204", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example.com" {
		t.Errorf("Allow-Origin = %q", got)
	}
	if got := w.Header().Get("Access-Control-Max-Age"); got != "3600" {
		t.Errorf("Max-Age = %q, want 3600", got)
	}
}

func TestCORS_disallowedOrigin(t *testing.T) {
	cfg := config.CORSConfig{
		AllowedOrigins: []string{"https://app.example.com"},
		AllowedMethods: []string{"GET"},
		AllowedHeaders: []string{"Authorization"},
	}

	called := false
	handler := CORS(cfg)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		called = true
		w.WriteHeader(200)
	}))

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if !called {
		t.Error("handler should still be called for non-preflight")
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("Allow-Origin should be empty for disallowed origin, got %q", got)
	}
}

func TestRequestID_generated(t *testing.T) {
	var seen string
	handler := RequestID(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = CorrelationIDFrom(r.Context())
		w.WriteHeader(200)
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("GET", "/", nil))

	if _, err := uuid.Parse(seen); err != nil {
		t.Errorf("correlation id %q is not a UUID: %v", seen, err)
	}
	if got := w.Header().Get(CorrelationHeader); got != seen {
		t.Errorf("response header = %q, want %q", got, seen)
	}
}

func TestRequestID_propagated(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	handler := RequestID(zap.New(core))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := CorrelationIDFrom(r.Context()); id != "test-corr-123" {
			t.Errorf("correlation ID = %q, want test-corr-123", id)
		}
		observability.LoggerFrom(r.Context(), nil).Info("inside")
		w.WriteHeader(200)
	}))

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set(CorrelationHeader, "test-corr-123")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if got := w.Header().Get(CorrelationHeader); got != "test-corr-123" {
		t.Errorf("response X-Correlation-Id = %q, want test-corr-123", got)
	}
	entries := logs.FilterMessage("inside").All()
	if len(entries) != 1 || entries[0].ContextMap()["correlation_id"] != "test-corr-123" {
		t.Errorf("context logger should carry the correlation id, got %+v", entries)
	}
}

func TestSecurityHeaders(t *testing.T) {
	handler := SecurityHeaders(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(200)
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("GET", "/", nil))

	expected := map[string]string{
		"Strict-Transport-Security": "max-age=31536000; includeSubDomains",
		"X-Content-Type-Options":    "nosniff",
		"X-Frame-Options":           "DENY",
		"X-XSS-Protection":          "0",
		"Cache-Control":             "no-store",
		"Referrer-Policy":           "strict-origin-when-cross-origin",
	}
	for header, want := range expected {
		if got := w.Header().Get(header); got != want {
			t.Errorf("%s = %q, want %q", header, got, want)
		}
	}
}

func TestBuildRequestContextMiddleware(t *testing.T) {
	claims := map[string]any{
		"sub":       "user-42",
		"email":     "user@example.com",
		"tenant_id": "tenant-1",
		"roles":     []any{"admin", "viewer"},
		"zoneinfo":  "Africa/Nairobi",
	}

	var got *model.RequestContext
	handler := BuildRequestContextMiddleware(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = model.RequestContextFrom(r.Context())
		w.WriteHeader(200)
	}))

	req := httptest.NewRequest("GET", "/", nil)
	req = req.WithContext(WithClaims(req.Context(), claims))
	req.Header.Set("Accept-Language", "en-GB;q=0.8, sw-KE")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if got == nil {
		t.Fatal("RequestContext should be in context")
	}
	if got.SubjectID != "user-42" || got.TenantID != "tenant-1" || got.Email != "user@example.com" {
		t.Errorf("identity = %+v", got)
	}
	if len(got.Roles) != 2 || got.Roles[0] != "admin" {
		t.Errorf("Roles = %v, want [admin viewer]", got.Roles)
	}
	if got.Timezone != "Africa/Nairobi" {
		t.Errorf("Timezone = %q, want the claim value", got.Timezone)
	}
	if got.Locale != "sw-KE" {
		t.Errorf("Locale = %q, want sw-KE", got.Locale)
	}
}

func TestBuildRequestContextMiddleware_customPaths(t *testing.T) {
	claims := map[string]any{
		"sub": "user-99",
		"realm_access": map[string]any{
			"roles": []any{"manager"},
		},
		"custom_tenant": "tenant-kc",
	}
	paths := map[string]string{
		"tenant_id": "custom_tenant",
		"roles":     "realm_access.roles",
	}

	var got *model.RequestContext
	handler := BuildRequestContextMiddleware(paths)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = model.RequestContextFrom(r.Context())
		w.WriteHeader(200)
	}))

	req := httptest.NewRequest("GET", "/", nil)
	req = req.WithContext(WithClaims(req.Context(), claims))
	req.Header.Set(TimezoneHeader, "America/Lima")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if got.TenantID != "tenant-kc" {
		t.Errorf("TenantID = %q, want tenant-kc", got.TenantID)
	}
	if len(got.Roles) != 1 || got.Roles[0] != "manager" {
		t.Errorf("Roles = %v, want [manager]", got.Roles)
	}
	if got.Timezone != "America/Lima" {
		t.Errorf("Timezone = %q, header should win", got.Timezone)
	}
}

func TestBuildRequestContextMiddleware_guest(t *testing.T) {
	called := false
	handler := BuildRequestContextMiddleware(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		if model.RequestContextFrom(r.Context()) != nil {
			t.Error("guests should have no RequestContext")
		}
		w.WriteHeader(200)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))
	if !called {
		t.Error("guest request should reach the handler")
	}
}

func TestBuildRequestContextMiddleware_missingSubject(t *testing.T) {
	handler := BuildRequestContextMiddleware(nil)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Error("handler should not be called without a subject")
	}))

	req := httptest.NewRequest("GET", "/", nil)
	req = req.WithContext(WithClaims(req.Context(), map[string]any{"email": "a@b.c"}))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != 401 {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestHandlerTimeout_setsDeadline(t *testing.T) {
	handler := HandlerTimeout(100 * time.Millisecond)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		deadline, ok := r.Context().Deadline()
		if !ok {
			t.Error("context should have deadline")
		}
		if time.Until(deadline) > 200*time.Millisecond {
			t.Error("deadline should be within 200ms")
		}
		w.WriteHeader(200)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))
}

func TestHandlerTimeout_zeroNoDeadline(t *testing.T) {
	handler := HandlerTimeout(0)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := r.Context().Deadline(); ok {
			t.Error("context should not have deadline when timeout is 0")
		}
		w.WriteHeader(200)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))
}

func TestRequestLogging_levels(t *testing.T) {
	tests := []struct {
		status int
		level  zapcore.Level
	}{
		{http.StatusOK, zapcore.InfoLevel},
		{http.StatusTeapot, zapcore.WarnLevel},
		{http.StatusBadGateway, zapcore.ErrorLevel},
	}
	for _, tc := range tests {
		t.Run(http.StatusText(tc.status), func(t *testing.T) {
			core, logs := observer.New(zapcore.DebugLevel)
			handler := RequestLogging(zap.New(core))(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tc.status)
			}))

			w := httptest.NewRecorder()
			handler.ServeHTTP(w, httptest.NewRequest("GET", "/test", nil))

			if w.Code != tc.status {
				t.Errorf("status = %d, want %d", w.Code, tc.status)
			}
			entries := logs.FilterMessage("request").All()
			if len(entries) != 1 {
				t.Fatalf("entries = %d, want 1", len(entries))
			}
			if entries[0].Level != tc.level {
				t.Errorf("level = %v, want %v", entries[0].Level, tc.level)
			}
			if entries[0].ContextMap()["status"] != int64(tc.status) {
				t.Errorf("status field = %v", entries[0].ContextMap()["status"])
			}
		})
	}
}
