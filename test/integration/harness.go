// Package integration runs the vitrine HTTP API end to end: definitions
// loaded from disk, capabilities from a static policy file, tokens signed
// by a test issuer and verified through its JWKS endpoint.
package integration

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
	"gorm.io/gorm/utils/tests"

	"github.com/pitabwire/vitrine/internal/cache"
	"github.com/pitabwire/vitrine/internal/capability"
	"github.com/pitabwire/vitrine/internal/card"
	"github.com/pitabwire/vitrine/internal/config"
	"github.com/pitabwire/vitrine/internal/dashboard"
	"github.com/pitabwire/vitrine/internal/definition"
	"github.com/pitabwire/vitrine/internal/menu"
	"github.com/pitabwire/vitrine/internal/metadata"
	"github.com/pitabwire/vitrine/internal/metric"
	"github.com/pitabwire/vitrine/internal/resource"
	"github.com/pitabwire/vitrine/internal/transport"
)

// TestHarness is a fully wired vitrine server.
type TestHarness struct {
	t      *testing.T
	server *httptest.Server
	issuer *tokenIssuer

	Dashboards *dashboard.Registry
	Resources  *resource.Registry
}

// HarnessOption configures the test harness.
type HarnessOption func(*harnessConfig)

type harnessConfig struct {
	allowGuests    bool
	handlerTimeout time.Duration
}

// WithGuests lets requests without a bearer token through.
func WithGuests() HarnessOption {
	return func(c *harnessConfig) { c.allowGuests = true }
}

// NewTestHarness builds the server and registers its cleanup on t.
func NewTestHarness(t *testing.T, opts ...HarnessOption) *TestHarness {
	t.Helper()

	hc := &harnessConfig{handlerTimeout: 5 * time.Second}
	for _, opt := range opts {
		opt(hc)
	}

	logger := zaptest.NewLogger(t, zaptest.Level(zap.WarnLevel))

	db, err := gorm.Open(tests.DummyDialector{}, &gorm.Config{DryRun: true})
	if err != nil {
		t.Fatalf("open database: %v", err)
	}

	evaluator, err := capability.NewStaticPolicyEvaluator(filepath.Join(testdataDir(), "policies.yaml"))
	if err != nil {
		t.Fatalf("load policy file: %v", err)
	}
	gate := capability.NewGate(capability.NewResolver(evaluator, 0), evaluator)

	store := cache.NewMemoryStore(0)
	meta := metadata.NewManager(metadata.NewMemoryPreferenceStore())

	defs, err := definition.NewLoader(false).LoadAll([]string{filepath.Join(testdataDir(), "definitions")})
	if err != nil {
		t.Fatalf("load definitions: %v", err)
	}
	cards := card.NewRegistry()
	if err := cards.RegisterCard(card.NewHelp("Welcome", "Support desk overview")); err != nil {
		t.Fatalf("register help card: %v", err)
	}
	if errs, _ := definition.NewValidator(cards.Keys()...).Validate(defs); len(errs) > 0 {
		t.Fatalf("definitions invalid: %v", errs)
	}
	built, err := definition.NewBuilder(db, cards,
		definition.WithGate(gate),
		definition.WithMetadata(meta),
		definition.WithAuthCache(store, time.Minute),
		definition.WithLogger(logger),
	).Build(defs)
	if err != nil {
		t.Fatalf("build definitions: %v", err)
	}

	h := &TestHarness{t: t, issuer: newTokenIssuer(t)}
	if h.Dashboards, err = dashboard.NewRegistry(built.Dashboards...); err != nil {
		t.Fatalf("dashboard registry: %v", err)
	}
	if h.Resources, err = resource.NewRegistry(built.Resources...); err != nil {
		t.Fatalf("resource registry: %v", err)
	}

	resolver := metric.NewResolver(store, metric.ResolverConfig{CacheEnabled: true, NoCacheParam: "nocache"})
	assembler := dashboard.NewAssembler(h.Dashboards, resolver, meta, logger)

	cfg := &config.Config{
		Server: config.ServerConfig{
			HandlerTimeout: hc.handlerTimeout,
			CORS: config.CORSConfig{
				AllowedOrigins: []string{"http://localhost:3000"},
				AllowedMethods: []string{"GET", "PUT", "DELETE", "OPTIONS"},
				AllowedHeaders: []string{"Authorization", "Content-Type", "X-Correlation-Id", "X-Timezone"},
				MaxAge:         86400,
			},
		},
		Identity: config.IdentityConfig{
			Issuer:      h.issuer.Issuer(),
			Audience:    h.issuer.Audience(),
			JWKSURL:     h.issuer.JWKSURL(),
			Algorithms:  []string{"RS256"},
			AllowGuests: hc.allowGuests,
		},
		Database: config.DatabaseConfig{QueryTimeout: 5 * time.Second},
	}

	jwks := transport.NewJWKSClient(cfg.Identity.JWKSURL, time.Hour, logger)
	entries := built.Menu
	router := transport.NewRouter(transport.Dependencies{
		Config:       cfg,
		Logger:       logger,
		Authenticate: transport.JWTAuthenticator(cfg.Identity, jwks, logger),
		Dashboards:   assembler,
		Resources:    h.Resources,
		DB:           db,
		Menu:         func() []menu.Entry { return entries },
		Metadata:     meta,
	})

	h.server = httptest.NewServer(router)
	t.Cleanup(h.server.Close)
	return h
}

// GenerateToken signs a valid token for claims.
func (h *TestHarness) GenerateToken(claims TestClaims) string {
	return h.issuer.GenerateToken(claims)
}

// GenerateExpiredToken signs a token that expired an hour ago.
func (h *TestHarness) GenerateExpiredToken(claims TestClaims) string {
	return h.issuer.GenerateExpiredToken(claims)
}

// GET performs a request with an optional bearer token.
func (h *TestHarness) GET(path, token string) *http.Response {
	h.t.Helper()
	return h.do(http.MethodGet, path, "", token)
}

// PUT sends body as JSON.
func (h *TestHarness) PUT(path, body, token string) *http.Response {
	h.t.Helper()
	return h.do(http.MethodPut, path, body, token)
}

// DELETE performs a delete request.
func (h *TestHarness) DELETE(path, token string) *http.Response {
	h.t.Helper()
	return h.do(http.MethodDelete, path, "", token)
}

func (h *TestHarness) do(method, path, body, token string) *http.Response {
	h.t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequestWithContext(context.Background(), method, h.server.URL+path, reader)
	if err != nil {
		h.t.Fatalf("create request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := h.server.Client().Do(req)
	if err != nil {
		h.t.Fatalf("%s %s: %v", method, path, err)
	}
	return resp
}

// AssertStatus checks the status code and closes the body.
func (h *TestHarness) AssertStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	defer resp.Body.Close()
	if resp.StatusCode != want {
		body, _ := io.ReadAll(resp.Body)
		t.Errorf("status = %d, want %d\nbody: %s", resp.StatusCode, want, body)
	}
}

// AssertJSON checks the status code and decodes the body into target.
func (h *TestHarness) AssertJSON(t *testing.T, resp *http.Response, want int, target any) {
	t.Helper()
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if resp.StatusCode != want {
		t.Fatalf("status = %d, want %d\nbody: %s", resp.StatusCode, want, body)
	}
	if err := json.Unmarshal(body, target); err != nil {
		t.Fatalf("decode body: %v\nbody: %s", err, body)
	}
}

// AgentClaims returns claims for a support agent.
func AgentClaims() TestClaims {
	return TestClaims{
		SubjectID: "user-agent",
		TenantID:  "acme-corp",
		Email:     "agent@acme.example.com",
		Roles:     []string{"agent"},
	}
}

// AuditorClaims returns claims for a user who may browse tickets but not
// the support dashboard.
func AuditorClaims() TestClaims {
	return TestClaims{
		SubjectID: "user-auditor",
		TenantID:  "acme-corp",
		Email:     "auditor@acme.example.com",
		Roles:     []string{"auditor"},
	}
}

func testdataDir() string {
	_, file, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(file), "testdata")
}
