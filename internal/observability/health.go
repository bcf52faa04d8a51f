package observability

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// Build-time variables injected via ldflags.
var (
	Version = "dev"
	Commit  = "unknown"
)

// HealthResponse is the body of the liveness endpoint.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Commit  string `json:"commit"`
}

// ReadinessResponse is the body of the readiness endpoint.
type ReadinessResponse struct {
	Status string                 `json:"status"`
	Checks map[string]CheckResult `json:"checks"`
}

// CheckResult is the outcome of one readiness check.
type CheckResult struct {
	Status    string `json:"status"`
	LatencyMs int64  `json:"latency_ms"`
	Error     string `json:"error,omitempty"`
}

// HealthChecker can verify its own health.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// ReadinessChecks lists what the readiness endpoint verifies. Nil
// checkers are skipped; DashboardsLoaded is always checked.
type ReadinessChecks struct {
	DashboardsLoaded func() bool

	CacheStore      HealthChecker
	PreferenceStore HealthChecker
	Database        HealthChecker
}

const checkTimeout = 2 * time.Second

// HandleHealth serves the liveness endpoint.
func HandleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, HealthResponse{
			Status:  "ok",
			Version: Version,
			Commit:  Commit,
		})
	}
}

// HandleReady serves the readiness endpoint. Checks run concurrently, each
// bounded by its own timeout.
func HandleReady(checks ReadinessChecks) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		results := make(map[string]CheckResult)
		var mu sync.Mutex
		var wg sync.WaitGroup

		run := func(name string, fn func() CheckResult) {
			wg.Add(1)
			go func() {
				defer wg.Done()
				res := fn()
				mu.Lock()
				results[name] = res
				mu.Unlock()
			}()
		}

		run("dashboards", func() CheckResult {
			if checks.DashboardsLoaded != nil && checks.DashboardsLoaded() {
				return CheckResult{Status: "ok"}
			}
			return CheckResult{Status: "error", Error: "no dashboards registered"}
		})
		for name, checker := range map[string]HealthChecker{
			"cache_store":      checks.CacheStore,
			"preference_store": checks.PreferenceStore,
			"database":         checks.Database,
		} {
			if checker == nil {
				continue
			}
			run(name, func() CheckResult { return runCheck(r.Context(), checker) })
		}

		wg.Wait()

		status, code := "ready", http.StatusOK
		for _, res := range results {
			if res.Status != "ok" {
				status, code = "not_ready", http.StatusServiceUnavailable
				break
			}
		}
		writeJSON(w, code, ReadinessResponse{Status: status, Checks: results})
	}
}

func runCheck(parent context.Context, checker HealthChecker) CheckResult {
	ctx, cancel := context.WithTimeout(parent, checkTimeout)
	defer cancel()

	start := time.Now()
	err := checker.HealthCheck(ctx)
	res := CheckResult{Status: "ok", LatencyMs: time.Since(start).Milliseconds()}
	if err != nil {
		res.Status = "error"
		res.Error = err.Error()
	}
	return res
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
