package observability

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"
)

// Build-time variables injected via ldflags.
var (
	Version = "dev"
	Commit  = "unknown"
)

// HealthResponse is the JSON response for the liveness endpoint.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Commit  string `json:"commit"`
}

// ReadinessResponse is the JSON response for the readiness endpoint.
type ReadinessResponse struct {
	Status string                 `json:"status"`
	Checks map[string]CheckResult `json:"checks"`
}

// CheckResult is the result of a single readiness check.
type CheckResult struct {
	Status    string `json:"status"`
	LatencyMs int64  `json:"latency_ms"`
	Error     string `json:"error,omitempty"`
}

// HealthChecker can verify its own health.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// ReadinessChecks holds the dependency checkers for the readiness endpoint.
type ReadinessChecks struct {
	// MetaBuilt always runs; the service is not ready until admin meta exists.
	MetaBuilt func() bool

	// Optional checks, skipped when nil.
	GraphQLAPI     HealthChecker
	ViewStateStore HealthChecker
	PolicyEngine   HealthChecker
}

const checkTimeout = 2 * time.Second

// HandleHealth returns an HTTP handler for the liveness endpoint.
func HandleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(HealthResponse{
			Status:  "ok",
			Version: Version,
			Commit:  Commit,
		})
	}
}

// HandleReady returns an HTTP handler for the readiness endpoint. Dependency
// checks run concurrently, each bounded by checkTimeout.
func HandleReady(checks ReadinessChecks) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		named := []struct {
			name    string
			checker HealthChecker
		}{
			{"graphql_api", checks.GraphQLAPI},
			{"view_state_store", checks.ViewStateStore},
			{"policy_engine", checks.PolicyEngine},
		}

		outcomes := make([]*CheckResult, len(named))
		var g errgroup.Group
		for i, n := range named {
			if n.checker == nil {
				continue
			}
			g.Go(func() error {
				res := runCheck(r.Context(), n.checker)
				outcomes[i] = &res
				return nil
			})
		}
		_ = g.Wait()

		results := map[string]CheckResult{"admin_meta": metaCheck(checks.MetaBuilt)}
		for i, n := range named {
			if outcomes[i] != nil {
				results[n.name] = *outcomes[i]
			}
		}

		resp := ReadinessResponse{Status: "ready", Checks: results}
		httpStatus := http.StatusOK
		for _, result := range results {
			if result.Status != "ok" {
				resp.Status = "not_ready"
				httpStatus = http.StatusServiceUnavailable
				break
			}
		}

		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(httpStatus)
		json.NewEncoder(w).Encode(resp)
	}
}

func metaCheck(built func() bool) CheckResult {
	if built != nil && built() {
		return CheckResult{Status: "ok"}
	}
	return CheckResult{Status: "error", Error: "admin meta has not been built"}
}

// runCheck executes a health check with a per-check timeout.
func runCheck(parent context.Context, checker HealthChecker) CheckResult {
	ctx, cancel := context.WithTimeout(parent, checkTimeout)
	defer cancel()

	start := time.Now()
	err := checker.HealthCheck(ctx)
	latency := time.Since(start).Milliseconds()

	if err != nil {
		return CheckResult{
			Status:    "error",
			LatencyMs: latency,
			Error:     err.Error(),
		}
	}
	return CheckResult{
		Status:    "ok",
		LatencyMs: latency,
	}
}
