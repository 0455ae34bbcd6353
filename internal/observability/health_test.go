package observability

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

type stubChecker struct {
	err   error
	delay time.Duration
}

func (s stubChecker) HealthCheck(ctx context.Context) error {
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return s.err
}

func serveReady(t *testing.T, checks ReadinessChecks) (int, ReadinessResponse) {
	t.Helper()
	rec := httptest.NewRecorder()
	HandleReady(checks).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/ready", nil))
	var resp ReadinessResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	return rec.Code, resp
}

func TestHandleHealth_returnsOK(t *testing.T) {
	origVersion, origCommit := Version, Commit
	Version = "1.2.3"
	Commit = "abc1234"
	t.Cleanup(func() {
		Version = origVersion
		Commit = origCommit
	})

	rec := httptest.NewRecorder()
	HandleHealth().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp HealthResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if resp.Status != "ok" || resp.Version != "1.2.3" || resp.Commit != "abc1234" {
		t.Errorf("response = %+v", resp)
	}
}

func TestHandleReady_metaBuilt(t *testing.T) {
	code, resp := serveReady(t, ReadinessChecks{MetaBuilt: func() bool { return true }})

	if code != http.StatusOK {
		t.Fatalf("status = %d, want 200", code)
	}
	if resp.Status != "ready" {
		t.Errorf("status = %q, want ready", resp.Status)
	}
	if len(resp.Checks) != 1 {
		t.Errorf("checks = %d, want only admin_meta", len(resp.Checks))
	}
}

func TestHandleReady_metaNotBuilt(t *testing.T) {
	for name, checks := range map[string]ReadinessChecks{
		"false": {MetaBuilt: func() bool { return false }},
		"nil":   {},
	} {
		t.Run(name, func(t *testing.T) {
			code, resp := serveReady(t, checks)
			if code != http.StatusServiceUnavailable {
				t.Fatalf("status = %d, want 503", code)
			}
			if resp.Checks["admin_meta"].Error == "" {
				t.Error("admin_meta check should carry an error")
			}
		})
	}
}

func TestHandleReady_optionalChecks(t *testing.T) {
	code, resp := serveReady(t, ReadinessChecks{
		MetaBuilt:      func() bool { return true },
		GraphQLAPI:     stubChecker{},
		ViewStateStore: stubChecker{},
		PolicyEngine:   stubChecker{},
	})

	if code != http.StatusOK {
		t.Fatalf("status = %d, want 200", code)
	}
	for _, name := range []string{"admin_meta", "graphql_api", "view_state_store", "policy_engine"} {
		if resp.Checks[name].Status != "ok" {
			t.Errorf("%s = %q, want ok", name, resp.Checks[name].Status)
		}
	}
}

func TestHandleReady_viewStateStoreDown(t *testing.T) {
	code, resp := serveReady(t, ReadinessChecks{
		MetaBuilt:      func() bool { return true },
		ViewStateStore: stubChecker{err: errors.New("redis: connection refused")},
	})

	if code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", code)
	}
	if resp.Status != "not_ready" {
		t.Errorf("status = %q, want not_ready", resp.Status)
	}
	check := resp.Checks["view_state_store"]
	if check.Status != "error" || check.Error != "redis: connection refused" {
		t.Errorf("view_state_store = %+v", check)
	}
}

func TestRunCheck_timesOut(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	result := runCheck(ctx, stubChecker{delay: time.Second})
	if result.Status != "error" {
		t.Errorf("status = %q, want error", result.Status)
	}
}
