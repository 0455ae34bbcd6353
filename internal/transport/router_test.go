package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/pitabwire/adminmeta/internal/adminmeta"
	"github.com/pitabwire/adminmeta/internal/config"
	"github.com/pitabwire/adminmeta/internal/observability"
	"github.com/pitabwire/adminmeta/model"
)

// testDeps returns Dependencies with sensible defaults for testing.
func testDeps() Dependencies {
	cfg := config.Defaults()
	cfg.Server.CORS.AllowedOrigins = []string{"https://app.example.com"}
	cfg.Server.HandlerTimeout = 5 * time.Second
	return Dependencies{
		Config:         cfg,
		MetricsHandler: observability.HandlerFor(prometheus.NewRegistry()),
	}
}

func rejectAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		WriteError(w, model.NewUnauthorizedError("rejected"))
	})
}

// --- Router tests ---

func TestNewRouter_health(t *testing.T) {
	r := NewRouter(testDeps())
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/admin/health", nil))

	if w.Code != 200 {
		t.Errorf("status = %d, want 200", w.Code)
	}
	var body map[string]string
	json.NewDecoder(w.Body).Decode(&body)
	if body["status"] != "ok" {
		t.Errorf("status = %q, want ok", body["status"])
	}
}

func TestNewRouter_ready(t *testing.T) {
	deps := testDeps()
	deps.ReadyHandler = observability.HandleReady(observability.ReadinessChecks{
		MetaBuilt: func() bool { return false },
	})
	r := NewRouter(deps)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/admin/ready", nil))

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503 before admin meta is built", w.Code)
	}
}

func TestNewRouter_metrics(t *testing.T) {
	r := NewRouter(testDeps())
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))

	if w.Code != 200 {
		t.Errorf("status = %d, want 200", w.Code)
	}
}

func TestNewRouter_authenticatedRoutes_areRegistered(t *testing.T) {
	// With auth rejecting all requests, all authenticated routes should
	// return 401, confirming they are registered and not 404/405.
	deps := testDeps()
	deps.Authenticate = rejectAuth
	r := NewRouter(deps)

	routes := []struct {
		method string
		path   string
	}{
		{"GET", "/admin/meta"},
		{"POST", "/admin/meta/reinit"},
		{"GET", "/admin/navigation"},
		{"GET", "/admin/lists/Post/items"},
		{"DELETE", "/admin/lists/Post/items"},
		{"DELETE", "/admin/lists/Post/view-state"},
		{"GET", "/admin/lists/User/options"},
		{"POST", "/admin/lists/Post/forms"},
		{"POST", "/admin/lists/Post/items/p1/forms"},
		{"DELETE", "/admin/lists/Post/items/p1"},
		{"GET", "/admin/lists/Post/items/p1/card"},
		{"GET", "/admin/forms/f-1"},
		{"PATCH", "/admin/forms/f-1"},
		{"DELETE", "/admin/forms/f-1"},
		{"POST", "/admin/forms/f-1/save"},
		{"GET", "/admin/forms/f-1/options/author"},
	}

	for _, tc := range routes {
		t.Run(tc.method+" "+tc.path, func(t *testing.T) {
			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(tc.method, tc.path, nil))
			if w.Code != 401 {
				t.Errorf("status = %d, want 401 (auth should reject)", w.Code)
			}
		})
	}
}

func TestNewRouter_publicRoutesbypassAuth(t *testing.T) {
	deps := testDeps()
	deps.Authenticate = rejectAuth
	r := NewRouter(deps)

	for _, path := range []string{"/admin/health", "/admin/ready", "/metrics"} {
		t.Run(path, func(t *testing.T) {
			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest("GET", path, nil))
			if w.Code != 200 {
				t.Errorf("status = %d, want 200 (should bypass auth)", w.Code)
			}
		})
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/admin/navigation", nil))
	if w.Code != 401 {
		t.Errorf("navigation status = %d, want 401 (auth should reject)", w.Code)
	}
}

// --- Middleware tests ---

func TestRecovery_catchesPanic(t *testing.T) {
	handler := Recovery(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("test panic")
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("GET", "/", nil))

	if w.Code != 500 {
		t.Errorf("status = %d, want 500 after panic", w.Code)
	}
}

func TestRecovery_passesThrough(t *testing.T) {
	handler := Recovery(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
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
		AllowedMethods: []string{"GET", "POST"},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:         3600,
	}

	handler := CORS(cfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
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
}

func TestCORS_disallowedOrigin(t *testing.T) {
	cfg := config.CORSConfig{
		AllowedOrigins: []string{"https://app.example.com"},
		AllowedMethods: []string{"GET"},
		AllowedHeaders: []string{"Authorization"},
	}

	called := false
	handler := CORS(cfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
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
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := CorrelationIDFrom(r.Context())
		if id == "" {
			t.Error("correlation ID should be generated")
		}
		w.WriteHeader(200)
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("GET", "/", nil))

	if got := w.Header().Get("X-Correlation-Id"); got == "" {
		t.Error("response should have X-Correlation-Id header")
	}
}

func TestRequestID_propagated(t *testing.T) {
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := CorrelationIDFrom(r.Context())
		if id != "test-corr-123" {
			t.Errorf("correlation ID = %q, want test-corr-123", id)
		}
		w.WriteHeader(200)
	}))

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("X-Correlation-Id", "test-corr-123")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if got := w.Header().Get("X-Correlation-Id"); got != "test-corr-123" {
		t.Errorf("response X-Correlation-Id = %q, want test-corr-123", got)
	}
}

func TestSecurityHeaders(t *testing.T) {
	handler := SecurityHeaders(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
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
	}

	handler := BuildRequestContextMiddleware(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rctx := model.RequestContextFrom(r.Context())
		if rctx == nil {
			t.Fatal("RequestContext should be in context")
		}
		if rctx.SubjectID != "user-42" {
			t.Errorf("SubjectID = %q, want user-42", rctx.SubjectID)
		}
		if rctx.TenantID != "tenant-1" {
			t.Errorf("TenantID = %q, want tenant-1", rctx.TenantID)
		}
		if rctx.Locale != "en-US" {
			t.Errorf("Locale = %q, want en-US", rctx.Locale)
		}
		if rctx.SessionID != "sess-1" {
			t.Errorf("SessionID = %q, want sess-1", rctx.SessionID)
		}
		if len(rctx.Roles) != 2 || rctx.Roles[0] != "admin" {
			t.Errorf("Roles = %v, want [admin viewer]", rctx.Roles)
		}
		w.WriteHeader(200)
	}))

	req := httptest.NewRequest("GET", "/", nil)
	req = req.WithContext(WithClaims(req.Context(), claims))
	req.Header.Set("X-Session-Id", "sess-1")
	req.Header.Set("Accept-Language", "en-US")

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
}

func TestBuildRequestContextMiddleware_customPaths(t *testing.T) {
	claims := map[string]any{
		"sub":   "user-99",
		"email": "user@keycloak.com",
		"realm_access": map[string]any{
			"roles": []any{"manager"},
		},
		"custom_tenant": "tenant-kc",
	}

	paths := map[string]string{
		"tenant_id": "custom_tenant",
		"roles":     "realm_access.roles",
	}

	handler := BuildRequestContextMiddleware(paths)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rctx := model.RequestContextFrom(r.Context())
		if rctx.TenantID != "tenant-kc" {
			t.Errorf("TenantID = %q, want tenant-kc", rctx.TenantID)
		}
		if len(rctx.Roles) != 1 || rctx.Roles[0] != "manager" {
			t.Errorf("Roles = %v, want [manager]", rctx.Roles)
		}
		w.WriteHeader(200)
	}))

	req := httptest.NewRequest("GET", "/", nil)
	req = req.WithContext(WithClaims(req.Context(), claims))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
}

func TestResolveCapabilities(t *testing.T) {
	resolver := &mockResolver{
		caps: model.CapabilitySet{"Post:read": true},
	}

	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caps := CapabilitiesFrom(r.Context())
		if !caps.CanList("Post", model.ActionRead) {
			t.Error("should have Post:read capability")
		}
		w.WriteHeader(200)
	})

	// Chain: BuildRequestContextMiddleware → ResolveCapabilities → handler
	handler := BuildRequestContextMiddleware(nil)(ResolveCapabilities(resolver, nil)(inner))

	claims := map[string]any{"sub": "user-1", "tenant_id": "t-1"}
	req := httptest.NewRequest("GET", "/", nil)
	req = req.WithContext(WithClaims(req.Context(), claims))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
}

func TestResolveCapabilities_nilResolver(t *testing.T) {
	handler := ResolveCapabilities(nil, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caps := CapabilitiesFrom(r.Context())
		if caps != nil {
			t.Errorf("caps should be nil, got %v", caps)
		}
		w.WriteHeader(200)
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("GET", "/", nil))
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

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("GET", "/", nil))
}

func TestHandlerTimeout_zeroNoDeadline(t *testing.T) {
	handler := HandlerTimeout(0)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, ok := r.Context().Deadline()
		if ok {
			t.Error("context should not have deadline when timeout is 0")
		}
		w.WriteHeader(200)
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("GET", "/", nil))
}

func TestRequestLogging_capturesStatus(t *testing.T) {
	handler := RequestLogging(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if observability.LoggerFrom(r.Context(), nil) == nil {
			t.Error("request logger should be in context")
		}
		w.WriteHeader(http.StatusTeapot)
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("GET", "/test", nil))

	if w.Code != http.StatusTeapot {
		t.Errorf("status = %d, want %d", w.Code, http.StatusTeapot)
	}
}

func TestResolveCapabilities_errorLeavesNoCapabilities(t *testing.T) {
	resolver := &mockResolver{err: errors.New("policy store down")}
	called := false
	handler := BuildRequestContextMiddleware(nil)(ResolveCapabilities(resolver, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		if caps := CapabilitiesFrom(r.Context()); len(caps) != 0 {
			t.Errorf("caps = %v, want none", caps)
		}
	})))

	req := httptest.NewRequest("GET", "/", nil)
	req = req.WithContext(WithClaims(req.Context(), map[string]any{"sub": "user-1"}))
	handler.ServeHTTP(httptest.NewRecorder(), req)
	if !called {
		t.Error("handler should still run")
	}
}

func TestMiddlewareOrder(t *testing.T) {
	var mu sync.Mutex
	var order []string
	record := func(name string) {
		mu.Lock()
		order = append(order, name)
		mu.Unlock()
	}

	deps := testDeps()
	deps.Authenticate = func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			record("authenticate")
			if CorrelationIDFrom(r.Context()) == "" {
				t.Error("correlation id should be set before authentication")
			}
			if model.RequestContextFrom(r.Context()) != nil {
				t.Error("request context should be built after authentication")
			}
			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), map[string]any{"sub": "user-1"})))
		})
	}
	deps.CapabilityResolver = &mockResolver{
		caps:    model.CapabilitySet{"Post:read": true},
		resolve: func(rctx *model.RequestContext) { record("capabilities:" + rctx.SubjectID) },
	}
	deps.Meta = &stubMeta{err: model.NewBackendUnavailableError(), hook: func(ctx context.Context) {
		record("handler")
		if _, ok := ctx.Deadline(); !ok {
			t.Error("handler should run under the handler timeout")
		}
	}}
	r := NewRouter(deps)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/admin/navigation", nil))

	if w.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", w.Code)
	}
	expected := []string{"authenticate", "capabilities:user-1", "handler"}
	if len(order) != len(expected) {
		t.Fatalf("order = %v, want %v", order, expected)
	}
	for i, name := range expected {
		if order[i] != name {
			t.Errorf("order[%d] = %q, want %q", i, order[i], name)
		}
	}
}

func TestSecurityHeaders_onHealth(t *testing.T) {
	r := NewRouter(testDeps())
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/admin/health", nil))

	// Security headers should be present even on health endpoint.
	if got := w.Header().Get("X-Frame-Options"); got != "DENY" {
		t.Errorf("X-Frame-Options = %q, want DENY", got)
	}
	if got := w.Header().Get("X-Correlation-Id"); got == "" {
		t.Error("health should still get X-Correlation-Id")
	}
}

// --- mocks ---

type mockResolver struct {
	caps    model.CapabilitySet
	err     error
	resolve func(*model.RequestContext)
}

func (m *mockResolver) Resolve(rctx *model.RequestContext) (model.CapabilitySet, error) {
	if m.resolve != nil {
		m.resolve(rctx)
	}
	return m.caps, m.err
}

func (m *mockResolver) Invalidate(_, _ string) {}

// stubMeta fails every metadata read with err.
type stubMeta struct {
	err  error
	hook func(context.Context)
}

func (s *stubMeta) Get(ctx context.Context) (*adminmeta.Meta, error) {
	if s.hook != nil {
		s.hook(ctx)
	}
	return nil, s.err
}

func (s *stubMeta) Reinit(ctx context.Context) (*adminmeta.Meta, error) {
	return s.Get(ctx)
}
