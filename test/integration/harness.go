// Package integration provides a reusable test harness for end-to-end
// testing of the admin API. It starts the full HTTP server against a mock
// GraphQL API, an in-memory view state store, and a test JWT issuer.
package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/pitabwire/adminmeta/internal/adminmeta"
	"github.com/pitabwire/adminmeta/internal/capability"
	"github.com/pitabwire/adminmeta/internal/config"
	"github.com/pitabwire/adminmeta/internal/graphql"
	"github.com/pitabwire/adminmeta/internal/itemview"
	"github.com/pitabwire/adminmeta/internal/listview"
	"github.com/pitabwire/adminmeta/internal/observability"
	"github.com/pitabwire/adminmeta/internal/relationship"
	"github.com/pitabwire/adminmeta/internal/transport"
	"github.com/pitabwire/adminmeta/internal/views"
	"github.com/pitabwire/adminmeta/internal/viewstate"
	"github.com/pitabwire/adminmeta/model"
)

// TestHarness is a fully wired admin API with a mock GraphQL backend.
type TestHarness struct {
	t      *testing.T
	server *httptest.Server
	issuer *tokenIssuer
	api    *MockAPI

	// Internal components exposed for advanced test scenarios.
	Config    *config.Config
	Client    *graphql.Client
	Meta      *adminmeta.Provider
	ViewState *viewstate.MemoryStore
	Resolver  *capability.Resolver
	Registry  *prometheus.Registry
}

// HarnessOption configures the test harness.
type HarnessOption func(*harnessConfig)

type harnessConfig struct {
	posts          int
	policyFile     string
	lazyMeta       bool
	handlerTimeout time.Duration
	breaker        config.CircuitBreakerConfig
	retry          config.RetryConfig
}

// WithPosts sets the number of posts the mock API starts with.
func WithPosts(n int) HarnessOption {
	return func(c *harnessConfig) {
		c.posts = n
	}
}

// WithPolicyFile sets the static policy YAML file.
func WithPolicyFile(path string) HarnessOption {
	return func(c *harnessConfig) {
		c.policyFile = path
	}
}

// WithLazyMeta leaves the metadata unbuilt until the first request.
func WithLazyMeta() HarnessOption {
	return func(c *harnessConfig) {
		c.lazyMeta = true
	}
}

// WithHandlerTimeout sets the per-request handler timeout.
func WithHandlerTimeout(d time.Duration) HarnessOption {
	return func(c *harnessConfig) {
		c.handlerTimeout = d
	}
}

// WithCircuitBreaker sets the GraphQL client's circuit breaker.
func WithCircuitBreaker(cb config.CircuitBreakerConfig) HarnessOption {
	return func(c *harnessConfig) {
		c.breaker = cb
	}
}

// WithRetry sets the GraphQL client's query retry policy.
func WithRetry(r config.RetryConfig) HarnessOption {
	return func(c *harnessConfig) {
		c.retry = r
	}
}

// NewTestHarness creates and starts a full admin API instance. The server
// is closed when the test completes.
func NewTestHarness(t *testing.T, opts ...HarnessOption) *TestHarness {
	t.Helper()

	hc := &harnessConfig{
		posts:          3,
		policyFile:     filepath.Join(testdataDir(), "policies.yaml"),
		handlerTimeout: 10 * time.Second,
		breaker: config.CircuitBreakerConfig{
			FailureThreshold: 50,
			SuccessThreshold: 1,
			Timeout:          30 * time.Second,
		},
		retry: config.RetryConfig{MaxAttempts: 1},
	}
	for _, opt := range opts {
		opt(hc)
	}

	h := &TestHarness{t: t}

	// Step 1: Mock GraphQL API serving the blog metadata.
	h.api = newMockAPI(t, metaSnapshot(), hc.posts)

	// Step 2: JWT issuer.
	h.issuer = newTokenIssuer(t)

	// Step 3: Config.
	cfg := config.Defaults()
	cfg.Server.HandlerTimeout = hc.handlerTimeout
	cfg.Server.CORS.AllowedOrigins = []string{"http://localhost:3000"}
	cfg.Identity.Issuer = h.issuer.Issuer()
	cfg.Identity.Audience = h.issuer.Audience()
	cfg.Identity.JWKSURL = h.issuer.JWKSURL()
	cfg.Identity.Algorithms = h.issuer.Algorithms()
	cfg.GraphQL.Endpoint = h.api.URL()
	cfg.GraphQL.Timeout = 5 * time.Second
	cfg.GraphQL.CircuitBreaker = hc.breaker
	cfg.GraphQL.Retry = hc.retry
	cfg.Capability.StaticPolicyFile = hc.policyFile
	cfg.Capability.Cache.TTL = 0 // no caching in tests
	h.Config = cfg

	// Step 4: Metrics on a private registry.
	h.Registry = prometheus.NewRegistry()
	metrics := observability.InitMetrics(h.Registry)
	logger := zap.NewNop()

	// Step 5: GraphQL client and metadata.
	h.Client = graphql.NewClient(cfg.GraphQL, graphql.WithMetrics(metrics), graphql.WithLogger(logger))
	registry, err := views.FromNames(cfg.Meta.Views, nil)
	if err != nil {
		t.Fatalf("view registry: %v", err)
	}
	h.Meta = adminmeta.NewProvider(adminmeta.NewGraphQLSource(h.Client), registry, metrics, logger)
	if !hc.lazyMeta {
		if _, err := h.Meta.Get(context.Background()); err != nil {
			t.Fatalf("build admin meta: %v", err)
		}
	}

	// Step 6: Capabilities.
	evaluator, err := capability.NewEvaluator(cfg.Capability)
	if err != nil {
		t.Fatalf("load policy file: %v", err)
	}
	h.Resolver = capability.NewResolver(evaluator, cfg.Capability.Cache)

	// Step 7: Engines and stores.
	h.ViewState = viewstate.NewMemoryStore()
	mirror := viewstate.NewMirror(h.ViewState, "memory", cfg.ViewState.TTL, metrics, logger)
	labels := relationship.NewLabels(h.Client, cfg.Relationship.Cache.TTL, cfg.Relationship.Cache.MaxEntries, metrics, logger)
	lists := listview.NewEngine(h.Client, labels, metrics, logger)
	items := itemview.NewEngine(h.Client, itemview.NewSessionStore(cfg.Forms, metrics), metrics, logger)

	// Step 8: Router with the full middleware chain.
	jwks := transport.NewJWKSClient(h.issuer.JWKSURL(), time.Hour)
	router := transport.NewRouter(transport.Dependencies{
		Config:             cfg,
		Logger:             logger,
		Authenticate:       transport.JWTAuthenticator(cfg.Identity, jwks),
		CapabilityResolver: h.Resolver,
		Meta:               h.Meta,
		Lists:              lists,
		Items:              items,
		ViewState:          mirror,
		Exec:               h.Client,
		Metrics:            metrics,
		HealthHandler:      observability.HandleHealth(),
		ReadyHandler: observability.HandleReady(observability.ReadinessChecks{
			MetaBuilt:      h.Meta.Built,
			GraphQLAPI:     h.Client,
			ViewStateStore: mirror,
		}),
		MetricsHandler: observability.HandlerFor(h.Registry),
	})

	// Step 9: Test server.
	h.server = httptest.NewServer(router)
	t.Cleanup(h.server.Close)

	return h
}

// BaseURL returns the test server's base URL.
func (h *TestHarness) BaseURL() string {
	return h.server.URL
}

// API returns the mock GraphQL API.
func (h *TestHarness) API() *MockAPI {
	return h.api
}

// GenerateToken creates a valid JWT token with the given claims.
func (h *TestHarness) GenerateToken(claims TestClaims) string {
	return h.issuer.GenerateToken(claims)
}

// GenerateExpiredToken creates a JWT that has already expired.
func (h *TestHarness) GenerateExpiredToken(claims TestClaims) string {
	return h.issuer.GenerateExpiredToken(claims)
}

// --- HTTP client helpers ---

// GET performs an authenticated GET request.
func (h *TestHarness) GET(path, token string) *http.Response {
	h.t.Helper()
	return h.doRequest(http.MethodGet, path, nil, token, nil)
}

// GETWithHeaders performs an authenticated GET request with additional headers.
func (h *TestHarness) GETWithHeaders(path, token string, headers map[string]string) *http.Response {
	h.t.Helper()
	return h.doRequest(http.MethodGet, path, nil, token, headers)
}

// POST performs an authenticated POST request with a JSON body.
func (h *TestHarness) POST(path string, body any, token string) *http.Response {
	h.t.Helper()
	return h.doRequest(http.MethodPost, path, body, token, nil)
}

// PATCH performs an authenticated PATCH request with a JSON body.
func (h *TestHarness) PATCH(path string, body any, token string) *http.Response {
	h.t.Helper()
	return h.doRequest(http.MethodPatch, path, body, token, nil)
}

// DELETE performs an authenticated DELETE request with an optional JSON body.
func (h *TestHarness) DELETE(path string, body any, token string) *http.Response {
	h.t.Helper()
	return h.doRequest(http.MethodDelete, path, body, token, nil)
}

func (h *TestHarness) doRequest(method, path string, body any, token string, headers map[string]string) *http.Response {
	h.t.Helper()

	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			h.t.Fatalf("marshal request body: %v", err)
		}
		bodyReader = strings.NewReader(string(data))
	}

	req, err := http.NewRequestWithContext(context.Background(), method, h.server.URL+path, bodyReader)
	if err != nil {
		h.t.Fatalf("create request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		h.t.Fatalf("%s %s failed: %v", method, path, err)
	}
	return resp
}

// ParseJSON reads the response body and unmarshals it into the target.
func (h *TestHarness) ParseJSON(resp *http.Response, target any) {
	h.t.Helper()
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		h.t.Fatalf("read response body: %v", err)
	}
	if err := json.Unmarshal(data, target); err != nil {
		h.t.Fatalf("unmarshal response body: %v\nbody: %s", err, string(data))
	}
}

// ReadBody reads and returns the response body as bytes.
func (h *TestHarness) ReadBody(resp *http.Response) []byte {
	h.t.Helper()
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		h.t.Fatalf("read response body: %v", err)
	}
	return data
}

// AssertStatus checks the status code and closes the body.
func (h *TestHarness) AssertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	defer resp.Body.Close()
	if resp.StatusCode != expected {
		body, _ := io.ReadAll(resp.Body)
		t.Errorf("status = %d, want %d\nbody: %s", resp.StatusCode, expected, string(body))
	}
}

// AssertJSON checks that the response has the expected status and parses the body.
func (h *TestHarness) AssertJSON(t *testing.T, resp *http.Response, expected int, target any) {
	t.Helper()
	if resp.StatusCode != expected {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		t.Fatalf("status = %d, want %d\nbody: %s", resp.StatusCode, expected, string(body))
	}
	h.ParseJSON(resp, target)
}

// AssertError checks status and error code of an error response.
func (h *TestHarness) AssertError(t *testing.T, resp *http.Response, status int, code string) model.ErrorEnvelope {
	t.Helper()
	var body struct {
		Error model.ErrorEnvelope `json:"error"`
	}
	h.AssertJSON(t, resp, status, &body)
	if body.Error.Code != code {
		t.Errorf("error code = %q, want %q (message %q)", body.Error.Code, code, body.Error.Message)
	}
	return body.Error
}

// --- Default test claims ---

// ViewerClaims returns TestClaims for a content_viewer user.
func ViewerClaims() TestClaims {
	return TestClaims{
		SubjectID: "user-viewer",
		TenantID:  "acme-corp",
		Email:     "viewer@acme.example.com",
		Roles:     []string{"content_viewer"},
	}
}

// EditorClaims returns TestClaims for a content_editor user.
func EditorClaims() TestClaims {
	return TestClaims{
		SubjectID: "user-editor",
		TenantID:  "acme-corp",
		Email:     "editor@acme.example.com",
		Roles:     []string{"content_editor"},
	}
}

// AdminClaims returns TestClaims for a content_admin user.
func AdminClaims() TestClaims {
	return TestClaims{
		SubjectID: "user-admin",
		TenantID:  "acme-corp",
		Email:     "admin@acme.example.com",
		Roles:     []string{"content_admin"},
	}
}

// --- Helpers ---

// testdataDir returns the absolute path to the testdata directory.
func testdataDir() string {
	_, file, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(file), "testdata")
}

// metaSnapshot returns the blog metadata shared with the adminmeta tests.
func metaSnapshot() string {
	_, file, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(file), "..", "..", "internal", "adminmeta", "testdata", "blog.json")
}

// PostFixture returns a post as the API stores it.
func PostFixture(id, title string) map[string]any {
	return map[string]any{
		"id":        id,
		"title":     title,
		"status":    "draft",
		"published": false,
		"views":     0,
		"publishAt": nil,
		"author":    map[string]any{"id": "u1", "label": "Ann"},
		"tags":      []any{},
		"excerpt":   "",
	}
}

// FormatJSON converts a value to indented JSON for test output.
func FormatJSON(v any) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}
