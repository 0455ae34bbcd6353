// Package graphql is the transport to the GraphQL API that owns the admin
// metadata and content. It sends POST {query, variables} requests, returns
// data and errors together, and guards the API with a circuit breaker.
package graphql

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pitabwire/adminmeta/internal/config"
	"github.com/pitabwire/adminmeta/internal/observability"
	"github.com/pitabwire/adminmeta/model"
)

const maxResponseBytes = 10 << 20

// Request is a GraphQL operation with its variables.
type Request struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

// Error is one entry of a GraphQL response's errors array.
type Error struct {
	Message    string         `json:"message"`
	Path       []any          `json:"path,omitempty"`
	Extensions map[string]any `json:"extensions,omitempty"`
}

func (e Error) Error() string {
	if len(e.Path) == 0 {
		return e.Message
	}
	parts := make([]string, len(e.Path))
	for i, p := range e.Path {
		parts[i] = fmt.Sprint(p)
	}
	return strings.Join(parts, ".") + ": " + e.Message
}

// TopLevel reports whether the error belongs to a whole root field, such as
// a failed mutation, rather than to one field of a returned item.
func (e Error) TopLevel() bool {
	return len(e.Path) <= 1
}

// Under reports whether the error path starts with prefix. Numeric segments
// compare by value, so Under("items", 0) matches a decoded path of
// ["items", 0.0, "title"].
func (e Error) Under(prefix ...any) bool {
	if len(e.Path) < len(prefix) {
		return false
	}
	for i, p := range prefix {
		if fmt.Sprint(e.Path[i]) != fmt.Sprint(p) {
			return false
		}
	}
	return true
}

// Response is a decoded GraphQL response. Data and Errors may both be set.
type Response struct {
	Data   json.RawMessage `json:"data"`
	Errors []Error         `json:"errors,omitempty"`
}

// Decode unmarshals the data member into v.
func (r *Response) Decode(v any) error {
	if len(r.Data) == 0 || string(r.Data) == "null" {
		return errors.New("graphql: response has no data")
	}
	if err := json.Unmarshal(r.Data, v); err != nil {
		return fmt.Errorf("graphql: decode data: %w", err)
	}
	return nil
}

// TopLevelErrors returns errors whose path has at most one element.
func (r *Response) TopLevelErrors() []Error {
	var out []Error
	for _, e := range r.Errors {
		if e.TopLevel() {
			out = append(out, e)
		}
	}
	return out
}

// ErrorsUnder returns the errors whose path starts with prefix.
func (r *Response) ErrorsUnder(prefix ...any) []Error {
	var out []Error
	for _, e := range r.Errors {
		if e.Under(prefix...) {
			out = append(out, e)
		}
	}
	return out
}

// Messages returns the message of each error.
func Messages(errs []Error) []string {
	out := make([]string, len(errs))
	for i, e := range errs {
		out[i] = e.Message
	}
	return out
}

// Executor runs GraphQL operations. The caller identity is read from the
// context via model.RequestContextFrom.
type Executor interface {
	Execute(ctx context.Context, req Request) (*Response, error)
}

// Client is the HTTP Executor. Queries are retried on transient failures;
// mutations are sent exactly once.
type Client struct {
	endpoint    string
	http        *http.Client
	headers     map[string]string
	forwardAuth bool
	retry       config.RetryConfig
	breaker     *Breaker
	metrics     *observability.Metrics
	logger      *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithMetrics records request metrics and breaker state.
func WithMetrics(m *observability.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithLogger sets the fallback logger used when the context carries none.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// NewClient creates a Client for the configured endpoint.
func NewClient(cfg config.GraphQLConfig, opts ...Option) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	c := &Client{
		endpoint: cfg.Endpoint,
		http: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxConnsPerHost:     50,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
		headers:     cfg.Headers,
		forwardAuth: cfg.ForwardAuth,
		retry:       cfg.Retry,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}

	cb := cfg.CircuitBreaker
	c.breaker = NewBreaker(BreakerSettings{
		FailureThreshold:   cb.FailureThreshold,
		SuccessThreshold:   cb.SuccessThreshold,
		OpenTimeout:        cb.Timeout,
		ErrorRateThreshold: cb.ErrorRateThreshold,
		ErrorRateWindow:    cb.ErrorRateWindow,
		OnStateChange: func(from, to BreakerState) {
			c.metrics.SetCircuitBreakerState(breakerGauge(to))
			c.logger.Warn("graphql circuit breaker state changed",
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
	return c
}

// BreakerState returns the state of the client's circuit breaker.
func (c *Client) BreakerState() BreakerState {
	return c.breaker.State()
}

// HealthCheck sends a minimal query to the API.
func (c *Client) HealthCheck(ctx context.Context) error {
	resp, err := c.Execute(ctx, Request{Query: "query { __typename }"})
	if err != nil {
		return err
	}
	if len(resp.Errors) > 0 {
		return resp.Errors[0]
	}
	return nil
}

// Execute sends the operation and returns the decoded response. GraphQL
// errors are returned inside the Response; the error result is reserved for
// transport failures, which are *model.ErrorEnvelope values for
// unavailability and timeouts.
func (c *Client) Execute(ctx context.Context, req Request) (*Response, error) {
	kind, name, err := Operation(req.Query)
	if err != nil {
		return nil, err
	}

	ctx, span := observability.StartGraphQLSpan(ctx, kind, name)
	var spanErr error
	defer func() { observability.EndSpanWithError(span, spanErr) }()

	body, err := json.Marshal(req)
	if err != nil {
		spanErr = fmt.Errorf("graphql: encode request: %w", err)
		return nil, spanErr
	}

	maxAttempts := 1
	if kind == KindQuery && c.retry.MaxAttempts > 1 {
		maxAttempts = c.retry.MaxAttempts
	}

	logger := observability.LoggerFrom(ctx, c.logger)
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			c.metrics.RecordGraphQLRetry()
			select {
			case <-ctx.Done():
				spanErr = model.NewBackendTimeoutError()
				return nil, spanErr
			case <-time.After(backoff(c.retry, attempt)):
			}
		}

		start := time.Now()
		resp, retryable, err := c.send(ctx, body)
		if err != nil {
			c.metrics.RecordGraphQLRequest(kind, outcomeOf(err), time.Since(start))
			lastErr = err
			if !retryable {
				break
			}
			logger.Debug("graphql: retrying query",
				zap.Int("attempt", attempt+1),
				zap.Int("max", maxAttempts),
				zap.Error(err),
			)
			continue
		}

		outcome := "ok"
		if len(resp.Errors) > 0 {
			outcome = "graphql_error"
			for _, e := range resp.Errors {
				if e.TopLevel() {
					c.metrics.RecordGraphQLError("top_level")
				} else {
					c.metrics.RecordGraphQLError("field")
				}
			}
		}
		c.metrics.RecordGraphQLRequest(kind, outcome, time.Since(start))
		return resp, nil
	}

	logger.Error("graphql: request failed", zap.String("kind", kind), zap.String("operation", name), zap.Error(lastErr))
	spanErr = lastErr
	var env *model.ErrorEnvelope
	if errors.As(lastErr, &env) {
		return nil, env
	}
	return nil, model.NewBackendUnavailableError()
}

// send performs one HTTP round trip. retryable reports whether a failed
// attempt may be repeated for a query.
func (c *Client) send(ctx context.Context, body []byte) (resp *Response, retryable bool, err error) {
	if err := c.breaker.Allow(); err != nil {
		return nil, false, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, false, fmt.Errorf("graphql: build request: %w", err)
	}
	c.setHeaders(ctx, httpReq.Header)

	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		c.breaker.Failure()
		if ctx.Err() != nil {
			return nil, false, model.NewBackendTimeoutError()
		}
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return nil, true, model.NewBackendTimeoutError()
		}
		return nil, true, fmt.Errorf("graphql: request failed: %w", err)
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBytes))
	if err != nil {
		c.breaker.Failure()
		return nil, true, fmt.Errorf("graphql: read response: %w", err)
	}

	var decoded Response
	parseErr := json.Unmarshal(raw, &decoded)
	wellFormed := parseErr == nil && (len(decoded.Data) > 0 || len(decoded.Errors) > 0)

	if httpResp.StatusCode >= 500 {
		c.breaker.Failure()
		if wellFormed {
			return &decoded, false, nil
		}
		switch httpResp.StatusCode {
		case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return nil, true, fmt.Errorf("graphql: api returned status %d", httpResp.StatusCode)
		}
		return nil, false, fmt.Errorf("graphql: api returned status %d", httpResp.StatusCode)
	}

	c.breaker.Success()
	if !wellFormed {
		return nil, false, fmt.Errorf("graphql: unexpected response (status %d)", httpResp.StatusCode)
	}
	return &decoded, false, nil
}

func (c *Client) setHeaders(ctx context.Context, h http.Header) {
	h.Set("Content-Type", "application/json")
	h.Set("Accept", "application/graphql-response+json, application/json")
	for k, v := range c.headers {
		h.Set(sanitizeHeader(k), sanitizeHeader(v))
	}
	if rctx := model.RequestContextFrom(ctx); rctx != nil {
		if c.forwardAuth && rctx.BearerToken != "" {
			h.Set("Authorization", "Bearer "+sanitizeHeader(rctx.BearerToken))
		}
		if rctx.CorrelationID != "" {
			h.Set("X-Correlation-Id", sanitizeHeader(rctx.CorrelationID))
		}
		if rctx.TenantID != "" {
			h.Set("X-Tenant-Id", sanitizeHeader(rctx.TenantID))
		}
	}
	observability.InjectTraceHeaders(ctx, h)
}

// sanitizeHeader strips newlines and carriage returns to prevent header injection.
func sanitizeHeader(s string) string {
	return strings.NewReplacer("\r", "", "\n", "").Replace(s)
}

func outcomeOf(err error) string {
	if errors.Is(err, ErrCircuitOpen) {
		return "circuit_open"
	}
	return "transport_error"
}

func breakerGauge(s BreakerState) float64 {
	switch s {
	case BreakerHalfOpen:
		return 1
	case BreakerOpen:
		return 2
	default:
		return 0
	}
}

// backoff returns the delay before the given retry attempt (1-based).
func backoff(cfg config.RetryConfig, attempt int) time.Duration {
	initial := cfg.BackoffInitial
	if initial <= 0 {
		initial = 100 * time.Millisecond
	}
	multiplier := cfg.BackoffMultiplier
	if multiplier <= 0 {
		multiplier = 2
	}
	ceiling := cfg.BackoffMax
	if ceiling <= 0 {
		ceiling = 2 * time.Second
	}

	delay := initial
	for i := 1; i < attempt; i++ {
		delay = time.Duration(float64(delay) * multiplier)
		if delay >= ceiling {
			return ceiling
		}
	}
	return delay
}
