package observability

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Histogram bucket definitions.
var (
	httpDurationBuckets    = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}
	backendDurationBuckets = []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5}
	bodySizeBuckets        = []float64{100, 1024, 10240, 102400, 1048576}
)

// Metrics holds all Prometheus metric instruments of the admin service.
// Every recording method is safe to call on a nil *Metrics.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal     *prometheus.CounterVec
	HTTPRequestDuration   *prometheus.HistogramVec
	HTTPRequestSizeBytes  *prometheus.HistogramVec
	HTTPResponseSizeBytes *prometheus.HistogramVec

	// GraphQL transport metrics
	GraphQLRequestsTotal       *prometheus.CounterVec
	GraphQLRequestDuration     *prometheus.HistogramVec
	GraphQLErrorsTotal         *prometheus.CounterVec
	GraphQLCircuitBreakerState prometheus.Gauge
	GraphQLRetriesTotal        prometheus.Counter

	// Admin meta metrics
	MetaBuildsTotal *prometheus.CounterVec
	MetaLists       prometheus.Gauge

	// Engine metrics
	ListQueriesTotal        *prometheus.CounterVec
	DroppedURLParamsTotal   *prometheus.CounterVec
	BulkDeleteItemsTotal    *prometheus.CounterVec
	ItemSavesTotal          *prometheus.CounterVec
	ItemValidationFailures  *prometheus.CounterVec
	FormSessionsOpen        prometheus.Gauge
	SupersededResultsTotal  *prometheus.CounterVec
	ViewStateOperations     *prometheus.CounterVec
	RelationshipCacheHits   *prometheus.CounterVec
	RelationshipCacheMisses *prometheus.CounterVec
}

// InitMetrics creates and registers all Prometheus metric instruments.
func InitMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		// HTTP
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "adminmeta_http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "path_pattern", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "adminmeta_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: httpDurationBuckets,
		}, []string{"method", "path_pattern"}),
		HTTPRequestSizeBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "adminmeta_http_request_size_bytes",
			Help:    "HTTP request body size in bytes.",
			Buckets: bodySizeBuckets,
		}, []string{"method", "path_pattern"}),
		HTTPResponseSizeBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "adminmeta_http_response_size_bytes",
			Help:    "HTTP response body size in bytes.",
			Buckets: bodySizeBuckets,
		}, []string{"method", "path_pattern"}),

		// GraphQL
		GraphQLRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "adminmeta_graphql_requests_total",
			Help: "Total number of GraphQL operations sent to the API.",
		}, []string{"kind", "outcome"}),
		GraphQLRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "adminmeta_graphql_request_duration_seconds",
			Help:    "GraphQL operation duration in seconds.",
			Buckets: backendDurationBuckets,
		}, []string{"kind"}),
		GraphQLErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "adminmeta_graphql_errors_total",
			Help: "Total number of GraphQL errors returned by the API, by path depth.",
		}, []string{"scope"}),
		GraphQLCircuitBreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "adminmeta_graphql_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open).",
		}),
		GraphQLRetriesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "adminmeta_graphql_retries_total",
			Help: "Total number of GraphQL query retries.",
		}),

		// Meta
		MetaBuildsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "adminmeta_meta_builds_total",
			Help: "Total admin meta builds.",
		}, []string{"status"}),
		MetaLists: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "adminmeta_meta_lists",
			Help: "Number of lists in the current admin meta.",
		}),

		// Engines
		ListQueriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "adminmeta_list_queries_total",
			Help: "Total list page queries.",
		}, []string{"list", "status"}),
		DroppedURLParamsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "adminmeta_dropped_url_params_total",
			Help: "Total list page URL parameters ignored while decoding.",
		}, []string{"list", "reason"}),
		BulkDeleteItemsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "adminmeta_bulk_delete_items_total",
			Help: "Total items processed by bulk deletes.",
		}, []string{"list", "outcome"}),
		ItemSavesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "adminmeta_item_saves_total",
			Help: "Total item create, update and delete attempts.",
		}, []string{"list", "kind", "outcome"}),
		ItemValidationFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "adminmeta_item_validation_failures_total",
			Help: "Total saves blocked by field validation.",
		}, []string{"list"}),
		FormSessionsOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "adminmeta_form_sessions_open",
			Help: "Number of open item forms.",
		}),
		SupersededResultsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "adminmeta_superseded_results_total",
			Help: "Total results discarded because a newer request or form replaced them.",
		}, []string{"source"}),
		ViewStateOperations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "adminmeta_view_state_operations_total",
			Help: "Total remembered list view operations.",
		}, []string{"driver", "operation", "status"}),
		RelationshipCacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "adminmeta_relationship_cache_hits_total",
			Help: "Total relationship label cache hits.",
		}, []string{"list"}),
		RelationshipCacheMisses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "adminmeta_relationship_cache_misses_total",
			Help: "Total relationship label cache misses.",
		}, []string{"list"}),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestSizeBytes,
		m.HTTPResponseSizeBytes,
		m.GraphQLRequestsTotal,
		m.GraphQLRequestDuration,
		m.GraphQLErrorsTotal,
		m.GraphQLCircuitBreakerState,
		m.GraphQLRetriesTotal,
		m.MetaBuildsTotal,
		m.MetaLists,
		m.ListQueriesTotal,
		m.DroppedURLParamsTotal,
		m.BulkDeleteItemsTotal,
		m.ItemSavesTotal,
		m.ItemValidationFailures,
		m.FormSessionsOpen,
		m.SupersededResultsTotal,
		m.ViewStateOperations,
		m.RelationshipCacheHits,
		m.RelationshipCacheMisses,
	)

	return m
}

// --- Recording helpers ---

// RecordHTTPRequest records HTTP request metrics.
func (m *Metrics) RecordHTTPRequest(method, pathPattern string, status int, duration time.Duration, reqSize, respSize int) {
	if m == nil {
		return
	}
	statusStr := strconv.Itoa(status)
	m.HTTPRequestsTotal.WithLabelValues(method, pathPattern, statusStr).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, pathPattern).Observe(duration.Seconds())
	m.HTTPRequestSizeBytes.WithLabelValues(method, pathPattern).Observe(float64(reqSize))
	m.HTTPResponseSizeBytes.WithLabelValues(method, pathPattern).Observe(float64(respSize))
}

// RecordGraphQLRequest records one GraphQL round trip. kind is "query" or
// "mutation"; outcome is "ok", "graphql_error", "transport_error" or
// "circuit_open".
func (m *Metrics) RecordGraphQLRequest(kind, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.GraphQLRequestsTotal.WithLabelValues(kind, outcome).Inc()
	m.GraphQLRequestDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

// RecordGraphQLError records a GraphQL error. scope is "top_level" for
// errors with a path of at most one element and "field" otherwise.
func (m *Metrics) RecordGraphQLError(scope string) {
	if m == nil {
		return
	}
	m.GraphQLErrorsTotal.WithLabelValues(scope).Inc()
}

// SetCircuitBreakerState sets the GraphQL circuit breaker state.
// State: 0=closed, 1=half-open, 2=open.
func (m *Metrics) SetCircuitBreakerState(state float64) {
	if m == nil {
		return
	}
	m.GraphQLCircuitBreakerState.Set(state)
}

// RecordGraphQLRetry records a query retry.
func (m *Metrics) RecordGraphQLRetry() {
	if m == nil {
		return
	}
	m.GraphQLRetriesTotal.Inc()
}

// RecordMetaBuild records an admin meta build and, on success, the number
// of lists it produced.
func (m *Metrics) RecordMetaBuild(status string, lists int) {
	if m == nil {
		return
	}
	m.MetaBuildsTotal.WithLabelValues(status).Inc()
	if status == "success" {
		m.MetaLists.Set(float64(lists))
	}
}

// RecordListQuery records a list page query.
func (m *Metrics) RecordListQuery(list, status string) {
	if m == nil {
		return
	}
	m.ListQueriesTotal.WithLabelValues(list, status).Inc()
}

// RecordDroppedURLParam records a list page parameter that was ignored.
func (m *Metrics) RecordDroppedURLParam(list, reason string) {
	if m == nil {
		return
	}
	m.DroppedURLParamsTotal.WithLabelValues(list, reason).Inc()
}

// RecordBulkDelete records the outcome counts of a bulk delete.
func (m *Metrics) RecordBulkDelete(list string, deleted, failed int) {
	if m == nil {
		return
	}
	m.BulkDeleteItemsTotal.WithLabelValues(list, "deleted").Add(float64(deleted))
	m.BulkDeleteItemsTotal.WithLabelValues(list, "failed").Add(float64(failed))
}

// RecordItemSave records a create or update attempt.
func (m *Metrics) RecordItemSave(list, kind, outcome string) {
	if m == nil {
		return
	}
	m.ItemSavesTotal.WithLabelValues(list, kind, outcome).Inc()
}

// RecordValidationFailure records a save blocked by field validation.
func (m *Metrics) RecordValidationFailure(list string) {
	if m == nil {
		return
	}
	m.ItemValidationFailures.WithLabelValues(list).Inc()
}

// SetFormSessions sets the number of open forms.
func (m *Metrics) SetFormSessions(n int) {
	if m == nil {
		return
	}
	m.FormSessionsOpen.Set(float64(n))
}

// RecordSupersededResult records a result discarded on arrival.
func (m *Metrics) RecordSupersededResult(source string) {
	if m == nil {
		return
	}
	m.SupersededResultsTotal.WithLabelValues(source).Inc()
}

// RecordViewStateOperation records a remembered view store operation.
func (m *Metrics) RecordViewStateOperation(driver, operation string, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.ViewStateOperations.WithLabelValues(driver, operation, status).Inc()
}

// RecordRelationshipCacheHit records a label cache hit.
func (m *Metrics) RecordRelationshipCacheHit(list string) {
	if m == nil {
		return
	}
	m.RelationshipCacheHits.WithLabelValues(list).Inc()
}

// RecordRelationshipCacheMiss records a label cache miss.
func (m *Metrics) RecordRelationshipCacheMiss(list string) {
	if m == nil {
		return
	}
	m.RelationshipCacheMisses.WithLabelValues(list).Inc()
}

// --- HTTP Middleware ---

// MetricsMiddleware returns HTTP middleware that records request metrics using
// chi's route pattern (not the actual URL path) to avoid label cardinality
// explosion.
func (m *Metrics) MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &metricsResponseWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(sw, r)

		reqSize := 0
		if r.ContentLength > 0 {
			reqSize = int(r.ContentLength)
		}
		m.RecordHTTPRequest(r.Method, routePattern(r), sw.status, time.Since(start), reqSize, sw.bytes)
	})
}

// Handler returns the Prometheus HTTP handler for the metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// HandlerFor returns a metrics handler serving a specific gatherer.
func HandlerFor(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// routePattern extracts chi's route pattern from the request context.
// Falls back to the raw URL path if no pattern is found.
func routePattern(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return r.URL.Path
	}
	pattern := strings.Join(rctx.RoutePatterns, "")
	pattern = strings.ReplaceAll(pattern, "/*/", "/")
	pattern = strings.TrimSuffix(pattern, "/*")
	if pattern == "" {
		return r.URL.Path
	}
	return pattern
}

// metricsResponseWriter wraps http.ResponseWriter to capture status and bytes.
type metricsResponseWriter struct {
	http.ResponseWriter
	status  int
	bytes   int
	written bool
}

func (w *metricsResponseWriter) WriteHeader(code int) {
	if !w.written {
		w.status = code
		w.written = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *metricsResponseWriter) Write(b []byte) (int, error) {
	if !w.written {
		w.written = true
	}
	n, err := w.ResponseWriter.Write(b)
	w.bytes += n
	return n, err
}
