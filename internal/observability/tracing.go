package observability

import (
	"context"
	"fmt"
	"net/http"
	"slices"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/pitabwire/adminmeta/internal/config"
)

const tracerName = "github.com/pitabwire/adminmeta"

// Span attributes of admin operations.
var (
	AttrListKey       = attribute.Key("admin.list_key")
	AttrItemID        = attribute.Key("admin.item_id")
	AttrFormID        = attribute.Key("admin.form_id")
	AttrOperation     = attribute.Key("admin.graphql_operation")
	AttrOperationName = attribute.Key("admin.graphql_operation_name")
	AttrTenantID      = attribute.Key("admin.tenant_id")
	AttrSubjectID     = attribute.Key("admin.subject_id")
	AttrCacheHit      = attribute.Key("admin.cache_hit")
)

// routeParams maps chi URL parameters to the span attributes they fill.
var routeParams = map[string]attribute.Key{
	"listKey": AttrListKey,
	"itemId":  AttrItemID,
	"formId":  AttrFormID,
}

type exporterFactory func(ctx context.Context, cfg config.TracingConfig) (sdktrace.SpanExporter, error)

var exporters = map[string]exporterFactory{
	"otlp": func(ctx context.Context, cfg config.TracingConfig) (sdktrace.SpanExporter, error) {
		var opts []otlptracegrpc.Option
		if cfg.Endpoint != "" {
			opts = append(opts, otlptracegrpc.WithEndpoint(cfg.Endpoint))
		}
		return otlptracegrpc.New(ctx, opts...)
	},
	"stdout": func(context.Context, config.TracingConfig) (sdktrace.SpanExporter, error) {
		return stdouttrace.New(stdouttrace.WithPrettyPrint())
	},
}

// InitTracing installs the global tracer provider and W3C propagators. The
// returned function flushes and stops the provider; it is a no-op when
// tracing is disabled.
func InitTracing(ctx context.Context, cfg config.TracingConfig, serviceName, serviceVersion string) (func(context.Context) error, error) {
	if !cfg.Enabled {
		return func(context.Context) error { return nil }, nil
	}

	name := cfg.Exporter
	if name == "" {
		name = "otlp"
	}
	factory, ok := exporters[name]
	if !ok {
		return nil, fmt.Errorf("tracing: unsupported exporter %q (supported: %s)", cfg.Exporter, strings.Join(exporterNames(), ", "))
	}
	exporter, err := factory(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("tracing: create %s exporter: %w", name, err)
	}

	res, err := resource.New(ctx, resource.WithAttributes(
		semconv.ServiceName(serviceName),
		semconv.ServiceVersion(serviceVersion),
	))
	if err != nil {
		return nil, fmt.Errorf("tracing: create resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(newSampler(cfg)),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))
	return tp.Shutdown, nil
}

func exporterNames() []string {
	names := make([]string, 0, len(exporters))
	for n := range exporters {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// newSampler samples root spans at the configured rate, 0.1 when unset, and
// follows the parent decision otherwise.
func newSampler(cfg config.TracingConfig) sdktrace.Sampler {
	rate := cfg.SamplingRate
	if rate <= 0 {
		rate = 0.1
	}
	return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(min(rate, 1)))
}

// Tracer returns the tracer of the admin service.
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// StartSpan starts an internal span, such as a list load or a form save.
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name, trace.WithAttributes(attrs...))
}

// StartGraphQLSpan starts the client span of one GraphQL request. Named
// operations are traced as "graphql ListPage", anonymous ones by kind.
func StartGraphQLSpan(ctx context.Context, kind, operation string) (context.Context, trace.Span) {
	name := "graphql " + kind
	if operation != "" {
		name = "graphql " + operation
	}
	return Tracer().Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(AttrOperation.String(kind), AttrOperationName.String(operation)),
	)
}

// EndSpanWithError records err, if any, as the span status and ends it.
func EndSpanWithError(span trace.Span, err error) {
	defer span.End()
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// AnnotateSpan adds attributes to the span carried by ctx, if any.
func AnnotateSpan(ctx context.Context, attrs ...attribute.KeyValue) {
	trace.SpanFromContext(ctx).SetAttributes(attrs...)
}

// TraceIDFromContext returns the trace id of the span in ctx, or "".
func TraceIDFromContext(ctx context.Context) string {
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}

// InjectTraceHeaders writes the trace context of ctx into outbound headers.
func InjectTraceHeaders(ctx context.Context, headers http.Header) {
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(headers))
}

// TracingMiddleware opens a server span per request, continuing an inbound
// traceparent. After routing the span takes the route pattern as its name and
// the list, item and form ids from the URL as attributes.
func TracingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		propagator := otel.GetTextMapPropagator()
		ctx := propagator.Extract(r.Context(), propagation.HeaderCarrier(r.Header))
		ctx, span := Tracer().Start(ctx, r.Method+" "+r.URL.Path,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				semconv.HTTPRequestMethodKey.String(r.Method),
				semconv.URLPath(r.URL.Path),
			),
		)
		defer span.End()
		propagator.Inject(ctx, propagation.HeaderCarrier(w.Header()))

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		r = r.WithContext(ctx)
		next.ServeHTTP(ww, r)

		if pattern := routePattern(r); pattern != r.URL.Path {
			span.SetName(r.Method + " " + pattern)
			span.SetAttributes(semconv.HTTPRoute(pattern))
		}
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			for i, key := range rctx.URLParams.Keys {
				if attr, ok := routeParams[key]; ok {
					span.SetAttributes(attr.String(rctx.URLParams.Values[i]))
				}
			}
		}

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		span.SetAttributes(semconv.HTTPResponseStatusCode(status))
		if status >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(status))
		}
	})
}
