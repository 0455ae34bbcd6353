package transport

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/pitabwire/adminmeta/internal/config"
	"github.com/pitabwire/adminmeta/internal/graphql"
	"github.com/pitabwire/adminmeta/internal/itemview"
	"github.com/pitabwire/adminmeta/internal/listview"
	"github.com/pitabwire/adminmeta/internal/observability"
	"github.com/pitabwire/adminmeta/internal/viewstate"
	"github.com/pitabwire/adminmeta/model"
)

// Dependencies holds all injected dependencies for the HTTP transport layer.
type Dependencies struct {
	Config             *config.Config
	Logger             *zap.Logger
	Authenticate       func(http.Handler) http.Handler
	CapabilityResolver model.CapabilityResolver

	Meta      MetaProvider
	Lists     *listview.Engine
	Items     *itemview.Engine
	ViewState *viewstate.Mirror
	// Exec serves list options, which are read directly from the API.
	Exec    graphql.Executor
	Metrics *observability.Metrics

	// Public endpoints. Nil handlers answer with a static status.
	HealthHandler  http.Handler
	ReadyHandler   http.Handler
	MetricsHandler http.Handler
}

// NewRouter creates a chi.Router with the full middleware pipeline and all
// route registrations. Health, readiness, and metrics endpoints bypass the
// authentication middleware.
func NewRouter(deps Dependencies) chi.Router {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := chi.NewRouter()

	// Global middleware: applied to all routes including health.
	r.Use(Recovery(logger))
	r.Use(CORS(deps.Config.Server.CORS))
	r.Use(RequestID)
	r.Use(SecurityHeaders)
	if deps.Config.Observability.Tracing.Enabled {
		r.Use(observability.TracingMiddleware)
	}

	r.Get("/admin/health", orStatus(deps.HealthHandler, "ok"))
	r.Get("/admin/ready", orStatus(deps.ReadyHandler, "ready"))
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	auth := deps.Authenticate
	if auth == nil {
		auth = func(next http.Handler) http.Handler { return next }
	}

	r.Group(func(r chi.Router) {
		r.Use(auth)
		r.Use(BuildRequestContextMiddleware(deps.Config.Identity.ClaimPaths))
		r.Use(ResolveCapabilities(deps.CapabilityResolver, logger))
		r.Use(HandlerTimeout(deps.Config.Server.HandlerTimeout))
		r.Use(RequestLogging(logger))
		if deps.Metrics != nil {
			r.Use(deps.Metrics.MetricsMiddleware)
		}

		r.Get("/admin/meta", handleMeta(deps.Meta))
		r.Post("/admin/meta/reinit", handleReinit(deps.Meta))
		r.Get("/admin/navigation", handleNavigation(deps.Meta))

		r.Route("/admin/lists/{listKey}", func(r chi.Router) {
			r.Get("/items", handleListPage(deps.Meta, deps.Lists, deps.ViewState))
			r.Delete("/items", handleBulkDelete(deps.Meta, deps.Lists))
			r.Delete("/view-state", handleResetViewState(deps.Meta, deps.ViewState))
			r.Get("/options", handleListOptions(deps.Meta, deps.Exec))
			r.Post("/forms", handleOpenCreate(deps.Meta, deps.Items))
			r.Post("/items/{itemId}/forms", handleOpenItem(deps.Meta, deps.Items))
			r.Delete("/items/{itemId}", handleDeleteItem(deps.Meta, deps.Items))
			r.Get("/items/{itemId}/card", handleCard(deps.Meta, deps.Lists))
		})

		r.Route("/admin/forms/{formId}", func(r chi.Router) {
			r.Get("/", handleGetForm(deps.Meta, deps.Items))
			r.Patch("/", handleChange(deps.Meta, deps.Items))
			r.Delete("/", handleDiscard(deps.Items))
			r.Post("/save", handleSave(deps.Meta, deps.Items))
			r.Get("/options/{field}", handleFormOptions(deps.Meta, deps.Items))
		})
	})

	return r
}

func orStatus(h http.Handler, status string) http.HandlerFunc {
	if h != nil {
		return h.ServeHTTP
	}
	return func(w http.ResponseWriter, _ *http.Request) {
		WriteJSON(w, http.StatusOK, map[string]string{"status": status})
	}
}
