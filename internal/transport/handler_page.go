package transport

import (
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/pitabwire/adminmeta/internal/listview"
	"github.com/pitabwire/adminmeta/internal/observability"
	"github.com/pitabwire/adminmeta/internal/viewstate"
	"github.com/pitabwire/adminmeta/model"
)

// handleListPage renders a list page. A request without view parameters
// gets the remembered view of the user; the resolved view is remembered
// again afterwards.
func handleListPage(provider MetaProvider, lists *listview.Engine, mirror *viewstate.Mirror) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		meta, list, ok := requestList(w, r, provider, model.ActionRead)
		if !ok {
			return
		}
		owner := model.MustRequestContext(r.Context()).Owner()

		params := mirror.Restore(r.Context(), owner, list.Key, r.URL.Query())
		page, err := lists.Load(r.Context(), listview.Page{
			Meta:   meta,
			List:   list,
			Params: params,
			Caps:   CapabilitiesFrom(r.Context()),
		})
		if err != nil {
			writeRequestError(w, r, err)
			return
		}
		if err := mirror.Save(r.Context(), owner, list.Key, params); err != nil {
			// The page is still valid; only the remembered view is stale.
			observability.LoggerFrom(r.Context(), nil).Warn("view state write failed",
				zap.String("list", list.Key), zap.Error(err))
		}
		WriteJSON(w, http.StatusOK, page)
	}
}

func handleResetViewState(provider MetaProvider, mirror *viewstate.Mirror) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, list, ok := requestList(w, r, provider, model.ActionRead)
		if !ok {
			return
		}
		owner := model.MustRequestContext(r.Context()).Owner()
		if err := mirror.Reset(r.Context(), owner, list.Key); err != nil {
			writeRequestError(w, r, model.NewBackendUnavailableError())
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// queryInt extracts an integer query param with a default.
func queryInt(r *http.Request, key string, def int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}

// queryBool reports whether a query param is set to a true value.
func queryBool(r *http.Request, key string) bool {
	v, err := strconv.ParseBool(r.URL.Query().Get(key))
	return err == nil && v
}
