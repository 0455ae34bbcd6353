package transport

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pitabwire/adminmeta/internal/graphql"
	"github.com/pitabwire/adminmeta/internal/itemview"
	"github.com/pitabwire/adminmeta/internal/relationship"
	"github.com/pitabwire/adminmeta/model"
)

// handleListOptions serves one window of a list's items as picker options.
// The total count is only known for the first window.
func handleListOptions(provider MetaProvider, exec graphql.Executor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, list, ok := requestList(w, r, provider, model.ActionRead)
		if !ok {
			return
		}
		skip := max(queryInt(r, "skip", 0), 0)
		def := relationship.InitialTake(list.PageSize)
		if skip > 0 {
			def = relationship.SubsequentTake(list.PageSize)
		}
		take := queryInt(r, "take", def)
		if take <= 0 || take > relationship.SubsequentTake(list.PageSize) {
			take = def
		}

		src := relationship.ListSource(list)
		page, err := relationship.Fetch(r.Context(), exec, src, r.URL.Query().Get("search"), skip, take)
		if err != nil {
			writeRequestError(w, r, err)
			return
		}

		out := model.OptionsPageDescriptor{
			List:    list.Key,
			Options: make([]model.OptionDescriptor, 0, len(page.Items)),
			Count:   page.Count,
			HasMore: len(page.Items) == take,
		}
		if skip == 0 {
			out.HasMore = len(page.Items) < page.Count
		}
		for _, ref := range page.Items {
			out.Options = append(out.Options, model.OptionDescriptor{Value: ref.ID, Label: ref.Label})
		}
		WriteJSON(w, http.StatusOK, out)
	}
}

func handleFormOptions(provider MetaProvider, items *itemview.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		meta, ok := requestMeta(w, r, provider)
		if !ok {
			return
		}
		opts, err := items.Options(r.Context(), meta,
			chi.URLParam(r, "formId"),
			chi.URLParam(r, "field"),
			r.URL.Query().Get("search"),
			queryBool(r, "more"),
		)
		if err != nil {
			writeRequestError(w, r, err)
			return
		}
		WriteJSON(w, http.StatusOK, opts)
	}
}
