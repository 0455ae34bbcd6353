package transport

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pitabwire/adminmeta/internal/listview"
	"github.com/pitabwire/adminmeta/model"
)

func handleCard(provider MetaProvider, lists *listview.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		meta, list, ok := requestList(w, r, provider, model.ActionRead)
		if !ok {
			return
		}
		card, err := lists.Card(r.Context(), meta, list, chi.URLParam(r, "itemId"))
		if err != nil {
			writeRequestError(w, r, err)
			return
		}
		WriteJSON(w, http.StatusOK, card)
	}
}
