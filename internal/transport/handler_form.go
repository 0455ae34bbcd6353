package transport

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pitabwire/adminmeta/internal/itemview"
	"github.com/pitabwire/adminmeta/model"
)

func handleOpenCreate(provider MetaProvider, items *itemview.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		meta, list, ok := requestList(w, r, provider, model.ActionCreate)
		if !ok {
			return
		}
		if list.IsSingleton {
			WriteError(w, model.NewBadRequestError(list.Singular+" is a singleton and cannot be created"))
			return
		}
		form, err := items.OpenCreate(r.Context(), meta, list)
		if err != nil {
			writeRequestError(w, r, err)
			return
		}
		WriteJSON(w, http.StatusCreated, form)
	}
}

// handleOpenItem opens an edit form. Users without update capability get
// a read-only form.
func handleOpenItem(provider MetaProvider, items *itemview.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		meta, list, ok := requestList(w, r, provider, model.ActionRead)
		if !ok {
			return
		}
		form, err := items.OpenItem(r.Context(), meta, list, chi.URLParam(r, "itemId"), CapabilitiesFrom(r.Context()))
		if err != nil {
			writeRequestError(w, r, err)
			return
		}
		WriteJSON(w, http.StatusCreated, form)
	}
}

func handleGetForm(provider MetaProvider, items *itemview.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		meta, ok := requestMeta(w, r, provider)
		if !ok {
			return
		}
		form, err := items.Form(r.Context(), meta, chi.URLParam(r, "formId"))
		if err != nil {
			writeRequestError(w, r, err)
			return
		}
		WriteJSON(w, http.StatusOK, form)
	}
}
