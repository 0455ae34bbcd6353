package transport

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pitabwire/adminmeta/internal/itemview"
	"github.com/pitabwire/adminmeta/model"
)

// handleChange applies {"values": {path: input}} to an open form.
func handleChange(provider MetaProvider, items *itemview.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		meta, ok := requestMeta(w, r, provider)
		if !ok {
			return
		}
		var body struct {
			Values map[string]json.RawMessage `json:"values"`
		}
		if !decodeBody(w, r, &body) {
			return
		}
		if len(body.Values) == 0 {
			WriteError(w, model.NewBadRequestError("values must not be empty"))
			return
		}
		form, err := items.Change(r.Context(), meta, chi.URLParam(r, "formId"), body.Values)
		if err != nil {
			writeRequestError(w, r, err)
			return
		}
		WriteJSON(w, http.StatusOK, form)
	}
}

// handleSave saves a form. Creating an item answers 201 with the new item's
// id and href.
func handleSave(provider MetaProvider, items *itemview.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		meta, ok := requestMeta(w, r, provider)
		if !ok {
			return
		}
		form, err := items.Save(r.Context(), meta, chi.URLParam(r, "formId"))
		if err != nil {
			writeRequestError(w, r, err)
			return
		}
		status := http.StatusOK
		if form.Kind == model.FormCreate {
			status = http.StatusCreated
		}
		WriteJSON(w, status, form)
	}
}

func handleDiscard(items *itemview.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if model.RequestContextFrom(r.Context()) == nil {
			WriteError(w, model.NewUnauthorizedError("missing request context"))
			return
		}
		if err := items.Discard(r.Context(), chi.URLParam(r, "formId")); err != nil {
			writeRequestError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func handleDeleteItem(provider MetaProvider, items *itemview.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, list, ok := requestList(w, r, provider, model.ActionDelete)
		if !ok {
			return
		}
		result, err := items.Delete(r.Context(), list, chi.URLParam(r, "itemId"), queryBool(r, "confirm"))
		if err != nil {
			writeRequestError(w, r, err)
			return
		}
		WriteJSON(w, http.StatusOK, result)
	}
}
