package transport

import (
	"encoding/json"
	"net/http"

	"github.com/pitabwire/adminmeta/internal/listview"
	"github.com/pitabwire/adminmeta/model"
)

// maxBodyBytes bounds request bodies of the admin API.
const maxBodyBytes = 1 << 20

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		WriteError(w, model.NewBadRequestError("invalid JSON body"))
		return false
	}
	return true
}

func handleBulkDelete(provider MetaProvider, lists *listview.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, list, ok := requestList(w, r, provider, model.ActionDelete)
		if !ok {
			return
		}
		var body struct {
			IDs []string `json:"ids"`
		}
		if !decodeBody(w, r, &body) {
			return
		}

		result, err := lists.DeleteMany(r.Context(), list, body.IDs)
		if err != nil {
			writeRequestError(w, r, err)
			return
		}
		WriteJSON(w, http.StatusOK, result)
	}
}
