package transport

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pitabwire/adminmeta/internal/adminmeta"
	"github.com/pitabwire/adminmeta/model"
)

// MetaProvider serves the current admin metadata.
type MetaProvider interface {
	Get(ctx context.Context) (*adminmeta.Meta, error)
	Reinit(ctx context.Context) (*adminmeta.Meta, error)
}

// requestMeta returns the admin metadata for an authenticated request.
func requestMeta(w http.ResponseWriter, r *http.Request, provider MetaProvider) (*adminmeta.Meta, bool) {
	if model.RequestContextFrom(r.Context()) == nil {
		WriteError(w, model.NewUnauthorizedError("missing request context"))
		return nil, false
	}
	meta, err := provider.Get(r.Context())
	if err != nil {
		writeRequestError(w, r, err)
		return nil, false
	}
	return meta, true
}

// requestList resolves the {listKey} URL parameter, which may be a list key
// or its route path, and checks that action is permitted on it.
func requestList(w http.ResponseWriter, r *http.Request, provider MetaProvider, action string) (*adminmeta.Meta, *adminmeta.List, bool) {
	meta, ok := requestMeta(w, r, provider)
	if !ok {
		return nil, nil, false
	}
	key := chi.URLParam(r, "listKey")
	list, ok := meta.List(key)
	if !ok {
		list, ok = meta.ListByPath(key)
	}
	if !ok {
		WriteNotFound(w, fmt.Sprintf("list %q not found", key))
		return nil, nil, false
	}
	if !CapabilitiesFrom(r.Context()).CanList(list.Key, action) {
		WriteForbidden(w, fmt.Sprintf("%s is not permitted on %s", action, list.Key))
		return nil, nil, false
	}
	return meta, list, true
}

func handleNavigation(provider MetaProvider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		meta, ok := requestMeta(w, r, provider)
		if !ok {
			return
		}
		WriteJSON(w, http.StatusOK, meta.Navigation(CapabilitiesFrom(r.Context())))
	}
}

func handleMeta(provider MetaProvider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		meta, ok := requestMeta(w, r, provider)
		if !ok {
			return
		}
		WriteJSON(w, http.StatusOK, meta.Descriptor(CapabilitiesFrom(r.Context())))
	}
}

// handleReinit rebuilds the metadata. Open forms built against the old
// metadata are superseded on their next use.
func handleReinit(provider MetaProvider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if model.RequestContextFrom(r.Context()) == nil {
			WriteError(w, model.NewUnauthorizedError("missing request context"))
			return
		}
		caps := CapabilitiesFrom(r.Context())
		if !caps.Has(model.CapabilityReinit) {
			WriteForbidden(w, "rebuilding admin metadata is not permitted")
			return
		}
		meta, err := provider.Reinit(r.Context())
		if err != nil {
			writeRequestError(w, r, err)
			return
		}
		WriteJSON(w, http.StatusOK, meta.Descriptor(caps))
	}
}
