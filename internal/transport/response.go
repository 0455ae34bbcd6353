// Package transport contains the HTTP router, middleware chain, and the
// handlers of the admin API.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/pitabwire/adminmeta/model"
)

// statusForCode maps ErrorEnvelope codes to HTTP status codes.
var statusForCode = map[string]int{
	model.ErrBadRequest:         http.StatusBadRequest,
	model.ErrUnauthorized:       http.StatusUnauthorized,
	model.ErrForbidden:          http.StatusForbidden,
	model.ErrNotFound:           http.StatusNotFound,
	model.ErrConflict:           http.StatusConflict,
	model.ErrValidationError:    http.StatusUnprocessableEntity,
	model.ErrInternalError:      http.StatusInternalServerError,
	model.ErrBackendUnavailable: http.StatusBadGateway,
	model.ErrBackendTimeout:     http.StatusGatewayTimeout,
	model.ErrSaveFailed:         http.StatusBadGateway,
	model.ErrDeleteFailed:       http.StatusBadGateway,
	model.ErrQueryFailed:        http.StatusBadGateway,
	model.ErrContractViolation:  http.StatusServiceUnavailable,
	model.ErrFormSuperseded:     http.StatusConflict,
}

// enveloper is implemented by domain errors that know their API form.
type enveloper interface {
	Envelope() *model.ErrorEnvelope
}

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	if body != nil {
		json.NewEncoder(w).Encode(body)
	}
}

// envelopeOf converts err to an ErrorEnvelope. Errors without an API form
// become a generic internal error so that internals are never leaked.
func envelopeOf(err error) *model.ErrorEnvelope {
	var ee *model.ErrorEnvelope
	if errors.As(err, &ee) {
		return ee
	}
	var en enveloper
	if errors.As(err, &en) {
		return en.Envelope()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return model.NewBackendTimeoutError()
	}
	return model.NewInternalError()
}

// WriteError writes err as an ErrorEnvelope JSON response with the matching
// HTTP status code.
func WriteError(w http.ResponseWriter, err error) {
	ee := envelopeOf(err)

	status := statusForCode[ee.Code]
	if status == 0 {
		status = http.StatusInternalServerError
	}

	type errorResponse struct {
		Error *model.ErrorEnvelope `json:"error"`
	}
	WriteJSON(w, status, errorResponse{Error: ee})
}

// writeRequestError is WriteError with the trace id of r attached.
func writeRequestError(w http.ResponseWriter, r *http.Request, err error) {
	ee := envelopeOf(err)
	if ee.TraceID == "" {
		if rctx := model.RequestContextFrom(r.Context()); rctx != nil && rctx.TraceID != "" {
			copied := *ee
			copied.TraceID = rctx.TraceID
			ee = &copied
		}
	}
	WriteError(w, ee)
}

// WriteNotFound writes a 404 error response.
func WriteNotFound(w http.ResponseWriter, msg string) {
	WriteError(w, model.NewNotFoundError(msg))
}

// WriteForbidden writes a 403 error response.
func WriteForbidden(w http.ResponseWriter, msg string) {
	WriteError(w, model.NewForbiddenError(msg))
}
