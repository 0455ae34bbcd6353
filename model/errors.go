package model

import "fmt"

// Standard error codes.
const (
	ErrBadRequest         = "BAD_REQUEST"
	ErrUnauthorized       = "UNAUTHORIZED"
	ErrForbidden          = "FORBIDDEN"
	ErrNotFound           = "NOT_FOUND"
	ErrConflict           = "CONFLICT"
	ErrValidationError    = "VALIDATION_ERROR"
	ErrInternalError      = "INTERNAL_ERROR"
	ErrBackendUnavailable = "BACKEND_UNAVAILABLE"
	ErrBackendTimeout     = "BACKEND_TIMEOUT"
)

// Admin engine error codes.
const (
	ErrSaveFailed        = "SAVE_FAILED"
	ErrDeleteFailed      = "DELETE_FAILED"
	ErrContractViolation = "CONTRACT_VIOLATION"
	ErrFormSuperseded    = "FORM_SUPERSEDED"
	ErrQueryFailed       = "QUERY_FAILED"
)

// ErrorEnvelope is the standard error response envelope returned by the
// admin API. It implements the error interface.
type ErrorEnvelope struct {
	Code    string       `json:"code"`
	Message string       `json:"message"`
	Details []FieldError `json:"details,omitempty"`
	// Cause holds backend messages that are only shown when the user asks
	// for details.
	Cause   []string `json:"cause,omitempty"`
	TraceID string   `json:"trace_id"`
}

// Error implements the error interface.
func (e *ErrorEnvelope) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// FieldError describes a field-level validation error.
type FieldError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewBadRequestError returns a BAD_REQUEST error.
func NewBadRequestError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrBadRequest, Message: msg}
}

// NewUnauthorizedError returns an UNAUTHORIZED error.
func NewUnauthorizedError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrUnauthorized, Message: msg}
}

// NewForbiddenError returns a FORBIDDEN error.
func NewForbiddenError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrForbidden, Message: msg}
}

// NewNotFoundError returns a NOT_FOUND error.
func NewNotFoundError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrNotFound, Message: msg}
}

// NewConflictError returns a CONFLICT error.
func NewConflictError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrConflict, Message: msg}
}

// NewValidationError returns a VALIDATION_ERROR with field-level details.
func NewValidationError(details []FieldError) *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrValidationError,
		Message: "One or more fields are invalid",
		Details: details,
	}
}

// NewSaveFailedError returns a SAVE_FAILED error carrying the backend
// messages as on-demand detail.
func NewSaveFailedError(cause ...string) *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrSaveFailed,
		Message: "Unable to save item.",
		Cause:   cause,
	}
}

// NewDeleteFailedError returns a DELETE_FAILED error carrying the backend
// messages as on-demand detail.
func NewDeleteFailedError(cause ...string) *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrDeleteFailed,
		Message: "Unable to delete item.",
		Cause:   cause,
	}
}

// NewQueryFailedError returns a QUERY_FAILED error for reads the GraphQL
// API rejected as a whole.
func NewQueryFailedError(cause ...string) *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrQueryFailed,
		Message: "Unable to load items.",
		Cause:   cause,
	}
}

// NewContractViolationError returns a CONTRACT_VIOLATION error. These are
// raised while assembling admin metadata and indicate a deployment mismatch.
func NewContractViolationError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrContractViolation, Message: msg}
}

// NewFormSupersededError returns a FORM_SUPERSEDED error for results that
// arrived after their form was discarded or reloaded.
func NewFormSupersededError() *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrFormSuperseded,
		Message: "The form changed while the request was in flight",
	}
}

// NewInternalError returns an INTERNAL_ERROR.
func NewInternalError() *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrInternalError,
		Message: "An unexpected error occurred",
	}
}

// NewBackendUnavailableError returns a BACKEND_UNAVAILABLE error.
func NewBackendUnavailableError() *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrBackendUnavailable,
		Message: "The GraphQL API is temporarily unavailable",
	}
}

// NewBackendTimeoutError returns a BACKEND_TIMEOUT error.
func NewBackendTimeoutError() *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrBackendTimeout,
		Message: "The GraphQL API did not respond in time",
	}
}
