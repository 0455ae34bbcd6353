package model

import "testing"

func TestErrorEnvelope_Error(t *testing.T) {
	e := &ErrorEnvelope{Code: ErrNotFound, Message: "List not found"}
	want := "NOT_FOUND: List not found"
	if got := e.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestErrorEnvelope_implements_error(t *testing.T) {
	var _ error = (*ErrorEnvelope)(nil)
}

func TestNewValidationError(t *testing.T) {
	details := []FieldError{
		{Field: "title", Code: "INVALID", Message: "Title is required"},
	}
	e := NewValidationError(details)
	if e.Code != ErrValidationError {
		t.Errorf("Code = %q, want %q", e.Code, ErrValidationError)
	}
	if len(e.Details) != 1 {
		t.Fatalf("Details length = %d, want 1", len(e.Details))
	}
	if e.Details[0].Field != "title" {
		t.Errorf("Details[0].Field = %q, want %q", e.Details[0].Field, "title")
	}
}

func TestNewSaveFailedError_keepsCause(t *testing.T) {
	e := NewSaveFailedError("Access denied", "Prisma error")
	if e.Code != ErrSaveFailed {
		t.Errorf("Code = %q, want %q", e.Code, ErrSaveFailed)
	}
	if e.Message != "Unable to save item." {
		t.Errorf("Message = %q", e.Message)
	}
	if len(e.Cause) != 2 || e.Cause[0] != "Access denied" {
		t.Errorf("Cause = %v", e.Cause)
	}
}

func TestNewDeleteFailedError(t *testing.T) {
	e := NewDeleteFailedError()
	if e.Code != ErrDeleteFailed {
		t.Errorf("Code = %q, want %q", e.Code, ErrDeleteFailed)
	}
	if e.Cause != nil {
		t.Errorf("Cause = %v, want nil", e.Cause)
	}
}

func TestConstructorCodes(t *testing.T) {
	tests := []struct {
		name string
		err  *ErrorEnvelope
		code string
	}{
		{"bad request", NewBadRequestError("bad json"), ErrBadRequest},
		{"unauthorized", NewUnauthorizedError("no token"), ErrUnauthorized},
		{"forbidden", NewForbiddenError("denied"), ErrForbidden},
		{"not found", NewNotFoundError("missing"), ErrNotFound},
		{"conflict", NewConflictError("exists"), ErrConflict},
		{"contract", NewContractViolationError("views"), ErrContractViolation},
		{"superseded", NewFormSupersededError(), ErrFormSuperseded},
		{"internal", NewInternalError(), ErrInternalError},
		{"unavailable", NewBackendUnavailableError(), ErrBackendUnavailable},
		{"timeout", NewBackendTimeoutError(), ErrBackendTimeout},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Code != tt.code {
				t.Errorf("Code = %q, want %q", tt.err.Code, tt.code)
			}
			if tt.err.Message == "" {
				t.Error("Message is empty")
			}
		})
	}
}
