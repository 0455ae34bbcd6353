package model

import (
	"context"
	"errors"
	"slices"
)

// RequestContext carries the identity and tracing information of an
// authenticated admin request. It is immutable after construction and safe
// for concurrent reads.
type RequestContext struct {
	SubjectID     string
	Email         string
	TenantID      string
	Roles         []string
	Claims        map[string]any
	SessionID     string
	CorrelationID string
	TraceID       string
	Locale        string
	Timezone      string

	// BearerToken is forwarded to the GraphQL API so that list and field
	// access control is evaluated for the same user.
	BearerToken string
}

// Validate checks that all mandatory fields are present.
func (rc *RequestContext) Validate() error {
	if rc.SubjectID == "" {
		return errors.New("SubjectID is required")
	}
	return nil
}

// HasRole returns true if the RequestContext contains the given role.
func (rc *RequestContext) HasRole(role string) bool {
	return slices.Contains(rc.Roles, role)
}

// Claim returns the value of the given claim key, or nil if not present.
func (rc *RequestContext) Claim(key string) any {
	if rc.Claims == nil {
		return nil
	}
	return rc.Claims[key]
}

// Owner returns the key under which per-user state such as remembered list
// views is stored.
func (rc *RequestContext) Owner() string {
	if rc.TenantID == "" {
		return rc.SubjectID
	}
	return rc.TenantID + "/" + rc.SubjectID
}

type contextKey struct{}

// WithRequestContext attaches a RequestContext to the given context.
func WithRequestContext(ctx context.Context, rctx *RequestContext) context.Context {
	return context.WithValue(ctx, contextKey{}, rctx)
}

// RequestContextFrom extracts the RequestContext from the context, or returns nil
// if not present.
func RequestContextFrom(ctx context.Context) *RequestContext {
	rctx, _ := ctx.Value(contextKey{}).(*RequestContext)
	return rctx
}

// MustRequestContext extracts the RequestContext from the context, panicking if
// it is not present. Handlers mounted behind the authentication middleware
// always have one.
func MustRequestContext(ctx context.Context) *RequestContext {
	rctx := RequestContextFrom(ctx)
	if rctx == nil {
		panic("model: RequestContext not found in context")
	}
	return rctx
}
