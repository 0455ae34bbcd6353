package model

import "strings"

// List operations guarded by capabilities.
const (
	ActionRead   = "read"
	ActionCreate = "create"
	ActionUpdate = "update"
	ActionDelete = "delete"
)

// CapabilityReinit allows rebuilding the admin metadata.
const CapabilityReinit = "admin:reinit"

// ListCapability returns the capability guarding action on the given list,
// e.g. "Post:delete".
func ListCapability(listKey, action string) string {
	return listKey + ":" + action
}

// CapabilitySet is a set of capabilities granted to a user. Keys are
// capability strings such as "Post:read" and may end in a wildcard
// ("Post:*").
type CapabilitySet map[string]bool

// Has returns true if the set contains the exact capability or a wildcard
// that matches it.
func (cs CapabilitySet) Has(cap string) bool {
	if cs[cap] {
		return true
	}
	for pattern := range cs {
		if matchWildcard(pattern, cap) {
			return true
		}
	}
	return false
}

// HasAll returns true if the set matches all given capabilities.
func (cs CapabilitySet) HasAll(caps ...string) bool {
	for _, cap := range caps {
		if !cs.Has(cap) {
			return false
		}
	}
	return true
}

// CanList reports whether action is permitted on listKey.
func (cs CapabilitySet) CanList(listKey, action string) bool {
	return cs.Has(ListCapability(listKey, action))
}

// matchWildcard returns true if pattern (which may end in "*") matches cap.
//
//	"*"        matches anything
//	"Post:*"   matches "Post:delete"
//	"Post"     does NOT match "Post:delete"
func matchWildcard(pattern, cap string) bool {
	if pattern == "*" {
		return true
	}
	if !strings.HasSuffix(pattern, ":*") {
		return false
	}
	return strings.HasPrefix(cap, pattern[:len(pattern)-1])
}

// CapabilityResolver resolves the full capability set for a request context.
type CapabilityResolver interface {
	Resolve(rctx *RequestContext) (CapabilitySet, error)

	// Invalidate clears cached capabilities for the given user and tenant.
	Invalidate(subjectID, tenantID string)
}

// PolicyEvaluator maps the roles of a request to capabilities.
type PolicyEvaluator interface {
	ResolveCapabilities(rctx *RequestContext) (CapabilitySet, error)

	// Sync refreshes policy data from its source.
	Sync() error
}
