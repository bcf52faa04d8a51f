package model

import "strings"

// CapabilitySet is the set of capabilities granted to a user. Keys are
// "resource:ability" strings (e.g. "orders:viewAny") and may end in a
// wildcard segment (e.g. "orders:*").
type CapabilitySet map[string]bool

// Ability joins a resource and an ability into a capability string.
func Ability(resource, ability string) string {
	if resource == "" {
		return ability
	}
	return resource + ":" + ability
}

// Has reports whether the set grants cap directly or through a wildcard.
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

// HasAll reports whether every capability in caps is granted.
func (cs CapabilitySet) HasAll(caps ...string) bool {
	for _, cap := range caps {
		if !cs.Has(cap) {
			return false
		}
	}
	return true
}

// HasAny reports whether at least one capability in caps is granted.
func (cs CapabilitySet) HasAny(caps ...string) bool {
	for _, cap := range caps {
		if cs.Has(cap) {
			return true
		}
	}
	return false
}

// matchWildcard returns true if pattern (which may end in "*") matches cap.
//
//	"*"              matches anything
//	"orders:*"       matches "orders:viewAny"
//	"reports:mtd:*"  matches "reports:mtd:view"
//	"orders:view"    does NOT match "orders:viewAny"
func matchWildcard(pattern, cap string) bool {
	if pattern == "*" {
		return true
	}
	if !strings.HasSuffix(pattern, ":*") {
		return false
	}
	return strings.HasPrefix(cap, pattern[:len(pattern)-1])
}

// CapabilityResolver resolves the full capability set of a user.
type CapabilityResolver interface {
	Resolve(rctx *RequestContext) (CapabilitySet, error)

	// Invalidate drops any cached capabilities for the subject.
	Invalidate(subjectID, tenantID string)
}

// PolicyEvaluator is the backing source of capabilities: roles, tenant
// configuration or an external policy engine.
type PolicyEvaluator interface {
	ResolveCapabilities(rctx *RequestContext) (CapabilitySet, error)

	// Evaluate checks a single capability against a concrete subject
	// (e.g. "can this user update THIS report?").
	Evaluate(rctx *RequestContext, capability string, subject map[string]any) (bool, error)

	// Sync refreshes policy data from its source.
	Sync() error
}
