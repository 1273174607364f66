// Package routing decides which backend serves a request. A resolver
// maps the request path to a routing policy, and the fallback router
// executes the policy against the current and legacy backends.
package routing

import "strings"

// Domain classifies how a path prefix is governed.
type Domain string

const (
	// DomainOwnerLike routes to the current backend when its feature
	// toggle is enabled and the breaker permits, falling back to legacy.
	DomainOwnerLike Domain = "owner-like"

	// DomainFixedLegacy always routes to the legacy backend.
	DomainFixedLegacy Domain = "fixed-legacy"
)

// Policy binds a path prefix to a governed domain. ToggleName is only
// meaningful for owner-like policies.
type Policy struct {
	PathPrefix string
	Domain     Domain
	ToggleName string
}

// IsOwnerLike reports whether the policy is toggle-governed.
func (p *Policy) IsOwnerLike() bool {
	return p.Domain == DomainOwnerLike
}

// Resolver matches request paths against registered policies in
// registration order, first match wins. Registering a trailing "/"
// catch-all policy makes resolution total.
type Resolver struct {
	policies []*Policy
}

// NewResolver creates a resolver with the given policies. Order is
// significant: more specific prefixes must be registered before the
// catch-all.
func NewResolver(policies ...*Policy) *Resolver {
	return &Resolver{policies: policies}
}

// Register appends a policy after the existing ones.
func (r *Resolver) Register(policy *Policy) {
	r.policies = append(r.policies, policy)
}

// Resolve returns the first policy whose prefix matches the path, or
// nil when no policy matches.
func (r *Resolver) Resolve(path string) *Policy {
	for _, policy := range r.policies {
		if matchesPrefix(path, policy.PathPrefix) {
			return policy
		}
	}
	return nil
}

// Policies returns the registered policies in registration order.
func (r *Resolver) Policies() []*Policy {
	return r.policies
}

// matchesPrefix reports whether the path falls under the prefix on a
// segment boundary: "/owners" matches "/owners" and "/owners/5" but
// not "/ownership".
func matchesPrefix(path, prefix string) bool {
	if prefix == "/" {
		return strings.HasPrefix(path, "/")
	}
	if !strings.HasPrefix(path, prefix) {
		return false
	}
	return len(path) == len(prefix) || path[len(prefix)] == '/' || path[len(prefix)] == '?'
}
