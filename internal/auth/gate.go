package auth

import (
	"context"
	"fmt"
	"sync"

	"github.com/pitabwire/vitrine/model"
)

// Gate answers ability checks for an authenticated user.
type Gate interface {
	Allows(ctx context.Context, user *model.RequestContext, ability string, subject any) (bool, error)
}

// GateFunc adapts a function to Gate.
type GateFunc func(ctx context.Context, user *model.RequestContext, ability string, subject any) (bool, error)

// Allows calls f.
func (f GateFunc) Allows(ctx context.Context, user *model.RequestContext, ability string, subject any) (bool, error) {
	return f(ctx, user, ability, subject)
}

// PolicyMethod is a single named check of a policy.
type PolicyMethod func(ctx context.Context, user *model.RequestContext, args ...any) (bool, error)

// Policy maps method names to checks.
type Policy map[string]PolicyMethod

// Policies is a registry of named policies. Policies are registered at boot
// and only read afterwards.
type Policies struct {
	mu       sync.RWMutex
	policies map[string]Policy
}

// NewPolicies creates an empty policy registry.
func NewPolicies() *Policies {
	return &Policies{policies: make(map[string]Policy)}
}

// Register adds a policy under name. Registering a name twice is an error.
func (p *Policies) Register(name string, policy Policy) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, exists := p.policies[name]; exists {
		return fmt.Errorf("policy %q already registered", name)
	}
	p.policies[name] = policy
	return nil
}

// Method returns the named method of the named policy.
func (p *Policies) Method(policy, method string) (PolicyMethod, bool) {
	if p == nil {
		return nil, false
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	pol, ok := p.policies[policy]
	if !ok {
		return nil, false
	}
	m, ok := pol[method]
	if !ok || m == nil {
		return nil, false
	}
	return m, true
}

// WhenGate builds a predicate that asks gate whether the request's user has
// ability on subject. Guests are denied without consulting the gate.
func WhenGate(gate Gate, ability string, subject any) Predicate {
	return func(ctx context.Context, req *model.Request) (bool, error) {
		if !req.Authenticated() || gate == nil {
			return false, nil
		}
		return gate.Allows(ctx, req.User, ability, subject)
	}
}

// WhenPolicy builds a predicate that calls method on the named policy.
// Guests, missing policies and missing methods are denied. Errors raised by
// a found method are returned.
func WhenPolicy(policies *Policies, policy, method string, args ...any) Predicate {
	return func(ctx context.Context, req *model.Request) (bool, error) {
		if !req.Authenticated() {
			return false, nil
		}
		m, ok := policies.Method(policy, method)
		if !ok {
			return false, nil
		}
		return m(ctx, req.User, args...)
	}
}

// CanSeeWhen registers a gate-backed predicate.
func (a *Authorizer) CanSeeWhen(gate Gate, ability string, subject any) *Authorizer {
	return a.CanSee(WhenGate(gate, ability, subject))
}

// CanSeeWhenPolicy registers a policy-backed predicate.
func (a *Authorizer) CanSeeWhenPolicy(policies *Policies, policy, method string, args ...any) *Authorizer {
	return a.CanSee(WhenPolicy(policies, policy, method, args...))
}

// All builds a predicate that holds when every predicate holds. It stops at
// the first denial or error. No predicates allow.
func All(preds ...Predicate) Predicate {
	return func(ctx context.Context, req *model.Request) (bool, error) {
		for _, p := range preds {
			ok, err := p(ctx, req)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil
	}
}
