package capability

import (
	"context"
	"fmt"

	"github.com/pitabwire/vitrine/model"
)

// Gate answers ability checks from resolved capabilities. A string subject
// names a resource and is checked as "resource:ability"; a map subject is
// handed to the policy evaluator along with the capability it names
// through its "resource" key.
type Gate struct {
	resolver  model.CapabilityResolver
	evaluator model.PolicyEvaluator
}

// NewGate creates a Gate.
func NewGate(resolver model.CapabilityResolver, evaluator model.PolicyEvaluator) *Gate {
	return &Gate{resolver: resolver, evaluator: evaluator}
}

// Allows implements auth.Gate.
func (g *Gate) Allows(_ context.Context, user *model.RequestContext, ability string, subject any) (bool, error) {
	if user == nil {
		return false, nil
	}

	switch s := subject.(type) {
	case nil:
		return g.has(user, ability)
	case string:
		return g.has(user, model.Ability(s, ability))
	case map[string]any:
		resource, _ := s["resource"].(string)
		return g.evaluator.Evaluate(user, model.Ability(resource, ability), s)
	default:
		return false, fmt.Errorf("capability: unsupported subject type %T", subject)
	}
}

func (g *Gate) has(user *model.RequestContext, capability string) (bool, error) {
	caps, err := g.resolver.Resolve(user)
	if err != nil {
		return false, fmt.Errorf("capability: resolving for %s: %w", user.SubjectID, err)
	}
	return caps.Has(capability), nil
}
