package menu

import (
	"context"

	"go.uber.org/zap"

	"github.com/pitabwire/vitrine/internal/observability"
	"github.com/pitabwire/vitrine/model"
)

// Resolver turns entries into the navigation tree a request may see.
type Resolver struct {
	log *zap.Logger
}

// NewResolver creates a Resolver. A nil logger discards output.
func NewResolver(logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{log: logger}
}

// Resolve evaluates entries in order and keeps the visible ones. Badge
// failures only drop the badge; authorization errors abort resolution.
func (r *Resolver) Resolve(ctx context.Context, req *model.Request, entries []Entry) (model.NavigationTree, error) {
	nodes, err := r.resolveAll(ctx, req, entries)
	if err != nil {
		return model.NavigationTree{}, err
	}
	if nodes == nil {
		nodes = []model.NavigationNode{}
	}
	return model.NavigationTree{Items: nodes}, nil
}

func (r *Resolver) resolveAll(ctx context.Context, req *model.Request, entries []Entry) ([]model.NavigationNode, error) {
	var nodes []model.NavigationNode
	for _, e := range entries {
		if e == nil {
			continue
		}
		node, ok, err := e.resolve(ctx, req, r)
		if err != nil {
			return nil, err
		}
		if ok {
			nodes = append(nodes, node)
		}
	}
	return nodes, nil
}

func (r *Resolver) logger(ctx context.Context) *zap.Logger {
	return observability.RequestLogger(ctx, r.log)
}
