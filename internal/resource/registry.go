package resource

import (
	"sync/atomic"

	"github.com/pitabwire/vitrine/model"
)

type snapshot struct {
	order []*Resource
	byKey map[string]*Resource
}

// Registry maps uriKeys to resources.
type Registry struct {
	current atomic.Pointer[snapshot]
}

// NewRegistry registers resources in order. Duplicate uriKeys are a
// configuration error.
func NewRegistry(resources ...*Resource) (*Registry, error) {
	r := &Registry{}
	if err := r.Replace(resources); err != nil {
		return nil, err
	}
	return r, nil
}

// Replace swaps the registered set. The registry is unchanged on error.
func (r *Registry) Replace(resources []*Resource) error {
	s := &snapshot{
		order: make([]*Resource, 0, len(resources)),
		byKey: make(map[string]*Resource, len(resources)),
	}
	for _, res := range resources {
		if _, dup := s.byKey[res.URIKey()]; dup {
			return model.NewConfigurationError("resource uriKey %q registered twice", res.URIKey())
		}
		s.byKey[res.URIKey()] = res
		s.order = append(s.order, res)
	}
	r.current.Store(s)
	return nil
}

// Adopt makes staged's current set this registry's set.
func (r *Registry) Adopt(staged *Registry) {
	r.current.Store(staged.current.Load())
}

// Get returns the resource registered under uriKey.
func (r *Registry) Get(uriKey string) (*Resource, bool) {
	s := r.current.Load()
	if s == nil {
		return nil, false
	}
	res, ok := s.byKey[uriKey]
	return res, ok
}

// All returns the resources in registration order.
func (r *Registry) All() []*Resource {
	s := r.current.Load()
	if s == nil {
		return nil
	}
	return append([]*Resource(nil), s.order...)
}
