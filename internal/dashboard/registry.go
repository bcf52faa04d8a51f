package dashboard

import (
	"sync/atomic"

	"github.com/pitabwire/vitrine/model"
)

type snapshot struct {
	order []Dashboard
	byKey map[string]Dashboard
}

// Registry maps uriKeys to dashboards. It is populated at boot and read
// without locks afterwards; Replace swaps the whole set atomically.
type Registry struct {
	current atomic.Pointer[snapshot]
}

// NewRegistry registers dashboards in order. Duplicate uriKeys are a
// configuration error.
func NewRegistry(dashboards ...Dashboard) (*Registry, error) {
	r := &Registry{}
	if err := r.Replace(dashboards); err != nil {
		return nil, err
	}
	return r, nil
}

// Replace swaps the registered set. The registry is unchanged on error.
func (r *Registry) Replace(dashboards []Dashboard) error {
	s := &snapshot{
		order: make([]Dashboard, 0, len(dashboards)),
		byKey: make(map[string]Dashboard, len(dashboards)),
	}
	for _, d := range dashboards {
		if d == nil {
			continue
		}
		key := d.URIKey()
		if key == "" {
			return model.NewConfigurationError("dashboard %q has an empty uriKey", d.Name())
		}
		if _, dup := s.byKey[key]; dup {
			return model.NewConfigurationError("dashboard uriKey %q registered twice", key)
		}
		s.byKey[key] = d
		s.order = append(s.order, d)
	}
	r.current.Store(s)
	return nil
}

// Adopt makes staged's current set this registry's set.
func (r *Registry) Adopt(staged *Registry) {
	r.current.Store(staged.current.Load())
}

// Get returns the dashboard registered under uriKey.
func (r *Registry) Get(uriKey string) (Dashboard, bool) {
	s := r.current.Load()
	if s == nil {
		return nil, false
	}
	d, ok := s.byKey[uriKey]
	return d, ok
}

// All returns the dashboards in registration order.
func (r *Registry) All() []Dashboard {
	s := r.current.Load()
	if s == nil {
		return nil
	}
	return append([]Dashboard(nil), s.order...)
}

// Len returns the number of registered dashboards.
func (r *Registry) Len() int {
	s := r.current.Load()
	if s == nil {
		return 0
	}
	return len(s.order)
}
