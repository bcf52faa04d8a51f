package card

import (
	"fmt"
	"sync"

	"github.com/pitabwire/vitrine/model"
)

// Factory constructs a card.
type Factory func() (Card, error)

// BuildError records a card that could not be constructed.
type BuildError struct {
	Key string
	Err error
}

func (e BuildError) Error() string {
	return fmt.Sprintf("card %q: %v", e.Key, e.Err)
}

func (e BuildError) Unwrap() error {
	return e.Err
}

// Registry maps stable card keys to factories. Registration happens at boot;
// builds are safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
	order     []string
}

// NewRegistry creates an empty card registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a factory under key.
func (r *Registry) Register(key string, f Factory) error {
	if key == "" {
		return model.NewConfigurationError("card key is required")
	}
	if f == nil {
		return model.NewConfigurationError("card %q has no factory", key)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[key]; exists {
		return model.NewConfigurationError("card %q already registered", key)
	}
	r.factories[key] = f
	r.order = append(r.order, key)
	return nil
}

// RegisterCard registers a factory returning c on every build. Suitable
// for stateless cards.
func (r *Registry) RegisterCard(c Card) error {
	return r.Register(c.URIKey(), func() (Card, error) { return c, nil })
}

// Has reports whether key is registered.
func (r *Registry) Has(key string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[key]
	return ok
}

// Keys returns registered keys in registration order.
func (r *Registry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Make constructs the card registered under key. Factory panics are
// returned as errors.
func (r *Registry) Make(key string) (c Card, err error) {
	r.mu.RLock()
	f, ok := r.factories[key]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("card %q is not registered", key)
	}

	defer func() {
		if p := recover(); p != nil {
			c, err = nil, fmt.Errorf("card %q factory panicked: %v", key, p)
		}
	}()

	c, err = f()
	if err == nil && c == nil {
		err = fmt.Errorf("card %q factory returned nil", key)
	}
	return c, err
}

// Build constructs the cards for keys in order. Cards that fail to build are
// left out and reported; the rest are returned.
func (r *Registry) Build(keys []string) ([]Card, []BuildError) {
	cards := make([]Card, 0, len(keys))
	var errs []BuildError
	for _, key := range keys {
		c, err := r.Make(key)
		if err != nil {
			errs = append(errs, BuildError{Key: key, Err: err})
			continue
		}
		cards = append(cards, c)
	}
	return cards, errs
}
