package card

import (
	"errors"
	"strings"
	"testing"

	"github.com/pitabwire/vitrine/model"
)

func TestRegistry_Register(t *testing.T) {
	r := NewRegistry()
	if err := r.Register("orders", func() (Card, error) { return New("Orders"), nil }); err != nil {
		t.Fatalf("Register error: %v", err)
	}

	tests := []struct {
		name string
		key  string
		f    Factory
	}{
		{"empty key", "", func() (Card, error) { return New("X"), nil }},
		{"nil factory", "x", nil},
		{"duplicate", "orders", func() (Card, error) { return New("Orders"), nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := r.Register(tt.key, tt.f)
			if !model.IsConfigurationError(err) {
				t.Errorf("error = %v, want configuration error", err)
			}
		})
	}
}

func TestRegistry_BuildSkipsFailures(t *testing.T) {
	r := NewRegistry()
	_ = r.RegisterCard(New("Orders"))
	_ = r.Register("broken", func() (Card, error) { return nil, errors.New("missing dependency") })
	_ = r.Register("panicky", func() (Card, error) { panic("renamed type") })
	_ = r.RegisterCard(New("Revenue"))

	cards, errs := r.Build([]string{"orders", "broken", "revenue"})
	if len(cards) != 2 {
		t.Fatalf("cards = %d, want 2", len(cards))
	}
	if cards[0].URIKey() != "orders" || cards[1].URIKey() != "revenue" {
		t.Errorf("order = %s, %s", cards[0].URIKey(), cards[1].URIKey())
	}
	if len(errs) != 1 || errs[0].Key != "broken" {
		t.Errorf("errs = %v", errs)
	}

	cards, errs = r.Build([]string{"panicky", "unknown", "orders"})
	if len(cards) != 1 || len(errs) != 2 {
		t.Fatalf("cards = %d, errs = %d; want 1, 2", len(cards), len(errs))
	}
	if !strings.Contains(errs[0].Error(), "panicked") {
		t.Errorf("panic error = %v", errs[0])
	}
	if !strings.Contains(errs[1].Error(), "not registered") {
		t.Errorf("unknown error = %v", errs[1])
	}
}

func TestRegistry_nilCard(t *testing.T) {
	r := NewRegistry()
	_ = r.Register("nil", func() (Card, error) { return nil, nil })
	if _, err := r.Make("nil"); err == nil {
		t.Error("nil card should be an error")
	}
}

func TestRegistry_Keys(t *testing.T) {
	r := NewRegistry()
	_ = r.RegisterCard(New("B"))
	_ = r.RegisterCard(New("A"))
	keys := r.Keys()
	if len(keys) != 2 || keys[0] != "b" || keys[1] != "a" {
		t.Errorf("Keys = %v, want registration order", keys)
	}
	if !r.Has("a") || r.Has("c") {
		t.Error("Has mismatch")
	}
}
