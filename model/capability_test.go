package model

import "testing"

func TestCapabilitySet_Has_exact(t *testing.T) {
	cs := CapabilitySet{
		"orders:viewAny":  true,
		"reports:viewAny": true,
	}
	if !cs.Has("orders:viewAny") {
		t.Error("Has(orders:viewAny) = false, want true")
	}
	if cs.Has("orders:delete") {
		t.Error("Has(orders:delete) = true, want false")
	}
}

func TestCapabilitySet_Has_wildcard(t *testing.T) {
	tests := []struct {
		pattern string
		cap     string
		want    bool
	}{
		{"*", "orders:viewAny", true},
		{"orders:*", "orders:viewAny", true},
		{"orders:*", "users:viewAny", false},
		{"orders:view", "orders:viewAny", false},
		{"reports:mtd:*", "reports:mtd:view", true},
	}
	for _, tt := range tests {
		cs := CapabilitySet{tt.pattern: true}
		if got := cs.Has(tt.cap); got != tt.want {
			t.Errorf("%q.Has(%q) = %v, want %v", tt.pattern, tt.cap, got, tt.want)
		}
	}
}

func TestCapabilitySet_HasAll_HasAny(t *testing.T) {
	cs := CapabilitySet{"orders:viewAny": true, "users:*": true}
	if !cs.HasAll("orders:viewAny", "users:update") {
		t.Error("HasAll = false, want true")
	}
	if cs.HasAll("orders:viewAny", "reports:viewAny") {
		t.Error("HasAll = true, want false")
	}
	if !cs.HasAny("reports:viewAny", "users:delete") {
		t.Error("HasAny = false, want true")
	}
	if cs.HasAny("reports:viewAny") {
		t.Error("HasAny = true, want false")
	}
}

func TestAbility(t *testing.T) {
	if got := Ability("orders", "viewAny"); got != "orders:viewAny" {
		t.Errorf("Ability = %q", got)
	}
	if got := Ability("", "viewNova"); got != "viewNova" {
		t.Errorf("Ability = %q", got)
	}
}
