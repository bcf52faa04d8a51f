package metadata

import (
	"context"
	"errors"
	"testing"

	"github.com/pitabwire/vitrine/model"
)

func TestManager_Metadata(t *testing.T) {
	m := NewManager(nil)
	m.SetDefaults(KindCard, "revenue", map[string]any{"width": "1/3", "title": "Revenue"})
	m.SetMetadata(KindCard, "revenue", map[string]any{"title": "Gross Revenue"})
	m.SetMetadata(KindCard, "revenue", map[string]any{"icon": "cash"})

	got := m.Metadata(KindCard, "revenue")
	want := map[string]any{"width": "1/3", "title": "Gross Revenue", "icon": "cash"}
	if len(got) != len(want) {
		t.Fatalf("metadata = %v, want %v", got, want)
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("%s = %v, want %v", k, got[k], v)
		}
	}

	if len(m.Metadata(KindDashboard, "revenue")) != 0 {
		t.Error("kinds must not share metadata")
	}
}

func TestManager_Effective_precedence(t *testing.T) {
	prefs := NewMemoryPreferenceStore()
	m := NewManager(prefs)
	m.SetDefaults(KindCard, "revenue", map[string]any{"width": "1/3", "group": "sales", "color": "blue"})
	m.SetMetadata(KindCard, "revenue", map[string]any{"group": "finance", "color": "green"})
	ctx := context.Background()
	_ = prefs.Put(ctx, "u1", KindCard, "revenue", map[string]any{"color": "red"})

	base := map[string]any{"uriKey": "revenue", "width": "full", "title": "Revenue"}
	got, err := m.Effective(ctx, KindCard, "revenue", "u1", base)
	if err != nil {
		t.Fatalf("Effective error: %v", err)
	}

	want := map[string]any{
		"uriKey": "revenue",
		"title":  "Revenue",
		"width":  "1/3",
		"group":  "finance",
		"color":  "red",
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("%s = %v, want %v", k, got[k], v)
		}
	}
	if base["width"] != "full" {
		t.Error("Effective must not mutate base")
	}
}

func TestManager_Effective_uriKeyProtected(t *testing.T) {
	prefs := NewMemoryPreferenceStore()
	m := NewManager(prefs)
	m.SetMetadata(KindDashboard, "sales", map[string]any{"uriKey": "hijacked"})
	ctx := context.Background()
	_ = prefs.Put(ctx, "u1", KindDashboard, "sales", map[string]any{"uriKey": "mine"})

	got, _ := m.Effective(ctx, KindDashboard, "sales", "u1", map[string]any{"uriKey": "sales"})
	if got["uriKey"] != "sales" {
		t.Errorf("uriKey = %v, want sales", got["uriKey"])
	}

	got, _ = m.Effective(ctx, KindDashboard, "sales", "u1", nil)
	if _, ok := got["uriKey"]; ok {
		t.Error("uriKey must not be introduced by a metadata layer")
	}
}

func TestManager_Effective_guestSkipsPreferences(t *testing.T) {
	prefs := NewMemoryPreferenceStore()
	m := NewManager(prefs)
	ctx := context.Background()
	_ = prefs.Put(ctx, model.GuestKey, KindCard, "revenue", map[string]any{"color": "red"})

	got, err := m.Effective(ctx, KindCard, "revenue", model.GuestKey, map[string]any{"color": "blue"})
	if err != nil || got["color"] != "blue" {
		t.Errorf("Effective = %v, %v", got, err)
	}
}

type failingPrefs struct{ MemoryPreferenceStore }

func (*failingPrefs) Get(context.Context, string, string, string) (map[string]any, error) {
	return nil, errors.New("database unavailable")
}

func TestManager_Effective_storeFailure(t *testing.T) {
	m := NewManager(&failingPrefs{})
	m.SetDefaults(KindCard, "revenue", map[string]any{"width": "1/2"})

	got, err := m.Effective(context.Background(), KindCard, "revenue", "u1", nil)
	if err == nil {
		t.Fatal("expected store error")
	}
	if got["width"] != "1/2" {
		t.Errorf("metadata = %v, want defaults despite store failure", got)
	}
}

func TestMemoryPreferenceStore(t *testing.T) {
	s := NewMemoryPreferenceStore()
	ctx := context.Background()

	if got, err := s.Get(ctx, "u1", KindCard, "x"); err != nil || got != nil {
		t.Fatalf("Get on empty store = %v, %v", got, err)
	}

	meta := map[string]any{"collapsed": true}
	if err := s.Put(ctx, "u1", KindCard, "x", meta); err != nil {
		t.Fatal(err)
	}
	meta["collapsed"] = false

	got, _ := s.Get(ctx, "u1", KindCard, "x")
	if got["collapsed"] != true {
		t.Errorf("stored value changed through caller's map: %v", got)
	}
	got["collapsed"] = "mutated"
	again, _ := s.Get(ctx, "u1", KindCard, "x")
	if again["collapsed"] != true {
		t.Error("Get must return a copy")
	}

	if other, _ := s.Get(ctx, "u2", KindCard, "x"); other != nil {
		t.Errorf("u2 sees u1 preferences: %v", other)
	}

	if err := s.Delete(ctx, "u1", KindCard, "x"); err != nil {
		t.Fatal(err)
	}
	if err := s.Delete(ctx, "u1", KindCard, "x"); err != nil {
		t.Errorf("second Delete error = %v", err)
	}
	if got, _ := s.Get(ctx, "u1", KindCard, "x"); got != nil {
		t.Errorf("Get after Delete = %v", got)
	}
	if err := s.HealthCheck(ctx); err != nil {
		t.Errorf("HealthCheck error = %v", err)
	}
}
