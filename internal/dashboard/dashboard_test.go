package dashboard

import (
	"context"
	"encoding/json"
	"reflect"
	"sort"
	"testing"

	"github.com/pitabwire/vitrine/internal/card"
	"github.com/pitabwire/vitrine/internal/menu"
	"github.com/pitabwire/vitrine/model"
)

func request(subject string, roles ...string) *model.Request {
	if subject == "" {
		return model.NewRequest(nil, nil)
	}
	return model.NewRequest(&model.RequestContext{SubjectID: subject, Roles: roles}, nil)
}

func deny(context.Context, *model.Request) (bool, error) { return false, nil }

func adminOnly(_ context.Context, req *model.Request) (bool, error) {
	return req.User != nil && req.User.HasRole("admin"), nil
}

func TestNew_identity(t *testing.T) {
	tests := []struct {
		class, name, uriKey string
	}{
		{"SalesOverview", "Sales Overview", "sales-overview"},
		{"Main", "Main", "main"},
		{"HRDashboard", "HR Dashboard", "hr-dashboard"},
	}
	for _, tt := range tests {
		t.Run(tt.class, func(t *testing.T) {
			d := New(tt.class, nil)
			if d.Name() != tt.name || d.URIKey() != tt.uriKey {
				t.Errorf("identity = %q / %q, want %q / %q", d.Name(), d.URIKey(), tt.name, tt.uriKey)
			}
			if d.Description() != nil || d.Icon() != nil || d.Category() != nil {
				t.Error("optional fields should default to nil")
			}
			if d.ShouldShowRefreshButton() {
				t.Error("refresh button should be off by default")
			}
		})
	}
}

func TestWithName_followsUnlessURIKeySet(t *testing.T) {
	d := New("Sales", nil).WithName("Revenue Board")
	if d.URIKey() != "revenue-board" {
		t.Errorf("URIKey = %q, want revenue-board", d.URIKey())
	}
	d = New("Sales", nil).WithURIKey("sales-v2").WithName("Revenue Board")
	if d.URIKey() != "sales-v2" {
		t.Errorf("URIKey = %q, want sales-v2", d.URIKey())
	}
}

func TestShowRefreshButton_idempotent(t *testing.T) {
	d := New("Sales", nil).ShowRefreshButton().ShowRefreshButton()
	if !d.ShouldShowRefreshButton() {
		t.Error("refresh button should be on")
	}
}

func TestMarshalJSON_exactKeys(t *testing.T) {
	d := New("Sales", Static(card.New("Orders"))).WithIcon("chart").ShowRefreshButton()
	raw, err := json.Marshal(d)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var got map[string]any
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	keys := make([]string, 0, len(got))
	for k := range got {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	want := []string{"category", "description", "icon", "name", "showRefreshButton", "uriKey"}
	if !reflect.DeepEqual(keys, want) {
		t.Fatalf("keys = %v, want %v", keys, want)
	}
	if got["icon"] != "chart" || got["description"] != nil || got["showRefreshButton"] != true {
		t.Errorf("body = %v", got)
	}
}

func TestAuthorizedToSee(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name string
		d    *Base
		req  *model.Request
		want bool
	}{
		{"default allows", New("Sales", nil), request("u1"), true},
		{"predicate denies", New("Sales", nil).CanSee(deny), request("u1"), false},
		{"predicate allows admin", New("Sales", nil).CanSee(adminOnly), request("u1", "admin"), true},
		{"main ignores predicate", New("Main", nil).CanSee(deny), request("u1"), true},
		{"main visible to guests", New("Other", nil).WithURIKey(MainURIKey).CanSee(deny), request(""), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.d.AuthorizedToSee(ctx, tt.req)
			if err != nil {
				t.Fatalf("AuthorizedToSee error: %v", err)
			}
			if got != tt.want {
				t.Errorf("AuthorizedToSee = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCards_freshPerCall(t *testing.T) {
	calls := 0
	d := New("Sales", func(context.Context, *model.Request) ([]card.Card, error) {
		calls++
		return []card.Card{card.New("Orders")}, nil
	})
	for range 2 {
		if _, err := d.Cards(context.Background(), request("u1")); err != nil {
			t.Fatal(err)
		}
	}
	if calls != 2 {
		t.Errorf("cards built %d times, want 2", calls)
	}
	if cards, _ := New("Empty", nil).Cards(context.Background(), request("u1")); len(cards) != 0 {
		t.Errorf("nil CardsFunc returned %d cards", len(cards))
	}
}

func TestRegistry(t *testing.T) {
	a, b := New("Sales", nil), New("Support", nil)
	r, err := NewRegistry(a, b)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	if r.Len() != 2 {
		t.Errorf("Len = %d", r.Len())
	}
	all := r.All()
	if all[0].URIKey() != "sales" || all[1].URIKey() != "support" {
		t.Errorf("order = %s, %s", all[0].URIKey(), all[1].URIKey())
	}
	if got, ok := r.Get("support"); !ok || got != Dashboard(b) {
		t.Error("Get(support) missed")
	}
	if _, ok := r.Get("nope"); ok {
		t.Error("Get(nope) should miss")
	}

	_, err = NewRegistry(a, New("Other", nil).WithURIKey("sales"))
	if !model.IsConfigurationError(err) {
		t.Errorf("duplicate uriKey error = %v, want configuration error", err)
	}

	if err := r.Replace([]Dashboard{a, a}); err == nil {
		t.Error("Replace with duplicates should fail")
	}
	if r.Len() != 2 {
		t.Error("failed Replace changed the registry")
	}

	staged, _ := NewRegistry(New("Billing", nil))
	r.Adopt(staged)
	if _, ok := r.Get("billing"); !ok || r.Len() != 1 {
		t.Errorf("after Adopt Len = %d", r.Len())
	}
}

func TestMenuItem(t *testing.T) {
	d := New("Sales", nil).WithIcon("chart").WithCategory("Finance").CanSee(adminOnly)
	tree, err := menu.NewResolver(nil).Resolve(context.Background(), request("u1", "admin"), []menu.Entry{MenuItem(d)})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(tree.Items) != 1 {
		t.Fatalf("items = %d, want 1", len(tree.Items))
	}
	node := tree.Items[0]
	if node.Path != "/dashboards/sales" || node.Meta["uriKey"] != "sales" {
		t.Errorf("node = %+v", node)
	}

	tree, err = menu.NewResolver(nil).Resolve(context.Background(), request("u2"), []menu.Entry{MenuItem(d)})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(tree.Items) != 0 {
		t.Errorf("hidden dashboard produced %d items", len(tree.Items))
	}
}

func TestMenuSection(t *testing.T) {
	s, err := MenuSection("Reports", []Dashboard{New("Sales", nil), New("Support", nil).CanSee(deny)}, menu.Collapsible())
	if err != nil {
		t.Fatalf("MenuSection: %v", err)
	}
	tree, err := menu.NewResolver(nil).Resolve(context.Background(), request("u1"), []menu.Entry{s})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(tree.Items) != 1 || len(tree.Items[0].Children) != 1 {
		t.Fatalf("tree = %+v", tree)
	}
	if tree.Items[0].Children[0].Label != "Sales" {
		t.Errorf("child = %q", tree.Items[0].Children[0].Label)
	}

	if _, err := MenuSection("Reports", nil, menu.WithPath("/r"), menu.Collapsible()); err == nil {
		t.Error("path with collapsible should be rejected")
	}
}
