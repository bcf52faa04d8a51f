package auth

import (
	"context"
	"errors"
	"testing"

	"github.com/pitabwire/vitrine/model"
)

func TestCanSeeWhen(t *testing.T) {
	var gotAbility string
	var gotSubject any
	gate := GateFunc(func(_ context.Context, user *model.RequestContext, ability string, subject any) (bool, error) {
		gotAbility, gotSubject = ability, subject
		return user.HasRole("admin"), nil
	})
	a := New(true).CanSeeWhen(gate, "viewAny", "orders")
	ctx := context.Background()

	tests := []struct {
		name string
		req  *model.Request
		want bool
	}{
		{"guest", model.NewRequest(nil, nil), false},
		{"admin", model.NewRequest(&model.RequestContext{SubjectID: "u1", Roles: []string{"admin"}}, nil), true},
		{"viewer", model.NewRequest(&model.RequestContext{SubjectID: "u2"}, nil), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := a.AuthorizedToSee(ctx, tt.req)
			if err != nil {
				t.Fatalf("error: %v", err)
			}
			if got != tt.want {
				t.Errorf("AuthorizedToSee = %v, want %v", got, tt.want)
			}
		})
	}
	if gotAbility != "viewAny" || gotSubject != "orders" {
		t.Errorf("gate called with %q, %v", gotAbility, gotSubject)
	}
}

func TestCanSeeWhen_guestNeverReachesGate(t *testing.T) {
	called := false
	gate := GateFunc(func(context.Context, *model.RequestContext, string, any) (bool, error) {
		called = true
		return true, nil
	})
	a := New(true).CanSeeWhen(gate, "viewAny", "orders")
	if got, _ := a.AuthorizedToSee(context.Background(), model.NewRequest(nil, nil)); got {
		t.Error("guest allowed")
	}
	if called {
		t.Error("gate consulted for guest")
	}
}

func TestCanSeeWhenPolicy(t *testing.T) {
	boom := errors.New("policy exploded")
	policies := NewPolicies()
	err := policies.Register("report", Policy{
		"view": func(_ context.Context, user *model.RequestContext, args ...any) (bool, error) {
			return len(args) == 1 && args[0] == user.TenantID, nil
		},
		"explode": func(context.Context, *model.RequestContext, ...any) (bool, error) {
			return false, boom
		},
	})
	if err != nil {
		t.Fatalf("Register error: %v", err)
	}
	if err := policies.Register("report", Policy{}); err == nil {
		t.Error("duplicate Register should fail")
	}

	ctx := context.Background()
	user := model.NewRequest(&model.RequestContext{SubjectID: "u1", TenantID: "t1"}, nil)

	tests := []struct {
		name    string
		policy  string
		method  string
		req     *model.Request
		want    bool
		wantErr error
	}{
		{"allowed", "report", "view", user, true, nil},
		{"guest", "report", "view", model.NewRequest(nil, nil), false, nil},
		{"missing policy", "invoice", "view", user, false, nil},
		{"missing method", "report", "delete", user, false, nil},
		{"method error propagates", "report", "explode", user, false, boom},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := New(true).CanSeeWhenPolicy(policies, tt.policy, tt.method, "t1")
			got, err := a.AuthorizedToSee(ctx, tt.req)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("error = %v, want %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("AuthorizedToSee = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPolicies_nilRegistry(t *testing.T) {
	a := New(true).CanSeeWhenPolicy(nil, "report", "view")
	user := model.NewRequest(&model.RequestContext{SubjectID: "u1"}, nil)
	got, err := a.AuthorizedToSee(context.Background(), user)
	if err != nil || got {
		t.Errorf("AuthorizedToSee = %v, %v; want false, nil", got, err)
	}
}

func TestAll(t *testing.T) {
	allow := func(context.Context, *model.Request) (bool, error) { return true, nil }
	deny := func(context.Context, *model.Request) (bool, error) { return false, nil }
	boom := errors.New("boom")
	fail := func(context.Context, *model.Request) (bool, error) { return false, boom }

	tests := []struct {
		name    string
		preds   []Predicate
		want    bool
		wantErr error
	}{
		{"none", nil, true, nil},
		{"all allow", []Predicate{allow, allow}, true, nil},
		{"one denies", []Predicate{allow, deny}, false, nil},
		{"error stops", []Predicate{fail, allow}, false, boom},
		{"deny before error", []Predicate{deny, fail}, false, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := All(tt.preds...)(context.Background(), model.NewRequest(nil, nil))
			if got != tt.want || !errors.Is(err, tt.wantErr) {
				t.Errorf("All = %v, %v; want %v, %v", got, err, tt.want, tt.wantErr)
			}
		})
	}
}
