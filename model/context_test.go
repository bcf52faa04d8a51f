package model

import (
	"context"
	"net/url"
	"testing"
)

func TestRequestContext_Validate(t *testing.T) {
	if err := (&RequestContext{SubjectID: "user-1"}).Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
	if err := (&RequestContext{}).Validate(); err == nil {
		t.Error("Validate() error = nil, want error for missing subject")
	}
}

func TestRequestContext_HasRole(t *testing.T) {
	rc := &RequestContext{Roles: []string{"admin", "editor"}}
	if !rc.HasRole("admin") {
		t.Error("HasRole(admin) = false, want true")
	}
	if rc.HasRole("viewer") {
		t.Error("HasRole(viewer) = true, want false")
	}
}

func TestRequestContext_roundTrip(t *testing.T) {
	rc := &RequestContext{SubjectID: "user-1"}
	ctx := WithRequestContext(context.Background(), rc)
	if got := RequestContextFrom(ctx); got != rc {
		t.Errorf("RequestContextFrom = %v, want %v", got, rc)
	}
	if got := RequestContextFrom(context.Background()); got != nil {
		t.Errorf("RequestContextFrom(empty) = %v, want nil", got)
	}
}

func TestRequest_UserKey(t *testing.T) {
	tests := []struct {
		name string
		req  *Request
		want string
	}{
		{"nil request", nil, GuestKey},
		{"guest", NewRequest(nil, nil), GuestKey},
		{"empty subject", NewRequest(&RequestContext{}, nil), GuestKey},
		{"user", NewRequest(&RequestContext{SubjectID: "u1"}, nil), "u1"},
		{"tenanted", NewRequest(&RequestContext{SubjectID: "u1", TenantID: "t1"}, nil), "t1/u1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.req.UserKey(); got != tt.want {
				t.Errorf("UserKey() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRequest_params(t *testing.T) {
	req := NewRequest(nil, url.Values{
		"range":           {"30"},
		"limit":           {"abc"},
		"no_cache":        {"true"},
		"filters[status]": {"open"},
		"filters[]":       {"ignored"},
	})
	if got := req.IntParam("range", 7); got != 30 {
		t.Errorf("IntParam(range) = %d, want 30", got)
	}
	if got := req.IntParam("limit", 10); got != 10 {
		t.Errorf("IntParam(limit) = %d, want default 10", got)
	}
	if !req.BoolParam("no_cache") {
		t.Error("BoolParam(no_cache) = false, want true")
	}
	filters := req.Prefixed("filters")
	if len(filters) != 1 || filters["status"] != "open" {
		t.Errorf("Prefixed(filters) = %v", filters)
	}
}

func TestRequest_Timezone(t *testing.T) {
	req := NewRequest(&RequestContext{SubjectID: "u", Timezone: "Africa/Nairobi"}, nil)
	if got := req.Timezone(); got != "Africa/Nairobi" {
		t.Errorf("Timezone() = %q", got)
	}

	req.Params.Set("timezone", "Europe/Berlin")
	if got := req.Timezone(); got != "Europe/Berlin" {
		t.Errorf("Timezone() with param = %q", got)
	}

	req.Params.Set("timezone", "Not/AZone")
	if got := req.Timezone(); got != "Africa/Nairobi" {
		t.Errorf("Timezone() with bad param = %q, want profile zone", got)
	}

	if got := NewRequest(nil, nil).Location(); got != nil && got.String() != "UTC" {
		t.Errorf("Location() = %v, want UTC", got)
	}
}
