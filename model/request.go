package model

import (
	"net/url"
	"strconv"
	"strings"
	"time"
)

// GuestKey identifies unauthenticated users in cache keys.
const GuestKey = "guest"

// Request is the read-only view of an inbound request that dashboards, cards,
// metrics, filters and menus are evaluated against.
type Request struct {
	// User is nil for guests.
	User   *RequestContext
	Params url.Values
}

// NewRequest builds a Request. A nil params map is replaced by an empty one.
func NewRequest(user *RequestContext, params url.Values) *Request {
	if params == nil {
		params = url.Values{}
	}
	return &Request{User: user, Params: params}
}

// Authenticated reports whether the request carries a user.
func (r *Request) Authenticated() bool {
	return r != nil && r.User != nil && r.User.SubjectID != ""
}

// UserKey identifies the user for cache partitioning. Tenanted users are
// prefixed with their tenant so equal subject ids never collide.
func (r *Request) UserKey() string {
	if !r.Authenticated() {
		return GuestKey
	}
	if r.User.TenantID != "" {
		return r.User.TenantID + "/" + r.User.SubjectID
	}
	return r.User.SubjectID
}

// Param returns the first value of a query parameter.
func (r *Request) Param(key string) string {
	if r == nil {
		return ""
	}
	return r.Params.Get(key)
}

// IntParam returns a query parameter parsed as an integer, or def.
func (r *Request) IntParam(key string, def int) int {
	s := r.Param(key)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}

// BoolParam reports whether a query parameter is set to a truthy value.
func (r *Request) BoolParam(key string) bool {
	switch strings.ToLower(r.Param(key)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

// Prefixed collects bracketed parameters, e.g. filters[status]=open becomes
// {"status": "open"}.
func (r *Request) Prefixed(prefix string) map[string]string {
	result := make(map[string]string)
	if r == nil {
		return result
	}
	for key, values := range r.Params {
		if len(key) > len(prefix)+2 && key[:len(prefix)+1] == prefix+"[" && key[len(key)-1] == ']' {
			if len(values) > 0 {
				result[key[len(prefix)+1:len(key)-1]] = values[0]
			}
		}
	}
	return result
}

// Timezone returns the IANA timezone name of the request. The timezone query
// parameter wins over the user's profile; UTC is the fallback.
func (r *Request) Timezone() string {
	if tz := r.Param("timezone"); tz != "" {
		if _, err := time.LoadLocation(tz); err == nil {
			return tz
		}
	}
	if r != nil && r.User != nil && r.User.Timezone != "" {
		if _, err := time.LoadLocation(r.User.Timezone); err == nil {
			return r.User.Timezone
		}
	}
	return "UTC"
}

// Location returns the request timezone as a *time.Location.
func (r *Request) Location() *time.Location {
	loc, err := time.LoadLocation(r.Timezone())
	if err != nil {
		return time.UTC
	}
	return loc
}
