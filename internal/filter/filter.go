// Package filter translates submitted filter values into query constraints
// and describes each filter's input for the frontend.
package filter

import (
	"context"
	"encoding/json"
	"reflect"
	"strings"

	"gorm.io/gorm"

	"github.com/pitabwire/vitrine/internal/naming"
	"github.com/pitabwire/vitrine/model"
)

// Filter constrains a query with a single submitted value.
type Filter interface {
	Name() string
	Key() string
	Component() string
	Default() any
	// Apply returns query constrained by value. Empty values leave the
	// query unchanged; so do malformed ones.
	Apply(query *gorm.DB, value any) *gorm.DB
	// Options describes the input the frontend renders.
	Options(ctx context.Context, req *model.Request) (map[string]any, error)
}

// common holds identity shared by every filter.
type common struct {
	name      string
	key       string
	column    string
	component string
	def       any
}

func newCommon(name, column, component string) common {
	return common{
		name:      name,
		key:       naming.Slug(name),
		column:    column,
		component: component,
	}
}

// Name returns the display name.
func (c *common) Name() string { return c.name }

// Key returns the parameter key, a slug of the name unless overridden.
func (c *common) Key() string { return c.key }

// Component returns the frontend input component.
func (c *common) Component() string { return c.component }

// Default returns the default value.
func (c *common) Default() any { return c.def }

// Column returns the constrained column.
func (c *common) Column() string { return c.column }

// IsEmpty reports whether a submitted value means "no filter".
func IsEmpty(v any) bool {
	if v == nil {
		return true
	}
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t) == ""
	case []byte:
		return len(t) == 0
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map:
		return rv.Len() == 0
	case reflect.Pointer, reflect.Interface:
		return rv.IsNil()
	}
	return false
}

// Describe serializes f for the frontend.
func Describe(ctx context.Context, req *model.Request, f Filter) (model.FilterDescriptor, error) {
	opts, err := f.Options(ctx, req)
	if err != nil {
		return model.FilterDescriptor{}, err
	}
	if opts == nil {
		opts = map[string]any{}
	}
	return model.FilterDescriptor{
		Key:       f.Key(),
		Name:      f.Name(),
		Component: f.Component(),
		Default:   f.Default(),
		Options:   opts,
	}, nil
}

// Enums is a registry of named option lists.
type Enums map[string][]model.OptionDescriptor

// bounds extracts a {lower, upper} pair from a submitted range value. It
// accepts maps keyed by the given names, two-element slices, JSON objects
// and "lower,upper" strings.
func bounds(v any, lowerKey, upperKey string) (lower, upper any, ok bool) {
	switch t := v.(type) {
	case map[string]any:
		return t[lowerKey], t[upperKey], true
	case map[string]string:
		return t[lowerKey], t[upperKey], true
	case []any:
		if len(t) != 2 {
			return nil, nil, false
		}
		return t[0], t[1], true
	case []string:
		if len(t) != 2 {
			return nil, nil, false
		}
		return t[0], t[1], true
	case string:
		s := strings.TrimSpace(t)
		if strings.HasPrefix(s, "{") {
			var m map[string]any
			if err := json.Unmarshal([]byte(s), &m); err != nil {
				return nil, nil, false
			}
			return m[lowerKey], m[upperKey], true
		}
		parts := strings.Split(s, ",")
		if len(parts) != 2 {
			return nil, nil, false
		}
		return strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1]), true
	}
	return nil, nil, false
}
