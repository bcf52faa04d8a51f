package filter

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/pitabwire/vitrine/model"
)

// Boolean matches a column against one of two stored values.
type Boolean struct {
	common

	trueValue  any
	falseValue any
	trueLabel  string
	falseLabel string
}

// NewBoolean creates a boolean filter storing true and false as-is.
func NewBoolean(name, column string) *Boolean {
	return &Boolean{
		common:     newCommon(name, column, "boolean-filter"),
		trueValue:  true,
		falseValue: false,
		trueLabel:  "Yes",
		falseLabel: "No",
	}
}

// WithKey overrides the parameter key.
func (b *Boolean) WithKey(key string) *Boolean {
	b.key = key
	return b
}

// WithDefault sets the default value.
func (b *Boolean) WithDefault(v any) *Boolean {
	b.def = v
	return b
}

// Values sets the stored values matched for true and false.
func (b *Boolean) Values(trueValue, falseValue any) *Boolean {
	b.trueValue, b.falseValue = trueValue, falseValue
	return b
}

// Labels sets the option labels.
func (b *Boolean) Labels(trueLabel, falseLabel string) *Boolean {
	b.trueLabel, b.falseLabel = trueLabel, falseLabel
	return b
}

// Apply implements Filter.
func (b *Boolean) Apply(query *gorm.DB, value any) *gorm.DB {
	if IsEmpty(value) {
		return query
	}
	stored := b.falseValue
	if truthy(value) {
		stored = b.trueValue
	}
	return query.Where("? = ?", clause.Column{Name: b.column}, stored)
}

// Options implements Filter.
func (b *Boolean) Options(context.Context, *model.Request) (map[string]any, error) {
	return map[string]any{
		"options": []model.OptionDescriptor{
			{Label: b.trueLabel, Value: true},
			{Label: b.falseLabel, Value: false},
		},
	}, nil
}

// truthy reports whether v selects the true value: true, 1, "true" or "1".
// Every other value selects the false value.
func truthy(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case int:
		return t == 1
	case int64:
		return t == 1
	case float64:
		return t == 1
	case string:
		return t == "true" || t == "1"
	}
	return false
}
