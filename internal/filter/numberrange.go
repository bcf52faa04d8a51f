package filter

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/pitabwire/vitrine/model"
)

// NumberRange constrains a numeric column to a min/max interval. Either
// bound may be omitted.
type NumberRange struct {
	common

	min, max  *float64
	step      float64
	autoTable string
	db        *gorm.DB
}

// NewNumberRange creates a number range filter.
func NewNumberRange(name, column string) *NumberRange {
	return &NumberRange{
		common: newCommon(name, column, "number-range-filter"),
		step:   1,
	}
}

// WithKey overrides the parameter key.
func (n *NumberRange) WithKey(key string) *NumberRange {
	n.key = key
	return n
}

// WithDefault sets the default value.
func (n *NumberRange) WithDefault(v any) *NumberRange {
	n.def = v
	return n
}

// Bounds sets the slider bounds shown to the user.
func (n *NumberRange) Bounds(lower, upper float64) *NumberRange {
	n.min, n.max = &lower, &upper
	return n
}

// Step sets the input step.
func (n *NumberRange) Step(step float64) *NumberRange {
	if step > 0 {
		n.step = step
	}
	return n
}

// AutoRange derives bounds from the column's MIN and MAX in table when no
// explicit bounds are set.
func (n *NumberRange) AutoRange(db *gorm.DB, table string) *NumberRange {
	n.db, n.autoTable = db, table
	return n
}

// Apply implements Filter. A malformed bound leaves the query unchanged.
func (n *NumberRange) Apply(query *gorm.DB, value any) *gorm.DB {
	if IsEmpty(value) {
		return query
	}
	rawMin, rawMax, ok := bounds(value, "min", "max")
	if !ok {
		return query
	}
	lo, loSet, err := number(rawMin)
	if err != nil {
		return query
	}
	hi, hiSet, err := number(rawMax)
	if err != nil {
		return query
	}

	col := clause.Column{Name: n.column}
	switch {
	case loSet && hiSet:
		return query.Where("? BETWEEN ? AND ?", col, lo, hi)
	case loSet:
		return query.Where("? >= ?", col, lo)
	case hiSet:
		return query.Where("? <= ?", col, hi)
	}
	return query
}

func number(v any) (float64, bool, error) {
	switch t := v.(type) {
	case nil:
		return 0, false, nil
	case float64:
		return t, true, nil
	case float32:
		return float64(t), true, nil
	case int:
		return float64(t), true, nil
	case int64:
		return float64(t), true, nil
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return 0, false, nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false, err
		}
		return f, true, nil
	}
	return 0, false, fmt.Errorf("unsupported number value %T", v)
}

type columnBounds struct {
	Lower *float64
	Upper *float64
}

// Options implements Filter.
func (n *NumberRange) Options(ctx context.Context, _ *model.Request) (map[string]any, error) {
	opts := map[string]any{"step": n.step}
	lower, upper := n.min, n.max
	if lower == nil && upper == nil && n.db != nil {
		var b columnBounds
		err := n.db.WithContext(ctx).Table(n.autoTable).
			Select("MIN(?) AS lower, MAX(?) AS upper", clause.Column{Name: n.column}, clause.Column{Name: n.column}).
			Take(&b).Error
		if err != nil {
			return nil, fmt.Errorf("number range bounds %s.%s: %w", n.autoTable, n.column, err)
		}
		lower, upper = b.Lower, b.Upper
	}
	if lower != nil {
		opts["min"] = *lower
	}
	if upper != nil {
		opts["max"] = *upper
	}
	return opts, nil
}
