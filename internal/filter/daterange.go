package filter

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/pitabwire/vitrine/model"
)

var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	time.DateTime,
	"2006-01-02T15:04:05",
	time.DateOnly,
}

// DateRange constrains a column to a start/end interval, submitted as
// {start, end} or {from, to}. Either bound may be omitted.
type DateRange struct {
	common

	dateOnly bool
	loc      *time.Location
}

// NewDateRange creates a date range filter.
func NewDateRange(name, column string) *DateRange {
	return &DateRange{
		common: newCommon(name, column, "date-range-filter"),
		loc:    time.UTC,
	}
}

// WithKey overrides the parameter key.
func (d *DateRange) WithKey(key string) *DateRange {
	d.key = key
	return d
}

// WithDefault sets the default value.
func (d *DateRange) WithDefault(v any) *DateRange {
	d.def = v
	return d
}

// DateOnly compares on calendar dates, widening "to" to the end of its day.
func (d *DateRange) DateOnly() *DateRange {
	d.dateOnly = true
	return d
}

// In sets the timezone bare dates are interpreted in.
func (d *DateRange) In(loc *time.Location) *DateRange {
	if loc != nil {
		d.loc = loc
	}
	return d
}

// Apply implements Filter. A malformed bound leaves the query unchanged.
func (d *DateRange) Apply(query *gorm.DB, value any) *gorm.DB {
	if IsEmpty(value) {
		return query
	}
	rawFrom, rawTo, ok := bounds(value, "start", "end")
	if !ok {
		return query
	}
	if rawFrom == nil && rawTo == nil {
		rawFrom, rawTo, _ = bounds(value, "from", "to")
	}
	from, fromSet, err := d.parse(rawFrom)
	if err != nil {
		return query
	}
	to, toSet, err := d.parse(rawTo)
	if err != nil {
		return query
	}
	if d.dateOnly {
		if fromSet {
			from = startOfDay(from)
		}
		if toSet {
			to = endOfDay(to)
		}
	}

	col := clause.Column{Name: d.column}
	switch {
	case fromSet && toSet:
		return query.Where("? BETWEEN ? AND ?", col, from, to)
	case fromSet:
		return query.Where("? >= ?", col, from)
	case toSet:
		return query.Where("? <= ?", col, to)
	}
	return query
}

func (d *DateRange) parse(v any) (time.Time, bool, error) {
	switch t := v.(type) {
	case nil:
		return time.Time{}, false, nil
	case time.Time:
		return t, !t.IsZero(), nil
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return time.Time{}, false, nil
		}
		for _, layout := range dateLayouts {
			if ts, err := time.ParseInLocation(layout, s, d.loc); err == nil {
				return ts, true, nil
			}
		}
		return time.Time{}, false, fmt.Errorf("unrecognised date %q", s)
	}
	return time.Time{}, false, fmt.Errorf("unsupported date value %T", v)
}

// Options implements Filter.
func (d *DateRange) Options(context.Context, *model.Request) (map[string]any, error) {
	return map[string]any{"dateOnly": d.dateOnly}, nil
}
