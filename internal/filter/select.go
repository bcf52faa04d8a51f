package filter

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/pitabwire/vitrine/internal/naming"
	"github.com/pitabwire/vitrine/model"
)

// ApplyFunc applies a custom constraint for a select value.
type ApplyFunc func(query *gorm.DB, value any) *gorm.DB

// optionSource loads options at request time.
type optionSource func(ctx context.Context) ([]model.OptionDescriptor, error)

// Select matches a column against one of a set of options.
type Select struct {
	common

	options     []model.OptionDescriptor
	source      optionSource
	using       ApplyFunc
	multiple    bool
	booleans    bool
	datePeriods bool
	now         func() time.Time
	loc         *time.Location
}

// SelectOption configures a Select filter.
type SelectOption func(*Select) error

// NewSelect creates a select filter on column.
func NewSelect(name, column string, opts ...SelectOption) (*Select, error) {
	s := &Select{
		common: newCommon(name, column, "select-filter"),
		now:    time.Now,
		loc:    time.UTC,
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// SelectKey overrides the parameter key.
func SelectKey(key string) SelectOption {
	return func(s *Select) error {
		s.key = key
		return nil
	}
}

// SelectDefault sets the default value.
func SelectDefault(v any) SelectOption {
	return func(s *Select) error {
		s.def = v
		return nil
	}
}

// Options declares static options.
func Options(opts ...model.OptionDescriptor) SelectOption {
	return func(s *Select) error {
		s.options = append(s.options, opts...)
		return nil
	}
}

// Enum takes options from a registered enum. An unknown enum is a
// configuration error.
func Enum(enums Enums, name string) SelectOption {
	return func(s *Select) error {
		opts, ok := enums[name]
		if !ok {
			return model.NewConfigurationError("filter %q: enum %q not found", s.name, name)
		}
		s.options = append(s.options, opts...)
		return nil
	}
}

// Distinct takes options from the distinct values of the column in table.
func Distinct(db *gorm.DB, table string) SelectOption {
	return func(s *Select) error {
		if db == nil {
			return model.NewConfigurationError("filter %q: distinct options need a database", s.name)
		}
		column := s.column
		s.source = func(ctx context.Context) ([]model.OptionDescriptor, error) {
			var values []any
			err := db.WithContext(ctx).Table(table).
				Distinct(column).
				Where("? IS NOT NULL", clause.Column{Name: column}).
				Order(clause.OrderByColumn{Column: clause.Column{Name: column}}).
				Pluck(column, &values).Error
			if err != nil {
				return nil, fmt.Errorf("distinct %s.%s: %w", table, column, err)
			}
			opts := make([]model.OptionDescriptor, 0, len(values))
			for _, v := range values {
				opts = append(opts, model.OptionDescriptor{Label: fmt.Sprint(v), Value: v})
			}
			return opts, nil
		}
		return nil
	}
}

// Related takes options from rows of another table.
func Related(db *gorm.DB, table, valueColumn, labelColumn string) SelectOption {
	return func(s *Select) error {
		if db == nil {
			return model.NewConfigurationError("filter %q: related options need a database", s.name)
		}
		s.source = func(ctx context.Context) ([]model.OptionDescriptor, error) {
			var rows []map[string]any
			err := db.WithContext(ctx).Table(table).
				Select([]string{valueColumn, labelColumn}).
				Order(clause.OrderByColumn{Column: clause.Column{Name: labelColumn}}).
				Find(&rows).Error
			if err != nil {
				return nil, fmt.Errorf("related %s: %w", table, err)
			}
			opts := make([]model.OptionDescriptor, 0, len(rows))
			for _, r := range rows {
				opts = append(opts, model.OptionDescriptor{Label: fmt.Sprint(r[labelColumn]), Value: r[valueColumn]})
			}
			return opts, nil
		}
		return nil
	}
}

// Statuses offers the given status values, labelled by their humanized
// form.
func Statuses(statuses ...string) SelectOption {
	return func(s *Select) error {
		for _, st := range statuses {
			s.options = append(s.options, model.OptionDescriptor{Label: naming.Humanize(st), Value: st})
		}
		return nil
	}
}

// BooleanLabels offers a true and a false option.
func BooleanLabels(trueLabel, falseLabel string) SelectOption {
	return func(s *Select) error {
		s.booleans = true
		s.options = append(s.options,
			model.OptionDescriptor{Label: trueLabel, Value: true},
			model.OptionDescriptor{Label: falseLabel, Value: false},
		)
		return nil
	}
}

// DatePeriods offers relative date periods resolved at apply time.
func DatePeriods() SelectOption {
	return func(s *Select) error {
		s.datePeriods = true
		s.options = append(s.options, periodOptions...)
		return nil
	}
}

// Multiple allows several values, matched with IN.
func Multiple() SelectOption {
	return func(s *Select) error {
		s.multiple = true
		return nil
	}
}

// Using replaces the default column match with fn.
func Using(fn ApplyFunc) SelectOption {
	return func(s *Select) error {
		s.using = fn
		return nil
	}
}

// WithClock sets the clock date periods are resolved against.
func WithClock(now func() time.Time) SelectOption {
	return func(s *Select) error {
		s.now = now
		return nil
	}
}

// WithLocation sets the timezone date periods are resolved in.
func WithLocation(loc *time.Location) SelectOption {
	return func(s *Select) error {
		if loc != nil {
			s.loc = loc
		}
		return nil
	}
}

// Apply implements Filter.
func (s *Select) Apply(query *gorm.DB, value any) *gorm.DB {
	if IsEmpty(value) {
		return query
	}
	if s.using != nil {
		return s.using(query, value)
	}

	col := clause.Column{Name: s.column}

	if s.datePeriods {
		period, _ := value.(string)
		start, end, ok := PeriodBounds(period, s.now().In(s.loc))
		if !ok {
			return query
		}
		return query.Where("? BETWEEN ? AND ?", col, start, end)
	}

	if s.booleans {
		return query.Where("? = ?", col, truthy(value))
	}

	if values := s.values(value); len(values) > 1 || (s.multiple && len(values) > 0) {
		return query.Where("? IN ?", col, values)
	}
	return query.Where("? = ?", col, value)
}

// values expands multi-valued input: slices and, for Multiple filters,
// comma-separated strings.
func (s *Select) values(value any) []any {
	if str, ok := value.(string); ok {
		if !s.multiple {
			return []any{str}
		}
		var out []any
		for _, p := range strings.Split(str, ",") {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out
	}
	rv := reflect.ValueOf(value)
	if rv.Kind() != reflect.Slice {
		return []any{value}
	}
	out := make([]any, 0, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		out = append(out, rv.Index(i).Interface())
	}
	return out
}

// Options implements Filter.
func (s *Select) Options(ctx context.Context, _ *model.Request) (map[string]any, error) {
	opts := append([]model.OptionDescriptor{}, s.options...)
	if s.source != nil {
		loaded, err := s.source(ctx)
		if err != nil {
			return nil, err
		}
		opts = append(opts, loaded...)
	}
	return map[string]any{
		"options":  opts,
		"multiple": s.multiple,
	}, nil
}
