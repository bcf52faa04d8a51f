package metric

import (
	"encoding/json"
	"fmt"
	"math"
	"net/url"
	"regexp"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/pitabwire/vitrine/model"
)

// Result kinds.
const (
	KindValue = "value"
	KindTrend = "trend"
	KindTable = "table"
)

// Result is the self-describing output of a metric calculation.
type Result interface {
	Kind() string
}

// ValueResult is a single number, optionally compared to a previous period.
type ValueResult struct {
	Value    float64  `json:"value"`
	Previous *float64 `json:"previous,omitempty"`
	// Change is the percentage change from Previous, absent when Previous
	// is zero or unknown.
	Change *float64 `json:"change,omitempty"`
	Prefix string   `json:"prefix,omitempty"`
	Suffix string   `json:"suffix,omitempty"`
	Format string   `json:"format,omitempty"`
}

// Value creates a value result.
func Value(v float64) *ValueResult {
	return &ValueResult{Value: v}
}

// WithPrevious records the comparison value and derives the change.
func (r *ValueResult) WithPrevious(prev float64) *ValueResult {
	r.Previous = &prev
	r.Change = nil
	if prev != 0 {
		change := math.Round((r.Value-prev)/math.Abs(prev)*10000) / 100
		r.Change = &change
	}
	return r
}

// Kind implements Result.
func (r *ValueResult) Kind() string { return KindValue }

// MarshalJSON adds the kind discriminator.
func (r *ValueResult) MarshalJSON() ([]byte, error) {
	type alias ValueResult
	return json.Marshal(struct {
		Kind string `json:"kind"`
		*alias
	}{KindValue, (*alias)(r)})
}

// TrendPoint is one labelled value of a trend.
type TrendPoint struct {
	Label string  `json:"label"`
	Value float64 `json:"value"`
}

// TrendResult is an ordered series of points.
type TrendResult struct {
	Points []TrendPoint `json:"points"`
	Total  float64      `json:"total"`
	Prefix string       `json:"prefix,omitempty"`
	Suffix string       `json:"suffix,omitempty"`
}

// Trend creates a trend result; Total is the sum of the points.
func Trend(points []TrendPoint) *TrendResult {
	if points == nil {
		points = []TrendPoint{}
	}
	var total float64
	for _, p := range points {
		total += p.Value
	}
	return &TrendResult{Points: points, Total: total}
}

// Kind implements Result.
func (r *TrendResult) Kind() string { return KindTrend }

// MarshalJSON adds the kind discriminator.
func (r *TrendResult) MarshalJSON() ([]byte, error) {
	type alias TrendResult
	return json.Marshal(struct {
		Kind string `json:"kind"`
		*alias
	}{KindTrend, (*alias)(r)})
}

// Column describes a column of a table metric.
type Column struct {
	Label     string `json:"label"`
	Field     string `json:"field"`
	Sortable  bool   `json:"sortable"`
	Align     string `json:"align,omitempty"`
	Width     string `json:"width,omitempty"`
	Formatter string `json:"formatter,omitempty"`
}

// RowAction is a per-row link of a table metric. URL placeholders such as
// {id} are filled from the row; Condition is an expr boolean expression over
// the row's fields.
type RowAction struct {
	Label     string
	Icon      string
	Color     string
	URL       string
	Condition string

	program *vm.Program
}

// ActionOption configures a RowAction.
type ActionOption func(*RowAction)

// WithActionIcon sets the action icon.
func WithActionIcon(icon string) ActionOption {
	return func(a *RowAction) { a.Icon = icon }
}

// WithActionColor sets the action color.
func WithActionColor(color string) ActionOption {
	return func(a *RowAction) { a.Color = color }
}

// When shows the action only for rows where condition is true.
func When(condition string) ActionOption {
	return func(a *RowAction) { a.Condition = condition }
}

// NewRowAction creates a row action. An invalid condition is a
// configuration error.
func NewRowAction(label, urlTemplate string, opts ...ActionOption) (RowAction, error) {
	a := RowAction{Label: label, URL: urlTemplate}
	for _, opt := range opts {
		opt(&a)
	}
	if a.Condition != "" {
		program, err := expr.Compile(a.Condition, expr.AsBool(), expr.AllowUndefinedVariables())
		if err != nil {
			return RowAction{}, model.NewConfigurationError("row action %q condition: %v", label, err)
		}
		a.program = program
	}
	return a, nil
}

// ResolvedAction is a row action bound to one row.
type ResolvedAction struct {
	Label string `json:"label"`
	Icon  string `json:"icon,omitempty"`
	Color string `json:"color,omitempty"`
	URL   string `json:"url"`
}

var placeholder = regexp.MustCompile(`\{([A-Za-z0-9_]+)\}`)

// Resolve binds the action to row. ok is false when the condition is not
// met or the URL references a field the row lacks.
func (a RowAction) Resolve(row map[string]any) (ResolvedAction, bool) {
	if a.program != nil {
		out, err := expr.Run(a.program, row)
		if err != nil {
			return ResolvedAction{}, false
		}
		if show, _ := out.(bool); !show {
			return ResolvedAction{}, false
		}
	}

	missing := false
	link := placeholder.ReplaceAllStringFunc(a.URL, func(m string) string {
		v, ok := row[m[1:len(m)-1]]
		if !ok || v == nil {
			missing = true
			return ""
		}
		return url.PathEscape(fmt.Sprint(v))
	})
	if missing {
		return ResolvedAction{}, false
	}

	return ResolvedAction{Label: a.Label, Icon: a.Icon, Color: a.Color, URL: link}, true
}

// TableRow is one row of a table metric with its applicable actions.
type TableRow struct {
	Data    map[string]any   `json:"data"`
	Actions []ResolvedAction `json:"actions"`
}

// TableResult is a tabular metric result.
type TableResult struct {
	Columns []Column   `json:"columns"`
	Rows    []TableRow `json:"rows"`
}

// Table builds a table result, resolving actions for every row.
func Table(columns []Column, rows []map[string]any, actions ...RowAction) *TableResult {
	if columns == nil {
		columns = []Column{}
	}
	out := make([]TableRow, 0, len(rows))
	for _, row := range rows {
		tr := TableRow{Data: row, Actions: []ResolvedAction{}}
		for _, a := range actions {
			if ra, ok := a.Resolve(row); ok {
				tr.Actions = append(tr.Actions, ra)
			}
		}
		out = append(out, tr)
	}
	return &TableResult{Columns: columns, Rows: out}
}

// Kind implements Result.
func (r *TableResult) Kind() string { return KindTable }

// MarshalJSON adds the kind discriminator.
func (r *TableResult) MarshalJSON() ([]byte, error) {
	type alias TableResult
	return json.Marshal(struct {
		Kind string `json:"kind"`
		*alias
	}{KindTable, (*alias)(r)})
}
