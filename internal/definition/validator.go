package definition

import (
	"fmt"
	"strings"
	"time"

	"github.com/pitabwire/vitrine/internal/metric"
	"github.com/pitabwire/vitrine/model"
)

// VError describes a single validation finding in a definition.
type VError struct {
	Path    string `json:"path"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e VError) Error() string {
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// Validator checks definitions structurally and referentially.
type Validator struct {
	knownCards map[string]bool
}

// NewValidator creates a Validator. knownCards lists card keys registered in
// code, which dashboards may reference alongside defined metrics.
func NewValidator(knownCards ...string) *Validator {
	v := &Validator{knownCards: make(map[string]bool, len(knownCards))}
	for _, k := range knownCards {
		v.knownCards[k] = true
	}
	return v
}

// Validate checks all definitions together, since keys are global. Errors
// prevent startup; warnings describe things the runtime tolerates, such as a
// dashboard referencing a card that does not exist.
func (v *Validator) Validate(defs []model.DomainDefinition) (errs, warnings []VError) {
	idx := newIndex()

	for i, def := range defs {
		prefix := fmt.Sprintf("definitions[%d]", i)
		if def.SourceFile != "" {
			prefix = def.SourceFile
		}
		if def.Domain == "" {
			errs = append(errs, VError{Path: prefix + ".domain", Code: "REQUIRED", Message: "domain is required"})
		}
		for j, m := range def.Metrics {
			p := fmt.Sprintf("%s.metrics[%d]", prefix, j)
			errs = append(errs, idx.claim(idx.metrics, "metric", MetricKey(m), p)...)
			errs = append(errs, v.validateMetric(p, m)...)
		}
		for j, d := range def.Dashboards {
			p := fmt.Sprintf("%s.dashboards[%d]", prefix, j)
			if d.Name == "" {
				errs = append(errs, VError{Path: p + ".name", Code: "REQUIRED", Message: "name is required"})
			}
			errs = append(errs, idx.claim(idx.dashboards, "dashboard", DashboardKey(d), p)...)
			errs = append(errs, validateCapabilities(p, d.Capabilities)...)
		}
		for j, r := range def.Resources {
			p := fmt.Sprintf("%s.resources[%d]", prefix, j)
			errs = append(errs, idx.claim(idx.resources, "resource", ResourceKey(r), p)...)
			errs = append(errs, v.validateResource(p, r, def.Enums)...)
		}
	}

	// References are resolved once every key is known.
	for i, def := range defs {
		prefix := fmt.Sprintf("definitions[%d]", i)
		if def.SourceFile != "" {
			prefix = def.SourceFile
		}
		for j, d := range def.Dashboards {
			for k, key := range d.Cards {
				if !idx.metrics[key] && !v.knownCards[key] {
					warnings = append(warnings, VError{
						Path:    fmt.Sprintf("%s.dashboards[%d].cards[%d]", prefix, j, k),
						Code:    "UNKNOWN_CARD",
						Message: fmt.Sprintf("card %q is not registered and will be skipped", key),
					})
				}
			}
		}
		for j, s := range def.Menu {
			p := fmt.Sprintf("%s.menu[%d]", prefix, j)
			errs = append(errs, validateSection(p, s, idx)...)
		}
	}

	return errs, warnings
}

var validMetricKinds = map[string]bool{
	model.MetricCount: true, model.MetricTrend: true, model.MetricTable: true,
}

func (v *Validator) validateMetric(prefix string, m model.MetricDefinition) []VError {
	var errs []VError

	if m.Name == "" {
		errs = append(errs, VError{Path: prefix + ".name", Code: "REQUIRED", Message: "name is required"})
	}
	if m.Kind == "" {
		errs = append(errs, VError{Path: prefix + ".kind", Code: "REQUIRED", Message: "kind is required"})
	} else if !validMetricKinds[m.Kind] {
		errs = append(errs, VError{Path: prefix + ".kind", Code: "UNKNOWN_KIND", Message: fmt.Sprintf("unknown metric kind %q", m.Kind)})
	}
	if m.Table == "" {
		errs = append(errs, VError{Path: prefix + ".table", Code: "REQUIRED", Message: "table is required"})
	}
	if m.DateColumn == "" && m.Kind != model.MetricTable {
		errs = append(errs, VError{Path: prefix + ".date_column", Code: "REQUIRED", Message: "date_column is required for " + m.Kind + " metrics"})
	}
	if m.CacheMinutes < 0 {
		errs = append(errs, VError{Path: prefix + ".cache_minutes", Code: "RANGE", Message: "cache_minutes must not be negative"})
	}
	for i, r := range m.Ranges {
		if _, err := metric.Resolve(r.Token, time.Now(), time.UTC); err != nil {
			errs = append(errs, VError{
				Path:    fmt.Sprintf("%s.ranges[%d].token", prefix, i),
				Code:    "INVALID_RANGE",
				Message: err.Error(),
			})
		}
	}
	if m.Kind == model.MetricTable && m.DateColumn == "" && m.OrderBy == "" {
		errs = append(errs, VError{Path: prefix + ".order_by", Code: "REQUIRED", Message: "table metrics need order_by or date_column"})
	}
	if m.Kind == model.MetricTable && len(m.Columns) == 0 {
		errs = append(errs, VError{Path: prefix + ".columns", Code: "REQUIRED", Message: "table metrics need at least one column"})
	}
	for i, a := range m.Actions {
		if _, err := metric.NewRowAction(a.Label, a.URL, metric.When(a.Condition)); err != nil {
			errs = append(errs, VError{
				Path:    fmt.Sprintf("%s.actions[%d].condition", prefix, i),
				Code:    "INVALID_CONDITION",
				Message: err.Error(),
			})
		}
	}
	errs = append(errs, validateCapabilities(prefix, m.Capabilities)...)

	return errs
}

var validFilterTypes = map[string]bool{
	model.FilterSelect: true, model.FilterBoolean: true, model.FilterText: true,
	model.FilterDateRange: true, model.FilterNumberRange: true,
}

func (v *Validator) validateResource(prefix string, r model.ResourceDefinition, enums map[string][]model.OptionDefinition) []VError {
	var errs []VError

	if r.Name == "" {
		errs = append(errs, VError{Path: prefix + ".name", Code: "REQUIRED", Message: "name is required"})
	}
	if r.Table == "" {
		errs = append(errs, VError{Path: prefix + ".table", Code: "REQUIRED", Message: "table is required"})
	}
	if len(r.Columns) == 0 {
		errs = append(errs, VError{Path: prefix + ".columns", Code: "REQUIRED", Message: "at least one column is required"})
	}
	if r.PerPage < 0 || r.PerPage > 100 {
		errs = append(errs, VError{Path: prefix + ".per_page", Code: "RANGE", Message: "per_page must be 0-100"})
	}

	keys := make(map[string]bool, len(r.Filters))
	for i, f := range r.Filters {
		fp := fmt.Sprintf("%s.filters[%d]", prefix, i)
		key := FilterKey(f)
		if keys[key] {
			errs = append(errs, VError{Path: fp + ".key", Code: "DUPLICATE_KEY", Message: fmt.Sprintf("filter key %q declared twice", key)})
		}
		keys[key] = true

		if !validFilterTypes[f.Type] {
			errs = append(errs, VError{Path: fp + ".type", Code: "INVALID_ENUM", Message: fmt.Sprintf("invalid filter type %q", f.Type)})
			continue
		}
		if f.Type == model.FilterText {
			if f.Column == "" && len(f.Columns) == 0 {
				errs = append(errs, VError{Path: fp + ".columns", Code: "REQUIRED", Message: "text filters need at least one column"})
			}
		} else if f.Column == "" {
			errs = append(errs, VError{Path: fp + ".column", Code: "REQUIRED", Message: "column is required"})
		}
		if f.Enum != "" {
			if _, ok := enums[f.Enum]; !ok {
				errs = append(errs, VError{Path: fp + ".enum", Code: "REF_NOT_FOUND", Message: fmt.Sprintf("enum %q not declared in domain", f.Enum)})
			}
		}
	}
	errs = append(errs, validateCapabilities(prefix, r.Capabilities)...)

	return errs
}

func validateSection(prefix string, s model.MenuSectionDefinition, idx *index) []VError {
	var errs []VError

	if s.Name == "" {
		errs = append(errs, VError{Path: prefix + ".name", Code: "REQUIRED", Message: "name is required"})
	}
	if s.Path != "" && s.Collapsible {
		errs = append(errs, VError{Path: prefix, Code: "PATH_COLLAPSIBLE", Message: "a section with a path cannot be collapsible"})
	}
	for i, key := range s.Dashboards {
		if !idx.dashboards[key] {
			errs = append(errs, VError{Path: fmt.Sprintf("%s.dashboards[%d]", prefix, i), Code: "REF_NOT_FOUND", Message: fmt.Sprintf("dashboard %q not found", key)})
		}
	}
	for i, key := range s.Resources {
		if !idx.resources[key] {
			errs = append(errs, VError{Path: fmt.Sprintf("%s.resources[%d]", prefix, i), Code: "REF_NOT_FOUND", Message: fmt.Sprintf("resource %q not found", key)})
		}
	}
	for i, item := range s.Items {
		ip := fmt.Sprintf("%s.items[%d]", prefix, i)
		if item.Label == "" {
			errs = append(errs, VError{Path: ip + ".label", Code: "REQUIRED", Message: "label is required"})
		}
		if item.Path == "" {
			errs = append(errs, VError{Path: ip + ".path", Code: "REQUIRED", Message: "path is required"})
		}
		if b := item.Badge; b != nil && b.Value == nil && b.Table == "" {
			errs = append(errs, VError{Path: ip + ".badge", Code: "REQUIRED", Message: "badge needs a value or a table"})
		}
		errs = append(errs, validateCapabilities(ip, item.Capabilities)...)
	}
	errs = append(errs, validateCapabilities(prefix, s.Capabilities)...)

	return errs
}

// validateCapabilities requires "resource:ability" strings or "*".
func validateCapabilities(prefix string, caps []string) []VError {
	var errs []VError
	for i, c := range caps {
		if c == "*" {
			continue
		}
		if sep := strings.LastIndex(c, ":"); sep <= 0 || sep == len(c)-1 {
			errs = append(errs, VError{
				Path:    fmt.Sprintf("%s.capabilities[%d]", prefix, i),
				Code:    "INVALID_CAPABILITY",
				Message: fmt.Sprintf("capability %q must look like resource:ability", c),
			})
		}
	}
	return errs
}

// index records the keys claimed across all definitions.
type index struct {
	metrics    map[string]bool
	dashboards map[string]bool
	resources  map[string]bool
	owners     map[string]string
}

func newIndex() *index {
	return &index{
		metrics:    make(map[string]bool),
		dashboards: make(map[string]bool),
		resources:  make(map[string]bool),
		owners:     make(map[string]string),
	}
}

func (x *index) claim(set map[string]bool, kind, key, path string) []VError {
	if key == "" {
		return []VError{{Path: path, Code: "REQUIRED", Message: kind + " key could not be derived"}}
	}
	if set[key] {
		return []VError{{
			Path:    path,
			Code:    "DUPLICATE_KEY",
			Message: fmt.Sprintf("%s %q already declared at %s", kind, key, x.owners[kind+":"+key]),
		}}
	}
	set[key] = true
	x.owners[kind+":"+key] = path
	return nil
}
