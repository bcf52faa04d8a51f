package filter

import (
	"context"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/pitabwire/vitrine/model"
)

// Text match modes.
const (
	MatchContains   = "contains"
	MatchStartsWith = "starts_with"
	MatchEndsWith   = "ends_with"
	MatchExact      = "exact"
	MatchFullText   = "fulltext"
)

// Text matches one or more columns against free text.
type Text struct {
	common

	columns          []string
	mode             string
	withoutWildcards bool
	caseSensitive    bool
	placeholder      string
}

// NewText creates a text filter. Extra columns are OR-ed together.
func NewText(name string, columns ...string) (*Text, error) {
	if len(columns) == 0 {
		return nil, model.NewConfigurationError("text filter %q: no columns", name)
	}
	return &Text{
		common:  newCommon(name, columns[0], "text-filter"),
		columns: columns,
		mode:    MatchContains,
	}, nil
}

// WithKey overrides the parameter key.
func (t *Text) WithKey(key string) *Text {
	t.key = key
	return t
}

// WithDefault sets the default value.
func (t *Text) WithDefault(v any) *Text {
	t.def = v
	return t
}

// Mode sets the match mode. Unknown modes fall back to contains.
func (t *Text) Mode(mode string) *Text {
	switch mode {
	case MatchContains, MatchStartsWith, MatchEndsWith, MatchExact, MatchFullText:
		t.mode = mode
	default:
		t.mode = MatchContains
	}
	return t
}

// WithoutWildcards sends the term to LIKE as typed, unescaped and without
// surrounding wildcards.
func (t *Text) WithoutWildcards() *Text {
	t.withoutWildcards = true
	return t
}

// CaseSensitive compares without lower-casing.
func (t *Text) CaseSensitive() *Text {
	t.caseSensitive = true
	return t
}

// Placeholder sets the input placeholder.
func (t *Text) Placeholder(p string) *Text {
	t.placeholder = p
	return t
}

// Apply implements Filter.
func (t *Text) Apply(query *gorm.DB, value any) *gorm.DB {
	s, ok := value.(string)
	if !ok || IsEmpty(value) {
		return query
	}
	s = strings.TrimSpace(s)

	if t.mode == MatchFullText {
		return t.fullText(query, s)
	}

	pattern := t.pattern(s)
	op := "LIKE"
	if t.mode == MatchExact {
		op = "="
	}
	tmpl := "? " + op + " ?"
	if !t.caseSensitive {
		tmpl = "LOWER(?) " + op + " ?"
		pattern = strings.ToLower(pattern)
	}

	if len(t.columns) == 1 {
		return query.Where(tmpl, clause.Column{Name: t.columns[0]}, pattern)
	}

	parts := make([]string, len(t.columns))
	args := make([]any, 0, 2*len(t.columns))
	for i, c := range t.columns {
		parts[i] = tmpl
		args = append(args, clause.Column{Name: c}, pattern)
	}
	return query.Where("("+strings.Join(parts, " OR ")+")", args...)
}

func (t *Text) fullText(query *gorm.DB, s string) *gorm.DB {
	doc := make([]string, len(t.columns))
	args := make([]any, 0, len(t.columns)+1)
	for i, c := range t.columns {
		doc[i] = "COALESCE(?, '')"
		args = append(args, clause.Column{Name: c})
	}
	args = append(args, s)
	return query.Where("to_tsvector('simple', "+strings.Join(doc, " || ' ' || ")+") @@ plainto_tsquery('simple', ?)", args...)
}

func (t *Text) pattern(s string) string {
	if t.mode == MatchExact || t.withoutWildcards {
		return s
	}
	s = escapeLike(s)
	switch t.mode {
	case MatchStartsWith:
		return s + "%"
	case MatchEndsWith:
		return "%" + s
	}
	return "%" + s + "%"
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

// Options implements Filter.
func (t *Text) Options(context.Context, *model.Request) (map[string]any, error) {
	opts := map[string]any{"mode": t.mode}
	if t.placeholder != "" {
		opts["placeholder"] = t.placeholder
	}
	return opts, nil
}
