package menu

import (
	"context"
	"maps"
	"time"

	"github.com/pitabwire/vitrine/internal/auth"
	"github.com/pitabwire/vitrine/internal/cache"
	"github.com/pitabwire/vitrine/internal/naming"
	"github.com/pitabwire/vitrine/model"
)

// Section groups entries under a heading. A section either links somewhere
// itself or collapses; it cannot do both.
type Section struct {
	*auth.Authorizer

	id          string
	name        string
	path        string
	icon        string
	collapsible bool
	meta        map[string]any
	entries     []Entry
}

// SectionOption configures a Section.
type SectionOption func(*Section)

// WithPath makes the section heading a link.
func WithPath(path string) SectionOption {
	return func(s *Section) { s.path = path }
}

// WithIcon sets the section icon.
func WithIcon(icon string) SectionOption {
	return func(s *Section) { s.icon = icon }
}

// WithMeta merges m into the section meta.
func WithMeta(m map[string]any) SectionOption {
	return func(s *Section) { maps.Copy(s.meta, m) }
}

// Collapsible lets the frontend fold the section. Collapsible sections with
// no visible entries are dropped from the tree.
func Collapsible() SectionOption {
	return func(s *Section) { s.collapsible = true }
}

// NewSection creates a section holding entries in display order.
func NewSection(name string, entries []Entry, opts ...SectionOption) (*Section, error) {
	id := naming.Slug(name)
	s := &Section{
		Authorizer: auth.New(true),
		id:         id,
		name:       name,
		meta:       map[string]any{},
		entries:    entries,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.path != "" && s.collapsible {
		return nil, model.NewConfigurationError("menu section %q: a section with a path cannot be collapsible", name)
	}
	s.Bind("menu-section:" + id)
	return s, nil
}

// Name returns the section heading.
func (s *Section) Name() string { return s.name }

// Entries returns the section's entries.
func (s *Section) Entries() []Entry { return s.entries }

// IsCollapsible reports whether the section collapses.
func (s *Section) IsCollapsible() bool { return s.collapsible }

// CanSee registers the visibility predicate.
func (s *Section) CanSee(p auth.Predicate) *Section {
	s.Authorizer.CanSee(p)
	return s
}

// CanSeeWhen restricts visibility to users the gate allows.
func (s *Section) CanSeeWhen(gate auth.Gate, ability string, subject any) *Section {
	s.Authorizer.CanSeeWhen(gate, ability, subject)
	return s
}

// CacheAuth caches the visibility result per user.
func (s *Section) CacheAuth(store cache.Store, ttl time.Duration) *Section {
	s.Authorizer.CacheAuth(store, ttl)
	return s
}

func (s *Section) resolve(ctx context.Context, req *model.Request, r *Resolver) (model.NavigationNode, bool, error) {
	ok, err := s.AuthorizedToSee(ctx, req)
	if err != nil || !ok {
		return model.NavigationNode{}, false, err
	}
	children, err := r.resolveAll(ctx, req, s.entries)
	if err != nil {
		return model.NavigationNode{}, false, err
	}
	if s.collapsible && len(children) == 0 {
		return model.NavigationNode{}, false, nil
	}
	node := model.NavigationNode{
		ID:          s.id,
		Kind:        model.NodeSection,
		Label:       s.name,
		Path:        s.path,
		Icon:        s.icon,
		Collapsible: s.collapsible,
		Children:    children,
	}
	if len(s.meta) > 0 {
		node.Meta = maps.Clone(s.meta)
	}
	return node, true, nil
}
