package definition

import (
	"crypto/sha256"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/pitabwire/vitrine/internal/naming"
	"github.com/pitabwire/vitrine/model"
)

type snapshot struct {
	domains  []model.DomainDefinition
	checksum string
}

// Registry holds the definition files currently in service and their
// combined checksum. Reads are lock-free.
type Registry struct {
	snap atomic.Pointer[snapshot]
}

// NewRegistry creates a Registry from the given definitions.
func NewRegistry(defs []model.DomainDefinition) *Registry {
	r := &Registry{}
	r.Replace(defs)
	return r
}

// Replace atomically swaps in defs.
func (r *Registry) Replace(defs []model.DomainDefinition) {
	r.snap.Store(&snapshot{
		domains:  append([]model.DomainDefinition(nil), defs...),
		checksum: Checksum(defs),
	})
}

// Checksum combines the file checksums of defs independently of load order.
func Checksum(defs []model.DomainDefinition) string {
	parts := make([]string, len(defs))
	for i, def := range defs {
		parts[i] = def.Checksum
	}
	sort.Strings(parts)
	return fmt.Sprintf("%x", sha256.Sum256([]byte(strings.Join(parts, ":"))))
}

func (r *Registry) current() *snapshot {
	return r.snap.Load()
}

// Domains returns all domain definitions in load order.
func (r *Registry) Domains() []model.DomainDefinition {
	return append([]model.DomainDefinition(nil), r.current().domains...)
}

// Len returns the number of loaded definition files.
func (r *Registry) Len() int {
	return len(r.current().domains)
}

// Checksum returns the combined checksum of the definitions in service.
func (r *Registry) Checksum() string {
	return r.current().checksum
}

// DashboardKey returns the uriKey a dashboard definition registers under.
func DashboardKey(d model.DashboardDefinition) string {
	if d.URIKey != "" {
		return d.URIKey
	}
	return naming.Slug(d.Name)
}

// MetricKey returns the card key a metric definition registers under.
func MetricKey(m model.MetricDefinition) string {
	if m.Key != "" {
		return m.Key
	}
	return naming.Slug(m.Name)
}

// ResourceKey returns the uriKey a resource definition registers under.
func ResourceKey(r model.ResourceDefinition) string {
	if r.URIKey != "" {
		return r.URIKey
	}
	return naming.Slug(r.Name)
}

// FilterKey returns the parameter key of a filter definition.
func FilterKey(f model.FilterDefinition) string {
	if f.Key != "" {
		return f.Key
	}
	return naming.Slug(f.Name)
}
