// Package metadata holds the process-wide presentation metadata of
// dashboards and cards and merges it with per-user preferences.
package metadata

import (
	"context"
	"fmt"
	"maps"
	"sync"

	"github.com/pitabwire/vitrine/model"
)

// Metadata kinds.
const (
	KindDashboard = "dashboard"
	KindCard      = "card"
)

// ProtectedKey is never taken from defaults, overrides or preferences.
const ProtectedKey = "uriKey"

type entryKey struct {
	kind string
	key  string
}

// Manager layers metadata for an object: its own meta, then registered
// defaults, then runtime overrides, then the user's stored preferences.
// It is safe for concurrent use.
type Manager struct {
	mu        sync.RWMutex
	defaults  map[entryKey]map[string]any
	overrides map[entryKey]map[string]any
	prefs     PreferenceStore
}

// NewManager creates a Manager. A nil store disables user preferences.
func NewManager(prefs PreferenceStore) *Manager {
	return &Manager{
		defaults:  make(map[entryKey]map[string]any),
		overrides: make(map[entryKey]map[string]any),
		prefs:     prefs,
	}
}

// Preferences returns the preference store, or nil.
func (m *Manager) Preferences() PreferenceStore {
	return m.prefs
}

// SetDefaults replaces the defaults registered for kind/key.
func (m *Manager) SetDefaults(kind, key string, meta map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.defaults[entryKey{kind, key}] = maps.Clone(meta)
}

// SetMetadata merges meta into the runtime overrides for kind/key.
func (m *Manager) SetMetadata(kind, key string, meta map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := entryKey{kind, key}
	cur, ok := m.overrides[k]
	if !ok {
		cur = make(map[string]any, len(meta))
		m.overrides[k] = cur
	}
	maps.Copy(cur, meta)
}

// Metadata returns defaults merged with overrides for kind/key.
func (m *Manager) Metadata(kind, key string) map[string]any {
	m.mu.RLock()
	defer m.mu.RUnlock()
	k := entryKey{kind, key}
	out := make(map[string]any, len(m.defaults[k])+len(m.overrides[k]))
	maps.Copy(out, m.defaults[k])
	maps.Copy(out, m.overrides[k])
	return out
}

// Effective returns base overlaid with every metadata layer for kind/key.
// Guests get no preferences. When the preference store fails the merged
// result without preferences is returned alongside the error.
func (m *Manager) Effective(ctx context.Context, kind, key, userKey string, base map[string]any) (map[string]any, error) {
	out := maps.Clone(base)
	if out == nil {
		out = make(map[string]any)
	}
	uriKey, hasURIKey := base[ProtectedKey]

	overlay(out, m.Metadata(kind, key))

	var err error
	if m.prefs != nil && userKey != "" && userKey != model.GuestKey {
		var prefs map[string]any
		prefs, err = m.prefs.Get(ctx, userKey, kind, key)
		if err != nil {
			err = fmt.Errorf("preferences %s/%s: %w", kind, key, err)
		} else {
			overlay(out, prefs)
		}
	}

	if hasURIKey {
		out[ProtectedKey] = uriKey
	}
	return out, err
}

func overlay(dst, src map[string]any) {
	for k, v := range src {
		if k == ProtectedKey {
			continue
		}
		dst[k] = v
	}
}
