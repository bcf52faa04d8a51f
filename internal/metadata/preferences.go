package metadata

import (
	"context"
	"maps"
	"sync"
)

// PreferenceStore persists per-user metadata overrides.
type PreferenceStore interface {
	// Get returns the stored preferences, or nil when none exist.
	Get(ctx context.Context, userKey, kind, key string) (map[string]any, error)
	// Put replaces the stored preferences.
	Put(ctx context.Context, userKey, kind, key string, meta map[string]any) error
	// Delete removes the stored preferences. Deleting nothing is not an error.
	Delete(ctx context.Context, userKey, kind, key string) error
	HealthCheck(ctx context.Context) error
}

type prefKey struct {
	user string
	kind string
	key  string
}

// MemoryPreferenceStore is an in-process PreferenceStore.
type MemoryPreferenceStore struct {
	mu    sync.RWMutex
	prefs map[prefKey]map[string]any
}

// NewMemoryPreferenceStore creates an empty store.
func NewMemoryPreferenceStore() *MemoryPreferenceStore {
	return &MemoryPreferenceStore{prefs: make(map[prefKey]map[string]any)}
}

// Get implements PreferenceStore.
func (s *MemoryPreferenceStore) Get(_ context.Context, userKey, kind, key string) (map[string]any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.prefs[prefKey{userKey, kind, key}]), nil
}

// Put implements PreferenceStore.
func (s *MemoryPreferenceStore) Put(_ context.Context, userKey, kind, key string, meta map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prefs[prefKey{userKey, kind, key}] = maps.Clone(meta)
	return nil
}

// Delete implements PreferenceStore.
func (s *MemoryPreferenceStore) Delete(_ context.Context, userKey, kind, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.prefs, prefKey{userKey, kind, key})
	return nil
}

// HealthCheck implements PreferenceStore.
func (s *MemoryPreferenceStore) HealthCheck(context.Context) error { return nil }
