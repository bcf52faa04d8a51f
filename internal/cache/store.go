// Package cache provides the key/value store that authorization results,
// badges and metric results are memoized in.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Store is a TTL-bounded key/value store. Every call is a single atomic
// operation; callers never hold locks across calls.
type Store interface {
	// Get returns the value stored under key. found is false for missing or
	// expired entries.
	Get(ctx context.Context, key string) (value []byte, found bool, err error)

	// Put stores value under key for ttl. A non-positive ttl stores the value
	// without expiry.
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Forget removes key. Forgetting a missing key is not an error.
	Forget(ctx context.Context, key string) error

	// HealthCheck verifies the store is reachable.
	HealthCheck(ctx context.Context) error
}

// Key namespaces.
const (
	NamespaceAuth   = "auth"
	NamespaceBadge  = "badge"
	NamespaceMetric = "metric"
)

// Key builds an opaque cache key from a namespace and ordered parts. Parts
// are hashed so user-supplied values never leak into key structure.
func Key(namespace string, parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		// Length-prefix each part so ("ab","c") and ("a","bc") differ.
		fmt.Fprintf(h, "%d:%s|", len(p), p)
	}
	return namespace + ":" + hex.EncodeToString(h.Sum(nil))
}

// Namespace returns the namespace portion of a key built by Key.
func Namespace(key string) string {
	if i := strings.IndexByte(key, ':'); i >= 0 {
		return key[:i]
	}
	return key
}

// GetJSON loads and decodes a JSON value. found is false on a miss.
func GetJSON(ctx context.Context, s Store, key string, dst any) (bool, error) {
	raw, found, err := s.Get(ctx, key)
	if err != nil || !found {
		return false, err
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return false, fmt.Errorf("unmarshal cache entry %q: %w", key, err)
	}
	return true, nil
}

// PutJSON encodes and stores a JSON value.
func PutJSON(ctx context.Context, s Store, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal cache entry %q: %w", key, err)
	}
	return s.Put(ctx, key, data, ttl)
}
