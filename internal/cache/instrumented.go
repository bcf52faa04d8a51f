package cache

import (
	"context"
	"time"
)

// Recorder receives cache traffic per key namespace.
type Recorder interface {
	RecordCacheHit(namespace string)
	RecordCacheMiss(namespace string)
}

// Instrumented wraps a Store and reports hits and misses to a Recorder.
type Instrumented struct {
	Store
	recorder Recorder
}

// NewInstrumented wraps store. A nil recorder returns store unchanged.
func NewInstrumented(store Store, recorder Recorder) Store {
	if recorder == nil {
		return store
	}
	return &Instrumented{Store: store, recorder: recorder}
}

// Get reads through the wrapped store and records the outcome. Errors are
// neither hits nor misses.
func (s *Instrumented) Get(ctx context.Context, key string) ([]byte, bool, error) {
	value, found, err := s.Store.Get(ctx, key)
	if err != nil {
		return nil, false, err
	}
	if found {
		s.recorder.RecordCacheHit(Namespace(key))
	} else {
		s.recorder.RecordCacheMiss(Namespace(key))
	}
	return value, found, nil
}

// Put writes through to the wrapped store.
func (s *Instrumented) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return s.Store.Put(ctx, key, value, ttl)
}
