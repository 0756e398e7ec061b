// Package memory implements an in-process kv.Store.
//
// The optional byte quota mirrors browser storage limits: a write that would
// push the total of key and payload sizes over the limit fails with
// kv.ErrQuotaExceeded and leaves the previous value untouched.
package memory

import (
	"context"
	"iter"
	"sort"
	"strings"
	"sync"

	"github.com/roach88/schoolscreen/internal/kv"
)

// DefaultQuota matches the common 5 MiB browser storage budget.
const DefaultQuota int64 = 5 << 20

// Store is a map-backed kv.Store. Safe for concurrent use.
type Store struct {
	mu    sync.RWMutex
	data  map[string][]byte
	used  int64
	quota int64 // 0 means unlimited
}

// Option configures a Store.
type Option func(*Store)

// WithQuota limits the total stored bytes. Zero disables the limit.
func WithQuota(bytes int64) Option {
	return func(s *Store) { s.quota = bytes }
}

// New returns an empty store without a quota unless one is configured.
func New(opts ...Option) *Store {
	s := &Store{data: make(map[string][]byte)}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Has reports whether key exists.
func (s *Store) Has(_ context.Context, key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.data[key]
	return ok, nil
}

// Read returns a copy of the payload under key.
func (s *Store) Read(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, true, nil
}

// Write stores a copy of data under key.
func (s *Store) Write(_ context.Context, key string, data []byte) error {
	if err := kv.ValidateKey(key); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	size := int64(len(key) + len(data))
	used := s.used
	if prev, ok := s.data[key]; ok {
		used -= int64(len(key) + len(prev))
	}
	if s.quota > 0 && used+size > s.quota {
		return &kv.QuotaError{Key: key, Limit: s.quota, Used: s.used, Size: size}
	}

	cp := make([]byte, len(data))
	copy(cp, data)
	s.data[key] = cp
	s.used = used + size
	return nil
}

// Delete removes key.
func (s *Store) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.data[key]; ok {
		s.used -= int64(len(key) + len(prev))
		delete(s.data, key)
	}
	return nil
}

// Keys enumerates matching keys in ascending order. Each range call takes a
// fresh snapshot of the key set.
func (s *Store) Keys(_ context.Context, prefix string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		s.mu.RLock()
		keys := make([]string, 0, len(s.data))
		for k := range s.data {
			if strings.HasPrefix(k, prefix) {
				keys = append(keys, k)
			}
		}
		s.mu.RUnlock()
		sort.Strings(keys)
		for _, k := range keys {
			if !yield(k, nil) {
				return
			}
		}
	}
}

// Used returns the bytes currently counted against the quota.
func (s *Store) Used() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.used
}

// Close is a no-op.
func (s *Store) Close() error { return nil }

var _ kv.Store = (*Store)(nil)
