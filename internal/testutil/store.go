package testutil

import (
	"context"
	"strings"
	"sync"

	"github.com/roach88/schoolscreen/internal/kv"
)

// FaultyStore wraps a kv.Store and fails writes on demand.
//
// Tests use it to drive quota and persistence failure paths through code
// that only sees the kv.Store interface.
type FaultyStore struct {
	kv.Store

	mu       sync.Mutex
	writeErr error
	match    string
	writes   int
}

// NewFaultyStore wraps inner.
func NewFaultyStore(inner kv.Store) *FaultyStore {
	return &FaultyStore{Store: inner}
}

// FailWrites makes every write whose key contains match return err. An
// empty match fails all writes; a nil err heals the store.
func (s *FaultyStore) FailWrites(match string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.match = match
	s.writeErr = err
}

// Writes counts successful writes.
func (s *FaultyStore) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

// Write implements kv.Store.
func (s *FaultyStore) Write(ctx context.Context, key string, data []byte) error {
	s.mu.Lock()
	err, match := s.writeErr, s.match
	s.mu.Unlock()
	if err != nil && strings.Contains(key, match) {
		return err
	}
	if werr := s.Store.Write(ctx, key, data); werr != nil {
		return werr
	}
	s.mu.Lock()
	s.writes++
	s.mu.Unlock()
	return nil
}
