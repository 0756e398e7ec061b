package testutil

import (
	"fmt"
	"sync"
)

// SequenceIDs generates "<prefix>-0001", "<prefix>-0002", ...
//
// It stands in for the UUIDv7 generator so golden output and assertions
// can name analysis tasks.
//
// Thread-safety: safe for concurrent use via internal mutex.
type SequenceIDs struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSequenceIDs creates a generator. An empty prefix becomes "task".
func NewSequenceIDs(prefix string) *SequenceIDs {
	if prefix == "" {
		prefix = "task"
	}
	return &SequenceIDs{prefix: prefix}
}

// Next returns the next ID.
func (g *SequenceIDs) Next() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%04d", g.prefix, g.n)
}
