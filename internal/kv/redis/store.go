// Package redis implements kv.Store on a Redis keyspace.
package redis

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sort"
	"strings"

	"github.com/go-redis/redis/v8"

	"github.com/roach88/schoolscreen/internal/kv"
)

// scanCount is the SCAN COUNT hint per round trip.
const scanCount = 200

// Options configures the Redis connection.
type Options struct {
	Addr     string
	Password string
	DB       int
	// Namespace is prepended to every key, e.g. "schoolscreen:".
	Namespace string
}

// Store keeps each record under Namespace+key.
type Store struct {
	c         *redis.Client
	namespace string
}

// New connects to Redis and verifies the connection.
func New(ctx context.Context, opts Options) (*Store, error) {
	c := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := c.Ping(ctx).Err(); err != nil {
		c.Close()
		return nil, fmt.Errorf("redis ping %s: %w", opts.Addr, err)
	}
	return NewWithClient(c, opts.Namespace), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(c *redis.Client, namespace string) *Store {
	return &Store{c: c, namespace: namespace}
}

func (s *Store) full(key string) string { return s.namespace + key }

// Has reports whether key exists.
func (s *Store) Has(ctx context.Context, key string) (bool, error) {
	n, err := s.c.Exists(ctx, s.full(key)).Result()
	if err != nil {
		return false, fmt.Errorf("has %q: %w", key, err)
	}
	return n > 0, nil
}

// Read returns the payload under key.
func (s *Store) Read(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := s.c.Get(ctx, s.full(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("read %q: %w", key, err)
	}
	return val, true, nil
}

// Write stores data under key without expiry.
func (s *Store) Write(ctx context.Context, key string, data []byte) error {
	if err := kv.ValidateKey(key); err != nil {
		return err
	}
	if err := s.c.Set(ctx, s.full(key), data, 0).Err(); err != nil {
		return mapWriteErr(key, err)
	}
	return nil
}

// isOOM matches the error Redis returns when maxmemory is reached.
func isOOM(err error) bool {
	return err != nil && strings.HasPrefix(err.Error(), "OOM ")
}

func mapWriteErr(key string, err error) error {
	if isOOM(err) {
		return &kv.QuotaError{Key: key}
	}
	return fmt.Errorf("write %q: %w", key, err)
}

// Delete removes key.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.c.Del(ctx, s.full(key)).Err(); err != nil {
		return fmt.Errorf("delete %q: %w", key, err)
	}
	return nil
}

// Keys runs a full SCAN for the prefix and yields the sorted result.
// SCAN order is unspecified, so the whole match set is gathered first.
func (s *Store) Keys(ctx context.Context, prefix string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		keys, err := s.scan(ctx, matchPattern(s.namespace+prefix))
		if err != nil {
			yield("", fmt.Errorf("list keys %q: %w", prefix, err))
			return
		}
		for _, k := range keys {
			if !yield(strings.TrimPrefix(k, s.namespace), nil) {
				return
			}
		}
	}
}

func (s *Store) scan(ctx context.Context, pattern string) ([]string, error) {
	seen := make(map[string]struct{})
	var cursor uint64
	for {
		batch, next, err := s.c.Scan(ctx, cursor, pattern, scanCount).Result()
		if err != nil {
			return nil, err
		}
		// SCAN may return a key more than once
		for _, k := range batch {
			seen[k] = struct{}{}
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// matchPattern builds a SCAN MATCH glob that matches prefix literally.
func matchPattern(prefix string) string {
	var b strings.Builder
	for _, r := range prefix {
		switch r {
		case '*', '?', '[', ']', '\\', '^':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	b.WriteByte('*')
	return b.String()
}

// Close closes the client.
func (s *Store) Close() error { return s.c.Close() }

var _ kv.Store = (*Store)(nil)
