package kv

import (
	"context"
	"errors"
	"fmt"
	"iter"
)

// Store is the keyed record store contract.
type Store interface {
	// Has reports whether key currently holds a payload.
	Has(ctx context.Context, key string) (bool, error)

	// Read returns the payload stored under key. A missing key yields
	// (nil, false, nil).
	Read(ctx context.Context, key string) ([]byte, bool, error)

	// Write stores data under key, replacing any previous payload.
	Write(ctx context.Context, key string, data []byte) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Keys enumerates keys starting with prefix in ascending order.
	// Enumeration errors are yielded as the second value and end the sequence.
	Keys(ctx context.Context, prefix string) iter.Seq2[string, error]

	// Close releases backend resources.
	Close() error
}

// ErrQuotaExceeded is returned when a write does not fit in the store.
var ErrQuotaExceeded = errors.New("kv: storage quota exceeded")

// ErrInvalidKey is returned for keys a backend cannot represent.
var ErrInvalidKey = errors.New("kv: invalid key")

// QuotaError describes a rejected write.
type QuotaError struct {
	Key   string
	Limit int64
	Used  int64
	Size  int64
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("kv: storage quota exceeded writing %q (%d bytes, %d/%d used)", e.Key, e.Size, e.Used, e.Limit)
}

// Unwrap lets errors.Is(err, ErrQuotaExceeded) match.
func (e *QuotaError) Unwrap() error { return ErrQuotaExceeded }

// IsQuotaExceeded reports whether err signals a capacity failure.
func IsQuotaExceeded(err error) bool {
	return errors.Is(err, ErrQuotaExceeded)
}

// ValidateKey rejects keys no backend can store.
func ValidateKey(key string) error {
	if key == "" {
		return fmt.Errorf("%w: empty key", ErrInvalidKey)
	}
	for _, r := range key {
		if r == 0 {
			return fmt.Errorf("%w: key contains NUL", ErrInvalidKey)
		}
	}
	return nil
}

// CollectKeys drains a key sequence into a slice.
func CollectKeys(seq iter.Seq2[string, error]) ([]string, error) {
	var keys []string
	for k, err := range seq {
		if err != nil {
			return keys, err
		}
		keys = append(keys, k)
	}
	return keys, nil
}

// DeletePrefix removes every key that starts with prefix.
func DeletePrefix(ctx context.Context, s Store, prefix string) (int, error) {
	keys, err := CollectKeys(s.Keys(ctx, prefix))
	if err != nil {
		return 0, fmt.Errorf("delete prefix %q: %w", prefix, err)
	}
	for i, k := range keys {
		if err := s.Delete(ctx, k); err != nil {
			return i, fmt.Errorf("delete prefix %q: %w", prefix, err)
		}
	}
	return len(keys), nil
}

// SliceSeq adapts a precomputed key slice into a sequence.
func SliceSeq(keys []string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for _, k := range keys {
			if !yield(k, nil) {
				return
			}
		}
	}
}

// ErrSeq yields a single error.
func ErrSeq(err error) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		yield("", err)
	}
}
