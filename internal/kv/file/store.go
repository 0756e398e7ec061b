// Package file implements kv.Store as one file per key in a directory.
//
// Keys are path-escaped into flat file names so that "records/S1" becomes
// "records%2FS1.rec". Writes go through a temp file and rename, so a reader
// never observes a half-written payload. A full disk surfaces as
// kv.ErrQuotaExceeded.
package file

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"iter"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"syscall"

	"github.com/roach88/schoolscreen/internal/kv"
)

const suffix = ".rec"

// Store is a directory-backed kv.Store. Not safe for concurrent writers
// across processes beyond per-file atomic replacement.
type Store struct {
	root string
}

// New returns a store rooted at dir, creating it if needed.
func New(dir string) (*Store, error) {
	if dir == "" {
		dir = "./screening-data"
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	return &Store{root: dir}, nil
}

// Root returns the backing directory.
func (s *Store) Root() string { return s.root }

func fileName(key string) (string, error) {
	if err := kv.ValidateKey(key); err != nil {
		return "", err
	}
	name := url.PathEscape(key)
	if name == "." || name == ".." {
		return "", fmt.Errorf("%w: %q", kv.ErrInvalidKey, key)
	}
	return name + suffix, nil
}

func keyFromName(name string) (string, bool) {
	if !strings.HasSuffix(name, suffix) {
		return "", false
	}
	key, err := url.PathUnescape(strings.TrimSuffix(name, suffix))
	if err != nil {
		return "", false
	}
	return key, true
}

func (s *Store) path(key string) (string, error) {
	name, err := fileName(key)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.root, name), nil
}

// Has reports whether key exists.
func (s *Store) Has(_ context.Context, key string) (bool, error) {
	p, err := s.path(key)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(p)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("stat %q: %w", key, err)
	}
	return true, nil
}

// Read returns the payload under key.
func (s *Store) Read(_ context.Context, key string) ([]byte, bool, error) {
	p, err := s.path(key)
	if err != nil {
		return nil, false, err
	}
	data, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read %q: %w", key, err)
	}
	return data, true, nil
}

// Write atomically replaces the payload under key.
func (s *Store) Write(_ context.Context, key string, data []byte) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(s.root, ".tmp-*")
	if err != nil {
		return mapWriteErr(key, err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return mapWriteErr(key, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return mapWriteErr(key, err)
	}
	if err := tmp.Close(); err != nil {
		return mapWriteErr(key, err)
	}
	if err := os.Rename(tmp.Name(), p); err != nil {
		return mapWriteErr(key, err)
	}
	return nil
}

func mapWriteErr(key string, err error) error {
	if errors.Is(err, syscall.ENOSPC) || errors.Is(err, syscall.EDQUOT) {
		return &kv.QuotaError{Key: key}
	}
	return fmt.Errorf("write %q: %w", key, err)
}

// Delete removes key.
func (s *Store) Delete(_ context.Context, key string) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete %q: %w", key, err)
	}
	return nil
}

// Keys lists matching keys from the directory on every range call.
func (s *Store) Keys(_ context.Context, prefix string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		entries, err := os.ReadDir(s.root)
		if err != nil {
			yield("", fmt.Errorf("list %s: %w", s.root, err))
			return
		}
		var keys []string
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			key, ok := keyFromName(e.Name())
			if ok && strings.HasPrefix(key, prefix) {
				keys = append(keys, key)
			}
		}
		sort.Strings(keys)
		for _, k := range keys {
			if !yield(k, nil) {
				return
			}
		}
	}
}

// Close is a no-op.
func (s *Store) Close() error { return nil }

var _ kv.Store = (*Store)(nil)
