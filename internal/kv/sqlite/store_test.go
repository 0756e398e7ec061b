package sqlite

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/schoolscreen/internal/kv"
)

func openTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "kv.db"), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpen_AppliesPragmasAndVersion(t *testing.T) {
	s := openTestStore(t)

	var mode string
	require.NoError(t, s.DB().QueryRow("PRAGMA journal_mode").Scan(&mode))
	assert.Equal(t, "wal", mode)

	var version int
	require.NoError(t, s.DB().QueryRow("PRAGMA user_version").Scan(&version))
	assert.Equal(t, currentSchemaVersion, version)
}

func TestOpen_Reopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "kv.db")

	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Write(ctx, "records/a", []byte("one")))
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()
	data, ok, err := s.Read(ctx, "records/a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "one", string(data))
}

func TestStore_WriteReplaceDelete(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	_, ok, err := s.Read(ctx, "records/a")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Write(ctx, "records/a", []byte("one")))
	require.NoError(t, s.Write(ctx, "records/a", []byte("two")))
	data, ok, err := s.Read(ctx, "records/a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "two", string(data))

	require.NoError(t, s.Delete(ctx, "records/a"))
	has, err := s.Has(ctx, "records/a")
	require.NoError(t, err)
	assert.False(t, has)
}

func TestStore_KeysAcrossPages(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	want := make([]string, 0, keysPageSize+10)
	for i := 0; i < keysPageSize+10; i++ {
		k := fmt.Sprintf("records/%04d", i)
		want = append(want, k)
		require.NoError(t, s.Write(ctx, k, []byte("x")))
	}
	require.NoError(t, s.Write(ctx, "meta/index", []byte("[]")))
	require.NoError(t, s.Write(ctx, "recordsX", []byte("x")))

	got, err := kv.CollectKeys(s.Keys(ctx, "records/"))
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestStore_KeysAllowWritesWhileRanging(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	require.NoError(t, s.Write(ctx, "records/a", []byte("x")))
	require.NoError(t, s.Write(ctx, "records/b", []byte("x")))

	var seen []string
	for k, err := range s.Keys(ctx, "records/") {
		require.NoError(t, err)
		seen = append(seen, k)
		_, _, err := s.Read(ctx, k)
		require.NoError(t, err)
		require.NoError(t, s.Write(ctx, "meta/touched", []byte(k)))
	}
	assert.Equal(t, []string{"records/a", "records/b"}, seen)
}

func TestStore_MaxBytes(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, WithMaxBytes(10))

	require.NoError(t, s.Write(ctx, "a", []byte("123456")))
	// replacing the same key only counts the new payload
	require.NoError(t, s.Write(ctx, "a", []byte("1234567890")))

	err := s.Write(ctx, "b", []byte("1"))
	require.Error(t, err)
	assert.True(t, kv.IsQuotaExceeded(err))

	var qe *kv.QuotaError
	require.ErrorAs(t, err, &qe)
	assert.Equal(t, "b", qe.Key)
	assert.Equal(t, int64(10), qe.Used)
}

func TestStore_RejectsEmptyKey(t *testing.T) {
	s := openTestStore(t)
	err := s.Write(context.Background(), "", []byte("x"))
	assert.ErrorIs(t, err, kv.ErrInvalidKey)
}
