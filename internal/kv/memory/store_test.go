package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/schoolscreen/internal/kv"
)

func TestStore_ReadMissing(t *testing.T) {
	s := New()
	data, ok, err := s.Read(context.Background(), "nope")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, data)
}

func TestStore_WriteReadDelete(t *testing.T) {
	ctx := context.Background()
	s := New()

	require.NoError(t, s.Write(ctx, "records/a", []byte(`{"a":1}`)))
	has, err := s.Has(ctx, "records/a")
	require.NoError(t, err)
	assert.True(t, has)

	data, ok, err := s.Read(ctx, "records/a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, `{"a":1}`, string(data))

	// mutating the returned slice must not leak into the store
	data[0] = 'X'
	again, _, _ := s.Read(ctx, "records/a")
	assert.Equal(t, `{"a":1}`, string(again))

	require.NoError(t, s.Delete(ctx, "records/a"))
	require.NoError(t, s.Delete(ctx, "records/a"))
	has, _ = s.Has(ctx, "records/a")
	assert.False(t, has)
	assert.Equal(t, int64(0), s.Used())
}

func TestStore_KeysPrefixOrderedAndRestartable(t *testing.T) {
	ctx := context.Background()
	s := New()
	for _, k := range []string{"records/b", "meta/index", "records/a", "records/c"} {
		require.NoError(t, s.Write(ctx, k, []byte("x")))
	}

	seq := s.Keys(ctx, "records/")
	first, err := kv.CollectKeys(seq)
	require.NoError(t, err)
	assert.Equal(t, []string{"records/a", "records/b", "records/c"}, first)

	require.NoError(t, s.Write(ctx, "records/d", []byte("x")))
	second, err := kv.CollectKeys(seq)
	require.NoError(t, err)
	assert.Equal(t, []string{"records/a", "records/b", "records/c", "records/d"}, second)
}

func TestStore_KeysEarlyBreak(t *testing.T) {
	ctx := context.Background()
	s := New()
	for _, k := range []string{"a1", "a2", "a3"} {
		require.NoError(t, s.Write(ctx, k, nil))
	}
	var seen []string
	for k, err := range s.Keys(ctx, "a") {
		require.NoError(t, err)
		seen = append(seen, k)
		if len(seen) == 2 {
			break
		}
	}
	assert.Equal(t, []string{"a1", "a2"}, seen)
}

func TestStore_QuotaExceeded(t *testing.T) {
	ctx := context.Background()
	s := New(WithQuota(20))

	require.NoError(t, s.Write(ctx, "k1", []byte("0123456789"))) // 12 bytes
	err := s.Write(ctx, "k2", []byte("0123456789"))              // would be 24
	require.Error(t, err)
	assert.True(t, errors.Is(err, kv.ErrQuotaExceeded))
	assert.True(t, kv.IsQuotaExceeded(err))

	var qe *kv.QuotaError
	require.True(t, errors.As(err, &qe))
	assert.Equal(t, "k2", qe.Key)
	assert.Equal(t, int64(20), qe.Limit)

	has, _ := s.Has(ctx, "k2")
	assert.False(t, has, "rejected write must not be stored")

	// replacing an existing key only counts the delta
	require.NoError(t, s.Write(ctx, "k1", []byte("0123456789abcdef")))
	assert.Equal(t, int64(18), s.Used())
}

func TestStore_RejectsEmptyKey(t *testing.T) {
	err := New().Write(context.Background(), "", []byte("x"))
	assert.ErrorIs(t, err, kv.ErrInvalidKey)
}

func TestDeletePrefix(t *testing.T) {
	ctx := context.Background()
	s := New()
	for _, k := range []string{"records/a", "records/b", "meta/settings"} {
		require.NoError(t, s.Write(ctx, k, []byte("x")))
	}
	n, err := kv.DeletePrefix(ctx, s, "records/")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	keys, err := kv.CollectKeys(s.Keys(ctx, ""))
	require.NoError(t, err)
	assert.Equal(t, []string{"meta/settings"}, keys)
}
