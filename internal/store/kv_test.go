package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	linkup_errors "linkup-client/pkg/errors"
)

func TestMemoryKVMissReturnsNotFound(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryKV()

	_, err := kv.Get(ctx, "nope")
	assert.ErrorIs(t, err, linkup_errors.ErrNotFound)
}

func TestMemoryKVCopiesValues(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryKV()

	value := []byte("original")
	require.NoError(t, kv.Set(ctx, "k", value))
	value[0] = 'X'

	got, err := kv.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("original"), got)

	got[0] = 'Y'
	again, err := kv.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("original"), again)
}

func TestPebbleKVRoundTrip(t *testing.T) {
	ctx := context.Background()
	kv, err := OpenPebble(filepath.Join(t.TempDir(), "kv"))
	require.NoError(t, err)
	defer kv.Close()

	require.NoError(t, kv.Set(ctx, "draft-3", []byte("half a thought")))
	got, err := kv.Get(ctx, "draft-3")
	require.NoError(t, err)
	assert.Equal(t, []byte("half a thought"), got)

	require.NoError(t, kv.Delete(ctx, "draft-3"))
	_, err = kv.Get(ctx, "draft-3")
	assert.ErrorIs(t, err, linkup_errors.ErrNotFound)
}

func TestSecureKVRoundTrip(t *testing.T) {
	ctx := context.Background()
	inner := NewMemoryKV()
	kv, err := NewSecureKV(inner, "hunter2")
	require.NoError(t, err)

	require.NoError(t, kv.Set(ctx, "draft-3", []byte("secret draft")))

	got, err := kv.Get(ctx, "draft-3")
	require.NoError(t, err)
	assert.Equal(t, []byte("secret draft"), got)

	sealed, err := inner.Get(ctx, "draft-3")
	require.NoError(t, err)
	assert.NotContains(t, string(sealed), "secret draft")
}

func TestSecureKVRejectsTamperedRecord(t *testing.T) {
	ctx := context.Background()
	inner := NewMemoryKV()
	kv, err := NewSecureKV(inner, "hunter2")
	require.NoError(t, err)

	require.NoError(t, kv.Set(ctx, "draft-3", []byte("secret draft")))

	sealed, err := inner.Get(ctx, "draft-3")
	require.NoError(t, err)
	sealed[len(sealed)-1] ^= 0xff
	require.NoError(t, inner.Set(ctx, "draft-3", sealed))

	_, err = kv.Get(ctx, "draft-3")
	assert.Error(t, err)
}

func TestSecureKVRejectsGarbageRecord(t *testing.T) {
	ctx := context.Background()
	inner := NewMemoryKV()
	kv, err := NewSecureKV(inner, "hunter2")
	require.NoError(t, err)

	require.NoError(t, inner.Set(ctx, "draft-3", []byte("short")))
	_, err = kv.Get(ctx, "draft-3")
	assert.Error(t, err)
}

func TestSecureKVKeyBindsRecord(t *testing.T) {
	ctx := context.Background()
	inner := NewMemoryKV()
	kv, err := NewSecureKV(inner, "hunter2")
	require.NoError(t, err)

	require.NoError(t, kv.Set(ctx, "draft-3", []byte("secret draft")))

	// Moving the sealed bytes under another key must not decrypt.
	sealed, err := inner.Get(ctx, "draft-3")
	require.NoError(t, err)
	require.NoError(t, inner.Set(ctx, "draft-4", sealed))

	_, err = kv.Get(ctx, "draft-4")
	assert.Error(t, err)
}

func TestSecureKVRequiresPassphrase(t *testing.T) {
	_, err := NewSecureKV(NewMemoryKV(), "")
	assert.ErrorIs(t, err, linkup_errors.ErrInvalidInput)
}
