package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryProviderRoundTrip(t *testing.T) {
	provider := NewMemoryProvider(MemoryConfig{})
	ctx := context.Background()

	require.NoError(t, provider.Put(ctx, "agentrunner:executions:a", []byte(`[{"id":"1"}]`)))

	value, err := provider.Get(ctx, "agentrunner:executions:a")
	require.NoError(t, err)
	assert.Equal(t, []byte(`[{"id":"1"}]`), value)

	// The returned slice is a copy
	value[0] = 'X'
	again, err := provider.Get(ctx, "agentrunner:executions:a")
	require.NoError(t, err)
	assert.Equal(t, []byte(`[{"id":"1"}]`), again)
}

func TestMemoryProviderNotFound(t *testing.T) {
	provider := NewMemoryProvider(MemoryConfig{})

	_, err := provider.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryProviderDelete(t *testing.T) {
	provider := NewMemoryProvider(MemoryConfig{})
	ctx := context.Background()

	require.NoError(t, provider.Put(ctx, "k", []byte("v")))
	require.NoError(t, provider.Delete(ctx, "k"))

	_, err := provider.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrNotFound)

	// Deleting an absent key is not an error
	assert.NoError(t, provider.Delete(ctx, "k"))
}

func TestMemoryProviderKeys(t *testing.T) {
	provider := NewMemoryProvider(MemoryConfig{})
	ctx := context.Background()

	require.NoError(t, provider.Put(ctx, "ns:executions:b", []byte("1")))
	require.NoError(t, provider.Put(ctx, "ns:executions:a", []byte("2")))
	require.NoError(t, provider.Put(ctx, "ns:preferences", []byte("3")))
	require.NoError(t, provider.Put(ctx, "other:executions:c", []byte("4")))

	keys, err := provider.Keys(ctx, "ns:executions:")
	require.NoError(t, err)
	assert.Equal(t, []string{"ns:executions:a", "ns:executions:b"}, keys)

	keys, err = provider.Keys(ctx, "ns:")
	require.NoError(t, err)
	assert.Equal(t, []string{"ns:executions:a", "ns:executions:b", "ns:preferences"}, keys)
}

func TestMemoryProviderQuota(t *testing.T) {
	provider := NewMemoryProvider(MemoryConfig{MaxBytes: 10})
	ctx := context.Background()

	require.NoError(t, provider.Put(ctx, "k", []byte("1234567890")))

	// One more byte anywhere pushes past the budget
	err := provider.Put(ctx, "k2", []byte("x"))
	assert.ErrorIs(t, err, ErrQuotaExceeded)

	// Overwriting with a smaller value frees budget
	require.NoError(t, provider.Put(ctx, "k", []byte("12345")))
	assert.NoError(t, provider.Put(ctx, "k2", []byte("x")))

	// Deletes free budget too
	require.NoError(t, provider.Delete(ctx, "k"))
	assert.NoError(t, provider.Put(ctx, "k3", []byte("12345")))
}
