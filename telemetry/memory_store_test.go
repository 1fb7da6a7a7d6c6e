package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_SaveLoad(t *testing.T) {
	store := NewMemoryStore()
	ev := Event{Kind: EventDecodeError, ConnectionID: 1, Message: "bad header", At: time.Now()}

	require.NoError(t, store.Save(context.Background(), "k1", ev))

	got, err := store.Load(context.Background(), "k1")
	require.NoError(t, err)
	assert.Equal(t, ev.Kind, got.Kind)
	assert.Equal(t, ev.ConnectionID, got.ConnectionID)
}

func TestMemoryStore_LoadMissing(t *testing.T) {
	store := NewMemoryStore()
	_, err := store.Load(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_ListCount(t *testing.T) {
	store := NewMemoryStore()
	require.NoError(t, store.Save(context.Background(), "a", Event{Kind: EventStateChange}))
	require.NoError(t, store.Save(context.Background(), "b", Event{Kind: EventStateChange}))

	keys, err := store.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, keys, 2)

	count, err := store.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestMemoryStore_ClosedRejectsOps(t *testing.T) {
	store := NewMemoryStore()
	require.NoError(t, store.Close())

	assert.ErrorIs(t, store.Save(context.Background(), "a", Event{}), ErrStoreClosed)
	_, err := store.Load(context.Background(), "a")
	assert.ErrorIs(t, err, ErrStoreClosed)
	_, err = store.List(context.Background())
	assert.ErrorIs(t, err, ErrStoreClosed)
	_, err = store.Count(context.Background())
	assert.ErrorIs(t, err, ErrStoreClosed)
}

func TestMemoryStore_DoubleClose(t *testing.T) {
	store := NewMemoryStore()
	require.NoError(t, store.Close())
	assert.ErrorIs(t, store.Close(), ErrStoreClosed)
}

func TestMemoryStore_RespectsContextCancellation(t *testing.T) {
	store := NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.Error(t, store.Save(ctx, "a", Event{}))
}
