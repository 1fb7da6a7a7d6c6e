package ids

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMint_Unique(t *testing.T) {
	r := NewRegistry()

	seen := make(map[ID]struct{})
	for i := 0; i < 500; i++ {
		id, err := r.Mint()
		require.Nil(t, err)
		_, dup := seen[id]
		assert.False(t, dup, "minted id %d twice", id)
		seen[id] = struct{}{}
	}
	assert.Equal(t, 500, r.Count())
}

func TestReserve_Collision(t *testing.T) {
	r := NewRegistry()

	require.Nil(t, r.Reserve(ID(42)))
	err := r.Reserve(ID(42))
	require.NotNil(t, err)
}

func TestReserve_ZeroRejected(t *testing.T) {
	r := NewRegistry()
	err := r.Reserve(0)
	require.NotNil(t, err)
}

func TestRelease(t *testing.T) {
	r := NewRegistry()
	id, err := r.Mint()
	require.Nil(t, err)
	assert.True(t, r.Contains(id))

	r.Release(id)
	assert.False(t, r.Contains(id))

	// released id is free to reserve again
	require.Nil(t, r.Reserve(id))
}

func TestRelease_Idempotent(t *testing.T) {
	r := NewRegistry()
	r.Release(ID(7)) // never minted; must not panic
	assert.Equal(t, 0, r.Count())
}
