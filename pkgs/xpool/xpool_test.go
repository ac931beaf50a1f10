package xpool

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBoundedExhaustion(t *testing.T) {
	b := NewBounded(2, func() []byte { return make([]byte, 8) }, nil)

	x, ok := b.Get()
	require.True(t, ok)
	y, ok := b.Get()
	require.True(t, ok)

	_, ok = b.Get()
	assert.False(t, ok, "third Get must fail on a pool of two")
	assert.Equal(t, 2, b.InUse())

	b.Put(x)
	assert.Equal(t, 1, b.InUse())
	_, ok = b.Get()
	assert.True(t, ok)

	b.Put(y)
}

func TestBoundedReset(t *testing.T) {
	b := NewBounded(1, func() []byte { return make([]byte, 4) }, func(p []byte) []byte {
		clear(p)
		return p
	})

	p, ok := b.Get()
	require.True(t, ok)
	copy(p, []byte{1, 2, 3, 4})
	b.Put(p)

	q, ok := b.Get()
	require.True(t, ok)
	assert.Equal(t, []byte{0, 0, 0, 0}, q)
}
