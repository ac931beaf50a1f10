package stack

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolAllocChain(t *testing.T) {
	pool := NewPool(4, 8)

	p, err := pool.Alloc(20)
	require.NoError(t, err)
	assert.Equal(t, 20, p.Len())
	assert.Equal(t, 3, pool.InUse())

	src := []byte("abcdefghijklmnopqrst")
	require.NoError(t, p.Take(src))
	assert.Equal(t, src, p.Bytes())

	dst := make([]byte, 6)
	assert.Equal(t, 6, p.CopyPartial(dst, 5))
	assert.Equal(t, []byte("fghijk"), dst)
	assert.Equal(t, 2, p.CopyPartial(dst, 18))

	p.Free()
	assert.Zero(t, pool.InUse())
}

func TestPoolExhaustion(t *testing.T) {
	pool := NewPool(2, 8)

	_, err := pool.Alloc(17)
	assert.ErrorIs(t, err, ErrMem)
	assert.Zero(t, pool.InUse(), "a failed alloc must not leak segments")

	p, err := pool.Alloc(0)
	require.NoError(t, err)
	assert.Zero(t, p.Len())
	p.Free()
}

func TestPbufHeader(t *testing.T) {
	pool := NewPool(1, 16)
	p, err := pool.Alloc(10)
	require.NoError(t, err)
	defer p.Free()

	require.NoError(t, p.Header(-2))
	assert.Equal(t, 8, p.Len())
	require.NoError(t, p.Take([]byte{1, 2, 3}))
	require.NoError(t, p.Header(2))
	assert.Equal(t, 10, p.Len())
	assert.Equal(t, []byte{0, 0, 1, 2, 3}, p.Bytes()[:5])

	assert.ErrorIs(t, p.Header(1), ErrBuf)
	assert.ErrorIs(t, p.Header(-11), ErrBuf)
	assert.ErrorIs(t, p.Take(make([]byte, 11)), ErrArg)
}
