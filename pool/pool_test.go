package pool_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dressupgeekout/mrubyc/pool"
)

func TestFirstFitAndCoalesce(t *testing.T) {
	buf := make([]byte, 1024)
	p, err := pool.New(buf)
	require.NoError(t, err)

	a := p.Alloc(100)
	b := p.Alloc(100)
	c := p.Alloc(100)
	require.NotEqual(t, pool.NoPtr, a)
	require.NotEqual(t, pool.NoPtr, b)
	require.NotEqual(t, pool.NoPtr, c)

	p.Free(b)
	d := p.Alloc(90)
	require.NotEqual(t, pool.NoPtr, d, "90 bytes should fit into the freed middle hole")
	require.Equal(t, b, d, "first-fit should reuse the freed middle block")

	p.Free(a)
	p.Free(c)
	p.Free(d)

	st := p.Statistics()
	require.Equal(t, uint32(1), st.Fragments, "freeing everything should coalesce into one block")
	require.Equal(t, uint32(0), st.Used)
}

func TestAllocReturnsNoPtrWhenExhausted(t *testing.T) {
	buf := make([]byte, 64)
	p, err := pool.New(buf)
	require.NoError(t, err)

	require.Equal(t, pool.NoPtr, p.Alloc(1<<20))
}

func TestReallocGrowsInPlaceWhenPossible(t *testing.T) {
	buf := make([]byte, 256)
	p, err := pool.New(buf)
	require.NoError(t, err)

	a := p.Alloc(16)
	require.NotEqual(t, pool.NoPtr, a)
	copy(p.Bytes(a), []byte("hello world12345"))

	grown := p.Realloc(a, 32)
	require.NotEqual(t, pool.NoPtr, grown)
	require.Equal(t, "hello world12345", string(p.Bytes(grown)[:16]))
}

func TestReallocFromNoPtrBehavesLikeAlloc(t *testing.T) {
	buf := make([]byte, 128)
	p, err := pool.New(buf)
	require.NoError(t, err)

	got := p.Realloc(pool.NoPtr, 8)
	require.NotEqual(t, pool.NoPtr, got)
}

func TestTilingInvariant(t *testing.T) {
	buf := make([]byte, 512)
	p, err := pool.New(buf)
	require.NoError(t, err)

	before := p.Statistics()
	a := p.Alloc(40)
	b := p.Alloc(20)
	_ = b
	p.Free(a)
	after := p.Statistics()

	require.Equal(t, before.Total, after.Total)
	require.Equal(t, before.Total, after.Used+after.Free)
}
