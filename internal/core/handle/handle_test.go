package handle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestZeroHandleNeverValid(t *testing.T) {
	tbl := NewTable[string](4)
	tbl.Allocate("a")

	var h Handle[string]
	assert.True(t, h.IsNil())
	assert.False(t, tbl.Alive(h))
	_, ok := tbl.Get(h)
	assert.False(t, ok)
}

func TestFreeInvalidatesAndReuses(t *testing.T) {
	tbl := NewTable[int](4)
	a := tbl.Allocate(10)
	b := tbl.Allocate(20)
	require.Equal(t, 2, tbl.Len())

	require.True(t, tbl.Free(a))
	assert.False(t, tbl.Alive(a))
	assert.Nil(t, tbl.GetPtr(a))

	c := tbl.Allocate(30)
	assert.Equal(t, a.Index(), c.Index(), "freed slot is reused")
	assert.NotEqual(t, a.Generation(), c.Generation())

	// The old handle must not alias the new value.
	_, ok := tbl.Get(a)
	assert.False(t, ok)
	v, ok := tbl.Get(c)
	require.True(t, ok)
	assert.Equal(t, 30, v)

	v, ok = tbl.Get(b)
	require.True(t, ok)
	assert.Equal(t, 20, v)
}

func TestFreeIsIdempotent(t *testing.T) {
	tbl := NewTable[int](1)
	h := tbl.Allocate(1)
	assert.True(t, tbl.Free(h))
	assert.False(t, tbl.Free(h))
	assert.Equal(t, 0, tbl.Len())

	// A second free must not push the slot twice onto the free list.
	x := tbl.Allocate(2)
	y := tbl.Allocate(3)
	assert.NotEqual(t, x.Index(), y.Index())
}

func TestSetAndEach(t *testing.T) {
	tbl := NewTable[int](4)
	hs := []Handle[int]{tbl.Allocate(1), tbl.Allocate(2), tbl.Allocate(3)}
	tbl.Free(hs[1])
	assert.True(t, tbl.Set(hs[2], 33))
	assert.False(t, tbl.Set(hs[1], 22))

	var seen []int
	tbl.Each(func(_ Handle[int], v *int) { seen = append(seen, *v) })
	assert.Equal(t, []int{1, 33}, seen)
}

func TestOutOfRangeIndex(t *testing.T) {
	tbl := NewTable[int](0)
	h := New[int](99, 1)
	assert.False(t, tbl.Alive(h))
	assert.False(t, tbl.Free(h))
}
