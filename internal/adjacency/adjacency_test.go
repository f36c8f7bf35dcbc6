package adjacency

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBasicGroupsNoGaps(t *testing.T) {
	b := NewBuilder()
	pairs := [][2]int{{1, 10}, {1, 20}, {2, 5}, {3, 1}, {3, 2}, {3, 3}}
	for _, p := range pairs {
		b.Add(p[0], uint64(p[1]))
	}
	list := b.Build()

	require.Equal(t, 3, list.LeftCount())
	require.Equal(t, 6, list.Len())
	require.Equal(t, 6, list.RightCount())

	require.Equal(t, []uint64{10, 20}, list.Get(1))
	require.Equal(t, []uint64{5}, list.Get(2))
	require.Equal(t, []uint64{1, 2, 3}, list.Get(3))
}

func TestGapsEmitStubs(t *testing.T) {
	b := NewBuilder()
	// left 1 missing entirely, left 2 has one value, left 3 missing,
	// left 4 has two values.
	b.Add(2, 7)
	b.Add(4, 1)
	b.Add(4, 2)
	list := b.Build()

	require.Equal(t, 4, list.LeftCount())
	require.Nil(t, list.Get(1))
	require.Equal(t, []uint64{7}, list.Get(2))
	require.Nil(t, list.Get(3))
	require.Equal(t, []uint64{1, 2}, list.Get(4))
	require.Equal(t, 3, list.RightCount())
	require.Equal(t, 5, list.Len())
}

func TestPairAndNumAndBitAtPos(t *testing.T) {
	b := NewBuilder()
	b.Add(1, 10)
	b.Add(1, 20)
	b.Add(2, 30)
	list := b.Build()

	left, right := list.PairAtPos(0)
	require.Equal(t, 1, left)
	require.Equal(t, uint64(10), right)

	left, right = list.PairAtPos(1)
	require.Equal(t, 1, left)
	require.Equal(t, uint64(20), right)
	require.True(t, list.BitAtPos(1))
	require.False(t, list.BitAtPos(0))

	left, right = list.PairAtPos(2)
	require.Equal(t, 2, left)
	require.Equal(t, uint64(30), right)
	require.Equal(t, uint64(30), list.NumAtPos(2))
}

func TestOffsetForOutOfRangePanics(t *testing.T) {
	b := NewBuilder()
	b.Add(1, 1)
	list := b.Build()
	require.Panics(t, func() { list.OffsetFor(0) })
	require.Panics(t, func() { list.OffsetFor(2) })
}

func TestBuilderRejectsDecreasingLeft(t *testing.T) {
	b := NewBuilder()
	b.Add(3, 1)
	require.Panics(t, func() { b.Add(2, 1) })
}
