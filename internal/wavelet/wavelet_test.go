package wavelet

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func buildTree(t *testing.T, width int, values []uint64) *WaveletTree {
	t.Helper()
	b := NewBuilder(width)
	for _, v := range values {
		b.Add(v)
	}
	return b.Build()
}

func TestDecodeOneRoundtrip(t *testing.T) {
	values := []uint64{21, 1, 30, 13, 23, 21, 3, 0, 21, 21, 12, 11}
	tree := buildTree(t, 5, values)

	require.Equal(t, len(values), tree.Len())
	for i, v := range values {
		require.Equal(t, v, tree.DecodeOne(i), "position %d", i)
	}
}

func TestLookupFindsAllOccurrences(t *testing.T) {
	values := []uint64{21, 1, 30, 13, 23, 21, 3, 0, 21, 21, 12, 11}
	tree := buildTree(t, 5, values)

	require.Equal(t, []int{0, 5, 8, 9}, tree.Lookup(21))
	require.Equal(t, []int{1}, tree.Lookup(1))
	require.Equal(t, []int{2}, tree.Lookup(30))
	require.Nil(t, tree.Lookup(17))
	require.Equal(t, 4, tree.Count(21))
	require.Equal(t, 0, tree.Count(17))
}

func TestLookupMatchesDecodeOne(t *testing.T) {
	values := []uint64{0, 0, 1, 2, 1, 3, 3, 3, 2, 0, 1, 2, 3, 0}
	tree := buildTree(t, 2, values)

	for symbol := uint64(0); symbol < 4; symbol++ {
		var want []int
		for i, v := range values {
			if v == symbol {
				want = append(want, i)
			}
		}
		require.Equal(t, want, tree.Lookup(symbol), "symbol %d", symbol)
	}
}

func TestOneBitSymbolWidth(t *testing.T) {
	tree := buildTree(t, 1, []uint64{0, 1, 0, 1, 1, 0})
	require.Equal(t, []int{0, 2, 5}, tree.Lookup(0))
	require.Equal(t, []int{1, 3, 4}, tree.Lookup(1))
}
