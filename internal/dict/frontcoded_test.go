package dict

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/require"
)

func buildFrontCoded(t *testing.T, blockSize int, words []string) *FrontCodedDict {
	t.Helper()
	sorted := append([]string(nil), words...)
	sort.Strings(sorted)
	b := NewFrontCodedBuilder(blockSize)
	for _, w := range sorted {
		b.Add(w)
	}
	return b.Build()
}

func TestFrontCodedEntryAndIndexOf(t *testing.T) {
	words := []string{
		"apple", "application", "apply", "banana", "band", "bandana",
		"cat", "catalog", "catalogue", "dog", "dogma", "zebra",
	}
	d := buildFrontCoded(t, 4, words)

	sorted := append([]string(nil), words...)
	sort.Strings(sorted)
	require.Equal(t, len(sorted), d.Len())

	for i, w := range sorted {
		require.Equal(t, w, d.Entry(i+1), "Entry(%d)", i+1)
	}

	for i, w := range sorted {
		id, ok := d.IndexOf(w)
		require.True(t, ok, w)
		require.Equal(t, i+1, id, w)
	}

	_, ok := d.IndexOf("missing-word")
	require.False(t, ok)
	_, ok = d.IndexOf("")
	require.False(t, ok)

	require.Equal(t, sorted, d.All())
}

func TestFrontCodedSingleEntryBlocks(t *testing.T) {
	words := []string{"a", "b", "c"}
	d := buildFrontCoded(t, 1, words)
	require.Equal(t, 3, d.NumBlocks())
	for i, w := range words {
		require.Equal(t, w, d.Entry(i+1))
	}
}

func TestFrontCodedEmpty(t *testing.T) {
	b := NewFrontCodedBuilder(8)
	d := b.Build()
	require.Equal(t, 0, d.Len())
	_, ok := d.IndexOf("x")
	require.False(t, ok)
}
