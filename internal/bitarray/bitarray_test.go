package bitarray

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRankSelectRoundtrip(t *testing.T) {
	b := NewBuilder(0)
	set := []int{0, 1, 5, 63, 64, 65, 127, 128, 200, 4095, 4096, 5000}
	max := 0
	for _, i := range set {
		if i > max {
			max = i
		}
	}
	for i := 0; i <= max; i++ {
		want := false
		for _, s := range set {
			if s == i {
				want = true
			}
		}
		b.Append(want)
	}
	ba := b.Build()

	require.Equal(t, len(set), ba.Count())

	for i := 0; i <= max; i++ {
		want := false
		for _, s := range set {
			if s == i {
				want = true
			}
		}
		require.Equal(t, want, ba.Test(i), "Test(%d)", i)
	}

	for k, s := range set {
		pos, ok := ba.Select1(k)
		require.True(t, ok)
		require.Equal(t, s, pos, "Select1(%d)", k)
	}

	_, ok := ba.Select1(len(set))
	require.False(t, ok)

	// rank1(i) == number of set bits strictly before i
	for i := 0; i <= max+1; i++ {
		want := 0
		for _, s := range set {
			if s < i {
				want++
			}
		}
		require.Equal(t, want, ba.Rank1(i), "Rank1(%d)", i)
	}
}

func TestRangeRank1(t *testing.T) {
	b := NewBuilder(0)
	for i := 0; i < 300; i++ {
		b.Append(i%7 == 0)
	}
	ba := b.Build()

	got := ba.RangeRank1(50, 150)
	want := 0
	for i := 50; i < 150; i++ {
		if i%7 == 0 {
			want++
		}
	}
	require.Equal(t, want, got)
}

func TestFromWordsRoundtrip(t *testing.T) {
	b := NewBuilder(0)
	for i := 0; i < 200; i++ {
		b.Append(i%3 == 0)
	}
	ba := b.Build()

	ba2 := FromWords(ba.Words(), ba.Len())
	require.Equal(t, ba.Count(), ba2.Count())
	for i := 0; i < 200; i++ {
		require.Equal(t, ba.Test(i), ba2.Test(i))
	}
}
