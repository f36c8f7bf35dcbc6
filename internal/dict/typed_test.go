package dict

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTypedDictSegmentsAndLookup(t *testing.T) {
	b := NewTypedDictBuilder(4)

	strs := []string{"alpha", "beta", "gamma"}
	for _, s := range strs {
		b.Add(DatatypeString, []byte(s))
	}
	ints := []int32{-5, 0, 5, 10}
	for _, v := range ints {
		b.Add(DatatypeInt32, EncodeInt32(v))
	}
	floats := []float64{-1.5, 2.5}
	for _, v := range floats {
		b.Add(DatatypeFloat64, EncodeFloat64(v))
	}

	td := b.Build()
	require.Equal(t, len(strs)+len(ints)+len(floats), td.Len())

	dts := td.Datatypes()
	require.Equal(t, []Datatype{DatatypeString, DatatypeInt32, DatatypeFloat64}, dts)

	for i, s := range strs {
		dt, raw := td.Entry(i + 1)
		require.Equal(t, DatatypeString, dt)
		require.Equal(t, s, string(raw))
		id, ok := td.IndexOf(DatatypeString, []byte(s))
		require.True(t, ok)
		require.Equal(t, i+1, id)
	}

	base := len(strs)
	for i, v := range ints {
		dt, raw := td.Entry(base + i + 1)
		require.Equal(t, DatatypeInt32, dt)
		require.Equal(t, v, DecodeInt32(raw))
	}

	_, ok := td.IndexOf(DatatypeUInt64, EncodeUInt64(42))
	require.False(t, ok)
	_, ok = td.IndexOf(DatatypeInt32, EncodeInt32(999))
	require.False(t, ok)
}

func TestTypedDictBuilderRejectsOutOfOrderDatatypes(t *testing.T) {
	b := NewTypedDictBuilder(4)
	b.Add(DatatypeInt32, EncodeInt32(1))
	require.Panics(t, func() { b.Add(DatatypeString, []byte("x")) })
}
