// Copyright (c) 2025 Karl Gaissmaier
// SPDX-License-Identifier: MIT

package logarray

import "sort"

// Monotonic is a LogArray whose entries are strictly increasing. It adds
// logarithmic exact and nearest lookups on top of the plain LogArray
// (spec §4.1 "Monotonic log-array").
type Monotonic struct {
	*LogArray
}

// MonotonicBuilder accumulates strictly increasing entries.
type MonotonicBuilder struct {
	b    *Builder
	last uint64
	any  bool
}

// NewMonotonicBuilder returns an empty MonotonicBuilder.
func NewMonotonicBuilder() *MonotonicBuilder {
	return &MonotonicBuilder{b: NewBuilder()}
}

// Add appends v, which must be strictly greater than the previous entry.
// Panics otherwise (programmer/caller contract, per spec §4.2 style).
func (m *MonotonicBuilder) Add(v uint64) {
	if m.any && v <= m.last {
		panic("logarray: monotonic builder requires strictly increasing input")
	}
	m.b.Add(v)
	m.last = v
	m.any = true
}

// Len returns the number of entries added so far.
func (m *MonotonicBuilder) Len() int { return m.b.Len() }

// Build finalizes the Monotonic array.
func (m *MonotonicBuilder) Build() *Monotonic {
	return &Monotonic{LogArray: m.b.Build()}
}

// FromLogArray wraps an already-decoded LogArray as Monotonic, e.g. when
// reading one back from disk. Does not re-validate monotonicity.
func FromLogArray(a *LogArray) *Monotonic {
	return &Monotonic{LogArray: a}
}

// IndexOf returns the index i such that Entry(i) == v, and true, or
// (0, false) if v is not present.
func (m *Monotonic) IndexOf(v uint64) (int, bool) {
	n := m.Len()
	i := sort.Search(n, func(i int) bool { return m.Entry(i) >= v })
	if i < n && m.Entry(i) == v {
		return i, true
	}
	return 0, false
}

// NearestIndexOf returns the first index i such that Entry(i) >= v, and
// true, or (Len(), false) if no such entry exists.
func (m *Monotonic) NearestIndexOf(v uint64) (int, bool) {
	n := m.Len()
	i := sort.Search(n, func(i int) bool { return m.Entry(i) >= v })
	if i < n {
		return i, true
	}
	return n, false
}
