// Copyright (c) 2025 Karl Gaissmaier
// SPDX-License-Identifier: MIT

// Package adjacency implements a succinct pair-of-arrays multimap: a
// left-key in [1, n] maps to an ordered run of right values, stored as
// one flat packed array of right values (internal/logarray) alongside
// a same-length bit array (internal/bitarray) whose 1-bits mark the
// last entry of each left-key's run. offset_for(left) then reduces to
// two select1 calls on the bit array instead of a scan.
//
// A left-key with no real right values still needs a slot so that
// offset_for stays O(1) for every left in range: it gets a single
// "stub" entry whose right value is the reserved sentinel 0 (real
// dictionary ids are 1-based, so 0 never collides with a real right).
package adjacency

import (
	"fmt"

	"github.com/stratumdb/stratum/internal/bitarray"
	"github.com/stratumdb/stratum/internal/logarray"
)

// Builder accumulates (left, right) pairs, which must arrive in
// strictly increasing lexicographic order with left non-decreasing.
// Gaps in left are filled with stub entries automatically.
type Builder struct {
	nums    *logarray.Builder
	bits    *bitarray.Builder
	curLeft int
	lastIdx int
	stubs   int
}

// NewBuilder returns an empty adjacency-list builder.
func NewBuilder() *Builder {
	return &Builder{nums: logarray.NewBuilder(), bits: bitarray.NewBuilder(0)}
}

func (b *Builder) pushEntry(right uint64) int {
	b.nums.Add(right)
	return b.bits.Append(false)
}

func (b *Builder) closeGroup(idx int) {
	b.bits.Set(idx)
}

func (b *Builder) emitStub(left int) {
	idx := b.pushEntry(0)
	b.closeGroup(idx)
	b.stubs++
	b.curLeft = left
	b.lastIdx = idx
}

// Add appends one (left, right) pair.
func (b *Builder) Add(left int, right uint64) {
	switch {
	case b.curLeft == 0:
		for l := 1; l < left; l++ {
			b.emitStub(l)
		}
	case left == b.curLeft:
		// continuing the current run; nothing to close yet
	case left == b.curLeft+1:
		b.closeGroup(b.lastIdx)
	case left > b.curLeft+1:
		b.closeGroup(b.lastIdx)
		for l := b.curLeft + 1; l < left; l++ {
			b.emitStub(l)
		}
	default:
		panic(fmt.Sprintf("adjacency: left must be non-decreasing, got %d after %d", left, b.curLeft))
	}

	idx := b.pushEntry(right)
	b.lastIdx = idx
	b.curLeft = left
}

// Len reports how many (left, right) entries, including stubs, have
// been pushed so far.
func (b *Builder) Len() int { return b.nums.Len() }

// Build finalizes the adjacency list.
func (b *Builder) Build() *List {
	if b.curLeft != 0 {
		b.closeGroup(b.lastIdx)
	}
	nums := b.nums.Build()
	bits := b.bits.Build()
	return &List{nums: nums, bits: bits, stubs: b.stubs}
}

// List is a read-only succinct adjacency list.
type List struct {
	nums  *logarray.LogArray
	bits  *bitarray.BitArray
	stubs int
}

// FromParts reconstructs a List read back from disk.
func FromParts(nums *logarray.LogArray, bits *bitarray.BitArray, stubs int) *List {
	return &List{nums: nums, bits: bits, stubs: stubs}
}

// Nums and Bits expose the raw parts for serialization.
func (a *List) Nums() *logarray.LogArray { return a.nums }
func (a *List) Bits() *bitarray.BitArray { return a.bits }

// LeftCount returns the number of left-keys spanned, stubs included.
func (a *List) LeftCount() int { return a.bits.Count() }

// Len returns the total number of stored entries, stubs included.
func (a *List) Len() int { return a.nums.Len() }

// RightCount returns the number of real (non-stub) right values.
func (a *List) RightCount() int { return a.nums.Len() - a.stubs }

// OffsetFor returns the [start, end) range into Nums/Bits holding
// left's run. Panics if left is out of [1, LeftCount()].
func (a *List) OffsetFor(left int) (start, end int) {
	if left < 1 || left > a.LeftCount() {
		panic(fmt.Sprintf("adjacency: left %d out of range [1,%d]", left, a.LeftCount()))
	}
	e, ok := a.bits.Select1(left - 1)
	if !ok {
		panic("adjacency: inconsistent bit index")
	}
	end = e + 1
	if left == 1 {
		start = 0
		return
	}
	prevEnd, ok := a.bits.Select1(left - 2)
	if !ok {
		panic("adjacency: inconsistent bit index")
	}
	start = prevEnd + 1
	return
}

// Get returns the ordered right values for left, or nil if left's run
// is a stub (no real right values).
func (a *List) Get(left int) []uint64 {
	start, end := a.OffsetFor(left)
	if end-start == 1 {
		if v := a.nums.Entry(start); v == 0 {
			return nil
		}
	}
	out := make([]uint64, 0, end-start)
	for i := start; i < end; i++ {
		out = append(out, a.nums.Entry(i))
	}
	return out
}

// PairAtPos returns the (left, right) pair stored at flat position pos.
func (a *List) PairAtPos(pos int) (left int, right uint64) {
	return a.bits.Rank1(pos) + 1, a.nums.Entry(pos)
}

// NumAtPos returns the raw right value at flat position pos.
func (a *List) NumAtPos(pos int) uint64 { return a.nums.Entry(pos) }

// BitAtPos reports whether pos is the last entry of its left-key's run.
func (a *List) BitAtPos(pos int) bool { return a.bits.Test(pos) }
