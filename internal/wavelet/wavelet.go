// Copyright (c) 2025 Karl Gaissmaier
// SPDX-License-Identifier: MIT

// Package wavelet implements a wavelet tree over fixed-width symbols: one
// internal/bitarray level per symbol bit, letting both "what symbol is at
// this position" (DecodeOne) and "which positions hold this symbol"
// (Lookup) run in O(width) rank/select operations instead of a linear
// scan.
//
// The construction and decode algorithms are a direct port of the
// wavelet tree used by the dictionary and adjacency encodings it sits
// on top of: each level narrows the alphabet in half and partitions the
// sequence's surviving positions into a "goes left" / "goes right" bit,
// node boundaries implicit rather than pointer-linked. Lookup inverts
// that narrowing with select instead of rank.
package wavelet

import "github.com/stratumdb/stratum/internal/bitarray"

// Builder accumulates a sequence of fixed-width symbols and constructs
// the finished WaveletTree.
type Builder struct {
	width  int
	values []uint64
}

// NewBuilder returns a Builder for symbols in [0, 2^width).
func NewBuilder(width int) *Builder {
	return &Builder{width: width}
}

// Add appends the next symbol in sequence order.
func (b *Builder) Add(v uint64) {
	b.values = append(b.values, v)
}

// Len returns the number of symbols added so far.
func (b *Builder) Len() int { return len(b.values) }

// Build constructs the wavelet tree's levels.
//
// One level per alphabet bit. Within level i there are 2^i fragments,
// each covering a contiguous sub-range of the (halved-i-times) alphabet;
// every value falls into exactly one fragment at that level, and
// contributes one bit recording which half of the fragment's alphabet
// range it falls in. Concatenating all fragments' bits, in fragment
// order, gives a level exactly len(values) bits long.
func (b *Builder) Build() *WaveletTree {
	n := len(b.values)
	levels := make([]*bitarray.BitArray, b.width)

	for layer := 0; layer < b.width; layer++ {
		fragSize := uint64(1) << uint(b.width-layer)
		numFragments := 1 << uint(layer)
		lb := bitarray.NewBuilder(n)
		for fragment := 0; fragment < numFragments; fragment++ {
			alphaStart := uint64(fragment) * fragSize
			alphaMid := alphaStart + fragSize/2
			alphaEnd := alphaStart + fragSize
			for _, v := range b.values {
				if v >= alphaStart && v < alphaEnd {
					lb.Append(v >= alphaMid)
				}
			}
		}
		levels[layer] = lb.Build()
	}

	return &WaveletTree{width: b.width, n: n, levels: levels}
}

// WaveletTree answers symbol/position queries over a fixed-width-symbol
// sequence via its succinct level encoding.
type WaveletTree struct {
	width  int
	n      int
	levels []*bitarray.BitArray
}

// Width returns the symbol bit width (number of levels).
func (w *WaveletTree) Width() int { return w.width }

// Len returns the number of symbols encoded.
func (w *WaveletTree) Len() int { return w.n }

// Levels returns the per-level bit arrays, for serialization.
func (w *WaveletTree) Levels() []*bitarray.BitArray { return w.levels }

// FromLevels reconstructs a WaveletTree from level bit arrays read back
// from disk (spec §6.2: one bitarray-shaped section per level).
func FromLevels(width, n int, levels []*bitarray.BitArray) *WaveletTree {
	return &WaveletTree{width: width, n: n, levels: levels}
}

// DecodeOne returns the symbol stored at sequence position pos.
//
// Walks the levels top to bottom, narrowing the alphabet half by half
// and, correspondingly, narrowing [rangeStart, rangeEnd) to the local
// sub-range that the current node occupies within its level's bit
// array, using rank to re-locate pos within the narrowed range at each
// step.
func (w *WaveletTree) DecodeOne(pos int) uint64 {
	alphaStart, alphaEnd := uint64(0), uint64(1)<<uint(w.width)
	rangeStart, rangeEnd := 0, w.n
	index := pos

	for layer := 0; layer < w.width; layer++ {
		lvl := w.levels[layer]
		mid := (alphaStart + alphaEnd) / 2
		onesInRange := lvl.RangeRank1(rangeStart, rangeEnd)
		zerosInRange := (rangeEnd - rangeStart) - onesInRange

		if lvl.Test(index) {
			ones := lvl.RangeRank1(rangeStart, index+1)
			newIndex := ones - 1
			alphaStart = mid
			rangeStart = rangeStart + zerosInRange
			index = rangeStart + newIndex
		} else {
			ones := lvl.RangeRank1(rangeStart, index+1)
			zeros := (index + 1 - rangeStart) - ones
			newIndex := zeros - 1
			alphaEnd = mid
			newRangeEnd := rangeStart + zerosInRange
			rangeEnd = newRangeEnd
			index = rangeStart + newIndex
		}
	}
	return alphaStart
}

// symbolRange returns, for a fully-specified symbol, the per-layer
// [rangeStart, rangeEnd) local range and the bit taken at that layer.
// rangeStart/rangeEnd are recorded *before* each layer narrows them, so
// ranges[width] is the final narrowed range: its width is the number of
// occurrences of symbol in the sequence.
func (w *WaveletTree) symbolRange(symbol uint64) (rangeStart, rangeEnd []int, bit []bool) {
	rangeStart = make([]int, w.width+1)
	rangeEnd = make([]int, w.width+1)
	bit = make([]bool, w.width)

	rs, re := 0, w.n
	rangeStart[0], rangeEnd[0] = rs, re
	alphaStart, alphaEnd := uint64(0), uint64(1)<<uint(w.width)

	for layer := 0; layer < w.width; layer++ {
		lvl := w.levels[layer]
		mid := (alphaStart + alphaEnd) / 2
		onesInRange := lvl.RangeRank1(rs, re)
		zerosInRange := (re - rs) - onesInRange

		goesRight := symbol >= mid
		bit[layer] = goesRight
		if goesRight {
			alphaStart = mid
			rs = rs + zerosInRange
		} else {
			alphaEnd = mid
			re = rs + zerosInRange
		}
		rangeStart[layer+1], rangeEnd[layer+1] = rs, re
	}
	return rangeStart, rangeEnd, bit
}

// Count returns the number of occurrences of symbol in the sequence.
func (w *WaveletTree) Count(symbol uint64) int {
	rs, re, _ := w.symbolRange(symbol)
	return re[w.width] - rs[w.width]
}

// Lookup returns, in increasing order, every sequence position holding
// the given symbol.
//
// It first narrows [rangeStart, rangeEnd) for that symbol exactly as
// DecodeOne narrows it when decoding forward, then inverts that
// narrowing bottom-up: at each level, the k-th surviving position's
// local offset is the k-th set (or clear) bit within the node's range,
// found by select, and maps back to the parent level's local offset.
// Run to level 0, the offset is the original sequence position.
func (w *WaveletTree) Lookup(symbol uint64) []int {
	rangeStart, rangeEnd, bit := w.symbolRange(symbol)
	count := rangeEnd[w.width] - rangeStart[w.width]
	if count <= 0 {
		return nil
	}

	positions := make([]int, count)
	for k := 0; k < count; k++ {
		offset := k
		for layer := w.width - 1; layer >= 0; layer-- {
			lvl := w.levels[layer]
			rs := rangeStart[layer]
			var globalPos int
			var ok bool
			if bit[layer] {
				onesBefore := lvl.Rank1(rs)
				globalPos, ok = lvl.Select1(onesBefore + offset)
			} else {
				zerosBefore := rs - lvl.Rank1(rs)
				globalPos, ok = lvl.Select0(zerosBefore + offset)
			}
			if !ok {
				panic("wavelet: inconsistent level index during lookup")
			}
			offset = globalPos - rs
		}
		positions[k] = offset
	}
	return positions
}
