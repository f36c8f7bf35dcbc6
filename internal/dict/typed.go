// Copyright (c) 2025 Karl Gaissmaier
// SPDX-License-Identifier: MIT

package dict

import (
	"fmt"
	"sort"

	"github.com/RoaringBitmap/roaring/v2"
)

// typeSegment is one datatype's front-coded run of entries, ordered by
// their lexical (order-preserving) byte encoding.
type typeSegment struct {
	dt   Datatype
	dict *FrontCodedDict
}

// TypedDictBuilder accumulates typed-literal entries. Entries must be
// added grouped by Datatype in ascending Datatype order, and within
// each group in ascending encoded-byte order: the same "sorted input"
// contract FrontCodedBuilder has, just applied per type segment.
type TypedDictBuilder struct {
	blockSize int
	perType   [NumDatatypes]*FrontCodedBuilder
	lastDt    Datatype
	anyDt     bool
}

// NewTypedDictBuilder returns an empty builder using blockSize-entry
// front-coding blocks within each type segment.
func NewTypedDictBuilder(blockSize int) *TypedDictBuilder {
	return &TypedDictBuilder{blockSize: blockSize}
}

// Add appends one typed literal, given its already order-preserving
// encoded byte form (see codec.go's Encode* functions).
func (b *TypedDictBuilder) Add(dt Datatype, encoded []byte) {
	if b.anyDt && dt < b.lastDt {
		panic("dict: typed dictionary builder requires non-decreasing datatype order")
	}
	b.lastDt, b.anyDt = dt, true
	if b.perType[dt] == nil {
		b.perType[dt] = NewFrontCodedBuilder(b.blockSize)
	}
	b.perType[dt].Add(string(encoded))
}

// Build finalizes the typed dictionary.
func (b *TypedDictBuilder) Build() *TypedDict {
	td := &TypedDict{present: roaring.New()}
	cum := 0
	for dt := 0; dt < NumDatatypes; dt++ {
		fb := b.perType[dt]
		if fb == nil || fb.Len() == 0 {
			continue
		}
		td.present.Add(uint32(dt))
		fcd := fb.Build()
		td.segments = append(td.segments, typeSegment{dt: Datatype(dt), dict: fcd})
		td.segmentStarts = append(td.segmentStarts, cum)
		cum += fcd.Len()
	}
	td.n = cum
	return td
}

// TypedDict is a read-only dictionary of typed literals, ids dense and
// increasing datatype-segment by datatype-segment.
type TypedDict struct {
	segments      []typeSegment
	segmentStarts []int
	n             int
	present       *roaring.Bitmap
}

// Segment is one datatype's front-coded dict, for serialization.
type Segment struct {
	Dt   Datatype
	Dict *FrontCodedDict
}

// Segments exposes the per-datatype segments in ascending datatype
// order, for serialization.
func (d *TypedDict) Segments() []Segment {
	out := make([]Segment, len(d.segments))
	for i, s := range d.segments {
		out[i] = Segment{Dt: s.dt, Dict: s.dict}
	}
	return out
}

// FromSegments reconstructs a TypedDict from segments read back from
// disk, in ascending datatype order.
func FromSegments(segs []Segment) *TypedDict {
	td := &TypedDict{present: roaring.New()}
	cum := 0
	for _, s := range segs {
		td.present.Add(uint32(s.Dt))
		td.segments = append(td.segments, typeSegment{dt: s.Dt, dict: s.Dict})
		td.segmentStarts = append(td.segmentStarts, cum)
		cum += s.Dict.Len()
	}
	td.n = cum
	return td
}

// Len returns the total number of typed entries across all segments.
func (d *TypedDict) Len() int { return d.n }

// Datatypes returns, in ascending order, every datatype that has at
// least one entry.
func (d *TypedDict) Datatypes() []Datatype {
	out := make([]Datatype, len(d.segments))
	for i, s := range d.segments {
		out[i] = s.dt
	}
	return out
}

func (d *TypedDict) segmentIndexFor(dt Datatype) (int, bool) {
	if !d.present.Contains(uint32(dt)) {
		return 0, false
	}
	// Rank gives a 1-based count of present types <= dt; present
	// types are exactly the segments, in the same order, so rank-1 is
	// the segment index. A concrete, if small-scale, use of roaring's
	// rank rather than a bitmap acting only as a membership set.
	rank := d.present.Rank(uint32(dt))
	return int(rank) - 1, true
}

// Entry returns the datatype and raw encoded bytes for the given
// 1-based id, dense across all segments. Panics if id is out of range.
func (d *TypedDict) Entry(id int) (Datatype, []byte) {
	if id < 1 || id > d.n {
		panic(fmt.Sprintf("dict: typed entry id %d out of range [1,%d]", id, d.n))
	}
	id0 := id - 1
	seg := sort.Search(len(d.segmentStarts), func(i int) bool {
		next := d.n
		if i+1 < len(d.segmentStarts) {
			next = d.segmentStarts[i+1]
		}
		return next > id0
	})
	local0 := id0 - d.segmentStarts[seg]
	s := d.segments[seg]
	return s.dt, []byte(s.dict.Entry(local0 + 1))
}

// IndexOf returns the 1-based dense id of the entry with the given
// datatype and encoded bytes, or (0, false) if absent.
func (d *TypedDict) IndexOf(dt Datatype, encoded []byte) (int, bool) {
	segIdx, ok := d.segmentIndexFor(dt)
	if !ok {
		return 0, false
	}
	s := d.segments[segIdx]
	local, found := s.dict.IndexOf(string(encoded))
	if !found {
		return 0, false
	}
	return d.segmentStarts[segIdx] + local, true
}
