// Copyright (c) 2025 Karl Gaissmaier
// SPDX-License-Identifier: MIT

package dict

import (
	"encoding/binary"
	"fmt"

	"github.com/stratumdb/stratum/internal/logarray"
)

// DefaultBlockSize is the number of entries front-coded against a
// shared first entry before the next block starts fresh. Small enough
// that decoding an arbitrary id only ever re-derives a handful of
// entries, large enough that the shared-prefix savings are worth the
// per-block first-entry cost.
const DefaultBlockSize = 8

// FrontCodedBuilder accumulates dictionary entries, which must be added
// in strictly increasing byte order, and finalizes a FrontCodedDict.
type FrontCodedBuilder struct {
	blockSize int
	data      []byte
	starts    *logarray.MonotonicBuilder
	prev      string
	n         int
}

// NewFrontCodedBuilder returns a builder that starts a fresh block
// every blockSize entries.
func NewFrontCodedBuilder(blockSize int) *FrontCodedBuilder {
	if blockSize <= 0 {
		blockSize = DefaultBlockSize
	}
	return &FrontCodedBuilder{blockSize: blockSize, starts: logarray.NewMonotonicBuilder()}
}

// Len returns the number of entries added so far.
func (b *FrontCodedBuilder) Len() int { return b.n }

// Add appends the next entry, which must sort strictly after the
// previous one. Panics otherwise (§4.2 builder contract).
func (b *FrontCodedBuilder) Add(s string) {
	if b.n > 0 && s <= b.prev {
		panic(fmt.Sprintf("dict: front-coded builder requires strictly increasing input, got %q after %q", s, b.prev))
	}

	var buf [binary.MaxVarintLen64]byte

	if b.n%b.blockSize == 0 {
		b.starts.Add(uint64(len(b.data)))
		nn := binary.PutUvarint(buf[:], uint64(len(s)))
		b.data = append(b.data, buf[:nn]...)
		b.data = append(b.data, s...)
	} else {
		shared := commonPrefixLen(b.prev, s)
		suffix := s[shared:]
		nn := binary.PutUvarint(buf[:], uint64(shared))
		b.data = append(b.data, buf[:nn]...)
		nn = binary.PutUvarint(buf[:], uint64(len(suffix)))
		b.data = append(b.data, buf[:nn]...)
		b.data = append(b.data, suffix...)
	}
	b.prev = s
	b.n++
}

// Build finalizes the dictionary.
func (b *FrontCodedBuilder) Build() *FrontCodedDict {
	return &FrontCodedDict{
		blockSize: b.blockSize,
		n:         b.n,
		data:      b.data,
		starts:    b.starts.Build(),
	}
}

func commonPrefixLen(a, b string) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	i := 0
	for i < n && a[i] == b[i] {
		i++
	}
	return i
}

// FrontCodedDict is a read-only, block-front-coded dictionary mapping
// dense 1-based ids to byte strings that were added in sorted order.
type FrontCodedDict struct {
	blockSize int
	n         int
	data      []byte
	starts    *logarray.Monotonic
}

// FromParts reconstructs a FrontCodedDict read back from disk.
func FromParts(blockSize, n int, data []byte, starts *logarray.Monotonic) *FrontCodedDict {
	return &FrontCodedDict{blockSize: blockSize, n: n, data: data, starts: starts}
}

// Len returns the number of entries.
func (d *FrontCodedDict) Len() int { return d.n }

// NumBlocks returns the number of front-coding blocks.
func (d *FrontCodedDict) NumBlocks() int { return d.starts.Len() }

// Data and Starts expose the raw parts for serialization.
func (d *FrontCodedDict) Data() []byte                { return d.data }
func (d *FrontCodedDict) Starts() *logarray.Monotonic { return d.starts }

func (d *FrontCodedDict) blockCount(blk int) int {
	count := d.n - blk*d.blockSize
	if count > d.blockSize {
		count = d.blockSize
	}
	return count
}

func (d *FrontCodedDict) blockBounds(blk int) (start, end int) {
	start = int(d.starts.Entry(blk))
	if blk+1 < d.starts.Len() {
		end = int(d.starts.Entry(blk + 1))
	} else {
		end = len(d.data)
	}
	return
}

// decodeBlock decodes the first `limit` entries of block blk (or all of
// them if limit < 0).
func (d *FrontCodedDict) decodeBlock(blk, limit int) []string {
	start, end := d.blockBounds(blk)
	buf := d.data[start:end]
	count := d.blockCount(blk)
	if limit >= 0 && limit < count {
		count = limit
	}

	out := make([]string, 0, count)
	pos := 0
	var prev string
	for i := 0; i < count; i++ {
		if i == 0 {
			l, nn := binary.Uvarint(buf[pos:])
			pos += nn
			s := string(buf[pos : pos+int(l)])
			pos += int(l)
			out = append(out, s)
			prev = s
			continue
		}
		shared, nn := binary.Uvarint(buf[pos:])
		pos += nn
		suffixLen, nn2 := binary.Uvarint(buf[pos:])
		pos += nn2
		suffix := buf[pos : pos+int(suffixLen)]
		pos += int(suffixLen)
		s := prev[:shared] + string(suffix)
		out = append(out, s)
		prev = s
	}
	return out
}

// Entry returns the entry for the given 1-based id. Panics if id is out
// of range, mirroring LogArray/BitArray's index-contract style. Ids are
// 1-based (not 0) so that 0 is free to use as an adjacency-list "absent"
// sentinel elsewhere in a layer artifact.
func (d *FrontCodedDict) Entry(id int) string {
	if id < 1 || id > d.n {
		panic(fmt.Sprintf("dict: entry id %d out of range [1,%d]", id, d.n))
	}
	local := id - 1
	blk := local / d.blockSize
	within := local % d.blockSize
	entries := d.decodeBlock(blk, within+1)
	return entries[within]
}

// IndexOf returns the 1-based id of s, and true, or (0, false) if s is
// not present. Runs a binary search over block-first entries followed
// by a linear scan inside the located block.
func (d *FrontCodedDict) IndexOf(s string) (int, bool) {
	if d.n == 0 {
		return 0, false
	}
	numBlocks := d.starts.Len()
	lo, hi := 0, numBlocks-1
	for lo < hi {
		mid := (lo + hi + 1) / 2
		first := d.decodeBlock(mid, 1)[0]
		if first <= s {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	blk := lo
	entries := d.decodeBlock(blk, -1)
	for i, e := range entries {
		if e == s {
			return blk*d.blockSize + i + 1, true
		}
		if e > s {
			break
		}
	}
	return 0, false
}

// All decodes every entry, for merge/export paths that need to stream
// the whole dictionary in order.
func (d *FrontCodedDict) All() []string {
	out := make([]string, 0, d.n)
	for blk := 0; blk < d.starts.Len(); blk++ {
		out = append(out, d.decodeBlock(blk, -1)...)
	}
	return out
}
