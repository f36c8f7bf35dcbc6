// Copyright (c) 2025 Karl Gaissmaier
// SPDX-License-Identifier: MIT

package stratum

import (
	"github.com/RoaringBitmap/roaring/v2"

	"github.com/stratumdb/stratum/internal/adjacency"
	"github.com/stratumdb/stratum/internal/dict"
	"github.com/stratumdb/stratum/internal/logarray"
	"github.com/stratumdb/stratum/internal/wavelet"
)

// Kind tags a Layer's role in its chain. Kept as one flat struct with
// a kind tag and optional fields rather than three separate Go types:
// the structures Child and Rollup add are genuinely optional facets of
// the same object (query-only code never needs to care), not a reason
// to fork the type hierarchy.
type Kind int

const (
	KindBase Kind = iota
	KindChild
	KindRollup
)

func (k Kind) String() string {
	switch k {
	case KindBase:
		return "base"
	case KindChild:
		return "child"
	case KindRollup:
		return "rollup"
	default:
		return "unknown"
	}
}

// side holds one polarity (additions, or a child layer's removals) of
// a layer's triple-structure: the three adjacency lists and the
// predicate wavelet tree built over S->P.
type side struct {
	sp  *adjacency.List // subject -> predicates
	spo *adjacency.List // (subject,predicate) compact index -> objects
	ops *adjacency.List // object -> (subject,predicate) compact indices

	predicateWavelet *wavelet.WaveletTree // over sp.Nums(), width = ceil(log2(numPredicates+1))

	// subjects/objects translate this layer's own compact adjacency
	// `left` indices back to global ids; built for base and child
	// layers alike, since a layer's own subject/object domain is never
	// guaranteed contiguous from 1 (§3.4). Nil only for the zero-value
	// side (a base layer's neg polarity, which sp == nil already guards).
	subjects *logarray.Monotonic
	objects  *logarray.Monotonic
}

// IDMap is a bitmap-indexed reordering table, produced only by rollup
// (spec's id-maps are optional everywhere else and treated as
// identity). present marks which old/external ids were kept; newToOld
// gives the dense new-id -> old-id mapping; oldToNew is its inverse.
//
// present's role here is genuine set membership (not just a stepping
// stone to rank), so it stays a roaring.Bitmap; the reverse index is a
// plain map because a rollup's renumbering is an arbitrary permutation
// (dictionaries are rebuilt in string order, not old-id order), so
// there's no monotonic structure for rank-based reversal to exploit.
type IDMap struct {
	present  *roaring.Bitmap
	newToOld *logarray.LogArray
	oldToNew map[uint64]int
}

// NewIDMap builds an IDMap from the new-id-ordered sequence of old ids.
func NewIDMap(oldIDsInNewOrder []uint64) *IDMap {
	present := roaring.New()
	oldToNew := make(map[uint64]int, len(oldIDsInNewOrder))
	b := logarray.NewBuilder()
	for i, old := range oldIDsInNewOrder {
		present.Add(uint32(old))
		oldToNew[old] = i + 1
		b.Add(old)
	}
	return &IDMap{present: present, newToOld: b.Build(), oldToNew: oldToNew}
}

// Len returns the number of entries in the map.
func (m *IDMap) Len() int { return m.newToOld.Len() }

// NewToOld maps a 1-based new id to its old id.
func (m *IDMap) NewToOld(newID int) uint64 { return m.newToOld.Entry(newID - 1) }

// OldToNew maps an old id to its 1-based new id, if present.
func (m *IDMap) OldToNew(oldID uint64) (int, bool) {
	v, ok := m.oldToNew[oldID]
	return v, ok
}

// Contains reports whether oldID survived the rollup, answered from the
// roaring bitmap without the full map lookup's pointer chase.
func (m *IDMap) Contains(oldID uint64) bool { return m.present.Contains(uint32(oldID)) }

// Layer is an immutable artifact: dictionaries, adjacency lists and
// their indexes, optionally referencing a parent.
type Layer struct {
	id     LayerID
	kind   Kind
	parent *Layer // nil for base layers
	origin LayerID // rollup only: the layer id this rollup shadows

	nodes      *dict.FrontCodedDict
	predicates *dict.FrontCodedDict
	values     *dict.TypedDict

	nodeValueIDMap *IDMap // rollup only (or nil: identity)
	predicateIDMap *IDMap // rollup only (or nil: identity)

	// Cumulative counts of the entire ancestor chain, not including
	// this layer's own dictionaries; the node/value id space is
	// shared (nodes first, then values), predicates have their own
	// space.
	nodeValueOffset int
	predicateOffset int

	pos side
	neg side // zero value (nil fields) for base layers
}

// ID returns the layer's id.
func (l *Layer) ID() LayerID { return l.id }

// Kind returns the layer's role.
func (l *Layer) Kind() Kind { return l.kind }

// Parent returns the parent layer, or nil for a base layer.
func (l *Layer) Parent() *Layer { return l.parent }

// RollupOrigin returns the layer id this rollup shadows. Only
// meaningful when Kind() == KindRollup.
func (l *Layer) RollupOrigin() LayerID { return l.origin }

// Depth returns the number of ancestors (0 for a base layer).
func (l *Layer) Depth() int {
	n := 0
	for p := l.parent; p != nil; p = p.parent {
		n++
	}
	return n
}

// Chain returns the layer and its ancestors, head (this layer) first.
func (l *Layer) Chain() []*Layer {
	out := []*Layer{l}
	for p := l.parent; p != nil; p = p.parent {
		out = append(out, p)
	}
	return out
}

// IsAncestorOf reports whether l appears in other's chain.
func (l *Layer) IsAncestorOf(other *Layer) bool {
	for p := other; p != nil; p = p.parent {
		if p.id == l.id {
			return true
		}
	}
	return false
}

func (l *Layer) totalNodeValueCount() int {
	return l.nodeValueOffset + l.nodes.Len() + l.values.Len()
}

func (l *Layer) totalPredicateCount() int {
	return l.predicateOffset + l.predicates.Len()
}

// NodeCount, PredicateCount, ValueCount return this layer's own new
// dictionary sizes (not cumulative across the chain).
func (l *Layer) NodeCount() int      { return l.nodes.Len() }
func (l *Layer) PredicateCount() int { return l.predicates.Len() }
func (l *Layer) ValueCount() int     { return l.values.Len() }

// NodeID resolves a node name to its global id by searching this
// layer's own dictionary, then recursing up the parent chain.
func (l *Layer) NodeID(name string) (uint64, bool) {
	if local, ok := l.nodes.IndexOf(name); ok {
		return uint64(l.nodeValueOffset + local), true
	}
	if l.parent != nil {
		return l.parent.NodeID(name)
	}
	return 0, false
}

// PredicateID resolves a predicate name to its global id.
func (l *Layer) PredicateID(name string) (uint64, bool) {
	if local, ok := l.predicates.IndexOf(name); ok {
		return uint64(l.predicateOffset + local), true
	}
	if l.parent != nil {
		return l.parent.PredicateID(name)
	}
	return 0, false
}

// ValueID resolves a typed value to its global id.
func (l *Layer) ValueID(dt dict.Datatype, encoded []byte) (uint64, bool) {
	if local, ok := l.values.IndexOf(dt, encoded); ok {
		return uint64(l.nodeValueOffset + l.nodes.Len() + local), true
	}
	if l.parent != nil {
		return l.parent.ValueID(dt, encoded)
	}
	return 0, false
}

// Node resolves a global id back to a node name. ok is false if the id
// does not name a node (it may be a value, or simply unknown).
func (l *Layer) Node(id uint64) (string, bool) {
	if id > uint64(l.nodeValueOffset) && id <= uint64(l.nodeValueOffset+l.nodes.Len()) {
		local := int(id) - l.nodeValueOffset
		return l.nodes.Entry(local), true
	}
	if id > uint64(l.nodeValueOffset+l.nodes.Len()) && id <= uint64(l.totalNodeValueCount()) {
		return "", false // it's a value, not a node
	}
	if l.parent != nil {
		return l.parent.Node(id)
	}
	return "", false
}

// Predicate resolves a global id back to a predicate name.
func (l *Layer) Predicate(id uint64) (string, bool) {
	if id > uint64(l.predicateOffset) && id <= uint64(l.totalPredicateCount()) {
		local := int(id) - l.predicateOffset
		return l.predicates.Entry(local), true
	}
	if l.parent != nil {
		return l.parent.Predicate(id)
	}
	return "", false
}

// Object resolves a global id to either a node name or a typed value.
func (l *Layer) Object(id uint64) (Value, bool) {
	if id > uint64(l.nodeValueOffset) && id <= uint64(l.nodeValueOffset+l.nodes.Len()) {
		local := int(id) - l.nodeValueOffset
		return Value{IsNode: true, Node: l.nodes.Entry(local)}, true
	}
	if id > uint64(l.nodeValueOffset+l.nodes.Len()) && id <= uint64(l.totalNodeValueCount()) {
		local := int(id) - l.nodeValueOffset - l.nodes.Len()
		dt, raw := l.values.Entry(local)
		return Value{Datatype: dt, Raw: raw}, true
	}
	if l.parent != nil {
		return l.parent.Object(id)
	}
	return Value{}, false
}

// Added reports whether (s,p,o) is one of this layer's own additions.
// A base layer's only triples are additions, so for it this is the
// same as Exists; the distinction matters for a child layer composed
// by the stack iterator with its ancestors.
func (l *Layer) Added(s, p, o uint64) bool { return l.pos.has(s, p, o) }

// Removed reports whether (s,p,o) is marked removed by this layer.
// Always false for a base layer (neg is the zero value).
func (l *Layer) Removed(s, p, o uint64) bool { return l.neg.has(s, p, o) }

// Exists reports whether (s,p,o) holds in the logical view of l's
// whole chain: added in some ancestor (or l itself) and not
// subsequently removed by a nearer layer (§3.4, §4.6 nearer-wins /
// removal-shadowing). For ordered iteration over many triples, the
// Stack type is far cheaper; this is a point lookup.
func (l *Layer) Exists(s, p, o uint64) bool {
	for cur := l; cur != nil; cur = cur.parent {
		if cur.Removed(s, p, o) {
			return false
		}
		if cur.Added(s, p, o) {
			return true
		}
	}
	return false
}

// AddedTriplesS, AddedTriplesP, AddedTriplesO iterate this layer's own
// additions matching the given subject/predicate/object (§4.5). For a
// child layer, RemovedTriplesS/P/O give the matching removals.
func (l *Layer) AddedTriplesS(s uint64) []Triple { return l.pos.triplesS(s) }
func (l *Layer) AddedTriplesP(p uint64) []Triple { return l.pos.triplesP(p) }
func (l *Layer) AddedTriplesO(o uint64) []Triple { return l.pos.triplesO(o) }

func (l *Layer) RemovedTriplesS(s uint64) []Triple { return l.neg.triplesS(s) }
func (l *Layer) RemovedTriplesP(p uint64) []Triple { return l.neg.triplesP(p) }
func (l *Layer) RemovedTriplesO(o uint64) []Triple { return l.neg.triplesO(o) }

// leftFor maps a global subject/object id to the compact `left` index
// used in s's adjacency lists, or ok=false if s is not present in this
// layer's own side. buildSide always records the subject/object ids it
// actually sees (§3.4: neither a base nor a child layer's own subject
// or object domain is guaranteed contiguous from 1), so mono is nil
// only for the zero-value side of a base layer's neg polarity, which
// callers already short-circuit on sd.sp == nil before reaching here.
func leftFor(mono *logarray.Monotonic, global uint64) (int, bool) {
	if mono == nil {
		return int(global), true
	}
	idx, ok := mono.IndexOf(global)
	if !ok {
		return 0, false
	}
	return idx + 1, true
}

func globalFor(mono *logarray.Monotonic, left int) uint64 {
	if mono == nil {
		return uint64(left)
	}
	return mono.Entry(left - 1)
}

// spLeftFor returns the compact subject-left for a global subject id
// within one side, or ok=false if sd has no triples for it.
func (sd *side) spLeftFor(subject uint64) (int, bool) {
	if sd.sp == nil {
		return 0, false
	}
	left, ok := leftFor(sd.subjects, subject)
	if !ok || left > sd.sp.LeftCount() {
		return 0, false
	}
	return left, true
}

func (sd *side) opsLeftFor(object uint64) (int, bool) {
	if sd.ops == nil {
		return 0, false
	}
	left, ok := leftFor(sd.objects, object)
	if !ok || left > sd.ops.LeftCount() {
		return 0, false
	}
	return left, true
}

// spPosFor locates the 1-based position of the (subject,predicate) pair
// in the SP->O adjacency list, or ok=false if it is absent. S->P nums
// store global predicate ids directly, so no extra resolution step is
// needed here (§4.5).
func (sd *side) spPosFor(subject, predicate uint64) (int, bool) {
	left, ok := sd.spLeftFor(subject)
	if !ok {
		return 0, false
	}
	start, _ := sd.sp.OffsetFor(left)
	for i, p := range sd.sp.Get(left) {
		if p == predicate {
			return start + i + 1, true
		}
	}
	return 0, false
}

// has reports whether (subject,predicate,object) is present in this
// side's own adjacency lists.
func (sd *side) has(subject, predicate, object uint64) bool {
	pos, ok := sd.spPosFor(subject, predicate)
	if !ok {
		return false
	}
	for _, o := range sd.spo.Get(pos) {
		if o == object {
			return true
		}
	}
	return false
}

// allTriples iterates every triple this side stores, in ascending
// (s, p, o) order. Grounded on the same S->P/SP->O join triplesS uses,
// just swept across every subject; the stack iterator (§4.6) uses this
// to materialize each layer's additions/removals before merge-joining
// them (typical layers fit in memory, per §4.4).
func (sd *side) allTriples() []Triple {
	if sd.sp == nil {
		return nil
	}
	var out []Triple
	for left := 1; left <= sd.sp.LeftCount(); left++ {
		subject := globalFor(sd.subjects, left)
		start, _ := sd.sp.OffsetFor(left)
		for i, p := range sd.sp.Get(left) {
			for _, o := range sd.spo.Get(start + i + 1) {
				out = append(out, Triple{S: subject, P: p, O: o})
			}
		}
	}
	return out
}

// triplesS iterates every triple this side stores for subject, per
// §4.5: "iterate predicates of s in S->P, joined with SP->O".
func (sd *side) triplesS(subject uint64) []Triple {
	left, ok := sd.spLeftFor(subject)
	if !ok {
		return nil
	}
	start, _ := sd.sp.OffsetFor(left)
	var out []Triple
	for i, p := range sd.sp.Get(left) {
		for _, o := range sd.spo.Get(start + i + 1) {
			out = append(out, Triple{S: subject, P: p, O: o})
		}
	}
	return out
}

// triplesP iterates every triple this side stores with predicate p,
// via the wavelet tree lookup over SP positions (§4.5).
func (sd *side) triplesP(predicate uint64) []Triple {
	if sd.predicateWavelet == nil {
		return nil
	}
	var out []Triple
	for _, pos := range sd.predicateWavelet.Lookup(predicate) {
		subjLeft, _ := sd.sp.PairAtPos(pos)
		subject := globalFor(sd.subjects, subjLeft)
		for _, o := range sd.spo.Get(pos + 1) {
			out = append(out, Triple{S: subject, P: predicate, O: o})
		}
	}
	return out
}

// triplesO iterates every triple this side stores with object o, by
// walking the O->PS row: each entry is the SP-list position whose
// (s, p) is read back from S->P (§4.5).
func (sd *side) triplesO(object uint64) []Triple {
	left, ok := sd.opsLeftFor(object)
	if !ok {
		return nil
	}
	var out []Triple
	for _, spPos1 := range sd.ops.Get(left) {
		spPos := int(spPos1) // 1-based SP->O position, stored as the adjacency right value
		subjLeft, predicate := sd.sp.PairAtPos(spPos - 1)
		subject := globalFor(sd.subjects, subjLeft)
		out = append(out, Triple{S: subject, P: predicate, O: object})
	}
	return out
}
