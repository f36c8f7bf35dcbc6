// Copyright (c) 2025 Karl Gaissmaier
// SPDX-License-Identifier: MIT

package stratum

import (
	"fmt"
	"slices"
	"sync"

	"github.com/stratumdb/stratum/internal/adjacency"
	"github.com/stratumdb/stratum/internal/dict"
	"github.com/stratumdb/stratum/internal/logarray"
	"github.com/stratumdb/stratum/internal/wavelet"
)

const dictBlockSize = dict.DefaultBlockSize

// idTriple is a single (s,p,o) in global id space, tagged with whether
// it is an addition or a removal. Removals are only legal on a child
// builder; a base-layer builder rejects them.
type idTriple struct {
	s, p, o uint64
	remove  bool
}

// Builder accumulates one new layer on top of an optional parent. It
// implements §4.4's two phases: strings are staged first (phase 1),
// then triples are fed in ascending order (phase 2); Finalize runs the
// O->PS and wavelet-tree construction fan-out and returns the
// immutable Layer.
//
// Grounded on bart's clone-then-mutate table construction
// (tablepersist.go): accumulate into builder-local state, then produce
// a fresh immutable artifact rather than mutating anything live.
type Builder struct {
	parent *Layer

	nodes      *dict.FrontCodedBuilder
	predicates *dict.FrontCodedBuilder
	values     *dict.TypedDictBuilder

	nodeValueOffset int
	predicateOffset int

	triples []idTriple
	lastS   uint64
	sawAny  bool

	dicts     *dictsBuilt // set once CloseDictionaries has run
	finalized bool
}

// NewBaseBuilder starts a builder for a base layer (no parent).
func NewBaseBuilder() *Builder {
	return newBuilder(nil)
}

// NewChildBuilder starts a builder for a layer stacked on parent.
func NewChildBuilder(parent *Layer) *Builder {
	if parent == nil {
		panic("stratum: NewChildBuilder requires a non-nil parent")
	}
	return newBuilder(parent)
}

func newBuilder(parent *Layer) *Builder {
	b := &Builder{
		parent:     parent,
		nodes:      dict.NewFrontCodedBuilder(dictBlockSize),
		predicates: dict.NewFrontCodedBuilder(dictBlockSize),
		values:     dict.NewTypedDictBuilder(dictBlockSize),
	}
	if parent != nil {
		b.nodeValueOffset = parent.totalNodeValueCount()
		b.predicateOffset = parent.totalPredicateCount()
	}
	return b
}

// AddNode stages a new node string. Must be called in strictly
// ascending order across all AddNode calls and must not already be
// resolvable anywhere in the parent chain (panics otherwise: phase 1
// is purely additive per §4.4).
func (b *Builder) AddNode(name string) {
	if b.parent != nil {
		if _, ok := b.parent.NodeID(name); ok {
			panic(fmt.Sprintf("stratum: builder: node %q already exists in parent chain", name))
		}
	}
	b.nodes.Add(name)
}

// AddPredicate stages a new predicate string, same contract as AddNode.
func (b *Builder) AddPredicate(name string) {
	if b.parent != nil {
		if _, ok := b.parent.PredicateID(name); ok {
			panic(fmt.Sprintf("stratum: builder: predicate %q already exists in parent chain", name))
		}
	}
	b.predicates.Add(name)
}

// AddValue stages a new typed literal, same contract as AddNode.
func (b *Builder) AddValue(dt dict.Datatype, encoded []byte) {
	if b.parent != nil {
		if _, ok := b.parent.ValueID(dt, encoded); ok {
			panic("stratum: builder: value already exists in parent chain")
		}
	}
	b.values.Add(dt, encoded)
}

// dictsBuilt are the phase-1 readers, used to translate external
// strings/values to ids while staging phase-2 triples.
type dictsBuilt struct {
	nodes      *dict.FrontCodedDict
	predicates *dict.FrontCodedDict
	values     *dict.TypedDict
}

// CloseDictionaries ends phase 1, reopening the staged strings as
// readers so ResolveNode/ResolvePredicate/ResolveValue become usable
// for phase 2 (§4.4: "writes them to the dictionary builders ... then
// reopens them as readers to learn counts"). Idempotent: phase 2
// callers need not call it explicitly, Finalize does so itself.
func (b *Builder) CloseDictionaries() {
	if b.dicts != nil {
		return
	}
	b.dicts = &dictsBuilt{
		nodes:      b.nodes.Build(),
		predicates: b.predicates.Build(),
		values:     b.values.Build(),
	}
}

// ResolveNode resolves name to a global id: first this builder's own
// staged dictionary, then the parent chain. Must be called after
// CloseDictionaries.
func (b *Builder) ResolveNode(name string) (uint64, bool) {
	if local, ok := b.dicts.nodes.IndexOf(name); ok {
		return uint64(b.nodeValueOffset + local), true
	}
	if b.parent != nil {
		return b.parent.NodeID(name)
	}
	return 0, false
}

// ResolvePredicate resolves name the same way ResolveNode does.
func (b *Builder) ResolvePredicate(name string) (uint64, bool) {
	if local, ok := b.dicts.predicates.IndexOf(name); ok {
		return uint64(b.predicateOffset + local), true
	}
	if b.parent != nil {
		return b.parent.PredicateID(name)
	}
	return 0, false
}

// ResolveValue resolves an encoded typed literal the same way
// ResolveNode does.
func (b *Builder) ResolveValue(dt dict.Datatype, encoded []byte) (uint64, bool) {
	if local, ok := b.dicts.values.IndexOf(dt, encoded); ok {
		return uint64(b.nodeValueOffset + b.dicts.nodes.Len() + local), true
	}
	if b.parent != nil {
		return b.parent.ValueID(dt, encoded)
	}
	return 0, false
}

// AddTriple stages one (s,p,o) addition, phase 2 (§4.4). Triples must
// be fed in ascending (s,p,o) order; subjects must be non-decreasing.
// For a child builder the triple is diff-filtered against the parent
// chain at Finalize time: a triple already present anywhere in the
// chain is silently dropped (it adds no information).
func (b *Builder) AddTriple(s, p, o uint64) {
	b.pushTriple(idTriple{s: s, p: p, o: o})
}

// RemoveTriple stages one removal. Only legal on a child builder; the
// triple must exist somewhere in the parent chain (checked, and
// dropped if not, at Finalize time, per §4.4's intersect-filter).
func (b *Builder) RemoveTriple(s, p, o uint64) {
	if b.parent == nil {
		panic("stratum: base layer builder cannot remove triples")
	}
	b.pushTriple(idTriple{s: s, p: p, o: o, remove: true})
}

func (b *Builder) pushTriple(t idTriple) {
	if b.sawAny && t.s < b.lastS {
		panic("stratum: builder requires non-decreasing subject order")
	}
	b.lastS = t.s
	b.sawAny = true
	b.triples = append(b.triples, t)
}

// Finalize runs phase 2's filtering, builds the forward adjacency
// lists, then fans out the O->PS reverse index and predicate wavelet
// tree construction (§4.4 "in parallel where possible"), and returns
// the immutable Layer.
func (b *Builder) Finalize(id LayerID) (*Layer, error) {
	if b.finalized {
		return nil, fmt.Errorf("stratum: builder for %s already finalized: %w", id, ErrAlreadyExists)
	}
	b.finalized = true

	b.CloseDictionaries()
	d := b.dicts

	slices.SortStableFunc(b.triples, func(a, c idTriple) int {
		switch {
		case a.s != c.s:
			return int(a.s) - int(c.s)
		case a.p != c.p:
			return int(a.p) - int(c.p)
		default:
			return int(a.o) - int(c.o)
		}
	})

	var additions, removals []idTriple
	for _, t := range b.triples {
		if t.remove {
			if b.parent != nil && b.parent.Exists(t.s, t.p, t.o) {
				removals = append(removals, t)
			}
			continue
		}
		if b.parent != nil && b.parent.Exists(t.s, t.p, t.o) {
			continue // already present somewhere in the chain
		}
		additions = append(additions, t)
	}

	pos := buildSide(additions)
	var neg side
	if b.parent != nil {
		neg = buildSide(removals)
	}

	l := &Layer{
		id:              id,
		parent:          b.parent,
		nodes:           d.nodes,
		predicates:      d.predicates,
		values:          d.values,
		nodeValueOffset: b.nodeValueOffset,
		predicateOffset: b.predicateOffset,
		pos:             pos,
		neg:             neg,
	}
	if b.parent == nil {
		l.kind = KindBase
	} else {
		l.kind = KindChild
	}
	return l, nil
}

// buildSide builds the S->P, SP->O adjacency lists and the O->PS +
// predicate-wavelet indexes from a (s,p,o)-sorted slice, fanning the
// reverse-index and wavelet construction out across goroutines once
// the forward lists are done (§4.4 step "in parallel where possible").
//
// The subject/object ids that actually appear are always recorded in
// monotonic arrays, so compact adjacency `left` indices translate back
// to global ids via a rank lookup rather than identity (§3.4): a base
// layer's subject/object domain is not guaranteed to be the contiguous
// range {1..k} either, since object-only or subject-only dictionary
// entries leave gaps in each side's own id space.
func buildSide(triples []idTriple) side {
	spBuilder := adjacency.NewBuilder()
	spoBuilder := adjacency.NewBuilder()

	subjectsB := logarray.NewMonotonicBuilder()

	subjLeft := 0
	lastSubj := uint64(0)
	anySubj := false

	spPos := 0
	lastSP := [2]uint64{}
	anySP := false

	var maxPredicate uint64
	type opsPair struct {
		o      uint64
		spPos1 int
	}
	var opsPairs []opsPair

	for _, t := range triples {
		if !anySubj || t.s != lastSubj {
			subjLeft++
			spBuilder.Add(subjLeft, t.p)
			lastSubj = t.s
			anySubj = true
			subjectsB.Add(t.s)
		} else if t.p != lastSP[1] {
			spBuilder.Add(subjLeft, t.p)
		}

		if !anySP || t.s != lastSP[0] || t.p != lastSP[1] {
			spPos++
			lastSP = [2]uint64{t.s, t.p}
			anySP = true
		}
		spoBuilder.Add(spPos, t.o)
		opsPairs = append(opsPairs, opsPair{o: t.o, spPos1: spPos})
		if t.p > maxPredicate {
			maxPredicate = t.p
		}
	}

	sp := spBuilder.Build()
	spo := spoBuilder.Build()

	var opsList *adjacency.List
	var objectsMono *logarray.Monotonic
	var wv *wavelet.WaveletTree

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		sorted := slices.Clone(opsPairs)
		slices.SortStableFunc(sorted, func(a, b opsPair) int {
			switch {
			case a.o != b.o:
				return int(a.o) - int(b.o)
			default:
				return a.spPos1 - b.spPos1
			}
		})
		ob := adjacency.NewBuilder()
		objectsB := logarray.NewMonotonicBuilder()
		left := 0
		lastO := uint64(0)
		any := false
		for _, p := range sorted {
			if !any || p.o != lastO {
				left++
				lastO = p.o
				any = true
				objectsB.Add(p.o)
			}
			ob.Add(left, uint64(p.spPos1))
		}
		opsList = ob.Build()
		objectsMono = objectsB.Build()
	}()
	go func() {
		defer wg.Done()
		width := widthForMax(maxPredicate)
		wb := wavelet.NewBuilder(width)
		for i := 0; i < sp.Nums().Len(); i++ {
			wb.Add(sp.Nums().Entry(i))
		}
		wv = wb.Build()
	}()
	wg.Wait()

	return side{
		sp:               sp,
		spo:              spo,
		ops:              opsList,
		predicateWavelet: wv,
		subjects:         subjectsB.Build(),
		objects:          objectsMono,
	}
}

func widthForMax(max uint64) int {
	w := 0
	for (uint64(1) << w) <= max {
		w++
	}
	if w == 0 {
		w = 1
	}
	return w
}
