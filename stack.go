// Copyright (c) 2025 Karl Gaissmaier
// SPDX-License-Identifier: MIT

package stratum

// Stack resolves a chain of layers (a head and its ancestors) to the
// single logical triple set §4.6 describes: every triple added
// somewhere in the chain and not subsequently removed by a nearer
// layer. Grounded on bart's peek-and-next iterator shape
// (table_iter.go, nodeiterators_tmpl.go), generalized from walking one
// trie node to k-way merging a layer chain.
type Stack struct {
	head *Layer
}

// NewStack opens a stack rooted at head.
func NewStack(head *Layer) *Stack { return &Stack{head: head} }

// Head returns the stack's topmost layer.
func (s *Stack) Head() *Layer { return s.head }

// Exists reports whether (s,p,o) holds in the stack's logical view.
func (st *Stack) Exists(s, p, o uint64) bool { return st.head.Exists(s, p, o) }

// All materializes every triple in the stack's logical view, in
// ascending (s, p, o) order.
func (st *Stack) All() []Triple {
	chain := st.head.Chain()
	adds := make([][]Triple, len(chain))
	rems := make([][]Triple, len(chain))
	for i, l := range chain {
		adds[i] = l.pos.allTriples()
		rems[i] = l.neg.allTriples()
	}
	return mergeShadow(adds, rems)
}

// TriplesS, TriplesP, TriplesO resolve the stack's logical view
// restricted to a single subject/predicate/object. Each layer
// contributes only its own matching additions/removals (via the same
// per-layer lookups Layer.Added/Removed use), so these are much
// cheaper than filtering All().
func (st *Stack) TriplesS(subject uint64) []Triple {
	return st.mergeBy(func(l *Layer) ([]Triple, []Triple) {
		return l.pos.triplesS(subject), l.neg.triplesS(subject)
	})
}

func (st *Stack) TriplesP(predicate uint64) []Triple {
	return st.mergeBy(func(l *Layer) ([]Triple, []Triple) {
		return l.pos.triplesP(predicate), l.neg.triplesP(predicate)
	})
}

func (st *Stack) TriplesO(object uint64) []Triple {
	return st.mergeBy(func(l *Layer) ([]Triple, []Triple) {
		return l.pos.triplesO(object), l.neg.triplesO(object)
	})
}

func (st *Stack) mergeBy(per func(*Layer) (adds, rems []Triple)) []Triple {
	chain := st.head.Chain()
	adds := make([][]Triple, len(chain))
	rems := make([][]Triple, len(chain))
	for i, l := range chain {
		adds[i], rems[i] = per(l)
	}
	return mergeShadow(adds, rems)
}

// mergeShadow implements §4.6's algorithm: adds and rems are indexed
// head-first (index 0 is nearest), each per-layer slice already sorted
// ascending in (s, p, o) order. At each step the smallest peek across
// all addition streams wins, ties broken toward the smaller index
// (nearer wins); it is then checked against every strictly-nearer
// removal stream, and dropped if a match shadows it.
func mergeShadow(adds, rems [][]Triple) []Triple {
	addIdx := make([]int, len(adds))
	remIdx := make([]int, len(rems))

	var out []Triple
	for {
		k := -1
		var best Triple
		for i, a := range adds {
			if addIdx[i] >= len(a) {
				continue
			}
			t := a[addIdx[i]]
			if k == -1 || t.Less(best) {
				best = t
				k = i
			}
		}
		if k == -1 {
			return out
		}
		addIdx[k]++

		shadowed := false
		for i := 0; i < k; i++ {
			r := rems[i]
			for remIdx[i] < len(r) && r[remIdx[i]].Less(best) {
				remIdx[i]++
			}
			if remIdx[i] < len(r) && r[remIdx[i]] == best {
				remIdx[i]++
				shadowed = true
				break
			}
		}
		if shadowed {
			continue
		}
		out = append(out, best)
	}
}

// Change tags a delta-iterator entry as an addition or removal (§4.6
// last paragraph: "delta iterator variant").
type Change int

const (
	Added Change = iota
	Removed
)

// DeltaEntry is one entry of a delta between a descendant stack and an
// ancestor it is built on.
type DeltaEntry struct {
	Kind   Change
	Triple Triple
}

// Delta yields every change between descendant and ancestor: each
// addition at a layer strictly above ancestor (exclusive) that survives
// to descendant and that ancestor's view does not already hold, and
// each removal at such a layer that is not itself canceled by a
// yet-nearer addition of the same triple and whose triple ancestor's
// view holds. If an addition at depth i is matched by a removal at
// depth j < i, neither is yielded (they cancel); a removal re-added
// nearer the descendant likewise yields nothing.
func Delta(descendant, ancestor *Layer) []DeltaEntry {
	if !ancestor.IsAncestorOf(descendant) {
		panic("stratum: Delta requires ancestor to be in descendant's chain")
	}
	layers := layersAbove(descendant, ancestor)

	adds := make([][]Triple, len(layers))
	rems := make([][]Triple, len(layers))
	for i, l := range layers {
		adds[i] = l.pos.allTriples()
		rems[i] = l.neg.allTriples()
	}

	var out []DeltaEntry
	// Additions: yield unless shadowed by a nearer (smaller index)
	// removal of the same triple.
	for i, a := range adds {
		for _, t := range a {
			shadowed := false
			for j := 0; j < i; j++ {
				if tripleIn(rems[j], t) {
					shadowed = true
					break
				}
			}
			if !shadowed && !ancestor.Exists(t.S, t.P, t.O) {
				out = append(out, DeltaEntry{Kind: Added, Triple: t})
			}
		}
	}
	// Removals: yield unless canceled by a nearer addition of the same
	// triple (a later re-add makes the net change "no change").
	for i, r := range rems {
		for _, t := range r {
			canceled := false
			for j := 0; j < i; j++ {
				if tripleIn(adds[j], t) {
					canceled = true
					break
				}
			}
			if !canceled && ancestor.Exists(t.S, t.P, t.O) {
				out = append(out, DeltaEntry{Kind: Removed, Triple: t})
			}
		}
	}
	return out
}

// layersAbove returns the layers strictly above ancestor down to and
// including head, head first. Used by Delta and by rollup/squash to
// isolate the subchain a rollup consolidates.
func layersAbove(head, ancestor *Layer) []*Layer {
	var out []*Layer
	for l := head; l != nil && l.id != ancestor.id; l = l.parent {
		out = append(out, l)
	}
	return out
}

func tripleIn(sorted []Triple, t Triple) bool {
	lo, hi := 0, len(sorted)
	for lo < hi {
		mid := (lo + hi) / 2
		if sorted[mid].Less(t) {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo < len(sorted) && sorted[lo] == t
}
