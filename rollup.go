// Copyright (c) 2025 Karl Gaissmaier
// SPDX-License-Identifier: MIT

package stratum

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/stratumdb/stratum/internal/dict"
)

// Grounded on bart's tablepersist.go/unionandpersist_test.go
// copy-on-write union discipline, generalized from "union two tries"
// to "materialize a whole chain (or several independent chains) into
// one fresh artifact".

// valueKey is a hashable stand-in for (Datatype, encoded bytes), used
// to group identical typed literals across layers.
type valueKey struct {
	dt  dict.Datatype
	raw string
}

// dictGroups collects, across a set of layers sharing one global id
// space (a chain), every distinct node/predicate/value string
// introduced anywhere in that set, each paired with its existing
// global id. Per the builder invariant (§4.2/§4.4: a new string is
// never introduced twice in one id space), each string maps to
// exactly one old id here.
type dictGroups struct {
	nodeOld map[string]uint64
	predOld map[string]uint64
	valOld  map[valueKey]uint64
}

func gatherDictGroups(layers []*Layer) dictGroups {
	g := dictGroups{
		nodeOld: map[string]uint64{},
		predOld: map[string]uint64{},
		valOld:  map[valueKey]uint64{},
	}
	for _, l := range layers {
		for i, name := range l.nodes.All() {
			g.nodeOld[name] = uint64(l.nodeValueOffset + i + 1)
		}
		for i, name := range l.predicates.All() {
			g.predOld[name] = uint64(l.predicateOffset + i + 1)
		}
		for i := 0; i < l.values.Len(); i++ {
			dt, raw := l.values.Entry(i + 1)
			g.valOld[valueKey{dt, string(raw)}] = uint64(l.nodeValueOffset + l.nodes.Len() + i + 1)
		}
	}
	return g
}

// sortedNodeNames, sortedPredicateNames, sortedValueKeys return g's
// entries in the ascending order a builder's Add* calls require.
func (g dictGroups) sortedNodeNames() []string { return sortedKeys(g.nodeOld) }
func (g dictGroups) sortedPredicateNames() []string { return sortedKeys(g.predOld) }

func sortedKeys(m map[string]uint64) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (g dictGroups) sortedValueKeys() []valueKey {
	out := make([]valueKey, 0, len(g.valOld))
	for k := range g.valOld {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].dt != out[j].dt {
			return out[i].dt < out[j].dt
		}
		return bytes.Compare([]byte(out[i].raw), []byte(out[j].raw)) < 0
	})
	return out
}

// stageDictionaries feeds g's entries into b in sorted order and
// closes phase 1, returning the old->new id maps for nodes+values
// (shared space) and predicates (separate space).
func stageDictionaries(b *Builder, g dictGroups) (nodeValueOld2New, predicateOld2New map[uint64]uint64) {
	nodeNames := g.sortedNodeNames()
	predNames := g.sortedPredicateNames()
	valKeys := g.sortedValueKeys()

	for _, name := range nodeNames {
		b.AddNode(name)
	}
	for _, name := range predNames {
		b.AddPredicate(name)
	}
	for _, vk := range valKeys {
		b.AddValue(vk.dt, []byte(vk.raw))
	}
	b.CloseDictionaries()

	nodeValueOld2New = make(map[uint64]uint64, len(nodeNames)+len(valKeys))
	predicateOld2New = make(map[uint64]uint64, len(predNames))

	for _, name := range nodeNames {
		newID, _ := b.ResolveNode(name)
		nodeValueOld2New[g.nodeOld[name]] = newID
	}
	for _, vk := range valKeys {
		newID, _ := b.ResolveValue(vk.dt, []byte(vk.raw))
		nodeValueOld2New[g.valOld[vk]] = newID
	}
	for _, name := range predNames {
		newID, _ := b.ResolvePredicate(name)
		predicateOld2New[g.predOld[name]] = newID
	}
	return nodeValueOld2New, predicateOld2New
}

// remapID translates old through m if present, otherwise returns it
// unchanged: an id untouched by the rollup/squash still resolves
// correctly through the retained parent chain.
func remapID(old uint64, m map[uint64]uint64) uint64 {
	if n, ok := m[old]; ok {
		return n
	}
	return old
}

// nodeValueIDMapFromGroups builds the rollup IDMap for the shared
// node+value id space, ordered nodes-then-values to match the new
// layer's own local numbering (ResolveValue's "offset + nodeLen +
// local" convention).
func nodeValueIDMapFromGroups(g dictGroups) *IDMap {
	nodeNames := g.sortedNodeNames()
	valKeys := g.sortedValueKeys()
	old := make([]uint64, 0, len(nodeNames)+len(valKeys))
	for _, n := range nodeNames {
		old = append(old, g.nodeOld[n])
	}
	for _, vk := range valKeys {
		old = append(old, g.valOld[vk])
	}
	return NewIDMap(old)
}

func predicateIDMapFromGroups(g dictGroups) *IDMap {
	names := g.sortedPredicateNames()
	old := make([]uint64, len(names))
	for i, n := range names {
		old[i] = g.predOld[n]
	}
	return NewIDMap(old)
}

// Squash materializes head's whole logical triple set into a brand
// new base layer: fresh dictionaries (renumbered densely from 1), no
// parent, no id-maps (nothing refers back to it, §4.7).
func Squash(head *Layer) (*Layer, error) {
	id, err := NewLayerID()
	if err != nil {
		return nil, err
	}

	chain := head.Chain()
	g := gatherDictGroups(chain)

	b := NewBaseBuilder()
	nodeValueNew, predicateNew := stageDictionaries(b, g)

	resolved := NewStack(head).All()
	triples := make([]Triple, len(resolved))
	for i, t := range resolved {
		triples[i] = Triple{
			S: remapID(t.S, nodeValueNew),
			P: remapID(t.P, predicateNew),
			O: remapID(t.O, nodeValueNew),
		}
	}
	sortTriples(triples)
	for _, t := range triples {
		b.AddTriple(t.S, t.P, t.O)
	}

	return b.Finalize(id)
}

// Rollup consolidates the subchain strictly above upto (head down to,
// but not including, upto) into a single layer stacked directly on
// upto: a squash restricted to that subchain, with a back-pointer
// (origin) to the layer it shadows so Delta queries against the
// pre-rollup chain remain answerable (§4.7, §3.6 "shadows but does not
// delete its origin chain").
func Rollup(head, upto *Layer) (*Layer, error) {
	if !upto.IsAncestorOf(head) {
		return nil, fmt.Errorf("stratum: Rollup: %w: upto is not an ancestor of head", ErrInvariantViolation)
	}
	if head.id == upto.id {
		return nil, fmt.Errorf("stratum: Rollup: %w: head and upto are the same layer", ErrInvariantViolation)
	}

	id, err := NewLayerID()
	if err != nil {
		return nil, err
	}

	subchain := layersAbove(head, upto)
	g := gatherDictGroups(subchain)

	b := NewChildBuilder(upto)
	nodeValueNew, predicateNew := stageDictionaries(b, g)

	// Remap each delta entry's ids, then re-sort into one ascending
	// stream so AddTriple/RemoveTriple see non-decreasing subjects
	// throughout (§4.4 builder contract).
	type staged struct {
		t      Triple
		remove bool
	}
	delta := Delta(head, upto)
	staged2 := make([]staged, 0, len(delta))
	for _, e := range delta {
		t := Triple{
			S: remapID(e.Triple.S, nodeValueNew),
			P: remapID(e.Triple.P, predicateNew),
			O: remapID(e.Triple.O, nodeValueNew),
		}
		staged2 = append(staged2, staged{t: t, remove: e.Kind == Removed})
	}
	sort.Slice(staged2, func(i, j int) bool { return staged2[i].t.Less(staged2[j].t) })
	for _, s := range staged2 {
		if s.remove {
			b.RemoveTriple(s.t.S, s.t.P, s.t.O)
		} else {
			b.AddTriple(s.t.S, s.t.P, s.t.O)
		}
	}

	l, err := b.Finalize(id)
	if err != nil {
		return nil, err
	}
	l.kind = KindRollup
	l.origin = head.id
	l.nodeValueIDMap = nodeValueIDMapFromGroups(g)
	l.predicateIDMap = predicateIDMapFromGroups(g)
	return l, nil
}

// MergeBaseLayers n-way merges several independent base layers (each
// with its own, mutually unrelated id space) into one fresh base
// layer: k-way merge the dictionaries (deduplicating identical
// strings across inputs), remap and deduplicate the triple streams,
// feed the result into a base-layer builder (§4.7 "Merge base
// layers").
func MergeBaseLayers(layers []*Layer) (*Layer, error) {
	for _, l := range layers {
		if l.kind != KindBase {
			return nil, fmt.Errorf("stratum: MergeBaseLayers: %w: all inputs must be base layers", ErrInvariantViolation)
		}
	}

	type occurrence struct {
		layer int
		old   uint64
	}
	nodeOcc := map[string][]occurrence{}
	predOcc := map[string][]occurrence{}
	valOcc := map[valueKey][]occurrence{}

	for li, l := range layers {
		for i, name := range l.nodes.All() {
			nodeOcc[name] = append(nodeOcc[name], occurrence{li, uint64(i + 1)})
		}
		for i, name := range l.predicates.All() {
			predOcc[name] = append(predOcc[name], occurrence{li, uint64(i + 1)})
		}
		for i := 0; i < l.values.Len(); i++ {
			dt, raw := l.values.Entry(i + 1)
			k := valueKey{dt, string(raw)}
			valOcc[k] = append(valOcc[k], occurrence{li, uint64(l.nodes.Len() + i + 1)})
		}
	}

	nodeNames := make([]string, 0, len(nodeOcc))
	for n := range nodeOcc {
		nodeNames = append(nodeNames, n)
	}
	sort.Strings(nodeNames)

	predNames := make([]string, 0, len(predOcc))
	for n := range predOcc {
		predNames = append(predNames, n)
	}
	sort.Strings(predNames)

	valKeys := make([]valueKey, 0, len(valOcc))
	for k := range valOcc {
		valKeys = append(valKeys, k)
	}
	sort.Slice(valKeys, func(i, j int) bool {
		if valKeys[i].dt != valKeys[j].dt {
			return valKeys[i].dt < valKeys[j].dt
		}
		return bytes.Compare([]byte(valKeys[i].raw), []byte(valKeys[j].raw)) < 0
	})

	id, err := NewLayerID()
	if err != nil {
		return nil, err
	}
	b := NewBaseBuilder()
	for _, n := range nodeNames {
		b.AddNode(n)
	}
	for _, n := range predNames {
		b.AddPredicate(n)
	}
	for _, vk := range valKeys {
		b.AddValue(vk.dt, []byte(vk.raw))
	}
	b.CloseDictionaries()

	nodeValueRemap := make([]map[uint64]uint64, len(layers))
	predicateRemap := make([]map[uint64]uint64, len(layers))
	for i := range layers {
		nodeValueRemap[i] = map[uint64]uint64{}
		predicateRemap[i] = map[uint64]uint64{}
	}
	for _, n := range nodeNames {
		newID, _ := b.ResolveNode(n)
		for _, occ := range nodeOcc[n] {
			nodeValueRemap[occ.layer][occ.old] = newID
		}
	}
	for _, n := range predNames {
		newID, _ := b.ResolvePredicate(n)
		for _, occ := range predOcc[n] {
			predicateRemap[occ.layer][occ.old] = newID
		}
	}
	for _, vk := range valKeys {
		newID, _ := b.ResolveValue(vk.dt, []byte(vk.raw))
		for _, occ := range valOcc[vk] {
			nodeValueRemap[occ.layer][occ.old] = newID
		}
	}

	var all []Triple
	for li, l := range layers {
		for _, t := range l.pos.allTriples() {
			all = append(all, Triple{
				S: nodeValueRemap[li][t.S],
				P: predicateRemap[li][t.P],
				O: nodeValueRemap[li][t.O],
			})
		}
	}
	sortTriples(all)
	all = dedupeTriples(all)
	for _, t := range all {
		b.AddTriple(t.S, t.P, t.O)
	}
	return b.Finalize(id)
}

func sortTriples(ts []Triple) {
	sort.Slice(ts, func(i, j int) bool { return ts[i].Less(ts[j]) })
}

func dedupeTriples(ts []Triple) []Triple {
	if len(ts) == 0 {
		return ts
	}
	out := ts[:1]
	for _, t := range ts[1:] {
		if t != out[len(out)-1] {
			out = append(out, t)
		}
	}
	return out
}
