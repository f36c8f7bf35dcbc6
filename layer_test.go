// Copyright (c) 2025 Karl Gaissmaier
// SPDX-License-Identifier: MIT

package stratum

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/stratumdb/stratum/internal/dict"
)

// buildBase builds and finalizes a base layer from a flat list of
// (subject, predicate, object-node) name triples, for tests that don't
// care about typed values.
func buildBase(t *testing.T, spo [][3]string) *Layer {
	t.Helper()
	nodes := map[string]bool{}
	preds := map[string]bool{}
	for _, tr := range spo {
		nodes[tr[0]] = true
		nodes[tr[2]] = true
		preds[tr[1]] = true
	}
	b := NewBaseBuilder()
	for _, n := range sortedSet(nodes) {
		b.AddNode(n)
	}
	for _, p := range sortedSet(preds) {
		b.AddPredicate(p)
	}
	b.CloseDictionaries()

	type idt struct{ s, p, o uint64 }
	var ids []idt
	for _, tr := range spo {
		s, ok := b.ResolveNode(tr[0])
		require.True(t, ok)
		p, ok := b.ResolvePredicate(tr[1])
		require.True(t, ok)
		o, ok := b.ResolveNode(tr[2])
		require.True(t, ok)
		ids = append(ids, idt{s, p, o})
	}
	sort.Slice(ids, func(i, j int) bool {
		if ids[i].s != ids[j].s {
			return ids[i].s < ids[j].s
		}
		if ids[i].p != ids[j].p {
			return ids[i].p < ids[j].p
		}
		return ids[i].o < ids[j].o
	})
	for _, t := range ids {
		b.AddTriple(t.s, t.p, t.o)
	}
	id, err := NewLayerID()
	require.NoError(t, err)
	l, err := b.Finalize(id)
	require.NoError(t, err)
	return l
}

func sortedSet(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func TestBaseLayerResolutionAndLookup(t *testing.T) {
	l := buildBase(t, [][3]string{
		{"alice", "knows", "bob"},
		{"alice", "knows", "carol"},
		{"bob", "knows", "carol"},
	})
	require.Equal(t, KindBase, l.Kind())
	require.Nil(t, l.Parent())
	require.Equal(t, 0, l.Depth())

	alice, ok := l.NodeID("alice")
	require.True(t, ok)
	bob, ok := l.NodeID("bob")
	require.True(t, ok)
	carol, ok := l.NodeID("carol")
	require.True(t, ok)
	knows, ok := l.PredicateID("knows")
	require.True(t, ok)

	require.True(t, l.Exists(alice, knows, bob))
	require.True(t, l.Exists(alice, knows, carol))
	require.True(t, l.Exists(bob, knows, carol))
	require.False(t, l.Exists(bob, knows, alice))

	name, ok := l.Node(alice)
	require.True(t, ok)
	require.Equal(t, "alice", name)

	got := l.AddedTriplesS(alice)
	require.Len(t, got, 2)
	require.ElementsMatch(t, []uint64{bob, carol}, []uint64{got[0].O, got[1].O})

	gotP := l.AddedTriplesP(knows)
	require.Len(t, gotP, 3)

	gotO := l.AddedTriplesO(carol)
	require.Len(t, gotO, 2)
}

func TestChildLayerAddAndRemove(t *testing.T) {
	base := buildBase(t, [][3]string{
		{"alice", "knows", "bob"},
		{"alice", "knows", "carol"},
	})
	alice, _ := base.NodeID("alice")
	bob, _ := base.NodeID("bob")
	carol, _ := base.NodeID("carol")
	knows, _ := base.PredicateID("knows")

	cb := NewChildBuilder(base)
	cb.AddNode("dave")
	cb.AddPredicate("likes")
	cb.CloseDictionaries()

	dave, ok := cb.ResolveNode("dave")
	require.True(t, ok)
	likes, ok := cb.ResolvePredicate("likes")
	require.True(t, ok)

	// Remove an inherited fact, add a brand new one, in ascending
	// subject order across both AddTriple/RemoveTriple calls.
	cb.RemoveTriple(alice, knows, bob)
	cb.AddTriple(alice, likes, dave)

	id, err := NewLayerID()
	require.NoError(t, err)
	child, err := cb.Finalize(id)
	require.NoError(t, err)

	require.Equal(t, KindChild, child.Kind())
	require.True(t, base.IsAncestorOf(child))

	require.False(t, child.Exists(alice, knows, bob), "removed in child")
	require.True(t, child.Exists(alice, knows, carol), "untouched ancestor fact")
	require.True(t, child.Exists(alice, likes, dave), "new child fact")

	require.True(t, child.Removed(alice, knows, bob))
	require.True(t, child.Added(alice, likes, dave))
	require.False(t, child.Added(alice, knows, carol), "inherited, not this layer's own addition")
}

func TestBuilderRejectsDuplicateStaging(t *testing.T) {
	base := buildBase(t, [][3]string{{"alice", "knows", "bob"}})
	cb := NewChildBuilder(base)
	require.Panics(t, func() { cb.AddNode("alice") })
}

func TestBuilderRejectsDescendingSubjects(t *testing.T) {
	b := NewBaseBuilder()
	b.AddNode("a")
	b.AddNode("b")
	b.AddPredicate("p")
	b.CloseDictionaries()
	s1, _ := b.ResolveNode("a")
	s2, _ := b.ResolveNode("b")
	p, _ := b.ResolvePredicate("p")
	b.AddTriple(s2, p, s1)
	require.Panics(t, func() { b.AddTriple(s1, p, s2) })
}

func TestTypedValueObjects(t *testing.T) {
	b := NewBaseBuilder()
	b.AddNode("alice")
	b.AddPredicate("age")
	b.AddValue(dict.DatatypeUInt32, dict.EncodeUInt32(30))
	b.CloseDictionaries()

	alice, _ := b.ResolveNode("alice")
	age, _ := b.ResolvePredicate("age")
	thirty, ok := b.ResolveValue(dict.DatatypeUInt32, dict.EncodeUInt32(30))
	require.True(t, ok)
	b.AddTriple(alice, age, thirty)

	id, err := NewLayerID()
	require.NoError(t, err)
	l, err := b.Finalize(id)
	require.NoError(t, err)

	require.True(t, l.Exists(alice, age, thirty))
	v, ok := l.Object(thirty)
	require.True(t, ok)
	require.False(t, v.IsNode)
	require.Equal(t, dict.DatatypeUInt32, v.Datatype)
	require.Equal(t, uint32(30), dict.DecodeUInt32(v.Raw))
}
