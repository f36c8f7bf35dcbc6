// Copyright (c) 2025 Karl Gaissmaier
// SPDX-License-Identifier: MIT

package stratum

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// resolvedSet reads back a stack's logical triples as (subject,
// predicate, object) name triples, independent of global id numbering,
// so layers with different dictionary orderings (e.g. before/after a
// rollup) can be compared by content.
func resolvedSet(t *testing.T, head *Layer) map[[3]string]bool {
	t.Helper()
	out := map[[3]string]bool{}
	for _, tr := range NewStack(head).All() {
		s, ok := head.Node(tr.S)
		require.True(t, ok)
		p, ok := head.Predicate(tr.P)
		require.True(t, ok)
		ov, ok := head.Object(tr.O)
		require.True(t, ok)
		require.True(t, ov.IsNode, "test fixtures only use node objects")
		out[[3]string{s, p, ov.Node}] = true
	}
	return out
}

func buildThreeLayerChain(t *testing.T) (base, child, grandchild *Layer) {
	t.Helper()
	base = buildBase(t, [][3]string{
		{"alice", "knows", "bob"},
		{"alice", "knows", "carol"},
		{"bob", "knows", "carol"},
	})
	alice, _ := base.NodeID("alice")
	bob, _ := base.NodeID("bob")
	knows, _ := base.PredicateID("knows")

	cb := NewChildBuilder(base)
	cb.AddNode("dave")
	cb.CloseDictionaries()
	dave, _ := cb.ResolveNode("dave")
	cb.RemoveTriple(alice, knows, bob)
	cb.AddTriple(alice, knows, dave)
	cid, err := NewLayerID()
	require.NoError(t, err)
	child, err = cb.Finalize(cid)
	require.NoError(t, err)

	gcb := NewChildBuilder(child)
	gcb.AddPredicate("likes")
	gcb.CloseDictionaries()
	likes, _ := gcb.ResolvePredicate("likes")
	gcb.AddTriple(bob, likes, dave)
	gid, err := NewLayerID()
	require.NoError(t, err)
	grandchild, err = gcb.Finalize(gid)
	require.NoError(t, err)
	return base, child, grandchild
}

func TestSquashPreservesLogicalView(t *testing.T) {
	_, _, grandchild := buildThreeLayerChain(t)
	want := resolvedSet(t, grandchild)

	squashed, err := Squash(grandchild)
	require.NoError(t, err)
	require.Equal(t, KindBase, squashed.Kind())
	require.Equal(t, 0, squashed.Depth())

	got := resolvedSet(t, squashed)
	require.Equal(t, want, got)
}

func TestRollupPreservesLogicalViewAndShadowsOrigin(t *testing.T) {
	base, _, grandchild := buildThreeLayerChain(t)
	want := resolvedSet(t, grandchild)

	rolled, err := Rollup(grandchild, base)
	require.NoError(t, err)
	require.Equal(t, KindRollup, rolled.Kind())
	require.Equal(t, grandchild.ID(), rolled.RollupOrigin())
	require.True(t, base.IsAncestorOf(rolled))
	require.Equal(t, 1, rolled.Depth())

	got := resolvedSet(t, rolled)
	require.Equal(t, want, got)
}

func TestMergeBaseLayersDeduplicatesSharedNames(t *testing.T) {
	l1 := buildBase(t, [][3]string{{"alice", "knows", "bob"}})
	l2 := buildBase(t, [][3]string{{"alice", "knows", "carol"}})

	merged, err := MergeBaseLayers([]*Layer{l1, l2})
	require.NoError(t, err)
	require.Equal(t, KindBase, merged.Kind())
	require.Equal(t, 3, merged.NodeCount(), "alice shared, bob/carol distinct -> 3 nodes total")

	alice, ok := merged.NodeID("alice")
	require.True(t, ok)
	bob, ok := merged.NodeID("bob")
	require.True(t, ok)
	carol, ok := merged.NodeID("carol")
	require.True(t, ok)
	knows, ok := merged.PredicateID("knows")
	require.True(t, ok)
	require.True(t, merged.Exists(alice, knows, bob))
	require.True(t, merged.Exists(alice, knows, carol))
}

func TestMergeBaseLayersRejectsNonBaseInput(t *testing.T) {
	base := buildBase(t, [][3]string{{"a", "p", "b"}})
	cb := NewChildBuilder(base)
	cb.CloseDictionaries()
	id, err := NewLayerID()
	require.NoError(t, err)
	child, err := cb.Finalize(id)
	require.NoError(t, err)

	_, err = MergeBaseLayers([]*Layer{base, child})
	require.ErrorIs(t, err, ErrInvariantViolation)
}
