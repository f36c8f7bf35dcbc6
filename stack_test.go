// Copyright (c) 2025 Karl Gaissmaier
// SPDX-License-Identifier: MIT

package stratum

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStackAllMergesAncestorsWithShadowing(t *testing.T) {
	base := buildBase(t, [][3]string{
		{"alice", "knows", "bob"},
		{"alice", "knows", "carol"},
		{"bob", "knows", "carol"},
	})
	alice, _ := base.NodeID("alice")
	bob, _ := base.NodeID("bob")
	carol, _ := base.NodeID("carol")
	knows, _ := base.PredicateID("knows")

	cb := NewChildBuilder(base)
	cb.CloseDictionaries()
	cb.RemoveTriple(alice, knows, bob)
	id, err := NewLayerID()
	require.NoError(t, err)
	child, err := cb.Finalize(id)
	require.NoError(t, err)

	st := NewStack(child)
	all := st.All()
	require.Len(t, all, 2)
	require.False(t, st.Exists(alice, knows, bob))
	require.True(t, st.Exists(alice, knows, carol))
	require.True(t, st.Exists(bob, knows, carol))

	// A grandchild that re-adds the removed fact should cancel the
	// removal in Delta against the base, and Stack.All should show the
	// fact restored.
	gcb := NewChildBuilder(child)
	gcb.CloseDictionaries()
	gcb.AddTriple(alice, knows, bob)
	gid, err := NewLayerID()
	require.NoError(t, err)
	grandchild, err := gcb.Finalize(gid)
	require.NoError(t, err)

	gst := NewStack(grandchild)
	require.True(t, gst.Exists(alice, knows, bob))
	require.Len(t, gst.All(), 3)
}

func TestStackPerSubjectPredicateObject(t *testing.T) {
	base := buildBase(t, [][3]string{
		{"alice", "knows", "bob"},
		{"alice", "likes", "carol"},
		{"bob", "knows", "carol"},
	})
	st := NewStack(base)
	alice, _ := base.NodeID("alice")
	knows, _ := base.PredicateID("knows")
	carol, _ := base.NodeID("carol")

	require.Len(t, st.TriplesS(alice), 2)
	require.Len(t, st.TriplesP(knows), 2)
	require.Len(t, st.TriplesO(carol), 2)
}

func TestDeltaCancelsReaddedTriple(t *testing.T) {
	base := buildBase(t, [][3]string{{"alice", "knows", "bob"}})
	alice, _ := base.NodeID("alice")
	bob, _ := base.NodeID("bob")
	knows, _ := base.PredicateID("knows")

	cb := NewChildBuilder(base)
	cb.CloseDictionaries()
	cb.RemoveTriple(alice, knows, bob)
	cid, err := NewLayerID()
	require.NoError(t, err)
	child, err := cb.Finalize(cid)
	require.NoError(t, err)

	gcb := NewChildBuilder(child)
	gcb.CloseDictionaries()
	gcb.AddTriple(alice, knows, bob)
	gid, err := NewLayerID()
	require.NoError(t, err)
	grandchild, err := gcb.Finalize(gid)
	require.NoError(t, err)

	delta := Delta(grandchild, base)
	require.Empty(t, delta, "removal at child and re-addition at grandchild should cancel")
}

func TestDeltaPanicsWhenNotAncestor(t *testing.T) {
	base1 := buildBase(t, [][3]string{{"a", "p", "b"}})
	base2 := buildBase(t, [][3]string{{"x", "p", "y"}})
	require.Panics(t, func() { Delta(base1, base2) })
}
