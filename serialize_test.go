// Copyright (c) 2025 Karl Gaissmaier
// SPDX-License-Identifier: MIT

package stratum

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

// loaderFor returns a resolveParent closure that loads (and memoizes)
// layers from backend by id, for tests that don't need a full Store.
func loaderFor(t *testing.T, ctx context.Context, backend Backend) func(LayerID) (*Layer, error) {
	t.Helper()
	cache := map[LayerID]*Layer{}
	var load func(LayerID) (*Layer, error)
	load = func(id LayerID) (*Layer, error) {
		if l, ok := cache[id]; ok {
			return l, nil
		}
		l, err := LoadLayer(ctx, backend, id, load)
		if err != nil {
			return nil, err
		}
		cache[id] = l
		return l, nil
	}
	return load
}

func persistLayer(t *testing.T, ctx context.Context, backend Backend, l *Layer) {
	t.Helper()
	require.NoError(t, backend.CreateDirectoryWithID(ctx, l.ID()))
	require.NoError(t, PersistLayer(ctx, backend, l.ID(), l))
	require.NoError(t, backend.FinalizeDirectory(ctx, l.ID()))
}

func persistAndReload(t *testing.T, backend Backend, l *Layer) *Layer {
	t.Helper()
	ctx := context.Background()
	persistLayer(t, ctx, backend, l)
	loaded, err := loaderFor(t, ctx, backend)(l.ID())
	require.NoError(t, err)
	return loaded
}

func TestSerializeRoundTripBaseLayer(t *testing.T) {
	base := buildBase(t, [][3]string{
		{"alice", "knows", "bob"},
		{"alice", "knows", "carol"},
		{"bob", "knows", "carol"},
	})
	backend := NewMemoryBackend(nil)
	loaded := persistAndReload(t, backend, base)

	require.Equal(t, KindBase, loaded.Kind())
	require.Equal(t, base.NodeCount(), loaded.NodeCount())
	require.Equal(t, resolvedSet(t, base), resolvedSet(t, loaded))
}

func TestSerializeRoundTripChildLayer(t *testing.T) {
	base, child, grandchild := buildThreeLayerChain(t)
	_ = child
	backend := NewMemoryBackend(nil)
	ctx := context.Background()

	persistLayer(t, ctx, backend, base)
	persistLayer(t, ctx, backend, child)
	persistLayer(t, ctx, backend, grandchild)

	loaded, err := loaderFor(t, ctx, backend)(grandchild.ID())
	require.NoError(t, err)

	require.Equal(t, KindChild, loaded.Kind())
	require.Equal(t, resolvedSet(t, grandchild), resolvedSet(t, loaded))

	loadedBase := loaded.Parent().Parent()
	require.Equal(t, base.ID(), loadedBase.ID())
	require.Equal(t, KindBase, loadedBase.Kind())
}

func TestSerializeRoundTripAcrossFileBackend(t *testing.T) {
	base := buildBase(t, [][3]string{{"alice", "knows", "bob"}})
	backend, err := NewFileBackend(t.TempDir(), nil)
	require.NoError(t, err)
	loaded := persistAndReload(t, backend, base)
	require.Equal(t, resolvedSet(t, base), resolvedSet(t, loaded))
}
