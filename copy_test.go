// Copyright (c) 2025 Karl Gaissmaier
// SPDX-License-Identifier: MIT

package stratum

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCopyLayerPreservesIDAndContent(t *testing.T) {
	ctx := context.Background()
	base := buildBase(t, [][3]string{
		{"alice", "knows", "bob"},
		{"alice", "knows", "carol"},
	})

	src := NewMemoryBackend(nil)
	persistLayer(t, ctx, src, base)

	dst := NewMemoryBackend(nil)
	require.NoError(t, CopyLayer(ctx, dst, src, base.ID()))

	exists, err := dst.DirectoryExists(ctx, base.ID())
	require.NoError(t, err)
	require.True(t, exists)

	loaded, err := loaderFor(t, ctx, dst)(base.ID())
	require.NoError(t, err)
	require.Equal(t, resolvedSet(t, base), resolvedSet(t, loaded))

	// Idempotent: copying again is a no-op, not an error.
	require.NoError(t, CopyLayer(ctx, dst, src, base.ID()))
}

func TestCopyLayerChainPreservesParentLinkage(t *testing.T) {
	ctx := context.Background()
	base, child, _ := buildThreeLayerChain(t)

	src := NewMemoryBackend(nil)
	persistLayer(t, ctx, src, base)
	persistLayer(t, ctx, src, child)

	dst := NewMemoryBackend(nil)
	require.NoError(t, CopyLayer(ctx, dst, src, base.ID()))
	require.NoError(t, CopyLayer(ctx, dst, src, child.ID()))

	loaded, err := loaderFor(t, ctx, dst)(child.ID())
	require.NoError(t, err)
	require.Equal(t, base.ID(), loaded.Parent().ID())
	require.Equal(t, resolvedSet(t, child), resolvedSet(t, loaded))
}

func TestCopyLayerAcrossFileBackend(t *testing.T) {
	ctx := context.Background()
	base := buildBase(t, [][3]string{{"alice", "knows", "bob"}})

	src := NewMemoryBackend(nil)
	persistLayer(t, ctx, src, base)

	dst, err := NewFileBackend(t.TempDir(), nil)
	require.NoError(t, err)
	require.NoError(t, CopyLayer(ctx, dst, src, base.ID()))

	loaded, err := loaderFor(t, ctx, dst)(base.ID())
	require.NoError(t, err)
	require.Equal(t, resolvedSet(t, base), resolvedSet(t, loaded))
}
