// Copyright (c) 2025 Karl Gaissmaier
// SPDX-License-Identifier: MIT

package stratum

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPackExportImportRoundTrip(t *testing.T) {
	ctx := context.Background()
	base, child, grandchild := buildThreeLayerChain(t)

	src := NewMemoryBackend(nil)
	persistLayer(t, ctx, src, base)
	persistLayer(t, ctx, src, child)
	persistLayer(t, ctx, src, grandchild)

	pack, err := ExportLayers(ctx, src, []LayerID{base.ID(), child.ID(), grandchild.ID()})
	require.NoError(t, err)
	require.NotEmpty(t, pack)

	dst := NewMemoryBackend(nil)
	require.NoError(t, ImportLayers(ctx, dst, pack, nil))

	for _, id := range []LayerID{base.ID(), child.ID(), grandchild.ID()} {
		exists, err := dst.DirectoryExists(ctx, id)
		require.NoError(t, err)
		require.True(t, exists, "%s imported", id)
	}

	loaded, err := loaderFor(t, ctx, dst)(grandchild.ID())
	require.NoError(t, err)
	require.Equal(t, resolvedSet(t, grandchild), resolvedSet(t, loaded))

	// Re-importing the same pack is idempotent.
	require.NoError(t, ImportLayers(ctx, dst, pack, nil))
}

func TestPackImportSubsetFilter(t *testing.T) {
	ctx := context.Background()
	base, child, _ := buildThreeLayerChain(t)

	src := NewMemoryBackend(nil)
	persistLayer(t, ctx, src, base)
	persistLayer(t, ctx, src, child)

	pack, err := ExportLayers(ctx, src, []LayerID{base.ID(), child.ID()})
	require.NoError(t, err)

	dst := NewMemoryBackend(nil)
	require.NoError(t, ImportLayers(ctx, dst, pack, []LayerID{base.ID()}))

	exists, err := dst.DirectoryExists(ctx, base.ID())
	require.NoError(t, err)
	require.True(t, exists)

	exists, err = dst.DirectoryExists(ctx, child.ID())
	require.NoError(t, err)
	require.False(t, exists, "child excluded from the requested id subset")
}

func TestPackImportUnresolvableParentFails(t *testing.T) {
	ctx := context.Background()
	base, child, _ := buildThreeLayerChain(t)

	src := NewMemoryBackend(nil)
	persistLayer(t, ctx, src, base)
	persistLayer(t, ctx, src, child)

	// Export only the child: its parent.hex points at a base id the
	// pack never includes and the target backend doesn't have either.
	pack, err := ExportLayers(ctx, src, []LayerID{child.ID()})
	require.NoError(t, err)

	dst := NewMemoryBackend(nil)
	err = ImportLayers(ctx, dst, pack, nil)
	require.ErrorIs(t, err, ErrInvariantViolation)
}
