// Copyright (c) 2025 Karl Gaissmaier
// SPDX-License-Identifier: MIT

package stratum

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func testLabelStores(t *testing.T) map[string]LabelStore {
	t.Helper()
	fl, err := NewFileLabelStore(t.TempDir(), nil)
	require.NoError(t, err)
	return map[string]LabelStore{
		"memory": NewMemoryLabelStore(nil),
		"file":   fl,
	}
}

func TestLabelCreateGetSetCAS(t *testing.T) {
	for name, ls := range testLabelStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			created, err := ls.CreateLabel(ctx, "graph1")
			require.NoError(t, err)
			require.True(t, created.Layer.IsZero())
			require.Equal(t, uint64(0), created.Version)

			_, err = ls.CreateLabel(ctx, "graph1")
			require.ErrorIs(t, err, ErrAlreadyExists)

			id1, err := NewLayerID()
			require.NoError(t, err)
			updated, err := ls.SetLabel(ctx, created, id1)
			require.NoError(t, err)
			require.Equal(t, id1, updated.Layer)
			require.Equal(t, uint64(1), updated.Version)

			// Stale CAS (using the pre-update label) must fail bare with
			// ErrCasFailed, not wrapped.
			_, err = ls.SetLabel(ctx, created, id1)
			require.Equal(t, ErrCasFailed, err)

			got, ok, err := ls.GetLabel(ctx, "graph1")
			require.NoError(t, err)
			require.True(t, ok)
			require.Equal(t, updated, got)

			cleared, err := ls.ClearLabel(ctx, updated)
			require.NoError(t, err)
			require.True(t, cleared.Layer.IsZero())

			require.NoError(t, ls.DeleteLabel(ctx, "graph1"))
			_, ok, err = ls.GetLabel(ctx, "graph1")
			require.NoError(t, err)
			require.False(t, ok)
		})
	}
}

func TestLabelListLabels(t *testing.T) {
	for name, ls := range testLabelStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			_, err := ls.CreateLabel(ctx, "a")
			require.NoError(t, err)
			_, err = ls.CreateLabel(ctx, "b")
			require.NoError(t, err)

			all, err := ls.ListLabels(ctx)
			require.NoError(t, err)
			names := make([]string, 0, len(all))
			for _, l := range all {
				names = append(names, l.Name)
			}
			require.ElementsMatch(t, []string{"a", "b"}, names)
		})
	}
}
