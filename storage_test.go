// Copyright (c) 2025 Karl Gaissmaier
// SPDX-License-Identifier: MIT

package stratum

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func testBackends(t *testing.T) map[string]Backend {
	t.Helper()
	fb, err := NewFileBackend(t.TempDir(), nil)
	require.NoError(t, err)
	return map[string]Backend{
		"memory": NewMemoryBackend(nil),
		"file":   fb,
	}
}

func TestBackendDirectoryLifecycle(t *testing.T) {
	for name, b := range testBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			id, err := b.CreateDirectory(ctx)
			require.NoError(t, err)

			exists, err := b.DirectoryExists(ctx, id)
			require.NoError(t, err)
			require.False(t, exists, "not visible before finalize")

			f, err := b.OpenFile(ctx, id, "hello.bin", true)
			require.NoError(t, err)
			_, err = f.Write([]byte("hello"))
			require.NoError(t, err)
			require.NoError(t, f.Sync())
			require.NoError(t, f.Close())

			require.NoError(t, b.FinalizeDirectory(ctx, id))
			// idempotent
			require.NoError(t, b.FinalizeDirectory(ctx, id))

			exists, err = b.DirectoryExists(ctx, id)
			require.NoError(t, err)
			require.True(t, exists)

			dirs, err := b.ListDirectories(ctx)
			require.NoError(t, err)
			require.Contains(t, dirs, id)

			rf, err := b.OpenFile(ctx, id, "hello.bin", false)
			require.NoError(t, err)
			data, err := rf.Map()
			require.NoError(t, err)
			require.Equal(t, "hello", string(data))
			require.NoError(t, rf.Close())

			require.NoError(t, b.DeleteDirectory(ctx, id))
			exists, err = b.DirectoryExists(ctx, id)
			require.NoError(t, err)
			require.False(t, exists)
		})
	}
}

func TestBackendCreateDirectoryWithID(t *testing.T) {
	for name, b := range testBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			id, err := NewLayerID()
			require.NoError(t, err)

			require.NoError(t, b.CreateDirectoryWithID(ctx, id))
			require.ErrorIs(t, b.CreateDirectoryWithID(ctx, id), ErrAlreadyExists)

			require.NoError(t, b.FinalizeDirectory(ctx, id))
			require.ErrorIs(t, b.CreateDirectoryWithID(ctx, id), ErrAlreadyExists, "also rejected once finalized")
		})
	}
}
