// Copyright (c) 2025 Karl Gaissmaier
// SPDX-License-Identifier: MIT

package stratum

import (
	"context"
	"io"
)

// FileHandle is a backend-provided handle to a single file inside a
// layer directory: sequential read, memory map, and append-only write
// with an explicit durability barrier (§4.8). The backend does not
// interpret what is read or written.
type FileHandle interface {
	io.Reader
	io.Writer
	io.Closer

	// Map memory-maps the file's current contents read-only. Grounded
	// on §3.6/§6.1: finalized layer artifacts are shared-immutable byte
	// ranges any number of readers may map concurrently.
	Map() ([]byte, error)

	// Sync flushes the file's writes to stable storage. A layer
	// directory is not visible to ListDirectories until every file
	// written into it has been Synced and FinalizeDirectory called
	// (§5 ordering guarantee).
	Sync() error
}

// Backend is the storage contract a layer store is built on (§4.8).
// Implementations: storage_memory.go (ephemeral, for tests and
// in-process use) and storage_file.go (durable, directory-per-layer).
type Backend interface {
	// ListDirectories enumerates every finalized layer directory.
	ListDirectories(ctx context.Context) ([]LayerID, error)

	// CreateDirectory allocates a fresh layer id and a construction
	// area for it. The id is usable immediately (callers reference it
	// while building), but the directory stays invisible to
	// ListDirectories/DirectoryExists until FinalizeDirectory commits it.
	CreateDirectory(ctx context.Context) (LayerID, error)

	// CreateDirectoryWithID stages a construction area under a
	// caller-chosen id rather than minting a random one, for pack
	// import and cross-backend layer copy where the id must be
	// preserved so dependent parent.hex references keep resolving.
	// Fails with ErrAlreadyExists if id is already in use.
	CreateDirectoryWithID(ctx context.Context, id LayerID) error

	// DirectoryExists reports whether id names a finalized directory.
	DirectoryExists(ctx context.Context, id LayerID) (bool, error)

	// FileExists reports whether name exists within id's directory
	// (finalized or still under construction).
	FileExists(ctx context.Context, id LayerID, name string) (bool, error)

	// OpenFile opens name within id's directory. write requests a
	// handle usable for appending (only legal before FinalizeDirectory);
	// otherwise the handle is read-only.
	OpenFile(ctx context.Context, id LayerID, name string, write bool) (FileHandle, error)

	// FinalizeDirectory commits a construction area, making id visible
	// to ListDirectories/DirectoryExists. Idempotent.
	FinalizeDirectory(ctx context.Context, id LayerID) error

	// DeleteDirectory removes a directory (finalized or not). Used by
	// rollup/squash callers to reclaim space once a consolidated layer
	// has replaced a subchain (§3.6: deletion is never implicit).
	DeleteDirectory(ctx context.Context, id LayerID) error
}
