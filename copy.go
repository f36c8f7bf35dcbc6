// Copyright (c) 2025 Karl Gaissmaier
// SPDX-License-Identifier: MIT

package stratum

import "context"

// CopyLayer copies every file of layer id from src to dst, staging a
// fresh directory under the same id in dst and finalizing it once
// every file has landed. Grounded on
// original_source/src/storage/copy.rs's per-file-type copy_from
// cascade (DictionaryFiles/TypedDictionaryFiles/AdjacencyListFiles/
// IdMapFiles/BaseLayerFiles/ChildLayerFiles); this flattens that
// struct-of-structs walk into one file-name list, since this port
// keeps those file names as flat strings rather than nested per-kind
// structs.
func CopyLayer(ctx context.Context, dst, src Backend, id LayerID) error {
	if exists, err := dst.DirectoryExists(ctx, id); err != nil {
		return err
	} else if exists {
		return nil // already present; idempotent
	}
	if err := dst.CreateDirectoryWithID(ctx, id); err != nil {
		return err
	}
	for _, name := range layerFileNames(ctx, src, id) {
		exists, err := src.FileExists(ctx, id, name)
		if err != nil {
			return err
		}
		if !exists {
			continue
		}
		if err := copyFile(ctx, dst, src, id, name); err != nil {
			return err
		}
	}
	return dst.FinalizeDirectory(ctx, id)
}

func copyFile(ctx context.Context, dst, src Backend, id LayerID, name string) error {
	in, err := src.OpenFile(ctx, id, name, false)
	if err != nil {
		return err
	}
	defer in.Close()
	data, err := in.Map()
	if err != nil {
		return err
	}
	return backendWriteFile(ctx, dst, id, name, data)
}

// layerFileNames lists every file name a layer directory might
// contain, required and optional alike; CopyLayer/ExportLayers skip
// the ones FileExists reports absent (optional id-maps, the neg side
// of a base layer, parent.hex/rollup.hex).
func layerFileNames(ctx context.Context, b Backend, id LayerID) []string {
	names := []string{
		fileNodeBlocks, fileNodeOffsets,
		filePredBlocks, filePredOffsets,
		fileValueTypes, fileValueTypeOffsets, fileValueBlocks, fileValueOffsets,
		fileNodeValueIDMap, filePredicateIDMap,
		fileParent, fileRollup,
	}
	for _, prefix := range []string{"base", "pos", "neg"} {
		names = append(names, sideFileNames(prefix)...)
	}
	return names
}

func sideFileNames(prefix string) []string {
	numsFile, bitsFile, stubsFile := adjacencyFiles(prefix + "_s_p_adjacency_list")
	names := []string{numsFile, bitsFile, stubsFile}
	numsFile, bitsFile, stubsFile = adjacencyFiles(prefix + "_sp_o_adjacency_list")
	names = append(names, numsFile, bitsFile, stubsFile)
	numsFile, bitsFile, stubsFile = adjacencyFiles(prefix + "_o_ps_adjacency_list")
	names = append(names, numsFile, bitsFile, stubsFile)
	names = append(names, waveletFile(prefix))
	names = append(names, monotonicFile(prefix+"_subjects"), monotonicFile(prefix+"_objects"))
	return names
}
