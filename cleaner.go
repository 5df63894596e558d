// Copyright 2018 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package lsmkv

import "github.com/tinsley-labs/lsmkv/internal/vfs"

// DeleteCleaner deletes obsolete files outright. It is the default Cleaner.
type DeleteCleaner struct{}

// Clean implements Cleaner.
func (DeleteCleaner) Clean(fs vfs.FS, _ fileType, path string) error {
	return fs.Remove(path)
}

// ArchiveCleaner moves obsolete files into an "archive" subdirectory of the
// store instead of deleting them, so an operator can inspect or recover them
// later. Only table files are archived; log and manifest files, which are
// smaller and more numerous, are still deleted outright.
type ArchiveCleaner struct{}

// Clean implements Cleaner.
func (ArchiveCleaner) Clean(fs vfs.FS, ft fileType, path string) error {
	if ft != fileTypeTable {
		return fs.Remove(path)
	}
	dir := fs.PathDir(path)
	archiveDir := fs.PathJoin(dir, "archive")
	if err := fs.MkdirAll(archiveDir, 0755); err != nil {
		return err
	}
	return fs.Rename(path, fs.PathJoin(archiveDir, fs.PathBase(path)))
}
