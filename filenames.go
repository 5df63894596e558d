// Copyright 2012 The LevelDB-Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package lsmkv

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/tinsley-labs/lsmkv/internal/vfs"
)

// fileType identifies the kind of file a fileNum belongs to, per spec.md §6's
// directory layout.
type fileType int

const (
	fileTypeLog fileType = iota
	fileTypeLock
	fileTypeTable
	fileTypeManifest
	fileTypeCurrent
	fileTypeInfoLog
)

func makeFilename(fs vfs.FS, dirname string, ft fileType, fileNum uint64) string {
	switch ft {
	case fileTypeLog:
		return fs.PathJoin(dirname, fmt.Sprintf("%06d.log", fileNum))
	case fileTypeLock:
		return fs.PathJoin(dirname, "LOCK")
	case fileTypeTable:
		return fs.PathJoin(dirname, fmt.Sprintf("%06d.ldb", fileNum))
	case fileTypeManifest:
		return fs.PathJoin(dirname, fmt.Sprintf("MANIFEST-%06d", fileNum))
	case fileTypeCurrent:
		return fs.PathJoin(dirname, "CURRENT")
	case fileTypeInfoLog:
		return fs.PathJoin(dirname, "LOG")
	}
	panic("lsmkv: unknown file type")
}

// parseFilename recognizes the file types named in spec.md §6. Unknown file
// types are reported via ok=false; spec.md §7 says these are ignored by
// directory scans rather than treated as corruption.
func parseFilename(fs vfs.FS, filename string) (ft fileType, fileNum uint64, ok bool) {
	filename = fs.PathBase(filename)
	switch {
	case filename == "CURRENT":
		return fileTypeCurrent, 0, true
	case filename == "LOCK":
		return fileTypeLock, 0, true
	case filename == "LOG" || filename == "LOG.old":
		return fileTypeInfoLog, 0, true
	case strings.HasPrefix(filename, "MANIFEST-"):
		u, err := strconv.ParseUint(filename[len("MANIFEST-"):], 10, 64)
		if err != nil {
			return 0, 0, false
		}
		return fileTypeManifest, u, true
	default:
		i := strings.IndexByte(filename, '.')
		if i < 0 {
			return 0, 0, false
		}
		u, err := strconv.ParseUint(filename[:i], 10, 64)
		if err != nil {
			return 0, 0, false
		}
		switch filename[i+1:] {
		case "ldb":
			return fileTypeTable, u, true
		case "log":
			return fileTypeLog, u, true
		}
	}
	return 0, 0, false
}

// setCurrentFile atomically rewrites CURRENT to point at the given manifest
// file number: write-to-temp, fsync, rename-over, matching spec.md §6's
// "CURRENT atomic update".
func setCurrentFile(fs vfs.FS, dirname string, manifestFileNum uint64) error {
	newFilename := makeFilename(fs, dirname, fileTypeCurrent, 0)
	manifestBase := fs.PathBase(makeFilename(fs, dirname, fileTypeManifest, manifestFileNum))
	tmpFilename := fmt.Sprintf("%s.dbtmp", newFilename)

	f, err := fs.Create(tmpFilename)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(f, "%s\n", manifestBase); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := fs.Rename(tmpFilename, newFilename); err != nil {
		return err
	}
	if dir, err := fs.OpenDir(dirname); err == nil {
		_ = dir.Sync()
		_ = dir.Close()
	}
	return nil
}
