// Copyright 2012 The LevelDB-Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package lsmkv

import (
	"testing"

	"github.com/tinsley-labs/lsmkv/internal/vfs"
)

func TestFilenameRoundTrip(t *testing.T) {
	fs := vfs.NewMemFS()
	tests := []struct {
		ft      fileType
		fileNum uint64
	}{
		{fileTypeLog, 7},
		{fileTypeTable, 42},
		{fileTypeManifest, 1},
	}
	for _, tc := range tests {
		name := makeFilename(fs, "/dir", tc.ft, tc.fileNum)
		gotFt, gotNum, ok := parseFilename(fs, name)
		if !ok {
			t.Fatalf("parseFilename(%q) failed to parse", name)
		}
		if gotFt != tc.ft || gotNum != tc.fileNum {
			t.Fatalf("parseFilename(%q) = (%v, %d), want (%v, %d)", name, gotFt, gotNum, tc.ft, tc.fileNum)
		}
	}
}

func TestParseFilenameSpecialNames(t *testing.T) {
	fs := vfs.NewMemFS()

	if ft, _, ok := parseFilename(fs, "/dir/CURRENT"); !ok || ft != fileTypeCurrent {
		t.Fatalf("parseFilename(CURRENT) = (%v, %v)", ft, ok)
	}
	if ft, _, ok := parseFilename(fs, "/dir/LOCK"); !ok || ft != fileTypeLock {
		t.Fatalf("parseFilename(LOCK) = (%v, %v)", ft, ok)
	}
	if ft, num, ok := parseFilename(fs, "/dir/MANIFEST-000003"); !ok || ft != fileTypeManifest || num != 3 {
		t.Fatalf("parseFilename(MANIFEST-000003) = (%v, %d, %v)", ft, num, ok)
	}
	if _, _, ok := parseFilename(fs, "/dir/whatever.txt"); ok {
		t.Fatalf("parseFilename should reject an unrecognized extension")
	}
	if _, _, ok := parseFilename(fs, "/dir/noext"); ok {
		t.Fatalf("parseFilename should reject a filename without a recognized form")
	}
}
