// Copyright 2012 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package lsmkv

import (
	"sync"
	"testing"

	"github.com/tinsley-labs/lsmkv/internal/base"
)

func mkFile(fileNum uint64, smallest, largest string, smallestSeq, largestSeq uint64) fileMetadata {
	refs := int32(1)
	return fileMetadata{
		refs:           &refs,
		fileNum:        fileNum,
		smallest:       base.MakeInternalKey([]byte(smallest), smallestSeq, base.InternalKeyKindSet),
		largest:        base.MakeInternalKey([]byte(largest), largestSeq, base.InternalKeyKindSet),
		smallestSeqNum: smallestSeq,
		largestSeqNum:  largestSeq,
	}
}

func TestVersionOverlapsLeveledNonOverlapping(t *testing.T) {
	v := &version{}
	v.files[1] = []fileMetadata{
		mkFile(1, "a", "c", 1, 1),
		mkFile(2, "d", "f", 2, 2),
		mkFile(3, "g", "i", 3, 3),
	}
	cmp := base.DefaultComparer.Compare

	got := v.overlaps(1, cmp, []byte("e"), []byte("h"))
	if len(got) != 2 || got[0].fileNum != 2 || got[1].fileNum != 3 {
		t.Fatalf("overlaps(e,h) = %+v, want files 2,3", got)
	}

	if got := v.overlaps(1, cmp, []byte("j"), []byte("k")); len(got) != 0 {
		t.Fatalf("overlaps(j,k) = %+v, want none", got)
	}
}

func TestVersionOverlapsL0ExpandsAcrossOverlappingFiles(t *testing.T) {
	v := &version{}
	v.files[0] = []fileMetadata{
		mkFile(1, "a", "e", 1, 1),
		mkFile(2, "d", "h", 2, 2),
		mkFile(3, "k", "m", 3, 3),
	}
	cmp := base.DefaultComparer.Compare

	// Searching [b, f] should pull in file 1 directly, then expand to include
	// file 2 (overlapping file 1's range), but never file 3.
	got := v.overlaps(0, cmp, []byte("b"), []byte("f"))
	if len(got) != 2 {
		t.Fatalf("overlaps(b,f) at L0 = %+v, want 2 files", got)
	}
	seen := map[uint64]bool{}
	for _, f := range got {
		seen[f.fileNum] = true
	}
	if !seen[1] || !seen[2] || seen[3] {
		t.Fatalf("overlaps(b,f) at L0 = %+v, want files {1,2}", got)
	}
}

func TestVersionCheckOrderingDetectsOverlap(t *testing.T) {
	cmp := base.DefaultComparer.Compare

	good := &version{}
	good.files[1] = []fileMetadata{
		mkFile(1, "a", "c", 1, 1),
		mkFile(2, "d", "f", 2, 2),
	}
	if err := good.checkOrdering(cmp); err != nil {
		t.Fatalf("checkOrdering on valid L1 set: %v", err)
	}

	bad := &version{}
	bad.files[1] = []fileMetadata{
		mkFile(1, "a", "e", 1, 1),
		mkFile(2, "d", "f", 2, 2),
	}
	if err := bad.checkOrdering(cmp); err == nil {
		t.Fatalf("checkOrdering should reject overlapping L1 files")
	}
}

func TestVersionCheckOrderingL0SeqNum(t *testing.T) {
	cmp := base.DefaultComparer.Compare

	good := &version{}
	good.files[0] = []fileMetadata{
		mkFile(1, "a", "z", 1, 5),
		mkFile(2, "a", "z", 6, 10),
	}
	if err := good.checkOrdering(cmp); err != nil {
		t.Fatalf("checkOrdering on increasing L0 seqnums: %v", err)
	}

	bad := &version{}
	bad.files[0] = []fileMetadata{
		mkFile(1, "a", "z", 1, 10),
		mkFile(2, "a", "z", 6, 8),
	}
	if err := bad.checkOrdering(cmp); err == nil {
		t.Fatalf("checkOrdering should reject L0 files out of largestSeqNum order")
	}
}

func TestVersionRefUnref(t *testing.T) {
	list := &versionList{mu: &sync.Mutex{}}
	list.init()

	refs := int32(1)
	v := &version{refs: 1, list: nil, vs: &versionSet{}}
	v.files[1] = []fileMetadata{{refs: &refs, fileNum: 1}}
	list.pushBack(v)

	v.ref()
	if v.refs != 2 {
		t.Fatalf("refs after ref() = %d, want 2", v.refs)
	}
	v.unrefLocked()
	if v.refs != 1 {
		t.Fatalf("refs after one unrefLocked() = %d, want 1", v.refs)
	}
	if refs != 1 {
		t.Fatalf("file refcount should be untouched while version is still alive")
	}

	v.unrefLocked()
	if refs != 0 {
		t.Fatalf("file refcount should drop to 0 once the owning version is gone")
	}
	if !list.empty() {
		t.Fatalf("version list should be empty once the last ref is dropped")
	}
}
