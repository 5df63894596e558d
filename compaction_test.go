// Copyright 2013 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package lsmkv

import (
	"testing"

	"github.com/tinsley-labs/lsmkv/internal/base"
)

func testCompactionOpts() *Options {
	o := &Options{}
	return o.EnsureDefaults()
}

func TestCompactionAbortStateSignalsFlushPriority(t *testing.T) {
	d := &DB{}

	if abort, closing := d.compactionAbortState(); abort || closing {
		t.Fatalf("compactionAbortState() = (%v, %v) on a quiescent DB, want (false, false)", abort, closing)
	}

	d.mu.mem.immutable = &memTable{}
	if abort, closing := d.compactionAbortState(); !abort || closing {
		t.Fatalf("compactionAbortState() with a pending immutable = (%v, %v), want (true, false)", abort, closing)
	}

	d.mu.mem.immutable = nil
	d.mu.closing = true
	if abort, closing := d.compactionAbortState(); !abort || !closing {
		t.Fatalf("compactionAbortState() while closing = (%v, %v), want (true, true)", abort, closing)
	}
}

func TestNewCompactionPicksStartLevelFile(t *testing.T) {
	opts := testCompactionOpts()
	v := &version{}
	v.files[1] = []fileMetadata{
		mkFile(1, "a", "c", 1, 1),
		mkFile(2, "d", "f", 2, 2),
	}

	c := newCompaction(opts, v, 1, 2)
	if len(c.inputs[0]) != 1 || c.inputs[0][0].fileNum != 1 {
		t.Fatalf("inputs[0] = %+v, want just file 1", c.inputs[0])
	}
	if len(c.inputs[1]) != 0 {
		t.Fatalf("inputs[1] = %+v, want none (L2 empty)", c.inputs[1])
	}
}

func TestNewCompactionSetupOtherInputsOverlap(t *testing.T) {
	opts := testCompactionOpts()
	v := &version{}
	v.files[1] = []fileMetadata{mkFile(1, "a", "e", 1, 1)}
	v.files[2] = []fileMetadata{
		mkFile(2, "a", "c", 2, 2),
		mkFile(3, "d", "h", 3, 3),
	}

	c := newCompaction(opts, v, 1, 2)
	if len(c.inputs[1]) != 2 {
		t.Fatalf("inputs[1] = %+v, want both overlapping L2 files", c.inputs[1])
	}
}

func TestCompactionIsBaseLevelForUkey(t *testing.T) {
	opts := testCompactionOpts()
	v := &version{}
	v.files[3] = []fileMetadata{mkFile(10, "m", "m", 1, 1)}

	c := newCompaction(opts, v, 1, 2)
	cmp := base.DefaultComparer.Compare

	if c.isBaseLevelForUkey(cmp, 2, []byte("m")) {
		t.Fatalf("isBaseLevelForUkey(m) should be false: L3 still holds m")
	}
	if !c.isBaseLevelForUkey(cmp, 2, []byte("z")) {
		t.Fatalf("isBaseLevelForUkey(z) should be true: no lower level holds z")
	}
}

func TestCompactionShouldStopBeforeBoundsGrandparentOverlap(t *testing.T) {
	opts := testCompactionOpts()
	opts.MaxFileSize = 100
	v := &version{}
	v.files[1] = []fileMetadata{mkFile(1, "a", "z", 1, 1)}

	c := newCompaction(opts, v, 1, 2)
	c.inputs[2] = []fileMetadata{
		{fileNum: 5, smallest: base.MakeInternalKey([]byte("a"), 1, base.InternalKeyKindSet), largest: base.MakeInternalKey([]byte("c"), 1, base.InternalKeyKindSet), size: 2000},
		{fileNum: 6, smallest: base.MakeInternalKey([]byte("d"), 1, base.InternalKeyKindSet), largest: base.MakeInternalKey([]byte("f"), 1, base.InternalKeyKindSet), size: 10},
	}

	// The first key seen (within file 5's range) never triggers a stop: there
	// is no accumulated overlap yet to charge.
	if c.shouldStopBefore(base.MakeInternalKey([]byte("b"), 1, base.InternalKeyKindSet)) {
		t.Fatalf("shouldStopBefore should not trigger on the very first key")
	}
	// Advancing past file 5's range charges its size (2000 bytes), which
	// exceeds maxGrandParentOverlapFactor(10)*MaxFileSize(100) = 1000.
	if !c.shouldStopBefore(base.MakeInternalKey([]byte("e"), 1, base.InternalKeyKindSet)) {
		t.Fatalf("shouldStopBefore should trigger once grandparent overlap exceeds the budget")
	}
}

func TestCompactionMaxOutputFileSizeDefault(t *testing.T) {
	opts := testCompactionOpts()
	c := &compaction{opts: opts}
	if c.maxOutputFileSize() != defaultMaxFileSize {
		t.Fatalf("maxOutputFileSize() = %d, want default %d", c.maxOutputFileSize(), defaultMaxFileSize)
	}

	opts2 := testCompactionOpts()
	opts2.MaxFileSize = 12345
	c2 := &compaction{opts: opts2}
	if c2.maxOutputFileSize() != 12345 {
		t.Fatalf("maxOutputFileSize() = %d, want 12345", c2.maxOutputFileSize())
	}
}
