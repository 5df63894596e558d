// Copyright 2012 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package lsmkv

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/tinsley-labs/lsmkv/internal/vfs"
)

func testOptions(fs vfs.FS) *Options {
	return &Options{
		CreateIfMissing: true,
		FS:              fs,
	}
}

func TestOpenSetGetDelete(t *testing.T) {
	fs := vfs.NewMemFS()
	d, err := Open("/store", testOptions(fs))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer d.Close()

	if err := d.Set([]byte("a"), []byte("1"), true); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := d.Set([]byte("b"), []byte("2"), true); err != nil {
		t.Fatalf("Set: %v", err)
	}

	value, found, err := d.Get([]byte("a"))
	if err != nil || !found || !bytes.Equal(value, []byte("1")) {
		t.Fatalf("Get(a) = (%q, %v, %v), want (1, true, nil)", value, found, err)
	}

	if err := d.Delete([]byte("a"), true); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, found, err := d.Get([]byte("a")); err != nil || found {
		t.Fatalf("Get(a) after Delete = found=%v err=%v, want false,nil", found, err)
	}

	value, found, err = d.Get([]byte("b"))
	if err != nil || !found || !bytes.Equal(value, []byte("2")) {
		t.Fatalf("Get(b) = (%q, %v, %v), want (2, true, nil)", value, found, err)
	}

	if _, found, err := d.Get([]byte("nonexistent")); err != nil || found {
		t.Fatalf("Get(nonexistent) = found=%v err=%v, want false,nil", found, err)
	}
}

func TestSnapshotIsolation(t *testing.T) {
	fs := vfs.NewMemFS()
	d, err := Open("/store", testOptions(fs))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer d.Close()

	if err := d.Set([]byte("k"), []byte("before"), true); err != nil {
		t.Fatalf("Set: %v", err)
	}

	snap := d.NewSnapshot()
	defer snap.Close()

	if err := d.Set([]byte("k"), []byte("after"), true); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := d.Set([]byte("new-key"), []byte("v"), true); err != nil {
		t.Fatalf("Set: %v", err)
	}

	value, err := snap.Get([]byte("k"))
	if err != nil || !bytes.Equal(value, []byte("before")) {
		t.Fatalf("snapshot Get(k) = (%q, %v), want (before, nil) — snapshot must not see the later write", value, err)
	}
	if value, _, _ := d.Get([]byte("k")); !bytes.Equal(value, []byte("after")) {
		t.Fatalf("live Get(k) = %q, want after", value)
	}

	if value, err := snap.Get([]byte("new-key")); err != nil || value != nil {
		t.Fatalf("snapshot Get(new-key) = (%q, %v), want (nil, nil) — key did not exist at snapshot time", value, err)
	}
}

func TestIteratorForwardOrder(t *testing.T) {
	fs := vfs.NewMemFS()
	d, err := Open("/store", testOptions(fs))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer d.Close()

	for _, k := range []string{"c", "a", "e", "b", "d"} {
		if err := d.Set([]byte(k), []byte("v-"+k), true); err != nil {
			t.Fatalf("Set(%s): %v", k, err)
		}
	}
	if err := d.Delete([]byte("c"), true); err != nil {
		t.Fatalf("Delete(c): %v", err)
	}

	it, err := d.NewIter()
	if err != nil {
		t.Fatalf("NewIter: %v", err)
	}
	defer it.Close()

	var keys []string
	for valid := it.First(); valid; valid = it.Next() {
		keys = append(keys, string(it.Key()))
	}
	if err := it.Error(); err != nil {
		t.Fatalf("iterator error: %v", err)
	}
	want := []string{"a", "b", "d", "e"}
	if len(keys) != len(want) {
		t.Fatalf("keys = %v, want %v", keys, want)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Fatalf("keys = %v, want %v", keys, want)
		}
	}
}

func TestReopenReplaysWAL(t *testing.T) {
	fs := vfs.NewMemFS()

	d, err := Open("/store", testOptions(fs))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	for i := 0; i < 10; i++ {
		k := []byte(fmt.Sprintf("key-%02d", i))
		if err := d.Set(k, []byte("v"), false); err != nil {
			t.Fatalf("Set: %v", err)
		}
	}
	if err := d.Delete([]byte("key-03"), false); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	// Deliberately no sync; Close still lets the already-applied WAL writes
	// survive a reopen, since every writer's record is written before Apply
	// returns regardless of the sync flag (sync only controls fsync).
	if err := d.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := Open("/store", testOptions(fs))
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	for i := 0; i < 10; i++ {
		k := []byte(fmt.Sprintf("key-%02d", i))
		value, found, err := reopened.Get(k)
		if err != nil {
			t.Fatalf("Get(%s): %v", k, err)
		}
		if i == 3 {
			if found {
				t.Fatalf("Get(key-03) after reopen = found, want deleted")
			}
			continue
		}
		if !found || !bytes.Equal(value, []byte("v")) {
			t.Fatalf("Get(%s) after reopen = (%q, %v), want (v, true)", k, value, found)
		}
	}
}

// waitForBackgroundIdle blocks until no flush or compaction is in flight,
// the condition the background worker signals on every time it finishes a
// step (backgroundCompact's cond.Broadcast).
func waitForBackgroundIdle(d *DB) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for d.mu.mem.immutable != nil || d.mu.compact.flushing || d.mu.compact.compacting {
		d.mu.compact.cond.Wait()
	}
}

func TestFlushWritesL0Table(t *testing.T) {
	fs := vfs.NewMemFS()
	d, err := Open("/store", testOptions(fs))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer d.Close()

	for i := 0; i < 20; i++ {
		k := []byte(fmt.Sprintf("key-%02d", i))
		if err := d.Set(k, []byte("v-"+string(k)), false); err != nil {
			t.Fatalf("Set: %v", err)
		}
	}

	// A null batch forces makeRoomForWrite(force=true), rotating the
	// mutable memtable into immutable and scheduling a flush even though
	// WriteBufferSize was never exceeded.
	if err := d.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	waitForBackgroundIdle(d)

	m := d.Metrics()
	if m.Flush.Count == 0 {
		t.Fatalf("Flush.Count = 0, want at least one flush to have run")
	}
	if m.Levels[0].NumFiles == 0 {
		t.Fatalf("L0 NumFiles = 0 after flush, want at least one table")
	}

	for i := 0; i < 20; i++ {
		k := []byte(fmt.Sprintf("key-%02d", i))
		value, found, err := d.Get(k)
		if err != nil || !found || !bytes.Equal(value, []byte("v-"+string(k))) {
			t.Fatalf("Get(%s) after flush = (%q, %v, %v), want (v-%s, true, nil)", k, value, found, err, k)
		}
	}
}

func TestCompactRangeTrivialMove(t *testing.T) {
	fs := vfs.NewMemFS()
	d, err := Open("/store", testOptions(fs))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer d.Close()

	for i := 0; i < 5; i++ {
		k := []byte(fmt.Sprintf("key-%02d", i))
		if err := d.Set(k, []byte("v"), true); err != nil {
			t.Fatalf("Set: %v", err)
		}
	}

	// Force a flush so there is an actual L0 table for CompactRange to
	// move; without one the store is still entirely in the memtable and
	// CompactRange has no files to walk.
	if err := d.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	waitForBackgroundIdle(d)

	if n := d.Metrics().Levels[0].NumFiles; n == 0 {
		t.Fatalf("L0 NumFiles = 0 before CompactRange, want at least one table")
	}

	if err := d.CompactRange(nil, nil); err != nil {
		t.Fatalf("CompactRange: %v", err)
	}

	// CompactRange walks every level in turn (spec.md §4.8); an isolated
	// table with no overlap at any level keeps satisfying the trivial-move
	// condition, so it cascades all the way down to the bottom level.
	m := d.Metrics()
	if m.Levels[0].NumFiles != 0 {
		t.Fatalf("L0 NumFiles = %d after CompactRange(nil, nil), want 0 (trivially moved down)", m.Levels[0].NumFiles)
	}
	bottom := len(m.Levels) - 1
	if m.Levels[bottom].NumFiles == 0 {
		t.Fatalf("L%d NumFiles = 0 after CompactRange(nil, nil), want the moved table", bottom)
	}

	for i := 0; i < 5; i++ {
		k := []byte(fmt.Sprintf("key-%02d", i))
		value, found, err := d.Get(k)
		if err != nil || !found || !bytes.Equal(value, []byte("v")) {
			t.Fatalf("Get(%s) after CompactRange = (%q, %v, %v), want (v, true, nil)", k, value, found, err)
		}
	}
}
