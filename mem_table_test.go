// Copyright 2011 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package lsmkv

import (
	"bytes"
	"testing"

	"github.com/tinsley-labs/lsmkv/internal/base"
)

func TestSkiplistInsertAndIterate(t *testing.T) {
	skl := newSkiplist(base.DefaultComparer.Compare)
	skl.insert(base.MakeInternalKey([]byte("b"), 1, base.InternalKeyKindSet), []byte("2"))
	skl.insert(base.MakeInternalKey([]byte("a"), 2, base.InternalKeyKindSet), []byte("1"))
	skl.insert(base.MakeInternalKey([]byte("c"), 3, base.InternalKeyKindSet), []byte("3"))

	it := skl.newIterator()
	var gotKeys []string
	for valid := it.First(); valid; valid = it.Next() {
		gotKeys = append(gotKeys, string(it.Key().UserKey))
	}
	want := []string{"a", "b", "c"}
	if len(gotKeys) != len(want) {
		t.Fatalf("iterated %d keys, want %d: %v", len(gotKeys), len(want), gotKeys)
	}
	for i := range want {
		if gotKeys[i] != want[i] {
			t.Fatalf("keys[%d] = %q, want %q", i, gotKeys[i], want[i])
		}
	}
}

func TestSkiplistGetNewestAtOrBelowSeqNum(t *testing.T) {
	skl := newSkiplist(base.DefaultComparer.Compare)
	skl.insert(base.MakeInternalKey([]byte("k"), 1, base.InternalKeyKindSet), []byte("v1"))
	skl.insert(base.MakeInternalKey([]byte("k"), 5, base.InternalKeyKindSet), []byte("v5"))
	skl.insert(base.MakeInternalKey([]byte("k"), 9, base.InternalKeyKindDelete), nil)

	// A search at seqNum 9 should return the tombstone, the newest entry.
	_, kind, found := skl.get(base.MakeInternalKey([]byte("k"), 9, base.InternalKeyKindSet))
	if !found || kind != base.InternalKeyKindDelete {
		t.Fatalf("get(9) = (kind=%v, found=%v), want (Delete, true)", kind, found)
	}

	// A search at seqNum 7 should skip the seqNum-9 tombstone and return v5.
	value, kind, found := skl.get(base.MakeInternalKey([]byte("k"), 7, base.InternalKeyKindSet))
	if !found || kind != base.InternalKeyKindSet || !bytes.Equal(value, []byte("v5")) {
		t.Fatalf("get(7) = (value=%q, kind=%v, found=%v), want (v5, Set, true)", value, kind, found)
	}

	// A search at seqNum 3 should skip both later entries and return v1.
	value, kind, found = skl.get(base.MakeInternalKey([]byte("k"), 3, base.InternalKeyKindSet))
	if !found || kind != base.InternalKeyKindSet || !bytes.Equal(value, []byte("v1")) {
		t.Fatalf("get(3) = (value=%q, kind=%v, found=%v), want (v1, Set, true)", value, kind, found)
	}

	// A search below every written seqNum finds nothing.
	if _, _, found := skl.get(base.MakeInternalKey([]byte("k"), 0, base.InternalKeyKindSet)); found {
		t.Fatalf("get(0) should not find an entry written at seqNum >= 1")
	}

	if _, _, found := skl.get(base.MakeInternalKey([]byte("missing"), 100, base.InternalKeyKindSet)); found {
		t.Fatalf("get() on an absent user key should not find anything")
	}
}

func TestMemTableApplyAndGet(t *testing.T) {
	m := newMemTable(base.DefaultComparer.Compare, 1)
	if !m.empty() {
		t.Fatalf("new memtable should be empty")
	}

	b := NewBatch()
	b.Set([]byte("a"), []byte("1"))
	b.Set([]byte("b"), []byte("2"))
	b.Delete([]byte("a"))
	m.apply(b.entries(), 10)

	if m.empty() {
		t.Fatalf("memtable should not be empty after apply")
	}

	// seqNum 10: Set(a,1). seqNum 11: Set(b,2). seqNum 12: Delete(a).
	if _, kind, found := m.get([]byte("a"), 12); !found || kind != base.InternalKeyKindDelete {
		t.Fatalf("get(a, 12) should surface the seqNum-12 tombstone")
	}
	value, kind, found := m.get([]byte("a"), 10)
	if !found || kind != base.InternalKeyKindSet || !bytes.Equal(value, []byte("1")) {
		t.Fatalf("get(a, 10) = (%q, %v, %v), want (1, Set, true)", value, kind, found)
	}
	value, _, found = m.get([]byte("b"), 100)
	if !found || !bytes.Equal(value, []byte("2")) {
		t.Fatalf("get(b, 100) = (%q, %v), want (2, true)", value, found)
	}
	if _, _, found := m.get([]byte("nope"), 100); found {
		t.Fatalf("get() on an absent key should not find anything")
	}
}

func TestMemTableNewIterOrdersByUserKey(t *testing.T) {
	m := newMemTable(base.DefaultComparer.Compare, 1)
	b := NewBatch()
	b.Set([]byte("z"), []byte("26"))
	b.Set([]byte("a"), []byte("1"))
	b.Set([]byte("m"), []byte("13"))
	m.apply(b.entries(), 1)

	it := m.newIter()
	var keys []string
	for valid := it.First(); valid; valid = it.Next() {
		keys = append(keys, string(it.Key().UserKey))
	}
	want := []string{"a", "m", "z"}
	for i := range want {
		if i >= len(keys) || keys[i] != want[i] {
			t.Fatalf("iteration order = %v, want %v", keys, want)
		}
	}
}
