// Copyright 2018 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package lsmkv

import (
	"bytes"
	"testing"

	"github.com/tinsley-labs/lsmkv/internal/base"
)

// fakeIter is a simple internalIterator backed by a fixed, already-sorted
// slice, used to exercise compactionIter without a real mergingIter.
type fakeIter struct {
	keys   []base.InternalKey
	values [][]byte
	pos    int
}

func (f *fakeIter) First() bool {
	f.pos = 0
	return f.pos < len(f.keys)
}
func (f *fakeIter) SeekGE(key []byte) bool { panic("unused") }
func (f *fakeIter) Next() bool {
	f.pos++
	return f.pos < len(f.keys)
}
func (f *fakeIter) Valid() bool           { return f.pos < len(f.keys) }
func (f *fakeIter) Key() base.InternalKey { return f.keys[f.pos] }
func (f *fakeIter) Value() []byte         { return f.values[f.pos] }
func (f *fakeIter) Error() error          { return nil }

func newMergingIterOverFake(iter internalIterator) *mergingIter {
	m := newMergingIter(base.DefaultComparer.Compare, iter)
	return m
}

func collectCompactionIter(t *testing.T, ci *compactionIter) []string {
	t.Helper()
	var out []string
	for valid := ci.First(); valid; valid = ci.Next() {
		out = append(out, string(ci.Key().UserKey)+":"+ci.Key().Kind().String())
	}
	return out
}

func TestCompactionIterCollapsesSameStripe(t *testing.T) {
	fi := &fakeIter{
		keys: []base.InternalKey{
			base.MakeInternalKey([]byte("a"), 3, base.InternalKeyKindSet),
			base.MakeInternalKey([]byte("a"), 2, base.InternalKeyKindSet),
			base.MakeInternalKey([]byte("a"), 1, base.InternalKeyKindSet),
		},
		values: [][]byte{[]byte("v3"), []byte("v2"), []byte("v1")},
	}
	m := newMergingIterOverFake(fi)
	// No live snapshots: every entry is in one stripe, so only the newest
	// survives.
	ci := newCompactionIter(m, base.DefaultComparer.Compare, nil, func([]byte) bool { return true })

	var values []string
	for valid := ci.First(); valid; valid = ci.Next() {
		values = append(values, string(ci.Value()))
	}
	if len(values) != 1 || values[0] != "v3" {
		t.Fatalf("values = %v, want [v3] (only the newest revision should survive)", values)
	}
}

func TestCompactionIterKeepsEntriesAcrossSnapshotStripes(t *testing.T) {
	fi := &fakeIter{
		keys: []base.InternalKey{
			base.MakeInternalKey([]byte("a"), 5, base.InternalKeyKindSet),
			base.MakeInternalKey([]byte("a"), 3, base.InternalKeyKindSet),
			base.MakeInternalKey([]byte("a"), 1, base.InternalKeyKindSet),
		},
		values: [][]byte{[]byte("v5"), []byte("v3"), []byte("v1")},
	}
	m := newMergingIterOverFake(fi)
	// A live snapshot at seqNum 2 separates entries 1 (below it) from 3,5
	// (above it): the stripe above it collapses to its newest (v5), and the
	// stripe at/below the snapshot keeps v1 since the snapshot must see it.
	ci := newCompactionIter(m, base.DefaultComparer.Compare, []uint64{2}, func([]byte) bool { return true })

	var values []string
	for valid := ci.First(); valid; valid = ci.Next() {
		values = append(values, string(ci.Value()))
	}
	if len(values) != 2 || values[0] != "v5" || values[1] != "v1" {
		t.Fatalf("values = %v, want [v5 v1]", values)
	}
}

func TestCompactionIterDropsBaseLevelTombstone(t *testing.T) {
	fi := &fakeIter{
		keys: []base.InternalKey{
			base.MakeInternalKey([]byte("a"), 1, base.InternalKeyKindDelete),
			base.MakeInternalKey([]byte("b"), 2, base.InternalKeyKindSet),
		},
		values: [][]byte{nil, []byte("v")},
	}
	m := newMergingIterOverFake(fi)
	ci := newCompactionIter(m, base.DefaultComparer.Compare, nil, func([]byte) bool { return true })

	keys := collectCompactionIter(t, ci)
	if len(keys) != 1 || keys[0] != "b:SET" {
		t.Fatalf("keys = %v, want [b:SET] (base-level tombstone for a should be dropped)", keys)
	}
}

func TestCompactionIterKeepsTombstoneWhenNotBaseLevel(t *testing.T) {
	fi := &fakeIter{
		keys: []base.InternalKey{
			base.MakeInternalKey([]byte("a"), 1, base.InternalKeyKindDelete),
		},
		values: [][]byte{nil},
	}
	m := newMergingIterOverFake(fi)
	// isBase returns false: a lower level might still hold a shadowed value
	// for "a", so the tombstone cannot be dropped yet.
	ci := newCompactionIter(m, base.DefaultComparer.Compare, nil, func([]byte) bool { return false })

	keys := collectCompactionIter(t, ci)
	if len(keys) != 1 || keys[0] != "a:DEL" {
		t.Fatalf("keys = %v, want [a:DEL] kept (not base level)", keys)
	}
	if !bytes.Equal(ci.Key().UserKey, []byte("a")) {
		t.Fatalf("Key().UserKey = %q, want a", ci.Key().UserKey)
	}
}

func TestCompactionIterSurfacesInvalidKey(t *testing.T) {
	fi := &fakeIter{
		keys: []base.InternalKey{
			{Trailer: base.MakeTrailer(0, base.InternalKeyKindInvalid)},
			base.MakeInternalKey([]byte("b"), 1, base.InternalKeyKindSet),
		},
		values: [][]byte{nil, []byte("v")},
	}
	m := newMergingIterOverFake(fi)
	ci := newCompactionIter(m, base.DefaultComparer.Compare, nil, func([]byte) bool { return true })

	if !ci.First() {
		t.Fatalf("First() should surface the invalid key rather than drop it")
	}
	if ci.Key().Kind() != base.InternalKeyKindInvalid {
		t.Fatalf("Key().Kind() = %v, want Invalid", ci.Key().Kind())
	}
}
