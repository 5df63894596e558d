// Copyright 2011 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package lsmkv

import "github.com/tinsley-labs/lsmkv/internal/base"

// memTable is the in-memory ordered map of internal-key to value-or-tombstone
// named in spec.md §3. At most two exist at once: the mutable one (accepts
// writes) and at most one immutable (awaiting flush to an L0 table).
//
// A batch is applied to a memTable in the teacher's two-step prepare/apply
// style: prepare reserves (accounts) the batch's approximate size against
// writeBufferSize while the engine mutex is held, after makeRoomForWrite has
// already made this write's rotation decision from the size of prior writes;
// apply inserts the batch's entries into the skiplist once the WAL append has
// succeeded.
type memTable struct {
	cmp       base.Compare
	skl       *skiplist
	logNum    uint64
	logSize   int64
}

func newMemTable(cmp base.Compare, logNum uint64) *memTable {
	return &memTable{cmp: cmp, skl: newSkiplist(cmp), logNum: logNum}
}

// prepare reserves space for a batch's entries, called with the engine mutex
// held (spec.md §4.2 step 1, before the leader drops the mutex for the WAL
// append).
func (m *memTable) prepare(b *Batch) {
	m.logSize += int64(b.approximateSize())
}

// apply inserts every entry of a decoded batch group, stamping each with its
// assigned sequence number in order (spec.md §4.2 step 4: "replays the
// grouped batch into the current memtable with assigned sequence numbers").
func (m *memTable) apply(entries []batchEntry, firstSeqNum uint64) {
	for i, e := range entries {
		ikey := base.MakeInternalKey(e.key, firstSeqNum+uint64(i), e.kind)
		m.skl.insert(ikey, e.value)
	}
}

// empty reports whether the memtable holds no entries.
func (m *memTable) empty() bool { return m.skl.size == 0 }

// approximateBytes returns the memtable's accounted size against
// write_buffer_size.
func (m *memTable) approximateBytes() int64 { return m.logSize }

// get resolves the newest entry at or below seqNum for userKey, matching the
// per-memtable probe step of spec.md §4.4's read path.
func (m *memTable) get(userKey []byte, seqNum uint64) (value []byte, kind base.InternalKeyKind, found bool) {
	searchKey := base.MakeInternalKey(userKey, seqNum, base.InternalKeyKindSet)
	return m.skl.get(searchKey)
}

// newIter returns an iterator over the memtable's entries in ascending
// internal-key order, the unit merging_iter.go composes across memtable,
// immutable memtable, and per-level table iterators.
func (m *memTable) newIter() *skiplistIterator { return m.skl.newIterator() }
