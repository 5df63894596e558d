// Copyright 2012 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package lsmkv

import "github.com/tinsley-labs/lsmkv/internal/base"

// Snapshot is a read-only point-in-time view of the store, spec.md §3's
// Snapshot: a pinned sequence number, registered in the DB's snapshot list so
// that compactions keep every entry it can still see. It holds no Version
// reference.
type Snapshot struct {
	db     *DB
	seqNum uint64

	list       *snapshotList
	prev, next *Snapshot
}

// Get reads key as of the snapshot's sequence number.
func (s *Snapshot) Get(key []byte) ([]byte, error) {
	if s.db == nil {
		panic(ErrClosed)
	}
	return s.db.getInternal(key, s.seqNum)
}

// NewIter returns an iterator over the snapshot's point-in-time view.
func (s *Snapshot) NewIter() (*Iterator, error) {
	if s.db == nil {
		panic(ErrClosed)
	}
	return s.db.newIterInternal(s.seqNum)
}

// Close releases the snapshot, allowing files it alone kept alive to become
// obsolete.
func (s *Snapshot) Close() error {
	if s.db == nil {
		return nil
	}
	db := s.db
	db.mu.Lock()
	defer db.mu.Unlock()
	db.mu.snapshots.remove(s)
	s.db = nil
	return nil
}

// snapshotList is the doubly-linked list of live snapshots ordered by
// sequence number (spec.md §3), mirroring versionList's sentinel-root idiom.
type snapshotList struct {
	root Snapshot
}

func (l *snapshotList) init() {
	l.root.next = &l.root
	l.root.prev = &l.root
}

func (l *snapshotList) empty() bool {
	return l.root.next == &l.root
}

// earliest returns the smallest live snapshot sequence number, or seqNumMax
// if there are none: used as "smallest_snapshot" when collapsing entries
// during compaction (spec.md §4.7).
func (l *snapshotList) earliest() uint64 {
	if l.empty() {
		return base.SeqNumMax
	}
	return l.root.next.seqNum
}

// toSlice returns every live snapshot's sequence number in ascending order,
// the "stripes" compactionIter collapses between.
func (l *snapshotList) toSlice() []uint64 {
	if l.empty() {
		return nil
	}
	var out []uint64
	for s := l.root.next; s != &l.root; s = s.next {
		out = append(out, s.seqNum)
	}
	return out
}

func (l *snapshotList) pushBack(s *Snapshot) {
	if s.list != nil || s.prev != nil || s.next != nil {
		panic("lsmkv: snapshot list is inconsistent")
	}
	s.prev = l.root.prev
	s.prev.next = s
	s.next = &l.root
	s.next.prev = s
	s.list = l
}

func (l *snapshotList) remove(s *Snapshot) {
	if s == &l.root {
		panic("lsmkv: cannot remove snapshot list root node")
	}
	if s.list != l {
		return
	}
	s.prev.next = s.next
	s.next.prev = s.prev
	s.next = nil
	s.prev = nil
	s.list = nil
}
