// Copyright 2016 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package lsmkv

import (
	"encoding/binary"
	"sync"
)

// writer is one pending entry on the write queue (spec.md §4.2). It carries
// its own condition variable, rather than sharing one across the whole
// queue, so that committing a batch wakes only the writers whose batch was
// just folded into the group and the new head — not every sleeper.
type writer struct {
	batch *Batch
	sync  bool
	cond  sync.Cond
	done  bool
	err   error
	next  *writer
}

// writeQueue is the FIFO of pending writers, protected by DB.mu.
type writeQueue struct {
	head, tail *writer
}

func (q *writeQueue) enqueue(w *writer) {
	if q.tail == nil {
		q.head, q.tail = w, w
		return
	}
	q.tail.next = w
	q.tail = w
}

// popThrough removes every writer from the head through w (inclusive),
// marking each done with err and waking it, then wakes the new head (if any)
// so it can take over as leader.
func (q *writeQueue) popThrough(w *writer, err error) {
	for {
		n := q.head
		n.done = true
		n.err = err
		n.cond.Signal()
		if n == w {
			q.head = n.next
			n.next = nil
			if q.head == nil {
				q.tail = nil
			}
			break
		}
		q.head = n.next
		n.next = nil
	}
	if q.head != nil {
		q.head.cond.Signal()
	}
}

// Apply commits b atomically, assigning it (and possibly other batches
// grouped alongside it) a range of sequence numbers, appending it to the
// WAL, and inserting its entries into the mutable memtable. It implements
// spec.md §4.2's write path in full: enqueue, wait for leadership,
// makeRoomForWrite, buildBatchGroup, release the mutex for the WAL write and
// memtable apply, then pop and signal followers.
//
// A null (empty) batch is spec.md §4.2's signal to "wait for earlier writes
// to drain": it takes the leader's turn, forces makeRoomForWrite(force=true)
// to rotate the memtable unconditionally, and is popped without ever
// building a group or touching the WAL.
func (d *DB) Apply(b *Batch, sync bool) error {
	w := &writer{batch: b, sync: sync}
	w.cond.L = &d.mu

	d.mu.Lock()
	d.mu.writers.enqueue(w)
	for d.mu.writers.head != w {
		w.cond.Wait()
	}
	if d.mu.closed {
		d.mu.writers.popThrough(w, ErrClosed)
		d.mu.Unlock()
		return ErrClosed
	}

	// w is now the leader.
	force := b.Empty()
	if err := d.makeRoomForWriteLocked(force); err != nil {
		d.mu.writers.popThrough(w, err)
		d.mu.Unlock()
		return err
	}
	if force {
		d.mu.writers.popThrough(w, nil)
		d.mu.Unlock()
		return nil
	}

	group, lastIncluded, groupSync := d.buildBatchGroupLocked(w)
	count := uint64(0)
	for _, gb := range group {
		count += uint64(gb.Count())
	}
	seqBase := d.mu.versions.logSeqNum + 1
	d.mu.versions.logSeqNum += count

	mutable := d.mu.mem.mutable
	for _, gb := range group {
		mutable.prepare(gb)
	}
	d.mu.Unlock()

	writeErr := d.writeWAL(group, seqBase, groupSync)
	if writeErr == nil {
		d.applyBatchGroupLocked(mutable, group, seqBase)
	}

	d.mu.Lock()
	if writeErr == nil {
		d.mu.versions.visibleSeqNum = seqBase + count - 1
	} else {
		d.mu.backgroundErr = firstNonNilErr(d.mu.backgroundErr, writeErr)
	}
	d.mu.writers.popThrough(lastIncluded, writeErr)
	d.mu.Unlock()
	return writeErr
}

// buildBatchGroupLocked walks the queue from the leader w, concatenating
// batches into a group, per spec.md §4.2 step 2's size cap and
// sync-promotion rule. DB.mu is held throughout.
func (d *DB) buildBatchGroupLocked(w *writer) (group []*Batch, lastIncluded *writer, groupSync bool) {
	const maxGroupBytes = 1 << 20
	const smallLeaderBonus = 128 << 10
	const smallLeaderThreshold = 128 << 10

	capBytes := maxGroupBytes
	if w.batch.approximateSize() <= smallLeaderThreshold {
		capBytes = w.batch.approximateSize() + smallLeaderBonus
	}

	group = append(group, w.batch)
	groupSync = w.sync
	lastIncluded = w
	size := w.batch.approximateSize()

	for n := w.next; n != nil; n = n.next {
		if n.sync != groupSync {
			break
		}
		next := n.batch.approximateSize()
		if size+next > capBytes {
			break
		}
		size += next
		group = append(group, n.batch)
		lastIncluded = n
	}
	return group, lastIncluded, groupSync
}

// writeWAL frames the grouped batches into a single WAL record (sequence,
// count, then each batch's entries) and fsyncs if any batch in the group
// asked for sync, per spec.md §4.2 step 4. DB.mu is not held.
func (d *DB) writeWAL(group []*Batch, seqBase uint64, sync bool) error {
	var count uint32
	for _, b := range group {
		count += b.Count()
	}

	buf := make([]byte, batchHeaderLen)
	binary.LittleEndian.PutUint64(buf[0:8], seqBase)
	binary.LittleEndian.PutUint32(buf[8:12], count)
	for _, b := range group {
		buf = append(buf, b.data[batchHeaderLen:]...)
	}

	d.walMu.Lock()
	defer d.walMu.Unlock()
	if err := d.walWriter.WriteRecord(buf); err != nil {
		return err
	}
	if sync {
		return d.walFile.Sync()
	}
	return nil
}

// applyBatchGroupLocked replays each batch's entries into mem with
// sequentially assigned sequence numbers, spec.md §4.2 step 4's final half.
// Despite the name this does not hold DB.mu — mem is referenced by the
// caller while mutation-safe, since only one leader ever writes to a given
// memtable at a time and readers only ever read entries already linked into
// the skiplist.
func (d *DB) applyBatchGroupLocked(mem *memTable, group []*Batch, seqBase uint64) {
	seqNum := seqBase
	for _, b := range group {
		entries := b.entries()
		mem.apply(entries, seqNum)
		seqNum += uint64(len(entries))
	}
}

func firstNonNilErr(a, b error) error {
	if a != nil {
		return a
	}
	return b
}
