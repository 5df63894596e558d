// Copyright 2012 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package lsmkv provides an embedded, ordered key/value store backed by a
// log-structured merge tree, spec.md's OVERVIEW: a single-writer engine with
// a write-ahead log, an in-memory memtable, leveled on-disk tables, and a
// background compactor.
package lsmkv

import (
	"io"
	"sync"
	"sync/atomic"

	"github.com/tinsley-labs/lsmkv/internal/base"
	"github.com/tinsley-labs/lsmkv/internal/record"
	"github.com/tinsley-labs/lsmkv/internal/vfs"
)

// DB is an open key/value store. A DB is safe for concurrent use by multiple
// goroutines; writes are internally serialized through the write queue
// (spec.md §4.2).
type DB struct {
	dirname string
	opts    *Options
	cmp     base.Compare
	fs      vfs.FS

	dataDir  vfs.File
	fileLock io.Closer

	tableCache *tableCache

	// walMu serializes access to the WAL writer across the leader goroutine
	// (which appends outside DB.mu) and makeRoomForWriteLocked (which rotates
	// it under DB.mu); the lock orders strictly inside DB.mu, never the other
	// way around.
	walMu     sync.Mutex
	walFile   vfs.File
	walWriter *record.Writer

	mu struct {
		sync.Mutex

		versions versionSet
		writers  writeQueue

		mem struct {
			cond      sync.Cond
			mutable   *memTable
			immutable *memTable
		}

		compact struct {
			cond       sync.Cond
			flushing   bool
			compacting bool
			manual     []*manualCompaction
			inProgress []*compaction
			scheduled  bool
		}

		snapshots snapshotList

		closed        bool
		closing       bool
		backgroundErr error
	}
}

var _ io.Closer = (*DB)(nil)

// Get returns the value for key as of the most recently committed write. It
// reports found=false, not an error, when no live entry exists (spec.md §7's
// NotFound kind).
func (d *DB) Get(key []byte) (value []byte, found bool, err error) {
	d.mu.Lock()
	seqNum := d.mu.versions.visibleSeqNum
	value, found, err = d.getInternalLocked(key, seqNum)
	d.mu.Unlock()
	return value, found, err
}

func (d *DB) getInternal(key []byte, seqNum uint64) (value []byte, err error) {
	d.mu.Lock()
	value, found, err := d.getInternalLocked(key, seqNum)
	d.mu.Unlock()
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return value, nil
}

// getInternalLocked implements spec.md §4.4's get: probe the mutable
// memtable, then the immutable memtable (if any), then the current Version's
// levels, stopping at the first definitive answer. DB.mu must be held on
// entry; it is held throughout since every step here is a fast in-memory or
// reference-counted lookup, never file I/O beyond a single table block read.
func (d *DB) getInternalLocked(key []byte, seqNum uint64) (value []byte, found bool, err error) {
	if v, kind, ok := d.mu.mem.mutable.get(key, seqNum); ok {
		return resolveKind(v, kind)
	}
	if d.mu.mem.immutable != nil {
		if v, kind, ok := d.mu.mem.immutable.get(key, seqNum); ok {
			return resolveKind(v, kind)
		}
	}

	current := d.mu.versions.currentVersion()
	current.ref()
	defer current.unref()

	var seekFile *fileMetadata
	var seekLevel int

	for level := 0; level < numLevels; level++ {
		files := current.files[level]
		if len(files) == 0 {
			continue
		}
		if level == 0 {
			// L0 is ordered by increasing largest seqNum, so walking it
			// backwards probes the newest file first; f points into the
			// version's own slice so a seek charge against it is kept.
			for i := len(files) - 1; i >= 0; i-- {
				f := &files[i]
				if d.cmp(key, f.smallest.UserKey) < 0 || d.cmp(key, f.largest.UserKey) > 0 {
					continue
				}
				v, kind, ok, probeErr := d.probeTable(f, key, seqNum)
				if probeErr != nil {
					return nil, false, probeErr
				}
				if !ok {
					if seekFile == nil {
						seekFile = f
						seekLevel = level
					}
					continue
				}
				d.maybeRecordSeekLocked(seekFile, seekLevel, f)
				return resolveKind(v, kind)
			}
			continue
		}

		i := searchLevel(files, d.cmp, key)
		if i >= len(files) {
			continue
		}
		f := &files[i]
		if d.cmp(key, f.smallest.UserKey) < 0 || d.cmp(key, f.largest.UserKey) > 0 {
			continue
		}
		v, kind, ok, probeErr := d.probeTable(f, key, seqNum)
		if probeErr != nil {
			return nil, false, probeErr
		}
		if !ok {
			if seekFile == nil {
				seekFile = f
				seekLevel = level
			}
			continue
		}
		d.maybeRecordSeekLocked(seekFile, seekLevel, f)
		return resolveKind(v, kind)
	}
	return nil, false, nil
}

func resolveKind(value []byte, kind base.InternalKeyKind) ([]byte, bool, error) {
	if kind == base.InternalKeyKindDelete {
		return nil, false, nil
	}
	return value, true, nil
}

func (d *DB) probeTable(f *fileMetadata, key []byte, seqNum uint64) (value []byte, kind base.InternalKeyKind, found bool, err error) {
	reader, err := d.tableCache.getReader(f.fileNum)
	if err != nil {
		return nil, 0, false, err
	}
	v, k, ok, err := reader.Get(base.MakeInternalKey(key, seqNum, base.InternalKeyKindSet))
	if err != nil {
		return nil, 0, false, err
	}
	return v, k, ok, nil
}

// maybeRecordSeekLocked implements spec.md §4.4 step 4: a file probed but not
// answered, when a later file did answer, is charged one "seek"; exhausting
// its allowed_seeks budget nominates it for seek-driven compaction.
func (d *DB) maybeRecordSeekLocked(seekFile *fileMetadata, seekLevel int, answeredBy *fileMetadata) {
	if seekFile == nil || seekFile == answeredBy {
		return
	}
	if atomic.AddInt32(&seekFile.allowedSeeks, -1) <= 0 && !seekFile.markedForCompaction {
		seekFile.markedForCompaction = true
		d.maybeScheduleCompactionLocked()
	}
}

func searchLevel(files []fileMetadata, cmp base.Compare, key []byte) int {
	lo, hi := 0, len(files)
	for lo < hi {
		mid := (lo + hi) / 2
		if cmp(files[mid].largest.UserKey, key) < 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

func sortBySeqNumDesc(files []fileMetadata) {
	for i := 1; i < len(files); i++ {
		for j := i; j > 0 && files[j].largestSeqNum > files[j-1].largestSeqNum; j-- {
			files[j], files[j-1] = files[j-1], files[j]
		}
	}
}

// Set records key/value, waiting for the write to commit (and, if sync, for
// the WAL to be fsynced) before returning.
func (d *DB) Set(key, value []byte, sync bool) error {
	b := NewBatch()
	b.Set(key, value)
	return d.Apply(b, sync)
}

// Delete records a tombstone for key.
func (d *DB) Delete(key []byte, sync bool) error {
	b := NewBatch()
	b.Delete(key)
	return d.Apply(b, sync)
}

// Write commits an already-built Batch.
func (d *DB) Write(b *Batch, sync bool) error {
	return d.Apply(b, sync)
}

// Flush forces the mutable memtable to rotate into an immutable memtable
// and schedules it for a background flush to L0, regardless of how little
// data it holds, per spec.md §4.2's null-batch/force=true contract. It
// blocks until the rotation itself has happened, not until the resulting
// flush has completed.
func (d *DB) Flush() error {
	return d.Apply(NewBatch(), false)
}

// NewBatch returns an empty Batch for building up a set of operations to
// commit atomically via Write.
func (d *DB) NewBatch() *Batch { return NewBatch() }

// NewSnapshot pins the current sequence number, spec.md §3's Snapshot.
func (d *DB) NewSnapshot() *Snapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := &Snapshot{db: d, seqNum: d.mu.versions.visibleSeqNum}
	d.mu.snapshots.pushBack(s)
	return s
}

// NewIter returns an iterator over the store's current state.
func (d *DB) NewIter() (*Iterator, error) {
	d.mu.Lock()
	seqNum := d.mu.versions.visibleSeqNum
	d.mu.Unlock()
	return d.newIterInternal(seqNum)
}

// Metrics returns a point-in-time copy of the engine's metrics.
func (d *DB) Metrics() Metrics {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.mu.versions.metrics
}

// SSTables returns, per level, the metadata of every live on-disk table.
func (d *DB) SSTables() [][]TableInfo {
	d.mu.Lock()
	defer d.mu.Unlock()
	current := d.mu.versions.currentVersion()
	out := make([][]TableInfo, numLevels)
	for level, files := range current.files {
		for i := range files {
			out[level] = append(out[level], files[i].tableInfo())
		}
	}
	return out
}

// Close does not flush the mutable memtable: its writes are already in the
// WAL. It waits for any in-flight flush or compaction to finish, then
// releases the directory lock and file handles.
func (d *DB) Close() error {
	d.mu.Lock()
	if d.mu.closed {
		d.mu.Unlock()
		return ErrClosed
	}
	d.mu.closing = true
	for d.mu.compact.flushing || d.mu.compact.compacting {
		d.mu.compact.cond.Wait()
	}
	d.mu.closed = true
	d.mu.Unlock()

	// Wake any writer still queued so it observes d.mu.closed.
	d.mu.Lock()
	if d.mu.writers.head != nil {
		d.mu.writers.head.cond.Signal()
	}
	d.mu.Unlock()

	var err error
	if d.walWriter != nil {
		err = firstNonNilErr(err, d.walWriter.Close())
	}
	if d.walFile != nil {
		err = firstNonNilErr(err, d.walFile.Close())
	}
	err = firstNonNilErr(err, d.mu.versions.close())
	err = firstNonNilErr(err, d.tableCache.close())
	if d.dataDir != nil {
		err = firstNonNilErr(err, d.dataDir.Close())
	}
	if d.fileLock != nil {
		err = firstNonNilErr(err, d.fileLock.Close())
	}
	return err
}
