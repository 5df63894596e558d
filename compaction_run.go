// Copyright 2013 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package lsmkv

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/tinsley-labs/lsmkv/internal/base"
	"github.com/tinsley-labs/lsmkv/internal/record"
	"github.com/tinsley-labs/lsmkv/internal/sstable"
)

// errCompactionAborted signals that a merge compaction stopped early
// because a flush became ready or the store is closing (spec.md §4.7 steps
// 5-6: "flushes have priority over compaction", and shutdown discards
// in-flight compaction outputs). It is never surfaced to a caller as a
// failure — it just means the work gets picked up again later.
var errCompactionAborted = errors.New("lsmkv: compaction aborted for a pending flush or shutdown")

// newMemTableLocked allocates a fresh mutable memtable for logNum. DB.mu
// must be held.
func (d *DB) newMemTableLocked(logNum uint64) *memTable {
	return newMemTable(d.cmp, logNum)
}

// makeRoomForWriteLocked implements spec.md §4.3: ensure the mutable
// memtable has room for the leader's upcoming write (or, if force, rotate
// unconditionally), waiting out backpressure from a pending flush or an
// overfull L0 along the way. DB.mu is held throughout, though it is dropped
// and reacquired around the one-millisecond slowdown sleep.
func (d *DB) makeRoomForWriteLocked(force bool) error {
	delayed := false
	for {
		if d.mu.backgroundErr != nil {
			return d.mu.backgroundErr
		}

		l0Files := len(d.mu.versions.currentVersion().files[0])

		if !force && l0Files > l0SlowdownWritesTrigger && !delayed {
			delayed = true
			d.mu.Unlock()
			time.Sleep(time.Millisecond)
			d.mu.Lock()
			continue
		}

		if !force && d.mu.mem.mutable.approximateBytes() <= int64(d.opts.WriteBufferSize) {
			return nil
		}

		if d.mu.mem.immutable != nil {
			d.mu.compact.cond.Wait()
			continue
		}

		if l0Files >= l0StopWritesTrigger {
			d.mu.compact.cond.Wait()
			continue
		}

		newLogNum := d.mu.versions.getNextFileNum()
		newLogFile, err := d.fs.Create(makeFilename(d.fs, d.dirname, fileTypeLog, newLogNum))
		if err != nil {
			return err
		}

		d.walMu.Lock()
		oldWriter, oldFile := d.walWriter, d.walFile
		d.walWriter = record.NewWriter(newLogFile)
		d.walFile = newLogFile
		d.walMu.Unlock()
		if oldWriter != nil {
			oldWriter.Close()
		}
		if oldFile != nil {
			oldFile.Close()
		}
		if d.opts.EventListener.WALCreated != nil {
			d.opts.EventListener.WALCreated(newLogNum)
		}

		d.mu.mem.immutable = d.mu.mem.mutable
		d.mu.mem.mutable = d.newMemTableLocked(newLogNum)
		force = false
		d.maybeScheduleCompactionLocked()
	}
}

// maybeScheduleCompactionLocked implements spec.md §4.5: at most one
// background task outstanding, a no-op absent work. DB.mu must be held.
func (d *DB) maybeScheduleCompactionLocked() {
	if d.mu.closing || d.mu.closed || d.mu.backgroundErr != nil {
		return
	}
	if d.mu.compact.flushing || d.mu.compact.compacting {
		return
	}
	hasWork := d.mu.mem.immutable != nil || len(d.mu.compact.manual) > 0
	if !hasWork {
		picker := d.mu.versions.picker
		hasWork = picker != nil && len(picker.queue) > 0
	}
	if !hasWork {
		return
	}
	if d.mu.mem.immutable != nil {
		d.mu.compact.flushing = true
	} else {
		d.mu.compact.compacting = true
	}
	go d.backgroundCompact()
}

// backgroundCompact is the background task spec.md §4.5 describes: flush if
// an immutable memtable is waiting, else run one pick-and-compact step, then
// reschedule if work remains.
func (d *DB) backgroundCompact() {
	d.mu.Lock()
	defer d.mu.Unlock()

	var err error
	if d.mu.mem.immutable != nil {
		err = d.flushLocked()
		d.mu.compact.flushing = false
	} else {
		err = d.runOnePickedCompactionLocked()
		d.mu.compact.compacting = false
	}
	if err != nil {
		d.mu.backgroundErr = err
	}
	d.mu.compact.cond.Broadcast()
	d.maybeScheduleCompactionLocked()
}

// runOnePickedCompactionLocked picks either the pending manual compaction or
// an auto (size/seek-driven) one and runs it. DB.mu is held on entry; it is
// dropped during file I/O inside compactDiskTablesLocked.
func (d *DB) runOnePickedCompactionLocked() error {
	picker := d.mu.versions.picker
	inProgress := d.inProgressInfosLocked()

	if len(d.mu.compact.manual) > 0 {
		manual := d.mu.compact.manual[0]
		c, retryLater := picker.pickManual(manual, inProgress)
		if retryLater {
			return nil
		}
		if c == nil {
			d.mu.compact.manual = d.mu.compact.manual[1:]
			manual.done <- nil
			return nil
		}
		err := d.runCompactionLocked(c)
		if errors.Is(err, errCompactionAborted) && !errors.Is(err, ErrShutdown) {
			// Leave manual at the head of the queue: a flush preempted it, so
			// the same request is retried once that's handled rather than
			// being dropped. A shutdown abort is delivered to the caller.
			return nil
		}
		d.mu.compact.manual = d.mu.compact.manual[1:]
		manual.done <- err
		return err
	}

	c := picker.pickAuto(inProgress)
	if c == nil {
		return nil
	}
	err := d.runCompactionLocked(c)
	if errors.Is(err, errCompactionAborted) {
		return nil
	}
	return err
}

func (d *DB) inProgressInfosLocked() []compactionInfo {
	out := make([]compactionInfo, len(d.mu.compact.inProgress))
	for i, c := range d.mu.compact.inProgress {
		out[i] = c
	}
	return out
}

// runCompactionLocked executes c: a trivial move when the inputs permit it
// (spec.md §4.5 step 3), otherwise a full merge compaction (4.7).
func (d *DB) runCompactionLocked(c *compaction) error {
	if len(c.inputs[0]) == 1 && len(c.inputs[1]) == 0 &&
		totalSize(c.inputs[2]) <= uint64(maxGrandParentOverlapFactor)*uint64(c.maxOutputFileSize()) {
		return d.trivialMoveLocked(c)
	}

	d.mu.compact.inProgress = append(d.mu.compact.inProgress, c)
	ve, err := d.compactDiskTablesLocked(c)
	d.removeInProgressLocked(c)
	if err != nil {
		return err
	}

	d.mu.versions.logLock()
	if err := d.mu.versions.logAndApply(ve, d.dataDir); err != nil {
		return err
	}
	d.mu.versions.incrementCompactions()
	d.deleteObsoleteFilesLocked()
	return nil
}

func (d *DB) removeInProgressLocked(c *compaction) {
	for i, x := range d.mu.compact.inProgress {
		if x == c {
			d.mu.compact.inProgress = append(d.mu.compact.inProgress[:i], d.mu.compact.inProgress[i+1:]...)
			return
		}
	}
}

// trivialMoveLocked moves c.inputs[0][0] from startLevel to outputLevel
// without rewriting its bytes (spec.md §4.5 step 3).
func (d *DB) trivialMoveLocked(c *compaction) error {
	meta := c.inputs[0][0]
	ve := &versionEdit{
		deletedFiles: map[deletedFileEntry]bool{
			{level: c.startLevel, fileNum: meta.fileNum}: true,
		},
		newFiles: []newFileEntry{{level: c.outputLevel, meta: meta}},
	}
	d.mu.versions.logLock()
	if err := d.mu.versions.logAndApply(ve, d.dataDir); err != nil {
		return err
	}
	d.mu.versions.incrementCompactions()
	d.deleteObsoleteFilesLocked()
	return nil
}

// flushLocked writes the immutable memtable to a new L0 table (spec.md
// §4.6), collapsing entries the same way a compaction would: a flushed
// memtable can still hold more than one revision of a user key, and a
// Delete can never be dropped at L0 since lower levels may still hold the
// value it shadows.
func (d *DB) flushLocked() error {
	imm := d.mu.mem.immutable
	snaps := d.mu.snapshots.toSlice()

	d.mu.Unlock()
	meta, err := d.writeTable(newMergingIter(d.cmp, imm.newIter()), snaps, func([]byte) bool { return false }, 0)
	d.mu.Lock()
	if err != nil {
		return err
	}
	if meta == nil {
		// The memtable held no entries (a forced rotation of an empty
		// memtable); still advance minUnflushedLogNum so the WAL segment is
		// freed.
		ve := &versionEdit{logNumber: d.mu.mem.mutable.logNum}
		d.mu.versions.logLock()
		if err := d.mu.versions.logAndApply(ve, d.dataDir); err != nil {
			return err
		}
	} else {
		ve := &versionEdit{
			logNumber: d.mu.mem.mutable.logNum,
			newFiles:  []newFileEntry{{level: 0, meta: *meta}},
		}
		d.mu.versions.logLock()
		if err := d.mu.versions.logAndApply(ve, d.dataDir); err != nil {
			return err
		}
	}
	d.mu.versions.incrementFlushes()
	d.mu.mem.immutable = nil
	d.deleteObsoleteFilesLocked()
	return nil
}

// compactDiskTablesLocked runs a full merge compaction over c's inputs,
// splitting output across as many files as spec.md §4.7 calls for
// (max_output_file_size, shouldStopBefore's grandparent-overlap bound).
// DB.mu is dropped for the duration of the I/O.
func (d *DB) compactDiskTablesLocked(c *compaction) (*versionEdit, error) {
	snaps := d.mu.snapshots.toSlice()

	d.mu.Unlock()
	ve, err := d.runMergeCompaction(c, snaps)
	d.mu.Lock()
	return ve, err
}

func (d *DB) runMergeCompaction(c *compaction, snaps []uint64) (*versionEdit, error) {
	iters := make([]internalIterator, 0, len(c.inputs[0])+len(c.inputs[1]))
	for level := 0; level < 2; level++ {
		for i := range c.inputs[level] {
			it, err := d.tableCache.newIter(&c.inputs[level][i])
			if err != nil {
				return nil, err
			}
			iters = append(iters, it)
		}
	}
	merged := newMergingIter(d.cmp, iters...)
	isBase := func(ukey []byte) bool { return c.isBaseLevelForUkey(d.cmp, c.outputLevel, ukey) }

	ve := &versionEdit{deletedFiles: map[deletedFileEntry]bool{}}
	for level := 0; level < 2; level++ {
		for _, f := range c.inputs[level] {
			ve.deletedFiles[deletedFileEntry{level: c.startLevel + level, fileNum: f.fileNum}] = true
		}
	}

	citer := newCompactionIter(merged, d.cmp, snaps, isBase)
	aborted, closing := false, false
	for valid := citer.First(); valid; {
		if aborted, closing = d.compactionAbortState(); aborted {
			break
		}
		meta, last, err := d.writeOneOutput(citer, c)
		if err != nil {
			return nil, err
		}
		if meta != nil {
			ve.newFiles = append(ve.newFiles, newFileEntry{level: c.outputLevel, meta: *meta})
		}
		valid = last
	}
	if aborted {
		// Discard every output written so far: none of them were installed
		// into a Version, so they are not live files, just orphaned bytes
		// on disk.
		for _, nf := range ve.newFiles {
			d.tableCache.evict(nf.meta.fileNum)
			_ = d.fs.Remove(makeFilename(d.fs, d.dirname, fileTypeTable, nf.meta.fileNum))
		}
		if closing {
			return nil, errors.Mark(errCompactionAborted, ErrShutdown)
		}
		return nil, errCompactionAborted
	}
	return ve, nil
}

// compactionAbortState reports whether a running merge compaction should
// stop before writing its next output file: a newly-rotated immutable
// memtable is waiting to flush (spec.md §4.7 step 5, "flushes have priority
// over compaction"), or the store is closing (step 6, discard in-flight
// compaction outputs rather than racing Close).
func (d *DB) compactionAbortState() (abort, closing bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	closing = d.mu.closing
	return d.mu.mem.immutable != nil || closing, closing
}

// writeOneOutput writes entries from citer (already positioned at a valid
// entry) into one new table, stopping when the size cap or
// shouldStopBefore's grandparent-overlap bound is reached, and reports
// whether citer is still valid afterward.
func (d *DB) writeOneOutput(citer *compactionIter, c *compaction) (meta *fileMetadata, stillValid bool, err error) {
	d.mu.Lock()
	fileNum := d.mu.versions.getNextFileNum()
	d.mu.Unlock()

	file, err := d.fs.Create(makeFilename(d.fs, d.dirname, fileTypeTable, fileNum))
	if err != nil {
		return nil, false, err
	}
	w := sstable.NewWriter(file, sstable.WriterOptions{
		Compare:              d.cmp,
		BlockSize:            d.opts.BlockSize,
		BlockRestartInterval: d.opts.BlockRestartInterval,
		Compression:          d.opts.Compression,
		FilterBitsPerKey:     d.opts.FilterBitsPerKey,
	})

	maxSize := uint64(c.maxOutputFileSize())
	var approxSize uint64
	var smallest, largest base.InternalKey
	haveKey := false
	valid := true

	for {
		key := citer.Key()
		value := citer.Value()
		if haveKey && (approxSize >= maxSize || c.shouldStopBefore(key)) {
			break
		}
		if err := w.Add(key, value); err != nil {
			file.Close()
			return nil, false, err
		}
		if !haveKey {
			smallest = key.Clone()
			haveKey = true
		}
		largest = key.Clone()
		approxSize += uint64(key.Size() + len(value) + 8)

		valid = citer.Next()
		if !valid {
			break
		}
	}

	size, _, _, err := w.Close()
	if err != nil {
		file.Close()
		return nil, false, err
	}
	if err := file.Sync(); err != nil {
		file.Close()
		return nil, false, err
	}
	if err := file.Close(); err != nil {
		return nil, false, err
	}
	if !haveKey {
		d.fs.Remove(makeFilename(d.fs, d.dirname, fileTypeTable, fileNum))
		return nil, valid, nil
	}

	refs := new(int32)
	*refs = 1
	meta = &fileMetadata{
		refs:           refs,
		fileNum:        fileNum,
		size:           size,
		smallest:       smallest,
		largest:        largest,
		smallestSeqNum: smallest.SeqNum(),
		largestSeqNum:  largest.SeqNum(),
		allowedSeeks:   newAllowedSeeks(size),
	}
	return meta, valid, nil
}

// writeTable writes every surviving entry of iter (via a fresh
// compactionIter) to a single new table, used by flushLocked. It returns a
// nil meta if every entry collapsed away.
func (d *DB) writeTable(iter *mergingIter, snaps []uint64, isBase func([]byte) bool, outputLevel int) (*fileMetadata, error) {
	citer := newCompactionIter(iter, d.cmp, snaps, isBase)
	if !citer.First() {
		return nil, nil
	}

	d.mu.Lock()
	fileNum := d.mu.versions.getNextFileNum()
	d.mu.Unlock()

	file, err := d.fs.Create(makeFilename(d.fs, d.dirname, fileTypeTable, fileNum))
	if err != nil {
		return nil, err
	}
	w := sstable.NewWriter(file, sstable.WriterOptions{
		Compare:              d.cmp,
		BlockSize:            d.opts.BlockSize,
		BlockRestartInterval: d.opts.BlockRestartInterval,
		Compression:          d.opts.Compression,
		FilterBitsPerKey:     d.opts.FilterBitsPerKey,
	})

	var smallest, largest base.InternalKey
	haveKey := false
	for valid := true; valid; valid = citer.Next() {
		key := citer.Key()
		if err := w.Add(key, citer.Value()); err != nil {
			file.Close()
			return nil, err
		}
		if !haveKey {
			smallest = key.Clone()
			haveKey = true
		}
		largest = key.Clone()
	}

	size, _, _, err := w.Close()
	if err != nil {
		file.Close()
		return nil, err
	}
	if err := file.Sync(); err != nil {
		file.Close()
		return nil, err
	}
	if err := file.Close(); err != nil {
		return nil, err
	}

	refs := new(int32)
	*refs = 1
	return &fileMetadata{
		refs:           refs,
		fileNum:        fileNum,
		size:           size,
		smallest:       smallest,
		largest:        largest,
		smallestSeqNum: smallest.SeqNum(),
		largestSeqNum:  largest.SeqNum(),
		allowedSeeks:   newAllowedSeeks(size),
	}, nil
}

// deleteObsoleteFilesLocked removes table and manifest files no live Version
// references, honoring Options.Cleaner (spec.md §9's pluggable disposal
// policy). DB.mu is held on entry and throughout: deletion itself is cheap
// and the versionSet's obsolete lists must not race with a concurrent
// logAndApply appending to them.
func (d *DB) deleteObsoleteFilesLocked() {
	obsoleteTables := d.mu.versions.obsoleteTables
	d.mu.versions.obsoleteTables = nil
	obsoleteManifests := d.mu.versions.obsoleteManifests
	d.mu.versions.obsoleteManifests = nil

	for _, fileNum := range obsoleteTables {
		d.tableCache.evict(fileNum)
		path := makeFilename(d.fs, d.dirname, fileTypeTable, fileNum)
		if err := d.opts.Cleaner.Clean(d.fs, fileTypeTable, path); err != nil && d.opts.Logger != nil {
			d.opts.Logger.Infof("failed to clean %s: %v", path, err)
		}
	}
	for _, fileNum := range obsoleteManifests {
		path := makeFilename(d.fs, d.dirname, fileTypeManifest, fileNum)
		if err := d.opts.Cleaner.Clean(d.fs, fileTypeManifest, path); err != nil && d.opts.Logger != nil {
			d.opts.Logger.Infof("failed to clean %s: %v", path, err)
		}
	}
}

// CompactRange requests that the key range [start, end] (either may be nil
// for an open bound) be compacted out of L0 and down, spec.md §4.8. It
// blocks until every slice of the range has been compacted.
func (d *DB) CompactRange(start, end []byte) error {
	d.mu.Lock()
	level := 0
	for {
		manual := &manualCompaction{level: level, outputLevel: level + 1, start: start, end: end, done: make(chan error, 1)}
		d.mu.compact.manual = append(d.mu.compact.manual, manual)
		d.maybeScheduleCompactionLocked()
		d.mu.Unlock()

		err := <-manual.done
		if err != nil {
			return err
		}

		d.mu.Lock()
		level++
		if level >= numLevels-1 {
			d.mu.Unlock()
			return nil
		}
	}
}
