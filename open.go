// Copyright 2012 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package lsmkv

import (
	"os"

	"github.com/tinsley-labs/lsmkv/internal/record"
)

// Open opens (or creates) the store at dirname, per spec.md §6's
// create_if_missing/error_if_exists configuration: acquires the directory
// lock, loads or creates the version set and manifest, replays any WAL left
// by a prior session (tolerating a torn tail, spec.md §7), and rotates onto
// a fresh WAL before returning.
func Open(dirname string, opts *Options) (*DB, error) {
	o := *opts.EnsureDefaults()
	opts = &o

	if opts.CreateIfMissing {
		if err := opts.FS.MkdirAll(dirname, 0755); err != nil {
			return nil, err
		}
	}

	fileLock, err := opts.FS.Lock(makeFilename(opts.FS, dirname, fileTypeLock, 0))
	if err != nil {
		return nil, err
	}
	closeOnErr := func(err error) (*DB, error) {
		fileLock.Close()
		return nil, err
	}

	dataDir, err := opts.FS.OpenDir(dirname)
	if err != nil {
		return closeOnErr(err)
	}

	_, statErr := opts.FS.Stat(makeFilename(opts.FS, dirname, fileTypeCurrent, 0))
	exists := statErr == nil
	if exists && opts.ErrorIfExists {
		return closeOnErr(ErrInvalidArgument)
	}
	if !exists && !opts.CreateIfMissing {
		return closeOnErr(ErrInvalidArgument)
	}

	d := &DB{
		dirname:  dirname,
		opts:     opts,
		cmp:      opts.Comparer.Compare,
		fs:       opts.FS,
		dataDir:  dataDir,
		fileLock: fileLock,
	}
	d.mu.mem.cond.L = &d.mu.Mutex
	d.mu.compact.cond.L = &d.mu.Mutex
	d.mu.snapshots.init()

	if !exists {
		if err := d.mu.versions.create(dirname, dataDir, opts, &d.mu.Mutex); err != nil {
			return closeOnErr(err)
		}
	} else {
		if err := d.mu.versions.load(dirname, opts, &d.mu.Mutex); err != nil {
			return closeOnErr(err)
		}
	}

	d.tableCache = newTableCache(dirname, opts.FS, d.cmp, opts.MaxOpenFiles-10)
	d.mu.mem.mutable = newMemTable(d.cmp, d.mu.versions.minUnflushedLogNum)

	if exists && d.mu.versions.minUnflushedLogNum != 0 {
		logFile, err := opts.FS.Open(makeFilename(opts.FS, dirname, fileTypeLog, d.mu.versions.minUnflushedLogNum))
		if err != nil && !os.IsNotExist(err) {
			return closeOnErr(err)
		}
		if err == nil {
			lastSeqNum, replayErr := d.replayWAL(d.mu.mem.mutable, logFile)
			logFile.Close()
			if replayErr != nil {
				return closeOnErr(replayErr)
			}
			if lastSeqNum > d.mu.versions.logSeqNum {
				d.mu.versions.logSeqNum = lastSeqNum - 1
				d.mu.versions.visibleSeqNum = lastSeqNum - 1
			}
		}
	}

	newLogNum := d.mu.versions.getNextFileNum()
	newLogFile, err := opts.FS.Create(makeFilename(opts.FS, dirname, fileTypeLog, newLogNum))
	if err != nil {
		return closeOnErr(err)
	}
	d.walFile = newLogFile
	d.walWriter = record.NewWriter(newLogFile)
	d.mu.mem.mutable.logNum = newLogNum

	d.mu.Lock()
	d.mu.versions.logLock()
	ve := &versionEdit{logNumber: newLogNum}
	err = d.mu.versions.logAndApply(ve, d.dataDir)
	if err == nil {
		d.maybeScheduleCompactionLocked()
	}
	d.mu.Unlock()
	if err != nil {
		return closeOnErr(err)
	}

	return d, nil
}
