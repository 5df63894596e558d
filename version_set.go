// Copyright 2012 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package lsmkv

import (
	"bytes"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"github.com/tinsley-labs/lsmkv/internal/base"
	"github.com/tinsley-labs/lsmkv/internal/record"
	"github.com/tinsley-labs/lsmkv/internal/vfs"
)

// versionSet manages the collection of immutable Versions named in spec.md
// §3/§4.1, and the creation of a new version by applying a versionEdit. Edits
// are logged to the manifest file, which is replayed on Open.
type versionSet struct {
	dirname string
	mu      *sync.Mutex
	opts    *Options
	fs      vfs.FS
	cmp     base.Compare
	cmpName string

	versions versionList
	picker   *compactionPicker

	metrics Metrics

	obsoleteFn        func(obsolete []uint64)
	obsoleteTables    []uint64
	obsoleteManifests []uint64

	// minUnflushedLogNum is the smallest WAL file number whose mutations have
	// not yet been flushed to an sstable.
	minUnflushedLogNum uint64

	// nextFileNum is a single counter assigning numbers to WAL, manifest, and
	// sstable files alike (spec.md §6).
	nextFileNum uint64

	// logSeqNum is the upper bound on sequence numbers assigned so far;
	// visibleSeqNum is the bound visible to new reads. Both are advanced by
	// the write queue.
	logSeqNum     uint64
	visibleSeqNum uint64

	manifestFileNum uint64
	manifestFile    vfs.File
	manifest        *record.Writer

	writing    bool
	writerCond sync.Cond
}

func (vs *versionSet) init(dirname string, opts *Options, mu *sync.Mutex) {
	vs.dirname = dirname
	vs.mu = mu
	vs.writerCond.L = mu
	vs.opts = opts
	vs.fs = opts.FS
	vs.cmp = opts.Comparer.Compare
	vs.cmpName = opts.Comparer.Name
	vs.versions.mu = mu
	vs.versions.init()
	vs.obsoleteFn = vs.addObsoleteLocked
	vs.nextFileNum = 1
	vs.metrics.init()
}

// create creates a version set for a fresh store.
func (vs *versionSet) create(dirname string, dir vfs.File, opts *Options, mu *sync.Mutex) error {
	vs.init(dirname, opts, mu)
	newVersion := &version{}
	vs.append(newVersion)
	vs.picker = newCompactionPicker(newVersion, vs.opts)

	vs.manifestFileNum = vs.getNextFileNum()
	if err := vs.createManifest(vs.dirname, vs.manifestFileNum); err != nil {
		return err
	}
	if err := vs.manifestFile.Sync(); err != nil {
		vs.opts.Logger.Fatalf("MANIFEST sync failed: %v", err)
	}
	if err := setCurrentFile(vs.fs, vs.dirname, vs.manifestFileNum); err != nil {
		vs.opts.Logger.Fatalf("MANIFEST set current failed: %v", err)
	}
	if err := dir.Sync(); err != nil {
		vs.opts.Logger.Fatalf("directory sync failed: %v", err)
	}
	if vs.opts.EventListener.ManifestCreated != nil {
		vs.opts.EventListener.ManifestCreated(vs.manifestFileNum)
	}
	return nil
}

// load loads the version set from an existing store's CURRENT + manifest.
func (vs *versionSet) load(dirname string, opts *Options, mu *sync.Mutex) error {
	vs.init(dirname, opts, mu)

	current, err := vs.fs.Open(makeFilename(vs.fs, dirname, fileTypeCurrent, 0))
	if err != nil {
		return fmt.Errorf("lsmkv: could not open CURRENT for %q: %v", dirname, err)
	}
	defer current.Close()
	stat, err := current.Stat()
	if err != nil {
		return err
	}
	n := stat.Size()
	if n == 0 || n > 4096 {
		return fmt.Errorf("lsmkv: CURRENT for %q is malformed", dirname)
	}
	b := make([]byte, n)
	if _, err := current.ReadAt(b, 0); err != nil {
		return err
	}
	if b[n-1] != '\n' {
		return fmt.Errorf("lsmkv: CURRENT for %q is malformed", dirname)
	}
	b = bytes.TrimSpace(b)

	_, manifestFileNum, ok := parseFilename(vs.fs, string(b))
	if !ok {
		return fmt.Errorf("lsmkv: MANIFEST name %q is malformed", b)
	}
	vs.manifestFileNum = manifestFileNum

	var bve bulkVersionEdit
	manifestFile, err := vs.fs.Open(vs.fs.PathJoin(dirname, string(b)))
	if err != nil {
		return fmt.Errorf("lsmkv: could not open manifest %q for %q: %v", b, dirname, err)
	}
	defer manifestFile.Close()
	rr := record.NewReader(manifestFile)
	for {
		r, err := rr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		payload, err := io.ReadAll(r)
		if err != nil {
			return err
		}
		var ve versionEdit
		if err := ve.decode(bytes.NewReader(payload)); err != nil {
			return err
		}
		if ve.comparatorName != "" && ve.comparatorName != vs.cmpName {
			return errors.Mark(fmt.Errorf("lsmkv: comparator name mismatch: manifest has %q, options have %q",
				ve.comparatorName, vs.cmpName), ErrInvalidArgument)
		}
		bve.accumulate(&ve)
		if ve.logNumber != 0 {
			vs.minUnflushedLogNum = ve.logNumber
		}
		if ve.nextFileNumber != 0 {
			vs.nextFileNum = ve.nextFileNumber
		}
		if ve.lastSequence != 0 {
			vs.logSeqNum = ve.lastSequence
			vs.visibleSeqNum = ve.lastSequence
		}
	}
	vs.markFileNumUsed(vs.minUnflushedLogNum)
	vs.markFileNumUsed(vs.manifestFileNum)

	newVersion, err := bve.apply(nil, vs.cmp)
	if err != nil {
		return err
	}
	vs.append(newVersion)
	vs.picker = newCompactionPicker(newVersion, vs.opts)

	for i := 0; i < numLevels; i++ {
		vs.metrics.Levels[i].NumFiles = int64(len(newVersion.files[i]))
		vs.metrics.Levels[i].Size = totalSize(newVersion.files[i])
	}
	return nil
}

func (vs *versionSet) close() error {
	if vs.manifestFile != nil {
		return vs.manifestFile.Close()
	}
	return nil
}

// logLock blocks until any in-flight manifest write completes, then claims
// the lock. DB.mu must be held.
func (vs *versionSet) logLock() {
	for vs.writing {
		vs.writerCond.Wait()
	}
	vs.writing = true
}

// logUnlock releases the manifest-writing lock. DB.mu must be held.
func (vs *versionSet) logUnlock() {
	if !vs.writing {
		vs.opts.Logger.Fatalf("MANIFEST not locked for writing")
	}
	vs.writing = false
	vs.writerCond.Signal()
}

// logAndApply logs ve to the manifest, applies it to the current version, and
// installs the result as current. DB.mu must be held and is released
// temporarily for file I/O. Requires the manifest lock (see logLock), and
// unconditionally releases it via logUnlock.
func (vs *versionSet) logAndApply(ve *versionEdit, dir vfs.File) error {
	if !vs.writing {
		vs.opts.Logger.Fatalf("MANIFEST not locked for writing")
	}
	defer vs.logUnlock()

	ve.nextFileNumber = vs.nextFileNum
	ve.lastSequence = atomic.LoadUint64(&vs.logSeqNum)
	currentVersion := vs.currentVersion()
	var newVersion *version

	var newManifestFileNum uint64
	if vs.manifest == nil {
		newManifestFileNum = vs.getNextFileNum()
	}

	var picker *compactionPicker
	if err := func() error {
		vs.mu.Unlock()
		defer vs.mu.Lock()

		var bve bulkVersionEdit
		bve.accumulate(ve)

		var err error
		newVersion, err = bve.apply(currentVersion, vs.cmp)
		if err != nil {
			return err
		}

		if newManifestFileNum != 0 {
			if err := vs.createManifest(vs.dirname, newManifestFileNum); err != nil {
				return err
			}
		}

		var buf bytes.Buffer
		if err := ve.encode(&buf); err != nil {
			return err
		}
		if err := vs.manifest.WriteRecord(buf.Bytes()); err != nil {
			vs.opts.Logger.Fatalf("MANIFEST write failed: %v", err)
			return err
		}
		if err := vs.manifestFile.Sync(); err != nil {
			vs.opts.Logger.Fatalf("MANIFEST sync failed: %v", err)
			return err
		}
		if newManifestFileNum != 0 {
			if err := setCurrentFile(vs.fs, vs.dirname, newManifestFileNum); err != nil {
				vs.opts.Logger.Fatalf("MANIFEST set current failed: %v", err)
				return err
			}
			if err := dir.Sync(); err != nil {
				vs.opts.Logger.Fatalf("directory sync failed: %v", err)
				return err
			}
			if vs.opts.EventListener.ManifestCreated != nil {
				vs.opts.EventListener.ManifestCreated(newManifestFileNum)
			}
		}
		picker = newCompactionPicker(newVersion, vs.opts)
		return nil
	}(); err != nil {
		return err
	}

	vs.append(newVersion)
	if ve.logNumber != 0 {
		vs.minUnflushedLogNum = ve.logNumber
	}
	if newManifestFileNum != 0 {
		if vs.manifestFileNum != 0 {
			vs.obsoleteManifests = append(vs.obsoleteManifests, vs.manifestFileNum)
		}
		vs.manifestFileNum = newManifestFileNum
	}
	vs.picker = picker

	for i := 0; i < numLevels; i++ {
		vs.metrics.Levels[i].NumFiles = int64(len(newVersion.files[i]))
		vs.metrics.Levels[i].Size = totalSize(newVersion.files[i])
	}
	return nil
}

func (vs *versionSet) incrementCompactions() { vs.metrics.Compact.Count++ }
func (vs *versionSet) incrementFlushes()     { vs.metrics.Flush.Count++ }

// createManifest creates a manifest file holding a snapshot of the current
// version, the entry point for a fresh store or manifest rollover.
func (vs *versionSet) createManifest(dirname string, fileNum uint64) (err error) {
	var (
		filename     = makeFilename(vs.fs, dirname, fileTypeManifest, fileNum)
		manifestFile vfs.File
		manifest     *record.Writer
	)
	defer func() {
		if manifest != nil {
			manifest.Close()
		}
		if manifestFile != nil {
			manifestFile.Close()
		}
		if err != nil {
			vs.fs.Remove(filename)
		}
	}()
	manifestFile, err = vs.fs.Create(filename)
	if err != nil {
		return err
	}
	manifest = record.NewWriter(manifestFile)

	snapshot := versionEdit{comparatorName: vs.cmpName}
	if vs.versions.empty() {
		snapshot.nextFileNumber = vs.nextFileNum
	} else {
		for level, files := range vs.currentVersion().files {
			for _, meta := range files {
				snapshot.newFiles = append(snapshot.newFiles, newFileEntry{level: level, meta: meta})
			}
		}
	}

	var buf bytes.Buffer
	if err := snapshot.encode(&buf); err != nil {
		return err
	}
	if err := manifest.WriteRecord(buf.Bytes()); err != nil {
		return err
	}

	vs.manifest, manifest = manifest, nil
	vs.manifestFile, manifestFile = manifestFile, nil
	return nil
}

func (vs *versionSet) markFileNumUsed(fileNum uint64) {
	if vs.nextFileNum <= fileNum {
		vs.nextFileNum = fileNum + 1
	}
}

func (vs *versionSet) getNextFileNum() uint64 {
	x := vs.nextFileNum
	vs.nextFileNum++
	return x
}

func (vs *versionSet) append(v *version) {
	if v.refs != 0 {
		panic(errors.AssertionFailedf("lsmkv: version should be unreferenced"))
	}
	if !vs.versions.empty() {
		vs.versions.back().unrefLocked()
	}
	v.vs = vs
	v.ref()
	vs.versions.pushBack(v)
}

func (vs *versionSet) currentVersion() *version { return vs.versions.back() }

func (vs *versionSet) addLiveFileNums(m map[uint64]struct{}) {
	current := vs.currentVersion()
	for v := vs.versions.front(); ; v = v.next {
		for _, ff := range v.files {
			for _, f := range ff {
				m[f.fileNum] = struct{}{}
			}
		}
		if v == current {
			break
		}
	}
}

func (vs *versionSet) addObsoleteLocked(obsolete []uint64) {
	vs.obsoleteTables = append(vs.obsoleteTables, obsolete...)
}
