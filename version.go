// Copyright 2012 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package lsmkv

import (
	"bytes"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/tinsley-labs/lsmkv/internal/base"
)

// numLevels is the fixed level count spec.md §3 names (L0 through L6).
const numLevels = 7

// fileMetadata holds the metadata for an on-disk table, spec.md §3's
// FileMetaData.
type fileMetadata struct {
	// refs is a pointer because fileMetadata is copied by value from version
	// to version, but the reference count must be shared across every copy.
	refs *int32

	fileNum uint64
	size    uint64

	smallest base.InternalKey
	largest  base.InternalKey

	smallestSeqNum uint64
	largestSeqNum  uint64

	// allowedSeeks is the seek-driven compaction budget, spec.md §3's
	// FileMetaData invariant "allowed_seeks >= 0 starts at max(100,
	// file_size/16KiB)": decremented whenever a read traverses this file
	// without answering (db.go's maybeRecordSeekLocked); reaching zero
	// nominates it for compaction regardless of level score.
	allowedSeeks int32

	// markedForCompaction records an exhausted seek budget (set by db.go's
	// maybeRecordSeekLocked), so the picker favors this file's level even
	// absent a size trigger.
	markedForCompaction bool
}

// newAllowedSeeks computes the initial seek budget for a file of the given
// size, spec.md §3's FileMetaData invariant.
func newAllowedSeeks(size uint64) int32 {
	n := size / (16 << 10)
	if n < 100 {
		n = 100
	}
	return int32(n)
}

func (m *fileMetadata) String() string {
	return fmt.Sprintf("%06d:%s-%s", m.fileNum, m.smallest, m.largest)
}

func (m *fileMetadata) tableInfo() TableInfo {
	return TableInfo{
		FileNum:  m.fileNum,
		Size:     m.size,
		Smallest: m.smallest,
		Largest:  m.largest,
	}
}

func totalSize(f []fileMetadata) (size uint64) {
	for _, x := range f {
		size += x.size
	}
	return size
}

// ikeyRange returns the minimum smallest and maximum largest internal key
// across f0 and f1, used when picking compaction inputs.
func ikeyRange(ucmp base.Compare, f0, f1 []fileMetadata) (smallest, largest base.InternalKey) {
	first := true
	for _, f := range [2][]fileMetadata{f0, f1} {
		for _, meta := range f {
			if first {
				first = false
				smallest, largest = meta.smallest, meta.largest
				continue
			}
			if base.InternalCompare(ucmp, meta.smallest, smallest) < 0 {
				smallest = meta.smallest
			}
			if base.InternalCompare(ucmp, meta.largest, largest) > 0 {
				largest = meta.largest
			}
		}
	}
	return smallest, largest
}

// bySeqNum orders L0 files by increasing largest sequence number, oldest
// first; the read path walks them from the back so the newest is probed first.
type bySeqNum []fileMetadata

func (b bySeqNum) Len() int { return len(b) }
func (b bySeqNum) Less(i, j int) bool {
	if b[i].largestSeqNum != b[j].largestSeqNum {
		return b[i].largestSeqNum < b[j].largestSeqNum
	}
	if b[i].smallestSeqNum != b[j].smallestSeqNum {
		return b[i].smallestSeqNum < b[j].smallestSeqNum
	}
	return b[i].fileNum < b[j].fileNum
}
func (b bySeqNum) Swap(i, j int) { b[i], b[j] = b[j], b[i] }

type bySmallest struct {
	dat []fileMetadata
	cmp base.Compare
}

func (b bySmallest) Len() int { return len(b.dat) }
func (b bySmallest) Less(i, j int) bool {
	return base.InternalCompare(b.cmp, b.dat[i].smallest, b.dat[j].smallest) < 0
}
func (b bySmallest) Swap(i, j int) { b.dat[i], b.dat[j] = b.dat[j], b.dat[i] }

// version is an immutable snapshot of the LSM tree's file layout, spec.md
// §3's Version: one file list per level, reference-counted while a read
// (iterator or Get) or the current version pointer holds it alive.
//
// L0 files are sorted by increasing fileNum / seqNum and may overlap in key
// range. Files at any level >= 1 are sorted by key range and never overlap
// within that level.
type version struct {
	refs int32

	files [numLevels][]fileMetadata

	vs *versionSet

	list       *versionList
	prev, next *version
}

func (v *version) String() string {
	var buf bytes.Buffer
	for level := 0; level < numLevels; level++ {
		if len(v.files[level]) == 0 {
			continue
		}
		fmt.Fprintf(&buf, "%d:", level)
		for j := range v.files[level] {
			f := &v.files[level][j]
			fmt.Fprintf(&buf, " %s-%s", f.smallest.UserKey, f.largest.UserKey)
		}
		fmt.Fprintf(&buf, "\n")
	}
	return buf.String()
}

func (v *version) ref() { atomic.AddInt32(&v.refs, 1) }

func (v *version) unref() {
	if atomic.AddInt32(&v.refs, -1) == 0 {
		obsolete := v.unrefFiles()
		l := v.list
		l.mu.Lock()
		l.remove(v)
		v.vs.addObsoleteLocked(obsolete)
		l.mu.Unlock()
	}
}

// unrefLocked is unref's counterpart for a version already unlinked from (or
// about to be unlinked from) versionList under its lock, used when appending
// a new current version displaces the previous one.
func (v *version) unrefLocked() {
	if atomic.AddInt32(&v.refs, -1) == 0 {
		v.list.remove(v)
		v.vs.addObsoleteLocked(v.unrefFiles())
	}
}

func (v *version) unrefFiles() []uint64 {
	var obsolete []uint64
	for _, files := range v.files {
		for i := range files {
			f := &files[i]
			if atomic.AddInt32(f.refs, -1) == 0 {
				obsolete = append(obsolete, f.fileNum)
			}
		}
	}
	return obsolete
}

// overlaps returns every file in v.files[level] whose user key range
// intersects [start, end]. A nil start or end is unbounded (spec.md's
// compact_range(begin, end), which callers may leave open-ended at either
// side to mean "from the first key" or "through the last key"). At level 0,
// ranges may overlap each other, so the search range is expanded to the
// union of every match found so far and repeated until it stabilizes.
func (v *version) overlaps(level int, cmp base.Compare, start, end []byte) (ret []fileMetadata) {
	if level == 0 {
	loop:
		for {
			for _, meta := range v.files[level] {
				smallest := meta.smallest.UserKey
				largest := meta.largest.UserKey
				if start != nil && cmp(largest, start) < 0 {
					continue
				}
				if end != nil && cmp(smallest, end) > 0 {
					continue
				}
				ret = append(ret, meta)

				restart := false
				if start != nil && cmp(smallest, start) < 0 {
					start = smallest
					restart = true
				}
				if end != nil && cmp(largest, end) > 0 {
					end = largest
					restart = true
				}
				if restart {
					ret = ret[:0]
					continue loop
				}
			}
			return ret
		}
	}

	files := v.files[level]
	lower := 0
	if start != nil {
		lower = sort.Search(len(files), func(i int) bool {
			return cmp(files[i].largest.UserKey, start) >= 0
		})
	}
	upper := len(files)
	if end != nil {
		upper = sort.Search(len(files), func(i int) bool {
			return cmp(files[i].smallest.UserKey, end) > 0
		})
	}
	if lower >= upper {
		return nil
	}
	return files[lower:upper]
}

// checkOrdering validates the invariants spec.md §3 places on a Version's
// file lists: L0 files increasing by seqNum, L>=1 files increasing and
// non-overlapping by key range.
func (v *version) checkOrdering(cmp base.Compare) error {
	for level, ff := range v.files {
		if level == 0 {
			for i := 1; i < len(ff); i++ {
				prev, f := &ff[i-1], &ff[i]
				if prev.largestSeqNum >= f.largestSeqNum {
					return fmt.Errorf("L0 files not in increasing largest seqNum order: %d, %d",
						prev.largestSeqNum, f.largestSeqNum)
				}
			}
		} else {
			for i := 1; i < len(ff); i++ {
				prev, f := &ff[i-1], &ff[i]
				if base.InternalCompare(cmp, prev.largest, f.smallest) >= 0 {
					return fmt.Errorf("L%d files overlap: %s, %s", level, prev.largest, f.smallest)
				}
				if base.InternalCompare(cmp, f.smallest, f.largest) > 0 {
					return fmt.Errorf("L%d file has inconsistent bounds: %s, %s", level, f.smallest, f.largest)
				}
			}
		}
	}
	return nil
}

// versionList is the doubly-linked list of live Versions (spec.md §3): the
// dummy root simplifies insertion/removal at either end.
type versionList struct {
	mu   *sync.Mutex
	root version
}

func (l *versionList) init() {
	l.root.next = &l.root
	l.root.prev = &l.root
}

func (l *versionList) empty() bool { return l.root.next == &l.root }
func (l *versionList) front() *version { return l.root.next }
func (l *versionList) back() *version  { return l.root.prev }

func (l *versionList) pushBack(v *version) {
	if v.list != nil || v.prev != nil || v.next != nil {
		panic("lsmkv: version list is inconsistent")
	}
	v.prev = l.root.prev
	v.prev.next = v
	v.next = &l.root
	v.next.prev = v
	v.list = l
}

func (l *versionList) remove(v *version) {
	if v == &l.root {
		panic("lsmkv: cannot remove version list root node")
	}
	if v.list != l {
		panic("lsmkv: version list is inconsistent")
	}
	v.prev.next = v.next
	v.next.prev = v.prev
	v.next = nil
	v.prev = nil
	v.list = nil
}
