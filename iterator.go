// Copyright 2012 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package lsmkv

import (
	"github.com/tinsley-labs/lsmkv/internal/base"
)

// Iterator walks the store's key space in ascending order as of a fixed
// sequence number, spec.md §4.4: a merging iterator over the mutable
// memtable, the immutable memtable (if any), and every level's files,
// layered with a filter that for each user key surfaces only the newest
// entry at or below the snapshot and skips it entirely if that entry is a
// deletion. It pins the Version it was built from for its entire lifetime,
// so Close must be called once the iterator is no longer needed.
type Iterator struct {
	cmp     base.Compare
	iter    internalIterator
	seqNum  uint64
	version *version

	key   []byte
	keyBuf []byte
	value []byte
	valid bool
	err   error
}

func (d *DB) newIterInternal(seqNum uint64) (*Iterator, error) {
	d.mu.Lock()
	mutable := d.mu.mem.mutable.newIter()
	var immIter internalIterator
	if d.mu.mem.immutable != nil {
		immIter = d.mu.mem.immutable.newIter()
	}
	current := d.mu.versions.currentVersion()
	current.ref()
	d.mu.Unlock()

	iters := make([]internalIterator, 0, len(current.files[0])+numLevels+1)
	iters = append(iters, mutable)
	if immIter != nil {
		iters = append(iters, immIter)
	}
	for i := range current.files[0] {
		it, err := d.tableCache.newIter(&current.files[0][i])
		if err != nil {
			current.unref()
			return nil, err
		}
		iters = append(iters, it)
	}
	for level := 1; level < numLevels; level++ {
		if len(current.files[level]) == 0 {
			continue
		}
		iters = append(iters, newLevelIter(d.cmp, d.tableCache, current.files[level]))
	}

	return &Iterator{
		cmp:     d.cmp,
		iter:    newMergingIter(d.cmp, iters...),
		seqNum:  seqNum,
		version: current,
	}, nil
}

// findNextEntry advances past entries the snapshot cannot see, past repeated
// revisions of a user key past the first one, and past any revision whose
// newest visible entry is a deletion.
func (i *Iterator) findNextEntry() bool {
	i.valid = false
	for i.iter.Valid() {
		key := i.iter.Key()
		if key.SeqNum() > i.seqNum {
			i.iter.Next()
			continue
		}

		i.keyBuf = append(i.keyBuf[:0], key.UserKey...)
		i.key = i.keyBuf

		if key.Kind() == base.InternalKeyKindDelete {
			i.skipUserKey()
			continue
		}

		i.value = i.iter.Value()
		i.valid = true
		i.skipUserKey()
		return true
	}
	return false
}

// skipUserKey advances past every remaining revision of the current key,
// leaving the iterator positioned at the next distinct user key (or
// exhausted) so the following Next call doesn't re-surface them.
func (i *Iterator) skipUserKey() {
	for i.iter.Next() && i.cmp(i.iter.Key().UserKey, i.key) == 0 {
	}
}

// First moves to the first key.
func (i *Iterator) First() bool {
	if i.err != nil {
		return false
	}
	i.iter.First()
	return i.findNextEntry()
}

// SeekGE moves to the first key at or after key.
func (i *Iterator) SeekGE(key []byte) bool {
	if i.err != nil {
		return false
	}
	i.iter.SeekGE(key)
	return i.findNextEntry()
}

// Next advances to the next key.
func (i *Iterator) Next() bool {
	if i.err != nil || !i.valid {
		return false
	}
	return i.findNextEntry()
}

func (i *Iterator) Key() []byte   { return i.key }
func (i *Iterator) Value() []byte { return i.value }
func (i *Iterator) Valid() bool   { return i.valid }
func (i *Iterator) Error() error {
	if i.err != nil {
		return i.err
	}
	return i.iter.Error()
}

// Close releases the Version this iterator pinned.
func (i *Iterator) Close() error {
	if i.version != nil {
		i.version.unref()
		i.version = nil
	}
	return i.err
}
