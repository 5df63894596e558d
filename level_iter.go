// Copyright 2018 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package lsmkv

import "github.com/tinsley-labs/lsmkv/internal/base"

// levelIter concatenates the non-overlapping, key-ordered files of a single
// level >= 1 into one internalIterator, opening each file's table iterator
// from the table cache lazily as iteration reaches it. Unlike L0 — whose
// files can overlap and so are each fed into the mergingIter directly — a
// level's files form one contiguous key-ordered stream, so a single iterator
// suffices in their place (spec.md §4.4's level iterator).
type levelIter struct {
	cmp   base.Compare
	tc    *tableCache
	files []fileMetadata
	index int
	iter  internalIterator
	err   error
}

func newLevelIter(cmp base.Compare, tc *tableCache, files []fileMetadata) *levelIter {
	return &levelIter{cmp: cmp, tc: tc, files: files, index: -1}
}

func (l *levelIter) loadFile(index int) bool {
	if l.iter != nil {
		l.iter = nil
	}
	l.index = index
	if index < 0 || index >= len(l.files) {
		return false
	}
	iter, err := l.tc.newIter(&l.files[index])
	if err != nil {
		l.err = err
		return false
	}
	l.iter = iter
	return true
}

func (l *levelIter) First() bool {
	if !l.loadFile(0) {
		return false
	}
	if l.iter.First() {
		return true
	}
	return l.skipEmpty(1)
}

func (l *levelIter) SeekGE(key []byte) bool {
	index := 0
	for index < len(l.files) && l.cmp(l.files[index].largest.UserKey, key) < 0 {
		index++
	}
	if !l.loadFile(index) {
		return false
	}
	if l.iter.SeekGE(key) {
		return true
	}
	return l.skipEmpty(index + 1)
}

func (l *levelIter) Next() bool {
	if l.iter == nil {
		return false
	}
	if l.iter.Next() {
		return true
	}
	return l.skipEmpty(l.index + 1)
}

// skipEmpty advances through files[from:] until one yields a first entry.
func (l *levelIter) skipEmpty(from int) bool {
	for i := from; i < len(l.files); i++ {
		if !l.loadFile(i) {
			if l.err != nil {
				return false
			}
			continue
		}
		if l.iter.First() {
			return true
		}
	}
	l.index = len(l.files)
	l.iter = nil
	return false
}

func (l *levelIter) Valid() bool { return l.iter != nil && l.iter.Valid() }

func (l *levelIter) Key() base.InternalKey { return l.iter.Key() }

func (l *levelIter) Value() []byte { return l.iter.Value() }

func (l *levelIter) Error() error {
	if l.err != nil {
		return l.err
	}
	if l.iter != nil {
		return l.iter.Error()
	}
	return nil
}
