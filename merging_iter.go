// Copyright 2018 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package lsmkv

import "github.com/tinsley-labs/lsmkv/internal/base"

// internalIterator is the common contract every source feeding a mergingIter
// satisfies: the mutable memtable (skiplistIterator), an immutable memtable,
// and each level's table iterator (internal/sstable.Iterator, or a
// concatenating wrapper over several for levels >= 1).
type internalIterator interface {
	First() bool
	SeekGE(userKey []byte) bool
	Next() bool
	Valid() bool
	Key() base.InternalKey
	Value() []byte
	Error() error
}

// mergingIter provides a merged, forward-only view of multiple internal
// iterators, spec.md §4.4's read-path fan-in across memtable, immutable
// memtable, and per-level tables. Input key ranges may overlap; iterating the
// result yields every key/value pair of every input in ascending internal-key
// order (so every revision of a user key is visited, newest first).
type mergingIter struct {
	iters []internalIterator
	heap  mergingIterHeap
	err   error
}

func newMergingIter(cmp base.Compare, iters ...internalIterator) *mergingIter {
	m := &mergingIter{iters: iters}
	m.heap.cmp = cmp
	m.heap.items = make([]mergingIterItem, 0, len(iters))
	return m
}

func (m *mergingIter) initHeap() {
	m.heap.items = m.heap.items[:0]
	for i, t := range m.iters {
		if t.Valid() {
			m.heap.items = append(m.heap.items, mergingIterItem{index: i, key: t.Key()})
		}
	}
	m.heap.init()
}

func (m *mergingIter) First() bool {
	for _, t := range m.iters {
		t.First()
	}
	m.initHeap()
	return m.heap.len() > 0
}

func (m *mergingIter) SeekGE(key []byte) bool {
	for _, t := range m.iters {
		t.SeekGE(key)
	}
	m.initHeap()
	return m.heap.len() > 0
}

func (m *mergingIter) Next() bool {
	if m.err != nil || m.heap.len() == 0 {
		return false
	}
	item := &m.heap.items[0]
	iter := m.iters[item.index]
	if iter.Next() {
		item.key = iter.Key()
		m.heap.fix(0)
		return true
	}
	if err := iter.Error(); err != nil {
		m.err = err
		return false
	}
	m.heap.pop()
	return m.heap.len() > 0
}

func (m *mergingIter) Valid() bool { return m.err == nil && m.heap.len() > 0 }

func (m *mergingIter) Key() base.InternalKey {
	return m.iters[m.heap.items[0].index].Key()
}

func (m *mergingIter) Value() []byte {
	return m.iters[m.heap.items[0].index].Value()
}

func (m *mergingIter) Error() error { return m.err }
