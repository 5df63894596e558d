// Copyright 2011 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package sstable

import "github.com/tinsley-labs/lsmkv/internal/base"

// blockIter walks a decoded block's entries in key order. It is the unit
// internal/sstable.Iterator composes across the index block and data blocks.
type blockIter struct {
	r          *blockReader
	cmp        base.Compare
	nextOffset int
	prev       []byte
	key        base.InternalKey
	value      []byte
	valid      bool
}

func newBlockIter(cmp base.Compare, data []byte) *blockIter {
	return &blockIter{r: newBlockReader(data), cmp: cmp}
}

func (i *blockIter) First() bool {
	i.prev = nil
	return i.loadAt(0)
}

func (i *blockIter) SeekGE(key []byte) bool {
	e, ok := i.r.seekGE(i.cmp, key)
	if !ok {
		i.valid = false
		return false
	}
	i.key, i.value = e.key, e.value
	i.nextOffset = e.next
	i.prev = e.key.EncodeTo(nil)
	i.valid = true
	return true
}

func (i *blockIter) Next() bool {
	if !i.valid {
		return false
	}
	i.prev = i.key.EncodeTo(nil)
	return i.loadAt(i.nextOffset)
}

func (i *blockIter) loadAt(off int) bool {
	e, ok := i.r.readEntryAt(off, i.prev)
	if !ok {
		i.valid = false
		return false
	}
	i.key, i.value = e.key, e.value
	i.nextOffset = e.next
	i.prev = e.key.EncodeTo(nil)
	i.valid = true
	return true
}

func (i *blockIter) Valid() bool             { return i.valid }
func (i *blockIter) Key() base.InternalKey   { return i.key }
func (i *blockIter) Value() []byte           { return i.value }
