// Copyright 2011 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package sstable

import (
	"encoding/binary"
	"io"

	"github.com/cespare/xxhash/v2"
	"github.com/cockroachdb/errors"
	"github.com/golang/snappy"
	"github.com/tinsley-labs/lsmkv/internal/base"
	"github.com/tinsley-labs/lsmkv/internal/bloom"
)

// ErrCorrupt is returned when a block's checksum does not match, or its
// footer magic is wrong: spec.md §7's Corruption kind at the table layer.
var ErrCorrupt = errors.New("lsmkv/sstable: corrupt table")

// Reader provides point lookups and iteration over one closed table file.
// It holds the file open for the lifetime of the Reader; callers (the table
// cache) are responsible for bounding how many Readers are open at once.
type Reader struct {
	ra          io.ReaderAt
	size        uint64
	cmp         base.Compare
	indexHandle blockHandle
	filter      []byte
}

// NewReader opens a Reader over ra, which must hold size bytes written by a
// Writer.
func NewReader(ra io.ReaderAt, size uint64, cmp base.Compare) (*Reader, error) {
	if cmp == nil {
		cmp = base.DefaultCompare
	}
	if size < footerLen {
		return nil, ErrCorrupt
	}
	footer := make([]byte, footerLen)
	if _, err := ra.ReadAt(footer, int64(size-footerLen)); err != nil {
		return nil, err
	}
	if string(footer[footerLen-len(magic):]) != magic {
		return nil, ErrCorrupt
	}
	r := &Reader{
		ra:   ra,
		size: size,
		cmp:  cmp,
		indexHandle: blockHandle{
			offset: binary.LittleEndian.Uint64(footer[0:]),
			length: binary.LittleEndian.Uint64(footer[8:]),
		},
	}
	filterHandle := blockHandle{
		offset: binary.LittleEndian.Uint64(footer[16:]),
		length: binary.LittleEndian.Uint64(footer[24:]),
	}
	if filterHandle.length > 0 {
		data, err := r.readBlock(filterHandle)
		if err != nil {
			return nil, err
		}
		r.filter = data
	}
	return r, nil
}

// readBlock reads the block at handle, verifies its checksum, and decompresses
// it if needed.
func (r *Reader) readBlock(h blockHandle) ([]byte, error) {
	buf := make([]byte, h.length+blockTrailerLen)
	if _, err := r.ra.ReadAt(buf, int64(h.offset)); err != nil {
		return nil, err
	}
	payload := buf[:h.length]
	trailer := buf[h.length:]
	checksum := binary.LittleEndian.Uint64(trailer[1:])
	if xxhash.Sum64(payload) != checksum {
		return nil, ErrCorrupt
	}
	switch Compression(trailer[0]) {
	case NoCompression:
		return payload, nil
	case SnappyCompression:
		return snappy.Decode(nil, payload)
	default:
		return nil, ErrCorrupt
	}
}

// MayContain reports whether key might be present, consulting the filter
// block when one was built; it always returns true when there is no filter.
func (r *Reader) MayContain(key []byte) bool {
	if r.filter == nil {
		return true
	}
	return bloom.MayContain(r.filter, key)
}

// Get returns the value for the newest internal key with the given user key
// and a sequence number <= key.SeqNum(), matching the lookup semantics
// spec.md §4.4 describes for a single table probe.
func (r *Reader) Get(key base.InternalKey) (value []byte, kind base.InternalKeyKind, found bool, err error) {
	if !r.MayContain(key.UserKey) {
		return nil, 0, false, nil
	}
	iter, err := r.NewIter()
	if err != nil {
		return nil, 0, false, err
	}
	if !iter.SeekGE(key.UserKey) {
		return nil, 0, false, nil
	}
	for iter.Valid() {
		k := iter.Key()
		if !equalUserKey(r.cmp, k.UserKey, key.UserKey) {
			return nil, 0, false, nil
		}
		if k.SeqNum() <= key.SeqNum() {
			return iter.Value(), k.Kind(), true, nil
		}
		if !iter.Next() {
			break
		}
	}
	return nil, 0, false, nil
}

func equalUserKey(cmp base.Compare, a, b []byte) bool { return cmp(a, b) == 0 }

// Iterator walks a table's entries in ascending internal-key order via the
// index block, loading each data block on demand.
type Iterator struct {
	r         *Reader
	indexIter *blockIter
	dataIter  *blockIter
	err       error
}

// NewIter returns a fresh Iterator positioned before the first entry.
func (r *Reader) NewIter() (*Iterator, error) {
	indexData, err := r.readBlock(r.indexHandle)
	if err != nil {
		return nil, err
	}
	return &Iterator{r: r, indexIter: newBlockIter(r.cmp, indexData)}, nil
}

func (i *Iterator) loadDataBlock() bool {
	if !i.indexIter.Valid() {
		i.dataIter = nil
		return false
	}
	offset, n := binary.Uvarint(i.indexIter.Value())
	length, _ := binary.Uvarint(i.indexIter.Value()[n:])
	data, err := i.r.readBlock(blockHandle{offset: offset, length: length})
	if err != nil {
		i.dataIter = nil
		if i.err == nil {
			i.err = err
		}
		return false
	}
	i.dataIter = newBlockIter(i.r.cmp, data)
	return true
}

// First positions the iterator at the first entry.
func (i *Iterator) First() bool {
	if !i.indexIter.First() {
		return false
	}
	if !i.loadDataBlock() {
		return false
	}
	if i.dataIter.First() {
		return true
	}
	return i.advanceBlock()
}

// SeekGE positions the iterator at the first entry whose user key is >= key.
func (i *Iterator) SeekGE(key []byte) bool {
	if !i.indexIter.SeekGE(key) {
		return false
	}
	if !i.loadDataBlock() {
		return false
	}
	if i.dataIter.SeekGE(key) {
		return true
	}
	return i.advanceBlock()
}

// Next advances to the next entry.
func (i *Iterator) Next() bool {
	if i.dataIter != nil && i.dataIter.Next() {
		return true
	}
	return i.advanceBlock()
}

func (i *Iterator) advanceBlock() bool {
	for i.indexIter.Next() {
		if !i.loadDataBlock() {
			continue
		}
		if i.dataIter.First() {
			return true
		}
	}
	i.dataIter = nil
	return false
}

// Valid reports whether the iterator is positioned at an entry.
func (i *Iterator) Valid() bool { return i.dataIter != nil && i.dataIter.Valid() }

// Key returns the internal key at the iterator's current position.
func (i *Iterator) Key() base.InternalKey { return i.dataIter.Key() }

// Value returns the value at the iterator's current position.
func (i *Iterator) Value() []byte { return i.dataIter.Value() }

// Error reports any error encountered while loading blocks (exhaustion
// is not an error; it is reported by Valid returning false).
func (i *Iterator) Error() error { return i.err }
