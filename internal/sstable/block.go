// Copyright 2011 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package sstable

import (
	"encoding/binary"

	"github.com/tinsley-labs/lsmkv/internal/base"
)

// A data or index block is a sequence of prefix-compressed entries followed
// by a restart-point trailer, matching the classic LevelDB/RocksDB block
// format pebble's own sstable/block_writer.go builds: every restartInterval
// entries, the key is stored in full (a "restart point") so that a seek can
// binary-search the restart array instead of scanning from the block start.
//
//	entry := varint(shared_key_len) varint(unshared_key_len) varint(value_len)
//	         unshared_key_bytes value_bytes
//	block  := entry* restart_offset(uint32 LE)* num_restarts(uint32 LE)

type blockWriter struct {
	restartInterval int
	buf             []byte
	restarts        []uint32
	curKey          []byte
	nEntries        int
}

func newBlockWriter(restartInterval int) *blockWriter {
	if restartInterval <= 0 {
		restartInterval = 16
	}
	return &blockWriter{restartInterval: restartInterval}
}

func (w *blockWriter) add(key base.InternalKey, value []byte) {
	keyBuf := key.EncodeTo(nil)
	shared := 0
	if w.nEntries%w.restartInterval == 0 {
		w.restarts = append(w.restarts, uint32(len(w.buf)))
	} else {
		shared = sharedPrefixLen(w.curKey, keyBuf)
	}
	unshared := keyBuf[shared:]

	var tmp [binary.MaxVarintLen32]byte
	w.buf = appendVarint(w.buf, tmp[:], uint64(shared))
	w.buf = appendVarint(w.buf, tmp[:], uint64(len(unshared)))
	w.buf = appendVarint(w.buf, tmp[:], uint64(len(value)))
	w.buf = append(w.buf, unshared...)
	w.buf = append(w.buf, value...)

	w.curKey = append(w.curKey[:0], keyBuf...)
	w.nEntries++
}

func (w *blockWriter) empty() bool { return w.nEntries == 0 }

// size estimates the finished block size, used to decide when to cut a new
// data block.
func (w *blockWriter) size() int {
	return len(w.buf) + 4*len(w.restarts) + 4
}

func (w *blockWriter) finish() []byte {
	for _, r := range w.restarts {
		w.buf = binary.LittleEndian.AppendUint32(w.buf, r)
	}
	w.buf = binary.LittleEndian.AppendUint32(w.buf, uint32(len(w.restarts)))
	return w.buf
}

func (w *blockWriter) reset() {
	w.buf = w.buf[:0]
	w.restarts = w.restarts[:0]
	w.curKey = w.curKey[:0]
	w.nEntries = 0
}

func sharedPrefixLen(a, b []byte) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	i := 0
	for i < n && a[i] == b[i] {
		i++
	}
	return i
}

func appendVarint(buf, tmp []byte, v uint64) []byte {
	n := binary.PutUvarint(tmp, v)
	return append(buf, tmp[:n]...)
}

// blockReader provides random and sequential access to a decoded block's
// entries, keyed by internal key.
type blockReader struct {
	data     []byte
	restarts []uint32
}

func newBlockReader(data []byte) *blockReader {
	if len(data) < 4 {
		return &blockReader{data: data}
	}
	numRestarts := binary.LittleEndian.Uint32(data[len(data)-4:])
	restartsStart := len(data) - 4 - 4*int(numRestarts)
	if restartsStart < 0 {
		return &blockReader{data: data}
	}
	restarts := make([]uint32, numRestarts)
	for i := range restarts {
		restarts[i] = binary.LittleEndian.Uint32(data[restartsStart+4*i:])
	}
	return &blockReader{data: data[:restartsStart], restarts: restarts}
}

// blockEntry is one decoded (key, value) pair plus the offset of the next
// entry, used to drive sequential iteration.
type blockEntry struct {
	key    base.InternalKey
	value  []byte
	offset int
	next   int
}

// readEntryAt decodes the entry at off, given the previous entry's key for
// prefix expansion (pass nil at a restart point boundary).
func (r *blockReader) readEntryAt(off int, prevKey []byte) (blockEntry, bool) {
	if off >= len(r.data) {
		return blockEntry{}, false
	}
	p := r.data[off:]
	shared, n1 := binary.Uvarint(p)
	p = p[n1:]
	unsharedLen, n2 := binary.Uvarint(p)
	p = p[n2:]
	valueLen, n3 := binary.Uvarint(p)
	p = p[n3:]
	unshared := p[:unsharedLen]
	value := p[unsharedLen : unsharedLen+valueLen]

	keyBuf := make([]byte, 0, int(shared)+len(unshared))
	if shared > 0 {
		keyBuf = append(keyBuf, prevKey[:shared]...)
	}
	keyBuf = append(keyBuf, unshared...)

	next := off + n1 + n2 + n3 + int(unsharedLen) + int(valueLen)
	return blockEntry{
		key:    base.DecodeInternalKey(keyBuf),
		value:  value,
		offset: off,
		next:   next,
	}, true
}

// seekGE returns the decoded entry of the first entry whose key is >= key,
// scanning forward from the restart point immediately at or before it
// (binary search over restarts, then linear scan within the block between
// restarts). ok is false if no such entry exists.
func (r *blockReader) seekGE(cmp base.Compare, key []byte) (e blockEntry, ok bool) {
	if len(r.restarts) == 0 {
		return blockEntry{}, false
	}
	lo, hi := 0, len(r.restarts)-1
	for lo < hi {
		mid := (lo + hi + 1) / 2
		e, ok := r.readEntryAt(int(r.restarts[mid]), nil)
		if !ok || cmp(e.key.UserKey, key) >= 0 {
			hi = mid - 1
		} else {
			lo = mid
		}
	}
	off := int(r.restarts[lo])
	var prev []byte
	for {
		cur, ok := r.readEntryAt(off, prev)
		if !ok {
			return blockEntry{}, false
		}
		if cmp(cur.key.UserKey, key) >= 0 {
			return cur, true
		}
		prev = cur.key.EncodeTo(prev[:0])
		off = cur.next
		if off >= len(r.data) {
			return blockEntry{}, false
		}
	}
}
