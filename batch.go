// Copyright 2012 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package lsmkv

import (
	"encoding/binary"

	"github.com/cockroachdb/errors"
	"github.com/tinsley-labs/lsmkv/internal/base"
)

// batchHeaderLen is the size of a batch's wire-format header: an 8-byte
// sequence number (of the batch's first entry, zero until applied) followed
// by a 4-byte little-endian entry count. This is also exactly the payload
// written as the WAL record for the batch (spec.md §6).
const batchHeaderLen = 12

// ErrInvalidBatch is returned when a batch's wire-format data is malformed,
// e.g. during WAL replay of a torn record.
var ErrInvalidBatch = errors.New("lsmkv: invalid batch")

// Batch is an ordered sequence of Set/Delete operations applied atomically,
// matching spec.md §3 WriteBatch. A Batch is not safe for concurrent use.
type Batch struct {
	// data is the wire-format encoding: header, then count entries of
	// (kind byte, varint-prefixed key, varint-prefixed value-if-Set).
	data  []byte
	count uint32
	// seqNum is the sequence number assigned to the batch's first entry,
	// filled in once the batch commits.
	seqNum uint64
}

// NewBatch returns an empty Batch.
func NewBatch() *Batch {
	b := &Batch{data: make([]byte, batchHeaderLen)}
	return b
}

// Set records a Set(key, value) operation in the batch.
func (b *Batch) Set(key, value []byte) {
	b.init()
	b.data = append(b.data, byte(base.InternalKeyKindSet))
	b.data = appendVarintBytes(b.data, key)
	b.data = appendVarintBytes(b.data, value)
	b.count++
}

// Delete records a Delete(key) operation in the batch.
func (b *Batch) Delete(key []byte) {
	b.init()
	b.data = append(b.data, byte(base.InternalKeyKindDelete))
	b.data = appendVarintBytes(b.data, key)
	b.count++
}

func (b *Batch) init() {
	if len(b.data) == 0 {
		b.data = make([]byte, batchHeaderLen)
	}
}

// Empty reports whether the batch has no operations.
func (b *Batch) Empty() bool { return b.count == 0 }

// Count returns the number of operations in the batch.
func (b *Batch) Count() uint32 { return b.count }

// Len returns the size in bytes of the batch's wire-format encoding,
// including the header: used directly against the group-commit byte caps in
// spec.md §4.2.
func (b *Batch) Len() int {
	if len(b.data) == 0 {
		return batchHeaderLen
	}
	return len(b.data)
}

// approximateSize implements the WriteBatchImpl.getApproximateSize estimator
// spec.md §9 calls out: header(12)+key+value per Set, 6+key per Delete. It
// is used only to decide batch-grouping thresholds, never for correctness,
// per the spec's explicit guidance (the source's own estimator is flagged as
// possibly wrong).
func (b *Batch) approximateSize() int {
	size := batchHeaderLen
	p := b.data[batchHeaderLen:]
	for len(p) > 0 {
		kind := base.InternalKeyKind(p[0])
		p = p[1:]
		key, n := decodeVarintBytes(p)
		p = p[n:]
		switch kind {
		case base.InternalKeyKindSet:
			value, n := decodeVarintBytes(p)
			p = p[n:]
			size += batchHeaderLen + len(key) + len(value)
		case base.InternalKeyKindDelete:
			size += 6 + len(key)
		}
	}
	return size
}

// setSeqNum stamps the batch's header with the sequence number of its first
// entry, the step the write-queue leader performs after reserving a sequence
// range (spec.md §4.2 step 3).
func (b *Batch) setSeqNum(seqNum uint64) {
	b.seqNum = seqNum
	binary.LittleEndian.PutUint64(b.data[0:8], seqNum)
	binary.LittleEndian.PutUint32(b.data[8:12], b.count)
}

// batchEntry is one decoded entry of a batch; entries() decodes them in
// order so they can be replayed into a memtable.
type batchEntry struct {
	kind  base.InternalKeyKind
	key   []byte
	value []byte
}

func (b *Batch) entries() []batchEntry {
	out := make([]batchEntry, 0, b.count)
	p := b.data[batchHeaderLen:]
	for len(p) > 0 {
		kind := base.InternalKeyKind(p[0])
		p = p[1:]
		key, n := decodeVarintBytes(p)
		if n == 0 {
			break
		}
		p = p[n:]
		e := batchEntry{kind: kind, key: key}
		if kind == base.InternalKeyKindSet {
			value, n := decodeVarintBytes(p)
			if n == 0 {
				break
			}
			p = p[n:]
			e.value = value
		}
		out = append(out, e)
	}
	return out
}

// decodeBatch parses a wire-format batch payload (as framed into a single WAL
// record), returning the sequence number of its first entry, its count, and
// its entries. It is used by recovery to replay grouped batches from the WAL;
// a truncated payload yields ErrInvalidBatch.
func decodeBatch(data []byte) (seqNum uint64, entries []batchEntry, err error) {
	if len(data) < batchHeaderLen {
		return 0, nil, ErrInvalidBatch
	}
	seqNum = binary.LittleEndian.Uint64(data[0:8])
	count := binary.LittleEndian.Uint32(data[8:12])
	b := &Batch{data: data, count: count}
	entries = b.entries()
	if uint32(len(entries)) != count {
		return 0, nil, ErrInvalidBatch
	}
	return seqNum, entries, nil
}

func appendVarintBytes(dst, s []byte) []byte {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], uint64(len(s)))
	dst = append(dst, tmp[:n]...)
	return append(dst, s...)
}

func decodeVarintBytes(p []byte) (s []byte, n int) {
	length, n1 := binary.Uvarint(p)
	if n1 <= 0 || uint64(len(p)-n1) < length {
		return nil, 0
	}
	return p[n1 : n1+int(length)], n1 + int(length)
}
