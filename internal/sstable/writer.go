// Copyright 2011 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package sstable implements the external SST format named in spec.md §1/§6:
// an immutable, block-structured, sorted file of internal keys. It is a
// deliberately small rewrite of pebble's own (much larger) sstable package,
// enough to back the engine's flush and compaction output without the
// two-level index, value-separation and columnar-block machinery pebble
// carries for production workloads at scale.
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

// Compression identifies the per-block compression codec, matching
// Options.Compression (spec.md §6: "compression_type (NONE|SNAPPY)").
type Compression uint8

const (
	NoCompression Compression = iota
	SnappyCompression
)

const (
	blockTrailerLen = 1 + 8 // compression byte + xxhash64 checksum
	footerLen       = 40
	magic           = "lsmkv-sstable-v1"
)

// WriterOptions configures a Writer.
type WriterOptions struct {
	Compare             base.Compare
	BlockSize           int
	BlockRestartInterval int
	Compression         Compression
	FilterBitsPerKey    uint32 // 0 disables the filter block
}

// Writer builds one immutable table file. Callers add keys in strictly
// increasing internal-key order (the same order the compaction and flush
// merge loops already produce) and call Close to flush the index, filter and
// footer.
type Writer struct {
	w        io.Writer
	opts     WriterOptions
	offset   uint64
	dataBlk  *blockWriter
	indexBlk *blockWriter
	filter   *bloom.Writer
	smallest base.InternalKey
	largest  base.InternalKey
	haveKey  bool
	count    int
	pendingIndexKey base.InternalKey
	pendingHandle   blockHandle
	havePending     bool
	err      error
}

type blockHandle struct {
	offset, length uint64
}

// NewWriter returns a Writer that writes framed blocks to w as they fill.
func NewWriter(w io.Writer, opts WriterOptions) *Writer {
	if opts.Compare == nil {
		opts.Compare = base.DefaultCompare
	}
	if opts.BlockSize <= 0 {
		opts.BlockSize = 4096
	}
	if opts.BlockRestartInterval <= 0 {
		opts.BlockRestartInterval = 16
	}
	sw := &Writer{
		w:        w,
		opts:     opts,
		dataBlk:  newBlockWriter(opts.BlockRestartInterval),
		indexBlk: newBlockWriter(1),
	}
	if opts.FilterBitsPerKey > 0 {
		sw.filter = bloom.NewWriter(opts.FilterBitsPerKey)
	}
	return sw
}

// Add appends one internal key/value pair. Keys must be added in strictly
// increasing internal-key order.
func (w *Writer) Add(key base.InternalKey, value []byte) error {
	if w.err != nil {
		return w.err
	}
	if !w.haveKey {
		w.smallest = key.Clone()
		w.haveKey = true
	}
	w.largest = key.Clone()
	w.count++

	if w.filter != nil {
		w.filter.AddKey(key.UserKey)
	}
	w.dataBlk.add(key, value)
	if w.dataBlk.size() >= w.opts.BlockSize {
		w.flushDataBlock(key)
	}
	return w.err
}

// flushDataBlock finishes the current data block, writes it (compressed,
// checksummed) to w, and records an index entry. lastKey is the last key
// added to the block, used as the index separator.
func (w *Writer) flushDataBlock(lastKey base.InternalKey) {
	if w.dataBlk.empty() {
		return
	}
	if w.havePending {
		w.writeIndexEntry()
	}
	raw := w.dataBlk.finish()
	handle, err := w.writeBlock(raw)
	if err != nil {
		w.err = err
		return
	}
	w.pendingIndexKey = lastKey.Clone()
	w.pendingHandle = handle
	w.havePending = true
	w.dataBlk.reset()
}

func (w *Writer) writeIndexEntry() {
	var buf [binary.MaxVarintLen64 * 2]byte
	n := binary.PutUvarint(buf[:], w.pendingHandle.offset)
	n += binary.PutUvarint(buf[n:], w.pendingHandle.length)
	w.indexBlk.add(w.pendingIndexKey, append([]byte(nil), buf[:n]...))
}

// writeBlock compresses raw (if configured), appends the trailer, and writes
// the framed block to the underlying writer, returning its handle.
func (w *Writer) writeBlock(raw []byte) (blockHandle, error) {
	payload := raw
	compressionByte := byte(NoCompression)
	if w.opts.Compression == SnappyCompression {
		payload = snappy.Encode(nil, raw)
		compressionByte = byte(SnappyCompression)
	}
	trailer := make([]byte, blockTrailerLen)
	trailer[0] = compressionByte
	checksum := xxhash.Sum64(payload)
	binary.LittleEndian.PutUint64(trailer[1:], checksum)

	offset := w.offset
	if _, err := w.w.Write(payload); err != nil {
		return blockHandle{}, err
	}
	if _, err := w.w.Write(trailer); err != nil {
		return blockHandle{}, err
	}
	length := uint64(len(payload))
	w.offset += length + blockTrailerLen
	return blockHandle{offset: offset, length: length}, nil
}

// Close finishes the table: flushes any pending data block, the filter
// block, the index block, and the footer.
func (w *Writer) Close() (size uint64, smallest, largest base.InternalKey, err error) {
	if w.err != nil {
		return 0, base.InternalKey{}, base.InternalKey{}, w.err
	}
	if !w.dataBlk.empty() {
		w.flushDataBlock(w.largest)
	}
	if w.havePending {
		w.writeIndexEntry()
	}

	var filterHandle blockHandle
	if w.filter != nil {
		if filterBytes := w.filter.Finish(); filterBytes != nil {
			filterHandle, err = w.writeBlock(filterBytes)
			if err != nil {
				return 0, base.InternalKey{}, base.InternalKey{}, err
			}
		}
	}

	indexRaw := w.indexBlk.finish()
	indexHandle, err := w.writeBlock(indexRaw)
	if err != nil {
		return 0, base.InternalKey{}, base.InternalKey{}, err
	}

	footer := make([]byte, footerLen)
	binary.LittleEndian.PutUint64(footer[0:], indexHandle.offset)
	binary.LittleEndian.PutUint64(footer[8:], indexHandle.length)
	binary.LittleEndian.PutUint64(footer[16:], filterHandle.offset)
	binary.LittleEndian.PutUint64(footer[24:], filterHandle.length)
	copy(footer[footerLen-len(magic):], magic)
	if _, err := w.w.Write(footer); err != nil {
		return 0, base.InternalKey{}, base.InternalKey{}, err
	}
	w.offset += uint64(len(footer))

	if w.count == 0 {
		return 0, base.InternalKey{}, base.InternalKey{}, errors.New("lsmkv/sstable: empty table")
	}
	return w.offset, w.smallest, w.largest, nil
}
