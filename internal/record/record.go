// Copyright 2011 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package record reads and writes sequences of records to the WAL and
// manifest files. Each record is a stream of bytes that completes before the
// next record starts.
//
// The wire format divides the stream into 32 KiB blocks; each block holds a
// number of tightly packed chunks, and chunks never cross a block boundary.
// The last block may be shorter than 32 KiB; any unused bytes in a block are
// zero. A record maps to one or more chunks:
//
//	+----------+-----------+-----------+--- ... ---+
//	| CRC (4B) | Size (2B) | Type (1B) | Payload    |
//	+----------+-----------+-----------+--- ... ---+
//
// CRC is computed over the type byte and the payload. There are four chunk
// types, recording whether the chunk is a whole record, or the first, a
// middle, or the last chunk of a multi-chunk record.
//
// Neither Reader nor Writer is safe for concurrent use.
package record

import (
	"encoding/binary"
	"io"

	"github.com/cockroachdb/errors"
)

const (
	fullChunkType   = 1
	firstChunkType  = 2
	middleChunkType = 3
	lastChunkType   = 4
)

const (
	blockSize     = 32 * 1024
	blockSizeMask = blockSize - 1
	headerSize    = 7
)

// ErrZeroedChunk is returned when a chunk's header is entirely zero, as
// happens past the logical end of a log file that was preallocated.
var ErrZeroedChunk = errors.New("lsmkv/record: zeroed chunk")

// ErrInvalidChunk is returned when a chunk's header or checksum is invalid:
// this may indicate a torn write at the tail of the last block, or genuine
// corruption.
var ErrInvalidChunk = errors.New("lsmkv/record: invalid chunk")

// IsInvalidRecord reports whether err indicates a torn or corrupt tail chunk,
// the condition recovery tolerates by truncating to the last complete
// record (spec §7).
func IsInvalidRecord(err error) bool {
	return errors.Is(err, ErrZeroedChunk) || errors.Is(err, ErrInvalidChunk) || errors.Is(err, io.ErrUnexpectedEOF)
}

// Reader reads records from an underlying io.Reader.
type Reader struct {
	r          io.Reader
	blockNum   int64
	begin, end int
	n          int
	last       bool
	err        error
	buf        [blockSize]byte
}

// NewReader returns a new Reader reading from r.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: r, blockNum: -1}
}

func (r *Reader) nextChunk(wantFirst bool) error {
	for {
		if r.end+headerSize <= r.n {
			checksum := binary.LittleEndian.Uint32(r.buf[r.end+0 : r.end+4])
			length := binary.LittleEndian.Uint16(r.buf[r.end+4 : r.end+6])
			chunkType := r.buf[r.end+6]

			if checksum == 0 && length == 0 && chunkType == 0 {
				// Rest of the block is the zero padding a writer leaves when a
				// chunk header would not otherwise fit; skip to the next block.
				r.end = r.n
				continue
			}
			if chunkType < fullChunkType || chunkType > lastChunkType {
				return ErrInvalidChunk
			}

			r.begin = r.end + headerSize
			r.end = r.begin + int(length)
			if r.end > r.n {
				return ErrInvalidChunk
			}
			if checksum != newCRC(r.buf[r.begin-headerSize+6:r.end]).value() {
				return ErrInvalidChunk
			}
			if wantFirst && chunkType != fullChunkType && chunkType != firstChunkType {
				continue
			}
			r.last = chunkType == fullChunkType || chunkType == lastChunkType
			return nil
		}
		if r.n < blockSize && r.blockNum >= 0 {
			// Logical end of file: the last block was short and fully consumed.
			if !wantFirst || r.end != r.n {
				return io.ErrUnexpectedEOF
			}
			return io.EOF
		}
		n, err := io.ReadFull(r.r, r.buf[:])
		if err != nil && err != io.ErrUnexpectedEOF {
			if err == io.EOF && !wantFirst {
				return io.ErrUnexpectedEOF
			}
			return err
		}
		r.begin, r.end, r.n = 0, 0, n
		r.blockNum++
	}
}

// Next returns a reader for the next record, or io.EOF if there are none
// left. The returned reader is stale after the next call to Next.
func (r *Reader) Next() (io.Reader, error) {
	if r.err != nil {
		return nil, r.err
	}
	r.begin = r.end
	r.err = r.nextChunk(true)
	if r.err != nil {
		return nil, r.err
	}
	return singleReader{r}, nil
}

type singleReader struct{ r *Reader }

func (x singleReader) Read(p []byte) (int, error) {
	r := x.r
	if r.err != nil {
		return 0, r.err
	}
	for r.begin == r.end {
		if r.last {
			return 0, io.EOF
		}
		r.err = r.nextChunk(false)
		if r.err != nil {
			return 0, r.err
		}
	}
	n := copy(p, r.buf[r.begin:r.end])
	r.begin += n
	return n, nil
}

// Writer writes records to an underlying io.Writer, framing each one into
// one or more 32 KiB-block-respecting chunks.
type Writer struct {
	w           io.Writer
	blockNumber int64
	i, j        int
	written     int
	first       bool
	pending     bool
	err         error
	buf         [blockSize]byte
}

// NewWriter returns a new Writer writing to w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

func (w *Writer) fillHeader(last bool) {
	if last {
		if w.first {
			w.buf[w.i+6] = fullChunkType
		} else {
			w.buf[w.i+6] = lastChunkType
		}
	} else {
		if w.first {
			w.buf[w.i+6] = firstChunkType
		} else {
			w.buf[w.i+6] = middleChunkType
		}
	}
	binary.LittleEndian.PutUint32(w.buf[w.i+0:w.i+4], newCRC(w.buf[w.i+6:w.j]).value())
	binary.LittleEndian.PutUint16(w.buf[w.i+4:w.i+6], uint16(w.j-w.i-headerSize))
}

func (w *Writer) writeBlock() {
	_, w.err = w.w.Write(w.buf[w.written:])
	w.i = 0
	w.j = headerSize
	w.written = 0
	w.blockNumber++
}

func (w *Writer) writePending() {
	if w.err != nil {
		return
	}
	if w.pending {
		w.fillHeader(true)
		w.pending = false
	}
	_, w.err = w.w.Write(w.buf[w.written:w.j])
	w.written = w.j
}

// Close finishes the current record.
func (w *Writer) Close() error {
	w.writePending()
	return w.err
}

// Next returns a writer for the next record. The returned writer becomes
// stale after the next Close or Next call.
func (w *Writer) Next() (io.Writer, error) {
	if w.err != nil {
		return nil, w.err
	}
	if w.pending {
		w.fillHeader(true)
	}
	w.i = w.j
	w.j = w.j + headerSize
	if w.j > blockSize {
		clear(w.buf[w.i:])
		w.writeBlock()
		if w.err != nil {
			return nil, w.err
		}
	}
	w.first = true
	w.pending = true
	return singleWriter{w}, nil
}

// WriteRecord writes a complete record in one call.
func (w *Writer) WriteRecord(p []byte) error {
	t, err := w.Next()
	if err != nil {
		return err
	}
	if _, err := t.Write(p); err != nil {
		return err
	}
	w.writePending()
	return w.err
}

// Size returns the number of bytes written so far.
func (w *Writer) Size() int64 {
	if w == nil {
		return 0
	}
	return w.blockNumber*blockSize + int64(w.j)
}

type singleWriter struct{ w *Writer }

func (x singleWriter) Write(p []byte) (int, error) {
	w := x.w
	if w.err != nil {
		return 0, w.err
	}
	n0 := len(p)
	for len(p) > 0 {
		if w.j == blockSize {
			w.fillHeader(false)
			w.writeBlock()
			if w.err != nil {
				return 0, w.err
			}
			w.first = false
		}
		n := copy(w.buf[w.j:], p)
		w.j += n
		p = p[n:]
	}
	return n0, nil
}
