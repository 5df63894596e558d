// Copyright 2013 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package bloom implements a full-file Bloom filter for internal/sstable,
// using the same cache-line-blocked probe scheme as RocksDB's
// BuiltinBloomFilter: every probe for a given key stays inside one cache
// line, which keeps a lookup to a single random memory access regardless of
// the number of probes.
package bloom

const cacheLineSize = 64
const cacheLineBits = cacheLineSize * 8

// probes picks, for a given bits-per-key budget, the number of hash probes
// that minimizes the false-positive rate (values derived the same way as the
// upstream LevelDB/RocksDB simulation: diminishing returns set in well before
// 10 bits/key).
var probes = [11]uint32{
	1: 1, 2: 1, 3: 2, 4: 3, 5: 3, 6: 4, 7: 4, 8: 5, 9: 5, 10: 6,
}

func numProbes(bitsPerKey uint32) uint32 {
	if bitsPerKey > 10 {
		return probes[10]
	}
	if bitsPerKey < 1 {
		return 1
	}
	return probes[bitsPerKey]
}

// hash is a Murmur-like hash matching RocksDB's BloomHash, preserved so the
// false-positive-rate simulation history for this probe scheme still
// applies.
func hash(b []byte) uint32 {
	const (
		seed = 0xbc9f1d34
		m    = 0xc6a4a793
	)
	h := uint32(seed) ^ (uint32(len(b)) * m)
	for ; len(b) >= 4; b = b[4:] {
		h += uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
		h *= m
		h ^= h >> 16
	}
	switch len(b) {
	case 3:
		h += uint32(int8(b[2])) << 16
		fallthrough
	case 2:
		h += uint32(int8(b[1])) << 8
		fallthrough
	case 1:
		h += uint32(int8(b[0]))
		h *= m
		h ^= h >> 24
	}
	return h
}

// Writer accumulates keys for one SST and produces its filter block at
// Finish.
type Writer struct {
	bitsPerKey uint32
	hashes     []uint32
}

// NewWriter returns a filter Writer using bitsPerKey bits of filter per
// added key (10 is a good default: ~1% false-positive rate).
func NewWriter(bitsPerKey uint32) *Writer {
	if bitsPerKey < 1 {
		bitsPerKey = 10
	}
	return &Writer{bitsPerKey: bitsPerKey}
}

// AddKey records a key to be present in the filter.
func (w *Writer) AddKey(key []byte) {
	w.hashes = append(w.hashes, hash(key))
}

// Finish builds and returns the filter's wire encoding, or nil if no keys
// were ever added. The last 5 bytes of the returned slice are a trailer:
// numProbes (1 byte) followed by the number of cache lines (4 bytes LE).
func (w *Writer) Finish() []byte {
	if len(w.hashes) == 0 {
		return nil
	}
	nProbes := numProbes(w.bitsPerKey)
	nLines := (uint64(len(w.hashes))*uint64(w.bitsPerKey) + cacheLineBits - 1) / cacheLineBits
	nLines |= 1 // odd number of lines spreads bits across more of the hash space

	filter := make([]byte, nLines*cacheLineSize+5)
	data := filter[:nLines*cacheLineSize]
	for _, h := range w.hashes {
		addHash(h, data, uint32(nLines), nProbes)
	}
	filter[len(filter)-5] = byte(nProbes)
	putUint32(filter[len(filter)-4:], uint32(nLines))
	w.hashes = w.hashes[:0]
	return filter
}

func addHash(h uint32, data []byte, nLines, nProbes uint32) {
	line := (h % nLines) * cacheLineSize
	delta := h>>17 | h<<15
	for i := uint32(0); i < nProbes; i++ {
		bitPos := h % cacheLineBits
		data[line+bitPos/8] |= 1 << (bitPos % 8)
		h += delta
	}
}

// MayContain reports whether key may be present in filter, a value
// previously returned by Writer.Finish. False positives are possible; false
// negatives are not.
func MayContain(filter, key []byte) bool {
	if len(filter) < 5 {
		return false
	}
	nProbes := uint32(filter[len(filter)-5])
	nLines := getUint32(filter[len(filter)-4:])
	if nLines == 0 || nProbes == 0 {
		return true
	}
	data := filter[:len(filter)-5]
	h := hash(key)
	line := (h % nLines) * cacheLineSize
	if int(line)+cacheLineSize > len(data) {
		return true // malformed filter; fail open rather than drop a real key
	}
	delta := h>>17 | h<<15
	for i := uint32(0); i < nProbes; i++ {
		bitPos := h % cacheLineBits
		if data[line+bitPos/8]&(1<<(bitPos%8)) == 0 {
			return false
		}
		h += delta
	}
	return true
}

func putUint32(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}

func getUint32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}
