// Copyright 2012 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package base holds the handful of types that every other package in lsmkv
// depends on: the internal key encoding, the comparator abstraction, and the
// logger interface. It intentionally has no dependency on the rest of the
// module so that record, bloom, vfs and sstable can all import it without a
// cycle.
package base

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Compare compares two user keys, returning -1, 0 or +1. The default
// comparator is bytes.Compare; a store may be opened with a custom one, whose
// name must match across opens of the same directory (see Options.Comparer).
type Compare func(a, b []byte) int

// DefaultCompare is the default user-key comparator: plain byte-wise order.
func DefaultCompare(a, b []byte) int {
	return bytes.Compare(a, b)
}

// Comparer bundles a user-key Compare function with the name recorded in the
// manifest. Two directories opened with different comparer names refuse to
// open (ErrInvalidArgument) since their on-disk key order would be undefined.
type Comparer struct {
	Compare Compare
	Name    string
}

// DefaultComparer is byte-wise lexicographic order, named "leveldb.BytewiseComparator"
// to match the on-disk name recorded by comparable LSM engines.
var DefaultComparer = &Comparer{
	Compare: DefaultCompare,
	Name:    "leveldb.BytewiseComparator",
}

// InternalKeyKind is the type tag of an internal key: whether it sets a value
// or tombstones it.
type InternalKeyKind uint8

// The two value kinds understood by the engine. Values 0 and 1 are chosen to
// match the on-disk convention used by the wider LSM family: a higher kind
// sorts before a lower one at equal (key, seqnum), which only matters for the
// degenerate case of two internal keys colliding on seqnum (never produced by
// this engine's own sequence assignment, but tolerated on read).
const (
	InternalKeyKindDelete InternalKeyKind = 0
	InternalKeyKindSet    InternalKeyKind = 1

	// InternalKeyKindInvalid marks a key that failed to parse. It is never
	// written; it is only synthesized by DecodeInternalKey when the buffer is
	// too short to hold a trailer.
	InternalKeyKindInvalid InternalKeyKind = 255
)

func (k InternalKeyKind) String() string {
	switch k {
	case InternalKeyKindDelete:
		return "DEL"
	case InternalKeyKindSet:
		return "SET"
	default:
		return "INVALID"
	}
}

// SeqNumMax is the largest representable sequence number: the trailer packs
// it into 56 bits alongside an 8-bit kind.
const SeqNumMax = uint64(1)<<56 - 1

// InternalKeyTrailer packs a 56-bit sequence number and an 8-bit kind into a
// single uint64, high 56 bits sequence, low 8 bits kind, matching spec's
// "sequence<<8 | type" trailer.
type InternalKeyTrailer uint64

// MakeTrailer combines a sequence number and kind into a trailer.
func MakeTrailer(seqNum uint64, kind InternalKeyKind) InternalKeyTrailer {
	return InternalKeyTrailer(seqNum<<8 | uint64(kind))
}

// SeqNum extracts the sequence number from a trailer.
func (t InternalKeyTrailer) SeqNum() uint64 { return uint64(t) >> 8 }

// Kind extracts the value kind from a trailer.
func (t InternalKeyTrailer) Kind() InternalKeyKind { return InternalKeyKind(t) }

// InternalKey is a user key together with its trailer: the (sequence, kind)
// pair assigned at commit time. Internal keys sort by ascending user key,
// then descending sequence number, then descending kind, so the newest
// revision of a user key always sorts first.
type InternalKey struct {
	UserKey []byte
	Trailer InternalKeyTrailer
}

// MakeInternalKey builds an InternalKey from its parts.
func MakeInternalKey(userKey []byte, seqNum uint64, kind InternalKeyKind) InternalKey {
	return InternalKey{UserKey: userKey, Trailer: MakeTrailer(seqNum, kind)}
}

// SeqNum returns the key's sequence number.
func (k InternalKey) SeqNum() uint64 { return k.Trailer.SeqNum() }

// Kind returns the key's value kind.
func (k InternalKey) Kind() InternalKeyKind { return k.Trailer.Kind() }

// Size returns the on-disk encoded size of the key.
func (k InternalKey) Size() int { return len(k.UserKey) + 8 }

// Encode writes the trailer-appended wire form of the key into buf, which
// must be at least k.Size() bytes.
func (k InternalKey) Encode(buf []byte) {
	n := copy(buf, k.UserKey)
	binary.LittleEndian.PutUint64(buf[n:], uint64(k.Trailer))
}

// EncodeTo appends the encoded key to dst and returns the extended slice.
func (k InternalKey) EncodeTo(dst []byte) []byte {
	n := len(dst)
	dst = append(dst, make([]byte, k.Size())...)
	k.Encode(dst[n:])
	return dst
}

// Clone returns a deep copy of the key, safe to retain past the lifetime of
// the buffer UserKey currently points into.
func (k InternalKey) Clone() InternalKey {
	if len(k.UserKey) == 0 {
		return k
	}
	u := make([]byte, len(k.UserKey))
	copy(u, k.UserKey)
	return InternalKey{UserKey: u, Trailer: k.Trailer}
}

func (k InternalKey) String() string {
	return fmt.Sprintf("%s#%d,%s", k.UserKey, k.SeqNum(), k.Kind())
}

// DecodeInternalKey parses the trailer-appended wire form produced by Encode.
// If buf is too short to hold a trailer, the returned key has kind
// InternalKeyKindInvalid, sequence number 0 and an empty user key. No caller
// in this module checks for that kind or consults paranoid_checks here.
func DecodeInternalKey(buf []byte) InternalKey {
	if len(buf) < 8 {
		return InternalKey{Trailer: MakeTrailer(0, InternalKeyKindInvalid)}
	}
	n := len(buf) - 8
	return InternalKey{
		UserKey: buf[:n:n],
		Trailer: InternalKeyTrailer(binary.LittleEndian.Uint64(buf[n:])),
	}
}

// InternalCompare orders two internal keys: ascending user key, then
// descending sequence number, then descending kind.
func InternalCompare(userCmp Compare, a, b InternalKey) int {
	if c := userCmp(a.UserKey, b.UserKey); c != 0 {
		return c
	}
	if a.Trailer > b.Trailer {
		return -1
	}
	if a.Trailer < b.Trailer {
		return 1
	}
	return 0
}
