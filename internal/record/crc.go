// Copyright 2011 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package record

import "hash/crc32"

// crc implements the masked Castagnoli CRC-32 checksum used by the WAL and
// manifest record framing, matching the on-disk convention of the wider
// LevelDB family: the raw crc32.Checksum is rotated and offset so that a
// stream of zero bytes (as would appear from a truncated preallocated file)
// does not checksum-validate as zero.
type crc uint32

var table = crc32.MakeTable(crc32.Castagnoli)

const maskDelta = 0xa282ead8

func newCRC(b []byte) crc {
	return crc(crc32.Checksum(b, table)).mask()
}

func (c crc) value() uint32 {
	return uint32(c)
}

func (c crc) mask() crc {
	return crc(uint32(c)>>15|uint32(c)<<17) + maskDelta
}
