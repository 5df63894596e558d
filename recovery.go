// Copyright 2012 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package lsmkv

import (
	"io"

	"github.com/tinsley-labs/lsmkv/internal/record"
	"github.com/tinsley-labs/lsmkv/internal/vfs"
)

// replayWAL replays fileNum's WAL records into mem, tolerating a torn tail
// (spec.md §7's "Recovery from a prior crash tolerates a partial tail on the
// last WAL... truncate to last complete record") unless ParanoidChecks asks
// that any corruption be surfaced instead. It returns the sequence number
// one past the last entry replayed, for the caller to fold into
// logSeqNum/visibleSeqNum.
func (d *DB) replayWAL(mem *memTable, file vfs.File) (lastSeqNum uint64, err error) {
	rr := record.NewReader(file)
	for {
		r, err := rr.Next()
		if err == io.EOF {
			return lastSeqNum, nil
		}
		if err != nil {
			if record.IsInvalidRecord(err) && !d.opts.ParanoidChecks {
				return lastSeqNum, nil
			}
			return lastSeqNum, markCorruption(err, "lsmkv: WAL replay failed")
		}

		payload, err := io.ReadAll(r)
		if err != nil {
			if record.IsInvalidRecord(err) && !d.opts.ParanoidChecks {
				return lastSeqNum, nil
			}
			return lastSeqNum, markCorruption(err, "lsmkv: WAL replay failed")
		}

		seqNum, entries, err := decodeBatch(payload)
		if err != nil {
			if !d.opts.ParanoidChecks {
				return lastSeqNum, nil
			}
			return lastSeqNum, markCorruption(err, "lsmkv: WAL replay failed")
		}

		mem.apply(entries, seqNum)
		lastSeqNum = seqNum + uint64(len(entries))
	}
}
