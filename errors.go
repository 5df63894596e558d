// Copyright 2012 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package lsmkv

import "github.com/cockroachdb/errors"

// Error kinds named in spec.md §7. Each is a sentinel that callers compare
// against with errors.Is, even after the error has been wrapped with
// additional context via errors.Wrapf.
var (
	// ErrNotFound is not actually returned from Get: spec.md §7 defines
	// NotFound as "returned as absent value, not an error". It exists so
	// internal table/memtable probes have a sentinel to signal "no entry
	// here", distinct from io.EOF or a real failure.
	ErrNotFound = errors.New("lsmkv: not found")

	// ErrCorruption covers manifest replay failure, a WAL record CRC
	// mismatch under paranoid_checks, or an SST checksum failure.
	ErrCorruption = errors.New("lsmkv: corruption")

	// ErrInvalidArgument covers a comparator-name mismatch or a
	// create_if_missing/error_if_exists contradiction at Open.
	ErrInvalidArgument = errors.New("lsmkv: invalid argument")

	// ErrClosed is returned by any operation attempted after Close.
	ErrClosed = errors.New("lsmkv: closed")

	// ErrShutdown is surfaced to an in-flight compaction (and to the
	// CompactRange call waiting on it) when Close is called concurrently;
	// writes attempted after Close get ErrClosed.
	ErrShutdown = errors.New("lsmkv: shutting down")
)

// markCorruption wraps err (if non-nil) so errors.Is(result, ErrCorruption)
// holds, without losing the original message.
func markCorruption(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return errors.Mark(errors.Wrapf(err, format, args...), ErrCorruption)
}
