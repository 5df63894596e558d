// Copyright 2011 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package lsmkv

import (
	"github.com/tinsley-labs/lsmkv/internal/base"
	"github.com/tinsley-labs/lsmkv/internal/sstable"
	"github.com/tinsley-labs/lsmkv/internal/vfs"
)

// Default tuning constants, named in spec.md §4 and §6.
const (
	defaultWriteBufferSize  = 4 << 20 // 4 MiB
	defaultMaxOpenFiles     = 1000
	defaultBlockSize        = 4 << 10 // 4 KiB
	defaultBlockRestartInterval = 16
	defaultMaxFileSize      = 2 << 20 // 2 MiB, "max_output_file_size"

	l0CompactionTrigger = 4
	l0SlowdownWritesTrigger = 8
	l0StopWritesTrigger     = 12

	maxMemCompactLevel = 2

	maxGrandParentOverlapFactor = 10 // × max-file-size
)

// Compression identifies the block compression codec.
type Compression = sstable.Compression

const (
	NoCompression     = sstable.NoCompression
	SnappyCompression = sstable.SnappyCompression
)

// Cleaner decides what happens to an obsolete file: deleted outright, or
// archived for later inspection. Supplements spec.md §9's "pluggable
// obsolete-file policy", grounded on pebble's cleaner.go.
type Cleaner interface {
	Clean(fs vfs.FS, fileType fileType, path string) error
}

// EventListener receives notifications about background work. A trimmed
// form of pebble's EventListener (spec.md §5 supplement). Only WALCreated and
// ManifestCreated are invoked; FlushBegin, FlushEnd, CompactionBegin and
// CompactionEnd are declared but never called.
type EventListener struct {
	FlushBegin      func(reason string)
	FlushEnd        func(output TableInfo)
	CompactionBegin func(from, to int)
	CompactionEnd   func(info CompactionInfo)
	WALCreated      func(fileNum uint64)
	ManifestCreated func(fileNum uint64)
}

// TableInfo describes one on-disk table, used by events and DB.SSTables.
type TableInfo struct {
	FileNum  uint64
	Size     uint64
	Smallest base.InternalKey
	Largest  base.InternalKey
}

// CompactionInfo summarizes a finished compaction for EventListener.CompactionEnd.
type CompactionInfo struct {
	FromLevel, ToLevel int
	Inputs, Outputs    []TableInfo
	Err                error
}

// Options configures Open. Every field named in spec.md §6's "Configuration
// (enumerated)" is present; EnsureDefaults fills in the rest, matching
// pebble's own Options.EnsureDefaults idiom.
type Options struct {
	// CreateIfMissing creates the directory (and an empty store) on Open if
	// it does not already exist.
	CreateIfMissing bool
	// ErrorIfExists fails Open if the directory already holds a store.
	ErrorIfExists bool

	// WriteBufferSize is the memtable rotation threshold, in bytes.
	WriteBufferSize int
	// MaxOpenFiles bounds the table cache; 10 are reserved for the WAL,
	// manifest, and directory lock (spec.md §6).
	MaxOpenFiles int
	// MaxFileSize bounds a single compaction output file, spec.md §4.7's
	// "max_output_file_size".
	MaxFileSize int

	// BlockSize and BlockRestartInterval configure the SST block builder.
	BlockSize            int
	BlockRestartInterval int
	// Compression selects the per-block codec.
	Compression Compression
	// FilterBitsPerKey configures the bloom filter; 0 disables it.
	FilterBitsPerKey uint32

	// Comparer orders user keys; its Name must match the comparator name
	// recorded in the manifest of a pre-existing store.
	Comparer *base.Comparer

	// ParanoidChecks makes WAL replay during Open fail on a torn or corrupt
	// record instead of stopping at it. Reads and compactions do not consult it.
	ParanoidChecks bool

	// FS is the environment collaborator (spec.md §9); defaults to the real
	// OS filesystem.
	FS vfs.FS
	// Logger receives informational and fatal log lines.
	Logger base.Logger
	// Cleaner decides the fate of obsolete files; defaults to DeleteCleaner.
	Cleaner Cleaner
	// EventListener receives background-work notifications; all fields are
	// optional.
	EventListener EventListener
}

// EnsureDefaults fills in unset fields and returns the receiver (so callers
// can write `opts = opts.EnsureDefaults()`), matching the teacher's own
// EnsureDefaults idiom.
func (o *Options) EnsureDefaults() *Options {
	if o == nil {
		o = &Options{}
	}
	if o.WriteBufferSize <= 0 {
		o.WriteBufferSize = defaultWriteBufferSize
	}
	if o.MaxOpenFiles <= 0 {
		o.MaxOpenFiles = defaultMaxOpenFiles
	}
	if o.BlockSize <= 0 {
		o.BlockSize = defaultBlockSize
	}
	if o.BlockRestartInterval <= 0 {
		o.BlockRestartInterval = defaultBlockRestartInterval
	}
	if o.MaxFileSize <= 0 {
		o.MaxFileSize = defaultMaxFileSize
	}
	if o.Comparer == nil {
		o.Comparer = base.DefaultComparer
	}
	if o.FS == nil {
		o.FS = vfs.Default
	}
	if o.Logger == nil {
		o.Logger = base.DefaultLogger
	}
	if o.Cleaner == nil {
		o.Cleaner = DeleteCleaner{}
	}
	return o
}

func (o *Options) cmp() base.Compare { return o.Comparer.Compare }
