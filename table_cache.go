// Copyright 2018 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package lsmkv

import (
	"container/list"
	"context"
	"sync"

	"github.com/tinsley-labs/lsmkv/internal/base"
	"github.com/tinsley-labs/lsmkv/internal/sstable"
	"github.com/tinsley-labs/lsmkv/internal/vfs"
	"golang.org/x/sync/semaphore"
)

// tableCache bounds the number of open sstable file handles to
// Options.MaxOpenFiles less the 10 that Open reserves (spec.md §6), evicting
// the least-recently-used reader
// when a miss would exceed the cap. The teacher's table cache shards this
// structure across several LRU rings to reduce mutex contention under heavy
// concurrent lookup; this engine has a single writer and a single background
// compactor, so one shard protected by one mutex is sufficient and is kept
// deliberately unsharded.
type tableCache struct {
	dirname string
	fs      vfs.FS
	cmp     base.Compare
	sem     *semaphore.Weighted
	maxOpen int64

	mu      sync.Mutex
	entries map[uint64]*list.Element
	lru     *list.List
}

type tableCacheEntry struct {
	fileNum uint64
	file    vfs.File
	reader  *sstable.Reader
}

func newTableCache(dirname string, fs vfs.FS, cmp base.Compare, maxOpenFiles int) *tableCache {
	if maxOpenFiles < 1 {
		maxOpenFiles = 1
	}
	return &tableCache{
		dirname: dirname,
		fs:      fs,
		cmp:     cmp,
		sem:     semaphore.NewWeighted(int64(maxOpenFiles)),
		maxOpen: int64(maxOpenFiles),
		entries: make(map[uint64]*list.Element),
		lru:     list.New(),
	}
}

// getReader returns the Reader for fileNum, opening and caching it on a miss.
func (c *tableCache) getReader(fileNum uint64) (*sstable.Reader, error) {
	c.mu.Lock()
	if elem, ok := c.entries[fileNum]; ok {
		c.lru.MoveToFront(elem)
		reader := elem.Value.(*tableCacheEntry).reader
		c.mu.Unlock()
		return reader, nil
	}
	c.mu.Unlock()

	for !c.sem.TryAcquire(1) {
		c.mu.Lock()
		if c.lru.Len() == 0 {
			c.mu.Unlock()
			if err := c.sem.Acquire(context.Background(), 1); err != nil {
				return nil, err
			}
			break
		}
		c.evictOldest()
		c.mu.Unlock()
	}

	f, err := c.fs.Open(makeFilename(c.fs, c.dirname, fileTypeTable, fileNum))
	if err != nil {
		c.sem.Release(1)
		return nil, err
	}
	stat, err := f.Stat()
	if err != nil {
		f.Close()
		c.sem.Release(1)
		return nil, err
	}
	reader, err := sstable.NewReader(f, uint64(stat.Size()), c.cmp)
	if err != nil {
		f.Close()
		c.sem.Release(1)
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.entries[fileNum]; ok {
		// Lost a race with a concurrent opener; keep the existing entry and
		// release the one we just built.
		f.Close()
		c.sem.Release(1)
		c.lru.MoveToFront(elem)
		return elem.Value.(*tableCacheEntry).reader, nil
	}
	entry := &tableCacheEntry{fileNum: fileNum, file: f, reader: reader}
	elem := c.lru.PushFront(entry)
	c.entries[fileNum] = elem

	for int64(c.lru.Len()) > c.maxOpen && c.lru.Len() > 1 {
		c.evictOldest()
	}
	return reader, nil
}

// evictOldest closes and removes the least-recently-used entry. c.mu must be
// held.
func (c *tableCache) evictOldest() {
	elem := c.lru.Back()
	if elem == nil {
		return
	}
	entry := elem.Value.(*tableCacheEntry)
	c.lru.Remove(elem)
	delete(c.entries, entry.fileNum)
	entry.file.Close()
	c.sem.Release(1)
}

// evict drops fileNum's cached reader, called when a file becomes obsolete
// (spec.md §7's pending_outputs / obsolete-file lifecycle).
func (c *tableCache) evict(fileNum uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.entries[fileNum]; ok {
		entry := elem.Value.(*tableCacheEntry)
		c.lru.Remove(elem)
		delete(c.entries, fileNum)
		entry.file.Close()
		c.sem.Release(1)
	}
}

// newIter returns an iterator over the table named by meta.
func (c *tableCache) newIter(meta *fileMetadata) (*sstable.Iterator, error) {
	reader, err := c.getReader(meta.fileNum)
	if err != nil {
		return nil, err
	}
	return reader.NewIter()
}

func (c *tableCache) close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, elem := range c.entries {
		elem.Value.(*tableCacheEntry).file.Close()
	}
	c.entries = make(map[uint64]*list.Element)
	c.lru.Init()
	return nil
}
