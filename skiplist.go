// Copyright 2017 The Pebble Authors. All rights reserved. Use of this source
// code is governed by a BSD-style license that can be found in the LICENSE
// file.

package lsmkv

import (
	"math/rand"
	"sync"

	"github.com/tinsley-labs/lsmkv/internal/base"
)

// skiplist is the memtable's ordered index. The teacher's memtable
// (mem_table.go) is backed by arenaskl, a lock-free skiplist over a byte
// arena allocator; the arena allocator itself was not present in the
// retrieved corpus, and reconstructing a lock-free structure without being
// able to compile or race-test it would be reckless. spec.md §5 explicitly
// sanctions the alternative taken here: "implementations may instead choose
// a locked structure provided the read path still holds a strong reference,
// not M." This is an ordinary probabilistic skiplist (same per-node height
// distribution arenaskl uses) behind one sync.RWMutex: writers (always
// exactly one, the write-queue leader) take the write lock; readers (Get,
// iterators) take the read lock only long enough to copy out a value or
// position a cursor.
const (
	maxHeight  = 20
	branching  = 4
)

type skipNode struct {
	key   base.InternalKey
	value []byte
	next  []*skipNode
}

type skiplist struct {
	mu     sync.RWMutex
	cmp    base.Compare
	head   *skipNode
	height int
	rnd    *rand.Rand
	size   int64
}

func newSkiplist(cmp base.Compare) *skiplist {
	return &skiplist{
		cmp:    cmp,
		head:   &skipNode{next: make([]*skipNode, maxHeight)},
		height: 1,
		rnd:    rand.New(rand.NewSource(0xdeadbeef)),
	}
}

func (s *skiplist) randomHeight() int {
	h := 1
	for h < maxHeight && s.rnd.Intn(branching) == 0 {
		h++
	}
	return h
}

// findGreaterOrEqual returns, for each level, the last node strictly less
// than key (prev[level]), and the first node >= key at level 0 (or nil).
func (s *skiplist) findGreaterOrEqual(key base.InternalKey, prev []*skipNode) *skipNode {
	x := s.head
	level := s.height - 1
	for {
		next := x.next[level]
		if next != nil && base.InternalCompare(s.cmp, next.key, key) < 0 {
			x = next
			continue
		}
		if prev != nil {
			prev[level] = x
		}
		if level == 0 {
			return next
		}
		level--
	}
}

// insert adds key/value, which must compare strictly greater than every key
// already present (callers assign strictly increasing sequence numbers, so
// this always holds for the mutable memtable's single writer).
func (s *skiplist) insert(key base.InternalKey, value []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var prev [maxHeight]*skipNode
	s.findGreaterOrEqual(key, prev[:])

	h := s.randomHeight()
	if h > s.height {
		for i := s.height; i < h; i++ {
			prev[i] = s.head
		}
		s.height = h
	}

	n := &skipNode{key: key, value: value, next: make([]*skipNode, h)}
	for i := 0; i < h; i++ {
		n.next[i] = prev[i].next[i]
		prev[i].next[i] = n
	}
	s.size += int64(key.Size() + len(value))
}

// approximateMemoryUsage returns the number of bytes of key+value data
// inserted, approximating spec.md §3's memtable usage accounting (it omits
// per-node skiplist bookkeeping overhead, which is a small and roughly
// constant multiplier).
func (s *skiplist) approximateMemoryUsage() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.size
}

// get looks up the newest entry for an internal key search key: the first
// entry whose user key equals key.UserKey and whose trailer is <= key's
// (ascending user key, descending (seq,kind) order means this is exactly the
// first entry found at or after key).
func (s *skiplist) get(key base.InternalKey) (value []byte, kind base.InternalKeyKind, found bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := s.findGreaterOrEqual(key, nil)
	if n == nil || s.cmp(n.key.UserKey, key.UserKey) != 0 {
		return nil, 0, false
	}
	return n.value, n.key.Kind(), true
}

// skiplistIterator walks the skiplist in ascending internal-key order. It
// holds no lock of its own; callers that need a stable snapshot across
// concurrent inserts (e.g. a long-lived read iterator) should instead copy
// entries out while holding a consistent memTable reference per spec.md §5's
// "read path still holds a strong reference" guarantee — a finished,
// rotated-out immutable memtable is never mutated again, so iterating it
// lock-free is always safe; iterating the live mutable memtable takes a brief
// read lock per step.
type skiplistIterator struct {
	s   *skiplist
	n   *skipNode
}

func (s *skiplist) newIterator() *skiplistIterator {
	return &skiplistIterator{s: s}
}

func (it *skiplistIterator) First() bool {
	it.s.mu.RLock()
	it.n = it.s.head.next[0]
	it.s.mu.RUnlock()
	return it.n != nil
}

// SeekGE positions the iterator at the first entry whose user key is >= key,
// matching the uniform internalIterator contract (merging_iter.go): seeking
// is always by user key since internal-key order already places the newest
// revision of an equal user key first.
func (it *skiplistIterator) SeekGE(key []byte) bool {
	searchKey := base.MakeInternalKey(key, base.SeqNumMax, base.InternalKeyKindSet)
	it.s.mu.RLock()
	it.n = it.s.findGreaterOrEqual(searchKey, nil)
	it.s.mu.RUnlock()
	return it.n != nil
}

func (it *skiplistIterator) Error() error { return nil }

func (it *skiplistIterator) Next() bool {
	if it.n == nil {
		return false
	}
	it.s.mu.RLock()
	it.n = it.n.next[0]
	it.s.mu.RUnlock()
	return it.n != nil
}

func (it *skiplistIterator) Valid() bool           { return it.n != nil }
func (it *skiplistIterator) Key() base.InternalKey { return it.n.key }
func (it *skiplistIterator) Value() []byte         { return it.n.value }
