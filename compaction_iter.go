// Copyright 2018 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package lsmkv

import "github.com/tinsley-labs/lsmkv/internal/base"

// compactionIter wraps a mergingIter over a compaction's inputs and collapses
// entries no longer needed in the output, spec.md §4.7's drop rules.
//
// Entries for the same user key are processed in descending-sequence-number
// order (internal key order already guarantees this). Within one "snapshot
// stripe" — the run of entries newer than the next older live snapshot — only
// the newest entry need survive; entries in different stripes must both
// survive, since a held snapshot must still see its own view.
//
// A Delete marker can additionally be dropped outright, rather than carried
// forward, once its sequence number is at or below the oldest live snapshot
// and the compaction is at the base level for this user key (isBase reports
// that no deeper level holds it), so nothing surviving in a lower level can be
// un-shadowed by dropping it.
type compactionIter struct {
	iter   *mergingIter
	cmp    base.Compare
	snaps  []uint64 // live snapshot sequence numbers, ascending
	isBase func(userKey []byte) bool

	currentUkey    []byte
	hasCurrentUkey bool
	lastSeqNum     uint64

	key   base.InternalKey
	value []byte
	valid bool
}

func newCompactionIter(iter *mergingIter, cmp base.Compare, snaps []uint64, isBase func([]byte) bool) *compactionIter {
	return &compactionIter{iter: iter, cmp: cmp, snaps: snaps, isBase: isBase, lastSeqNum: base.SeqNumMax}
}

// stripeFloor returns the largest live snapshot sequence number strictly
// below seqNum, or 0 if there is none; entries with the same floor belong to
// the same stripe.
func (i *compactionIter) stripeFloor(seqNum uint64) uint64 {
	floor := uint64(0)
	for _, s := range i.snaps {
		if s >= seqNum {
			return floor
		}
		floor = s
	}
	return floor
}

// First/Next advance to the next surviving entry. They return false once the
// underlying iterator is exhausted.
func (i *compactionIter) First() bool { return i.iter.First() && i.findNextEntry() }
func (i *compactionIter) Next() bool  { return i.iter.Next() && i.findNextEntry() }

func (i *compactionIter) findNextEntry() bool {
	for {
		ikey := i.iter.Key()
		if ikey.Kind() == base.InternalKeyKindInvalid {
			// Do not hide unparseable keys: surface them rather than silently
			// dropping them (spec.md §9's resolved Open Question).
			i.currentUkey = i.currentUkey[:0]
			i.hasCurrentUkey = false
			i.lastSeqNum = base.SeqNumMax
			i.key, i.value, i.valid = ikey, i.iter.Value(), true
			return true
		}

		ukey := ikey.UserKey
		newKey := !i.hasCurrentUkey || i.cmp(i.currentUkey, ukey) != 0
		if newKey {
			i.currentUkey = append(i.currentUkey[:0], ukey...)
			i.hasCurrentUkey = true
			i.lastSeqNum = base.SeqNumMax
		}

		seqNum := ikey.SeqNum()
		prevStripe := i.stripeFloor(i.lastSeqNum)
		sameStripe := !newKey && seqNum > prevStripe

		drop := false
		if sameStripe {
			// Shadowed by a newer entry for this key within the same stripe.
			drop = true
		} else if ikey.Kind() == base.InternalKeyKindDelete && i.isBase(ukey) && i.stripeFloor(seqNum) == 0 {
			// No snapshot needs this tombstone and nothing lower can be un-shadowed
			// by dropping it.
			drop = true
		}

		i.lastSeqNum = seqNum
		if drop {
			if !i.iter.Next() {
				return false
			}
			continue
		}

		i.key, i.value, i.valid = ikey, i.iter.Value(), true
		return true
	}
}

func (i *compactionIter) Key() base.InternalKey { return i.key }
func (i *compactionIter) Value() []byte         { return i.value }
func (i *compactionIter) Valid() bool           { return i.valid }
