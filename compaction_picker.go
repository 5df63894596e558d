// Copyright 2018 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package lsmkv

import (
	"sort"
)

// levelMaxBytes sets the target size of level L (L >= 1): 10^L x 1 MiB.
func levelMaxBytes(level int) uint64 {
	b := uint64(1 << 20)
	for i := 0; i < level; i++ {
		b *= 10
	}
	return b
}

// compactionInfo describes an in-progress compaction enough for the picker to
// avoid scheduling a conflicting one.
type compactionInfo interface {
	startLevelNum() int
	outputLevelNum() int
}

// manualCompaction names a pending user-requested compaction, spec.md §4.8.
type manualCompaction struct {
	level       int
	outputLevel int
	start, end  []byte
	done        chan error
}

// compactionPicker holds the per-level compaction scores computed for one
// version, spec.md §4.1's "Compaction score (per level)": L0 uses
// file_count/L0CompactionTrigger, L>=1 uses total_bytes/(10^L x 1MiB). The
// base level is always 1 — unlike later pebble versions, this picker does not
// dynamically raise the base level to which L0 compacts.
type compactionPicker struct {
	opts *Options
	vers *version

	scores [numLevels]float64
	queue  []pickedLevel
}

type pickedLevel struct {
	level       int
	outputLevel int
	score       float64
}

func newCompactionPicker(v *version, opts *Options) *compactionPicker {
	p := &compactionPicker{opts: opts, vers: v}
	p.initScores()
	return p
}

func (p *compactionPicker) initScores() {
	p.scores[0] = float64(len(p.vers.files[0])) / float64(l0CompactionTrigger)
	for level := 1; level < numLevels; level++ {
		p.scores[level] = float64(totalSize(p.vers.files[level])) / float64(levelMaxBytes(level))
	}

	var levels []int
	for level := 0; level < numLevels-1; level++ {
		if p.scores[level] >= 1 {
			levels = append(levels, level)
		}
	}
	sort.Slice(levels, func(i, j int) bool { return p.scores[levels[i]] > p.scores[levels[j]] })
	for _, level := range levels {
		p.queue = append(p.queue, pickedLevel{level: level, outputLevel: level + 1, score: p.scores[level]})
	}

	// A level holding a file whose seek budget ran out (markedForCompaction,
	// set by maybeRecordSeekLocked) jumps ahead of every size-triggered level.
	for level := 0; level < numLevels-1; level++ {
		for i := range p.vers.files[level] {
			if p.vers.files[level][i].markedForCompaction {
				p.queue = append([]pickedLevel{{level: level, outputLevel: level + 1, score: p.scores[level]}}, p.queue...)
				break
			}
		}
	}
}

// estimatedCompactionDebt sums, for every level at or above its target size,
// the bytes that must eventually be rewritten for the tree to settle.
func (p *compactionPicker) estimatedCompactionDebt() uint64 {
	var debt uint64
	debt += totalSize(p.vers.files[0])
	for level := 1; level < numLevels; level++ {
		size := totalSize(p.vers.files[level])
		max := levelMaxBytes(level)
		if size > max {
			debt += size - max
		}
	}
	return debt
}

// pickAuto returns the next size- or mark-triggered compaction, skipping any
// that would conflict with an already in-progress one.
func (p *compactionPicker) pickAuto(inProgress []compactionInfo) *compaction {
	for len(p.queue) > 0 {
		next := p.queue[0]
		p.queue = p.queue[1:]
		if conflictsWithInProgress(next.level, next.outputLevel, inProgress) {
			continue
		}
		return newCompaction(p.opts, p.vers, next.level, next.outputLevel)
	}
	return nil
}

// pickManual builds a compaction for a manual request over [start, end] at
// manual.level; retryLater is true if it conflicts with an in-progress
// compaction and should be retried once that one completes.
func (p *compactionPicker) pickManual(manual *manualCompaction, inProgress []compactionInfo) (c *compaction, retryLater bool) {
	outputLevel := manual.level + 1
	if conflictsWithInProgress(manual.level, outputLevel, inProgress) {
		return nil, true
	}
	cmp := p.opts.cmp()
	c = newCompaction(p.opts, p.vers, manual.level, outputLevel)
	c.inputs[0] = p.vers.overlaps(manual.level, cmp, manual.start, manual.end)
	if len(c.inputs[0]) == 0 {
		return nil, false
	}
	c.setupOtherInputs()
	return c, false
}

func conflictsWithInProgress(level, outputLevel int, inProgress []compactionInfo) bool {
	for _, c := range inProgress {
		if level == c.startLevelNum() || outputLevel == c.startLevelNum() || level == c.outputLevelNum() {
			return true
		}
	}
	return false
}
