// Copyright 2013 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package lsmkv

import "github.com/tinsley-labs/lsmkv/internal/base"

// compaction describes one leveled compaction: the inputs picked from
// startLevel and outputLevel, plus whatever overlapping grandparent (L+2)
// files bound how far a single output file may grow, spec.md §4.7.
type compaction struct {
	opts *Options
	cmp  base.Compare

	version     *version
	startLevel  int
	outputLevel int

	// inputs[0] holds the files picked from startLevel, inputs[1] the
	// overlapping files from outputLevel pulled in by grow, and inputs[2] the
	// overlapping grandparent (outputLevel+1) files used by shouldStopBefore.
	inputs [3][]fileMetadata

	// grandparentIndex and seenKey track shouldStopBefore's scan through
	// inputs[2] as output keys are produced in increasing order.
	grandparentIndex int
	seenKey          bool
	overlappedBytes  uint64

	smallestSeqNum uint64
}

func (c *compaction) startLevelNum() int  { return c.startLevel }
func (c *compaction) outputLevelNum() int { return c.outputLevel }

// newCompaction builds a compaction moving startLevel's natural input set
// into outputLevel. The caller may overwrite inputs[0] (e.g. pickManual sets
// it from an explicit key range) before calling setupOtherInputs again;
// pickAuto instead relies on the set newCompaction computes here.
func newCompaction(opts *Options, v *version, startLevel, outputLevel int) *compaction {
	c := &compaction{
		opts:        opts,
		cmp:         opts.cmp(),
		version:     v,
		startLevel:  startLevel,
		outputLevel: outputLevel,
	}
	if startLevel == 0 {
		c.inputs[0] = append([]fileMetadata(nil), v.files[0]...)
	} else {
		c.pickStartLevelFile()
	}
	c.setupOtherInputs()
	return c
}

// pickStartLevelFile chooses one file from startLevel to seed the compaction.
// This engine keeps no persisted per-level compaction pointer (spec.md's open
// question on round-robin starting points is resolved here by always taking
// the first file in key order, which is simplest and sufficient given the
// small fixed level count and fixed-formula scoring), so every auto
// compaction of a level starts from that level's lowest-keyed file.
func (c *compaction) pickStartLevelFile() {
	files := c.version.files[c.startLevel]
	if len(files) == 0 {
		return
	}
	c.inputs[0] = files[:1]
}

// setupOtherInputs expands inputs[0] to every outputLevel file it overlaps
// (inputs[1]), re-expanding inputs[0] itself if doing so pulls in more
// startLevel files without growing outputLevel's set further (grow), then
// records the overlapping grandparent files used by shouldStopBefore.
func (c *compaction) setupOtherInputs() {
	smallest, largest := ikeyRange(c.cmp, c.inputs[0], nil)
	c.inputs[1] = c.version.overlaps(c.outputLevel, c.cmp, smallest.UserKey, largest.UserKey)

	if len(c.inputs[1]) > 0 {
		allSmallest, allLargest := ikeyRange(c.cmp, c.inputs[0], c.inputs[1])
		c.grow(allSmallest.UserKey, allLargest.UserKey)
	}

	if c.outputLevel+1 < numLevels {
		smallest, largest = ikeyRange(c.cmp, c.inputs[0], c.inputs[1])
		c.inputs[2] = c.version.overlaps(c.outputLevel+1, c.cmp, smallest.UserKey, largest.UserKey)
	}

	c.smallestSeqNum = smallestSeqNum(c.inputs[0])
	if len(c.inputs[1]) > 0 {
		c.smallestSeqNum = minSeqNum(c.smallestSeqNum, smallestSeqNum(c.inputs[1]))
	}
}

// grow re-expands inputs[0] to cover [start, end] (the union of the original
// inputs[0] and inputs[1] ranges) in case a wider startLevel set now fits
// without pulling in any further outputLevel files; if it would, the
// original, narrower inputs[0]/inputs[1] are kept instead.
func (c *compaction) grow(start, end []byte) {
	grown := c.version.overlaps(c.startLevel, c.cmp, start, end)
	if len(grown) <= len(c.inputs[0]) {
		return
	}
	if totalSize(grown)+totalSize(c.inputs[1]) >= uint64(maxGrandParentOverlapFactor)*uint64(c.maxOutputFileSize()) {
		return
	}
	gSmallest, gLargest := ikeyRange(c.cmp, grown, nil)
	expanded := c.version.overlaps(c.outputLevel, c.cmp, gSmallest.UserKey, gLargest.UserKey)
	if len(expanded) != len(c.inputs[1]) {
		return
	}
	c.inputs[0] = grown
}

func (c *compaction) maxOutputFileSize() int {
	if c.opts.MaxFileSize > 0 {
		return c.opts.MaxFileSize
	}
	return defaultMaxFileSize
}

// isBaseLevelForUkey reports whether no file at any level below level holds
// an entry for ukey, meaning a tombstone for ukey produced while compacting
// into level is safe to drop: nothing beneath it could be shadowing a stale
// value. Per spec.md §4.1's fixed base level, this only ever needs to look
// at levels below this compaction's own output.
func (c *compaction) isBaseLevelForUkey(userCmp base.Compare, level int, ukey []byte) bool {
	for lvl := level + 1; lvl < numLevels; lvl++ {
		files := c.version.files[lvl]
		i := 0
		for i < len(files) && userCmp(files[i].largest.UserKey, ukey) < 0 {
			i++
		}
		if i < len(files) && userCmp(files[i].smallest.UserKey, ukey) <= 0 {
			return false
		}
	}
	return true
}

// shouldStopBefore reports whether the current output file has accumulated
// enough overlap with grandparent (outputLevel+1) files that a new output
// file should begin before key, bounding how much of L+2 a single compacted
// file can later force to be rewritten together (spec.md §4.7).
func (c *compaction) shouldStopBefore(key base.InternalKey) bool {
	for c.grandparentIndex < len(c.inputs[2]) &&
		base.InternalCompare(c.cmp, key, c.inputs[2][c.grandparentIndex].largest) > 0 {
		if c.seenKey {
			c.overlappedBytes += c.inputs[2][c.grandparentIndex].size
		}
		c.grandparentIndex++
	}
	c.seenKey = true
	if c.overlappedBytes > uint64(maxGrandParentOverlapFactor)*uint64(c.maxOutputFileSize()) {
		c.overlappedBytes = 0
		return true
	}
	return false
}

func smallestSeqNum(files []fileMetadata) uint64 {
	var s uint64
	for i, f := range files {
		if i == 0 || f.smallestSeqNum < s {
			s = f.smallestSeqNum
		}
	}
	return s
}

func minSeqNum(a, b uint64) uint64 {
	if a == 0 || (b != 0 && b < a) {
		return b
	}
	return a
}
