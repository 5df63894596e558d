// Copyright 2018 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package main

import (
	"log"

	"github.com/spf13/cobra"
)

var compactStart, compactEnd string

var compactCmd = &cobra.Command{
	Use:   "compact <dir>",
	Short: "force a compaction over [start, end] (defaults to the whole keyspace)",
	Args:  cobra.ExactArgs(1),
	Run:   runCompact,
}

func init() {
	compactCmd.Flags().StringVar(&compactStart, "start", "", "inclusive start key (empty means unbounded)")
	compactCmd.Flags().StringVar(&compactEnd, "end", "", "inclusive end key (empty means unbounded)")
}

func runCompact(cmd *cobra.Command, args []string) {
	d, err := openStore(args[0])
	if err != nil {
		log.Fatal(err)
	}
	defer d.Close()

	var start, end []byte
	if compactStart != "" {
		start = []byte(compactStart)
	}
	if compactEnd != "" {
		end = []byte(compactEnd)
	}
	if err := d.CompactRange(start, end); err != nil {
		log.Fatal(err)
	}
}
