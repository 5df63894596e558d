// Copyright 2018 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package main

import (
	"fmt"
	"log"
	"os"

	"github.com/guptarohit/asciigraph"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

var statsGraph bool

var statsCmd = &cobra.Command{
	Use:   "stats <dir>",
	Short: "print per-level file counts/sizes and flush/compaction counters",
	Args:  cobra.ExactArgs(1),
	Run:   runStats,
}

func init() {
	statsCmd.Flags().BoolVar(&statsGraph, "graph", false, "also plot per-level size as an ASCII graph")
}

func runStats(cmd *cobra.Command, args []string) {
	d, err := openStore(args[0])
	if err != nil {
		log.Fatal(err)
	}
	defer d.Close()

	m := d.Metrics()

	table := tablewriter.NewWriter(os.Stdout)
	table.SetAutoFormatHeaders(false)
	table.SetHeader([]string{"level", "files", "size", "score"})
	for level := range m.Levels {
		l := &m.Levels[level]
		table.Append([]string{
			fmt.Sprintf("%d", level),
			fmt.Sprintf("%d", l.NumFiles),
			fmt.Sprintf("%d", l.Size),
			fmt.Sprintf("%.2f", l.Score),
		})
	}
	table.Render()
	fmt.Printf("flushes: %d  compactions: %d\n", m.Flush.Count, m.Compact.Count)

	if statsGraph {
		sizes := make([]float64, len(m.Levels))
		for i := range m.Levels {
			sizes[i] = float64(m.Levels[i].Size)
		}
		fmt.Println(asciigraph.Plot(sizes, asciigraph.Height(10), asciigraph.Caption("bytes per level, L0..L6")))
	}
}
