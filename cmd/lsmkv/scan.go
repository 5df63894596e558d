// Copyright 2018 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package main

import (
	"log"
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

var scanLimit int

var scanCmd = &cobra.Command{
	Use:   "scan <dir> [start-key]",
	Short: "scan the keyspace in ascending order, optionally from a start key",
	Args:  cobra.RangeArgs(1, 2),
	Run:   runScan,
}

func init() {
	scanCmd.Flags().IntVar(&scanLimit, "limit", 100, "maximum number of rows to print (0 means unlimited)")
}

func runScan(cmd *cobra.Command, args []string) {
	d, err := openStore(args[0])
	if err != nil {
		log.Fatal(err)
	}
	defer d.Close()

	it, err := d.NewIter()
	if err != nil {
		log.Fatal(err)
	}
	defer it.Close()

	var valid bool
	if len(args) == 2 {
		valid = it.SeekGE([]byte(args[1]))
	} else {
		valid = it.First()
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	table.SetHeader([]string{"key", "value"})

	n := 0
	for ; valid; valid = it.Next() {
		if scanLimit > 0 && n >= scanLimit {
			break
		}
		table.Append([]string{string(it.Key()), string(it.Value())})
		n++
	}
	if err := it.Error(); err != nil {
		log.Fatal(err)
	}
	table.Render()
}
