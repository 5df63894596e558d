// Copyright 2018 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Command lsmkv is a small introspection tool for a lsmkv store (put, get,
// delete, scan, compact, stats), in the spirit of the teacher's own
// cmd/pebble tool.
package main

import (
	"log"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "lsmkv [command] (flags)",
	Short: "lsmkv store introspection tool",
	Long:  ``,
}

func main() {
	log.SetFlags(0)

	cobra.EnableCommandSorting = false
	rootCmd.AddCommand(
		putCmd,
		getCmd,
		deleteCmd,
		scanCmd,
		compactCmd,
		statsCmd,
	)

	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
