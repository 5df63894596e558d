// Copyright 2018 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package main

import (
	"log"

	"github.com/spf13/cobra"
)

var putCmd = &cobra.Command{
	Use:   "put <dir> <key> <value>",
	Short: "set a key to a value",
	Args:  cobra.ExactArgs(3),
	Run:   runPut,
}

func init() {
	putCmd.Flags().BoolVar(&sync, "sync", true, "wait for the write to be fsynced")
}

func runPut(cmd *cobra.Command, args []string) {
	d, err := openStore(args[0])
	if err != nil {
		log.Fatal(err)
	}
	defer d.Close()

	if err := d.Set([]byte(args[1]), []byte(args[2]), sync); err != nil {
		log.Fatal(err)
	}
}
