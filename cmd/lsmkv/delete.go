// Copyright 2018 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package main

import (
	"log"

	"github.com/spf13/cobra"
)

var deleteCmd = &cobra.Command{
	Use:   "delete <dir> <key>",
	Short: "delete a key",
	Args:  cobra.ExactArgs(2),
	Run:   runDelete,
}

func init() {
	deleteCmd.Flags().BoolVar(&sync, "sync", true, "wait for the write to be fsynced")
}

func runDelete(cmd *cobra.Command, args []string) {
	d, err := openStore(args[0])
	if err != nil {
		log.Fatal(err)
	}
	defer d.Close()

	if err := d.Delete([]byte(args[1]), sync); err != nil {
		log.Fatal(err)
	}
}
