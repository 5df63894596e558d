// Copyright 2018 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package main

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"
)

var getCmd = &cobra.Command{
	Use:   "get <dir> <key>",
	Short: "look up a key",
	Args:  cobra.ExactArgs(2),
	Run:   runGet,
}

func runGet(cmd *cobra.Command, args []string) {
	d, err := openStore(args[0])
	if err != nil {
		log.Fatal(err)
	}
	defer d.Close()

	value, found, err := d.Get([]byte(args[1]))
	if err != nil {
		log.Fatal(err)
	}
	if !found {
		fmt.Println("(not found)")
		os.Exit(1)
	}
	fmt.Println(string(value))
}
