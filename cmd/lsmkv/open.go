// Copyright 2018 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package main

import (
	"github.com/tinsley-labs/lsmkv"
)

var sync bool

// openStore opens (creating if necessary) the store at dir. The --sync flag
// shared across the mutating subcommands is not read here; put and delete
// pass it to each write.
func openStore(dir string) (*lsmkv.DB, error) {
	return lsmkv.Open(dir, &lsmkv.Options{CreateIfMissing: true})
}
