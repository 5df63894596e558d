// Copyright 2019 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package lsmkv

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/tinsley-labs/lsmkv/internal/vfs"
)

func TestCheckpointIsReadableAndIndependent(t *testing.T) {
	fs := vfs.NewMemFS()
	d, err := Open("/store", testOptions(fs))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer d.Close()

	for i := 0; i < 20; i++ {
		k := []byte(fmt.Sprintf("key-%02d", i))
		if err := d.Set(k, []byte("v"), true); err != nil {
			t.Fatalf("Set: %v", err)
		}
	}
	// Force at least one sstable to exist so the checkpoint has to copy
	// table files, not just the WAL: Flush rotates the memtable, the
	// background worker writes it out, and CompactRange moves it down.
	if err := d.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	waitForBackgroundIdle(d)
	if err := d.CompactRange(nil, nil); err != nil {
		t.Fatalf("CompactRange: %v", err)
	}
	if err := d.Set([]byte("key-20"), []byte("unflushed"), true); err != nil {
		t.Fatalf("Set: %v", err)
	}

	if err := d.Checkpoint("/ckpt"); err != nil {
		t.Fatalf("Checkpoint: %v", err)
	}

	ck, err := Open("/ckpt", testOptions(fs))
	if err != nil {
		t.Fatalf("Open(checkpoint): %v", err)
	}
	defer ck.Close()

	for i := 0; i < 21; i++ {
		k := []byte(fmt.Sprintf("key-%02d", i))
		want := "v"
		if i == 20 {
			want = "unflushed"
		}
		value, found, err := ck.Get(k)
		if err != nil || !found || !bytes.Equal(value, []byte(want)) {
			t.Fatalf("checkpoint Get(%s) = (%q, %v, %v), want (%s, true, nil)", k, value, found, err, want)
		}
	}

	// Writes to the live store after the checkpoint must not be visible in
	// the checkpoint's directory.
	if err := d.Set([]byte("key-21"), []byte("after-checkpoint"), true); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if _, found, err := ck.Get([]byte("key-21")); err != nil || found {
		t.Fatalf("checkpoint Get(key-21) = found=%v err=%v, want false,nil", found, err)
	}
}

func TestCheckpointRejectsExistingDestination(t *testing.T) {
	fs := vfs.NewMemFS()
	d, err := Open("/store", testOptions(fs))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer d.Close()

	if err := fs.MkdirAll("/ckpt", 0755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := d.Checkpoint("/ckpt"); err == nil {
		t.Fatalf("Checkpoint into existing directory succeeded, want error")
	}
}
