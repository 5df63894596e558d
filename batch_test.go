// Copyright 2012 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package lsmkv

import (
	"bytes"
	"testing"

	"github.com/tinsley-labs/lsmkv/internal/base"
)

func TestBatchSetDelete(t *testing.T) {
	b := NewBatch()
	if !b.Empty() {
		t.Fatalf("new batch should be empty")
	}

	b.Set([]byte("a"), []byte("1"))
	b.Delete([]byte("b"))
	b.Set([]byte("c"), []byte("3"))

	if b.Empty() {
		t.Fatalf("batch should not be empty after Set/Delete")
	}
	if b.Count() != 3 {
		t.Fatalf("Count() = %d, want 3", b.Count())
	}

	entries := b.entries()
	if len(entries) != 3 {
		t.Fatalf("entries() returned %d entries, want 3", len(entries))
	}

	want := []batchEntry{
		{kind: base.InternalKeyKindSet, key: []byte("a"), value: []byte("1")},
		{kind: base.InternalKeyKindDelete, key: []byte("b")},
		{kind: base.InternalKeyKindSet, key: []byte("c"), value: []byte("3")},
	}
	for i, e := range entries {
		if e.kind != want[i].kind || !bytes.Equal(e.key, want[i].key) || !bytes.Equal(e.value, want[i].value) {
			t.Fatalf("entries()[%d] = %+v, want %+v", i, e, want[i])
		}
	}
}

func TestBatchSetSeqNumAndDecode(t *testing.T) {
	b := NewBatch()
	b.Set([]byte("x"), []byte("y"))
	b.Delete([]byte("z"))
	b.setSeqNum(42)

	seqNum, entries, err := decodeBatch(b.data)
	if err != nil {
		t.Fatalf("decodeBatch failed: %v", err)
	}
	if seqNum != 42 {
		t.Fatalf("decodeBatch seqNum = %d, want 42", seqNum)
	}
	if len(entries) != 2 {
		t.Fatalf("decodeBatch entries = %d, want 2", len(entries))
	}
	if !bytes.Equal(entries[0].key, []byte("x")) || !bytes.Equal(entries[0].value, []byte("y")) {
		t.Fatalf("decodeBatch entries[0] = %+v", entries[0])
	}
	if entries[1].kind != base.InternalKeyKindDelete || !bytes.Equal(entries[1].key, []byte("z")) {
		t.Fatalf("decodeBatch entries[1] = %+v", entries[1])
	}
}

func TestDecodeBatchRejectsTornPayload(t *testing.T) {
	b := NewBatch()
	b.Set([]byte("k"), []byte("v"))
	b.setSeqNum(1)

	torn := b.data[:len(b.data)-1]
	if _, _, err := decodeBatch(torn); err == nil {
		t.Fatalf("decodeBatch should reject a truncated payload")
	}

	if _, _, err := decodeBatch(nil); err == nil {
		t.Fatalf("decodeBatch should reject a payload shorter than the header")
	}
}

func TestBatchApproximateSize(t *testing.T) {
	b := NewBatch()
	if b.approximateSize() != batchHeaderLen {
		t.Fatalf("empty batch approximateSize = %d, want %d", b.approximateSize(), batchHeaderLen)
	}
	b.Set([]byte("ab"), []byte("cde"))
	want := batchHeaderLen + batchHeaderLen + 2 + 3
	if got := b.approximateSize(); got != want {
		t.Fatalf("approximateSize() = %d, want %d", got, want)
	}
}
