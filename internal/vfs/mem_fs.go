// Copyright 2013 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package vfs

import (
	"io"
	"os"
	"path"
	"sort"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
)

// MemFS is an in-memory FS, used by tests that want to exercise the engine's
// recovery and compaction paths without touching disk. It is a much smaller
// cousin of pebble's vfs.MemFS: no symlinks, no disk-full injection. Link
// makes both names refer to the same in-memory file, which is what
// Checkpoint's hard links need.
type MemFS struct {
	mu    sync.Mutex
	root  *memNode
	locks map[string]bool
}

type memNode struct {
	isDir    bool
	data     []byte
	modTime  time.Time
	children map[string]*memNode
}

func newDir() *memNode { return &memNode{isDir: true, children: map[string]*memNode{}} }

// NewMemFS returns an empty in-memory FS.
func NewMemFS() *MemFS {
	return &MemFS{root: newDir(), locks: map[string]bool{}}
}

func (fs *MemFS) walk(name string, create bool) (*memNode, string, error) {
	clean := path.Clean(filepath_ToSlash(name))
	dir, base := path.Split(clean)
	n := fs.root
	if dir != "" && dir != "/" && dir != "." {
		for _, part := range splitPath(dir) {
			child, ok := n.children[part]
			if !ok {
				if !create {
					return nil, "", os.ErrNotExist
				}
				child = newDir()
				n.children[part] = child
			}
			if !child.isDir {
				return nil, "", errors.New("lsmkv/vfs: not a directory")
			}
			n = child
		}
	}
	return n, base, nil
}

func splitPath(dir string) []string {
	var parts []string
	for _, p := range splitAll(dir) {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return parts
}

func splitAll(p string) []string {
	var out []string
	cur := ""
	for _, r := range p {
		if r == '/' {
			out = append(out, cur)
			cur = ""
		} else {
			cur += string(r)
		}
	}
	out = append(out, cur)
	return out
}

func filepath_ToSlash(p string) string {
	out := make([]rune, 0, len(p))
	for _, r := range p {
		if r == '\\' {
			r = '/'
		}
		out = append(out, r)
	}
	return string(out)
}

// Create implements FS.
func (fs *MemFS) Create(name string) (File, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	parent, base, err := fs.walk(name, true)
	if err != nil {
		return nil, err
	}
	n := &memNode{modTime: time.Now()}
	parent.children[base] = n
	return &memFile{n: n}, nil
}

// Open implements FS.
func (fs *MemFS) Open(name string) (File, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	parent, base, err := fs.walk(name, false)
	if err != nil {
		return nil, err
	}
	n, ok := parent.children[base]
	if !ok {
		return nil, os.ErrNotExist
	}
	return &memFile{n: n}, nil
}

// OpenDir implements FS.
func (fs *MemFS) OpenDir(name string) (File, error) { return fs.Open(name) }

// Remove implements FS.
func (fs *MemFS) Remove(name string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	parent, base, err := fs.walk(name, false)
	if err != nil {
		return nil
	}
	delete(parent.children, base)
	return nil
}

// Rename implements FS.
func (fs *MemFS) Rename(oldname, newname string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	oldParent, oldBase, err := fs.walk(oldname, false)
	if err != nil {
		return err
	}
	n, ok := oldParent.children[oldBase]
	if !ok {
		return os.ErrNotExist
	}
	newParent, newBase, err := fs.walk(newname, true)
	if err != nil {
		return err
	}
	delete(oldParent.children, oldBase)
	newParent.children[newBase] = n
	return nil
}

// Link implements FS as a shallow alias: both names reference the same node.
func (fs *MemFS) Link(oldname, newname string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	oldParent, oldBase, err := fs.walk(oldname, false)
	if err != nil {
		return err
	}
	n, ok := oldParent.children[oldBase]
	if !ok {
		return os.ErrNotExist
	}
	newParent, newBase, err := fs.walk(newname, true)
	if err != nil {
		return err
	}
	newParent.children[newBase] = n
	return nil
}

// MkdirAll implements FS.
func (fs *MemFS) MkdirAll(dir string, perm os.FileMode) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	_, _, err := fs.walk(dir+"/.", true)
	return err
}

// List implements FS.
func (fs *MemFS) List(dir string) ([]string, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	parent, base, err := fs.walk(dir, false)
	if err != nil {
		return nil, err
	}
	n := parent
	if base != "" && base != "." {
		child, ok := parent.children[base]
		if !ok {
			return nil, os.ErrNotExist
		}
		n = child
	}
	names := make([]string, 0, len(n.children))
	for name := range n.children {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Stat implements FS.
func (fs *MemFS) Stat(name string) (os.FileInfo, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	parent, base, err := fs.walk(name, false)
	if err != nil {
		return nil, err
	}
	n, ok := parent.children[base]
	if !ok {
		return nil, os.ErrNotExist
	}
	return memFileInfo{name: base, n: n}, nil
}

func (fs *MemFS) PathJoin(elem ...string) string { return path.Join(elem...) }
func (fs *MemFS) PathBase(p string) string        { return path.Base(p) }
func (fs *MemFS) PathDir(p string) string         { return path.Dir(p) }

// Lock implements FS with an in-process map; sufficient for tests, which
// never run Default and MemFS against the same name concurrently.
func (fs *MemFS) Lock(name string) (io.Closer, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if fs.locks[name] {
		return nil, errors.New("lsmkv/vfs: already locked")
	}
	fs.locks[name] = true
	return &memLockCloser{fs: fs, name: name}, nil
}

type memLockCloser struct {
	fs   *MemFS
	name string
}

func (l *memLockCloser) Close() error {
	l.fs.mu.Lock()
	defer l.fs.mu.Unlock()
	delete(l.fs.locks, l.name)
	return nil
}

type memFile struct {
	n      *memNode
	offset int64
}

func (f *memFile) Close() error { return nil }

func (f *memFile) Read(p []byte) (int, error) {
	n, err := f.ReadAt(p, f.offset)
	f.offset += int64(n)
	return n, err
}

func (f *memFile) ReadAt(p []byte, off int64) (int, error) {
	if off >= int64(len(f.n.data)) {
		return 0, io.EOF
	}
	n := copy(p, f.n.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (f *memFile) Write(p []byte) (int, error) {
	if f.offset+int64(len(p)) > int64(len(f.n.data)) {
		grown := make([]byte, f.offset+int64(len(p)))
		copy(grown, f.n.data)
		f.n.data = grown
	}
	n := copy(f.n.data[f.offset:], p)
	f.offset += int64(n)
	f.n.modTime = time.Now()
	return n, nil
}

func (f *memFile) Stat() (os.FileInfo, error) { return memFileInfo{n: f.n}, nil }

func (f *memFile) Sync() error { return nil }

type memFileInfo struct {
	name string
	n    *memNode
}

func (fi memFileInfo) Name() string       { return fi.name }
func (fi memFileInfo) Size() int64        { return int64(len(fi.n.data)) }
func (fi memFileInfo) Mode() os.FileMode  { return 0666 }
func (fi memFileInfo) ModTime() time.Time { return fi.n.modTime }
func (fi memFileInfo) IsDir() bool        { return fi.n.isDir }
func (fi memFileInfo) Sys() interface{}   { return nil }
