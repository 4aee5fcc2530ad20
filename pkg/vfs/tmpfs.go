// Copyright 2026 The nissan-connect-emu Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package vfs

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/nissan-connect-emu/emu/internal/errdomain"
	"github.com/nissan-connect-emu/emu/internal/linuxabi"
	"github.com/nissan-connect-emu/emu/pkg/cpu"
)

// tmpEntry is a shared, mutable byte buffer tagged with a kind, grounded on
// original_source/.../file_system/tmp_file_system.rs.
type tmpEntry struct {
	kind linuxabi.FileKind
	data []byte
}

type tmpHandle struct {
	path string
	pos  int
}

// Tmpfs is an in-memory filesystem keyed by absolute guest path.
type Tmpfs struct {
	mu      sync.Mutex
	entries map[string]*tmpEntry
	handles map[int]*tmpHandle
}

// NewTmpfs creates an empty in-memory filesystem.
func NewTmpfs() *Tmpfs {
	return &Tmpfs{
		entries: make(map[string]*tmpEntry),
		handles: make(map[int]*tmpHandle),
	}
}

// Preload seeds a well-known path with fixed content, used to build the
// procfs/devfs stubs (spec.md §4.4).
func (t *Tmpfs) Preload(path string, kind linuxabi.FileKind, content []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries[path] = &tmpEntry{kind: kind, data: append([]byte(nil), content...)}
}

func (t *Tmpfs) SupportsPaths() bool { return true }

func (t *Tmpfs) Exists(p string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.entries[p]
	return ok
}

func (t *Tmpfs) Mkdir(p string, mode uint32) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.entries[p]; ok {
		return errdomain.New(errdomain.FileExists, "mkdir "+p, nil)
	}
	t.entries[p] = &tmpEntry{kind: linuxabi.KindDirectory}
	return nil
}

// ReadDir enumerates unique one-level children under prefix.
func (t *Tmpfs) ReadDir(prefix string) ([]string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	prefix = strings.TrimSuffix(prefix, "/")
	seen := make(map[string]bool)
	var out []string
	for p := range t.entries {
		if p == prefix {
			continue
		}
		rel := strings.TrimPrefix(p, prefix+"/")
		if rel == p {
			continue // not under prefix
		}
		child := rel
		if idx := strings.IndexByte(rel, '/'); idx >= 0 {
			child = rel[:idx]
		}
		if !seen[child] {
			seen[child] = true
			out = append(out, child)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (t *Tmpfs) Open(p string, flags OpenFlags, fd int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.entries[p]
	if !ok {
		if !flags.Create {
			return errdomain.New(errdomain.NoSuchFileOrDirectory, "open "+p, nil)
		}
		entry = &tmpEntry{kind: linuxabi.KindFile}
		t.entries[p] = entry
	} else if flags.Create && flags.Excl {
		return errdomain.New(errdomain.FileExists, "open "+p, nil)
	}

	if flags.Trunc {
		entry.data = entry.data[:0]
	}

	pos := 0
	if flags.Append {
		pos = len(entry.data)
	}
	t.handles[fd] = &tmpHandle{path: p, pos: pos}
	return nil
}

func (t *Tmpfs) Close(fd int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.handles[fd]; !ok {
		return errdomain.New(errdomain.BadFd, "close", nil)
	}
	delete(t.handles, fd)
	return nil
}

func (t *Tmpfs) Link(oldPath, newPath string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	entry, ok := t.entries[oldPath]
	if !ok {
		return errdomain.New(errdomain.NoSuchFileOrDirectory, "link "+oldPath, nil)
	}
	t.entries[newPath] = entry
	return nil
}

func (t *Tmpfs) Unlink(p string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.entries[p]; !ok {
		return errdomain.New(errdomain.NoSuchFileOrDirectory, "unlink "+p, nil)
	}
	delete(t.entries, p)
	return nil
}

func (t *Tmpfs) GetDetails(fd int) (FileDetails, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	h, ok := t.handles[fd]
	if !ok {
		return FileDetails{}, false
	}
	entry := t.entries[h.path]
	return FileDetails{Kind: entry.kind, Length: uint64(len(entry.data))}, true
}

func (t *Tmpfs) IsOpen(fd int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.handles[fd]
	return ok
}

func (t *Tmpfs) Length(fd int) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	h, ok := t.handles[fd]
	if !ok {
		return 0
	}
	return uint64(len(t.entries[h.path].data))
}

func (t *Tmpfs) Position(fd int) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	h, ok := t.handles[fd]
	if !ok {
		return 0
	}
	return uint64(h.pos)
}

func (t *Tmpfs) Seek(fd int, from SeekFrom, offset int64) (uint64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	h, ok := t.handles[fd]
	if !ok {
		return 0, errdomain.New(errdomain.BadFd, "seek", nil)
	}
	entry := t.entries[h.path]
	var base int
	switch from {
	case SeekStart:
		base = 0
	case SeekCurrent:
		base = h.pos
	case SeekEnd:
		base = len(entry.data)
	}
	newPos := base + int(offset)
	if newPos < 0 {
		return 0, errdomain.New(errdomain.InvalidArgument, "seek", nil)
	}
	h.pos = newPos
	return uint64(newPos), nil
}

func (t *Tmpfs) Read(fd int, buf []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	h, ok := t.handles[fd]
	if !ok {
		return 0, errdomain.New(errdomain.BadFd, "read", nil)
	}
	entry := t.entries[h.path]
	if h.pos >= len(entry.data) {
		return 0, nil
	}
	n := copy(buf, entry.data[h.pos:])
	h.pos += n
	return n, nil
}

func (t *Tmpfs) Write(fd int, buf []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	h, ok := t.handles[fd]
	if !ok {
		return 0, errdomain.New(errdomain.BadFd, "write", nil)
	}
	entry := t.entries[h.path]
	end := h.pos + len(buf)
	if end > len(entry.data) {
		grown := make([]byte, end)
		copy(grown, entry.data)
		entry.data = grown
	}
	copy(entry.data[h.pos:end], buf)
	h.pos = end
	return len(buf), nil
}

func (t *Tmpfs) Truncate(fd int, length uint64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	h, ok := t.handles[fd]
	if !ok {
		return errdomain.New(errdomain.BadFd, "truncate", nil)
	}
	entry := t.entries[h.path]
	if int(length) <= len(entry.data) {
		entry.data = entry.data[:length]
	} else {
		grown := make([]byte, length)
		copy(grown, entry.data)
		entry.data = grown
	}
	return nil
}

func (t *Tmpfs) Ioctl(_ *cpu.Instance, fd int, request uint32, addr uint32) (int32, error) {
	return 0, fmt.Errorf("tmpfs: ioctl %#x not supported on fd %d addr %#x", request, fd, addr)
}

var _ Backend = (*Tmpfs)(nil)

// NewProcFS builds a tmpfs preloaded with the well-known /proc paths
// spec.md §4.4 names: /proc/cmdline, /proc/self/cmdline, and (per
// SPEC_FULL.md's supplemented readlink behavior) /proc/self/exe.
func NewProcFS(cmdline string, selfExe string) *Tmpfs {
	fs := NewTmpfs()
	fs.Preload("/cmdline", linuxabi.KindFile, []byte(cmdline))
	fs.Preload("/self/cmdline", linuxabi.KindFile, []byte(cmdline))
	fs.Preload("/self/exe", linuxabi.KindLink, []byte(selfExe))
	return fs
}

// NewDevFS builds a tmpfs preloaded with the automotive head-unit's
// well-known device nodes (spec.md §4.4: /dev/iosc, /dev/errmem).
func NewDevFS() *Tmpfs {
	fs := NewTmpfs()
	fs.Preload("/iosc", linuxabi.KindCharacterDevice, nil)
	fs.Preload("/errmem", linuxabi.KindCharacterDevice, nil)
	return fs
}
