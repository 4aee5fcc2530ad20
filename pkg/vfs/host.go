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
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gofrs/flock"

	"github.com/nissan-connect-emu/emu/internal/errdomain"
	"github.com/nissan-connect-emu/emu/internal/linuxabi"
	"github.com/nissan-connect-emu/emu/pkg/cpu"
)

// HostFS joins a configured host root with the guest-relative suffix and
// opens real host files, per spec.md §4.4. Open calls are serialized with
// an advisory flock on a single lock file in the host temp directory,
// shared by every HostFS instance; seek/read/write on an open fd do not
// take that lock.
type HostFS struct {
	root     string
	readOnly bool

	mu    sync.Mutex
	lock  *flock.Flock
	files map[int]*os.File
}

// NewHostFS creates a passthrough backend rooted at root.
func NewHostFS(root string, readOnly bool) *HostFS {
	return &HostFS{
		root:     root,
		readOnly: readOnly,
		lock:     flock.New(filepath.Join(os.TempDir(), ".nc3emu-hostfs.lock")),
		files:    make(map[int]*os.File),
	}
}

func (h *HostFS) hostPath(guestPath string) string {
	return filepath.Join(h.root, filepath.FromSlash(strings.TrimPrefix(guestPath, "/")))
}

func (h *HostFS) SupportsPaths() bool { return true }

func (h *HostFS) Exists(p string) bool {
	_, err := os.Stat(h.hostPath(p))
	return err == nil
}

func (h *HostFS) Mkdir(p string, mode uint32) error {
	if err := os.Mkdir(h.hostPath(p), os.FileMode(mode)); err != nil {
		return errdomain.New(errdomain.WriteError, "mkdir "+p, err)
	}
	return nil
}

func (h *HostFS) ReadDir(p string) ([]string, error) {
	entries, err := os.ReadDir(h.hostPath(p))
	if err != nil {
		return nil, errdomain.New(errdomain.NoSuchFileOrDirectory, "readdir "+p, err)
	}
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name()
	}
	return names, nil
}

func flagsToHostOpenFlag(flags OpenFlags) int {
	var f int
	switch {
	case flags.Read && flags.Write:
		f = os.O_RDWR
	case flags.Write:
		f = os.O_WRONLY
	default:
		f = os.O_RDONLY
	}
	if flags.Append {
		f |= os.O_APPEND
	}
	if flags.Create {
		f |= os.O_CREATE
	}
	if flags.Excl {
		f |= os.O_EXCL
	}
	if flags.Trunc {
		f |= os.O_TRUNC
	}
	return f
}

func (h *HostFS) Open(p string, flags OpenFlags, fd int) error {
	if err := h.lock.Lock(); err == nil {
		defer h.lock.Unlock()
	}

	f, err := os.OpenFile(h.hostPath(p), flagsToHostOpenFlag(flags), 0644)
	if err != nil {
		if os.IsNotExist(err) {
			return errdomain.New(errdomain.NoSuchFileOrDirectory, "open "+p, err)
		}
		if os.IsExist(err) {
			return errdomain.New(errdomain.FileExists, "open "+p, err)
		}
		return errdomain.New(errdomain.NoPermission, "open "+p, err)
	}

	h.mu.Lock()
	h.files[fd] = f
	h.mu.Unlock()
	return nil
}

func (h *HostFS) Close(fd int) error {
	h.mu.Lock()
	f, ok := h.files[fd]
	delete(h.files, fd)
	h.mu.Unlock()
	if !ok {
		return errdomain.New(errdomain.BadFd, "close", nil)
	}
	return f.Close()
}

func (h *HostFS) Link(oldPath, newPath string) error {
	if err := os.Link(h.hostPath(oldPath), h.hostPath(newPath)); err != nil {
		return errdomain.New(errdomain.WriteError, "link", err)
	}
	return nil
}

func (h *HostFS) Unlink(p string) error {
	if err := os.Remove(h.hostPath(p)); err != nil {
		return errdomain.New(errdomain.NoSuchFileOrDirectory, "unlink "+p, err)
	}
	return nil
}

func (h *HostFS) file(fd int) (*os.File, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	f, ok := h.files[fd]
	return f, ok
}

func (h *HostFS) GetDetails(fd int) (FileDetails, bool) {
	f, ok := h.file(fd)
	if !ok {
		return FileDetails{}, false
	}
	st, err := f.Stat()
	if err != nil {
		return FileDetails{}, false
	}
	kind := linuxabi.KindFile
	if st.IsDir() {
		kind = linuxabi.KindDirectory
	}
	return FileDetails{Kind: kind, ReadOnly: h.readOnly, Length: uint64(st.Size())}, true
}

func (h *HostFS) IsOpen(fd int) bool {
	_, ok := h.file(fd)
	return ok
}

func (h *HostFS) Length(fd int) uint64 {
	d, _ := h.GetDetails(fd)
	return d.Length
}

func (h *HostFS) Position(fd int) uint64 {
	f, ok := h.file(fd)
	if !ok {
		return 0
	}
	pos, _ := f.Seek(0, io.SeekCurrent)
	return uint64(pos)
}

func (h *HostFS) Seek(fd int, from SeekFrom, offset int64) (uint64, error) {
	f, ok := h.file(fd)
	if !ok {
		return 0, errdomain.New(errdomain.BadFd, "seek", nil)
	}
	whence := map[SeekFrom]int{SeekStart: io.SeekStart, SeekCurrent: io.SeekCurrent, SeekEnd: io.SeekEnd}[from]
	pos, err := f.Seek(offset, whence)
	if err != nil {
		return 0, errdomain.New(errdomain.InvalidArgument, "seek", err)
	}
	return uint64(pos), nil
}

func (h *HostFS) Read(fd int, buf []byte) (int, error) {
	f, ok := h.file(fd)
	if !ok {
		return 0, errdomain.New(errdomain.BadFd, "read", nil)
	}
	n, err := f.Read(buf)
	if err != nil && err != io.EOF {
		return n, errdomain.New(errdomain.ReadError, "read", err)
	}
	return n, nil
}

func (h *HostFS) Write(fd int, buf []byte) (int, error) {
	if h.readOnly {
		return 0, errdomain.New(errdomain.NoPermission, "write", nil)
	}
	f, ok := h.file(fd)
	if !ok {
		return 0, errdomain.New(errdomain.BadFd, "write", nil)
	}
	n, err := f.Write(buf)
	if err != nil {
		return n, errdomain.New(errdomain.WriteError, "write", err)
	}
	return n, nil
}

func (h *HostFS) Truncate(fd int, length uint64) error {
	f, ok := h.file(fd)
	if !ok {
		return errdomain.New(errdomain.BadFd, "truncate", nil)
	}
	if err := f.Truncate(int64(length)); err != nil {
		return errdomain.New(errdomain.WriteError, "truncate", err)
	}
	return nil
}

func (h *HostFS) Ioctl(_ *cpu.Instance, fd int, request uint32, addr uint32) (int32, error) {
	return -1, errdomain.New(errdomain.InvalidArgument, "ioctl", nil)
}

var _ Backend = (*HostFS)(nil)
