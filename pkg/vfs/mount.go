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
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/nissan-connect-emu/emu/internal/errdomain"
	"github.com/nissan-connect-emu/emu/pkg/cpu"
)

// MountPoint pairs a prefix with the backend that owns paths under it
// (spec.md §3). An empty prefix matches no path and only serves std-stream
// fds (invariant M1).
type MountPoint struct {
	Prefix   string
	Backend  Backend
	ReadOnly bool
}

// MountTable is the longest-prefix mount table (C4): path normalization,
// fd allocation, the inode table, per-fd status flags, and fan-out
// read/write/seek/ioctl (spec.md §4.3). It is constructed once and never
// mutated after New.
type MountTable struct {
	mountPoints []MountPoint // sorted by prefix length descending

	mu          sync.Mutex
	cwd         string
	inodes      map[string]uint64
	nextInode   uint64
	fileData    map[int]*fdData
}

type fdData struct {
	path        string
	statusFlags uint32
}

// New builds a MountTable from an ordered list of mount points, sorting
// them by prefix length descending so the first prefix match is always the
// longest (invariant M1).
func New(mountPoints []MountPoint) *MountTable {
	sorted := append([]MountPoint(nil), mountPoints...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return len(sorted[i].Prefix) > len(sorted[j].Prefix)
	})
	return &MountTable{
		mountPoints: sorted,
		cwd:         "/",
		inodes:      make(map[string]uint64),
		fileData:    make(map[int]*fdData),
	}
}

// SetCWD sets the current working directory used to resolve relative
// paths.
func (m *MountTable) SetCWD(cwd string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cwd = cwd
}

func (m *MountTable) CWD() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cwd
}

// ToAbsolute normalizes p to an absolute, cleaned path relative to cwd.
func (m *MountTable) ToAbsolute(p string) string {
	if strings.HasPrefix(p, "/") {
		return path.Clean(p)
	}
	m.mu.Lock()
	cwd := m.cwd
	m.mu.Unlock()
	return path.Clean(path.Join(cwd, p))
}

// mountFor finds the longest-prefix, path-addressable mount for the
// already-normalized absolute path, returning the backend-relative suffix.
func (m *MountTable) mountFor(absPath string) (*MountPoint, string, bool) {
	for i := range m.mountPoints {
		mp := &m.mountPoints[i]
		if mp.Prefix == "" || !mp.Backend.SupportsPaths() {
			continue
		}
		if absPath == mp.Prefix || strings.HasPrefix(absPath, strings.TrimSuffix(mp.Prefix, "/")+"/") {
			rel := strings.TrimPrefix(absPath, strings.TrimSuffix(mp.Prefix, "/"))
			if rel == "" {
				rel = "/"
			}
			return mp, rel, true
		}
	}
	return nil, "", false
}

// mountForFd finds the mount whose backend reports fd as open (fstat-style
// dispatch, spec.md §4.3).
func (m *MountTable) mountForFd(fd int) (*MountPoint, bool) {
	for i := range m.mountPoints {
		if m.mountPoints[i].Backend.IsOpen(fd) {
			return &m.mountPoints[i], true
		}
	}
	return nil, false
}

func (m *MountTable) uniqueFd() int {
	fd := 0
	for {
		if _, ok := m.mountForFd(fd); !ok {
			return fd
		}
		fd++
	}
}

func (m *MountTable) inodeFor(absPath string) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ino, ok := m.inodes[absPath]; ok {
		return ino
	}
	m.nextInode++
	m.inodes[absPath] = m.nextInode
	return m.nextInode
}

// Open resolves path, rejects write-shaped opens against readonly mounts,
// and delegates to the owning backend (spec.md §4.3).
func (m *MountTable) Open(p string, flags OpenFlags) (int, error) {
	abs := m.ToAbsolute(p)
	mp, rel, ok := m.mountFor(abs)
	if !ok {
		return 0, errdomain.New(errdomain.FileSystemNotMounted, "open "+abs, nil)
	}
	if mp.ReadOnly && (flags.Write || (flags.Create && flags.Excl) || flags.TempFile) {
		return 0, errdomain.New(errdomain.NoPermission, "open "+abs, nil)
	}

	m.mu.Lock()
	fd := m.uniqueFd()
	m.mu.Unlock()

	if err := mp.Backend.Open(rel, flags, fd); err != nil {
		return 0, err
	}

	m.mu.Lock()
	m.fileData[fd] = &fdData{path: abs}
	m.mu.Unlock()
	return fd, nil
}

func (m *MountTable) Close(fd int) error {
	mp, ok := m.mountForFd(fd)
	m.mu.Lock()
	delete(m.fileData, fd)
	m.mu.Unlock()
	if !ok {
		return errdomain.New(errdomain.BadFd, "close", nil)
	}
	return mp.Backend.Close(fd)
}

func (m *MountTable) Mkdir(p string, mode uint32) error {
	abs := m.ToAbsolute(p)
	mp, rel, ok := m.mountFor(abs)
	if !ok {
		return errdomain.New(errdomain.FileSystemNotMounted, "mkdir "+abs, nil)
	}
	return mp.Backend.Mkdir(rel, mode)
}

func (m *MountTable) Exists(p string) bool {
	abs := m.ToAbsolute(p)
	mp, rel, ok := m.mountFor(abs)
	if !ok {
		return false
	}
	return mp.Backend.Exists(rel)
}

func (m *MountTable) ReadDir(p string) ([]string, error) {
	abs := m.ToAbsolute(p)
	mp, rel, ok := m.mountFor(abs)
	if !ok {
		return nil, errdomain.New(errdomain.FileSystemNotMounted, "readdir "+abs, nil)
	}
	return mp.Backend.ReadDir(rel)
}

func (m *MountTable) Link(oldPath, newPath string) error {
	absOld := m.ToAbsolute(oldPath)
	mp, relOld, ok := m.mountFor(absOld)
	if !ok {
		return errdomain.New(errdomain.FileSystemNotMounted, "link "+absOld, nil)
	}
	absNew := m.ToAbsolute(newPath)
	relNew := strings.TrimPrefix(absNew, strings.TrimSuffix(mp.Prefix, "/"))
	return mp.Backend.Link(relOld, relNew)
}

func (m *MountTable) Unlink(p string) error {
	abs := m.ToAbsolute(p)
	mp, rel, ok := m.mountFor(abs)
	if !ok {
		return errdomain.New(errdomain.FileSystemNotMounted, "unlink "+abs, nil)
	}
	return mp.Backend.Unlink(rel)
}

// GetFileInfo dispatches by owning-mount lookup (fstat-style, spec.md §4.3).
func (m *MountTable) GetFileInfo(fd int) (FileInfo, bool) {
	mp, ok := m.mountForFd(fd)
	if !ok {
		return FileInfo{}, false
	}
	details, ok := mp.Backend.GetDetails(fd)
	if !ok {
		return FileInfo{}, false
	}
	m.mu.Lock()
	data := m.fileData[fd]
	m.mu.Unlock()
	var p string
	var flags uint32
	if data != nil {
		p = data.path
		flags = data.statusFlags
	}
	return FileInfo{
		FileDetails: details,
		Path:        p,
		Inode:       m.inodeFor(p),
		StatusFlags: flags,
	}, true
}

// GetFileInfoFromPath opens p read-only, captures its FileInfo, and closes
// it again (used by stat64/lstat64 family handlers).
func (m *MountTable) GetFileInfoFromPath(p string) (FileInfo, bool) {
	fd, err := m.Open(p, OpenFlags{Read: true})
	if err != nil {
		return FileInfo{}, false
	}
	defer m.Close(fd)
	return m.GetFileInfo(fd)
}

func (m *MountTable) StatusFlags(fd int) (uint32, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.fileData[fd]
	if !ok {
		return 0, false
	}
	return data.statusFlags, true
}

func (m *MountTable) SetStatusFlags(fd int, flags uint32) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.fileData[fd]
	if !ok {
		return false
	}
	data.statusFlags = flags
	return true
}

func (m *MountTable) IsOpen(fd int) bool {
	_, ok := m.mountForFd(fd)
	return ok
}

func (m *MountTable) Length(fd int) uint64 {
	mp, ok := m.mountForFd(fd)
	if !ok {
		return 0
	}
	return mp.Backend.Length(fd)
}

func (m *MountTable) Position(fd int) uint64 {
	mp, ok := m.mountForFd(fd)
	if !ok {
		return 0
	}
	return mp.Backend.Position(fd)
}

func (m *MountTable) Seek(fd int, from SeekFrom, offset int64) (uint64, error) {
	mp, ok := m.mountForFd(fd)
	if !ok {
		return 0, errdomain.New(errdomain.BadFd, "seek", nil)
	}
	return mp.Backend.Seek(fd, from, offset)
}

func (m *MountTable) Read(fd int, buf []byte) (int, error) {
	mp, ok := m.mountForFd(fd)
	if !ok {
		return 0, errdomain.New(errdomain.BadFd, "read", nil)
	}
	return mp.Backend.Read(fd, buf)
}

func (m *MountTable) Write(fd int, buf []byte) (int, error) {
	mp, ok := m.mountForFd(fd)
	if !ok {
		return 0, errdomain.New(errdomain.BadFd, "write", nil)
	}
	if mp.ReadOnly {
		return 0, errdomain.New(errdomain.NoPermission, "write", nil)
	}
	return mp.Backend.Write(fd, buf)
}

func (m *MountTable) Truncate(fd int, length uint64) error {
	mp, ok := m.mountForFd(fd)
	if !ok {
		return errdomain.New(errdomain.BadFd, "truncate", nil)
	}
	return mp.Backend.Truncate(fd, length)
}

func (m *MountTable) Ioctl(cpuInst *cpu.Instance, fd int, request uint32, addr uint32) (int32, error) {
	mp, ok := m.mountForFd(fd)
	if !ok {
		return -1, errdomain.New(errdomain.BadFd, "ioctl", nil)
	}
	return mp.Backend.Ioctl(cpuInst, fd, request, addr)
}

// ReadOnly reports whether fd's owning mount is readonly (used by fcntl
// F_GETFL).
func (m *MountTable) ReadOnly(fd int) bool {
	mp, ok := m.mountForFd(fd)
	return ok && mp.ReadOnly
}
