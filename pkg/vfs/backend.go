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

import "github.com/nissan-connect-emu/emu/pkg/cpu"

// Backend is the uniform contract every filesystem implementation
// satisfies (spec.md §4.4): host passthrough, tmpfs, procfs/devfs stubs,
// std streams.
type Backend interface {
	// SupportsPaths reports whether this backend can be addressed by
	// path (std streams cannot; they only answer to fds 0-2).
	SupportsPaths() bool

	Exists(path string) bool
	Mkdir(path string, mode uint32) error
	ReadDir(path string) ([]string, error)

	// Open assigns fd (chosen by the mount table) to path under flags.
	Open(path string, flags OpenFlags, fd int) error
	Close(fd int) error
	Link(oldPath, newPath string) error
	Unlink(path string) error

	GetDetails(fd int) (FileDetails, bool)
	IsOpen(fd int) bool
	Length(fd int) uint64
	Position(fd int) uint64
	Seek(fd int, from SeekFrom, offset int64) (uint64, error)
	Read(fd int, buf []byte) (int, error)
	Write(fd int, buf []byte) (int, error)
	Truncate(fd int, length uint64) error

	// Ioctl answers a device-control request; cpuInst lets the backend
	// read/write guest memory at addr (e.g. to fill a termios struct).
	Ioctl(cpuInst *cpu.Instance, fd int, request uint32, addr uint32) (int32, error)
}
