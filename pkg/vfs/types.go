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

// Package vfs implements the mount-table virtual file system (C4) over a
// set of heterogeneous backends (C3): host passthrough, in-memory tmpfs,
// procfs/devfs stubs, and std streams, producing uniform file descriptors
// per spec.md §4.3/§4.4.
package vfs

import (
	"github.com/nissan-connect-emu/emu/internal/linuxabi"
)

// FileDetails describes a file independent of where it lives (spec.md §3).
type FileDetails struct {
	Kind     linuxabi.FileKind
	ReadOnly bool
	Length   uint64
}

// FileInfo adds path/inode/status-flag bookkeeping the mount table layers
// on top of a backend's FileDetails.
type FileInfo struct {
	FileDetails
	Path        string
	Inode       uint64
	StatusFlags uint32
}

// SeekFrom matches the three lseek(2) whence values.
type SeekFrom int

const (
	SeekStart SeekFrom = iota
	SeekCurrent
	SeekEnd
)

// OpenFlags is the guest's O_* bitfield, already translated to backend-
// neutral booleans by the caller (openat handler) so backends don't each
// need to know the guest ABI's bit positions.
type OpenFlags struct {
	Read      bool
	Write     bool
	Append    bool
	Create    bool
	Excl      bool
	Trunc     bool
	Directory bool
	TempFile  bool
}

// FromBits decodes a raw guest O_* bitfield into OpenFlags.
func FromBits(bits uint32) OpenFlags {
	accMode := bits & 0x3
	return OpenFlags{
		Read:      accMode == linuxabi.ORdOnly || accMode == linuxabi.ORdWr,
		Write:     accMode == linuxabi.OWrOnly || accMode == linuxabi.ORdWr,
		Append:    bits&linuxabi.OAppend != 0,
		Create:    bits&linuxabi.OCreat != 0,
		Excl:      bits&linuxabi.OExcl != 0,
		Trunc:     bits&linuxabi.OTrunc != 0,
		Directory: bits&linuxabi.ODirectory != 0,
		TempFile:  bits&linuxabi.OTmpfile == linuxabi.OTmpfile,
	}
}
