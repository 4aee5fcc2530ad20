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

package syscalls

import (
	"time"

	"github.com/nissan-connect-emu/emu/pkg/vfs"
)

// buildStat64 packs the Linux ARM EABI struct stat64 layout (96 bytes): two
// legacy 32-bit inode/device fields kept for binaries that still read them,
// the real fields libc actually uses, and a trailing 64-bit st_ino. uid/gid
// are hardcoded to 0 — no grounding source supplies a user/group model for
// this emulator's guest process.
func buildStat64(info vfs.FileInfo) []byte {
	now := uint32(time.Now().Unix())
	mode := info.Kind.StMode() | 0644
	blocks := (info.Length + 511) / 512

	b := make([]byte, 96)
	copy(b[0:8], packU64(1)) // st_dev: one fake device for the whole VFS
	copy(b[12:16], packU32(uint32(info.Inode)))
	copy(b[16:20], packU32(mode))
	copy(b[20:24], packU32(1)) // st_nlink
	copy(b[24:28], packU32(0)) // st_uid
	copy(b[28:32], packU32(0)) // st_gid
	copy(b[32:40], packU64(0)) // st_rdev
	copy(b[44:52], packI64(int64(info.Length)))
	copy(b[52:56], packU32(4096)) // st_blksize
	copy(b[56:64], packU64(blocks))
	copy(b[64:68], packU32(now)) // st_atime
	copy(b[72:76], packU32(now)) // st_mtime
	copy(b[80:84], packU32(now)) // st_ctime
	copy(b[88:96], packU64(info.Inode))
	return b
}

func writeStatResult(a args, bufAddr uint32, info vfs.FileInfo, found bool) uint32 {
	if !found {
		return negErrno(errENOENT)
	}
	if err := a.th.CPU().MemWrite(bufAddr, buildStat64(info)); err != nil {
		a.log.WithError(err).Error("syscalls: stat: write guest buffer")
		return negErrno(errEINVAL)
	}
	return 0
}

func sysStat64(a args, pathAddr, bufAddr uint32) uint32 {
	p, err := readPath(a, pathAddr)
	if err != nil {
		return negErrno(errEINVAL)
	}
	info, ok := a.th.Process().Mount().GetFileInfoFromPath(p)
	return writeStatResult(a, bufAddr, info, ok)
}

// sysLstat64 does not distinguish symlinks from their targets since no
// backend models them separately; it behaves exactly like stat64.
func sysLstat64(a args, pathAddr, bufAddr uint32) uint32 {
	return sysStat64(a, pathAddr, bufAddr)
}

func sysFstat64(a args, fd, bufAddr uint32) uint32 {
	info, ok := a.th.Process().Mount().GetFileInfo(int(fd))
	return writeStatResult(a, bufAddr, info, ok)
}

func sysFstatat64(a args, dirfd, pathAddr, bufAddr, flags uint32) uint32 {
	p, err := readPath(a, pathAddr)
	if err != nil {
		return negErrno(errEINVAL)
	}
	abs := resolveAtPath(a.th.Process(), int32(dirfd), p)
	info, ok := a.th.Process().Mount().GetFileInfoFromPath(abs)
	return writeStatResult(a, bufAddr, info, ok)
}

// sysStatfs fills the classic 32-bit struct statfs with plausible
// always-plenty-of-space values; no backend models real capacity.
func sysStatfs(a args, pathAddr, bufAddr uint32) uint32 {
	p, err := readPath(a, pathAddr)
	if err != nil {
		return negErrno(errEINVAL)
	}
	if !a.th.Process().Mount().Exists(p) {
		return negErrno(errENOENT)
	}

	const totalBlocks = 1 << 20
	b := make([]byte, 0, 64)
	b = append(b, packU32(0x01021994)...) // f_type (arbitrary but stable magic)
	b = append(b, packU32(4096)...)       // f_bsize
	b = append(b, packU32(totalBlocks)...)
	b = append(b, packU32(totalBlocks)...) // f_bfree
	b = append(b, packU32(totalBlocks)...) // f_bavail
	b = append(b, packU32(1<<16)...)       // f_files
	b = append(b, packU32(1<<16)...)       // f_ffree
	b = append(b, packU64(0)...)           // f_fsid
	b = append(b, packU32(255)...)         // f_namelen
	b = append(b, packU32(4096)...)        // f_frsize
	b = append(b, packU32(0)...)           // f_flags
	b = append(b, make([]byte, 16)...)     // f_spare[4]

	if err := a.th.CPU().MemWrite(bufAddr, b); err != nil {
		a.log.WithError(err).Error("syscalls: statfs: write guest buffer")
		return negErrno(errEINVAL)
	}
	return 0
}
