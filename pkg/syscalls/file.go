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
	"path"

	"github.com/nissan-connect-emu/emu/internal/linuxabi"
	"github.com/nissan-connect-emu/emu/pkg/kernel"
	"github.com/nissan-connect-emu/emu/pkg/vfs"
)

const maxPathLen = 4096

func readPath(a args, addr uint32) (string, error) {
	return a.th.Process().MMU().ReadCString(addr, maxPathLen)
}

// resolveAtPath implements openat/fstatat64/readlinkat's dirfd resolution
// (spec.md §4.7): an absolute rel is used as-is; AT_FDCWD resolves against
// the process CWD; any other dirfd resolves against that fd's own path.
func resolveAtPath(proc *kernel.Process, dirfd int32, rel string) string {
	if path.IsAbs(rel) {
		return path.Clean(rel)
	}
	if dirfd == linuxabi.AtFdcwd {
		return proc.Mount().ToAbsolute(rel)
	}
	if info, ok := proc.Mount().GetFileInfo(int(dirfd)); ok {
		return path.Clean(path.Join(info.Path, rel))
	}
	return proc.Mount().ToAbsolute(rel)
}

func seekFromWhence(whence uint32) vfs.SeekFrom {
	switch whence {
	case linuxabi.SeekCur:
		return vfs.SeekCurrent
	case linuxabi.SeekEnd:
		return vfs.SeekEnd
	default:
		return vfs.SeekStart
	}
}

func sysRead(a args, fd, bufAddr, count uint32) uint32 {
	buf := make([]byte, count)
	n, err := a.th.Process().Mount().Read(int(fd), buf)
	if n == 0 && err != nil {
		return errnoFor(err)
	}
	if n > 0 {
		if werr := a.th.CPU().MemWrite(bufAddr, buf[:n]); werr != nil {
			a.log.WithError(werr).Error("syscalls: read: write guest buffer")
			return negErrno(errEINVAL)
		}
	}
	return uint32(n)
}

func sysWrite(a args, fd, bufAddr, count uint32) uint32 {
	data, err := a.th.CPU().MemRead(bufAddr, int(count))
	if err != nil {
		a.log.WithError(err).Error("syscalls: write: read guest buffer")
		return negErrno(errEINVAL)
	}
	n, werr := a.th.Process().Mount().Write(int(fd), data)
	if n == 0 && werr != nil {
		return errnoFor(werr)
	}
	return uint32(n)
}

func sysOpen(a args, pathAddr, flags, mode uint32) uint32 {
	p, err := readPath(a, pathAddr)
	if err != nil {
		return negErrno(errEINVAL)
	}
	fd, oerr := a.th.Process().Mount().Open(p, vfs.FromBits(flags))
	if oerr != nil {
		return errnoFor(oerr)
	}
	return uint32(fd)
}

func sysClose(a args, fd uint32) uint32 {
	proc := a.th.Process()
	proc.SysCalls().ClearDents(int(fd))
	if err := proc.Mount().Close(int(fd)); err != nil {
		return errnoFor(err)
	}
	return 0
}

func sysLink(a args, oldAddr, newAddr uint32) uint32 {
	oldp, err := readPath(a, oldAddr)
	if err != nil {
		return negErrno(errEINVAL)
	}
	newp, err := readPath(a, newAddr)
	if err != nil {
		return negErrno(errEINVAL)
	}
	if lerr := a.th.Process().Mount().Link(oldp, newp); lerr != nil {
		return errnoFor(lerr)
	}
	return 0
}

func sysUnlink(a args, pathAddr uint32) uint32 {
	p, err := readPath(a, pathAddr)
	if err != nil {
		return negErrno(errEINVAL)
	}
	if uerr := a.th.Process().Mount().Unlink(p); uerr != nil {
		return errnoFor(uerr)
	}
	return 0
}

func sysAccess(a args, pathAddr, mode uint32) uint32 {
	p, err := readPath(a, pathAddr)
	if err != nil {
		return negErrno(errEINVAL)
	}
	if !a.th.Process().Mount().Exists(p) {
		return negErrno(errENOENT)
	}
	return 0
}

func sysIoctl(a args, fd, request, argp uint32) uint32 {
	res, err := a.th.Process().Mount().Ioctl(a.th.CPU(), int(fd), request, argp)
	if err != nil {
		return errnoFor(err)
	}
	return uint32(res)
}

func sysFtruncate(a args, fd, length uint32) uint32 {
	if err := a.th.Process().Mount().Truncate(int(fd), uint64(length)); err != nil {
		return errnoFor(err)
	}
	return 0
}

func sysLlseek(a args, fd, offsetHigh, offsetLow, resultPtr, whence uint32) uint32 {
	off := int64(uint64(offsetHigh)<<32 | uint64(offsetLow))
	pos, err := a.th.Process().Mount().Seek(int(fd), seekFromWhence(whence), off)
	if err != nil {
		return errnoFor(err)
	}
	if werr := a.th.CPU().MemWrite(resultPtr, packU64(pos)); werr != nil {
		a.log.WithError(werr).Error("syscalls: llseek: write result")
		return negErrno(errEINVAL)
	}
	return 0
}

func sysWritev(a args, fd, iovAddr, iovcnt uint32) uint32 {
	mount := a.th.Process().Mount()
	var total uint32
	for i := uint32(0); i < iovcnt; i++ {
		entry, err := a.th.CPU().MemRead(iovAddr+i*8, 8)
		if err != nil {
			break
		}
		base := unpackU32(entry[0:4])
		length := unpackU32(entry[4:8])
		if length == 0 {
			continue
		}
		data, rerr := a.th.CPU().MemRead(base, int(length))
		if rerr != nil {
			break
		}
		n, werr := mount.Write(int(fd), data)
		total += uint32(n)
		if werr != nil {
			break
		}
	}
	return total
}

func sysFcntl64(a args, fd, cmd, arg uint32) uint32 {
	mount := a.th.Process().Mount()
	switch cmd {
	case linuxabi.FGetfd, linuxabi.FSetfd, linuxabi.FSetfl:
		return 0
	case linuxabi.FGetfl:
		if mount.ReadOnly(int(fd)) {
			return 0
		}
		return linuxabi.ORdWr
	default:
		return 0
	}
}

func dtType(k linuxabi.FileKind) byte {
	if k == linuxabi.KindDirectory {
		return 4 // DT_DIR
	}
	return 8 // DT_REG
}

// sysGetdents64 implements spec.md §4.7's getdents64: fetch-and-stash the
// directory listing (plus "." and "..") on the first call for an fd, then
// emit as many [ino,off,reclen,type,name,NUL] records as fit in count,
// retaining the remainder for the next call.
func sysGetdents64(a args, fd, bufAddr, count uint32) uint32 {
	proc := a.th.Process()
	mount := proc.Mount()
	sys := proc.SysCalls()
	fdInt := int(fd)

	entries, ok := sys.Dents(fdInt)
	fresh := !ok
	if fresh {
		info, ok2 := mount.GetFileInfo(fdInt)
		if !ok2 {
			return negErrno(errEBADF)
		}
		names, err := mount.ReadDir(info.Path)
		if err != nil {
			return errnoFor(err)
		}
		entries = append([]string{".", ".."}, names...)
	}

	dirInfo, _ := mount.GetFileInfo(fdInt)
	buf := make([]byte, 0, count)
	produced := 0
	for len(entries) > 0 {
		name := entries[0]
		childPath := dirInfo.Path
		switch name {
		case ".":
		case "..":
			childPath = path.Dir(dirInfo.Path)
		default:
			childPath = path.Join(dirInfo.Path, name)
		}
		var ino uint64
		kind := linuxabi.KindDirectory
		if info, ok := mount.GetFileInfoFromPath(childPath); ok {
			ino = info.Inode
			kind = info.Kind
		}
		reclen := 8 + 8 + 2 + 1 + len(name) + 1
		if len(buf)+reclen > int(count) {
			break
		}
		buf = append(buf, packU64(ino)...)
		buf = append(buf, packU64(0)...)
		buf = append(buf, packU16(uint16(reclen))...)
		buf = append(buf, dtType(kind))
		buf = append(buf, []byte(name)...)
		buf = append(buf, 0)
		entries = entries[1:]
		produced++
	}

	sys.SetDents(fdInt, entries)
	if produced == 0 {
		if fresh {
			return negErrno(errEINVAL)
		}
		return 0
	}
	if err := a.th.CPU().MemWrite(bufAddr, buf); err != nil {
		a.log.WithError(err).Error("syscalls: getdents64: write guest buffer")
		return negErrno(errEINVAL)
	}
	return uint32(len(buf))
}

func sysOpenat(a args, dirfd, pathAddr, flags, mode uint32) uint32 {
	p, err := readPath(a, pathAddr)
	if err != nil {
		return negErrno(errEINVAL)
	}
	abs := resolveAtPath(a.th.Process(), int32(dirfd), p)
	fd, oerr := a.th.Process().Mount().Open(abs, vfs.FromBits(flags))
	if oerr != nil {
		return errnoFor(oerr)
	}
	return uint32(fd)
}

// sysReadlinkat only answers /proc/self/exe (SPEC_FULL.md supplemented
// feature); every other target is reported as not a symlink.
func sysReadlinkat(a args, dirfd, pathAddr, bufAddr, bufsiz uint32) uint32 {
	p, err := readPath(a, pathAddr)
	if err != nil {
		return negErrno(errEINVAL)
	}
	abs := resolveAtPath(a.th.Process(), int32(dirfd), p)
	if abs != "/proc/self/exe" {
		return negErrno(errEINVAL)
	}
	target := a.th.Process().ExecPath()
	if uint32(len(target)) > bufsiz {
		target = target[:bufsiz]
	}
	if werr := a.th.CPU().MemWrite(bufAddr, []byte(target)); werr != nil {
		a.log.WithError(werr).Error("syscalls: readlinkat: write guest buffer")
		return negErrno(errEINVAL)
	}
	return uint32(len(target))
}

// sysSetRobustList is bookkeeping-only: this emulator never crashes a thread
// holding a futex, so the robust list has nothing to walk.
func sysSetRobustList(a args, head, length uint32) uint32 {
	return 0
}
