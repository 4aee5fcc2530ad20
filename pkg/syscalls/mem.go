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
	"github.com/nissan-connect-emu/emu/internal/linuxabi"
	"github.com/nissan-connect-emu/emu/pkg/cpu"
	"github.com/nissan-connect-emu/emu/pkg/vfs"
)

// protPerm translates a guest PROT_* bitfield to the engine's own
// permission mask (mman.rs's prot_to_permission).
func protPerm(prot uint32) cpu.Perm {
	var p cpu.Perm
	if prot&linuxabi.ProtRead != 0 {
		p |= cpu.PermRead
	}
	if prot&linuxabi.ProtWrite != 0 {
		p |= cpu.PermWrite
	}
	if prot&linuxabi.ProtExec != 0 {
		p |= cpu.PermExec
	}
	return p
}

// sysBrk implements brk(addr): addr==0 reports the current break; otherwise
// the break is moved to the next page boundary at or above addr, extending
// with a fresh R+W+X mapping or shrinking by unmapping the difference
// (spec.md §4.7 brk).
func sysBrk(a args, addr uint32) uint32 {
	mm := a.th.Process().MMU()
	cur := mm.BrkEnd
	if addr == 0 {
		return cur
	}
	next := linuxabi.PageAlignUp(addr)
	switch {
	case next > cur:
		if err := mm.Map(cur, next-cur, cpu.PermRead|cpu.PermWrite|cpu.PermExec, "[heap]", ""); err != nil {
			a.log.WithError(err).Error("syscalls: brk grow")
			return cur
		}
		mm.BrkEnd = next
	case next < cur:
		if err := mm.Unmap(next, cur-next); err != nil {
			a.log.WithError(err).Error("syscalls: brk shrink")
			return cur
		}
		mm.BrkEnd = next
	}
	return mm.BrkEnd
}

// doMmap implements the shared body of mmap/mmap2 (spec.md §4.7): translate
// prot, place the mapping either at a fixed/explicit address or from the
// heap bump, fill it from a backing file when one was given, and notify the
// library hook installer when the new mapping is executable and named.
func doMmap(a args, addr, length, prot, flags, fd uint32, offset uint64) uint32 {
	proc := a.th.Process()
	mm := proc.MMU()
	mount := proc.Mount()

	size := linuxabi.PageAlignUp(length)
	if size == 0 {
		size = linuxabi.PageSize
	}
	perm := protPerm(prot)
	anon := flags&linuxabi.MapAnonymous != 0
	fixed := flags&linuxabi.MapFixed != 0
	fdInt := int(int32(fd))

	path := ""
	if !anon && fdInt >= 0 {
		if info, ok := mount.GetFileInfo(fdInt); ok {
			path = info.Path
		}
	}

	var mapAddr uint32
	var err error
	if fixed || addr != 0 {
		mapAddr = linuxabi.PageAlignDown(addr)
		err = mm.Map(mapAddr, size, perm, "[mapped]", path)
	} else {
		mapAddr, err = mm.HeapAlloc(size, perm, path)
	}
	if err != nil {
		a.log.WithError(err).Error("syscalls: mmap")
		return negErrno(errEINVAL)
	}

	if !anon && fdInt >= 0 {
		fileLen := mount.Length(fdInt)
		if offset < fileLen {
			toRead := fileLen - offset
			if toRead > uint64(size) {
				toRead = uint64(size)
			}
			if _, serr := mount.Seek(fdInt, vfs.SeekStart, int64(offset)); serr == nil {
				buf := make([]byte, toRead)
				total := 0
				for uint64(total) < toRead {
					n, rerr := mount.Read(fdInt, buf[total:])
					if n > 0 {
						total += n
					}
					if rerr != nil || n == 0 {
						break
					}
				}
				if total > 0 {
					if werr := mm.WriteAt(mapAddr, buf[:total]); werr != nil {
						a.log.WithError(werr).Error("syscalls: mmap file-backed fill")
					}
				}
			}
		}
	}

	if perm&cpu.PermExec != 0 {
		notifyLibraryMapped(proc, path, mapAddr)
	}
	return mapAddr
}

func sysMmap2(a args, addr, length, prot, flags, fd, pgoff uint32) uint32 {
	return doMmap(a, addr, length, prot, flags, fd, uint64(pgoff)*linuxabi.PageSize)
}

func sysMmap(a args, addr, length, prot, flags, fd, off uint32) uint32 {
	return doMmap(a, addr, length, prot, flags, fd, uint64(off))
}

func sysMunmap(a args, addr, length uint32) uint32 {
	size := linuxabi.PageAlignUp(length)
	if err := a.th.Process().MMU().Unmap(linuxabi.PageAlignDown(addr), size); err != nil {
		a.log.WithError(err).Error("syscalls: munmap")
		return negErrno(errEINVAL)
	}
	return 0
}

func sysMprotect(a args, addr, length, prot uint32) uint32 {
	size := linuxabi.PageAlignUp(length)
	perm := protPerm(prot)
	if err := a.th.Process().MMU().Protect(linuxabi.PageAlignDown(addr), size, perm); err != nil {
		a.log.WithError(err).Error("syscalls: mprotect")
		return negErrno(errEINVAL)
	}
	return 0
}

// sysMincore reports every page in range as resident: the emulator has no
// paging, so nothing is ever swapped out.
func sysMincore(a args, addr, length, vec uint32) uint32 {
	pages := linuxabi.PageAlignUp(length) / linuxabi.PageSize
	buf := make([]byte, pages)
	for i := range buf {
		buf[i] = 1
	}
	if err := a.th.CPU().MemWrite(vec, buf); err != nil {
		a.log.WithError(err).Error("syscalls: mincore")
		return negErrno(errEINVAL)
	}
	return 0
}
