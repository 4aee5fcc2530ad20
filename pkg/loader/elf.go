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

// Package loader implements the ELF program loader (C5, spec.md §4.5):
// validating the ARM/little-endian header, mapping PT_LOAD segments through
// the MMU, loading a PT_INTERP dynamic linker when present, and building the
// initial stack image (argv/envp/auxv) a freshly cloned CPU instance starts
// executing from.
package loader

import (
	"bytes"
	"debug/elf"
	"fmt"

	"github.com/nissan-connect-emu/emu/internal/linuxabi"
	"github.com/nissan-connect-emu/emu/pkg/cpu"
	"github.com/nissan-connect-emu/emu/pkg/mmu"
)

// Image describes one loaded ELF object's placement in guest memory.
type Image struct {
	Base       uint32 // load bias added to every p_vaddr
	Entry      uint32 // e_entry + Base
	Phdr       uint32 // address of the program header table, 0 if unknown
	Phent      uint32
	Phnum      uint32
	Interp     string // PT_INTERP contents, empty if absent
}

// ResolveInterp reads the full contents of the dynamic linker named by a
// PT_INTERP segment. Callers typically wire this to the process's mount
// table.
type ResolveInterp func(path string) ([]byte, error)

// Result is everything the kernel package needs to start a thread running a
// freshly loaded program (spec.md §4.5/§4.6).
type Result struct {
	ExecEntry uint32 // AT_ENTRY: the main executable's own entry point
	StartPC   uint32 // where the CPU should actually start (interpreter's entry, or ExecEntry)
	InterpBase uint32 // AT_BASE
	Phdr, Phent, Phnum uint32
}

// Load maps data (the main executable's raw ELF bytes) into m, following a
// PT_INTERP segment through resolveInterp if present, and returns the
// bookkeeping needed to construct AT_* auxv entries (spec.md §4.5).
func Load(m *mmu.MMU, path string, data []byte, resolveInterp ResolveInterp) (*Result, error) {
	img, err := loadOne(m, path, data, 0)
	if err != nil {
		return nil, fmt.Errorf("loader: load %s: %w", path, err)
	}

	res := &Result{
		ExecEntry: img.Entry,
		StartPC:   img.Entry,
		Phdr:      img.Phdr,
		Phent:     img.Phent,
		Phnum:     img.Phnum,
	}

	if img.Interp == "" {
		return res, nil
	}

	interpData, err := resolveInterp(img.Interp)
	if err != nil {
		return nil, fmt.Errorf("loader: resolve interpreter %s: %w", img.Interp, err)
	}
	interpImg, err := loadOne(m, img.Interp, interpData, linuxabi.InterpDSOBase)
	if err != nil {
		return nil, fmt.Errorf("loader: load interpreter %s: %w", img.Interp, err)
	}
	res.StartPC = interpImg.Entry
	res.InterpBase = interpImg.Base
	return res, nil
}

// loadOne validates and maps a single ELF object. forceBase, when non-zero,
// overrides the load bias an ET_DYN object would otherwise compute for
// itself (used to place the interpreter at linuxabi.InterpDSOBase).
func loadOne(m *mmu.MMU, path string, data []byte, forceBase uint32) (*Image, error) {
	f, err := elf.NewFile(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("not a valid ELF file: %w", err)
	}
	if f.Class != elf.ELFCLASS32 {
		return nil, fmt.Errorf("unsupported ELF class %s, want ELFCLASS32", f.Class)
	}
	if f.Data != elf.ELFDATA2LSB {
		return nil, fmt.Errorf("unsupported byte order %s, want little-endian", f.Data)
	}
	if f.Machine != elf.EM_ARM {
		return nil, fmt.Errorf("unsupported machine %s, want EM_ARM", f.Machine)
	}
	if f.Type != elf.ET_EXEC && f.Type != elf.ET_DYN {
		return nil, fmt.Errorf("unsupported ELF type %s", f.Type)
	}

	var base uint32
	if f.Type == elf.ET_DYN {
		base = linuxabi.DSOBase
		if forceBase != 0 {
			base = forceBase
		}
	}

	img := &Image{Base: base, Entry: uint32(f.Entry) + base}

	for _, prog := range f.Progs {
		switch prog.Type {
		case elf.PT_LOAD:
			if err := mapSegment(m, path, base, prog); err != nil {
				return nil, err
			}
		case elf.PT_INTERP:
			raw := make([]byte, prog.Filesz)
			if _, err := prog.ReadAt(raw, 0); err != nil {
				return nil, fmt.Errorf("read PT_INTERP: %w", err)
			}
			img.Interp = string(bytes.TrimRight(raw, "\x00"))
		case elf.PT_PHDR:
			img.Phdr = uint32(prog.Vaddr) + base
		}
	}

	if img.Phdr == 0 {
		// No explicit PT_PHDR: the table is taken to follow the ELF
		// header directly inside the LOAD segment at file offset 0.
		img.Phdr = base + phdrFallback(f)
	}
	img.Phent = uint32(progHeaderEntSize)
	img.Phnum = uint32(len(f.Progs))

	return img, nil
}

// progHeaderEntSize is Elf32_Phdr's on-disk size.
const progHeaderEntSize = 32

// phdrFallback returns the address the program header table is assumed to
// load at: the vaddr of the LOAD segment covering file offset 0 plus the
// 52-byte ELF header size. e_phoff itself is not read; 0 is returned when no
// LOAD segment starts at file offset 0.
func phdrFallback(f *elf.File) uint32 {
	// debug/elf does not expose e_phoff directly, so the standard layout
	// (program headers right after the ELF header) is assumed.
	for _, prog := range f.Progs {
		if prog.Type == elf.PT_LOAD && prog.Off == 0 {
			return uint32(prog.Vaddr) + elfHeaderSize
		}
	}
	return 0
}

// elfHeaderSize is Elf32_Ehdr's on-disk size, i.e. where e_phoff normally
// points for a standard linker-produced layout.
const elfHeaderSize = 52

func mapSegment(m *mmu.MMU, path string, base uint32, prog *elf.Prog) error {
	vaddr := uint32(prog.Vaddr) + base
	memsz := uint32(prog.Memsz)
	if memsz == 0 {
		return nil
	}

	start := linuxabi.PageAlignDown(vaddr)
	end := linuxabi.PageAlignUp(vaddr + memsz)
	size := end - start

	perms := permFromFlags(prog.Flags)
	// File bytes land in the MMU's backing buffer via WriteAt below, which
	// does not go through the guest-visible protection bits at all, so
	// perms can be the segment's final permission set straight away.
	if err := m.Map(start, size, perms, "[load]", path); err != nil {
		return fmt.Errorf("map segment at %#x: %w", start, err)
	}

	fileBytes := make([]byte, prog.Filesz)
	if prog.Filesz > 0 {
		if _, err := prog.ReadAt(fileBytes, 0); err != nil {
			return fmt.Errorf("read segment at %#x: %w", vaddr, err)
		}
		if err := m.WriteAt(vaddr, fileBytes); err != nil {
			return fmt.Errorf("place segment at %#x: %w", vaddr, err)
		}
	}
	return nil
}

func permFromFlags(flags elf.ProgFlag) cpu.Perm {
	var p cpu.Perm
	if flags&elf.PF_R != 0 {
		p |= cpu.PermRead
	}
	if flags&elf.PF_W != 0 {
		p |= cpu.PermWrite
	}
	if flags&elf.PF_X != 0 {
		p |= cpu.PermExec | cpu.PermRead // execute implies read
	}
	return p
}
