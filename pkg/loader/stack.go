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

package loader

import (
	"encoding/binary"

	"github.com/nissan-connect-emu/emu/internal/linuxabi"
	"github.com/nissan-connect-emu/emu/pkg/cpu"
	"github.com/nissan-connect-emu/emu/pkg/mmu"
)

// AuxEntry is one (type, value) pair of the auxiliary vector.
type AuxEntry struct {
	Type  uint32
	Value uint32
}

// StackImage is the result of laying out the initial process stack
// (spec.md §4.5): argc, argv[], envp[], and auxv[] below the top of a
// freshly mapped stack region, with the random bytes AT_RANDOM points at
// and argv[0] itself also living on the stack.
type StackImage struct {
	StackTop uint32 // value to install in the guest SP register
}

// stringArea accumulates NUL-terminated byte strings and hands back each
// one's offset from the start of the area; addresses are only resolved
// once the area's final base address is known (every string has been
// queued), so push does not need to predict how much more will follow it.
type stringArea struct {
	buf []byte
}

func (s *stringArea) push(b []byte) int {
	off := len(s.buf)
	s.buf = append(s.buf, b...)
	s.buf = append(s.buf, 0)
	return off
}

func (s *stringArea) pushRaw(b []byte) int {
	off := len(s.buf)
	s.buf = append(s.buf, b...)
	return off
}

// BuildInitialStack maps the stack region at linuxabi.StackBase and writes
// argv, envp and auxv in the standard Linux layout: SP points at argc,
// followed by argv pointers, a NULL, envp pointers, a NULL, the auxv
// array terminated by AT_NULL, then the string/data area the pointers
// above reference.
//
// res carries the ExecEntry/Phdr/Phnum/Phent/InterpBase values Load
// computed; randomBytes supplies the 16 bytes AT_RANDOM points at (callers
// typically draw these from crypto/rand once per process, not per call, so
// this function stays deterministic and testable).
func BuildInitialStack(m *mmu.MMU, res *Result, execPath string, argv, envp []string, randomBytes [16]byte) (*StackImage, error) {
	if err := m.Map(linuxabi.StackBase, linuxabi.StackSize, cpu.PermRead|cpu.PermWrite, "[stack]", ""); err != nil {
		return nil, err
	}
	top := linuxabi.StackBase + linuxabi.StackSize

	var area stringArea
	randomOff := area.pushRaw(randomBytes[:])
	platformOff := area.push([]byte("v7l"))
	execfnOff := area.push([]byte(execPath))

	argvOffs := make([]int, len(argv))
	for i, a := range argv {
		argvOffs[i] = area.push([]byte(a))
	}
	envpOffs := make([]int, len(envp))
	for i, e := range envp {
		envpOffs[i] = area.push([]byte(e))
	}

	// stringAreaBase is now fixed: every offset above resolves to
	// stringAreaBase+offset regardless of push order.
	stringAreaBase := top - uint32(len(area.buf))
	addr := func(off int) uint32 { return stringAreaBase + uint32(off) }

	argvAddrs := make([]uint32, len(argvOffs))
	for i, off := range argvOffs {
		argvAddrs[i] = addr(off)
	}
	envpAddrs := make([]uint32, len(envpOffs))
	for i, off := range envpOffs {
		envpAddrs[i] = addr(off)
	}

	auxv := []AuxEntry{
		{linuxabi.AtPhdr, res.Phdr},
		{linuxabi.AtPhent, res.Phent},
		{linuxabi.AtPhnum, res.Phnum},
		{linuxabi.AtPagesz, linuxabi.PageSize},
		{linuxabi.AtBase, res.InterpBase},
		{linuxabi.AtFlags, 0},
		{linuxabi.AtEntry, res.ExecEntry},
		{linuxabi.AtUID, 0},
		{linuxabi.AtEUID, 0},
		{linuxabi.AtGID, 0},
		{linuxabi.AtEGID, 0},
		{linuxabi.AtSecure, 0},
		{linuxabi.AtRandom, addr(randomOff)},
		{linuxabi.AtHwcap, linuxabi.HwcapVFP},
		{linuxabi.AtHwcap2, 0},
		{linuxabi.AtClktck, 100},
		{linuxabi.AtPlatform, addr(platformOff)},
		{linuxabi.AtExecfn, addr(execfnOff)},
		{linuxabi.AtNull, 0},
	}

	// Pointer arrays: argc, argv[]+NULL, envp[]+NULL, auxv[].
	var ptrs []uint32
	ptrs = append(ptrs, uint32(len(argv)))
	ptrs = append(ptrs, argvAddrs...)
	ptrs = append(ptrs, 0)
	ptrs = append(ptrs, envpAddrs...)
	ptrs = append(ptrs, 0)
	for _, a := range auxv {
		ptrs = append(ptrs, a.Type, a.Value)
	}

	ptrBytes := make([]byte, 4*len(ptrs))
	for i, v := range ptrs {
		binary.LittleEndian.PutUint32(ptrBytes[i*4:], v)
	}

	// The pointer area sits directly below the string area, 16-byte
	// aligned per the EABI stack contract.
	sp := stringAreaBase - uint32(len(ptrBytes))
	sp &^= 15

	if err := m.WriteAt(sp, ptrBytes); err != nil {
		return nil, err
	}
	if err := m.WriteAt(stringAreaBase, area.buf); err != nil {
		return nil, err
	}

	return &StackImage{StackTop: sp}, nil
}
