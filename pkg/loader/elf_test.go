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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nissan-connect-emu/emu/internal/linuxabi"
	"github.com/nissan-connect-emu/emu/pkg/mmu"
)

// buildMinimalARMElf assembles a single-PT_LOAD, ELFCLASS32/little-endian/
// EM_ARM binary: just enough for debug/elf to parse and for the loader to
// exercise its mapping path. machine lets tests construct a
// wrong-architecture variant.
func buildMinimalARMElf(vaddr uint32, machine uint16, code []byte) []byte {
	const ehSize = 52
	const phSize = 32
	total := ehSize + phSize + len(code)

	b := make([]byte, total)
	copy(b[0:4], []byte{0x7f, 'E', 'L', 'F'})
	b[4] = 1 // ELFCLASS32
	b[5] = 1 // ELFDATA2LSB
	b[6] = 1 // EV_CURRENT

	le := binary.LittleEndian
	le.PutUint16(b[16:], 2)                     // e_type = ET_EXEC
	le.PutUint16(b[18:], machine)               // e_machine
	le.PutUint32(b[20:], 1)                     // e_version
	le.PutUint32(b[24:], vaddr)                 // e_entry
	le.PutUint32(b[28:], ehSize)                // e_phoff
	le.PutUint32(b[32:], 0)                     // e_shoff
	le.PutUint32(b[36:], 0)                     // e_flags
	le.PutUint16(b[40:], ehSize)                // e_ehsize
	le.PutUint16(b[42:], phSize)                // e_phentsize
	le.PutUint16(b[44:], 1)                     // e_phnum
	le.PutUint16(b[46:], 0)                     // e_shentsize
	le.PutUint16(b[48:], 0)                     // e_shnum
	le.PutUint16(b[50:], 0)                     // e_shstrndx

	ph := b[ehSize:]
	le.PutUint32(ph[0:], 1)               // p_type = PT_LOAD
	le.PutUint32(ph[4:], 0)               // p_offset
	le.PutUint32(ph[8:], vaddr)           // p_vaddr
	le.PutUint32(ph[12:], vaddr)          // p_paddr
	le.PutUint32(ph[16:], uint32(total))  // p_filesz
	le.PutUint32(ph[20:], uint32(total))  // p_memsz
	le.PutUint32(ph[24:], 5)              // p_flags = R|X
	le.PutUint32(ph[28:], linuxabi.PageSize)

	copy(b[ehSize+phSize:], code)
	return b
}

func TestLoadMapsSegmentAndSetsEntry(t *testing.T) {
	const vaddr = 0x00010000
	file := buildMinimalARMElf(vaddr, 40 /* EM_ARM */, []byte{0xDE, 0xAD, 0xBE, 0xEF})

	m := mmu.New(linuxabi.HeapEnd, nil)
	res, err := Load(m, "/bin/app", file, nil)
	require.NoError(t, err)
	assert.Equal(t, uint32(vaddr), res.ExecEntry)
	assert.Equal(t, res.ExecEntry, res.StartPC, "no PT_INTERP means StartPC falls back to ExecEntry")

	regions := m.Regions()
	require.Len(t, regions, 1)
	assert.Equal(t, linuxabi.PageAlignDown(vaddr), regions[0].Start)
}

func TestLoadRejectsWrongMachine(t *testing.T) {
	file := buildMinimalARMElf(0x10000, 62 /* EM_X86_64 */, []byte{0, 0, 0, 0})
	m := mmu.New(linuxabi.HeapEnd, nil)
	_, err := Load(m, "/bin/app", file, nil)
	assert.Error(t, err)
}

func TestBuildInitialStackLayout(t *testing.T) {
	m := mmu.New(linuxabi.HeapEnd, nil)
	res := &Result{ExecEntry: 0x10000, Phdr: 0x10034, Phent: 32, Phnum: 1}

	img, err := BuildInitialStack(m, res, "/bin/app", []string{"app", "-x"}, []string{"HOME=/root"}, [16]byte{1, 2, 3})
	require.NoError(t, err)

	assert.Zero(t, img.StackTop%16, "stack pointer must be 16-byte aligned")
	assert.Less(t, img.StackTop, uint32(linuxabi.StackBase+linuxabi.StackSize))
	assert.GreaterOrEqual(t, img.StackTop, uint32(linuxabi.StackBase))
}
