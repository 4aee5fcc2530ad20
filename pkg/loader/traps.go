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
	"github.com/nissan-connect-emu/emu/internal/linuxabi"
	"github.com/nissan-connect-emu/emu/pkg/cpu"
)

// memoryBarrierCode is "mcr p15,0,r0,c7,c10,5; nop; mov pc,lr": the
// kuser_memory_barrier helper at 0xFFFF0FA0.
var memoryBarrierCode = []byte{
	0xBA, 0x0F, 0x07, 0xEE, 0x00, 0xF0, 0x20, 0xE3, 0x0E, 0xF0, 0xA0, 0xE1,
}

// cmpxchgCode is "ldr r3,[r2]; subs r3,r3,r0; streq r1,[r2]; rsbs r0,r3,#0;
// mov pc,lr": the kuser_cmpxchg helper at 0xFFFF0FC0.
var cmpxchgCode = []byte{
	0x00, 0x30, 0x92, 0xE5, 0x00, 0x30, 0x53, 0xE0, 0x00, 0x10, 0x82, 0x05,
	0x00, 0x00, 0x73, 0xE2, 0x0E, 0xF0, 0xA0, 0xE1,
}

// getTLSCode is "ldr r0,[pc,#8]; mov pc,lr; mrc p15,0,r0,c13,c0,3" followed
// by a zeroed TLS storage slot: the kuser_get_tls helper at 0xFFFF0FE0. The
// leading ldr reads the storage word at 0xFFFF0FF0 (GetTLSOff+16) and the
// mov returns at once, so the mrc is never reached; the TLS value comes from
// that word, which set_tls and clone write alongside C13_C0_3.
var getTLSCode = []byte{
	0x08, 0x00, 0x9F, 0xE5, 0x0E, 0xF0, 0xA0, 0xE1, 0x70, 0x0F, 0x1D, 0xEE,
	0xE7, 0xFD, 0xDE, 0xF1, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	0x00, 0x00, 0x00, 0x00,
}

// InstallKuserTraps maps the kuser helper page a fresh thread's kernel
// normally provides at a fixed high address (spec.md §4.6), grounded on
// thread.rs's set_kernel_traps: memory_barrier, cmpxchg, and get_tls, each a
// tiny hand-assembled ARM routine the guest's C library calls directly
// instead of trapping through a syscall.
func InstallKuserTraps(m interface {
	Map(addr, size uint32, perms cpu.Perm, description, path string) error
	WriteAt(addr uint32, data []byte) error
}) error {
	if err := m.Map(linuxabi.KuserBase, linuxabi.KuserSize, cpu.PermRead|cpu.PermExec, "[arm_traps]", ""); err != nil {
		return err
	}
	if err := m.WriteAt(linuxabi.MemBarrierOff, memoryBarrierCode); err != nil {
		return err
	}
	if err := m.WriteAt(linuxabi.CmpxchgOff, cmpxchgCode); err != nil {
		return err
	}
	return m.WriteAt(linuxabi.GetTLSOff, getTLSCode)
}

// EnableVFP turns on the VFP/NEON coprocessor access bits thread.rs sets
// before running any guest code, so floating-point instructions in libc
// don't fault.
func EnableVFP(cpuInst *cpu.Instance) error {
	c1c02, err := cpuInst.RegRead(cpu.C1C02)
	if err != nil {
		return err
	}
	if err := cpuInst.RegWrite(cpu.C1C02, c1c02|(0b11<<20)|(0b11<<22)); err != nil {
		return err
	}
	return cpuInst.RegWrite(cpu.FPEXC, 1<<30)
}
