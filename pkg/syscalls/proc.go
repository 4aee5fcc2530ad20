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
)

// This emulator models a single process tree: getpid/getppid both answer
// the fixed pid 1 (SPEC_FULL.md supplemented feature, original thread.rs).
const fixedPID = 1

func sysGetpid(a args) uint32  { return fixedPID }
func sysGetppid(a args) uint32 { return fixedPID }
func sysGettid(a args) uint32  { return a.th.ID }

// sysSetTidAddress is bookkeeping-only: the clear_child_tid address is
// accepted but never acted on since this emulator never delivers the
// corresponding futex wake on thread exit.
func sysSetTidAddress(a args, addr uint32) uint32 { return a.th.ID }

// sysSetTLS implements spec.md §4.7: write the TLS address into the
// C13_C0_3 coprocessor register, read by guest mrc instructions, and into
// the storage word at GetTLSOff+16 that the kuser get_tls trampoline loads
// and returns.
func sysSetTLS(a args, addr uint32) uint32 {
	if err := a.th.CPU().RegWrite(cpu.C13C03, addr); err != nil {
		a.log.WithError(err).Error("syscalls: set_tls: write coprocessor register")
		return negErrno(errEINVAL)
	}
	if err := a.th.Process().MMU().WriteAt(linuxabi.GetTLSOff+16, packU32(addr)); err != nil {
		a.log.WithError(err).Error("syscalls: set_tls: write trampoline storage")
		return negErrno(errEINVAL)
	}
	return 0
}

// sysClone implements spec.md §4.7: spawn a sibling thread sharing the
// parent's memory, honoring CLONE_PARENT_SETTID/CLONE_CHILD_SETTID.
func sysClone(a args, flags, childStack, parentTidPtr, childTLS, childTidPtr uint32) uint32 {
	child, err := a.th.Process().Clone(a.th, childStack, childTLS)
	if err != nil {
		a.log.WithError(err).Error("syscalls: clone")
		return negErrno(errEINVAL)
	}
	if flags&linuxabi.CloneParentSetTID != 0 && parentTidPtr != 0 {
		if werr := a.th.CPU().MemWrite(parentTidPtr, packU32(child.ID)); werr != nil {
			a.log.WithError(werr).Warn("syscalls: clone: write parent_tid_ptr")
		}
	}
	if flags&linuxabi.CloneChildSetTID != 0 && childTidPtr != 0 {
		if werr := child.CPU().MemWrite(childTidPtr, packU32(child.ID)); werr != nil {
			a.log.WithError(werr).Warn("syscalls: clone: write child_tid_ptr")
		}
	}
	return child.ID
}

// sysExit implements exit(2): terminate only the calling thread, distinct
// from exit_group's whole-process termination (original_source's
// unistd.rs::exit vs exit_group).
func sysExit(a args, status uint32) uint32 {
	a.th.Process().SetExitStatus(status)
	a.th.Exit()
	return status
}

func sysExitGroup(a args, status uint32) uint32 {
	a.th.Process().SetExitStatus(status)
	a.th.Process().ExitAll()
	return status
}

func sysUname(a args, bufAddr uint32) uint32 {
	fields := [6]string{"Linux", "nc3emu", "5.4.0", "#1 SMP", "armv6l", ""}
	buf := make([]byte, 0, 65*len(fields))
	for _, f := range fields {
		field := make([]byte, 65)
		copy(field, f)
		buf = append(buf, field...)
	}
	if err := a.th.CPU().MemWrite(bufAddr, buf); err != nil {
		a.log.WithError(err).Error("syscalls: uname: write guest buffer")
		return negErrno(errEINVAL)
	}
	return 0
}

// prctl options this emulator answers (SPEC_FULL.md supplemented feature);
// every other option is logged and ignored like an unrecognized syscall.
const (
	prSetName = 15
	prGetName = 16
)

func sysPrctl(a args, option, arg2, arg3, arg4, arg5 uint32) uint32 {
	sys := a.th.Process().SysCalls()
	switch option {
	case prSetName:
		name, err := a.th.Process().MMU().ReadCString(arg2, 16)
		if err != nil {
			return negErrno(errEINVAL)
		}
		sys.SetThreadName(a.th.ID, name)
		return 0
	case prGetName:
		if err := writeCString(a, arg2, sys.ThreadName(a.th.ID)); err != nil {
			return negErrno(errEINVAL)
		}
		return 0
	default:
		a.log.WithField("option", option).Debug("syscalls: prctl option ignored")
		return 0
	}
}
