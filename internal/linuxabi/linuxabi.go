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

// Package linuxabi names the Linux/ARM EABI constants the emulator's guest
// ABI boundary needs: syscall numbers, open flags, mmap prot/flags bits, the
// auxiliary vector types, and the stat struct layout. It plays the role
// gVisor's own pkg/abi/linux plays for the teacher (imported by
// pkg/sentry/mm/mm.go as "github.com/maxnasonov/gvisor/pkg/abi/linux"), cut
// down to the subset this emulator's guest ABI actually exercises.
package linuxabi

// Syscall numbers, EABI (arm, OABI-compatible low numbers + the 32-bit
// subset actually dispatched), taken from
// original_source/.../os/syscalls/hook_syscall.rs's match table.
const (
	SysExit          = 1
	SysRead          = 3
	SysWrite         = 4
	SysOpen          = 5
	SysClose         = 6
	SysLink          = 9
	SysUnlink        = 10
	SysGetpid        = 20
	SysSetrlimit     = 75
	SysGetrlimit     = 76
	SysGetppid       = 64
	SysAccess        = 33
	SysBrk           = 45
	SysIoctl         = 54
	SysGettimeofday  = 78
	SysMmap          = 90
	SysMunmap        = 91
	SysFtruncate     = 93
	SysSetpriority   = 97
	SysStatfs        = 99
	SysClone         = 120
	SysUname         = 122
	SysMprotect      = 125
	SysLlseek        = 140
	SysWritev        = 146
	SysSchedSetSched = 156
	SysSchedGetMax   = 159
	SysSchedGetMin   = 160
	SysPrctl         = 172
	SysRtSigaction   = 174
	SysRtSigprocmask = 175
	SysSigaltstack   = 186
	SysUgetrlimit    = 191
	SysMmap2         = 192
	SysStat64        = 195
	SysLstat64       = 196
	SysFstat64       = 197
	SysGetdents64    = 217
	SysMincore       = 219
	SysFcntl64       = 221
	SysGettid        = 224
	SysFutex         = 240
	SysSchedYield    = 158
	SysSchedGetAff   = 242
	SysSchedSetAff   = 241
	SysExitGroup     = 248
	SysSetTidAddress = 256
	SysClockGettime  = 263
	SysOpenat        = 322
	SysFstatat64     = 327
	SysReadlinkat    = 332
	SysSetRobustList = 338
	SysSetTLS        = 983045
)

// Open flags, O_* bitfield as seen by the guest (ARM EABI values).
const (
	ORdOnly   = 0x0000
	OWrOnly   = 0x0001
	ORdWr     = 0x0002
	OCreat    = 0x0040
	OExcl     = 0x0080
	ONoctty   = 0x0100
	OTrunc    = 0x0200
	OAppend   = 0x0400
	ONonblock = 0x0800
	ODirectory = 0x4000
	ONofollow  = 0x8000
	OTmpfile   = 0x404000
)

// mmap/mprotect PROT_* bits.
const (
	ProtNone  = 0x0
	ProtRead  = 0x1
	ProtWrite = 0x2
	ProtExec  = 0x4
)

// mmap MAP_* flags.
const (
	MapShared    = 0x01
	MapPrivate   = 0x02
	MapFixed     = 0x10
	MapAnonymous = 0x20
)

// fcntl commands.
const (
	FGetfd = 1
	FSetfd = 2
	FGetfl = 3
	FSetfl = 4
)

// lseek/_llseek whence values.
const (
	SeekSet = 0
	SeekCur = 1
	SeekEnd = 2
)

// clone(2) flags relevant to this emulator.
const (
	CloneVM            = 0x00000100
	CloneFS            = 0x00000200
	CloneFiles         = 0x00000400
	CloneThread        = 0x00010000
	CloneParentSetTID  = 0x00100000
	CloneChildClearTID = 0x00200000
	CloneChildSetTID   = 0x01000000
)

// futex(2) op codes (low 7 bits select the operation; PRIVATE is a flag).
const (
	FutexWait          = 0
	FutexWake          = 1
	FutexPrivateFlag   = 128
	FutexCmdMask       = 0x7F
)

// AtFdcwd is the dirfd sentinel meaning "resolve relative to the current
// working directory" (openat/fstatat64/readlinkat family).
const AtFdcwd = 0xFFFFFF9C // -100 as a two's-complement u32

// auxv AT_* types.
const (
	AtNull     = 0
	AtPhdr     = 3
	AtPhent    = 4
	AtPhnum    = 5
	AtPagesz   = 6
	AtBase     = 7
	AtFlags    = 8
	AtEntry    = 9
	AtUID      = 11
	AtEUID     = 12
	AtGID      = 13
	AtEGID     = 14
	AtPlatform = 15
	AtHwcap    = 16
	AtClktck   = 17
	AtSecure   = 23
	AtRandom   = 25
	AtHwcap2   = 26
	AtExecfn   = 31
)

// Well-known guest ABI addresses/sizes (spec.md §4.5/§4.6).
const (
	PageSize      = 4096
	StackBase     = 0x80000000
	StackSize     = 0x00800000
	HeapEnd       = 0x90000000
	DSOBase       = 0x56555000
	InterpDSOBase = 0x5AAAB000
	KuserBase     = 0xFFFF0000
	KuserSize     = 0x1000
	MemBarrierOff = 0xFFFF0FA0
	CmpxchgOff    = 0xFFFF0FC0
	GetTLSOff     = 0xFFFF0FE0
	HwcapVFP      = 1 << 6 // HWCAP_VFP
)

// File kinds (FileDetails.Kind in spec.md §3).
type FileKind int

const (
	KindFile FileKind = iota
	KindLink
	KindDirectory
	KindSocket
	KindBlockDevice
	KindCharacterDevice
	KindNamedPipe
)

// StMode returns the st_mode top nibble Linux expects for a FileKind.
func (k FileKind) StMode() uint32 {
	switch k {
	case KindDirectory:
		return 0040000
	case KindLink:
		return 0120000
	case KindSocket:
		return 0140000
	case KindBlockDevice:
		return 0060000
	case KindCharacterDevice:
		return 0020000
	case KindNamedPipe:
		return 0010000
	default:
		return 0100000
	}
}

// PageAlignUp rounds size up to the next multiple of PageSize.
func PageAlignUp(size uint32) uint32 {
	return (size + PageSize - 1) &^ (PageSize - 1)
}

// PageAlignDown rounds addr down to a multiple of PageSize.
func PageAlignDown(addr uint32) uint32 {
	return addr &^ (PageSize - 1)
}
