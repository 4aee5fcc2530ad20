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

import "runtime"

// Real-time scheduling policies, for sched_get_priority_{max,min}'s table.
const (
	schedFIFO = 1
	schedRR   = 2
)

func sysSchedSetScheduler(a args, pid, policy, paramAddr uint32) uint32 { return 0 }

func sysSchedGetPriorityMax(a args, policy uint32) uint32 {
	if policy == schedFIFO || policy == schedRR {
		return 99
	}
	return 0
}

func sysSchedGetPriorityMin(a args, policy uint32) uint32 {
	if policy == schedFIFO || policy == schedRR {
		return 1
	}
	return 0
}

// sysSchedYield calls the host scheduler's own yield (SPEC_FULL.md
// supplemented feature): with one host goroutine per guest thread, this is
// the closest analogue to the guest's own sched_yield.
func sysSchedYield(a args) uint32 {
	runtime.Gosched()
	return 0
}

// sysSchedGetAffinity/sysSchedSetAffinity report/accept a single-CPU mask,
// since the emulator never schedules a guest thread onto more than one
// host goroutine at a time (SPEC_FULL.md supplemented feature).
func sysSchedGetAffinity(a args, pid, cpusetsize, maskAddr uint32) uint32 {
	size := cpusetsize
	if size > 4 {
		size = 4
	}
	buf := make([]byte, size)
	if size > 0 {
		buf[0] = 1
	}
	if err := a.th.CPU().MemWrite(maskAddr, buf); err != nil {
		a.log.WithError(err).Error("syscalls: sched_getaffinity: write guest buffer")
		return negErrno(errEINVAL)
	}
	return size
}

func sysSchedSetAffinity(a args, pid, cpusetsize, maskAddr uint32) uint32 { return 0 }

func sysSetpriority(a args, which, who, prio uint32) uint32 { return 0 }

// rlimit resource numbers this emulator answers with plausible defaults
// when nothing has been set yet.
const (
	rlimitStack  = 3
	rlimitNofile = 7
)

func defaultRlimit(resource uint32) (cur, max uint64) {
	switch resource {
	case rlimitStack:
		return 8 * 1024 * 1024, 0xFFFFFFFF
	case rlimitNofile:
		return 1024, 4096
	default:
		return 0xFFFFFFFF, 0xFFFFFFFF
	}
}

func doGetrlimit(a args, resource, rlimAddr uint32) uint32 {
	sys := a.th.Process().SysCalls()
	cur, max := defaultRlimit(resource)
	if v, ok := sys.Rlimit(resource); ok {
		cur, max = v[0], v[1]
	}
	buf := append(packU32(uint32(cur)), packU32(uint32(max))...)
	if err := a.th.CPU().MemWrite(rlimAddr, buf); err != nil {
		a.log.WithError(err).Error("syscalls: getrlimit: write guest buffer")
		return negErrno(errEINVAL)
	}
	return 0
}

func sysGetrlimit(a args, resource, rlimAddr uint32) uint32  { return doGetrlimit(a, resource, rlimAddr) }
func sysUgetrlimit(a args, resource, rlimAddr uint32) uint32 { return doGetrlimit(a, resource, rlimAddr) }

func sysSetrlimit(a args, resource, rlimAddr uint32) uint32 {
	data, err := a.th.CPU().MemRead(rlimAddr, 8)
	if err != nil {
		return negErrno(errEINVAL)
	}
	cur := unpackU32(data[0:4])
	max := unpackU32(data[4:8])
	a.th.Process().SysCalls().SetRlimit(resource, uint64(cur), uint64(max))
	return 0
}

// rt_sigprocmask's how values.
const (
	sigBlock   = 0
	sigUnblock = 1
	sigSetMask = 2
)

// sysRtSigaction is bookkeeping-only registration, never delivered (spec.md
// §9 Open Question (c)).
func sysRtSigaction(a args, signum, actAddr, oldActAddr uint32) uint32 {
	sys := a.th.Process().SysCalls()
	var newHandler uint32
	if actAddr != 0 {
		if data, err := a.th.CPU().MemRead(actAddr, 4); err == nil {
			newHandler = unpackU32(data)
		}
	}
	prev := sys.SigHandler(signum)
	if actAddr != 0 {
		sys.SetSigHandler(signum, newHandler)
	}
	if oldActAddr != 0 {
		if err := a.th.CPU().MemWrite(oldActAddr, packU32(prev)); err != nil {
			a.log.WithError(err).Warn("syscalls: rt_sigaction: write oldact")
		}
	}
	return 0
}

func sysRtSigprocmask(a args, how, setAddr, oldsetAddr, sigsetsize uint32) uint32 {
	sys := a.th.Process().SysCalls()
	prev := sys.SigMask()
	if setAddr != 0 {
		if data, err := a.th.CPU().MemRead(setAddr, 8); err == nil {
			newMask := unpackU64(data)
			switch how {
			case sigBlock:
				sys.SetSigMask(prev | newMask)
			case sigUnblock:
				sys.SetSigMask(prev &^ newMask)
			case sigSetMask:
				sys.SetSigMask(newMask)
			}
		}
	}
	if oldsetAddr != 0 {
		if err := a.th.CPU().MemWrite(oldsetAddr, packU64(prev)); err != nil {
			a.log.WithError(err).Warn("syscalls: rt_sigprocmask: write oldset")
		}
	}
	return 0
}

// sigaltstack's SS_DISABLE flag, reported back whenever the caller asks for
// the previous alternate stack: this emulator never installs one.
const ssDisable = 2

// sysSigaltstack is bookkeeping-only, matching rt_sigaction (spec.md §9
// Open Question (c)): always reports no alternate stack installed.
func sysSigaltstack(a args, ssAddr, oldSsAddr uint32) uint32 {
	if oldSsAddr != 0 {
		buf := make([]byte, 12)
		copy(buf[8:12], packU32(ssDisable))
		if err := a.th.CPU().MemWrite(oldSsAddr, buf); err != nil {
			a.log.WithError(err).Warn("syscalls: sigaltstack: write oldss")
		}
	}
	return 0
}
