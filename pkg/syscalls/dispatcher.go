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

// Package syscalls implements the syscall dispatcher and handlers (C8/C9,
// spec.md §4.7): a table keyed by the guest syscall number, reading R7 and
// up to six arguments from R0-R5 and writing the 32-bit result to R0.
package syscalls

import (
	"github.com/sirupsen/logrus"

	"github.com/nissan-connect-emu/emu/internal/linuxabi"
	"github.com/nissan-connect-emu/emu/pkg/cpu"
	"github.com/nissan-connect-emu/emu/pkg/kernel"
)

// args is the decoded syscall call frame a handler needs: its own thread
// (for CPU/MMU/process access) plus the six raw argument words, already
// read off R0-R5 before dispatch so individual handlers never touch
// registers directly.
type args struct {
	th   *kernel.Thread
	a    [6]uint32
	log  logrus.FieldLogger
}

// Dispatcher implements kernel.Dispatcher: the syscall-number table lookup
// hit on every SVC trap (hook_syscall.rs's match expression, numbers taken
// verbatim from the table it builds).
type Dispatcher struct {
	log logrus.FieldLogger
}

// New builds a Dispatcher. Wire it to a kernel.Process with
// process.SetDispatcher(syscalls.New(log)) before calling Process.Run.
func New(log logrus.FieldLogger) *Dispatcher {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Dispatcher{log: log}
}

// Handle reads the trapped thread's syscall number and arguments, dispatches
// to the matching handler, and writes the result to R0 (spec.md §4.7).
func (d *Dispatcher) Handle(th *kernel.Thread) {
	c := th.CPU()
	num, err := c.RegRead(cpu.R7)
	if err != nil {
		d.log.WithError(err).Error("syscalls: read syscall number")
		return
	}

	a := args{th: th, log: d.log.WithField("tid", th.ID)}
	for i := range a.a {
		v, err := c.RegRead(cpu.ArgReg(i))
		if err != nil {
			d.log.WithError(err).Error("syscalls: read syscall argument")
			return
		}
		a.a[i] = v
	}

	res := d.dispatch(num, a)

	if err := c.RegWrite(cpu.R0, res); err != nil {
		d.log.WithError(err).Error("syscalls: write syscall result")
	}
}

// dispatch is the syscall-number table. Unrecognized numbers are logged and
// answered with 0 (spec.md §4.7 Error propagation: "a diagnostic policy
// rather than a contract").
func (d *Dispatcher) dispatch(num uint32, a args) uint32 {
	switch num {
	case linuxabi.SysExit:
		return sysExit(a, a.a[0])
	case linuxabi.SysRead:
		return sysRead(a, a.a[0], a.a[1], a.a[2])
	case linuxabi.SysWrite:
		return sysWrite(a, a.a[0], a.a[1], a.a[2])
	case linuxabi.SysOpen:
		return sysOpen(a, a.a[0], a.a[1], a.a[2])
	case linuxabi.SysClose:
		return sysClose(a, a.a[0])
	case linuxabi.SysLink:
		return sysLink(a, a.a[0], a.a[1])
	case linuxabi.SysUnlink:
		return sysUnlink(a, a.a[0])
	case linuxabi.SysGetpid:
		return sysGetpid(a)
	case linuxabi.SysGetppid:
		return sysGetppid(a)
	case linuxabi.SysGetrlimit:
		return sysGetrlimit(a, a.a[0], a.a[1])
	case linuxabi.SysSetrlimit:
		return sysSetrlimit(a, a.a[0], a.a[1])
	case linuxabi.SysAccess:
		return sysAccess(a, a.a[0], a.a[1])
	case linuxabi.SysBrk:
		return sysBrk(a, a.a[0])
	case linuxabi.SysIoctl:
		return sysIoctl(a, a.a[0], a.a[1], a.a[2])
	case linuxabi.SysGettimeofday:
		return sysGettimeofday(a, a.a[0], a.a[1])
	case linuxabi.SysMmap:
		return sysMmap(a, a.a[0], a.a[1], a.a[2], a.a[3], a.a[4], a.a[5])
	case linuxabi.SysMunmap:
		return sysMunmap(a, a.a[0], a.a[1])
	case linuxabi.SysFtruncate:
		return sysFtruncate(a, a.a[0], a.a[1])
	case linuxabi.SysSetpriority:
		return sysSetpriority(a, a.a[0], a.a[1], a.a[2])
	case linuxabi.SysStatfs:
		return sysStatfs(a, a.a[0], a.a[1])
	case linuxabi.SysClone:
		return sysClone(a, a.a[0], a.a[1], a.a[2], a.a[3], a.a[4])
	case linuxabi.SysUname:
		return sysUname(a, a.a[0])
	case linuxabi.SysMprotect:
		return sysMprotect(a, a.a[0], a.a[1], a.a[2])
	case linuxabi.SysLlseek:
		return sysLlseek(a, a.a[0], a.a[1], a.a[2], a.a[3], a.a[4])
	case linuxabi.SysWritev:
		return sysWritev(a, a.a[0], a.a[1], a.a[2])
	case linuxabi.SysSchedSetSched:
		return sysSchedSetScheduler(a, a.a[0], a.a[1], a.a[2])
	case linuxabi.SysSchedGetMax:
		return sysSchedGetPriorityMax(a, a.a[0])
	case linuxabi.SysSchedGetMin:
		return sysSchedGetPriorityMin(a, a.a[0])
	case linuxabi.SysSchedYield:
		return sysSchedYield(a)
	case linuxabi.SysSchedGetAff:
		return sysSchedGetAffinity(a, a.a[0], a.a[1], a.a[2])
	case linuxabi.SysSchedSetAff:
		return sysSchedSetAffinity(a, a.a[0], a.a[1], a.a[2])
	case linuxabi.SysPrctl:
		return sysPrctl(a, a.a[0], a.a[1], a.a[2], a.a[3], a.a[4])
	case linuxabi.SysRtSigaction:
		return sysRtSigaction(a, a.a[0], a.a[1], a.a[2])
	case linuxabi.SysRtSigprocmask:
		return sysRtSigprocmask(a, a.a[0], a.a[1], a.a[2], a.a[3])
	case linuxabi.SysSigaltstack:
		return sysSigaltstack(a, a.a[0], a.a[1])
	case linuxabi.SysUgetrlimit:
		return sysUgetrlimit(a, a.a[0], a.a[1])
	case linuxabi.SysMmap2:
		return sysMmap2(a, a.a[0], a.a[1], a.a[2], a.a[3], a.a[4], a.a[5])
	case linuxabi.SysStat64:
		return sysStat64(a, a.a[0], a.a[1])
	case linuxabi.SysLstat64:
		return sysLstat64(a, a.a[0], a.a[1])
	case linuxabi.SysFstat64:
		return sysFstat64(a, a.a[0], a.a[1])
	case linuxabi.SysGetdents64:
		return sysGetdents64(a, a.a[0], a.a[1], a.a[2])
	case linuxabi.SysMincore:
		return sysMincore(a, a.a[0], a.a[1], a.a[2])
	case linuxabi.SysFcntl64:
		return sysFcntl64(a, a.a[0], a.a[1], a.a[2])
	case linuxabi.SysGettid:
		return sysGettid(a)
	case linuxabi.SysFutex:
		return sysFutex(a, a.a[0], a.a[1], a.a[2], a.a[3], a.a[4], a.a[5])
	case linuxabi.SysExitGroup:
		return sysExitGroup(a, a.a[0])
	case linuxabi.SysSetTidAddress:
		return sysSetTidAddress(a, a.a[0])
	case linuxabi.SysClockGettime:
		return sysClockGettime(a, a.a[0], a.a[1])
	case linuxabi.SysOpenat:
		return sysOpenat(a, a.a[0], a.a[1], a.a[2], a.a[3])
	case linuxabi.SysFstatat64:
		return sysFstatat64(a, a.a[0], a.a[1], a.a[2], a.a[3])
	case linuxabi.SysReadlinkat:
		return sysReadlinkat(a, a.a[0], a.a[1], a.a[2], a.a[3])
	case linuxabi.SysSetRobustList:
		return sysSetRobustList(a, a.a[0], a.a[1])
	case linuxabi.SysSetTLS:
		return sysSetTLS(a, a.a[0])
	default:
		a.log.WithField("num", num).Error("syscalls: not implemented")
		return 0
	}
}
