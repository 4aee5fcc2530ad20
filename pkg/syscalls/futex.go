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

import "github.com/nissan-connect-emu/emu/internal/linuxabi"

// sysFutex implements WAIT/WAKE (spec.md §4.7). The PRIVATE flag is noted
// but not required for correctness within one process, so only the low
// bits selecting the operation are consulted. Unlike the original source's
// WAIT handler, the EAGAIN-on-mismatch result here is actually returned,
// not silently discarded. The timeout argument is accepted and ignored:
// WAIT blocks until a matching WAKE arrives.
func sysFutex(a args, uaddr, op, val, timeout, uaddr2, val3 uint32) uint32 {
	switch op & linuxabi.FutexCmdMask {
	case linuxabi.FutexWait:
		data, err := a.th.CPU().MemRead(uaddr, 4)
		if err != nil {
			return negErrno(errEINVAL)
		}
		if unpackU32(data) != val {
			return negErrno(errEAGAIN)
		}
		ch := a.th.Process().SysCalls().FutexWait(uaddr)
		<-ch
		return 0
	case linuxabi.FutexWake:
		woken := a.th.Process().SysCalls().FutexWake(uaddr, int(val))
		return uint32(woken)
	default:
		a.log.WithField("op", op).Debug("syscalls: futex op not implemented")
		return 0
	}
}
