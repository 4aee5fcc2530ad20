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

import "golang.org/x/sys/unix"

// sysGettimeofday packs the host real-time clock as (seconds, microseconds);
// the timezone argument is accepted and ignored, matching glibc's own
// treatment of it on Linux (spec.md §4.7). The host read goes through
// golang.org/x/sys/unix rather than package time so the value comes straight
// off the same clock_gettime(2) the guest itself is modeling, not the
// runtime's own monotonic-adjusted clock.
func sysGettimeofday(a args, tvAddr, tzAddr uint32) uint32 {
	if tvAddr != 0 {
		var tv unix.Timeval
		if err := unix.Gettimeofday(&tv); err != nil {
			a.log.WithError(err).Error("syscalls: gettimeofday: host clock")
			return negErrno(errEINVAL)
		}
		buf := append(packU32(uint32(tv.Sec)), packU32(uint32(tv.Usec))...)
		if err := a.th.CPU().MemWrite(tvAddr, buf); err != nil {
			a.log.WithError(err).Error("syscalls: gettimeofday: write guest buffer")
			return negErrno(errEINVAL)
		}
	}
	return 0
}

// sysClockGettime packs the host clock identified by clockID as (seconds,
// nanoseconds); every guest clock ID maps onto the matching host one via
// unix.ClockGettime, since this emulator has no clock source of its own.
func sysClockGettime(a args, clockID, tsAddr uint32) uint32 {
	var ts unix.Timespec
	if err := unix.ClockGettime(clockIDToHost(clockID), &ts); err != nil {
		a.log.WithError(err).Error("syscalls: clock_gettime: host clock")
		return negErrno(errEINVAL)
	}
	buf := append(packU32(uint32(ts.Sec)), packU32(uint32(ts.Nsec))...)
	if err := a.th.CPU().MemWrite(tsAddr, buf); err != nil {
		a.log.WithError(err).Error("syscalls: clock_gettime: write guest buffer")
		return negErrno(errEINVAL)
	}
	return 0
}

// clockIDToHost maps the guest's CLOCK_* numbers (identical to Linux's own
// on every architecture) onto the host unix package's constants, falling
// back to the realtime clock for anything unrecognized.
func clockIDToHost(clockID uint32) int32 {
	switch clockID {
	case 1:
		return unix.CLOCK_MONOTONIC
	case 2:
		return unix.CLOCK_PROCESS_CPUTIME_ID
	case 3:
		return unix.CLOCK_THREAD_CPUTIME_ID
	default:
		return unix.CLOCK_REALTIME
	}
}
