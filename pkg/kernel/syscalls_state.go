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

package kernel

import "sync"

// SysCallsState is the process-scoped bookkeeping spec.md §3 describes:
// the getdents64 continuation per fd, and the futex wait queues keyed by
// guest address. Grounded on sys_calls_state.rs's get_dents_list map and
// futex.rs's channel-based wake queues, translated to Go channels. The
// signal/thread-name/rlimit maps are SUPPLEMENTED FEATURES (SPEC_FULL.md):
// bookkeeping-only tables backing prctl/rt_sigaction/rt_sigprocmask/
// sigaltstack/getrlimit/setrlimit, grounded on signal.rs/prctl.rs/
// resource.rs, none of which the original actually stores anywhere.
type SysCallsState struct {
	mu sync.Mutex

	dents map[int][]string // fd -> remaining directory entry names

	futexWaiters map[uint32][]chan struct{}

	threadNames map[uint32]string // tid -> PR_SET_NAME string
	sigHandlers map[uint32]uint32 // signum -> sigaction handler address
	sigMask     uint64            // rt_sigprocmask's current blocked-signal mask
	rlimits     map[uint32][2]uint64
}

// NewSysCallsState returns an empty SysCallsState.
func NewSysCallsState() *SysCallsState {
	return &SysCallsState{
		dents:        make(map[int][]string),
		futexWaiters: make(map[uint32][]chan struct{}),
		threadNames:  make(map[uint32]string),
		sigHandlers:  make(map[uint32]uint32),
		rlimits:      make(map[uint32][2]uint64),
	}
}

// SetThreadName/ThreadName implement prctl(PR_SET_NAME/PR_GET_NAME).
func (s *SysCallsState) SetThreadName(tid uint32, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.threadNames[tid] = name
}

func (s *SysCallsState) ThreadName(tid uint32) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.threadNames[tid]
}

// SetSigHandler/SigHandler implement rt_sigaction's bookkeeping-only
// registration (never delivered, spec.md §9 Open Question (c)).
func (s *SysCallsState) SetSigHandler(signum uint32, handler uint32) (previous uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	previous = s.sigHandlers[signum]
	s.sigHandlers[signum] = handler
	return previous
}

func (s *SysCallsState) SigHandler(signum uint32) uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sigHandlers[signum]
}

// SigMask/SetSigMask back rt_sigprocmask's stored mask.
func (s *SysCallsState) SigMask() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sigMask
}

func (s *SysCallsState) SetSigMask(mask uint64) (previous uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	previous = s.sigMask
	s.sigMask = mask
	return previous
}

// Rlimit/SetRlimit back getrlimit/setrlimit/ugetrlimit for a resource kind
// not otherwise tracked (current, max).
func (s *SysCallsState) Rlimit(resource uint32) ([2]uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.rlimits[resource]
	return v, ok
}

func (s *SysCallsState) SetRlimit(resource uint32, cur, max uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rlimits[resource] = [2]uint64{cur, max}
}

// SetDents stashes the remaining directory entries for fd, replacing any
// previous stash (first getdents64 call for this fd).
func (s *SysCallsState) SetDents(fd int, entries []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dents[fd] = entries
}

// Dents reports the remaining entries for fd and whether a stash exists at
// all (vs. an exhausted/never-started one).
func (s *SysCallsState) Dents(fd int) ([]string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries, ok := s.dents[fd]
	return entries, ok
}

// ClearDents drops fd's stash; called on close(2).
func (s *SysCallsState) ClearDents(fd int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.dents, fd)
}

// FutexWait enqueues a fresh single-shot channel for uaddr and returns it;
// the caller blocks on a receive from it until a matching FutexWake fires
// (spec.md §4.7 futex WAIT).
func (s *SysCallsState) FutexWait(uaddr uint32) chan struct{} {
	ch := make(chan struct{})
	s.mu.Lock()
	s.futexWaiters[uaddr] = append(s.futexWaiters[uaddr], ch)
	s.mu.Unlock()
	return ch
}

// FutexWake pops up to n waiter channels queued at uaddr and signals each,
// returning the count actually woken (spec.md §4.7 futex WAKE).
func (s *SysCallsState) FutexWake(uaddr uint32, n int) int {
	s.mu.Lock()
	waiters := s.futexWaiters[uaddr]
	if n > len(waiters) {
		n = len(waiters)
	}
	woken := waiters[:n]
	s.futexWaiters[uaddr] = waiters[n:]
	if len(s.futexWaiters[uaddr]) == 0 {
		delete(s.futexWaiters, uaddr)
	}
	s.mu.Unlock()

	for _, ch := range woken {
		close(ch)
	}
	return len(woken)
}
