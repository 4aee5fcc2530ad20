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

// Package kernel implements the Thread and Process (C6/C7, spec.md §4.6/
// §4.7): one CPU instance per guest thread with a pause/resume/exit run
// loop, clone-from-parent construction, and the process-scoped shared
// state (MMU, mount table, syscall bookkeeping) every thread operates on.
package kernel

import (
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/sirupsen/logrus"

	"github.com/nissan-connect-emu/emu/internal/linuxabi"
	"github.com/nissan-connect-emu/emu/pkg/cpu"
	"github.com/nissan-connect-emu/emu/pkg/loader"
)

// threadState is one of the three states spec.md §3 assigns a Thread, plus
// two bookkeeping sub-states of Running this package needs internally:
// notStarted (constructed and registered as an MMU peer, but its run loop
// has not yet called emu_start for the first time — spec.md §3 only calls a
// thread Running once "emu start returned busy") and pausing (Running, with
// a stop requested but not yet acknowledged).
type threadState int

const (
	stateNotStarted threadState = iota
	stateRunning
	statePausing
	statePaused
	stateExited
)

// Thread owns one CPU instance and drives its run loop (C6). It satisfies
// mmu.Peer so the owning Process's MMU can pause/resume it across
// structural memory mutations.
type Thread struct {
	ID   uint32
	proc *Process
	cpu  *cpu.Instance

	mu       sync.Mutex
	state    threadState
	resumeCh chan struct{}

	log logrus.FieldLogger
}

func newThread(proc *Process, id uint32, cpuInst *cpu.Instance) *Thread {
	return &Thread{
		ID:   id,
		proc: proc,
		cpu:  cpuInst,
		// Buffered by one: a wake-up (Resume or a requestExit racing a
		// still-parking run loop) must never block on a receiver that
		// hasn't reached the channel read yet.
		resumeCh: make(chan struct{}, 1),
		log:      proc.log.WithField("tid", id),
	}
}

// CPU returns the thread's CPU instance (mmu.Peer).
func (t *Thread) CPU() *cpu.Instance { return t.cpu }

// Process returns the thread's owning process, for handlers that need the
// MMU/mount table/syscall state or the thread list.
func (t *Thread) Process() *Process { return t.proc }

// Pause implements mmu.Peer: request a cooperative stop and block until the
// run loop has actually parked, so the caller's subsequent memory mutation
// never races a still-running engine (spec.md §5 Pause discipline). The
// engine's Stop only requests a halt at its next host-instruction boundary,
// so the caller polls for the run loop's acknowledgement with a bounded
// exponential backoff rather than busy-spinning on the mutex.
func (t *Thread) Pause() {
	t.mu.Lock()
	// A thread that hasn't called emu_start yet (stateNotStarted), is
	// already parked (statePaused), or has terminated (stateExited) has no
	// engine execution in flight for a structural mutation to race; only
	// stateRunning needs the cooperative-stop-and-wait below.
	if t.state != stateRunning {
		t.mu.Unlock()
		return
	}
	t.state = statePausing
	t.mu.Unlock()

	if err := t.cpu.Stop(); err != nil {
		t.log.WithError(err).Warn("kernel: cooperative stop failed")
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 50 * time.Microsecond
	b.MaxInterval = 5 * time.Millisecond
	b.MaxElapsedTime = 5 * time.Second
	err := backoff.Retry(func() error {
		t.mu.Lock()
		parked := t.state == statePaused || t.state == stateExited
		t.mu.Unlock()
		if parked {
			return nil
		}
		return errNotYetPaused
	}, b)
	if err != nil {
		t.log.WithError(err).Error("kernel: thread did not acknowledge pause in time")
	}
}

var errNotYetPaused = fmt.Errorf("kernel: run loop has not parked yet")

// Resume implements mmu.Peer: clear the pause and signal the run loop's
// resume channel, only if the thread was actually paused (spec.md §4.6
// "Operations exposed").
func (t *Thread) Resume() {
	t.mu.Lock()
	if t.state != statePaused {
		t.mu.Unlock()
		return
	}
	t.state = stateRunning
	t.mu.Unlock()
	t.resumeCh <- struct{}{}
}

// Exit requests termination of just this thread (the exit(2) syscall,
// distinct from exit_group's whole-process termination), exposed here so
// pkg/syscalls never needs to reach into kernel-private fields.
func (t *Thread) Exit() { t.requestExit() }

// requestExit sets the exit flag and cooperatively stops the engine; the
// run loop notices stateExited on its next wakeup and terminates instead
// of waiting for a resume signal. If the thread was already parked in
// runLoop's resumeCh receive, the buffered wake-up below unblocks it
// immediately rather than leaving it waiting for a Resume that will never
// come.
func (t *Thread) requestExit() {
	t.mu.Lock()
	already := t.state == stateExited
	t.state = stateExited
	t.mu.Unlock()
	if already {
		return
	}
	if err := t.cpu.Stop(); err != nil {
		t.log.WithError(err).Debug("kernel: stop on exit")
	}
	select {
	case t.resumeCh <- struct{}{}:
	default:
	}
}

// markStarted transitions a not-yet-started thread to Running, called
// immediately before the first cpu.Start/StartUntil so Pause only ever
// observes this thread as live once its engine is actually about to
// execute. A no-op once the thread has already made that transition.
func (t *Thread) markStarted() {
	t.mu.Lock()
	if t.state == stateNotStarted {
		t.state = stateRunning
	}
	t.mu.Unlock()
}

// runMain performs the "start ELF" constructor's bring-up (spec.md §4.6):
// write SP, run the dynamic linker up to the real entry point if one was
// loaded, then enter the generic run loop at the image's own entry point.
func (t *Thread) runMain(res *loader.Result, stackTop uint32) {
	if err := t.cpu.RegWrite(cpu.SP, stackTop); err != nil {
		t.log.WithError(err).Error("kernel: write initial SP")
		return
	}
	if res.StartPC != res.ExecEntry {
		t.markStarted()
		if err := t.cpu.StartUntil(res.StartPC, res.ExecEntry); err != nil {
			t.log.WithError(err).Error("kernel: run interpreter to entry")
			return
		}
	}
	t.runLoop(res.ExecEntry)
}

// runLoop implements spec.md §4.6's "Run loop": while not exited, run from
// pc until the engine stops (either because requestExit or Pause called
// cpu.Stop, or because the engine hit an error). An ordinary stop is always
// treated as a pause request fulfilled, never as program completion — this
// emulator has no notion of a thread returning from main; it only stops via
// exit_group or a fatal engine error.
func (t *Thread) runLoop(pc uint32) {
	for {
		t.mu.Lock()
		if t.state == stateExited {
			t.mu.Unlock()
			return
		}
		if t.state == stateNotStarted {
			t.state = stateRunning
		}
		t.mu.Unlock()

		if err := t.cpu.Start(pc); err != nil {
			t.log.WithError(err).Error("kernel: engine error, terminating thread")
			t.mu.Lock()
			t.state = stateExited
			t.mu.Unlock()
			return
		}

		t.mu.Lock()
		if t.state == stateExited {
			t.mu.Unlock()
			return
		}
		newPC, err := t.cpu.RegRead(cpu.PC)
		if err != nil {
			t.log.WithError(err).Error("kernel: read PC after stop")
			t.state = stateExited
			t.mu.Unlock()
			return
		}
		t.state = statePaused
		t.mu.Unlock()

		<-t.resumeCh
		pc = newPC
	}
}

// cloneFrom builds a sibling thread sharing the parent's memory map
// (spec.md §4.6 "Constructor clone"): a fresh CPU instance seeded from the
// parent's register file and the process MMU's current mappings, TLS
// installed, SP and R0 set for the child's return from clone(2).
func (p *Process) cloneFrom(parent *Thread, childStack, childTLS uint32) (*Thread, error) {
	cpuInst, err := cpu.New(nil)
	if err != nil {
		return nil, fmt.Errorf("kernel: clone: create CPU instance: %w", err)
	}

	parent.mu.Lock()
	ctx, err := parent.cpu.ContextSave()
	parent.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("kernel: clone: save parent context: %w", err)
	}
	if err := cpuInst.ContextRestore(ctx); err != nil {
		return nil, fmt.Errorf("kernel: clone: restore context: %w", err)
	}
	if err := p.mmu.CloneInto(cpuInst); err != nil {
		return nil, fmt.Errorf("kernel: clone: clone memory map: %w", err)
	}

	if err := cpuInst.RegWrite(cpu.C13C03, childTLS); err != nil {
		return nil, fmt.Errorf("kernel: clone: write TLS coprocessor register: %w", err)
	}
	tlsBytes := []byte{
		byte(childTLS), byte(childTLS >> 8), byte(childTLS >> 16), byte(childTLS >> 24),
	}
	if err := p.mmu.WriteAt(linuxabi.GetTLSOff+16, tlsBytes); err != nil {
		return nil, fmt.Errorf("kernel: clone: write TLS trampoline storage: %w", err)
	}
	if err := loader.EnableVFP(cpuInst); err != nil {
		return nil, fmt.Errorf("kernel: clone: enable VFP: %w", err)
	}
	if err := cpuInst.RegWrite(cpu.SP, childStack); err != nil {
		return nil, fmt.Errorf("kernel: clone: write child SP: %w", err)
	}
	if err := cpuInst.RegWrite(cpu.R0, 0); err != nil {
		return nil, fmt.Errorf("kernel: clone: zero child R0: %w", err)
	}
	pc, err := cpuInst.RegRead(cpu.PC)
	if err != nil {
		return nil, fmt.Errorf("kernel: clone: read child PC: %w", err)
	}

	id := p.nextThreadID()
	child := newThread(p, id, cpuInst)
	cpuInst.UserData = threadUserData{proc: p, threadID: id}
	p.addThread(child)
	p.installHooks(cpuInst)

	p.group.Go(func() error {
		child.runLoop(pc)
		return nil
	})
	return child, nil
}

// threadUserData is the per-CPU-instance payload spec.md §4.1 describes
// ("the process context plus this thread's id"); the syscall hook reads it
// back via cpu.Instance.UserData to find its Process and thread id.
type threadUserData struct {
	proc     *Process
	threadID uint32
}
