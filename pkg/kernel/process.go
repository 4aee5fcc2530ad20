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

import (
	"crypto/rand"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/nissan-connect-emu/emu/internal/linuxabi"
	"github.com/nissan-connect-emu/emu/pkg/cpu"
	"github.com/nissan-connect-emu/emu/pkg/loader"
	"github.com/nissan-connect-emu/emu/pkg/mmu"
	"github.com/nissan-connect-emu/emu/pkg/vfs"
)

// Dispatcher routes a thread's pending syscall (R7 number, R0-R5 args) to a
// handler and writes the result to R0 (C8, spec.md §4.7). The kernel
// package only needs to invoke it on every SVC trap; pkg/syscalls supplies
// the concrete implementation, wired in after construction to avoid an
// import cycle between the two packages.
type Dispatcher interface {
	Handle(th *Thread)
}

// Process owns the MMU, the mount table, the thread list and next-thread-id
// counter, and the syscall state every thread shares (C7, spec.md §3/§4.7).
type Process struct {
	mmu   *mmu.MMU
	mount *vfs.MountTable
	sys   *SysCallsState

	mu      sync.Mutex
	threads []*Thread
	nextTID uint32

	dispatcher Dispatcher
	hooked     map[string]bool // already-hooked library paths (C10 bookkeeping)

	execPath string // absolute path of the main executable, for /proc/self/exe

	exitStatus uint32 // last status passed to exit/exit_group, for the host entry point's return code

	group *errgroup.Group
	log   logrus.FieldLogger
}

// New constructs a Process around an already-built mount table. The MMU is
// created here (it belongs to exactly one process) and wired to this
// Process as its mmu.PeerSource.
func New(mount *vfs.MountTable, log logrus.FieldLogger) *Process {
	if log == nil {
		log = logrus.StandardLogger()
	}
	p := &Process{
		mount:  mount,
		sys:    NewSysCallsState(),
		hooked: make(map[string]bool),
		group:  new(errgroup.Group),
		log:    log,
	}
	p.mmu = mmu.New(linuxabi.HeapEnd, log)
	p.mmu.SetPeerSource(p)
	return p
}

// SetDispatcher wires the syscall dispatcher; must be called before Run.
func (p *Process) SetDispatcher(d Dispatcher) { p.dispatcher = d }

func (p *Process) MMU() *mmu.MMU            { return p.mmu }
func (p *Process) Mount() *vfs.MountTable   { return p.mount }
func (p *Process) SysCalls() *SysCallsState { return p.sys }
func (p *Process) Log() logrus.FieldLogger  { return p.log }

// ExecPath returns the absolute path of the main executable, which the
// readlinkat handler returns for /proc/self/exe (SPEC_FULL.md supplemented
// feature).
func (p *Process) ExecPath() string { return p.execPath }

// Peers implements mmu.PeerSource.
func (p *Process) Peers() []mmu.Peer {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]mmu.Peer, len(p.threads))
	for i, t := range p.threads {
		out[i] = t
	}
	return out
}

// Threads returns a snapshot of the current thread list.
func (p *Process) Threads() []*Thread {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*Thread(nil), p.threads...)
}

// Thread looks up a thread by id, used by handlers that need to act on a
// thread other than the one that trapped (e.g. clone's parent_tid_ptr).
func (p *Process) Thread(id uint32) (*Thread, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, t := range p.threads {
		if t.ID == id {
			return t, true
		}
	}
	return nil, false
}

func (p *Process) nextThreadID() uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextTID++
	return p.nextTID
}

func (p *Process) addThread(t *Thread) {
	p.mu.Lock()
	p.threads = append(p.threads, t)
	p.mu.Unlock()
}

// NewThread creates a fresh CPU instance, assigns it the next thread id,
// registers it as an MMU peer and syscall-trap target, and returns it. Run
// uses this for the main thread; cloneFrom builds every subsequent one its
// own way, seeding the new CPU instance from the parent's context instead of
// starting blank.
func (p *Process) NewThread() (*Thread, error) {
	cpuInst, err := cpu.New(nil)
	if err != nil {
		return nil, fmt.Errorf("kernel: create CPU instance: %w", err)
	}
	id := p.nextThreadID()
	t := newThread(p, id, cpuInst)
	cpuInst.UserData = threadUserData{proc: p, threadID: id}
	p.addThread(t)
	p.installHooks(cpuInst)
	return t, nil
}

// installHooks registers the syscall-interrupt hook on a freshly created
// CPU instance, plus unmapped-access and write-protected hooks that log the
// faulting address and return false, so the engine still reports the fault
// to the run loop as an error.
func (p *Process) installHooks(cpuInst *cpu.Instance) {
	if p.dispatcher == nil {
		return
	}
	_ = cpuInst.AddHook(cpu.HookSyscall, 1, 0, cpu.SyscallHookFunc(func(in *cpu.Instance) {
		ud, ok := in.UserData.(threadUserData)
		if !ok {
			p.log.Error("kernel: syscall trap on CPU instance with no thread identity")
			return
		}
		th, ok := p.Thread(ud.threadID)
		if !ok {
			p.log.WithField("tid", ud.threadID).Error("kernel: syscall trap from unknown thread")
			return
		}
		p.dispatcher.Handle(th)
	}))
	fault := func(msg string) cpu.MemFaultHookFunc {
		return func(_ *cpu.Instance, addr uint64, size int, _ int64) bool {
			p.log.WithFields(logrus.Fields{"addr": addr, "size": size}).Error(msg)
			return false
		}
	}
	_ = cpuInst.AddHook(cpu.HookUnmapped, 1, 0, fault("kernel: unmapped memory access"))
	_ = cpuInst.AddHook(cpu.HookWriteProtected, 1, 0, fault("kernel: write to protected memory"))
}

// ResolveInterp reads a PT_INTERP path through the process's own mount
// table, so the dynamic linker is found via the same VFS every other guest
// file access goes through.
func (p *Process) ResolveInterp(path string) ([]byte, error) {
	return p.readFile(path)
}

func (p *Process) readFile(path string) ([]byte, error) {
	fd, err := p.mount.Open(path, vfs.OpenFlags{Read: true})
	if err != nil {
		return nil, err
	}
	defer p.mount.Close(fd)

	length := p.mount.Length(fd)
	buf := make([]byte, length)
	total := 0
	for total < len(buf) {
		n, err := p.mount.Read(fd, buf[total:])
		if n > 0 {
			total += n
		}
		if err != nil || n == 0 {
			break
		}
	}
	return buf[:total], nil
}

// Run loads execPath as the process's main executable and runs it to
// completion, implementing C7's "spawns and joins the main thread"
// responsibility. argv/envp are passed through verbatim to the initial
// stack layout (spec.md §4.5).
func (p *Process) Run(execPath string, argv, envp []string) error {
	p.execPath = p.mount.ToAbsolute(execPath)

	data, err := p.readFile(execPath)
	if err != nil {
		return fmt.Errorf("kernel: read %s: %w", execPath, err)
	}

	main, err := p.NewThread()
	if err != nil {
		return fmt.Errorf("kernel: create main thread: %w", err)
	}
	cpuInst := main.CPU()

	// Registering the thread as a peer before loading means every
	// PT_LOAD/stack Map call propagates straight to its engine instance
	// through the normal peer fan-out; no separate CloneInto is needed
	// for the main thread.
	res, err := loader.Load(p.mmu, execPath, data, p.ResolveInterp)
	if err != nil {
		return fmt.Errorf("kernel: load %s: %w", execPath, err)
	}
	p.mmu.BrkEnd = linuxabi.PageAlignUp(p.mmu.HighestMapped())

	var randomBytes [16]byte
	if _, err := rand.Read(randomBytes[:]); err != nil {
		return fmt.Errorf("kernel: generate AT_RANDOM bytes: %w", err)
	}
	stack, err := loader.BuildInitialStack(p.mmu, res, execPath, argv, envp, randomBytes)
	if err != nil {
		return fmt.Errorf("kernel: build initial stack: %w", err)
	}
	if err := loader.InstallKuserTraps(p.mmu); err != nil {
		return fmt.Errorf("kernel: install kuser traps: %w", err)
	}
	if err := loader.EnableVFP(cpuInst); err != nil {
		return fmt.Errorf("kernel: enable VFP: %w", err)
	}

	p.group.Go(func() error {
		main.runMain(res, stack.StackTop)
		return nil
	})
	return p.group.Wait()
}

// Clone implements the clone(2) handler's thread-spawn step (spec.md §4.7's
// "Call Thread::clone"), exposed here so pkg/syscalls never needs to reach
// into kernel-private fields.
func (p *Process) Clone(parent *Thread, childStack, childTLS uint32) (*Thread, error) {
	return p.cloneFrom(parent, childStack, childTLS)
}

// ExitAll requests exit on every thread of the process (exit_group,
// spec.md §4.7).
func (p *Process) ExitAll() {
	for _, t := range p.Threads() {
		t.requestExit()
	}
}

// SetExitStatus records the status passed to exit/exit_group; the host
// entry point (§6) reads it back once every thread has terminated. A later
// call overwrites an earlier one, whether it came from exit(2) or
// exit_group.
func (p *Process) SetExitStatus(status uint32) {
	p.mu.Lock()
	p.exitStatus = status
	p.mu.Unlock()
}

// ExitStatus returns the most recently recorded exit status, 0 if the guest
// never called exit/exit_group (e.g. it crashed into the unmapped-access
// diagnostic path instead).
func (p *Process) ExitStatus() uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exitStatus
}

// NoteLibraryMapped checks whether path has already been seen as a mapped,
// executable, named region and marks it seen; callers (the mmap2 handler)
// use the false return to decide whether to consult the library hook table
// for the first time (C10, spec.md §4.8).
func (p *Process) NoteLibraryMapped(path string) (alreadyHooked bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.hooked[path] {
		return true
	}
	p.hooked[path] = true
	return false
}
