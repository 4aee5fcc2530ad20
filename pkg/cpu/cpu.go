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

// Package cpu adapts the external Unicorn CPU emulation engine (C1, spec.md
// §4.1) to the narrow surface the rest of this emulator needs: instance
// creation, raw-pointer-backed mapping, register/memory access, the four
// hook kinds, and cooperative start/stop. Everything else about the engine
// — its instruction semantics, its disassembly — is out of scope; this
// package never interprets guest instructions itself.
package cpu

import (
	"fmt"
	"unsafe"

	uc "github.com/unicorn-engine/unicorn/bindings/go/unicorn"
)

// Perm is a permission bitmask matching Unicorn's own PROT_* values so it
// can be passed straight through to the engine.
type Perm int

const (
	PermNone  Perm = 0
	PermRead  Perm = uc.PROT_READ
	PermWrite Perm = uc.PROT_WRITE
	PermExec  Perm = uc.PROT_EXEC
)

// HookKind enumerates the four hook categories spec.md §4.1 asks the
// adapter to register.
type HookKind int

const (
	HookSyscall HookKind = iota
	HookUnmapped
	HookWriteProtected
	HookCode
)

// SyscallHookFunc is invoked on an SVC trap; it reads R7/R0-R5 itself via
// the Instance passed in.
type SyscallHookFunc func(in *Instance)

// MemFaultHookFunc is invoked for unmapped/protected-write accesses. A true
// return tells the engine the fault was handled and to resume; a false
// return lets the engine report an error to the run loop. The adapter passes
// the callback's result through unchanged.
type MemFaultHookFunc func(in *Instance, addr uint64, size int, value int64) bool

// CodeHookFunc is invoked when execution reaches a hooked address.
type CodeHookFunc func(in *Instance, addr uint64, size uint32)

// Instance wraps one Unicorn engine instance: one per guest thread, per
// spec.md §3 ("every guest thread owns a distinct CPU-engine instance").
type Instance struct {
	mu       uc.Unicorn
	UserData any // process context + this thread's id; read back by hooks
}

// New creates an ARM, little-endian Unicorn instance.
func New(userData any) (*Instance, error) {
	mu, err := uc.NewUnicorn(uc.ARCH_ARM, uc.MODE_LITTLE_ENDIAN)
	if err != nil {
		return nil, fmt.Errorf("cpu: create instance: %w", err)
	}
	return &Instance{mu: mu, UserData: userData}, nil
}

// Close releases the underlying engine instance.
func (in *Instance) Close() error { return in.mu.Close() }

// RegRead/RegWrite access the ARM register file by Unicorn's register enum.
func (in *Instance) RegRead(reg int) (uint32, error) {
	v, err := in.mu.RegRead(reg)
	return uint32(v), err
}

func (in *Instance) RegWrite(reg int, value uint32) error {
	return in.mu.RegWrite(reg, uint64(value))
}

// MemRead/MemWrite access guest memory at an absolute address.
func (in *Instance) MemRead(addr uint32, size int) ([]byte, error) {
	return in.mu.MemRead(uint64(addr), uint64(size))
}

func (in *Instance) MemWrite(addr uint32, data []byte) error {
	return in.mu.MemWrite(uint64(addr), data)
}

// MemMapPtr installs a page-aligned range backed by caller-owned memory.
// The caller must guarantee buf stays valid and never relocates until the
// matching MemUnmap (spec.md §4.1 Safety contract).
func (in *Instance) MemMapPtr(addr uint32, size uint32, perms Perm, buf []byte) error {
	if len(buf) != int(size) {
		return fmt.Errorf("cpu: backing buffer size %d does not match mapping size %d", len(buf), size)
	}
	ptr := unsafe.Pointer(&buf[0])
	return in.mu.MemMapPtr(uint64(addr), uint64(size), int(perms), ptr)
}

func (in *Instance) MemUnmap(addr, size uint32) error {
	return in.mu.MemUnmap(uint64(addr), uint64(size))
}

func (in *Instance) MemProtect(addr, size uint32, perms Perm) error {
	return in.mu.MemProtect(uint64(addr), uint64(size), int(perms))
}

// AddHook registers one of the four hook kinds.
func (in *Instance) AddHook(kind HookKind, begin, end uint64, fn any) error {
	switch kind {
	case HookSyscall:
		cb := fn.(SyscallHookFunc)
		_, err := in.mu.HookAdd(uc.HOOK_INTR, func(_ uc.Unicorn, intno uint32) {
			cb(in)
		}, begin, end)
		return err
	case HookUnmapped:
		cb := fn.(MemFaultHookFunc)
		ht := uc.HOOK_MEM_FETCH_UNMAPPED | uc.HOOK_MEM_READ_UNMAPPED | uc.HOOK_MEM_WRITE_UNMAPPED
		_, err := in.mu.HookAdd(ht, func(_ uc.Unicorn, _ int, addr uint64, size int, value int64) bool {
			return cb(in, addr, size, value)
		}, begin, end)
		return err
	case HookWriteProtected:
		cb := fn.(MemFaultHookFunc)
		_, err := in.mu.HookAdd(uc.HOOK_MEM_WRITE_PROT, func(_ uc.Unicorn, _ int, addr uint64, size int, value int64) bool {
			return cb(in, addr, size, value)
		}, begin, end)
		return err
	case HookCode:
		cb := fn.(CodeHookFunc)
		_, err := in.mu.HookAdd(uc.HOOK_CODE, func(_ uc.Unicorn, addr uint64, size uint32) {
			cb(in, addr, size)
		}, begin, end)
		return err
	default:
		return fmt.Errorf("cpu: unknown hook kind %d", kind)
	}
}

// Start runs the engine from pc until a hook stops it or an error occurs.
// timeout/count default to 0 (run until explicitly stopped), matching
// spec.md §4.1's emu_start(pc, until=0, timeout=0, count=0).
func (in *Instance) Start(pc uint32) error {
	return in.mu.Start(uint64(pc), 0)
}

// StartUntil runs the engine from pc and stops automatically once execution
// reaches until, with no hook required. Used to hand control to the dynamic
// linker and regain it the moment it jumps to the real entry point (spec.md
// §4.5), exactly as a plain Start(pc) does when until is 0.
func (in *Instance) StartUntil(pc, until uint32) error {
	return in.mu.Start(uint64(pc), uint64(until))
}

// Stop cooperatively halts a running Start call; safe to call from another
// goroutine.
func (in *Instance) Stop() error { return in.mu.Stop() }

// Context is a saved register file snapshot.
type Context struct{ raw uc.Context }

// ContextSave snapshots the register file only (spec.md §4.1).
func (in *Instance) ContextSave() (*Context, error) {
	ctx, err := in.mu.ContextSave(nil)
	if err != nil {
		return nil, err
	}
	return &Context{raw: ctx}, nil
}

// ContextRestore applies a previously saved register file.
func (in *Instance) ContextRestore(ctx *Context) error {
	return in.mu.ContextRestore(ctx.raw)
}
