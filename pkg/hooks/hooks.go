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

// Package hooks installs per-address code hooks into libraries the guest
// loads whose native implementations this emulator never runs: firmware
// shared objects that talk to hardware or an RTOS the host has no analogue
// for. Each hook replaces one exported function's body with a Go stub that
// reads its arguments off the ARM calling convention, computes a plausible
// result, writes it to R0, then redirects PC to LR — the same "return
// immediately" trick the function would perform itself, without emulating a
// single instruction of it (spec.md §4.8, SUPPLEMENTED FEATURES).
package hooks

import (
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/nissan-connect-emu/emu/pkg/cpu"
	"github.com/nissan-connect-emu/emu/pkg/kernel"
)

// StubFunc computes a hooked function's return value directly from the
// calling thread's own CPU instance, exactly as the function it replaces
// would have read its arguments from R0-R3. log is scoped to this one
// symbol, for stubs worth tracing.
type StubFunc func(in *cpu.Instance, log logrus.FieldLogger) uint32

type offsetHook struct {
	offset uint32
	name   string
	fn     StubFunc
}

type library struct {
	// match reports whether a mapped file's path belongs to this library.
	// Guest builds are only ever seen under their upstream basename, never
	// verified against the exact filename this port was grounded on, so
	// matching is a case-insensitive substring test rather than an exact
	// equality check.
	match func(path string) bool
	hooks []offsetHook
}

// registry lists every library this emulator knows how to stub, populated
// by the per-library offset tables in osal.go and trace.go.
var registry []library

func register(substr string, hooks []offsetHook) {
	registry = append(registry, library{
		match: func(path string) bool {
			return strings.Contains(strings.ToLower(filepath.Base(path)), substr)
		},
		hooks: hooks,
	})
}

// Installer implements syscalls.LibraryHookInstaller.
type Installer struct {
	log logrus.FieldLogger
}

// New returns an Installer that logs hook installation under log.
func New(log logrus.FieldLogger) *Installer {
	return &Installer{log: log}
}

// Install matches path against the known library table and, on a hit, adds
// one code hook per stubbed offset to every thread's CPU instance — mapping
// a shared object installs its hooks on every guest thread, not just the one
// whose mmap call mapped it, since any thread may later call into it
// (original_source's update_library_hooks_for_all_threads).
func (ins *Installer) Install(proc *kernel.Process, path string, base uint32) {
	lib, ok := matchLibrary(path)
	if !ok {
		return
	}
	log := ins.log.WithField("library", path)
	for _, th := range proc.Threads() {
		in := th.CPU()
		for _, h := range lib.hooks {
			addr := uint64(base + h.offset)
			hookLog := log.WithField("symbol", h.name)
			fn := h.fn
			err := in.AddHook(cpu.HookCode, addr, addr, cpu.CodeHookFunc(func(in *cpu.Instance, _ uint64, _ uint32) {
				res := fn(in, hookLog)
				if err := in.RegWrite(cpu.R0, res); err != nil {
					hookLog.WithError(err).Error("hooks: write stub result")
					return
				}
				lr, err := in.RegRead(cpu.LR)
				if err != nil {
					hookLog.WithError(err).Error("hooks: read link register")
					return
				}
				if err := in.RegWrite(cpu.PC, lr); err != nil {
					hookLog.WithError(err).Error("hooks: redirect to link register")
				}
			}))
			if err != nil {
				hookLog.WithError(err).Error("hooks: install code hook")
			}
		}
	}
	log.WithField("count", len(lib.hooks)).Debug("hooks: library stubbed")
}

func matchLibrary(path string) (library, bool) {
	for _, lib := range registry {
		if lib.match(path) {
			return lib, true
		}
	}
	return library{}, false
}
