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

import "github.com/nissan-connect-emu/emu/pkg/kernel"

// LibraryHookInstaller is implemented by pkg/hooks (C10). Wiring it in here
// rather than importing pkg/hooks directly keeps the dependency one-way:
// pkg/hooks depends on pkg/kernel and pkg/cpu, and pkg/emulator registers
// its Installer with pkg/syscalls instead of pkg/syscalls reaching down to
// it.
type LibraryHookInstaller interface {
	Install(proc *kernel.Process, path string, base uint32)
}

var libraryHookInstaller LibraryHookInstaller

// SetLibraryHookInstaller wires the library hook mechanism; call this
// before Process.Run so the first executable mapping of a known library
// gets its hooks installed.
func SetLibraryHookInstaller(h LibraryHookInstaller) { libraryHookInstaller = h }

// notifyLibraryMapped is mmap2/mmap's "if the new mapping is executable,
// notify the library-hook installer" step (spec.md §4.7/§4.8).
func notifyLibraryMapped(proc *kernel.Process, path string, base uint32) {
	if libraryHookInstaller == nil || path == "" {
		return
	}
	if proc.NoteLibraryMapped(path) {
		return
	}
	libraryHookInstaller.Install(proc, path, base)
}
