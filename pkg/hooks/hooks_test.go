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

package hooks

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nissan-connect-emu/emu/pkg/cpu"
	"github.com/nissan-connect-emu/emu/pkg/kernel"
	"github.com/nissan-connect-emu/emu/pkg/vfs"
)

// newTestProcess builds a real kernel.Process with one thread, for
// Install's per-thread hook fan-out.
func newTestProcess(t *testing.T) (*kernel.Process, *kernel.Thread) {
	t.Helper()
	mount := vfs.New([]vfs.MountPoint{{Prefix: "/", Backend: vfs.NewTmpfs()}})
	proc := kernel.New(mount, logrus.New())
	th, err := proc.NewThread()
	require.NoError(t, err)
	t.Cleanup(func() { th.CPU().Close() })
	return proc, th
}

// newTestInstance builds a bare ARM CPU instance with one scratch page
// mapped, for stub functions that read arguments or guest strings off it.
func newTestInstance(t *testing.T) *cpu.Instance {
	t.Helper()
	in, err := cpu.New(nil)
	require.NoError(t, err)
	t.Cleanup(func() { in.Close() })

	require.NoError(t, in.MemMapPtr(scratchBase, scratchSize, cpu.PermRead|cpu.PermWrite, make([]byte, scratchSize)))
	return in
}

const (
	scratchBase = 0x00100000
	scratchSize = 0x1000
)

func TestMatchLibraryOSAL(t *testing.T) {
	lib, ok := matchLibrary("/system/lib/libosal.so")
	require.True(t, ok)
	assert.NotEmpty(t, lib.hooks)
}

func TestMatchLibraryTrace(t *testing.T) {
	lib, ok := matchLibrary("/system/lib/libtrace.so")
	require.True(t, ok)
	assert.NotEmpty(t, lib.hooks)
}

func TestMatchLibraryCaseInsensitiveBasename(t *testing.T) {
	// Only the basename is consulted, and case is folded, so a directory
	// component that happens to contain "osal" must not cause a false
	// match, while a differently-cased basename still hits.
	_, ok := matchLibrary("/osal-data/libfoo.so")
	assert.False(t, ok, "substring must be checked against the basename, not the full path")

	lib, ok := matchLibrary("/lib/LIBOSAL.SO")
	require.True(t, ok)
	assert.NotEmpty(t, lib.hooks)
}

func TestMatchLibraryUnknown(t *testing.T) {
	_, ok := matchLibrary("/system/lib/libc.so")
	assert.False(t, ok)
}

func TestReadCString(t *testing.T) {
	in := newTestInstance(t)
	require.NoError(t, in.MemWrite(scratchBase, append([]byte("hello"), 0)))
	assert.Equal(t, "hello", readCString(in, scratchBase))
}

func TestReadCStringZeroAddr(t *testing.T) {
	in := newTestInstance(t)
	assert.Equal(t, "", readCString(in, 0))
}

func TestReadCStringUnmapped(t *testing.T) {
	in := newTestInstance(t)
	assert.Equal(t, "", readCString(in, 0xdeadb000))
}

func TestReadCStringSpansMultipleChunks(t *testing.T) {
	in := newTestInstance(t)
	long := make([]byte, 40)
	for i := range long {
		long[i] = 'a' + byte(i%26)
	}
	require.NoError(t, in.MemWrite(scratchBase, append(long, 0)))
	assert.Equal(t, string(long), readCString(in, scratchBase))
}

func TestArg(t *testing.T) {
	in := newTestInstance(t)
	require.NoError(t, in.RegWrite(cpu.R0, 0x1234))
	assert.Equal(t, uint32(0x1234), arg(in, cpu.R0))
}

// findHook locates a registered stub by its library substring and symbol
// name, failing the test if either is missing from the registry.
func findHook(t *testing.T, libSubstr, name string) offsetHook {
	t.Helper()
	for _, lib := range registry {
		if !lib.match(libSubstr) {
			continue
		}
		for _, h := range lib.hooks {
			if h.name == name {
				return h
			}
		}
	}
	t.Fatalf("hooks: no registered stub named %q", name)
	return offsetHook{}
}

func TestOsalFixedReturnStubs(t *testing.T) {
	in := newTestInstance(t)
	log := logrus.New()

	for _, name := range []string{"v_init_osal_core_iosc", "v_generate_term_mq_handle", "v_init_osal_io", "v_read_assert_mode"} {
		h := findHook(t, "osal", name)
		assert.Equal(t, uint32(0), h.fn(in, log), "stub %s", name)
	}

	assert.Equal(t, uint32(5), findHook(t, "osal", "io_open").fn(in, log))
	assert.Equal(t, uint32(1), findHook(t, "osal", "s32_check_for_iosc_queue").fn(in, log))
}

func TestOsalOpenMsgQueueWritesOutParam(t *testing.T) {
	in := newTestInstance(t)
	log := logrus.New()

	require.NoError(t, in.MemWrite(scratchBase, append([]byte("queueA"), 0)))
	require.NoError(t, in.RegWrite(cpu.R0, scratchBase))
	require.NoError(t, in.RegWrite(cpu.R1, scratchBase+256))

	h := findHook(t, "osal", "u32_open_msg_queue")
	got := h.fn(in, log)
	assert.Equal(t, uint32(1), got)

	out, err := in.MemRead(scratchBase+256, 4)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), unpackU32(out))
}

func TestOsalOpenMsgQueueSkipsNullOutParam(t *testing.T) {
	in := newTestInstance(t)
	log := logrus.New()

	require.NoError(t, in.RegWrite(cpu.R0, 0))
	require.NoError(t, in.RegWrite(cpu.R1, 0))

	h := findHook(t, "osal", "u32_open_msg_queue")
	assert.Equal(t, uint32(1), h.fn(in, log))
}

func TestTraceFixedReturnStubs(t *testing.T) {
	in := newTestInstance(t)
	log := logrus.New()

	cases := map[string]uint32{
		"trace_init":                      0,
		"trace_tr_chan_access":            0,
		"trace_tr_core_uw_trace_out":      0,
		"trace_sharedmem_create_dual_os":  1,
		"trace_stop":                      1,
		"trace_tr_core_is_class_selected": 1,
	}
	for name, want := range cases {
		h := findHook(t, "trace", name)
		assert.Equal(t, want, h.fn(in, log), "stub %s", name)
	}
}

func unpackU32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

func TestInstallUnknownLibraryIsNoop(t *testing.T) {
	proc, _ := newTestProcess(t)
	ins := New(logrus.New())
	ins.Install(proc, "/system/lib/libc.so", 0x10000)
}

func TestInstallMatchedLibraryHooksEveryThread(t *testing.T) {
	proc, th := newTestProcess(t)
	// Never started, so Pause (and so Map's pause discipline) already
	// treats it as parked; marking it exited is just cosmetic, matching
	// pkg/syscalls's own test fixture (see helper_test.go).
	th.Exit()
	require.NoError(t, proc.MMU().Map(0x20000, 0x10000, cpu.PermRead|cpu.PermWrite|cpu.PermExec, "[osal]", ""))

	ins := New(logrus.New())
	// Install's only failure path is a per-hook AddHook error, logged and
	// swallowed rather than returned; exercising it against a real mapped
	// region confirms it runs to completion for every thread without
	// panicking on a nil CPU instance or an empty thread list.
	ins.Install(proc, "/system/lib/libosal.so", 0x20000)
}
