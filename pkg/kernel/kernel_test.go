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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nissan-connect-emu/emu/pkg/cpu"
	"github.com/nissan-connect-emu/emu/pkg/vfs"
)

func TestSysCallsStateDentsLifecycle(t *testing.T) {
	s := NewSysCallsState()

	_, ok := s.Dents(3)
	assert.False(t, ok, "no stash yet")

	s.SetDents(3, []string{".", "..", "file.txt"})
	got, ok := s.Dents(3)
	require.True(t, ok)
	assert.Equal(t, []string{".", "..", "file.txt"}, got)

	s.ClearDents(3)
	_, ok = s.Dents(3)
	assert.False(t, ok)
}

func TestSysCallsStateFutexWakeSignalsAndCounts(t *testing.T) {
	s := NewSysCallsState()
	const uaddr = 0x1000

	w1 := s.FutexWait(uaddr)
	w2 := s.FutexWait(uaddr)
	w3 := s.FutexWait(uaddr)

	woken := s.FutexWake(uaddr, 2)
	assert.Equal(t, 2, woken)

	select {
	case <-w1:
	case <-time.After(time.Second):
		t.Fatal("w1 was not woken")
	}
	select {
	case <-w2:
	case <-time.After(time.Second):
		t.Fatal("w2 was not woken")
	}
	select {
	case <-w3:
		t.Fatal("w3 should not have been woken yet")
	default:
	}

	woken = s.FutexWake(uaddr, 5)
	assert.Equal(t, 1, woken, "only one waiter left, even though 5 were requested")
}

func newTestProcess(t *testing.T) *Process {
	t.Helper()
	mount := vfs.New([]vfs.MountPoint{{Prefix: "/", Backend: vfs.NewTmpfs()}})
	return New(mount, nil)
}

func TestProcessNoteLibraryMappedOnlyTrueOnce(t *testing.T) {
	p := newTestProcess(t)

	alreadyHooked := p.NoteLibraryMapped("/lib/libc.so")
	assert.False(t, alreadyHooked, "first sighting installs hooks")

	alreadyHooked = p.NoteLibraryMapped("/lib/libc.so")
	assert.True(t, alreadyHooked, "second sighting is a no-op")
}

func TestProcessPeersReflectsThreadList(t *testing.T) {
	p := newTestProcess(t)
	assert.Empty(t, p.Peers())

	cpuInst, err := cpu.New(nil)
	require.NoError(t, err)
	t.Cleanup(func() { cpuInst.Close() })

	th := newThread(p, p.nextThreadID(), cpuInst)
	p.addThread(th)

	peers := p.Peers()
	require.Len(t, peers, 1)
	assert.Same(t, cpuInst, peers[0].CPU())

	found, ok := p.Thread(th.ID)
	require.True(t, ok)
	assert.Same(t, th, found)
}

func TestThreadResumeIsNoOpWhenNotPaused(t *testing.T) {
	p := newTestProcess(t)
	cpuInst, err := cpu.New(nil)
	require.NoError(t, err)
	t.Cleanup(func() { cpuInst.Close() })

	th := newThread(p, 1, cpuInst)
	// Resume on a freshly constructed (never-started) thread must not
	// block sending on resumeCh, since nothing is receiving yet.
	done := make(chan struct{})
	go func() {
		th.Resume()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Resume on a non-paused thread blocked")
	}
}
