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

package mmu

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nissan-connect-emu/emu/pkg/cpu"
)

// With no PeerSource wired, Map/Unmap/Protect never touch a real CPU
// engine instance, letting these tests exercise the region bookkeeping in
// isolation (the teacher's own mm package separates vma/pma bookkeeping
// from platform.AddressSpace the same way).

func TestMapUnmapRoundTrip(t *testing.T) {
	m := New(0x90000000, nil)

	require.NoError(t, m.Map(0x1000, 0x2000, cpu.PermRead|cpu.PermWrite, "test", ""))
	require.Len(t, m.Regions(), 1)

	require.NoError(t, m.Unmap(0x1000, 0x2000))
	require.Empty(t, m.Regions())
}

func TestMapDisjointInvariant(t *testing.T) {
	m := New(0x90000000, nil)
	require.NoError(t, m.Map(0x1000, 0x1000, cpu.PermRead, "a", ""))
	require.NoError(t, m.Map(0x2000, 0x1000, cpu.PermRead, "b", ""))

	regions := m.Regions()
	require.Len(t, regions, 2)
	for i := 0; i < len(regions); i++ {
		for j := i + 1; j < len(regions); j++ {
			overlap := regions[i].Start <= regions[j].End && regions[j].Start <= regions[i].End
			require.False(t, overlap, "regions must be pairwise disjoint")
		}
	}
}

func TestMapOverlappingRedescribes(t *testing.T) {
	m := New(0x90000000, nil)
	require.NoError(t, m.Map(0x1000, 0x2000, cpu.PermRead, "first", ""))
	require.NoError(t, m.Map(0x1000, 0x1000, cpu.PermRead|cpu.PermWrite, "second", ""))

	regions := m.Regions()
	require.Len(t, regions, 2)
	require.Equal(t, uint32(0x1000), regions[0].Start)
	require.Equal(t, "second", regions[0].Description)
	require.Equal(t, uint32(0x2000), regions[1].Start)
	require.Equal(t, "first", regions[1].Description)
}

func TestSplitPreservesBytes(t *testing.T) {
	m := New(0x90000000, nil)
	require.NoError(t, m.Map(0x1000, 0x2000, cpu.PermRead|cpu.PermWrite, "whole", ""))

	regions := m.Regions()
	require.Len(t, regions, 1)
	original := append([]byte(nil), regions[0].Data()...)
	for i := range original {
		original[i] = byte(i)
	}
	copy(regions[0].Data(), original)

	// Splitting happens as a side effect of protecting a sub-range.
	require.NoError(t, m.Protect(0x1000, 0x1000, cpu.PermRead))

	regions = m.Regions()
	require.Len(t, regions, 2)
	reassembled := append(append([]byte(nil), regions[0].Data()...), regions[1].Data()...)
	require.Equal(t, original, reassembled)
}

func TestHeapAllocAdvancesWatermark(t *testing.T) {
	m := New(0x90000000, nil)
	start := m.HeapEnd
	addr, err := m.HeapAlloc(100, cpu.PermRead|cpu.PermWrite, "")
	require.NoError(t, err)
	require.Equal(t, start, addr)
	require.Equal(t, start+0x1000, m.HeapEnd)

	regions := m.Regions()
	require.Len(t, regions, 1)
	require.Equal(t, "[heap]", regions[0].Description)
}

func TestUnmapNoOverlapIsNoOp(t *testing.T) {
	m := New(0x90000000, nil)
	require.NoError(t, m.Map(0x1000, 0x1000, cpu.PermRead, "a", ""))
	require.NoError(t, m.Unmap(0x5000, 0x1000))
	require.Len(t, m.Regions(), 1)
}

func TestLibrariesWithBases(t *testing.T) {
	m := New(0x90000000, nil)
	require.NoError(t, m.Map(0x1000, 0x1000, cpu.PermRead|cpu.PermExec, "lib", "/lib/libc.so"))
	require.NoError(t, m.Map(0x2000, 0x1000, cpu.PermRead|cpu.PermWrite, "data", ""))

	libs := m.LibrariesWithBases()
	require.Len(t, libs, 1)
	require.Equal(t, "/lib/libc.so", libs[0].Path)
	require.Equal(t, uint32(0x1000), libs[0].Start)
}
