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

// Package mmu implements the guest memory manager (C2, spec.md §4.2): a
// page-level region table built on top of the CPU engine's raw mapping
// primitives, guaranteeing pointer-stable backing storage for every mapped
// region while supporting split/merge, permission changes, partial unmaps,
// and whole-map cloning for thread/fork semantics.
//
// Lock order, mirroring the teacher's mm package comment in
// pkg/sentry/mm/mm.go: callers of Map/Unmap/Protect must not themselves hold
// a Peer's CPU-instance lock, since the pause/resume discipline below calls
// back into every peer's engine while mu is held.
package mmu

import (
	"fmt"
	"sync"

	"github.com/google/btree"
	"github.com/sirupsen/logrus"

	"github.com/nissan-connect-emu/emu/internal/linuxabi"
	"github.com/nissan-connect-emu/emu/pkg/cpu"
)

// Region is one MMU record (spec.md §3). Start/End are inclusive, so
// size = End-Start+1; this resolves spec.md §9 Open Question (a) in favor
// of inclusive ends.
type Region struct {
	Start, End  uint32
	Perms       cpu.Perm
	Description string
	Path        string

	// data is the region's immutable-address backing buffer (invariant
	// R2): allocated at exactly Size() bytes and never resized in place.
	data []byte
}

// Size returns End-Start+1.
func (r *Region) Size() uint32 { return r.End - r.Start + 1 }

// Data returns the region's backing buffer. Callers must not retain a
// reference across a Map/Unmap/Protect call that might split the region,
// since the pointer they hold would then belong to a retired record.
func (r *Region) Data() []byte { return r.data }

func (r *Region) overlaps(start, end uint32) bool {
	return r.Start <= end && start <= r.End
}

func less(a, b *Region) bool { return a.Start < b.Start }

// Peer is one CPU instance belonging to the MMU's owning process (a
// Thread, from the caller's point of view) that must mirror every MMU
// mutation (invariant R3).
type Peer interface {
	CPU() *cpu.Instance
	Pause()
	Resume()
}

// PeerSource supplies the current set of peers. Process implements this;
// MMU is constructed before any Thread exists, so the source is plugged in
// after construction (SetPeerSource) rather than passed to New, breaking
// the process<->thread construction cycle the way spec.md §9 describes
// breaking process<->thread reference cycles.
type PeerSource interface {
	Peers() []Peer
}

// MMU is one guest process's memory manager, shared by reference among its
// threads.
type MMU struct {
	mu      sync.Mutex
	regions *btree.BTreeG[*Region]

	BrkEnd  uint32
	HeapEnd uint32

	peers PeerSource
	log   logrus.FieldLogger
}

// New creates an empty MMU. heapEnd is the starting HeapEnd watermark:
// HeapAlloc maps each new heap region there and bumps HeapEnd upward past
// it, matching spec.md §4.2.
func New(heapEnd uint32, log logrus.FieldLogger) *MMU {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &MMU{
		regions: btree.NewG(32, less),
		HeapEnd: heapEnd,
		log:     log,
	}
}

// SetPeerSource wires the MMU to the process's thread list once it exists.
func (m *MMU) SetPeerSource(src PeerSource) { m.peers = src }

func (m *MMU) peerList() []Peer {
	if m.peers == nil {
		return nil
	}
	return m.peers.Peers()
}

// pauseAll/resumeAll implement the pause discipline of spec.md §5: set each
// peer's pause flag, cooperatively stop its engine, mutate, then resume.
func (m *MMU) pauseAll(peers []Peer) {
	for _, p := range peers {
		p.Pause()
	}
}

func (m *MMU) resumeAll(peers []Peer) {
	for _, p := range peers {
		p.Resume()
	}
}

// overlapping returns every region intersecting [start, end], in address
// order.
func (m *MMU) overlapping(start, end uint32) []*Region {
	var hits []*Region
	// Regions are ordered by Start; any region that could overlap has
	// Start <= end, so descending from the last region with Start <= end
	// and stopping once End < start covers the range with a tight walk.
	m.regions.DescendLessOrEqual(&Region{Start: end}, func(r *Region) bool {
		if r.End < start {
			return false
		}
		hits = append(hits, r)
		return true
	})
	// DescendLessOrEqual walks in descending Start order; restore
	// ascending order for callers that rely on it (split, describe).
	for i, j := 0, len(hits)-1; i < j; i, j = i+1, j-1 {
		hits[i], hits[j] = hits[j], hits[i]
	}
	return hits
}

func (m *MMU) removeRegion(r *Region) { m.regions.Delete(r) }

func (m *MMU) insertRegion(r *Region) { m.regions.ReplaceOrInsert(r) }

// unmapFromAllPeers removes [addr, addr+size) from every peer's CPU
// instance mapping table.
func (m *MMU) unmapFromAllPeers(peers []Peer, addr, size uint32) {
	for _, p := range peers {
		if err := p.CPU().MemUnmap(addr, size); err != nil {
			m.log.WithError(err).WithFields(logrus.Fields{"addr": addr, "size": size}).
				Error("mmu: engine unmap failed")
		}
	}
}

func (m *MMU) mapOnAllPeers(peers []Peer, r *Region) {
	for _, p := range peers {
		if err := p.CPU().MemMapPtr(r.Start, r.Size(), r.Perms, r.data); err != nil {
			// A backend error from the CPU engine is fatal (spec.md §4.2
			// Failure semantics): the emulator has no recovery path.
			m.log.WithError(err).WithFields(logrus.Fields{"addr": r.Start, "size": r.Size()}).
				Panic("mmu: engine map failed")
		}
	}
}

// splitAt ensures no live region straddles boundary a: any region [s,e]
// with s < a <= e is unmapped from every peer and replaced by [s, a-1] and
// [a, e], each with a freshly allocated, copied backing buffer (spec.md
// §4.2 Split algorithm).
func (m *MMU) splitAt(peers []Peer, a uint32) {
	for _, r := range m.overlapping(a, a) {
		if r.Start >= a || r.End < a {
			continue
		}
		m.unmapFromAllPeers(peers, r.Start, r.Size())
		m.removeRegion(r)

		prefixLen := a - r.Start
		prefix := &Region{
			Start: r.Start, End: a - 1,
			Perms: r.Perms, Description: r.Description, Path: r.Path,
			data: append([]byte(nil), r.data[:prefixLen]...),
		}
		suffix := &Region{
			Start: a, End: r.End,
			Perms: r.Perms, Description: r.Description, Path: r.Path,
			data: append([]byte(nil), r.data[prefixLen:]...),
		}
		m.mapOnAllPeers(peers, prefix)
		m.mapOnAllPeers(peers, suffix)
		m.insertRegion(prefix)
		m.insertRegion(suffix)
	}
}

// Map installs size bytes of zero-filled, perms-protected memory at addr,
// labeled description/path. addr and size must be page-aligned multiples of
// 4096. Any existing region fully contained in the new range is removed;
// regions straddling an edge are split first (spec.md §4.2).
func (m *MMU) Map(addr, size uint32, perms cpu.Perm, description, path string) error {
	if addr%linuxabi.PageSize != 0 || size%linuxabi.PageSize != 0 {
		return fmt.Errorf("mmu: map(%#x, %#x) is not page aligned", addr, size)
	}
	if description == "" {
		description = "[mapped]"
	}
	end := addr + size - 1

	m.mu.Lock()
	defer m.mu.Unlock()
	peers := m.peerList()
	m.pauseAll(peers)
	defer m.resumeAll(peers)

	m.splitAt(peers, addr)
	m.splitAt(peers, addr+size)
	for _, r := range m.overlapping(addr, end) {
		m.unmapFromAllPeers(peers, r.Start, r.Size())
		m.removeRegion(r)
	}

	r := &Region{
		Start: addr, End: end,
		Perms: perms, Description: description, Path: path,
		data: make([]byte, size),
	}
	m.mapOnAllPeers(peers, r)
	m.insertRegion(r)
	return nil
}

// Unmap removes [addr, addr+size) from the MMU and from every peer.
// Unmapping a range with no overlap is a no-op (spec.md §4.2 Failure
// semantics).
func (m *MMU) Unmap(addr, size uint32) error {
	if addr%linuxabi.PageSize != 0 || size%linuxabi.PageSize != 0 {
		return fmt.Errorf("mmu: unmap(%#x, %#x) is not page aligned", addr, size)
	}
	end := addr + size - 1

	m.mu.Lock()
	defer m.mu.Unlock()
	peers := m.peerList()
	m.pauseAll(peers)
	defer m.resumeAll(peers)

	m.splitAt(peers, addr)
	m.splitAt(peers, addr+size)
	for _, r := range m.overlapping(addr, end) {
		m.unmapFromAllPeers(peers, r.Start, r.Size())
		m.removeRegion(r)
	}
	return nil
}

// Protect changes the permissions of [addr, addr+size) in place, splitting
// at both edges first so the changed range is exactly covered by whole
// regions.
func (m *MMU) Protect(addr, size uint32, perms cpu.Perm) error {
	if addr%linuxabi.PageSize != 0 || size%linuxabi.PageSize != 0 {
		return fmt.Errorf("mmu: protect(%#x, %#x) is not page aligned", addr, size)
	}
	end := addr + size - 1

	m.mu.Lock()
	defer m.mu.Unlock()
	peers := m.peerList()
	m.pauseAll(peers)
	defer m.resumeAll(peers)

	m.splitAt(peers, addr)
	m.splitAt(peers, addr+size)
	for _, r := range m.overlapping(addr, end) {
		for _, p := range peers {
			if err := p.CPU().MemProtect(r.Start, r.Size(), perms); err != nil {
				m.log.WithError(err).Panic("mmu: engine protect failed")
			}
		}
		r.Perms = perms
	}
	return nil
}

// HeapAlloc rounds size up to a page, maps it at HeapEnd with description
// "[heap]", and advances HeapEnd.
func (m *MMU) HeapAlloc(size uint32, perms cpu.Perm, path string) (uint32, error) {
	size = linuxabi.PageAlignUp(size)
	addr := m.HeapEnd
	if err := m.Map(addr, size, perms, "[heap]", path); err != nil {
		return 0, err
	}
	m.HeapEnd += size
	return addr, nil
}

// WriteAt copies data into the live region(s) covering [addr, addr+len(data)).
// Because regions are mapped onto peers by sharing the Go backing buffer
// directly (MemMapPtr), this mutation is visible to every peer's CPU engine
// without a further engine call. Used by the ELF loader to place segment
// bytes and build the initial stack image.
func (m *MMU) WriteAt(addr uint32, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	end := addr + uint32(len(data)) - 1
	remaining := data
	cursor := addr
	for _, r := range m.overlapping(addr, end) {
		if r.Start > cursor {
			return fmt.Errorf("mmu: write_at %#x: gap before mapped region at %#x", addr, r.Start)
		}
		off := cursor - r.Start
		n := r.Size() - off
		if uint32(len(remaining)) < n {
			n = uint32(len(remaining))
		}
		copy(r.data[off:off+n], remaining[:n])
		remaining = remaining[n:]
		cursor += n
		if len(remaining) == 0 {
			return nil
		}
	}
	return fmt.Errorf("mmu: write_at %#x: %#x bytes unmapped", addr, len(remaining))
}

// CloneInto installs every live region onto a freshly created CPU instance
// at the original backing pointer, giving a new thread identical memory
// visibility (spec.md §4.2, used by clone).
func (m *MMU) CloneInto(dest *cpu.Instance) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var err error
	m.regions.Ascend(func(r *Region) bool {
		if e := dest.MemMapPtr(r.Start, r.Size(), r.Perms, r.data); e != nil {
			err = fmt.Errorf("mmu: clone_into %#x: %w", r.Start, e)
			return false
		}
		return true
	})
	return err
}

// LibraryBase is one (path, start) pair describing an executable mapping
// with a non-empty path.
type LibraryBase struct {
	Path  string
	Start uint32
}

// LibrariesWithBases returns every executable, named region's (path, start)
// pair, used by the library hook installer (C10).
func (m *MMU) LibrariesWithBases() []LibraryBase {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []LibraryBase
	m.regions.Ascend(func(r *Region) bool {
		if r.Perms&cpu.PermExec != 0 && r.Path != "" {
			out = append(out, LibraryBase{Path: r.Path, Start: r.Start})
		}
		return true
	})
	return out
}

// ReadCString reads a NUL-terminated string from guest memory starting at
// addr, using whichever peer is available to do the read (all peers see
// identical mappings per invariant R3).
func (m *MMU) ReadCString(addr uint32, maxLen int) (string, error) {
	peers := m.peerList()
	if len(peers) == 0 {
		return "", fmt.Errorf("mmu: no peer available to read memory")
	}
	cpuInst := peers[0].CPU()
	var out []byte
	const chunk = 64
	for len(out) < maxLen {
		n := chunk
		if remaining := maxLen - len(out); remaining < n {
			n = remaining
		}
		buf, err := cpuInst.MemRead(addr+uint32(len(out)), n)
		if err != nil {
			return "", fmt.Errorf("mmu: read string at %#x: %w", addr, err)
		}
		if idx := indexZero(buf); idx >= 0 {
			out = append(out, buf[:idx]...)
			return string(out), nil
		}
		out = append(out, buf...)
	}
	return string(out), nil
}

func indexZero(b []byte) int {
	for i, c := range b {
		if c == 0 {
			return i
		}
	}
	return -1
}

// HighestMapped returns one past the end of the highest live region, or 0 if
// nothing is mapped yet. Process.Run calls it right after the loader to seed
// brk_end (spec.md §4.7 brk): the result is the top of the highest segment
// loaded so far, which is the interpreter's rather than the main image's
// when the interpreter was loaded above it.
func (m *MMU) HighestMapped() uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	var top uint32
	m.regions.Ascend(func(r *Region) bool {
		if r.End+1 > top {
			top = r.End + 1
		}
		return true
	})
	return top
}

// Regions returns a snapshot of all live regions in address order, for
// diagnostics and tests.
func (m *MMU) Regions() []*Region {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Region
	m.regions.Ascend(func(r *Region) bool {
		out = append(out, r)
		return true
	})
	return out
}
