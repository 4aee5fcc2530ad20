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

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nissan-connect-emu/emu/internal/linuxabi"
	"github.com/nissan-connect-emu/emu/pkg/cpu"
	"github.com/nissan-connect-emu/emu/pkg/vfs"
)

func TestPackUnpackRoundTrip(t *testing.T) {
	assert.Equal(t, uint32(0xdeadbeef), unpackU32(packU32(0xdeadbeef)))
	assert.Equal(t, uint64(0x0102030405060708), unpackU64(packU64(0x0102030405060708)))
	assert.Equal(t, []byte{0xef, 0xbe}, packU16(0xbeef), "little-endian byte order")
}

func TestNegErrno(t *testing.T) {
	assert.Equal(t, uint32(0xfffffffe), negErrno(errENOENT))
	assert.Equal(t, uint32(0xfffffff5), negErrno(errEAGAIN))
}

func TestProtPerm(t *testing.T) {
	cases := []struct {
		prot uint32
		want cpu.Perm
	}{
		{0, 0},
		{linuxabi.ProtRead, cpu.PermRead},
		{linuxabi.ProtRead | linuxabi.ProtWrite, cpu.PermRead | cpu.PermWrite},
		{linuxabi.ProtRead | linuxabi.ProtWrite | linuxabi.ProtExec, cpu.PermRead | cpu.PermWrite | cpu.PermExec},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, protPerm(c.prot))
	}
}

func TestSeekFromWhence(t *testing.T) {
	assert.Equal(t, vfs.SeekStart, seekFromWhence(0))
	assert.Equal(t, vfs.SeekCurrent, seekFromWhence(linuxabi.SeekCur))
	assert.Equal(t, vfs.SeekEnd, seekFromWhence(linuxabi.SeekEnd))
}

func TestDtType(t *testing.T) {
	assert.Equal(t, byte(4), dtType(linuxabi.KindDirectory))
	assert.Equal(t, byte(8), dtType(linuxabi.KindFile))
}

func TestResolveAtPathAbsolute(t *testing.T) {
	a := newTestArgs(t)
	got := resolveAtPath(a.th.Process(), linuxabi.AtFdcwd, "/etc/hosts")
	assert.Equal(t, "/etc/hosts", got)
}

func TestResolveAtPathCWD(t *testing.T) {
	a := newTestArgs(t)
	a.th.Process().Mount().SetCWD("/home/guest")
	got := resolveAtPath(a.th.Process(), linuxabi.AtFdcwd, "data.txt")
	assert.Equal(t, "/home/guest/data.txt", got)
}

func TestResolveAtPathDirfd(t *testing.T) {
	a := newTestArgs(t)
	mount := a.th.Process().Mount()
	require.NoError(t, mount.Mkdir("/srv", 0755))
	dirfd, err := mount.Open("/srv", vfs.OpenFlags{Read: true})
	require.NoError(t, err)
	defer mount.Close(dirfd)

	got := resolveAtPath(a.th.Process(), int32(dirfd), "child.txt")
	assert.Equal(t, "/srv/child.txt", got)
}

func TestSysGetpidGetppidGettid(t *testing.T) {
	a := newTestArgs(t)
	assert.Equal(t, uint32(fixedPID), sysGetpid(a))
	assert.Equal(t, uint32(fixedPID), sysGetppid(a))
	assert.Equal(t, a.th.ID, sysGettid(a))
}

func TestSysBrkGrowAndShrink(t *testing.T) {
	a := newTestArgs(t)
	mm := a.th.Process().MMU()
	// Process.Run seeds BrkEnd above the loaded image; stand in for that so
	// the final brk(base) is a real shrink rather than the brk(0) query.
	mm.BrkEnd = 0x00100000
	base := mm.BrkEnd

	assert.Equal(t, base, sysBrk(a, 0), "addr==0 reports the current break unchanged")

	grown := sysBrk(a, base+linuxabi.PageSize+1)
	assert.Equal(t, linuxabi.PageAlignUp(base+linuxabi.PageSize+1), grown)
	assert.Equal(t, grown, mm.BrkEnd)

	shrunk := sysBrk(a, base)
	assert.Equal(t, linuxabi.PageAlignUp(base), shrunk)
	assert.Equal(t, shrunk, mm.BrkEnd)
}

func TestSysOpenWriteReadClose(t *testing.T) {
	a := newTestArgs(t)
	const path = "/tmp/hello.txt"
	const content = "hello, guest"

	pathAddr := uint32(scratchAddr)
	require.NoError(t, writeCString(a, pathAddr, path))

	openFlags := uint32(linuxabi.OWrOnly | linuxabi.OCreat)
	fd := sysOpen(a, pathAddr, openFlags, 0644)
	require.GreaterOrEqual(t, int32(fd), int32(0), "fd should not be a negative errno")

	bufAddr := pathAddr + 256
	require.NoError(t, a.th.CPU().MemWrite(bufAddr, []byte(content)))
	n := sysWrite(a, fd, bufAddr, uint32(len(content)))
	assert.Equal(t, uint32(len(content)), n)
	assert.Equal(t, uint32(0), sysClose(a, fd))

	readFd := sysOpen(a, pathAddr, uint32(linuxabi.ORdOnly), 0)
	readBuf := bufAddr + 256
	got := sysRead(a, readFd, readBuf, uint32(len(content)))
	assert.Equal(t, uint32(len(content)), got)

	data, err := a.th.CPU().MemRead(readBuf, len(content))
	require.NoError(t, err)
	assert.Equal(t, content, string(data))
	assert.Equal(t, uint32(0), sysClose(a, readFd))
}

func TestSysOpenMissingFileReturnsENOENT(t *testing.T) {
	a := newTestArgs(t)
	pathAddr := uint32(scratchAddr)
	require.NoError(t, writeCString(a, pathAddr, "/does/not/exist"))
	got := sysOpen(a, pathAddr, uint32(linuxabi.ORdOnly), 0)
	assert.Equal(t, negErrno(errENOENT), got)
}

func TestSysStat64(t *testing.T) {
	a := newTestArgs(t)
	mount := a.th.Process().Mount()
	fd, err := mount.Open("/f", vfs.OpenFlags{Write: true, Create: true})
	require.NoError(t, err)
	_, err = mount.Write(fd, []byte("12345"))
	require.NoError(t, err)
	require.NoError(t, mount.Close(fd))

	pathAddr := uint32(scratchAddr)
	bufAddr := pathAddr + 256
	require.NoError(t, writeCString(a, pathAddr, "/f"))

	assert.Equal(t, uint32(0), sysStat64(a, pathAddr, bufAddr))
	buf, err := a.th.CPU().MemRead(bufAddr, 96)
	require.NoError(t, err)
	assert.Equal(t, int64(5), int64(unpackU64(buf[44:52])), "st_size")
}

func TestSysStat64MissingReturnsENOENT(t *testing.T) {
	a := newTestArgs(t)
	pathAddr := uint32(scratchAddr)
	bufAddr := pathAddr + 256
	require.NoError(t, writeCString(a, pathAddr, "/missing"))
	assert.Equal(t, negErrno(errENOENT), sysStat64(a, pathAddr, bufAddr))
}

func TestSysGetdents64ListsDirectory(t *testing.T) {
	a := newTestArgs(t)
	mount := a.th.Process().Mount()
	require.NoError(t, mount.Mkdir("/dir", 0755))
	for _, f := range []string{"/dir/a", "/dir/b"} {
		fd, err := mount.Open(f, vfs.OpenFlags{Write: true, Create: true})
		require.NoError(t, err)
		require.NoError(t, mount.Close(fd))
	}

	dirfd, err := mount.Open("/dir", vfs.OpenFlags{Read: true})
	require.NoError(t, err)

	bufAddr := uint32(scratchAddr)
	n := sysGetdents64(a, uint32(dirfd), bufAddr, scratchSize)
	assert.Greater(t, n, uint32(0))

	buf, err := a.th.CPU().MemRead(bufAddr, int(n))
	require.NoError(t, err)
	assert.Contains(t, string(buf), "a\x00")
	assert.Contains(t, string(buf), "b\x00")

	// A second call against the now-exhausted listing answers 0, not the
	// too-small EINVAL the very first empty call would report.
	again := sysGetdents64(a, uint32(dirfd), bufAddr, scratchSize)
	assert.Equal(t, uint32(0), again)
}

func TestSysFutexWakeNoWaiters(t *testing.T) {
	a := newTestArgs(t)
	woken := sysFutex(a, scratchAddr, linuxabi.FutexWake, 1, 0, 0, 0)
	assert.Equal(t, uint32(0), woken)
}

func TestSysFutexWaitMismatchReturnsEAGAIN(t *testing.T) {
	a := newTestArgs(t)
	require.NoError(t, a.th.CPU().MemWrite(scratchAddr, packU32(42)))
	got := sysFutex(a, scratchAddr, linuxabi.FutexWait, 7, 0, 0, 0)
	assert.Equal(t, negErrno(errEAGAIN), got)
}

func TestSysPrctlSetGetName(t *testing.T) {
	a := newTestArgs(t)
	nameAddr := uint32(scratchAddr)
	require.NoError(t, writeCString(a, nameAddr, "worker"))

	assert.Equal(t, uint32(0), sysPrctl(a, prSetName, nameAddr, 0, 0, 0))

	outAddr := nameAddr + 64
	assert.Equal(t, uint32(0), sysPrctl(a, prGetName, outAddr, 0, 0, 0))
	got, err := a.th.Process().MMU().ReadCString(outAddr, 16)
	require.NoError(t, err)
	assert.Equal(t, "worker", got)
}

func TestSysUname(t *testing.T) {
	a := newTestArgs(t)
	bufAddr := uint32(scratchAddr)
	require.NoError(t, a.th.CPU().MemWrite(bufAddr, make([]byte, 65*6)))
	assert.Equal(t, uint32(0), sysUname(a, bufAddr))

	buf, err := a.th.CPU().MemRead(bufAddr, 65)
	require.NoError(t, err)
	assert.Equal(t, "Linux", cStringFromBytes(buf))
}

func TestSysMmapAnonAndMunmap(t *testing.T) {
	a := newTestArgs(t)
	addr := sysMmap2(a, 0, linuxabi.PageSize, linuxabi.ProtRead|linuxabi.ProtWrite, linuxabi.MapAnonymous, 0xffffffff, 0)
	require.NotEqual(t, negErrno(errEINVAL), addr)

	require.NoError(t, a.th.CPU().MemWrite(addr, []byte("mmapped")))
	data, err := a.th.CPU().MemRead(addr, len("mmapped"))
	require.NoError(t, err)
	assert.Equal(t, "mmapped", string(data))

	assert.Equal(t, uint32(0), sysMunmap(a, addr, linuxabi.PageSize))
}

func TestSysMprotect(t *testing.T) {
	a := newTestArgs(t)
	addr := sysMmap2(a, 0, linuxabi.PageSize, linuxabi.ProtRead|linuxabi.ProtWrite, linuxabi.MapAnonymous, 0xffffffff, 0)
	require.NotEqual(t, negErrno(errEINVAL), addr)
	assert.Equal(t, uint32(0), sysMprotect(a, addr, linuxabi.PageSize, linuxabi.ProtRead))
}

func TestSysExitSetsExitStatus(t *testing.T) {
	a := newTestArgs(t)
	assert.Equal(t, uint32(7), sysExit(a, 7))
	assert.Equal(t, uint32(7), a.th.Process().ExitStatus())
}

func TestSysExitGroupSetsExitStatus(t *testing.T) {
	a := newTestArgs(t)
	assert.Equal(t, uint32(3), sysExitGroup(a, 3))
	assert.Equal(t, uint32(3), a.th.Process().ExitStatus())
}

// cStringFromBytes trims a fixed-width NUL-padded field down to its string
// content, mirroring how sysUname's output is meant to be read back.
func cStringFromBytes(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}
