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

package vfs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTable() *MountTable {
	root := NewTmpfs()
	roData := NewTmpfs()
	roData.Preload("/motd", 0, []byte("hello"))
	return New([]MountPoint{
		{Prefix: "/", Backend: root},
		{Prefix: "/readonly", Backend: roData, ReadOnly: true},
		{Prefix: "", Backend: NewStdStreams()},
	})
}

func TestLongestPrefixWins(t *testing.T) {
	m := newTestTable()
	fd, err := m.Open("/readonly/motd", OpenFlags{Read: true})
	require.NoError(t, err)
	defer m.Close(fd)

	buf := make([]byte, 5)
	n, err := m.Read(fd, buf)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(buf[:n]))
}

func TestWriteRejectedOnReadOnlyMount(t *testing.T) {
	m := newTestTable()
	fd, err := m.Open("/readonly/motd", OpenFlags{Read: true})
	require.NoError(t, err)
	defer m.Close(fd)

	_, err = m.Write(fd, []byte("nope"))
	assert.Error(t, err)
}

func TestCreateExclRejectedOnReadOnlyMount(t *testing.T) {
	m := newTestTable()
	_, err := m.Open("/readonly/new", OpenFlags{Create: true, Excl: true})
	assert.Error(t, err)
}

func TestFdAllocationReusesLowestFree(t *testing.T) {
	m := newTestTable()
	fd1, err := m.Open("/a", OpenFlags{Create: true, Write: true})
	require.NoError(t, err)
	fd2, err := m.Open("/b", OpenFlags{Create: true, Write: true})
	require.NoError(t, err)
	require.NoError(t, m.Close(fd1))

	fd3, err := m.Open("/c", OpenFlags{Create: true, Write: true})
	require.NoError(t, err)
	assert.Equal(t, fd1, fd3, "closed fd should be reused before allocating a new one")
	assert.NotEqual(t, fd2, fd3)
}

func TestRelativePathResolvesAgainstCWD(t *testing.T) {
	m := newTestTable()
	m.SetCWD("/some/dir")
	assert.Equal(t, "/some/dir/file.txt", m.ToAbsolute("file.txt"))
	assert.Equal(t, "/abs/path", m.ToAbsolute("/abs/path"))
}

func TestInodeIsStableAcrossOpens(t *testing.T) {
	m := newTestTable()
	fd1, err := m.Open("/x", OpenFlags{Create: true, Write: true})
	require.NoError(t, err)
	info1, ok := m.GetFileInfo(fd1)
	require.True(t, ok)
	require.NoError(t, m.Close(fd1))

	fd2, err := m.Open("/x", OpenFlags{Read: true})
	require.NoError(t, err)
	defer m.Close(fd2)
	info2, ok := m.GetFileInfo(fd2)
	require.True(t, ok)

	assert.Equal(t, info1.Inode, info2.Inode)
}

func TestUnmountedPathReturnsError(t *testing.T) {
	m := New([]MountPoint{{Prefix: "/only", Backend: NewTmpfs()}})
	_, err := m.Open("/elsewhere/thing", OpenFlags{Read: true})
	assert.Error(t, err)
}

func TestStdStreamsServedByEmptyPrefix(t *testing.T) {
	m := newTestTable()
	assert.True(t, m.IsOpen(1))
	assert.True(t, m.IsOpen(2))
}
