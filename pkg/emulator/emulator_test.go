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

package emulator

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nissan-connect-emu/emu/pkg/vfs"
)

func TestBuildMountTableAlwaysMountsStdStreams(t *testing.T) {
	table, err := buildMountTable(MountConfig{})
	require.NoError(t, err)

	// Fds 0/1/2 are pre-opened by NewStdStreams, not reached through a
	// path-based Open (the std-streams backend reports SupportsPaths()
	// false), so the invariant is exercised fd-first the way every
	// write(2)/read(2) handler actually reaches it.
	assert.True(t, table.IsOpen(1))
	n, err := table.Write(1, []byte{})
	assert.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestBuildMountTableHostBackend(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "hello.txt"), []byte("guest data"), 0644))

	table, err := buildMountTable(MountConfig{
		Mount: []MountPoint{{Prefix: "/data", Backend: BackendHost, Root: dir}},
	})
	require.NoError(t, err)

	fd, err := table.Open("/data/hello.txt", vfs.OpenFlags{Read: true})
	require.NoError(t, err)
	buf := make([]byte, 32)
	n, err := table.Read(fd, buf)
	require.NoError(t, err)
	assert.Equal(t, "guest data", string(buf[:n]))
}

func TestBuildMountTableHostBackendReadOnly(t *testing.T) {
	dir := t.TempDir()
	table, err := buildMountTable(MountConfig{
		Mount: []MountPoint{{Prefix: "/ro", Backend: BackendHost, Root: dir, ReadOnly: true}},
	})
	require.NoError(t, err)
	_, err = table.Open("/ro/new.txt", vfs.OpenFlags{Write: true, Create: true})
	assert.Error(t, err, "a readonly host mount must refuse a write-mode open")
}

func TestBuildMountTableHostBackendMissingRoot(t *testing.T) {
	_, err := buildMountTable(MountConfig{
		Mount: []MountPoint{{Prefix: "/data", Backend: BackendHost}},
	})
	assert.Error(t, err)
}

func TestBuildMountTableStdioBackend(t *testing.T) {
	// A configured "stdio" mount point builds without error even though
	// its backend never answers path lookups (SupportsPaths is false) —
	// buildMountTable's job is to construct the table, not to validate
	// that every declared prefix is reachable.
	_, err := buildMountTable(MountConfig{
		Mount: []MountPoint{{Prefix: "/console", Backend: BackendStdio}},
	})
	require.NoError(t, err)
}

func TestBuildMountTableUnknownBackend(t *testing.T) {
	_, err := buildMountTable(MountConfig{
		Mount: []MountPoint{{Prefix: "/weird", Backend: BackendKind("nfs")}},
	})
	assert.Error(t, err)
}

func TestLoadMountConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mounts.toml")
	const doc = `
[[mount]]
prefix = "/data"
backend = "host"
root = "/srv/data"
readonly = true
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0644))

	cfg, err := LoadMountConfig(path)
	require.NoError(t, err)
	require.Len(t, cfg.Mount, 1)
	assert.Equal(t, "/data", cfg.Mount[0].Prefix)
	assert.Equal(t, BackendHost, cfg.Mount[0].Backend)
	assert.Equal(t, "/srv/data", cfg.Mount[0].Root)
	assert.True(t, cfg.Mount[0].ReadOnly)
}

func TestLoadMountConfigMissingFile(t *testing.T) {
	_, err := LoadMountConfig(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}
