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

// Package emulator is the host-side entry point (C11, spec.md §6): it turns
// a mount-table configuration, an executable path, and argv/envp into a
// running guest process and that process's exit status. cmd/nc3emu's main
// package is a thin cobra wrapper around Run; everything that actually
// understands ARM, ELF, or the syscall ABI lives under pkg/.
package emulator

import (
	"fmt"

	"github.com/BurntSushi/toml"
	"github.com/sirupsen/logrus"

	"github.com/nissan-connect-emu/emu/pkg/hooks"
	"github.com/nissan-connect-emu/emu/pkg/kernel"
	"github.com/nissan-connect-emu/emu/pkg/syscalls"
	"github.com/nissan-connect-emu/emu/pkg/vfs"
)

// BackendKind names a mount point's storage backend in the TOML config.
type BackendKind string

const (
	BackendHost  BackendKind = "host"
	BackendStdio BackendKind = "stdio"
)

// MountPoint is one `[[mount]]` table entry.
type MountPoint struct {
	Prefix   string      `toml:"prefix"`
	Backend  BackendKind `toml:"backend"`
	Root     string      `toml:"root"` // host backend only: the real directory prefix maps onto
	ReadOnly bool        `toml:"readonly"`
}

// MountConfig is the decoded form of the mount-table configuration file
// (SPEC_FULL.md AMBIENT STACK "Configuration"): an ordered list of mount
// points, longest-prefix matched at resolution time by pkg/vfs regardless of
// the order they're declared here.
type MountConfig struct {
	Mount []MountPoint `toml:"mount"`
}

// LoadMountConfig decodes a TOML mount-table file.
func LoadMountConfig(path string) (MountConfig, error) {
	var cfg MountConfig
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return MountConfig{}, fmt.Errorf("emulator: decode mount config %s: %w", path, err)
	}
	return cfg, nil
}

// buildMountTable turns the decoded config into a live MountTable, always
// adding the empty-prefix std-streams mount invariant M1 requires regardless
// of what the config file declares.
func buildMountTable(cfg MountConfig) (*vfs.MountTable, error) {
	points := make([]vfs.MountPoint, 0, len(cfg.Mount)+1)
	points = append(points, vfs.MountPoint{Backend: vfs.NewStdStreams()})

	for _, mp := range cfg.Mount {
		switch mp.Backend {
		case BackendHost:
			if mp.Root == "" {
				return nil, fmt.Errorf("emulator: mount %q: host backend requires root", mp.Prefix)
			}
			points = append(points, vfs.MountPoint{
				Prefix:   mp.Prefix,
				Backend:  vfs.NewHostFS(mp.Root, mp.ReadOnly),
				ReadOnly: mp.ReadOnly,
			})
		case BackendStdio:
			points = append(points, vfs.MountPoint{Prefix: mp.Prefix, Backend: vfs.NewStdStreams()})
		default:
			return nil, fmt.Errorf("emulator: mount %q: unknown backend %q", mp.Prefix, mp.Backend)
		}
	}
	return vfs.New(points), nil
}

// Run builds the mount table, a fresh process around it, wires the syscall
// dispatcher and library hook installer, loads execPath and runs it to
// completion, and returns its exit status (spec.md §6).
func Run(cfg MountConfig, execPath string, argv, envp []string, log logrus.FieldLogger) (int, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}

	mount, err := buildMountTable(cfg)
	if err != nil {
		return 0, err
	}

	proc := kernel.New(mount, log)
	proc.SetDispatcher(syscalls.New(log))
	syscalls.SetLibraryHookInstaller(hooks.New(log))

	if err := proc.Run(execPath, argv, envp); err != nil {
		return 0, fmt.Errorf("emulator: run %s: %w", execPath, err)
	}
	return int(proc.ExitStatus()), nil
}
