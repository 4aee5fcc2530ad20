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

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/nissan-connect-emu/emu/pkg/cpu"
	"github.com/nissan-connect-emu/emu/pkg/kernel"
	"github.com/nissan-connect-emu/emu/pkg/vfs"
)

// scratchAddr/scratchSize bound a RWX region mapped into every test thread,
// standing in for guest heap/stack memory the handlers read and write
// buffers through.
const (
	scratchAddr = 0x00400000
	scratchSize = 0x00010000
)

// newTestArgs builds a real kernel.Process/Thread/cpu.Instance trio backed
// by an empty tmpfs root, mirroring pkg/kernel's own newTestProcess helper,
// plus a mapped scratch region handlers can MemRead/MemWrite through.
func newTestArgs(t *testing.T) args {
	t.Helper()

	mount := vfs.New([]vfs.MountPoint{{Prefix: "/", Backend: vfs.NewTmpfs()}})
	proc := kernel.New(mount, logrus.New())
	th, err := proc.NewThread()
	require.NoError(t, err)
	t.Cleanup(func() { th.CPU().Close() })

	// These tests call handlers directly and never launch the thread's run
	// loop, so it never leaves stateNotStarted on its own; mark it exited
	// up front anyway so it reads like a thread under test rather than one
	// merely never started.
	th.Exit()

	err = proc.MMU().Map(scratchAddr, scratchSize, cpu.PermRead|cpu.PermWrite|cpu.PermExec, "[scratch]", "")
	require.NoError(t, err)

	return args{th: th, log: logrus.New()}
}
