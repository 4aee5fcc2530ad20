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
	"github.com/sirupsen/logrus"

	"github.com/nissan-connect-emu/emu/pkg/cpu"
)

// libtrace's dual-OS trace channel: the real implementation shares a ring
// buffer with a diagnostics core this host does not have, so every entry
// point that would normally block on, or write into, that shared memory
// instead reports a fixed result and returns immediately.
func init() {
	register("trace", []offsetHook{
		{0x00002f58, "trace_init", func(in *cpu.Instance, log logrus.FieldLogger) uint32 { return 0 }},
		{0x00004634, "trace_tr_chan_access", func(in *cpu.Instance, log logrus.FieldLogger) uint32 { return 0 }},
		{0x000043a0, "trace_tr_core_uw_trace_out", func(in *cpu.Instance, log logrus.FieldLogger) uint32 { return 0 }},
		{0x00007864, "trace_sharedmem_create_dual_os", func(in *cpu.Instance, log logrus.FieldLogger) uint32 { return 1 }},
		{0x0000513c, "trace_stop", func(in *cpu.Instance, log logrus.FieldLogger) uint32 { return 1 }},
		{0x000076e4, "trace_tr_core_is_class_selected", func(in *cpu.Instance, log logrus.FieldLogger) uint32 { return 1 }},
	})
}
