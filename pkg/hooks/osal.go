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

// libosal's native init/io/message entry points: an automotive OSAL
// (OS Abstraction Layer) that expects a real IOSC scheduler and message
// queue service underneath it, neither of which exists on this host. Every
// stub below reports success with the same fixed results the offsets were
// shown to settle for, so application code built against libosal proceeds
// past its own startup checks.
func init() {
	register("osal", []offsetHook{
		{0x34A5C, "v_init_osal_core_iosc", func(in *cpu.Instance, log logrus.FieldLogger) uint32 { return 0 }},
		{0x34838, "v_generate_term_mq_handle", func(in *cpu.Instance, log logrus.FieldLogger) uint32 { return 0 }},
		{0x178CC, "v_init_osal_io", func(in *cpu.Instance, log logrus.FieldLogger) uint32 { return 0 }},
		{0x3FD98, "shared_memory_open", func(in *cpu.Instance, log logrus.FieldLogger) uint32 {
			log.WithField("name", readCString(in, arg(in, cpu.R0))).Trace("shared_memory_open")
			return 0
		}},
		{0x2CB24, "v_read_assert_mode", func(in *cpu.Instance, log logrus.FieldLogger) uint32 { return 0 }},

		{0x1994C, "io_open", func(in *cpu.Instance, log logrus.FieldLogger) uint32 {
			log.WithField("name", readCString(in, arg(in, cpu.R0))).Trace("io_open")
			return 5
		}},
		{0x19D74, "io_create", func(in *cpu.Instance, log logrus.FieldLogger) uint32 {
			log.WithField("name", readCString(in, arg(in, cpu.R0))).Trace("io_create")
			return 0
		}},
		{0x18DA4, "s32_io_control", func(in *cpu.Instance, log logrus.FieldLogger) uint32 { return 0 }},
		{0x31744, "s32_check_for_iosc_queue", func(in *cpu.Instance, log logrus.FieldLogger) uint32 {
			log.WithField("name", readCString(in, arg(in, cpu.R0))).Trace("s32_check_for_iosc_queue")
			return 1
		}},

		{0x2F54C, "v_init_message_pool", func(in *cpu.Instance, log logrus.FieldLogger) uint32 { return 0 }},
		{0x3A020, "s32_message_pool_create", func(in *cpu.Instance, log logrus.FieldLogger) uint32 {
			log.WithField("size", arg(in, cpu.R0)).Trace("s32_message_pool_create")
			return 0
		}},
		// u32OpenMsgQueue writes a fake queue handle to its out-param (R1)
		// before reporting success, matching the calling convention callers
		// of this symbol expect.
		{0x33A98, "u32_open_msg_queue", func(in *cpu.Instance, log logrus.FieldLogger) uint32 {
			name := readCString(in, arg(in, cpu.R0))
			out := arg(in, cpu.R1)
			if out != 0 {
				_ = in.MemWrite(out, packU32(1))
			}
			log.WithField("queue_name", name).Trace("u32_open_msg_queue")
			return 1
		}},
	})
}
