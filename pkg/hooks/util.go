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
	"encoding/binary"

	"github.com/nissan-connect-emu/emu/pkg/cpu"
)

const maxStubString = 256

// readCString reads directly off the hooked thread's own CPU instance: a
// stub runs in the middle of the guest's own call, so there is no MMU
// region lookup to do — the memory is already mapped into this thread's
// address space by definition.
func readCString(in *cpu.Instance, addr uint32) string {
	if addr == 0 {
		return ""
	}
	var out []byte
	const chunk = 32
	for len(out) < maxStubString {
		n := chunk
		if remaining := maxStubString - len(out); remaining < n {
			n = remaining
		}
		buf, err := in.MemRead(addr+uint32(len(out)), n)
		if err != nil {
			break
		}
		for i, b := range buf {
			if b == 0 {
				return string(append(out, buf[:i]...))
			}
		}
		out = append(out, buf...)
	}
	return string(out)
}

func arg(in *cpu.Instance, reg int) uint32 {
	v, err := in.RegRead(reg)
	if err != nil {
		return 0
	}
	return v
}

func packU32(v uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	return b
}
