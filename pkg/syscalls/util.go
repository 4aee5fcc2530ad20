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

import "encoding/binary"

func packU16(v uint16) []byte {
	b := make([]byte, 2)
	binary.LittleEndian.PutUint16(b, v)
	return b
}

func packU32(v uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	return b
}

func packU64(v uint64) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, v)
	return b
}

func packI64(v int64) []byte { return packU64(uint64(v)) }

func unpackU32(b []byte) uint32 { return binary.LittleEndian.Uint32(b) }

func unpackU64(b []byte) uint64 { return binary.LittleEndian.Uint64(b) }

// negErrno encodes a negative errno as the two's-complement u32 the guest
// register expects (spec.md §4.7 Error propagation).
func negErrno(errno int32) uint32 { return uint32(errno) }

// writeCString writes s plus a trailing NUL into guest memory at addr.
func writeCString(a args, addr uint32, s string) error {
	return a.th.CPU().MemWrite(addr, append([]byte(s), 0))
}
