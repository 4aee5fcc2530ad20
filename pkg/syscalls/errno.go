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

import "github.com/nissan-connect-emu/emu/internal/errdomain"

// Negative errno constants used directly by handlers that don't go through
// the mount table's own errdomain.Error (spec.md §4.7's "-2 for ENOENT, -11
// for EAGAIN" examples).
const (
	errEPERM  = -1
	errENOENT = -2
	errEBADF  = -9
	errEAGAIN = -11
	errEEXIST = -17
	errEINVAL = -22
)

// errnoFor converts a mount-table/backend error into the negative errno a
// handler returns, falling back to a generic -1 for errors that didn't come
// from errdomain.
func errnoFor(err error) uint32 {
	if e, ok := err.(*errdomain.Error); ok {
		return negErrno(e.Kind.Errno())
	}
	return negErrno(errEPERM)
}
