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

package cpu

import uc "github.com/unicorn-engine/unicorn/bindings/go/unicorn"

// ARM register identifiers, re-exported from the Unicorn binding so callers
// never need to import it directly.
const (
	R0  = uc.ARM_REG_R0
	R1  = uc.ARM_REG_R1
	R2  = uc.ARM_REG_R2
	R3  = uc.ARM_REG_R3
	R4  = uc.ARM_REG_R4
	R5  = uc.ARM_REG_R5
	R6  = uc.ARM_REG_R6
	R7  = uc.ARM_REG_R7
	SP  = uc.ARM_REG_SP
	LR  = uc.ARM_REG_LR
	PC  = uc.ARM_REG_PC
	CPSR = uc.ARM_REG_CPSR

	// Coprocessor registers used for VFP enable, TLS, and the kuser traps.
	C1C02  = uc.ARM_REG_C1_C0_2
	C13C03 = uc.ARM_REG_C13_C0_3
	FPEXC  = uc.ARM_REG_FPEXC
)

// ArgReg returns the register holding the n'th syscall argument (R0-R5).
func ArgReg(n int) int {
	switch n {
	case 0:
		return R0
	case 1:
		return R1
	case 2:
		return R2
	case 3:
		return R3
	case 4:
		return R4
	case 5:
		return R5
	default:
		panic("cpu: syscall argument index out of range")
	}
}
