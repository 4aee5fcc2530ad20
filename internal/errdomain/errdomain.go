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

// Package errdomain defines the error kinds that cross the syscall boundary
// and their negative-errno encoding, per the error handling design.
package errdomain

import "fmt"

// Kind is one of the error categories a backend or mount-table operation can
// report.
type Kind int

const (
	// NoPermission corresponds to EPERM/EACCES-shaped failures: a readonly
	// mount rejected a write-shaped open, or a backend refused an operation.
	NoPermission Kind = iota
	NoSuchFileOrDirectory
	FileExists
	FileSystemNotMounted
	ReadError
	WriteError
	BadFd
	InvalidArgument
	Again
)

// errno is the negative two's-complement errno value a syscall handler
// writes to R0 for each Kind.
var errno = map[Kind]int32{
	NoPermission:          -1,  // EPERM
	NoSuchFileOrDirectory: -2,  // ENOENT
	FileExists:            -17, // EEXIST
	FileSystemNotMounted:  -2,  // ENOENT (no mount claims the path)
	ReadError:             -5,  // EIO
	WriteError:            -5,  // EIO
	BadFd:                 -9,  // EBADF
	InvalidArgument:       -22, // EINVAL
	Again:                 -11, // EAGAIN
}

func (k Kind) String() string {
	switch k {
	case NoPermission:
		return "no permission"
	case NoSuchFileOrDirectory:
		return "no such file or directory"
	case FileExists:
		return "file exists"
	case FileSystemNotMounted:
		return "file system not mounted"
	case ReadError:
		return "read error"
	case WriteError:
		return "write error"
	case BadFd:
		return "bad file descriptor"
	case InvalidArgument:
		return "invalid argument"
	case Again:
		return "resource temporarily unavailable"
	default:
		return "unknown error"
	}
}

// Errno returns the negative errno a syscall handler should return for k.
func (k Kind) Errno() int32 {
	if v, ok := errno[k]; ok {
		return v
	}
	return -22
}

// Error is a Kind wrapped with context, satisfying the standard error
// interface so callers can use errors.Is/errors.As against a Kind.
type Error struct {
	Kind Kind
	Op   string // operation that failed, e.g. "open /dev/iosc"
	Err  error  // optional wrapped cause
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is(err, SomeKind) work by comparing against a bare Kind
// value wrapped as an error via New.
func (e *Error) Is(target error) bool {
	other, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == other.Kind
}

// New builds an *Error for op that happened while handling kind, optionally
// wrapping cause.
func New(kind Kind, op string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Err: cause}
}

// Sentinel returns a comparable *Error carrying only kind, suitable for use
// with errors.Is(err, errdomain.Sentinel(errdomain.BadFd)).
func Sentinel(kind Kind) *Error { return &Error{Kind: kind} }
