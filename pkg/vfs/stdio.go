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

package vfs

import (
	"fmt"
	"io"
	"os"

	"github.com/nissan-connect-emu/emu/internal/errdomain"
	"github.com/nissan-connect-emu/emu/internal/linuxabi"
	"github.com/nissan-connect-emu/emu/pkg/cpu"
)

const (
	// TCGETS and TIOCGWINSZ, the two ioctls std streams must answer
	// (spec.md §4.4).
	tcgets     = 0x5401
	tiocgwinsz = 0x5413
)

// StdStreams accepts only fd 0/1/2 and wires them to the host's stdin/
// stdout/stderr, per spec.md §4.4. It is the only backend an empty-string
// mount prefix may serve (spec.md §6).
type StdStreams struct {
	open map[int]bool
}

// NewStdStreams pre-opens fds 0, 1, 2.
func NewStdStreams() *StdStreams {
	return &StdStreams{open: map[int]bool{0: true, 1: true, 2: true}}
}

func (s *StdStreams) SupportsPaths() bool      { return false }
func (s *StdStreams) Exists(string) bool       { return false }
func (s *StdStreams) Mkdir(string, uint32) error {
	return errdomain.New(errdomain.NoPermission, "mkdir", nil)
}
func (s *StdStreams) ReadDir(string) ([]string, error) {
	return nil, errdomain.New(errdomain.InvalidArgument, "readdir", nil)
}

func (s *StdStreams) Open(_ string, _ OpenFlags, _ int) error {
	return errdomain.New(errdomain.NoPermission, "open", nil)
}

func (s *StdStreams) Close(fd int) error {
	if !s.validFd(fd) {
		return errdomain.New(errdomain.BadFd, "close", nil)
	}
	return nil // std streams never actually close
}

func (s *StdStreams) Link(string, string) error   { return errdomain.New(errdomain.NoPermission, "link", nil) }
func (s *StdStreams) Unlink(string) error          { return errdomain.New(errdomain.NoPermission, "unlink", nil) }

func (s *StdStreams) validFd(fd int) bool { return fd >= 0 && fd <= 2 && s.open[fd] }

func (s *StdStreams) GetDetails(fd int) (FileDetails, bool) {
	if !s.validFd(fd) {
		return FileDetails{}, false
	}
	return FileDetails{Kind: linuxabi.KindCharacterDevice}, true
}

func (s *StdStreams) IsOpen(fd int) bool { return s.validFd(fd) }
func (s *StdStreams) Length(int) uint64  { return 0 }
func (s *StdStreams) Position(int) uint64 { return 0 }

func (s *StdStreams) Seek(fd int, _ SeekFrom, _ int64) (uint64, error) {
	return 0, errdomain.New(errdomain.InvalidArgument, "seek on stream", nil)
}

func (s *StdStreams) Read(fd int, buf []byte) (int, error) {
	if fd != 0 {
		return 0, errdomain.New(errdomain.BadFd, "read", nil)
	}
	n, err := os.Stdin.Read(buf)
	if err != nil && err != io.EOF {
		return n, errdomain.New(errdomain.ReadError, "read stdin", err)
	}
	return n, nil
}

func (s *StdStreams) Write(fd int, buf []byte) (int, error) {
	var w io.Writer
	switch fd {
	case 1:
		w = os.Stdout
	case 2:
		w = os.Stderr
	default:
		return 0, errdomain.New(errdomain.BadFd, "write", nil)
	}
	n, err := w.Write(buf)
	if err != nil {
		return n, errdomain.New(errdomain.WriteError, "write", err)
	}
	return n, nil
}

func (s *StdStreams) Truncate(int, uint64) error {
	return errdomain.New(errdomain.InvalidArgument, "truncate stream", nil)
}

// Ioctl answers TCGETS and TIOCGWINSZ with plausible terminal parameters;
// every other request is rejected with an error, without logging (spec.md
// §4.4).
func (s *StdStreams) Ioctl(cpuInst *cpu.Instance, fd int, request uint32, addr uint32) (int32, error) {
	if !s.validFd(fd) {
		return -1, errdomain.New(errdomain.BadFd, "ioctl", nil)
	}
	switch request {
	case tcgets:
		// struct termios: c_iflag, c_oflag, c_cflag, c_lflag (4x u32),
		// c_line (u8), c_cc[32] — zeroed is plausible enough for a
		// guest that only probes isatty()-adjacent behavior.
		buf := make([]byte, 36)
		if cpuInst != nil {
			_ = cpuInst.MemWrite(addr, buf)
		}
		return 0, nil
	case tiocgwinsz:
		// struct winsize { ws_row, ws_col, ws_xpixel, ws_ypixel u16 }
		buf := []byte{80, 0, 24, 0, 0, 0, 0, 0}
		if cpuInst != nil {
			_ = cpuInst.MemWrite(addr, buf)
		}
		return 0, nil
	default:
		return -1, fmt.Errorf("vfs: stdio ioctl %#x not supported", request)
	}
}

var _ Backend = (*StdStreams)(nil)
