// Copyright 2025 The sigcore Authors.
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

// Package unwind captures native call stacks, persists them in a restorable
// binary form, and resolves program counters to source locations.
//
// CaptureInto and the dump routines that take pre-built buffers (DumpToFD,
// DumpToPathBytes) are callable from a signal handler; Capture, DumpToPath
// and resolution are not, since they allocate.
package unwind

import (
	"encoding/binary"
	"fmt"
	"os"
	"runtime"
	"strconv"

	"sigcore.dev/sigcore/pkg/safeio"
	"sigcore.dev/sigcore/pkg/sync"
)

// DefaultMaxFrames bounds captures that do not specify their own limit. 128
// covers any realistic stack while keeping per-capture buffers small.
const DefaultMaxFrames = 128

// wordSize is the on-disk size of one frame pointer.
const wordSize = 8

// Frame is one resolved stack frame.
type Frame struct {
	// PC is the program counter the frame was resolved from.
	PC uintptr

	// File is the source file, or the module path when no source info is
	// available.
	File string

	// Line is the source line, 0 when unknown.
	Line int

	// Func is the function name. Never empty: a frame with no symbol renders
	// its PC in hex.
	Func string

	// Entry is the entry address of the function containing PC, 0 when
	// unknown.
	Entry uintptr
}

// String implements fmt.Stringer.
func (f Frame) String() string {
	return fmt.Sprintf("%#x %s:%d %s", f.PC, f.File, f.Line, f.Func)
}

// Capture returns the program counters of the calling goroutine's stack,
// skipping skip frames below the caller of Capture, up to max frames. It
// allocates and must not be used on the signal path; see CaptureInto.
func Capture(skip, max int) []uintptr {
	if max <= 0 {
		max = DefaultMaxFrames
	}
	pcs := make([]uintptr, max)
	n := runtime.Callers(2+skip, pcs)
	return pcs[:n]
}

// CaptureInto fills pcs with the program counters of the calling goroutine's
// stack, skipping skip frames below the caller, and returns the number of
// frames stored. It performs no allocation; pcs is the caller's pre-reserved
// buffer.
func CaptureInto(skip int, pcs []uintptr) int {
	return runtime.Callers(2+skip, pcs)
}

// DumpToFD appends pcs to fd as an opaque binary sequence followed by a zero
// terminator, using only raw writes. Callable from a signal handler. Returns
// the number of bytes written.
func DumpToFD(fd int, pcs []uintptr) int {
	var buf [wordSize]byte
	total := 0
	for _, pc := range pcs {
		if pc == 0 {
			break
		}
		binary.NativeEndian.PutUint64(buf[:], uint64(pc))
		total += safeio.WriteBytes(fd, buf[:])
	}
	binary.NativeEndian.PutUint64(buf[:], 0)
	total += safeio.WriteBytes(fd, buf[:])
	return total
}

// DumpToPathBytes opens the NUL-terminated path with raw syscalls, truncates
// it, and writes pcs as with DumpToFD. pathZ must be prepared outside the
// signal handler. Returns bytes written, 0 if the file cannot be opened.
func DumpToPathBytes(pathZ []byte, pcs []uintptr) int {
	if len(pathZ) == 0 || pathZ[len(pathZ)-1] != 0 {
		return 0
	}
	fd, ok := openForDump(pathZ)
	if !ok {
		return 0
	}
	n := DumpToFD(fd, pcs)
	closeDump(fd)
	return n
}

// DumpToPath writes pcs to the named file. Unlike DumpToPathBytes it
// allocates the NUL-terminated path and is therefore not for use in a signal
// handler.
func DumpToPath(path string, pcs []uintptr) int {
	return DumpToPathBytes(AppendPathBytes(nil, path), pcs)
}

// AppendPathBytes appends path and a NUL terminator to dst, for later use
// with DumpToPathBytes.
func AppendPathBytes(dst []byte, path string) []byte {
	dst = append(dst, path...)
	return append(dst, 0)
}

// LoadPath reloads a frame list previously written by DumpToFD or
// DumpToPathBytes. The list ends at the zero terminator or at end of file.
func LoadPath(path string) ([]uintptr, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(data)%wordSize != 0 {
		return nil, fmt.Errorf("stack dump %q has truncated frame: %d bytes", path, len(data))
	}
	var pcs []uintptr
	for off := 0; off < len(data); off += wordSize {
		pc := uintptr(binary.NativeEndian.Uint64(data[off:]))
		if pc == 0 {
			break
		}
		pcs = append(pcs, pc)
	}
	return pcs, nil
}

// modulePath returns the path of the running binary, used as the location of
// last resort for frames with no source info.
var modulePath = sync.OnceValue(func() string {
	path, err := os.Executable()
	if err != nil {
		return ""
	}
	return path
})

// Resolve resolves pc to its innermost frame. Must not be called from a
// signal handler.
func Resolve(pc uintptr) Frame {
	frames := ResolveAll(pc)
	return frames[0]
}

// ResolveAll resolves pc to all frames at that address, innermost first:
// more than one when the compiler inlined calls there. The result always
// contains at least one frame. Must not be called from a signal handler.
func ResolveAll(pc uintptr) []Frame {
	if pc == 0 {
		return []Frame{{PC: 0, Func: "0x0", File: modulePath()}}
	}

	var out []Frame
	it := runtime.CallersFrames([]uintptr{pc})
	for {
		fr, more := it.Next()
		f := Frame{
			PC:   pc,
			File: fr.File,
			Line: fr.Line,
			Func: fr.Function,
		}
		if fr.Func != nil {
			f.Entry = fr.Func.Entry()
		} else {
			f.Entry = fr.Entry
		}
		if f.Func == "" {
			// No symbol: render the address itself.
			f.Func = "0x" + strconv.FormatUint(uint64(pc), 16)
		}
		if f.File == "" || f.File[0] == '?' {
			// No source info: fall back to the module the PC lives in.
			f.File = modulePath()
		}
		out = append(out, f)
		if !more {
			break
		}
	}
	if len(out) == 0 {
		out = append(out, Frame{
			PC:   pc,
			Func: "0x" + strconv.FormatUint(uint64(pc), 16),
			File: modulePath(),
		})
	}
	return out
}

// EntryName returns the name of the function containing pc, or its hex
// address when unknown. This is what crash reporters show as the frame's
// entry point.
func EntryName(pc uintptr) string {
	if f := runtime.FuncForPC(pc); f != nil {
		return f.Name()
	}
	return "0x" + strconv.FormatUint(uint64(pc), 16)
}
