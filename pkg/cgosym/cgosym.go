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

// Package cgosym implements the traceback and symbolizer callbacks a host
// runtime invokes to walk the current native stack and resolve program
// counters, with argument records laid out exactly as the runtime's
// traceback ABI expects (see runtime.SetCgoTraceback).
//
// Strings handed out through SymbolizerArg are NUL-terminated and owned by
// the receiver; they are pinned against garbage collection until
// ReleaseStrings is called. Neither callback lets a panic escape.
package cgosym

import (
	"unsafe"

	"sigcore.dev/sigcore/pkg/sync"
	"sigcore.dev/sigcore/pkg/unwind"
)

// tracebackSkip hides the callback machinery itself from captured stacks.
const tracebackSkip = 1

// TracebackArg is the traceback request record. Layout is bit-exact with
// the host runtime's cgoTracebackArg.
type TracebackArg struct {
	// Context is a traceback context created by a previous traceback call,
	// 0 for "trace the current stack". Nonzero contexts are not supported.
	Context uintptr

	// SigContext is the signal context when tracing from a signal handler,
	// 0 otherwise. Unused: only the current stack is walked.
	SigContext uintptr

	// Buf receives the PCs, zero-terminated if fewer than Max are written.
	Buf *uintptr

	// Max is the capacity of Buf in words.
	Max uintptr
}

// SymbolizerArg is the symbolization request record. Layout is bit-exact
// with the host runtime's cgoSymbolizerArg.
type SymbolizerArg struct {
	// PC is the counter to resolve, 0 to release saved state.
	PC uintptr

	// File, Lineno and Func receive the source location of one frame.
	File   *byte
	Lineno uintptr
	Func   *byte

	// Entry receives the name of the function containing PC, delivered with
	// the last frame.
	Entry uintptr

	// More is nonzero when another frame is available for the same PC.
	More uintptr

	// Data carries the remaining inlined frames between calls.
	Data *SymbolizerMore
}

// SymbolizerMore is one deferred inlined frame. Nodes form a singly linked,
// acyclic list owned by the caller after Symbolizer returns.
type SymbolizerMore struct {
	More   *SymbolizerMore
	File   *byte
	Lineno uintptr
	Func   *byte
}

// Traceback captures the current native stack into arg.Buf. A nonzero
// Context yields an empty trace, matching the contract for requests this
// implementation cannot serve. Panics do not escape; they also yield an
// empty trace.
func Traceback(arg *TracebackArg) {
	if arg == nil || arg.Buf == nil || arg.Max == 0 {
		return
	}
	buf := unsafe.Slice(arg.Buf, arg.Max)
	defer func() {
		if r := recover(); r != nil {
			buf[0] = 0
		}
	}()

	if arg.Context != 0 {
		buf[0] = 0
		return
	}
	n := unwind.CaptureInto(tracebackSkip, buf)
	if uintptr(n) < arg.Max {
		buf[n] = 0
	}
}

// Symbolizer resolves arg.PC to source info. Inlined frames are returned
// one per call: the first call fills the innermost frame and parks the rest
// on arg.Data with More set; subsequent calls drain the list. The name of
// the function containing PC rides on the last frame's Entry. Panics do not
// escape.
func Symbolizer(arg *SymbolizerArg) {
	if arg == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			arg.More = 0
		}
	}()

	if more := arg.Data; more != nil {
		// Drain one parked frame.
		arg.File = more.File
		arg.Lineno = more.Lineno
		arg.Func = more.Func
		arg.Data = more.More
		if more.More != nil {
			arg.More = 1
			return
		}
		arg.More = 0
		arg.Entry = uintptr(unsafe.Pointer(CString(unwind.EntryName(arg.PC))))
		return
	}

	arg.File = nil
	arg.Lineno = 0
	arg.Func = nil
	arg.More = 0
	if arg.PC == 0 {
		return
	}

	frames := unwind.ResolveAll(arg.PC)
	head := frames[0]
	arg.File = CString(head.File)
	arg.Lineno = uintptr(head.Line)
	arg.Func = CString(head.Func)

	if len(frames) > 1 {
		// Park the outer inlined frames, outermost last.
		var list, tail *SymbolizerMore
		for _, f := range frames[1:] {
			node := &SymbolizerMore{
				File:   CString(f.File),
				Lineno: uintptr(f.Line),
				Func:   CString(f.Func),
			}
			pin(unsafe.Pointer(node))
			if tail == nil {
				list = node
			} else {
				tail.More = node
			}
			tail = node
		}
		arg.Data = list
		arg.More = 1
		return
	}

	arg.Entry = uintptr(unsafe.Pointer(CString(unwind.EntryName(arg.PC))))
}

// pinned keeps alive everything handed across the callback boundary until
// the host runtime is done with it.
var pinned struct {
	mu   sync.Mutex
	refs []unsafe.Pointer
}

func pin(p unsafe.Pointer) {
	pinned.mu.Lock()
	defer pinned.mu.Unlock()
	pinned.refs = append(pinned.refs, p)
}

// CString copies s into a NUL-terminated byte string pinned against
// collection. The result remains valid until ReleaseStrings.
func CString(s string) *byte {
	b := make([]byte, len(s)+1)
	copy(b, s)
	pin(unsafe.Pointer(&b[0]))
	return &b[0]
}

// GoString converts a NUL-terminated byte string back to a Go string. A nil
// pointer yields the empty string.
func GoString(p *byte) string {
	if p == nil {
		return ""
	}
	n := 0
	for *(*byte)(unsafe.Add(unsafe.Pointer(p), n)) != 0 {
		n++
	}
	return string(unsafe.Slice(p, n))
}

// ReleaseStrings drops every pin taken since the last release. Call only
// after the host runtime has consumed all outstanding frames.
func ReleaseStrings() {
	pinned.mu.Lock()
	defer pinned.mu.Unlock()
	pinned.refs = nil
}
