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

package cgosym

import (
	"strings"
	"testing"
	"unsafe"

	"github.com/google/go-cmp/cmp"

	"sigcore.dev/sigcore/pkg/unwind"
)

func TestTracebackCurrentStack(t *testing.T) {
	var buf [32]uintptr
	arg := TracebackArg{
		Buf: &buf[0],
		Max: uintptr(len(buf)),
	}
	Traceback(&arg)

	if buf[0] == 0 {
		t.Fatalf("Traceback captured no frames")
	}
	f := unwind.Resolve(buf[0])
	if !strings.Contains(f.Func, "TestTracebackCurrentStack") {
		t.Errorf("innermost frame: got %q, wanted a frame in TestTracebackCurrentStack", f.Func)
	}

	// Zero-terminated if short.
	n := 0
	for n < len(buf) && buf[n] != 0 {
		n++
	}
	if n == len(buf) {
		t.Errorf("trace not zero-terminated within %d frames", len(buf))
	}
}

func TestTracebackWithContext(t *testing.T) {
	var buf [4]uintptr
	buf[0] = 42
	arg := TracebackArg{
		Context: 1,
		Buf:     &buf[0],
		Max:     uintptr(len(buf)),
	}
	Traceback(&arg)
	if buf[0] != 0 {
		t.Errorf("context request: got buf[0] = %#x, wanted 0", buf[0])
	}
}

func TestTracebackDegenerate(t *testing.T) {
	Traceback(nil)
	Traceback(&TracebackArg{})
	var pc uintptr
	Traceback(&TracebackArg{Buf: &pc, Max: 0})
}

func TestGoStringRoundTrip(t *testing.T) {
	for _, s := range []string{"", "a", "some/file.go", "pkg.Func"} {
		if got := GoString(CString(s)); got != s {
			t.Errorf("round trip: got %q, wanted %q", got, s)
		}
	}
	if got := GoString(nil); got != "" {
		t.Errorf("GoString(nil): got %q, wanted empty", got)
	}
}

// drain runs Symbolizer to exhaustion for pc and returns the resolved
// frames in delivery order, plus the final Entry pointer.
func drain(t *testing.T, pc uintptr) ([]unwind.Frame, uintptr) {
	t.Helper()
	var out []unwind.Frame
	arg := SymbolizerArg{PC: pc}
	for i := 0; ; i++ {
		Symbolizer(&arg)
		out = append(out, unwind.Frame{
			PC:   pc,
			File: GoString(arg.File),
			Line: int(arg.Lineno),
			Func: GoString(arg.Func),
		})
		if arg.More == 0 {
			break
		}
		if arg.Data == nil {
			t.Fatalf("More set with nil Data after %d calls", i+1)
		}
		if i > 64 {
			t.Fatalf("symbolizer did not terminate")
		}
	}
	return out, arg.Entry
}

func TestSymbolizerMatchesResolve(t *testing.T) {
	pcs := unwind.Capture(0, 0)
	pc := pcs[0]

	want := unwind.ResolveAll(pc)
	got, entry := drain(t, pc)

	normalize := func(frames []unwind.Frame) []unwind.Frame {
		out := make([]unwind.Frame, len(frames))
		for i, f := range frames {
			f.PC = pc
			f.Entry = 0
			out[i] = f
		}
		return out
	}
	if diff := cmp.Diff(normalize(want), normalize(got)); diff != "" {
		t.Errorf("frame sequence mismatch (-resolve +symbolizer):\n%s", diff)
	}

	if entry == 0 {
		t.Fatalf("Entry not set on the last frame")
	}
	entryName := GoString((*byte)(unsafe.Pointer(entry)))
	if want := unwind.EntryName(pc); entryName != want {
		t.Errorf("entry: got %q, wanted %q", entryName, want)
	}
}

func TestSymbolizerZeroPC(t *testing.T) {
	arg := SymbolizerArg{}
	Symbolizer(&arg)
	if arg.File != nil || arg.Func != nil || arg.Lineno != 0 || arg.More != 0 {
		t.Errorf("zero pc: outputs not cleared: %+v", arg)
	}
}

func TestSymbolizerDrainsSeededChain(t *testing.T) {
	// Seed the parked list directly: F1 then F2 remain after a first call
	// already returned F0.
	pcs := unwind.Capture(0, 0)
	pc := pcs[0]

	node2 := &SymbolizerMore{File: CString("f2.go"), Lineno: 2, Func: CString("F2")}
	node1 := &SymbolizerMore{File: CString("f1.go"), Lineno: 1, Func: CString("F1"), More: node2}
	arg := SymbolizerArg{PC: pc, Data: node1}

	Symbolizer(&arg)
	if got, want := GoString(arg.Func), "F1"; got != want {
		t.Fatalf("second frame: got %q, wanted %q", got, want)
	}
	if arg.More != 1 {
		t.Fatalf("second frame: More = %d, wanted 1", arg.More)
	}
	if arg.Data != node2 {
		t.Fatalf("second frame: Data does not point at the next node")
	}

	Symbolizer(&arg)
	if got, want := GoString(arg.Func), "F2"; got != want {
		t.Fatalf("last frame: got %q, wanted %q", got, want)
	}
	if arg.More != 0 {
		t.Fatalf("last frame: More = %d, wanted 0", arg.More)
	}
	if arg.Entry == 0 {
		t.Fatalf("last frame: Entry not set")
	}
	if got, want := GoString((*byte)(unsafe.Pointer(arg.Entry))), unwind.EntryName(pc); got != want {
		t.Errorf("entry: got %q, wanted %q", got, want)
	}
}

func TestReleaseStrings(t *testing.T) {
	s := CString("transient")
	if got := GoString(s); got != "transient" {
		t.Fatalf("got %q, wanted %q", got, "transient")
	}
	// Only checks that release is callable and does not disturb later pins.
	ReleaseStrings()
	if got := GoString(CString("after")); got != "after" {
		t.Errorf("got %q, wanted %q", got, "after")
	}
}
