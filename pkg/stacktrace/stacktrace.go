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

// Package stacktrace persists a binary stack dump at signal time and renders
// it as human-readable text afterwards.
//
// The write side runs inside a signal handler: it emits a banner with raw
// writes and dumps raw frame pointers to a pre-configured path, touching only
// atomics and buffers prepared ahead of time. The read side runs in ordinary
// code and may allocate freely.
package stacktrace

import (
	"fmt"
	"strings"
	"sync/atomic"

	"sigcore.dev/sigcore/pkg/atomicbitops"
	"sigcore.dev/sigcore/pkg/log"
	"sigcore.dev/sigcore/pkg/safeio"
	"sigcore.dev/sigcore/pkg/unwind"
)

// Banner fragments, written byte-for-byte at signal time.
const (
	bannerPrefix   = "Signal received("
	bannerSuffix   = ").\n"
	dumpFilePrefix = "Stacktrace dumped to file: "
	dumpFileSuffix = ".\n"
	previousHeader = "Previous run crashed:\n"
)

// dumpTarget is the immutable dump-path configuration, swapped in whole so
// the signal path sees either the old or the new target, never a mix.
type dumpTarget struct {
	// path is the configured file path.
	path string

	// pathZ is path with a NUL terminator, ready for openat(2).
	pathZ []byte
}

// Store persists one stack dump per signal delivery and reloads it on
// request.
type Store struct {
	// dumpFD is the descriptor for the textual banner, -1 when disabled.
	dumpFD atomicbitops.Int32

	// target is the dump-path configuration, nil when no path is set.
	target atomic.Pointer[dumpTarget]
}

// New returns a Store with no banner descriptor and no dump path.
func New() *Store {
	s := &Store{}
	s.dumpFD.Store(-1)
	return s
}

// SetDumpFD sets the descriptor the banner is written to at signal time.
// A negative fd disables the banner.
func (s *Store) SetDumpFD(fd int) {
	s.dumpFD.Store(int32(fd))
}

// DumpFD returns the configured banner descriptor, -1 when disabled.
func (s *Store) DumpFD() int {
	return int(s.dumpFD.Load())
}

// SetDumpPath configures the file the binary stack dump is written to.
// An empty path disables dumping. The NUL-terminated byte form is prepared
// here, outside the signal path.
func (s *Store) SetDumpPath(path string) {
	if path == "" {
		s.target.Store(nil)
		return
	}
	s.target.Store(&dumpTarget{
		path:  path,
		pathZ: unwind.AppendPathBytes(nil, path),
	})
	log.Debugf("stacktrace: dumping to %q on signal", path)
}

// DumpPath returns the configured dump path, empty when disabled.
func (s *Store) DumpPath() string {
	if t := s.target.Load(); t != nil {
		return t.path
	}
	return ""
}

// WriteOnSignal emits the signal banner and persists the current stack.
// It is the signal-time entry point: only atomics, stack buffers and raw
// writes. Short writes are not retried.
func (s *Store) WriteOnSignal(signum int) {
	fd := int(s.dumpFD.Load())
	if fd >= 0 {
		safeio.WriteString(fd, bannerPrefix)
		safeio.WriteInt(fd, int64(signum))
		safeio.WriteString(fd, bannerSuffix)
	}

	t := s.target.Load()
	if t == nil {
		return
	}
	if fd >= 0 {
		safeio.WriteString(fd, dumpFilePrefix)
		safeio.WriteBytes(fd, t.pathZ[:len(t.pathZ)-1])
		safeio.WriteString(fd, dumpFileSuffix)
	}

	var pcs [unwind.DefaultMaxFrames]uintptr
	n := unwind.CaptureInto(1, pcs[:])
	unwind.DumpToPathBytes(t.pathZ, pcs[:n])
}

// HasPrevious returns true if a dump path is configured and holds a
// loadable dump from an earlier delivery (possibly in a previous run of the
// process).
func (s *Store) HasPrevious() bool {
	t := s.target.Load()
	if t == nil {
		return false
	}
	pcs, err := unwind.LoadPath(t.path)
	return err == nil && len(pcs) > 0
}

// PreviousText reloads the last dump and renders it one frame per line.
// It returns the empty string when no path is configured, the file is
// missing or unreadable, or the dump cannot be parsed.
func (s *Store) PreviousText() string {
	t := s.target.Load()
	if t == nil {
		return ""
	}
	pcs, err := unwind.LoadPath(t.path)
	if err != nil {
		log.Debugf("stacktrace: cannot reload %q: %v", t.path, err)
		return ""
	}
	if len(pcs) == 0 {
		return ""
	}

	var b strings.Builder
	for i, pc := range pcs {
		f := unwind.Resolve(pc)
		fmt.Fprintf(&b, "#%-2d %#x %s:%d %s\n", i, uint64(f.PC), f.File, f.Line, f.Func)
	}
	return b.String()
}

// DumpPrevious writes the rendered previous stacktrace to fd, preceded by a
// crash header. It returns the number of bytes written; 0 when fd is
// negative or there is nothing to write.
func (s *Store) DumpPrevious(fd int) int {
	if fd < 0 {
		return 0
	}
	text := s.PreviousText()
	if text == "" {
		return 0
	}
	return safeio.WriteString(fd, previousHeader+text)
}

// global is the process-wide store used by the signal dispatcher. The OS
// hands out one disposition per signal, so one store serves the process.
var global = New()

// Global returns the process-wide store.
func Global() *Store {
	return global
}
