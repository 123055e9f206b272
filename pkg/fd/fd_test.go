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

package fd

import (
	"os"
	"path/filepath"
	"testing"

	"golang.org/x/sys/unix"
)

func TestReadWriter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("os.Create failed: %v", err)
	}
	defer f.Close()

	rw := NewReadWriter(int(f.Fd()))
	want := []byte("previous run crashed")
	if n, err := rw.Write(want); n != len(want) || err != nil {
		t.Fatalf("Write: got (%d, %v), wanted (%d, nil)", n, err, len(want))
	}

	got := make([]byte, len(want))
	if _, err := rw.ReadAt(got, 0); err != nil {
		t.Fatalf("ReadAt failed: %v", err)
	}
	if string(got) != string(want) {
		t.Errorf("ReadAt: got %q, wanted %q", got, want)
	}
}

func TestFDOwnership(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f")
	if err := os.WriteFile(path, []byte("x"), 0644); err != nil {
		t.Fatalf("os.WriteFile failed: %v", err)
	}

	fd, err := Open(path, unix.O_RDONLY, 0)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if fd.FD() < 0 {
		t.Fatalf("FD: got %d, wanted >= 0", fd.FD())
	}
	if err := fd.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	// Close is idempotent.
	if err := fd.Close(); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}
	if fd.FD() != -1 {
		t.Errorf("FD after Close: got %d, wanted -1", fd.FD())
	}
}

func TestNewFromFileDuplicates(t *testing.T) {
	f, err := os.Open(os.DevNull)
	if err != nil {
		t.Fatalf("os.Open failed: %v", err)
	}

	dup, err := NewFromFile(f)
	if err != nil {
		t.Fatalf("NewFromFile failed: %v", err)
	}
	if dup.FD() == int(f.Fd()) {
		t.Errorf("NewFromFile did not duplicate the descriptor")
	}
	f.Close()

	// The duplicate outlives the original.
	buf := make([]byte, 1)
	if _, err := unix.Read(dup.FD(), buf); err != nil {
		t.Errorf("read from duplicate after close failed: %v", err)
	}
	dup.Close()
}

func TestRelease(t *testing.T) {
	f, err := os.Open(os.DevNull)
	if err != nil {
		t.Fatalf("os.Open failed: %v", err)
	}
	defer f.Close()

	fd, err := NewFromFile(f)
	if err != nil {
		t.Fatalf("NewFromFile failed: %v", err)
	}
	raw := fd.Release()
	if raw < 0 {
		t.Fatalf("Release: got %d, wanted >= 0", raw)
	}
	if fd.FD() != -1 {
		t.Errorf("FD after Release: got %d, wanted -1", fd.FD())
	}
	unix.Close(raw)
}
