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

//go:build linux
// +build linux

package unwind

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// openForDump opens the NUL-terminated path for truncating write with raw
// syscalls only, so it is safe inside a signal handler.
func openForDump(pathZ []byte) (int, bool) {
	dirfd := int64(unix.AT_FDCWD)
	fd, _, errno := unix.RawSyscall6(unix.SYS_OPENAT, uintptr(dirfd),
		uintptr(unsafe.Pointer(&pathZ[0])),
		uintptr(unix.O_WRONLY|unix.O_CREAT|unix.O_TRUNC), 0644, 0, 0)
	if errno != 0 {
		return -1, false
	}
	return int(fd), true
}

func closeDump(fd int) {
	unix.RawSyscall(unix.SYS_CLOSE, uintptr(fd), 0, 0)
}
