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

//go:build !linux
// +build !linux

package unwind

import (
	"golang.org/x/sys/unix"
)

// Platforms without raw-syscall entry points go through the libc wrappers.
// The degraded guarantee matches the rest of the signal path there.

func openForDump(pathZ []byte) (int, bool) {
	fd, err := unix.Open(string(pathZ[:len(pathZ)-1]), unix.O_WRONLY|unix.O_CREAT|unix.O_TRUNC, 0644)
	if err != nil {
		return -1, false
	}
	return fd, true
}

func closeDump(fd int) {
	unix.Close(fd)
}
