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

package safeio

import (
	"golang.org/x/sys/unix"
)

// Platforms without stable raw-syscall entry points go through the libc
// write wrapper. Still a single write, still no retries.

// WriteBytes writes b to fd with a single write(2). It returns the number of
// bytes written; errors are reported as 0 bytes written.
func WriteBytes(fd int, b []byte) int {
	if len(b) == 0 {
		return 0
	}
	n, err := unix.Write(fd, b)
	if err != nil {
		return 0
	}
	return n
}

// WriteString writes s to fd with a single write(2).
func WriteString(fd int, s string) int {
	return WriteBytes(fd, []byte(s))
}
