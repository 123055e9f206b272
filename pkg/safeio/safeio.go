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

// Package safeio writes to file descriptors from contexts where almost
// nothing is allowed: signal handlers. All functions here perform a single
// write(2) and touch only their arguments and fixed-size stack buffers.
// Short writes are not retried; a signal handler has no business looping on
// I/O.
package safeio

// maxInt64Digits is the widest base-10 rendering of a signed 64-bit integer,
// not counting the sign: len("9223372036854775808").
const maxInt64Digits = 19

// WriteInt writes the base-10 rendering of v to fd, with a leading '-' for
// negative values. It never calls into general-purpose formatting; the digits
// are produced in a fixed-size stack buffer.
//
//go:nosplit
func WriteInt(fd int, v int64) int {
	var buf [maxInt64Digits + 1]byte
	i := len(buf)

	u := uint64(v)
	neg := v < 0
	if neg {
		u = -u
	}
	for {
		i--
		buf[i] = '0' + byte(u%10)
		u /= 10
		if u == 0 {
			break
		}
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return WriteBytes(fd, buf[i:])
}

// Digits10 returns the minimum number of base-10 digits needed to render v.
func Digits10(v uint64) int {
	if v < 10 {
		return 1
	}
	return 1 + Digits10(v/10)
}
