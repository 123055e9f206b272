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

// Package linux contains the constants and types needed to interface with a
// Linux kernel's signal machinery. The definitions here mirror the userspace
// ABI (uapi/asm-generic/signal.h and friends), not any libc's view of it.
package linux

// SignalSetSize is the size in bytes of the signal mask accepted by
// rt_sigaction(2) and rt_sigprocmask(2). The kernel insists on the size of
// its own sigset_t, which is 8 bytes, not libc's 128.
const SignalSetSize = 8
