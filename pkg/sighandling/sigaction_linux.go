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

package sighandling

import (
	"runtime"
	"unsafe"

	"golang.org/x/sys/unix"

	"sigcore.dev/sigcore/pkg/abi/linux"
)

// sigactionRead fetches the kernel disposition of sig into sa without
// changing it. This bypasses the Go runtime's bookkeeping; it is the only
// way to observe a disposition installed before this process's runtime
// initialized, or by linked foreign code.
func sigactionRead(sig linux.Signal, sa *linux.SigAction) error {
	if _, _, e := unix.RawSyscall6(unix.SYS_RT_SIGACTION, uintptr(sig), 0, uintptr(unsafe.Pointer(sa)), linux.SignalSetSize, 0, 0); e != 0 {
		return e
	}
	runtime.KeepAlive(sa)
	return nil
}

// sigactionWrite replaces the kernel disposition of sig with sa.
func sigactionWrite(sig linux.Signal, sa *linux.SigAction) error {
	if _, _, e := unix.RawSyscall6(unix.SYS_RT_SIGACTION, uintptr(sig), uintptr(unsafe.Pointer(sa)), 0, linux.SignalSetSize, 0, 0); e != 0 {
		return e
	}
	runtime.KeepAlive(sa)
	return nil
}

// runtimeSignalHandler returns the address of the Go runtime's own signal
// handler, so captured dispositions that point at it can be classified as
// host-owned. SIGURG is always runtime-managed (it drives asynchronous
// preemption), so its current handler is the runtime's.
func runtimeSignalHandler() uint64 {
	var sa linux.SigAction
	if err := sigactionRead(linux.SIGURG, &sa); err != nil {
		return 0
	}
	if sa.Handler == linux.SIG_DFL || sa.Handler == linux.SIG_IGN {
		return 0
	}
	return sa.Handler
}

// sigaltstackSet installs ss as the calling thread's alternate signal stack.
func sigaltstackSet(ss *linux.SignalStack) error {
	if _, _, e := unix.RawSyscall(unix.SYS_SIGALTSTACK, uintptr(unsafe.Pointer(ss)), 0, 0); e != 0 {
		return e
	}
	runtime.KeepAlive(ss)
	return nil
}

// allocSignalStack maps an anonymous region of the given size for use as an
// alternate signal stack. The mapping is never unmapped.
func allocSignalStack(size int) (uintptr, error) {
	mem, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		return 0, err
	}
	return uintptr(unsafe.Pointer(&mem[0])), nil
}

// rtSigprocmask adjusts the calling thread's blocked-signal mask.
func rtSigprocmask(how int, set, oldset *linux.SignalSet) error {
	if _, _, e := unix.RawSyscall6(unix.SYS_RT_SIGPROCMASK, uintptr(how), uintptr(unsafe.Pointer(set)), uintptr(unsafe.Pointer(oldset)), linux.SignalSetSize, 0, 0); e != 0 {
		return e
	}
	return nil
}

// rtSigsuspend atomically replaces the calling thread's signal mask with
// mask and suspends until a signal is caught. It always "fails" with EINTR
// by contract; any other errno is returned.
func rtSigsuspend(mask *linux.SignalSet) error {
	_, _, e := unix.Syscall(unix.SYS_RT_SIGSUSPEND, uintptr(unsafe.Pointer(mask)), linux.SignalSetSize, 0)
	if e != 0 && e != unix.EINTR {
		return e
	}
	return nil
}

// raiseThread directs sig at the calling thread. The caller must have pinned
// itself with runtime.LockOSThread so the tid is stable.
func raiseThread(sig linux.Signal) error {
	return unix.Tgkill(unix.Getpid(), unix.Gettid(), unix.Signal(sig))
}

// waitSigsuspend implements the POSIX fast path for the chain's wait step:
// block wait, suspend with every signal but wait blocked until wait is
// delivered, restore the original mask. The poll loop over the seen flags
// remains the portable default.
func waitSigsuspend(wait linux.Signal) error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	blockSet := linux.SignalSetOf(wait)
	var oldSet linux.SignalSet
	if err := rtSigprocmask(linux.SIG_BLOCK, &blockSet, &oldSet); err != nil {
		return err
	}
	// Block everything except wait while suspended, so only wait's delivery
	// wakes us.
	suspendMask := ^linux.SignalSet(0) &^ linux.SignalSetOf(wait)
	suspendErr := rtSigsuspend(&suspendMask)
	if err := rtSigprocmask(linux.SIG_SETMASK, &oldSet, nil); err != nil {
		return err
	}
	return suspendErr
}
