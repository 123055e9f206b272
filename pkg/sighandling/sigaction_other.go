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

package sighandling

import (
	"golang.org/x/sys/unix"

	"sigcore.dev/sigcore/pkg/abi/linux"
)

// On platforms without rt_sigaction the prior kernel disposition cannot be
// observed, so installs record SIG_DFL and re-raises go through kill(2)
// after the platform's signal package has reset the disposition. The chain's
// wait step must use the polling variant here.

func sigactionRead(sig linux.Signal, sa *linux.SigAction) error {
	return unix.ENOSYS
}

func sigactionWrite(sig linux.Signal, sa *linux.SigAction) error {
	return unix.ENOSYS
}

func runtimeSignalHandler() uint64 {
	return 0
}

func sigaltstackSet(ss *linux.SignalStack) error {
	return unix.ENOSYS
}

func allocSignalStack(size int) (uintptr, error) {
	return 0, unix.ENOSYS
}

func rtSigprocmask(how int, set, oldset *linux.SignalSet) error {
	return unix.ENOSYS
}

func raiseThread(sig linux.Signal) error {
	return unix.Kill(unix.Getpid(), unix.Signal(sig))
}

func waitSigsuspend(wait linux.Signal) error {
	return unix.ENOSYS
}
