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

// Package sighandling intercepts asynchronous signals without destroying the
// dispositions that were in force before it, and fans a delivery out through
// a configurable signal chain.
//
// On delivery of an installed signal the dispatcher, strictly in order:
// writes an async-signal-safe banner and stack dump, invokes the registered
// user callback, evaluates the signal-chain rule for the signal (secondary
// handler invocation, inter-signal wait, timed sleep), and finally delegates
// to the disposition that was recorded when the signal was first installed.
//
// The disposition recorded for a signal number is captured exactly once per
// process; later installs never overwrite it, so the original handler is
// never lost.
package sighandling

import (
	"unsafe"

	"sigcore.dev/sigcore/pkg/abi/linux"
)

// Action is a disposition in sa_sigaction form. ucontext is the raw ucontext
// pointer when the delivery carried one, nil otherwise.
type Action func(sig linux.Signal, info *linux.SignalInfo, ucontext unsafe.Pointer)

// Handler is a disposition in sa_handler form.
type Handler func(sig linux.Signal)

// OnSignal is the user callback invoked by the dispatcher after the banner
// and before the chain. It must not call back into managed runtime code.
type OnSignal func(ctx unsafe.Pointer, fd int, sig linux.Signal, info *linux.SignalInfo, ucontext unsafe.Pointer)

// DispositionKind discriminates Disposition.
type DispositionKind int

const (
	// DispositionDefault is SIG_DFL: delegation resets the kernel
	// disposition and re-raises.
	DispositionDefault DispositionKind = iota

	// DispositionIgnore is SIG_IGN: delegation returns silently.
	DispositionIgnore

	// DispositionAction is an in-process handler in sa_sigaction form.
	DispositionAction

	// DispositionHandler is an in-process handler in sa_handler form.
	DispositionHandler

	// DispositionHost marks a signal that was owned by the Go runtime's own
	// signal handler when it was first installed. The runtime observes every
	// delivery before this package does, so delegation has nothing left to
	// do.
	DispositionHost

	// DispositionRaw is a foreign handler captured from the kernel, one this
	// package cannot call directly. Delegation restores the captured
	// sigaction, re-raises the signal at the raising thread, and re-installs
	// the dispatcher afterwards.
	DispositionRaw
)

// String implements fmt.Stringer.
func (k DispositionKind) String() string {
	switch k {
	case DispositionDefault:
		return "default"
	case DispositionIgnore:
		return "ignore"
	case DispositionAction:
		return "action"
	case DispositionHandler:
		return "handler"
	case DispositionHost:
		return "host"
	case DispositionRaw:
		return "raw"
	default:
		return "invalid"
	}
}

// Disposition is what a signal number resolved to before the dispatcher was
// installed over it. Values are small and copied freely.
type Disposition struct {
	// Kind discriminates which of the remaining fields is meaningful.
	Kind DispositionKind

	// Action is set for DispositionAction.
	Action Action

	// Handler is set for DispositionHandler.
	Handler Handler

	// Raw is the captured kernel sigaction for DispositionRaw.
	Raw linux.SigAction
}

// dispositionFromSigAction classifies a kernel sigaction read back from
// rt_sigaction(2).
func dispositionFromSigAction(sa linux.SigAction, runtimeHandler uint64) Disposition {
	switch sa.Handler {
	case linux.SIG_DFL:
		return Disposition{Kind: DispositionDefault}
	case linux.SIG_IGN:
		return Disposition{Kind: DispositionIgnore}
	}
	if runtimeHandler != 0 && sa.Handler == runtimeHandler {
		return Disposition{Kind: DispositionHost}
	}
	return Disposition{Kind: DispositionRaw, Raw: sa}
}
