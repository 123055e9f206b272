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

package sighandling

import (
	"encoding/binary"
	"fmt"
	"os"
	"os/signal"
	"unsafe"

	"golang.org/x/sys/unix"

	"sigcore.dev/sigcore/pkg/abi/linux"
	"sigcore.dev/sigcore/pkg/fd"
	"sigcore.dev/sigcore/pkg/log"
	"sigcore.dev/sigcore/pkg/stacktrace"
)

// Install installs the dispatcher for sig. The disposition in force at the
// time of the first Install for sig is recorded before being overwritten and
// is never recorded again; repeated installs are idempotent in effect.
//
// Configuration (dump fd, dump file, callback, chain rules) should be in
// place before Install; changes made while sig can already fire race with
// delivery.
func (m *Manager) Install(sig linux.Signal) error {
	if !sig.IsIndexable() {
		return fmt.Errorf("cannot install dispatcher for %v: %w", sig, unix.EINVAL)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.registry.recorded(sig) {
		var sa linux.SigAction
		if err := sigactionRead(sig, &sa); err == nil {
			m.registry.recordOnce(sig, dispositionFromSigAction(sa, m.hostHandler()))
		} else {
			// No way to observe the prior disposition on this platform;
			// default-action semantics are the only faithful fallback.
			m.registry.recordOnce(sig, Disposition{Kind: DispositionDefault})
		}
	}

	// The raise thread owns the alternate signal stack; starting it here
	// surfaces stack-setup failures to the installer, per contract.
	if err := m.ensureRaiser(); err != nil {
		return fmt.Errorf("cannot set up alternate signal stack: %w", err)
	}

	m.installDelivery(sig)
	log.Debugf("sighandling: dispatcher installed for %v", sig)
	return nil
}

// InstallHandlers is Install with an explicitly supplied prior disposition:
// action takes precedence over handler, both nil records default-action
// semantics. Like Install, only the first record for sig sticks.
func (m *Manager) InstallHandlers(sig linux.Signal, action Action, handler Handler) error {
	if !sig.IsIndexable() {
		return fmt.Errorf("cannot install dispatcher for %v: %w", sig, unix.EINVAL)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	d := Disposition{Kind: DispositionDefault}
	switch {
	case action != nil:
		d = Disposition{Kind: DispositionAction, Action: action}
	case handler != nil:
		d = Disposition{Kind: DispositionHandler, Handler: handler}
	}
	m.registry.recordOnce(sig, d)

	if err := m.ensureRaiser(); err != nil {
		return fmt.Errorf("cannot set up alternate signal stack: %w", err)
	}

	m.installDelivery(sig)
	return nil
}

// installDelivery subscribes sig to the delivery loop. Callers hold m.mu.
func (m *Manager) installDelivery(sig linux.Signal) {
	m.deliverOnce.Do(func() {
		m.deliveries = make(chan os.Signal, linux.SignalIndexMaximum)
		go m.deliverLoop()
	})
	signal.Notify(m.deliveries, unix.Signal(sig))
}

// Recorded returns the prior disposition recorded for sig, if any.
func (m *Manager) Recorded(sig linux.Signal) (Disposition, bool) {
	return m.registry.lookup(sig)
}

// SetDumpFD sets the descriptor the signal banner is written to.
func (m *Manager) SetDumpFD(fdno int) {
	m.store.SetDumpFD(fdno)
}

// SetDumpFDFromFile points the signal banner at file's descriptor. The
// descriptor is duplicated, so the banner keeps working if file is closed;
// the duplicate is owned by the dispatcher and deliberately never closed.
func (m *Manager) SetDumpFDFromFile(file *os.File) error {
	dup, err := fd.NewFromFile(file)
	if err != nil {
		return err
	}
	m.store.SetDumpFD(dup.Release())
	return nil
}

// SetDumpFile sets the path the binary stack dump is written to at signal
// time. Empty disables dumping.
func (m *Manager) SetDumpFile(path string) {
	m.store.SetDumpPath(path)
}

// RegisterOnSignal registers cb to run on every dispatched delivery, after
// the banner and before the chain. ctx is handed back to cb unchanged. A nil
// cb unregisters.
func (m *Manager) RegisterOnSignal(cb OnSignal, ctx unsafe.Pointer) {
	m.userCB.Store(&callbackRegistration{fn: cb, ctx: ctx})
}

// SetChain sets the timed chain rule for from: on delivery of from, invoke
// the prior disposition of to (if positive and distinct), wait for wait (if
// positive and distinct), then sleep sleepSeconds. Overwrites any previous
// timed rule for from.
func (m *Manager) SetChain(from, to, wait linux.Signal, sleepSeconds uint32) {
	m.chains.setChain(from, to, wait, sleepSeconds)
}

// SetChainPipe sets the pipe-form chain rule for from: on delivery of from,
// one 8-byte word holding the signal number is written to writerFD.
// Overwrites any previous pipe rule for from.
func (m *Manager) SetChainPipe(from linux.Signal, writerFD, readerFD int) {
	m.chains.setChainPipe(from, writerFD, readerFD)
}

// Chain returns the timed chain rule for from, if a consistent one is set.
func (m *Manager) Chain(from linux.Signal) (ChainRule, bool) {
	if r := m.chains.rule(from); r != nil {
		return *r, true
	}
	return ChainRule{}, false
}

// ChainedSignals returns the signals that currently have a timed chain
// rule, in unspecified order.
func (m *Manager) ChainedSignals() []linux.Signal {
	return m.chains.chainedSignals()
}

// WaitChainPipe blocks until the pipe-form rule for from fires and returns
// the word the dispatcher wrote.
func (m *Manager) WaitChainPipe(from linux.Signal) (uint64, error) {
	pr := m.chains.pipeRule(from)
	if pr == nil {
		return 0, fmt.Errorf("no pipe chain rule for %v", from)
	}
	var word [8]byte
	if _, err := fd.NewReadWriter(pr.ReaderFD).Read(word[:]); err != nil {
		return 0, err
	}
	return binary.NativeEndian.Uint64(word[:]), nil
}

// DumpPreviousStacktrace writes the previous run's rendered stacktrace to
// the banner descriptor.
func (m *Manager) DumpPreviousStacktrace() int {
	return m.store.DumpPrevious(m.store.DumpFD())
}

// PreviousStacktraceText returns the previous run's rendered stacktrace,
// empty when there is none.
func (m *Manager) PreviousStacktraceText() string {
	return m.store.PreviousText()
}

// global is the process-wide manager, bound to the process-wide stacktrace
// store.
var global = NewManager(stacktrace.Global())

// Global returns the process-wide Manager.
func Global() *Manager {
	return global
}

// Install installs the process-wide dispatcher for sig.
func Install(sig linux.Signal) error {
	return global.Install(sig)
}

// SetDumpFD configures the process-wide banner descriptor.
func SetDumpFD(fdno int) {
	global.SetDumpFD(fdno)
}

// SetDumpFile configures the process-wide stack-dump path.
func SetDumpFile(path string) {
	global.SetDumpFile(path)
}

// RegisterOnSignal registers the process-wide signal callback.
func RegisterOnSignal(cb OnSignal, ctx unsafe.Pointer) {
	global.RegisterOnSignal(cb, ctx)
}

// SetChain sets a timed chain rule on the process-wide dispatcher.
func SetChain(from, to, wait linux.Signal, sleepSeconds uint32) {
	global.SetChain(from, to, wait, sleepSeconds)
}

// SetChainPipe sets a pipe-form chain rule on the process-wide dispatcher.
func SetChainPipe(from linux.Signal, writerFD, readerFD int) {
	global.SetChainPipe(from, writerFD, readerFD)
}

// DumpPreviousStacktrace writes the previous run's stacktrace to the
// process-wide banner descriptor.
func DumpPreviousStacktrace() int {
	return global.DumpPreviousStacktrace()
}

// PreviousStacktraceText returns the previous run's rendered stacktrace.
func PreviousStacktraceText() string {
	return global.PreviousStacktraceText()
}
