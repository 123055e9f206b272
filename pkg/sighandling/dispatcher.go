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
	"os"
	"os/signal"
	"runtime"
	"sync/atomic"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"

	"sigcore.dev/sigcore/pkg/abi/linux"
	"sigcore.dev/sigcore/pkg/atomicbitops"
	"sigcore.dev/sigcore/pkg/log"
	"sigcore.dev/sigcore/pkg/safeio"
	"sigcore.dev/sigcore/pkg/stacktrace"
	"sigcore.dev/sigcore/pkg/sync"
)

// WaitStrategy selects how the chain's wait step blocks for its signal.
type WaitStrategy int32

const (
	// WaitPoll re-checks the seen flag every pollInterval. This is the
	// portable default.
	WaitPoll WaitStrategy = iota

	// WaitSuspend blocks in rt_sigsuspend(2) between checks of the seen
	// flag. Linux only; a delivery that lands between the check and the
	// suspend is not recovered until the next delivery, which is why this
	// is not the default.
	WaitSuspend
)

// pollInterval is the granularity of the chain's wait step.
const pollInterval = time.Second

// altStackFactor is the size of the process's alternate signal stack in
// units of SIGSTKSZ. Foreign handlers reached through delegation run on
// this stack; it is sized far beyond any reasonable consumer.
const altStackFactor = 100

// callbackRegistration pairs the user callback with its opaque context so
// both are swapped in a single atomic store.
type callbackRegistration struct {
	fn  OnSignal
	ctx unsafe.Pointer
}

// raiseRequest asks the raise thread to deliver sig with sa installed, or
// with SIG_DFL if sa is nil.
type raiseRequest struct {
	sig  linux.Signal
	sa   *linux.SigAction
	done chan struct{}
}

// Manager owns the process-wide dispatcher state: the disposition registry,
// the chain tables, the seen flags and the delivery plumbing. The OS grants
// one disposition per signal, so one Manager serves the process; Global
// returns it. Separate Managers exist only in tests.
type Manager struct {
	// mu serializes installers. The delivery path never takes it.
	mu sync.Mutex

	registry registry
	chains   chainTable
	store    *stacktrace.Store

	userCB atomic.Pointer[callbackRegistration]

	// seen records, per signal number, that a delivery has been observed.
	// Written by the dispatcher, read and cleared by the wait loop.
	seen [linux.SignalIndexMaximum]atomicbitops.Bool

	waitStrategy atomicbitops.Int32

	// hostHandler is the Go runtime's signal handler address, captured once
	// so recorded dispositions pointing at it are classified as host-owned.
	hostHandler func() uint64

	deliverOnce sync.Once
	deliveries  chan os.Signal

	raiseOnce sync.Once
	raiseErr  error
	raiseCh   chan raiseRequest
}

// NewManager returns a Manager with its own store and no installed signals.
// Production code uses Global; separate managers are for tests.
func NewManager(store *stacktrace.Store) *Manager {
	m := &Manager{store: store}
	m.hostHandler = sync.OnceValue(runtimeSignalHandler)
	return m
}

// Store returns the stacktrace store the dispatcher writes through.
func (m *Manager) Store() *stacktrace.Store {
	return m.store
}

// SetWaitStrategy selects how the chain's wait step blocks.
func (m *Manager) SetWaitStrategy(s WaitStrategy) {
	m.waitStrategy.Store(int32(s))
}

// dispatch is the installed disposition. It runs, strictly in order: the
// banner and stack dump, the user callback, the chain, and delegation to the
// prior disposition of sig. No failures propagate out; this is the signal
// path.
func (m *Manager) dispatch(sig linux.Signal, info *linux.SignalInfo, ucontext unsafe.Pointer) {
	m.store.WriteOnSignal(int(sig))

	// Single snapshot of the callback registration; the fields never change
	// independently.
	if reg := m.userCB.Load(); reg != nil && reg.fn != nil {
		reg.fn(reg.ctx, m.store.DumpFD(), sig, info, ucontext)
	}

	m.runChain(sig, info, ucontext)

	m.delegate(sig, info, ucontext)
}

// runChain marks sig seen and evaluates its chain rules: pipe wake-up, then
// the timed rule's to/wait/sleep steps in that order. A chained invocation
// of to delegates straight to to's prior disposition; it does not re-enter
// the banner or the user callback.
func (m *Manager) runChain(sig linux.Signal, info *linux.SignalInfo, ucontext unsafe.Pointer) {
	if !sig.IsIndexable() {
		return
	}
	m.seen[sig].Store(true)

	if pr := m.chains.pipeRule(sig); pr != nil {
		// One native-endian word holding the signal number. Pipe readers see
		// the number; an eventfd coalesces deliveries into its counter.
		var word [8]byte
		binary.NativeEndian.PutUint64(word[:], uint64(sig))
		safeio.WriteBytes(pr.WriterFD, word[:])
	}

	r := m.chains.rule(sig)
	if r == nil {
		return
	}
	if r.To > 0 && r.To != sig {
		m.delegate(r.To, info, ucontext)
	}
	if r.Wait > 0 && r.Wait != sig {
		m.waitFor(r.Wait)
	}
	if r.SleepSeconds > 0 {
		time.Sleep(time.Duration(r.SleepSeconds) * time.Second)
	}
}

// waitFor blocks until wait is seen, then clears the flag. Any pre-existing
// observation of wait is discarded: the wait starts now.
func (m *Manager) waitFor(wait linux.Signal) {
	if !wait.IsIndexable() {
		return
	}
	suspend := WaitStrategy(m.waitStrategy.Load()) == WaitSuspend

	m.seen[wait].Store(false)
	for {
		if m.seen[wait].Swap(false) {
			return
		}
		if suspend {
			if err := waitSigsuspend(wait); err == nil {
				continue
			}
			// Fall through to the poll granularity on any failure.
		}
		time.Sleep(pollInterval)
	}
}

// delegate invokes the prior disposition of sig. Unrecorded signals fall
// through silently; the dispatcher never raises what it has no record of.
func (m *Manager) delegate(sig linux.Signal, info *linux.SignalInfo, ucontext unsafe.Pointer) {
	d, ok := m.registry.lookup(sig)
	if !ok {
		return
	}
	switch d.Kind {
	case DispositionAction:
		d.Action(sig, info, ucontext)
	case DispositionHandler:
		d.Handler(sig)
	case DispositionIgnore:
		// SIG_IGN: nothing to do.
	case DispositionHost:
		// The Go runtime saw the delivery before we did.
	case DispositionDefault:
		m.raiseWith(sig, nil)
	case DispositionRaw:
		sa := d.Raw
		m.raiseWith(sig, &sa)
	}
}

// raiseLog caps delegation-failure noise: a failing raise tends to fail at
// the rate the signal arrives.
var raiseLog = log.BasicRateLimitedLogger(30 * time.Second)

// raiseWith hands sig to the raise thread with the given sigaction in
// force, or SIG_DFL when sa is nil, and blocks until the raise happened.
func (m *Manager) raiseWith(sig linux.Signal, sa *linux.SigAction) {
	if err := m.ensureRaiser(); err != nil {
		raiseLog.Warningf("sighandling: cannot delegate %v: %v", sig, err)
		return
	}
	req := raiseRequest{sig: sig, sa: sa, done: make(chan struct{})}
	m.raiseCh <- req
	<-req.done
}

// ensureRaiser starts the raise thread on first use: a locked OS thread
// that owns the process's alternate signal stack and performs every
// restore-and-reraise, so foreign handlers run on a thread whose identity
// and stack we control.
func (m *Manager) ensureRaiser() error {
	m.raiseOnce.Do(func() {
		ready := make(chan error)
		m.raiseCh = make(chan raiseRequest)
		go m.raiseLoop(ready)
		m.raiseErr = <-ready
	})
	return m.raiseErr
}

func (m *Manager) raiseLoop(ready chan<- error) {
	runtime.LockOSThread()
	// An alternate stack sized for foreign consumers, established once and
	// never freed.
	if err := m.setupAltStack(); err != nil && err != unix.ENOSYS {
		ready <- err
		return
	}
	ready <- nil

	for req := range m.raiseCh {
		m.raiseOne(req)
		close(req.done)
	}
}

func (m *Manager) setupAltStack() error {
	size := altStackFactor * linux.SIGSTKSZ
	base, err := allocSignalStack(size)
	if err != nil {
		return err
	}
	ss := linux.SignalStack{Addr: uint64(base), Size: uint64(size)}
	return sigaltstackSet(&ss)
}

// raiseOne delivers req.sig to the raise thread with the requested
// disposition in force. For a raw prior handler the current (runtime)
// disposition is restored afterwards; for SIG_DFL it is not, matching the
// reset-and-raise contract.
func (m *Manager) raiseOne(req raiseRequest) {
	sig := req.sig

	var saved linux.SigAction
	savedOK := sigactionRead(sig, &saved) == nil

	target := req.sa
	if target == nil {
		// Reset first so the runtime and os/signal stop routing sig, then
		// make sure the kernel agrees.
		signal.Reset(unix.Signal(sig))
		target = &linux.SigAction{Handler: linux.SIG_DFL}
	}
	if err := sigactionWrite(sig, target); err != nil {
		// Without rt_sigaction, signal.Reset above is the only reset there
		// is; SIG_DFL re-raises still proceed.
		if req.sa != nil || err != unix.ENOSYS {
			raiseLog.Warningf("sighandling: cannot restore disposition for %v: %v", sig, err)
			return
		}
	}

	unblock := linux.SignalSetOf(sig)
	rtSigprocmask(linux.SIG_UNBLOCK, &unblock, nil)
	if err := raiseThread(sig); err != nil {
		raiseLog.Warningf("sighandling: raise of %v failed: %v", sig, err)
	}

	if req.sa != nil && savedOK {
		sigactionWrite(sig, &saved)
	}
}

// deliverLoop drains the runtime's signal channel. Every delivery gets its
// own goroutine: a chain wait in one delivery must not stall the delivery
// that satisfies it.
func (m *Manager) deliverLoop() {
	for s := range m.deliveries {
		sig, ok := s.(unix.Signal)
		if !ok {
			continue
		}
		go m.deliverOne(linux.Signal(sig))
	}
}

func (m *Manager) deliverOne(sig linux.Signal) {
	// os/signal does not expose the kernel's siginfo, so deliveries carry a
	// synthesized record: the signal number with SI_USER provenance and no
	// ucontext.
	var info linux.SignalInfo
	info.Signo = int32(sig)
	info.Code = linux.SI_USER
	m.dispatch(sig, &info, nil)
}
