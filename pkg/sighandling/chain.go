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
	"sync/atomic"

	"golang.org/x/exp/maps"

	"sigcore.dev/sigcore/pkg/abi/linux"
)

// ChainRule directs what the dispatcher does after the user callback when
// its From signal is delivered: invoke the prior disposition of To, block
// until Wait has been seen, then sleep SleepSeconds.
//
// A To or Wait value <= 0 disables that step. Self references (To == From,
// Wait == From) are ignored at evaluation time.
type ChainRule struct {
	// From is the signal the rule fires on. A stored rule whose From does
	// not match the key it is stored under is treated as absent.
	From linux.Signal

	// To is the signal whose prior disposition is invoked, <= 0 for none.
	To linux.Signal

	// Wait is the signal to block for, <= 0 for none.
	Wait linux.Signal

	// SleepSeconds is how long to sleep after To and Wait.
	SleepSeconds uint32
}

// PipeRule is the pipe form of a chain rule: on delivery of From the
// dispatcher writes one native-endian 8-byte word holding the signal number
// to WriterFD. Consumers block on ReaderFD.
type PipeRule struct {
	// From is the signal the rule fires on, with the same consistency
	// requirement as ChainRule.From.
	From linux.Signal

	// WriterFD is written one 8-byte word per delivery of From.
	WriterFD int

	// ReaderFD is the read side handed to waiters.
	ReaderFD int
}

// chainTable holds the process-wide chain rules. Both forms may coexist for
// the same signal. Writers overwrite whole rules under the installer's lock;
// the delivery path reads pointers atomically and never locks.
type chainTable struct {
	timed [linux.SignalIndexMaximum]atomic.Pointer[ChainRule]
	piped [linux.SignalIndexMaximum]atomic.Pointer[PipeRule]
}

// setChain stores the timed rule for from, overwriting any previous one.
func (t *chainTable) setChain(from, to, wait linux.Signal, sleepSeconds uint32) {
	if !from.IsIndexable() {
		return
	}
	t.timed[from].Store(&ChainRule{
		From:         from,
		To:           to,
		Wait:         wait,
		SleepSeconds: sleepSeconds,
	})
}

// setChainPipe stores the pipe rule for from, overwriting any previous one.
func (t *chainTable) setChainPipe(from linux.Signal, writerFD, readerFD int) {
	if !from.IsIndexable() {
		return
	}
	t.piped[from].Store(&PipeRule{
		From:     from,
		WriterFD: writerFD,
		ReaderFD: readerFD,
	})
}

// rule returns the timed rule for sig, or nil if none is stored or the
// stored rule is inconsistent with its key.
func (t *chainTable) rule(sig linux.Signal) *ChainRule {
	if !sig.IsIndexable() {
		return nil
	}
	r := t.timed[sig].Load()
	if r == nil || r.From != sig {
		return nil
	}
	return r
}

// pipeRule returns the pipe rule for sig under the same consistency rule.
func (t *chainTable) pipeRule(sig linux.Signal) *PipeRule {
	if !sig.IsIndexable() {
		return nil
	}
	r := t.piped[sig].Load()
	if r == nil || r.From != sig {
		return nil
	}
	return r
}

// snapshot returns the currently stored timed rules keyed by signal. It is
// for introspection and logging, not for the delivery path.
func (t *chainTable) snapshot() map[linux.Signal]ChainRule {
	rules := make(map[linux.Signal]ChainRule)
	for sig := linux.Signal(1); sig < linux.SignalIndexMaximum; sig++ {
		if r := t.rule(sig); r != nil {
			rules[sig] = *r
		}
	}
	return rules
}

// chainedSignals returns the signals that currently have a timed rule, in
// unspecified order.
func (t *chainTable) chainedSignals() []linux.Signal {
	return maps.Keys(t.snapshot())
}
