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
	"testing"

	"github.com/google/go-cmp/cmp"

	"sigcore.dev/sigcore/pkg/abi/linux"
)

func TestRegistryRecordOnce(t *testing.T) {
	var r registry

	first := Disposition{Kind: DispositionIgnore}
	if !r.recordOnce(linux.SIGUSR1, first) {
		t.Fatalf("first recordOnce returned false")
	}
	if r.recordOnce(linux.SIGUSR1, Disposition{Kind: DispositionDefault}) {
		t.Fatalf("second recordOnce overwrote the first record")
	}

	got, ok := r.lookup(linux.SIGUSR1)
	if !ok {
		t.Fatalf("lookup found nothing")
	}
	if got.Kind != DispositionIgnore {
		t.Errorf("lookup: got kind %v, wanted %v", got.Kind, DispositionIgnore)
	}
}

func TestRegistryUnrecorded(t *testing.T) {
	var r registry
	if _, ok := r.lookup(linux.SIGUSR2); ok {
		t.Errorf("lookup of an unrecorded signal succeeded")
	}
	if r.recorded(linux.SIGUSR2) {
		t.Errorf("recorded() true for an unrecorded signal")
	}
}

func TestRegistryRejectsBadSignals(t *testing.T) {
	var r registry
	for _, sig := range []linux.Signal{0, -1, linux.SignalIndexMaximum} {
		if r.recordOnce(sig, Disposition{Kind: DispositionIgnore}) {
			t.Errorf("recordOnce(%d) succeeded", sig)
		}
		if _, ok := r.lookup(sig); ok {
			t.Errorf("lookup(%d) succeeded", sig)
		}
	}
}

func TestChainTableSetAndLookup(t *testing.T) {
	var ct chainTable

	ct.setChain(linux.SIGUSR1, linux.SIGUSR2, -1, 0)
	r := ct.rule(linux.SIGUSR1)
	if r == nil {
		t.Fatalf("rule not found after setChain")
	}
	want := ChainRule{From: linux.SIGUSR1, To: linux.SIGUSR2, Wait: -1}
	if diff := cmp.Diff(want, *r); diff != "" {
		t.Errorf("rule mismatch (-want +got):\n%s", diff)
	}
}

func TestChainTableOverwrite(t *testing.T) {
	var ct chainTable

	ct.setChain(linux.SIGUSR1, linux.SIGUSR2, -1, 0)
	ct.setChain(linux.SIGUSR1, -1, linux.SIGUSR2, 3)

	r := ct.rule(linux.SIGUSR1)
	if r == nil {
		t.Fatalf("rule not found after overwrite")
	}
	if r.To > 0 || r.Wait != linux.SIGUSR2 || r.SleepSeconds != 3 {
		t.Errorf("overwrite did not take: %+v", *r)
	}
}

func TestChainTableConsistency(t *testing.T) {
	var ct chainTable

	// A stored rule whose From does not match its key is treated as absent.
	ct.timed[linux.SIGUSR1].Store(&ChainRule{From: linux.SIGUSR2, To: linux.SIGTERM})
	if r := ct.rule(linux.SIGUSR1); r != nil {
		t.Errorf("inconsistent rule was returned: %+v", *r)
	}

	ct.piped[linux.SIGUSR1].Store(&PipeRule{From: linux.SIGUSR2, WriterFD: 1, ReaderFD: 2})
	if r := ct.pipeRule(linux.SIGUSR1); r != nil {
		t.Errorf("inconsistent pipe rule was returned: %+v", *r)
	}
}

func TestChainTableNoRule(t *testing.T) {
	var ct chainTable
	if r := ct.rule(linux.SIGUSR1); r != nil {
		t.Errorf("empty table returned a rule: %+v", *r)
	}
	if r := ct.rule(0); r != nil {
		t.Errorf("signal 0 returned a rule: %+v", *r)
	}
}

func TestChainTableSnapshot(t *testing.T) {
	var ct chainTable
	ct.setChain(linux.SIGUSR1, linux.SIGUSR2, -1, 0)
	ct.setChain(linux.SIGTERM, -1, -1, 5)

	rules := ct.snapshot()
	if len(rules) != 2 {
		t.Fatalf("snapshot: got %d rules, wanted 2", len(rules))
	}
	if rules[linux.SIGUSR1].To != linux.SIGUSR2 {
		t.Errorf("snapshot[SIGUSR1]: %+v", rules[linux.SIGUSR1])
	}

	sigs := ct.chainedSignals()
	if len(sigs) != 2 {
		t.Errorf("chainedSignals: got %v, wanted 2 signals", sigs)
	}
}

func TestDispositionKindString(t *testing.T) {
	for kind, want := range map[DispositionKind]string{
		DispositionDefault: "default",
		DispositionIgnore:  "ignore",
		DispositionAction:  "action",
		DispositionHandler: "handler",
		DispositionHost:    "host",
		DispositionRaw:     "raw",
		DispositionKind(99): "invalid",
	} {
		if got := kind.String(); got != want {
			t.Errorf("String(%d): got %q, wanted %q", int(kind), got, want)
		}
	}
}

func TestDispositionFromSigAction(t *testing.T) {
	const runtimeHandler = 0xdeadbeef

	for _, tc := range []struct {
		name string
		sa   linux.SigAction
		want DispositionKind
	}{
		{"default", linux.SigAction{Handler: linux.SIG_DFL}, DispositionDefault},
		{"ignore", linux.SigAction{Handler: linux.SIG_IGN}, DispositionIgnore},
		{"host", linux.SigAction{Handler: runtimeHandler}, DispositionHost},
		{"raw", linux.SigAction{Handler: 0x1234, Flags: linux.SA_SIGINFO}, DispositionRaw},
	} {
		got := dispositionFromSigAction(tc.sa, runtimeHandler)
		if got.Kind != tc.want {
			t.Errorf("%s: got kind %v, wanted %v", tc.name, got.Kind, tc.want)
		}
		if tc.want == DispositionRaw && got.Raw != tc.sa {
			t.Errorf("%s: raw sigaction not preserved", tc.name)
		}
	}
}
