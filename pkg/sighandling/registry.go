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

	"sigcore.dev/sigcore/pkg/abi/linux"
	"sigcore.dev/sigcore/pkg/sync"
)

// registry maps each signal number to the disposition that was in force
// before the dispatcher was installed over it.
//
// Writes go through recordOnce under a mutex and happen at most once per
// signal number for the lifetime of the process. The dispatcher reads
// lock-free: recordOnce precedes the first install of the signal, which
// precedes any delivery, so every read observes a fully built value.
type registry struct {
	mu sync.Mutex

	dispositions [linux.SignalIndexMaximum]atomic.Pointer[Disposition]
}

// recordOnce records d as the prior disposition of sig. It is a no-op
// returning false if sig already has a recorded disposition.
func (r *registry) recordOnce(sig linux.Signal, d Disposition) bool {
	if !sig.IsIndexable() {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.dispositions[sig].Load() != nil {
		return false
	}
	r.dispositions[sig].Store(&d)
	return true
}

// recorded returns true if sig already has a recorded disposition.
func (r *registry) recorded(sig linux.Signal) bool {
	return sig.IsIndexable() && r.dispositions[sig].Load() != nil
}

// lookup returns the recorded prior disposition of sig. The value is copied
// out; the registry retains the stored record. Safe on the delivery path.
func (r *registry) lookup(sig linux.Signal) (Disposition, bool) {
	if !sig.IsIndexable() {
		return Disposition{}, false
	}
	d := r.dispositions[sig].Load()
	if d == nil {
		return Disposition{}, false
	}
	return *d, true
}
