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

package atomicbitops

import (
	"testing"

	"sigcore.dev/sigcore/pkg/sync"
)

func TestBool(t *testing.T) {
	b := FromBool(true)
	if !b.Load() {
		t.Errorf("Load: got false, wanted true")
	}
	if !b.Swap(false) {
		t.Errorf("Swap: got false, wanted true")
	}
	if b.Load() {
		t.Errorf("Load after Swap: got true, wanted false")
	}
	b.Store(true)
	if !b.Load() {
		t.Errorf("Load after Store: got false, wanted true")
	}
}

func TestBoolConcurrentWriterReader(t *testing.T) {
	// One writer, one reader, as the seen flags are used.
	var b Bool
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			b.Store(true)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			b.Load()
		}
	}()
	wg.Wait()
	if !b.Load() {
		t.Errorf("final Load: got false, wanted true")
	}
}

func TestUint32(t *testing.T) {
	u := FromUint32(3)
	if got := u.Add(4); got != 7 {
		t.Errorf("Add: got %d, wanted 7", got)
	}
	if got := u.Swap(1); got != 7 {
		t.Errorf("Swap: got %d, wanted 7", got)
	}
	if !u.CompareAndSwap(1, 2) {
		t.Errorf("CompareAndSwap(1, 2): got false, wanted true")
	}
	if u.CompareAndSwap(1, 3) {
		t.Errorf("CompareAndSwap(1, 3): got true, wanted false")
	}
	if got := u.Load(); got != 2 {
		t.Errorf("Load: got %d, wanted 2", got)
	}
}

func TestInt32(t *testing.T) {
	i := FromInt32(-1)
	if got := i.Load(); got != -1 {
		t.Errorf("Load: got %d, wanted -1", got)
	}
	if got := i.Swap(5); got != -1 {
		t.Errorf("Swap: got %d, wanted -1", got)
	}
	i.Store(9)
	if got := i.Load(); got != 9 {
		t.Errorf("Load after Store: got %d, wanted 9", got)
	}
}

func TestUint64(t *testing.T) {
	var u Uint64
	u.Store(10)
	if got := u.Add(5); got != 15 {
		t.Errorf("Add: got %d, wanted 15", got)
	}
	if got := u.Load(); got != 15 {
		t.Errorf("Load: got %d, wanted 15", got)
	}
}
