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

package bits

import (
	"reflect"
	"testing"
)

func TestMask64(t *testing.T) {
	for _, tc := range []struct {
		is   []int
		want uint64
	}{
		{nil, 0},
		{[]int{0}, 0x1},
		{[]int{0, 1}, 0x3},
		{[]int{9, 11}, 0xa00},
		{[]int{63}, 0x8000000000000000},
	} {
		if got := Mask64(tc.is...); got != tc.want {
			t.Errorf("Mask64(%v): got %#x, wanted %#x", tc.is, got, tc.want)
		}
	}
}

func TestIsOn64(t *testing.T) {
	if !IsOn64(0xf, 0x5) {
		t.Errorf("IsOn64(0xf, 0x5): got false, wanted true")
	}
	if IsOn64(0x4, 0x5) {
		t.Errorf("IsOn64(0x4, 0x5): got true, wanted false")
	}
	if !IsAnyOn64(0x4, 0x5) {
		t.Errorf("IsAnyOn64(0x4, 0x5): got false, wanted true")
	}
	if IsAnyOn64(0x2, 0x5) {
		t.Errorf("IsAnyOn64(0x2, 0x5): got true, wanted false")
	}
}

func TestForEachSetBit64(t *testing.T) {
	var got []int
	ForEachSetBit64(Mask64(1, 5, 63), func(i int) {
		got = append(got, i)
	})
	if want := []int{1, 5, 63}; !reflect.DeepEqual(got, want) {
		t.Errorf("ForEachSetBit64: got %v, wanted %v", got, want)
	}
}

func TestTrailingZeros64(t *testing.T) {
	for _, tc := range []struct {
		v    uint64
		want int
	}{
		{0, 64},
		{1, 0},
		{2, 1},
		{0x8000000000000000, 63},
	} {
		if got := TrailingZeros64(tc.v); got != tc.want {
			t.Errorf("TrailingZeros64(%#x): got %d, wanted %d", tc.v, got, tc.want)
		}
	}
}
