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
	"sigcore.dev/sigcore/pkg/abi/linux"
	"sigcore.dev/sigcore/pkg/eventfd"
)

// SetChainEventfd sets a pipe-form chain rule for from backed by a single
// eventfd: the dispatcher's write lands in the eventfd's counter and wakes
// anyone blocked in its Read or Wait. Repeated deliveries coalesce, which is
// the wanted behavior for a wake-up channel.
//
// The returned eventfd is owned by the caller; closing it disables the rule.
func (m *Manager) SetChainEventfd(from linux.Signal) (eventfd.Eventfd, error) {
	efd, err := eventfd.Create()
	if err != nil {
		return eventfd.Eventfd{}, err
	}
	m.chains.setChainPipe(from, efd.FD(), efd.FD())
	return efd, nil
}

// SetChainEventfd sets an eventfd-backed chain rule on the process-wide
// dispatcher.
func SetChainEventfd(from linux.Signal) (eventfd.Eventfd, error) {
	return global.SetChainEventfd(from)
}
