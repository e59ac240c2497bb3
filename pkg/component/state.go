// Copyright 2025 UMH Systems GmbH
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

package component

import (
	"context"

	"github.com/looplab/fsm"
	"go.uber.org/zap"

	"github.com/united-manufacturing-hub/component-manager/pkg/sentry"
)

// LifecycleState is the coarse lifecycle position of an instance.
type LifecycleState string

const (
	StateNew        LifecycleState = "new"
	StateDiscovered LifecycleState = "discovered"
	StateResolved   LifecycleState = "resolved"
	StatePurged     LifecycleState = "purged"
)

const (
	eventDiscover = "discover"
	eventResolve  = "resolve"
	eventPurge    = "purge"
)

// instanceState only moves forward: new -> discovered -> resolved -> purged,
// with discovered and resolved skippable. Anything else is a bug and aborts.
// Guarded by the instance's state lock.
type instanceState struct {
	machine  *fsm.FSM
	resolved *ResolvedInstanceState
}

func newInstanceState() *instanceState {
	return &instanceState{
		machine: fsm.NewFSM(
			string(StateNew),
			fsm.Events{
				{Name: eventDiscover, Src: []string{string(StateNew)}, Dst: string(StateDiscovered)},
				{Name: eventResolve, Src: []string{string(StateNew), string(StateDiscovered)}, Dst: string(StateResolved)},
				{Name: eventPurge, Src: []string{string(StateNew), string(StateDiscovered), string(StateResolved)}, Dst: string(StatePurged)},
			},
			fsm.Callbacks{},
		),
	}
}

func (s *instanceState) current() LifecycleState {
	return LifecycleState(s.machine.Current())
}

func (s *instanceState) transition(log *zap.SugaredLogger, moniker string, event string) {
	if !s.machine.Can(event) {
		sentry.ReportInstanceFatalf(log, moniker, "state_transition",
			"invalid lifecycle transition %q from state %s", event, s.current())
	}

	if err := s.machine.Event(context.Background(), event); err != nil {
		sentry.ReportInstanceFatalf(log, moniker, "state_transition",
			"lifecycle transition %q from state %s failed: %v", event, s.current(), err)
	}
}

func (s *instanceState) setDiscovered(log *zap.SugaredLogger, moniker string) {
	s.transition(log, moniker, eventDiscover)
}

func (s *instanceState) setResolved(log *zap.SugaredLogger, moniker string, resolved *ResolvedInstanceState) {
	s.transition(log, moniker, eventResolve)
	s.resolved = resolved
}

// setPurged drops the resolved content. A purged instance holds nothing.
func (s *instanceState) setPurged(log *zap.SugaredLogger, moniker string) {
	s.transition(log, moniker, eventPurge)
	s.resolved = nil
}
