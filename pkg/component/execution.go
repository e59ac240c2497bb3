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
	"errors"
	"sync/atomic"
	"time"

	"github.com/united-manufacturing-hub/component-manager/pkg/runner"
)

// ExecutionState is guarded by the instance's execution lock.
type ExecutionState struct {
	// shutDown never goes back to false.
	shutDown bool
	// runtime is non-nil exactly while the instance runs.
	runtime *Runtime
}

func (e *ExecutionState) IsShutDown() bool {
	return e.shutDown
}

func (e *ExecutionState) IsRunning() bool {
	return e.runtime != nil
}

// Runtime is the live part of a running instance.
type Runtime struct {
	// controller is nil for programs without a control channel.
	controller  runner.Controller
	startedAt   time.Time
	startReason StartReason

	// stopRequested is set before a stop is sent so the exit watcher can
	// tell a requested exit from a crash.
	stopRequested atomic.Bool

	cancelWatcher context.CancelFunc
}

func newRuntime(controller runner.Controller, reason StartReason) *Runtime {
	return &Runtime{
		controller:    controller,
		startedAt:     time.Now(),
		startReason:   reason,
		cancelWatcher: func() {},
	}
}

func (r *Runtime) StartedAt() time.Time {
	return r.startedAt
}

func (r *Runtime) StartReason() StartReason {
	return r.startReason
}

// watchExit calls onExit once if the control channel closes without a
// stop having been requested. Releasing the runtime disarms it.
func (r *Runtime) watchExit(onExit func()) {
	if r.controller == nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	r.cancelWatcher = cancel

	go func() {
		select {
		case <-ctx.Done():
			return
		case <-r.controller.Closed():
		}

		if ctx.Err() != nil || r.stopRequested.Load() {
			return
		}

		onExit()
	}()
}

// release disarms the exit watcher. It must be called when the runtime is
// dropped.
func (r *Runtime) release() {
	r.cancelWatcher()
}

// exitErr returns the exit error of the program if its controller reports one.
func (r *Runtime) exitErr() error {
	if reporter, ok := r.controller.(runner.ExitReporter); ok {
		return reporter.Err()
	}

	return nil
}

// StopOutcome is the result of the stop handshake with a controller.
type StopOutcome string

const (
	// StopOutcomeNoController means the instance had no control channel.
	StopOutcomeNoController StopOutcome = "no_controller"
	// StopOutcomeAlreadyStopped means the channel closed before any request.
	StopOutcomeAlreadyStopped StopOutcome = "already_stopped"
	StopOutcomeStopped        StopOutcome = "stopped"
	StopOutcomeKilled         StopOutcome = "killed"
	// StopOutcomeKilledAfterTimeout means the kill was sent but the channel
	// did not close within the kill timeout.
	StopOutcomeKilledAfterTimeout StopOutcome = "killed_after_timeout"
	// StopOutcomeStoppedWithTimeoutRace means the program exited between the
	// stop timeout firing and the kill being sent.
	StopOutcomeStoppedWithTimeoutRace StopOutcome = "stopped_with_timeout_race"
)

// StopController asks c to stop and escalates to kill once stopTimeout
// passes. A send failing with runner.ErrChannelClosed is not an error; any
// other send failure is returned.
func StopController(c runner.Controller, stopTimeout, killTimeout time.Duration) (StopOutcome, error) {
	if c == nil {
		return StopOutcomeNoController, nil
	}

	select {
	case <-c.Closed():
		return StopOutcomeAlreadyStopped, nil
	default:
	}

	if err := c.Stop(); err != nil {
		if errors.Is(err, runner.ErrChannelClosed) {
			return StopOutcomeAlreadyStopped, nil
		}

		return "", err
	}

	stopTimer := time.NewTimer(stopTimeout)
	defer stopTimer.Stop()

	select {
	case <-c.Closed():
		return StopOutcomeStopped, nil
	case <-stopTimer.C:
	}

	if err := c.Kill(); err != nil {
		if errors.Is(err, runner.ErrChannelClosed) {
			return StopOutcomeStoppedWithTimeoutRace, nil
		}

		return "", err
	}

	killTimer := time.NewTimer(killTimeout)
	defer killTimer.Stop()

	select {
	case <-c.Closed():
		return StopOutcomeKilled, nil
	case <-killTimer.C:
		return StopOutcomeKilledAfterTimeout, nil
	}
}
