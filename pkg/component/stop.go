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

	"golang.org/x/sync/errgroup"

	"github.com/united-manufacturing-hub/component-manager/pkg/decl"
	"github.com/united-manufacturing-hub/component-manager/pkg/hooks"
	"github.com/united-manufacturing-hub/component-manager/pkg/metrics"
	"github.com/united-manufacturing-hub/component-manager/pkg/moniker"
	"github.com/united-manufacturing-hub/component-manager/pkg/sentry"
)

// stopInstance stops the program of the instance. With recursive set, the
// children are stopped first. shutDown marks the instance as permanently
// shut down. Children in collections are deleted once the instance stopped.
func (c *ComponentInstance) stopInstance(ctx context.Context, shutDown, recursive bool) error {
	if recursive {
		var g errgroup.Group
		for _, child := range c.Children() {
			g.Go(func() error {
				return child.Register(ctx, StopAction())
			})
		}

		if err := g.Wait(); err != nil {
			return err
		}
	}

	c.executionLock.Lock()
	c.execution.shutDown = c.execution.shutDown || shutDown
	rt := c.execution.runtime
	c.executionLock.Unlock()

	var firstErr error

	if rt != nil {
		rt.stopRequested.Store(true)

		outcome, err := StopController(rt.controller, c.environment.StopTimeout(), c.model.killTimeout)
		if err != nil {
			rt.stopRequested.Store(false)

			return &StopError{Moniker: c.moniker.String(), Err: err}
		}

		metrics.RecordStopOutcome(string(outcome))

		c.executionLock.Lock()
		if c.execution.runtime == rt {
			c.execution.runtime = nil
		}
		c.executionLock.Unlock()

		rt.release()

		switch outcome {
		case StopOutcomeKilled, StopOutcomeKilledAfterTimeout, StopOutcomeStoppedWithTimeoutRace:
			c.logger.Warnw("stop_escalated_to_kill", "outcome", outcome, "stop_timeout", c.environment.StopTimeout())
		default:
			c.logger.Infow("component_stopped", "outcome", outcome)
		}

		firstErr = c.dispatch(ctx, hooks.EventStopped, &hooks.StoppedPayload{Outcome: string(outcome)})
	}

	if err := c.deleteCollectionChildren(ctx); err != nil && firstErr == nil {
		firstErr = err
	}

	if rt != nil && c.durability == decl.DurabilitySingleRun {
		c.scheduleSingleRunDestroy()
	}

	return firstErr
}

// deleteCollectionChildren deletes every child that lives in a collection.
// Collections only hold transient or single-run children, neither of which
// outlives its parent's run.
func (c *ComponentInstance) deleteCollectionChildren(ctx context.Context) error {
	c.stateLock.RLock()

	var dynamic []moniker.ChildMoniker

	if c.state.resolved != nil {
		for _, cm := range c.state.resolved.childMonikers() {
			if cm.IsDynamic() {
				dynamic = append(dynamic, cm)
			}
		}
	}

	c.stateLock.RUnlock()

	var g errgroup.Group
	for _, cm := range dynamic {
		g.Go(func() error {
			return c.Register(ctx, DeleteChildAction(cm))
		})
	}

	return g.Wait()
}

// scheduleSingleRunDestroy has the parent delete this instance in the
// background. Nobody waits on it, so failures are only reported.
func (c *ComponentInstance) scheduleSingleRunDestroy() {
	parent, err := c.Parent()
	if err != nil {
		c.logger.Debugw("single_run_destroy_skipped", "error", err)

		return
	}

	cm := c.ChildMoniker()

	spawned := parent.tasks.Spawn(func(ctx context.Context) {
		err := parent.Register(ctx, DeleteChildAction(cm))
		if err == nil || errors.Is(err, context.Canceled) {
			return
		}

		parent.logger.Warnw("single_run_destroy_failed", "child", cm.String(), "error", err)
		sentry.ReportInstanceError(parent.logger, c.moniker.String(), ActionDeleteChild.String(), err)
	})
	if !spawned {
		c.logger.Debugw("single_run_destroy_skipped", "reason", "parent task group closed")
	}
}

// onUnexpectedExit runs when the program went away without being asked to.
func (c *ComponentInstance) onUnexpectedExit(rt *Runtime) {
	c.logger.Warnw("component_exited_unexpectedly", "error", rt.exitErr(), "on_terminate", c.onTerminate)

	c.tasks.Spawn(func(ctx context.Context) {
		if c.onTerminate == decl.OnTerminateReboot {
			c.model.requestReboot(ctx, c)
		}

		err := c.Register(ctx, StopAction())
		if err == nil || errors.Is(err, context.Canceled) {
			return
		}

		sentry.ReportInstanceError(c.logger, c.moniker.String(), ActionStop.String(), err)
	})
}
