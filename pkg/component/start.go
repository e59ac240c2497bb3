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

	"golang.org/x/sync/errgroup"

	"github.com/united-manufacturing-hub/component-manager/pkg/decl"
	"github.com/united-manufacturing-hub/component-manager/pkg/hooks"
	"github.com/united-manufacturing-hub/component-manager/pkg/runner"
)

func (c *ComponentInstance) start(ctx context.Context, reason StartReason) error {
	resolved, err := c.Resolve(ctx)
	if err != nil {
		return err
	}

	c.stateLock.RLock()
	program := resolved.decl.Program
	eager := c.eagerChildren(resolved)
	c.stateLock.RUnlock()

	run, err := c.runnerFor(program)
	if err != nil {
		return &StartError{Moniker: c.moniker.String(), Err: err}
	}

	c.executionLock.Lock()

	if c.execution.shutDown {
		c.executionLock.Unlock()

		return &StartError{Moniker: c.moniker.String(), Err: ErrInstanceShutDown}
	}

	if c.execution.runtime != nil {
		c.executionLock.Unlock()

		return nil
	}

	info := runner.StartInfo{
		URL:             c.url,
		Moniker:         c.moniker.String(),
		NumberedHandles: c.numberedHandles,
		Router:          c.model.router,
		Target:          c.target(),
	}
	if program != nil {
		info.Program = *program
	}

	controller, err := run.Start(ctx, info)
	if err != nil {
		c.executionLock.Unlock()

		return &StartError{Moniker: c.moniker.String(), Err: err}
	}

	c.numberedHandles = nil
	rt := newRuntime(controller, reason)
	rt.watchExit(func() { c.onUnexpectedExit(rt) })
	c.execution.runtime = rt

	c.executionLock.Unlock()

	c.logger.Infow("component_started", "reason", reason, "url", c.url)

	if err := c.dispatch(ctx, hooks.EventRunning, &hooks.RunningPayload{
		StartReason: string(reason),
		StartedAt:   rt.startedAt,
	}); err != nil {
		return err
	}

	var g errgroup.Group
	for _, child := range eager {
		g.Go(func() error {
			return child.Register(ctx, StartAction(StartReasonEager))
		})
	}

	return g.Wait()
}

// runnerFor picks the runner for program. Components without a program get
// the null runner.
func (c *ComponentInstance) runnerFor(program *decl.Program) (runner.Runner, error) {
	if program == nil || program.Runner == "" {
		return runner.Null{}, nil
	}

	return c.environment.Runner(program.Runner)
}

// eagerChildren must be called with the state lock held.
func (c *ComponentInstance) eagerChildren(resolved *ResolvedInstanceState) []*ComponentInstance {
	var out []*ComponentInstance

	for _, cm := range resolved.liveChildMonikers() {
		child := resolved.children[cm]
		if !cm.IsDynamic() && child.startup == decl.StartupEager {
			out = append(out, child)
		}
	}

	return out
}
