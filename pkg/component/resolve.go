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
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/united-manufacturing-hub/component-manager/pkg/hooks"
	"github.com/united-manufacturing-hub/component-manager/pkg/metrics"
	"github.com/united-manufacturing-hub/component-manager/pkg/moniker"
)

// Resolve returns the resolved state, resolving the instance first if it
// is not resolved yet.
func (c *ComponentInstance) Resolve(ctx context.Context) (*ResolvedInstanceState, error) {
	if resolved, ok := c.resolvedState(); ok {
		return resolved, nil
	}

	if err := c.Register(ctx, ResolveAction()); err != nil {
		return nil, err
	}

	resolved, ok := c.resolvedState()
	if !ok {
		return nil, &ResolveError{Moniker: c.moniker.String(), URL: c.url, Err: ErrInstanceDestroyed}
	}

	return resolved, nil
}

func (c *ComponentInstance) discover(ctx context.Context) error {
	if c.LifecycleState() != StateNew {
		return nil
	}

	if err := c.dispatch(ctx, hooks.EventDiscovered, nil); err != nil {
		return err
	}

	c.stateLock.Lock()
	if c.state.current() == StateNew {
		c.state.setDiscovered(c.logger, c.moniker.String())
	}
	c.stateLock.Unlock()

	return nil
}

func (c *ComponentInstance) resolve(ctx context.Context) error {
	switch c.LifecycleState() {
	case StateResolved:
		return nil
	case StatePurged:
		return &ResolveError{Moniker: c.moniker.String(), URL: c.url, Err: ErrInstanceDestroyed}
	case StateNew:
		if err := c.Register(ctx, DiscoverAction()); err != nil {
			return err
		}
	}

	start := time.Now()

	component, err := c.environment.Resolve(ctx, c.url)
	if err == nil {
		if component.Decl == nil {
			err = errors.New("resolver returned no declaration")
		} else {
			err = component.Decl.Validate()
		}
	}

	metrics.RecordResolve(err, time.Since(start))

	if err != nil {
		return &ResolveError{Moniker: c.moniker.String(), URL: c.url, Err: err}
	}

	resolved := newResolvedInstanceState(component.Decl, component.Package, c.environment)

	for _, child := range component.Decl.Children {
		name, err := moniker.NewChildName(child.Name, "")
		if err != nil {
			return &ResolveError{Moniker: c.moniker.String(), URL: c.url, Err: err}
		}

		cm := moniker.NewChildMoniker(name, 0)
		env := resolved.environmentFor([]string{child.Environment}, c.environment)
		resolved.addChild(cm, c.newChild(cm, child, "", env, nil))
	}

	c.stateLock.Lock()

	switch c.state.current() {
	case StatePurged:
		c.stateLock.Unlock()

		return &ResolveError{Moniker: c.moniker.String(), URL: c.url, Err: ErrInstanceDestroyed}
	case StateResolved:
		c.stateLock.Unlock()

		return nil
	}

	c.state.setResolved(c.logger, c.moniker.String(), resolved)
	staticChildren := resolved.childMonikers()
	children := make([]*ComponentInstance, 0, len(staticChildren))

	for _, cm := range staticChildren {
		children = append(children, resolved.children[cm])
	}

	c.stateLock.Unlock()

	c.logger.Debugw("component_resolved", "url", c.url, "package", component.Package, "children", len(children))

	if err := c.dispatch(ctx, hooks.EventResolved, &hooks.ResolvedPayload{Decl: component.Decl}); err != nil {
		return err
	}

	var g errgroup.Group
	for _, child := range children {
		g.Go(func() error {
			return child.Register(ctx, DiscoverAction())
		})
	}

	return g.Wait()
}
