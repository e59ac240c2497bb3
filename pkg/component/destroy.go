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
	"github.com/united-manufacturing-hub/component-manager/pkg/routing"
)

// markDeleting takes child out of the live set. A child that is not live is
// left alone.
func (c *ComponentInstance) markDeleting(ctx context.Context, cm moniker.ChildMoniker) error {
	c.stateLock.RLock()

	var child *ComponentInstance

	if c.state.resolved != nil {
		if live, ok := c.state.resolved.liveChildren[cm.ChildName]; ok && live.id == cm.InstanceID {
			child = live.inst
		}
	}

	c.stateLock.RUnlock()

	if child == nil {
		return nil
	}

	if err := child.dispatch(ctx, hooks.EventMarkedForDestruction, nil); err != nil {
		return err
	}

	c.stateLock.Lock()
	if c.state.resolved != nil {
		c.state.resolved.removeLive(cm)
	}
	c.stateLock.Unlock()

	return nil
}

// deleteChild destroys child and removes it. Racing deletions of the same
// child coalesce, and a child that is already gone is not touched.
//
// The child stays in the tree until Destroyed was delivered, so a failed
// notification is sent again by the next deletion.
func (c *ComponentInstance) deleteChild(ctx context.Context, cm moniker.ChildMoniker) error {
	if err := c.Register(ctx, MarkDeletingAction(cm)); err != nil {
		return err
	}

	child, ok := c.getChild(cm)
	if !ok {
		return nil
	}

	if err := child.Register(ctx, DestroyAction()); err != nil {
		return err
	}

	if err := child.dispatch(ctx, hooks.EventDestroyed, nil); err != nil {
		return err
	}

	c.stateLock.Lock()
	if c.state.resolved != nil {
		c.state.resolved.removeChild(cm)
	}
	c.stateLock.Unlock()

	return nil
}

// destroy shuts the instance down, deletes every child, releases storage
// and purges the instance.
func (c *ComponentInstance) destroy(ctx context.Context) error {
	if c.LifecycleState() == StatePurged {
		return nil
	}

	if err := c.Register(ctx, ShutdownAction()); err != nil {
		return &DestroyError{Moniker: c.moniker.String(), Err: err}
	}

	c.stateLock.RLock()

	var (
		children []moniker.ChildMoniker
		storage  []decl.Use
	)

	if c.state.resolved != nil {
		children = c.state.resolved.childMonikers()
		storage = c.state.resolved.decl.StorageUses()
	}

	c.stateLock.RUnlock()

	var g errgroup.Group
	for _, cm := range children {
		g.Go(func() error {
			return c.Register(ctx, DeleteChildAction(cm))
		})
	}

	if err := g.Wait(); err != nil {
		return &DestroyError{Moniker: c.moniker.String(), Err: err}
	}

	c.deleteStorage(ctx, storage)

	c.tasks.Close()

	c.stateLock.Lock()
	if c.state.current() != StatePurged {
		c.state.setPurged(c.logger, c.moniker.String())
	}
	c.stateLock.Unlock()

	metrics.RecordInstancePurged()
	c.logger.Debugw("component_purged")

	return nil
}

// deleteStorage never fails. Tree cleanup must go on even if the storage
// could not be removed.
func (c *ComponentInstance) deleteStorage(ctx context.Context, uses []decl.Use) {
	for _, use := range uses {
		err := c.model.router.RouteAndDeleteStorage(ctx, c.target(), use)

		switch {
		case err == nil:
		case errors.Is(err, routing.ErrRouting):
			c.logger.Debugw("storage_not_deleted", "storage", use.Name, "error", err)
		default:
			c.logger.Warnw("storage_delete_failed", "storage", use.Name, "error", err)
		}
	}
}
