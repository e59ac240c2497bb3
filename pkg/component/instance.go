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
	"fmt"
	"weak"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/united-manufacturing-hub/component-manager/pkg/decl"
	"github.com/united-manufacturing-hub/component-manager/pkg/hooks"
	"github.com/united-manufacturing-hub/component-manager/pkg/lockmanager"
	"github.com/united-manufacturing-hub/component-manager/pkg/moniker"
	"github.com/united-manufacturing-hub/component-manager/pkg/routing"
	"github.com/united-manufacturing-hub/component-manager/pkg/runner"
	"github.com/united-manufacturing-hub/component-manager/pkg/sentry"
)

// Lock levels of the four per-instance locks. See package lockmanager.
const (
	lockLevelState     lockmanager.Level = 1
	lockLevelExecution lockmanager.Level = 2
	lockLevelActions   lockmanager.Level = 3
	lockLevelTasks     lockmanager.Level = 4
)

// ComponentInstance is one node of the instance tree.
//
// A parent owns its children through its ResolvedInstanceState. The child
// only keeps a weak pointer back, so a subtree that was removed from the
// tree can be collected even while background work still refers to it.
type ComponentInstance struct {
	model *Model

	moniker     moniker.Moniker
	url         string
	startup     decl.StartupMode
	onTerminate decl.OnTerminate
	// durability of the collection the instance lives in, empty when static.
	durability  decl.Durability
	environment *Environment
	parent      weak.Pointer[ComponentInstance]
	incarnation uuid.UUID

	logger *zap.SugaredLogger

	stateLock *lockmanager.Lock
	state     *instanceState

	executionLock *lockmanager.Lock
	execution     ExecutionState
	// Handed to the first start only. Guarded by executionLock.
	numberedHandles []runner.NumberedHandle

	actions *ActionSet
	tasks   *TaskGroup
}

type instanceParams struct {
	moniker         moniker.Moniker
	url             string
	startup         decl.StartupMode
	onTerminate     decl.OnTerminate
	durability      decl.Durability
	environment     *Environment
	parent          *ComponentInstance
	numberedHandles []runner.NumberedHandle
}

func newComponentInstance(model *Model, p instanceParams) *ComponentInstance {
	name := p.moniker.InstancedString()

	inst := &ComponentInstance{
		model:           model,
		moniker:         p.moniker,
		url:             p.url,
		startup:         p.startup.OrDefault(),
		onTerminate:     p.onTerminate.OrDefault(),
		durability:      p.durability,
		environment:     p.environment,
		incarnation:     uuid.New(),
		logger:          model.instanceLogger.With("moniker", p.moniker.String()),
		stateLock:       model.locks.NewLock(name+".state", lockLevelState),
		state:           newInstanceState(),
		executionLock:   model.locks.NewLock(name+".execution", lockLevelExecution),
		numberedHandles: p.numberedHandles,
		tasks:           newTaskGroup(model.locks.NewLock(name+".tasks", lockLevelTasks)),
	}

	inst.actions = newActionSet(model.locks.NewLock(name+".actions", lockLevelActions))

	if p.parent != nil {
		inst.parent = weak.Make(p.parent)
	}

	return inst
}

// newChild builds the instance for cm under c. The caller inserts it.
func (c *ComponentInstance) newChild(cm moniker.ChildMoniker, child decl.Child, durability decl.Durability, env *Environment, handles []runner.NumberedHandle) *ComponentInstance {
	return newComponentInstance(c.model, instanceParams{
		moniker:         c.moniker.Child(cm),
		url:             child.URL,
		startup:         child.Startup,
		onTerminate:     child.OnTerminate,
		durability:      durability,
		environment:     env,
		parent:          c,
		numberedHandles: handles,
	})
}

func (c *ComponentInstance) Moniker() moniker.Moniker {
	return c.moniker
}

// ChildMoniker returns the last segment of the moniker. It is the zero value
// for the root.
func (c *ComponentInstance) ChildMoniker() moniker.ChildMoniker {
	leaf, _ := c.moniker.Leaf()

	return leaf
}

func (c *ComponentInstance) URL() string {
	return c.url
}

func (c *ComponentInstance) IncarnationID() uuid.UUID {
	return c.incarnation
}

func (c *ComponentInstance) Environment() *Environment {
	return c.environment
}

// Parent returns the parent instance, or ErrParentGone for the root and for
// instances whose parent no longer exists.
func (c *ComponentInstance) Parent() (*ComponentInstance, error) {
	parent := c.parent.Value()
	if parent == nil {
		return nil, fmt.Errorf("%w: %s", ErrParentGone, c.moniker)
	}

	return parent, nil
}

func (c *ComponentInstance) LifecycleState() LifecycleState {
	c.stateLock.RLock()
	defer c.stateLock.RUnlock()

	return c.state.current()
}

func (c *ComponentInstance) IsRunning() bool {
	c.executionLock.RLock()
	defer c.executionLock.RUnlock()

	return c.execution.IsRunning()
}

func (c *ComponentInstance) IsShutDown() bool {
	c.executionLock.RLock()
	defer c.executionLock.RUnlock()

	return c.execution.IsShutDown()
}

// Actions exposes the action set for inspection.
func (c *ComponentInstance) Actions() *ActionSet {
	return c.actions
}

func (c *ComponentInstance) Tasks() *TaskGroup {
	return c.tasks
}

// resolvedState returns the resolved content if the instance is resolved.
// The returned value must only be read under the state lock.
func (c *ComponentInstance) resolvedState() (*ResolvedInstanceState, bool) {
	c.stateLock.RLock()
	defer c.stateLock.RUnlock()

	return c.state.resolved, c.state.resolved != nil
}

// Children returns every child, including ones being deleted. It is empty
// unless the instance is resolved.
func (c *ComponentInstance) Children() map[moniker.ChildMoniker]*ComponentInstance {
	c.stateLock.RLock()
	defer c.stateLock.RUnlock()

	out := make(map[moniker.ChildMoniker]*ComponentInstance)
	if c.state.resolved == nil {
		return out
	}

	for cm, inst := range c.state.resolved.children {
		out[cm] = inst
	}

	return out
}

// LiveChildren returns the monikers of children not marked for deletion.
func (c *ComponentInstance) LiveChildren() []moniker.ChildMoniker {
	c.stateLock.RLock()
	defer c.stateLock.RUnlock()

	if c.state.resolved == nil {
		return nil
	}

	return c.state.resolved.liveChildMonikers()
}

// GetLiveChild looks up a live child by name without resolving.
func (c *ComponentInstance) GetLiveChild(name moniker.ChildName) (moniker.ChildMoniker, *ComponentInstance, bool) {
	c.stateLock.RLock()
	defer c.stateLock.RUnlock()

	if c.state.resolved == nil {
		return moniker.ChildMoniker{}, nil, false
	}

	return c.state.resolved.GetLiveChild(name)
}

func (c *ComponentInstance) getChild(cm moniker.ChildMoniker) (*ComponentInstance, bool) {
	c.stateLock.RLock()
	defer c.stateLock.RUnlock()

	if c.state.resolved == nil {
		return nil, false
	}

	return c.state.resolved.getChild(cm)
}

// Register runs action on the instance, joining an equal action already in
// flight, and waits for its result. Giving up on ctx leaves the action
// running.
func (c *ComponentInstance) Register(ctx context.Context, action Action) error {
	c.checkNoLocksHeld(action)

	return c.actions.register(c, action).Wait(ctx)
}

// RegisterNoWait runs action on the instance without waiting for it.
func (c *ComponentInstance) RegisterNoWait(action Action) Pending {
	return c.actions.register(c, action)
}

// checkNoLocksHeld aborts if the caller waits on an action while holding an
// instance lock. Such a wait can deadlock against the action body.
func (c *ComponentInstance) checkNoLocksHeld(action Action) {
	if !c.model.locks.Enabled() {
		return
	}

	if held := c.model.locks.HeldCount(); held > 0 {
		sentry.ReportInstanceFatalf(c.logger, c.moniker.String(), "register_action",
			"registering %s while holding %d instance locks", action, held)
	}
}

// perform is the single dispatch point from an action to its body.
func (c *ComponentInstance) perform(ctx context.Context, action Action) error {
	switch action.Kind {
	case ActionDiscover:
		return c.discover(ctx)
	case ActionResolve:
		return c.resolve(ctx)
	case ActionStart:
		return c.start(ctx, action.Reason)
	case ActionStop:
		return c.stopInstance(ctx, false, true)
	case ActionShutdown:
		return c.shutdown(ctx)
	case ActionMarkDeleting:
		return c.markDeleting(ctx, action.Child)
	case ActionDeleteChild:
		return c.deleteChild(ctx, action.Child)
	case ActionDestroy:
		return c.destroy(ctx)
	}

	sentry.ReportInstanceFatalf(c.logger, c.moniker.String(), "perform_action", "unknown action kind %d", int(action.Kind))

	return nil
}

func (c *ComponentInstance) target() routing.Target {
	return routing.Target{Moniker: c.moniker, IncarnationID: c.incarnation, URL: c.url}
}

func (c *ComponentInstance) dispatch(ctx context.Context, eventType hooks.EventType, payload any) error {
	err := c.model.hooks.Dispatch(ctx, hooks.Event{
		Type:          eventType,
		Moniker:       c.moniker,
		URL:           c.url,
		IncarnationID: c.incarnation,
		Payload:       payload,
	})
	if err != nil {
		return fmt.Errorf("failed to dispatch %s event for %s: %w", eventType, c.moniker, err)
	}

	return nil
}

// Start starts the instance and waits until it runs.
func (c *ComponentInstance) Start(ctx context.Context, reason StartReason) error {
	return c.Register(ctx, StartAction(reason))
}

// Stop stops the instance and its children. It can be started again.
func (c *ComponentInstance) Stop(ctx context.Context) error {
	return c.Register(ctx, StopAction())
}

// Shutdown stops the subtree in dependency order. The instance cannot be
// started afterwards.
func (c *ComponentInstance) Shutdown(ctx context.Context) error {
	return c.Register(ctx, ShutdownAction())
}

// Destroy shuts the instance down and destroys its subtree.
func (c *ComponentInstance) Destroy(ctx context.Context) error {
	return c.Register(ctx, DestroyAction())
}

// DeleteChild destroys child and removes it from the instance.
func (c *ComponentInstance) DeleteChild(ctx context.Context, child moniker.ChildMoniker) error {
	return c.Register(ctx, DeleteChildAction(child))
}

// OpenCapability starts the instance if needed and routes req from it.
func (c *ComponentInstance) OpenCapability(ctx context.Context, req routing.Request) (routing.Capability, error) {
	if err := c.Start(ctx, StartReasonAccessCapability); err != nil {
		return nil, err
	}

	return c.model.router.RouteAndOpenCapability(ctx, c.target(), req)
}
