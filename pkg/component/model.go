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
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/united-manufacturing-hub/component-manager/pkg/decl"
	"github.com/united-manufacturing-hub/component-manager/pkg/hooks"
	"github.com/united-manufacturing-hub/component-manager/pkg/lockmanager"
	"github.com/united-manufacturing-hub/component-manager/pkg/logger"
	"github.com/united-manufacturing-hub/component-manager/pkg/moniker"
	"github.com/united-manufacturing-hub/component-manager/pkg/resolver"
	"github.com/united-manufacturing-hub/component-manager/pkg/routing"
	"github.com/united-manufacturing-hub/component-manager/pkg/runner"
)

const (
	DefaultStopTimeout         = 5 * time.Second
	DefaultKillTimeout         = 1 * time.Second
	DefaultRebootRetries       = 3
	DefaultRebootRetryInterval = 500 * time.Millisecond
)

// EventDispatcher delivers lifecycle events. *hooks.Dispatcher implements it.
type EventDispatcher interface {
	Dispatch(ctx context.Context, event hooks.Event) error
}

type ModelParams struct {
	RootURL   string
	Resolvers *resolver.Registry
	Runners   *runner.Registry

	// Optional collaborators.
	Hooks    EventDispatcher
	Router   routing.Router
	Rebooter Rebooter

	// StopTimeout applies to instances whose environment sets none.
	StopTimeout         time.Duration
	KillTimeout         time.Duration
	RebootRetries       uint64
	RebootRetryInterval time.Duration

	Logger *zap.SugaredLogger
}

// Model owns the instance tree. Every instance refers back to the model it
// was created by, so independent trees can live in one process.
type Model struct {
	root *ComponentInstance

	hooks               EventDispatcher
	router              routing.Router
	rebooter            Rebooter
	killTimeout         time.Duration
	rebootRetries       uint64
	rebootRetryInterval time.Duration

	locks          *lockmanager.LockManager
	logger         *zap.SugaredLogger
	instanceLogger *zap.SugaredLogger
}

func NewModel(params ModelParams) (*Model, error) {
	if params.RootURL == "" {
		return nil, errors.New("root url is required")
	}

	if params.Resolvers == nil {
		return nil, errors.New("resolver registry is required")
	}

	if params.Runners == nil {
		params.Runners = runner.NewRegistry()
	}

	if params.Hooks == nil {
		params.Hooks = hooks.NewDispatcher()
	}

	if params.Router == nil {
		params.Router = unroutable{}
	}

	if params.StopTimeout <= 0 {
		params.StopTimeout = DefaultStopTimeout
	}

	if params.KillTimeout <= 0 {
		params.KillTimeout = DefaultKillTimeout
	}

	if params.RebootRetries == 0 {
		params.RebootRetries = DefaultRebootRetries
	}

	if params.RebootRetryInterval <= 0 {
		params.RebootRetryInterval = DefaultRebootRetryInterval
	}

	log := params.Logger
	if log == nil {
		log = logger.For(logger.ComponentModel)
	}

	m := &Model{
		hooks:               params.Hooks,
		router:              params.Router,
		rebooter:            params.Rebooter,
		killTimeout:         params.KillTimeout,
		rebootRetries:       params.RebootRetries,
		rebootRetryInterval: params.RebootRetryInterval,
		locks:               lockmanager.NewLockManager(),
		logger:              log,
		instanceLogger:      log.Named(logger.ComponentInstance),
	}

	m.root = newComponentInstance(m, instanceParams{
		moniker:     moniker.Root(),
		url:         params.RootURL,
		environment: newRootEnvironment(params.Runners, params.Resolvers, params.StopTimeout),
	})

	return m, nil
}

func (m *Model) Root() *ComponentInstance {
	return m.root
}

// Start starts the root instance.
func (m *Model) Start(ctx context.Context) error {
	m.logger.Infow("starting component tree", "root", m.root.url)

	return m.root.Start(ctx, StartReasonRoot)
}

// Shutdown shuts the whole tree down.
func (m *Model) Shutdown(ctx context.Context) error {
	m.logger.Infow("shutting down component tree")

	return m.root.Shutdown(ctx)
}

// Find returns the live instance at target. It does not resolve anything;
// instance ids in target are ignored.
func (m *Model) Find(target moniker.Moniker) (*ComponentInstance, error) {
	inst := m.root

	for _, segment := range target.Path() {
		_, child, ok := inst.GetLiveChild(segment.ChildName)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrInstanceNotFound, target)
		}

		inst = child
	}

	return inst, nil
}

// StartInstance starts the instance at target.
func (m *Model) StartInstance(ctx context.Context, target moniker.Moniker, reason StartReason) error {
	inst, err := m.Find(target)
	if err != nil {
		return err
	}

	return inst.Start(ctx, reason)
}

func (m *Model) StopInstance(ctx context.Context, target moniker.Moniker) error {
	inst, err := m.Find(target)
	if err != nil {
		return err
	}

	return inst.Stop(ctx)
}

func (m *Model) ShutdownInstance(ctx context.Context, target moniker.Moniker) error {
	inst, err := m.Find(target)
	if err != nil {
		return err
	}

	return inst.Shutdown(ctx)
}

// DestroyInstance deletes the instance at target from its parent. The root
// cannot be deleted, only destroyed in place.
func (m *Model) DestroyInstance(ctx context.Context, target moniker.Moniker) error {
	inst, err := m.Find(target)
	if err != nil {
		return err
	}

	if target.IsRoot() {
		return inst.Destroy(ctx)
	}

	parent, err := inst.Parent()
	if err != nil {
		return err
	}

	return parent.DeleteChild(ctx, inst.ChildMoniker())
}

// CreateChild creates a dynamic child under the instance at parent.
func (m *Model) CreateChild(ctx context.Context, parent moniker.Moniker, collection string, child decl.Child, args CreateChildArgs) (moniker.ChildMoniker, error) {
	inst, err := m.Find(parent)
	if err != nil {
		return moniker.ChildMoniker{}, err
	}

	return inst.CreateChild(ctx, collection, child, args)
}

type unroutable struct{}

func (unroutable) RouteAndOpenCapability(_ context.Context, _ routing.Target, req routing.Request) (routing.Capability, error) {
	return nil, &routing.Error{Capability: req.Name, Err: routing.ErrNotRoutable}
}

func (unroutable) RouteAndDeleteStorage(_ context.Context, _ routing.Target, use decl.Use) error {
	return &routing.Error{Capability: use.Name, Err: routing.ErrNotRoutable}
}
