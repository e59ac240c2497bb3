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

	"github.com/united-manufacturing-hub/component-manager/pkg/decl"
	"github.com/united-manufacturing-hub/component-manager/pkg/moniker"
	"github.com/united-manufacturing-hub/component-manager/pkg/runner"
)

// CreateChildArgs carries what a dynamic child gets besides its declaration.
type CreateChildArgs struct {
	// NumberedHandles are passed to the first start. Single-run only.
	NumberedHandles []runner.NumberedHandle
	// DynamicOffers route capabilities to the new child. Their targets are
	// left empty.
	DynamicOffers []decl.Offer
}

func (c *ComponentInstance) structural(op string, err error) error {
	return &StructuralError{Moniker: c.moniker.String(), Op: op, Err: err}
}

// AddDynamicChild creates child in collection and starts its discovery
// without waiting for it. Nothing changes if the request is rejected.
func (c *ComponentInstance) AddDynamicChild(ctx context.Context, collection string, child decl.Child, args CreateChildArgs) (*ComponentInstance, Pending, error) {
	const op = "add_dynamic_child"

	if _, err := c.Resolve(ctx); err != nil {
		return nil, Pending{}, err
	}

	name, err := moniker.NewChildName(child.Name, collection)
	if err != nil {
		return nil, Pending{}, c.structural(op, err)
	}

	if child.URL == "" {
		return nil, Pending{}, c.structural(op, fmt.Errorf("%w: child %q has no url", decl.ErrInvalid, child.Name))
	}

	c.stateLock.Lock()

	resolved := c.state.resolved
	if resolved == nil {
		c.stateLock.Unlock()

		return nil, Pending{}, c.structural(op, ErrInstanceDestroyed)
	}

	coll, err := c.checkDynamicChild(resolved, collection, child, args)
	if err != nil {
		c.stateLock.Unlock()

		return nil, Pending{}, c.structural(op, err)
	}

	if _, exists := resolved.liveChildren[name]; exists {
		c.stateLock.Unlock()

		return nil, Pending{}, c.structural(op, fmt.Errorf("%w: %s", ErrInstanceAlreadyExists, name))
	}

	cm := moniker.NewChildMoniker(name, resolved.allocateInstanceID())
	env := resolved.environmentFor([]string{child.Environment, coll.Environment}, c.environment)
	inst := c.newChild(cm, child, coll.Durability, env, args.NumberedHandles)

	resolved.addChild(cm, inst)

	if len(args.DynamicOffers) > 0 {
		offers := make([]decl.Offer, len(args.DynamicOffers))
		copy(offers, args.DynamicOffers)
		resolved.dynamicOffers[cm] = offers
	}

	c.stateLock.Unlock()

	c.logger.Debugw("dynamic_child_added", "child", cm.String(), "url", child.URL)

	return inst, inst.RegisterNoWait(DiscoverAction()), nil
}

// checkDynamicChild must be called with the state lock held.
func (c *ComponentInstance) checkDynamicChild(resolved *ResolvedInstanceState, collection string, child decl.Child, args CreateChildArgs) (decl.Collection, error) {
	coll, ok := resolved.decl.FindCollection(collection)
	if !ok {
		return decl.Collection{}, fmt.Errorf("%w: %q", ErrCollectionNotFound, collection)
	}

	if child.Startup.OrDefault() == decl.StartupEager {
		return decl.Collection{}, ErrEagerStartupUnsupported
	}

	if len(args.NumberedHandles) > 0 && coll.Durability != decl.DurabilitySingleRun {
		return decl.Collection{}, ErrNumberedHandlesNotSingleRun
	}

	if len(args.DynamicOffers) > 0 {
		if coll.AllowedOffers.OrDefault() != decl.AllowedOffersStaticAndDynamic {
			return decl.Collection{}, ErrDynamicOffersNotAllowed
		}

		for _, o := range args.DynamicOffers {
			if err := resolved.decl.ValidateDynamicOffer(o); err != nil {
				return decl.Collection{}, err
			}
		}
	}

	if coll.Durability == decl.DurabilityPersistent {
		return decl.Collection{}, ErrPersistentUnsupported
	}

	return coll, nil
}

// CreateChild adds a dynamic child and waits for its discovery. Children of
// single-run collections are started right away.
func (c *ComponentInstance) CreateChild(ctx context.Context, collection string, child decl.Child, args CreateChildArgs) (moniker.ChildMoniker, error) {
	inst, discovered, err := c.AddDynamicChild(ctx, collection, child, args)
	if err != nil {
		return moniker.ChildMoniker{}, err
	}

	cm := inst.ChildMoniker()

	if err := discovered.Wait(ctx); err != nil {
		return cm, err
	}

	if inst.durability == decl.DurabilitySingleRun {
		if err := inst.Start(ctx, StartReasonSingleRun); err != nil {
			return cm, err
		}
	}

	return cm, nil
}
