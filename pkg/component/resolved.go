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
	"sort"

	"github.com/united-manufacturing-hub/component-manager/pkg/decl"
	"github.com/united-manufacturing-hub/component-manager/pkg/moniker"
	"github.com/united-manufacturing-hub/component-manager/pkg/resolver"
)

type liveChild struct {
	id   moniker.InstanceID
	inst *ComponentInstance
}

// ResolvedInstanceState is the content of a resolved instance. It is only
// touched under the owning instance's state lock.
type ResolvedInstanceState struct {
	decl *decl.Component
	pkg  *resolver.Package

	// Every child ever created and not yet deleted, including children that
	// are marked for deletion.
	children map[moniker.ChildMoniker]*ComponentInstance
	// Children not marked for deletion.
	liveChildren map[moniker.ChildName]liveChild

	// Never reused, so a stale moniker cannot alias a newer child.
	nextDynamicInstanceID moniker.InstanceID

	environments map[string]*Environment
	// Offers handed to dynamic children when they were created.
	dynamicOffers map[moniker.ChildMoniker][]decl.Offer
}

func newResolvedInstanceState(component *decl.Component, pkg *resolver.Package, env *Environment) *ResolvedInstanceState {
	resolved := &ResolvedInstanceState{
		decl:                  component,
		pkg:                   pkg,
		children:              make(map[moniker.ChildMoniker]*ComponentInstance),
		liveChildren:          make(map[moniker.ChildName]liveChild),
		nextDynamicInstanceID: 1,
		environments:          make(map[string]*Environment, len(component.Environments)),
		dynamicOffers:         make(map[moniker.ChildMoniker][]decl.Offer),
	}

	for _, e := range component.Environments {
		resolved.environments[e.Name] = newDeclaredEnvironment(e, env)
	}

	return resolved
}

func (r *ResolvedInstanceState) Decl() *decl.Component {
	return r.decl
}

func (r *ResolvedInstanceState) Package() *resolver.Package {
	return r.pkg
}

func (r *ResolvedInstanceState) addChild(cm moniker.ChildMoniker, inst *ComponentInstance) {
	r.children[cm] = inst
	r.liveChildren[cm.ChildName] = liveChild{id: cm.InstanceID, inst: inst}
}

func (r *ResolvedInstanceState) allocateInstanceID() moniker.InstanceID {
	id := r.nextDynamicInstanceID
	r.nextDynamicInstanceID++

	return id
}

// removeLive drops cm from the live set. It reports false if cm was not live,
// which covers a newer incarnation that reuses the name.
func (r *ResolvedInstanceState) removeLive(cm moniker.ChildMoniker) (*ComponentInstance, bool) {
	live, ok := r.liveChildren[cm.ChildName]
	if !ok || live.id != cm.InstanceID {
		return nil, false
	}

	delete(r.liveChildren, cm.ChildName)

	return live.inst, true
}

func (r *ResolvedInstanceState) removeChild(cm moniker.ChildMoniker) {
	delete(r.children, cm)
	delete(r.dynamicOffers, cm)
}

func (r *ResolvedInstanceState) getChild(cm moniker.ChildMoniker) (*ComponentInstance, bool) {
	inst, ok := r.children[cm]

	return inst, ok
}

// GetLiveChild returns the live child called name, if any.
func (r *ResolvedInstanceState) GetLiveChild(name moniker.ChildName) (moniker.ChildMoniker, *ComponentInstance, bool) {
	live, ok := r.liveChildren[name]
	if !ok {
		return moniker.ChildMoniker{}, nil, false
	}

	return moniker.NewChildMoniker(name, live.id), live.inst, true
}

// childMonikers returns every child in a stable order.
func (r *ResolvedInstanceState) childMonikers() []moniker.ChildMoniker {
	out := make([]moniker.ChildMoniker, 0, len(r.children))
	for cm := range r.children {
		out = append(out, cm)
	}

	sortChildMonikers(out)

	return out
}

func (r *ResolvedInstanceState) liveChildMonikers() []moniker.ChildMoniker {
	out := make([]moniker.ChildMoniker, 0, len(r.liveChildren))
	for name, live := range r.liveChildren {
		out = append(out, moniker.NewChildMoniker(name, live.id))
	}

	sortChildMonikers(out)

	return out
}

// childrenIn returns the children that live in collection, mid-deletion ones
// included.
func (r *ResolvedInstanceState) childrenIn(collection string) []moniker.ChildMoniker {
	var out []moniker.ChildMoniker

	for cm := range r.children {
		if cm.Collection == collection {
			out = append(out, cm)
		}
	}

	sortChildMonikers(out)

	return out
}

// environmentFor picks the environment of a new child: the named one if
// given, else the one of its collection, else the parent's own.
func (r *ResolvedInstanceState) environmentFor(names []string, fallback *Environment) *Environment {
	for _, name := range names {
		if name == "" {
			continue
		}

		if env, ok := r.environments[name]; ok {
			return env
		}
	}

	return fallback
}

func sortChildMonikers(cms []moniker.ChildMoniker) {
	sort.Slice(cms, func(i, j int) bool {
		return cms[i].String() < cms[j].String()
	})
}
