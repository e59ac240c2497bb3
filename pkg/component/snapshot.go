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
	"time"
)

// InstanceSnapshot is a point-in-time view of one instance and its
// children. Each instance is read on its own, so a snapshot of a tree that
// is changing may mix moments.
type InstanceSnapshot struct {
	Moniker     string             `json:"moniker"`
	URL         string             `json:"url"`
	State       LifecycleState     `json:"state"`
	Incarnation string             `json:"incarnation"`
	Running     bool               `json:"running"`
	ShutDown    bool               `json:"shutDown"`
	StartedAt   *time.Time         `json:"startedAt,omitempty"`
	StartReason StartReason        `json:"startReason,omitempty"`
	Deleting    bool               `json:"deleting,omitempty"`
	Actions     []string           `json:"actions,omitempty"`
	Children    []InstanceSnapshot `json:"children,omitempty"`
}

// Snapshot returns the view of the whole tree.
func (m *Model) Snapshot() InstanceSnapshot {
	return m.root.Snapshot()
}

// Snapshot returns the view of the instance and everything below it.
func (c *ComponentInstance) Snapshot() InstanceSnapshot {
	snap := InstanceSnapshot{
		Moniker:     c.moniker.InstancedString(),
		URL:         c.url,
		Incarnation: c.incarnation.String(),
	}

	type entry struct {
		inst     *ComponentInstance
		deleting bool
	}

	var children []entry

	c.stateLock.RLock()
	snap.State = c.state.current()

	if resolved := c.state.resolved; resolved != nil {
		for _, cm := range resolved.childMonikers() {
			live, ok := resolved.liveChildren[cm.ChildName]
			deleting := !ok || live.id != cm.InstanceID
			children = append(children, entry{inst: resolved.children[cm], deleting: deleting})
		}
	}
	c.stateLock.RUnlock()

	c.executionLock.RLock()
	snap.ShutDown = c.execution.shutDown

	if rt := c.execution.runtime; rt != nil {
		startedAt := rt.startedAt
		snap.Running = true
		snap.StartedAt = &startedAt
		snap.StartReason = rt.startReason
	}
	c.executionLock.RUnlock()

	for _, key := range c.actions.Keys() {
		snap.Actions = append(snap.Actions, key.String())
	}

	for _, child := range children {
		childSnap := child.inst.Snapshot()
		childSnap.Deleting = child.deleting
		snap.Children = append(snap.Children, childSnap)
	}

	return snap
}
