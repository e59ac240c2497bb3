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
	"sync"

	"github.com/united-manufacturing-hub/component-manager/pkg/lockmanager"
)

// TaskGroup holds the detached background work an instance owns, such as
// auto-destroying a single-run child or reacting to an unexpected exit.
// Closing the group cancels the context handed to its tasks.
type TaskGroup struct {
	lock   *lockmanager.Lock
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	closed bool
	active int
}

func newTaskGroup(lock *lockmanager.Lock) *TaskGroup {
	ctx, cancel := context.WithCancel(context.Background())

	return &TaskGroup{lock: lock, ctx: ctx, cancel: cancel}
}

// Spawn runs fn in the background. It returns false, without running fn,
// once the group is closed.
func (g *TaskGroup) Spawn(fn func(ctx context.Context)) bool {
	g.lock.Lock()

	if g.closed {
		g.lock.Unlock()

		return false
	}

	g.active++
	g.wg.Add(1)
	g.lock.Unlock()

	go func() {
		defer func() {
			g.lock.Lock()
			g.active--
			g.lock.Unlock()
			g.wg.Done()
		}()

		fn(g.ctx)
	}()

	return true
}

// Close refuses new tasks and cancels the running ones. It does not wait.
func (g *TaskGroup) Close() {
	g.lock.Lock()
	g.closed = true
	g.lock.Unlock()

	g.cancel()
}

// Wait blocks until every spawned task returned.
func (g *TaskGroup) Wait() {
	g.wg.Wait()
}

// Len returns the number of tasks still running.
func (g *TaskGroup) Len() int {
	g.lock.RLock()
	defer g.lock.RUnlock()

	return g.active
}
