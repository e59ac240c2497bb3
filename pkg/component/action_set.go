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
	"sort"
	"sync/atomic"
	"time"

	"github.com/united-manufacturing-hub/component-manager/pkg/component/internal/promise"
	"github.com/united-manufacturing-hub/component-manager/pkg/lockmanager"
	"github.com/united-manufacturing-hub/component-manager/pkg/metrics"
)

type actionEntry struct {
	result *promise.Promise[struct{}]
	// executing is false while the body waits on a blocking action.
	executing atomic.Bool
}

// Pending is a handle on a registered action.
type Pending struct {
	result *promise.Promise[struct{}]
}

// Wait blocks until the action finished or ctx is done. Giving up does not
// cancel the action.
func (p Pending) Wait(ctx context.Context) error {
	_, err := p.result.Wait(ctx)

	return err
}

func (p Pending) Done() <-chan struct{} {
	return p.result.Done()
}

// ActionSet tracks the actions in flight on one instance. There is at most
// one entry per ActionKey, and an entry exists exactly while its body runs.
type ActionSet struct {
	lock    *lockmanager.Lock
	entries map[ActionKey]*actionEntry
}

func newActionSet(lock *lockmanager.Lock) *ActionSet {
	return &ActionSet{lock: lock, entries: make(map[ActionKey]*actionEntry)}
}

// register joins the in-flight action with the same key or starts a new one.
func (s *ActionSet) register(inst *ComponentInstance, action Action) Pending {
	key := action.Key()

	s.lock.Lock()

	if existing, ok := s.entries[key]; ok {
		s.lock.Unlock()

		metrics.RecordActionCoalesced(key.Kind.String())
		inst.logger.Debugw("action_coalesced", "action", key.String())

		return Pending{result: existing.result}
	}

	entry := &actionEntry{result: promise.New[struct{}]()}
	s.entries[key] = entry

	var blocker *promise.Promise[struct{}]
	if blockKey, ok := blockingKey(key); ok {
		if b, inFlight := s.entries[blockKey]; inFlight {
			blocker = b.result
		}
	}

	s.lock.Unlock()

	metrics.RecordActionRegistered(key.Kind.String())

	go s.run(inst, action, entry, blocker)

	return Pending{result: entry.result}
}

func (s *ActionSet) run(inst *ComponentInstance, action Action, entry *actionEntry, blocker *promise.Promise[struct{}]) {
	key := action.Key()

	// Only completion matters, not the blocker's result.
	if blocker != nil {
		inst.logger.Debugw("action_deferred", "action", key.String())
		<-blocker.Done()
	}

	entry.executing.Store(true)
	metrics.RecordActionStarted(key.Kind.String())

	start := time.Now()
	err := inst.perform(context.Background(), action)
	duration := time.Since(start)

	metrics.RecordActionFinished(key.Kind.String(), err, duration)

	if err != nil {
		inst.logger.Debugw("action_failed", "action", action.String(), "error", err, "duration_ms", duration.Milliseconds())
	} else {
		inst.logger.Debugw("action_completed", "action", action.String(), "duration_ms", duration.Milliseconds())
	}

	s.lock.Lock()
	delete(s.entries, key)
	s.lock.Unlock()

	entry.result.Resolve(struct{}{}, err)
}

// Contains reports whether an action with key is registered.
func (s *ActionSet) Contains(key ActionKey) bool {
	s.lock.RLock()
	defer s.lock.RUnlock()

	_, ok := s.entries[key]

	return ok
}

// IsExecuting reports whether the body of the action with key has started.
func (s *ActionSet) IsExecuting(key ActionKey) bool {
	s.lock.RLock()
	defer s.lock.RUnlock()

	entry, ok := s.entries[key]

	return ok && entry.executing.Load()
}

// Keys returns the registered action keys in a stable order.
func (s *ActionSet) Keys() []ActionKey {
	s.lock.RLock()

	keys := make([]ActionKey, 0, len(s.entries))
	for k := range s.entries {
		keys = append(keys, k)
	}

	s.lock.RUnlock()

	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Kind != keys[j].Kind {
			return keys[i].Kind < keys[j].Kind
		}

		return keys[i].Child.String() < keys[j].Child.String()
	})

	return keys
}
