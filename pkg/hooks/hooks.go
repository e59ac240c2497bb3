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

// Package hooks notifies other subsystems of lifecycle transitions.
package hooks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/united-manufacturing-hub/component-manager/pkg/decl"
	"github.com/united-manufacturing-hub/component-manager/pkg/moniker"
)

type EventType string

const (
	EventDiscovered           EventType = "discovered"
	EventResolved             EventType = "resolved"
	EventRunning              EventType = "running"
	EventStopped              EventType = "stopped"
	EventMarkedForDestruction EventType = "marked_for_destruction"
	EventDestroyed            EventType = "destroyed"
)

// AllEventTypes lists every event type in lifecycle order.
var AllEventTypes = []EventType{
	EventDiscovered, EventResolved, EventRunning, EventStopped, EventMarkedForDestruction, EventDestroyed,
}

type Event struct {
	Type          EventType
	Moniker       moniker.Moniker
	URL           string
	IncarnationID uuid.UUID
	Timestamp     time.Time
	// Payload is one of the *Payload types below, or nil.
	Payload any
}

type ResolvedPayload struct {
	Decl *decl.Component
}

type RunningPayload struct {
	StartReason string
	StartedAt   time.Time
}

type StoppedPayload struct {
	// Outcome is the result of the stop handshake.
	Outcome string
}

type Hook interface {
	OnEvent(ctx context.Context, event Event) error
}

type HookFunc func(ctx context.Context, event Event) error

func (f HookFunc) OnEvent(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// DispatchError says which hook rejected an event.
type DispatchError struct {
	Event EventType
	Index int
	Err   error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("hook %d failed on %s event: %v", e.Index, e.Event, e.Err)
}

func (e *DispatchError) Unwrap() error {
	return e.Err
}

type subscription struct {
	hook  Hook
	types map[EventType]bool
}

// Dispatcher delivers events to hooks in subscription order. The first
// hook error stops delivery and is returned.
type Dispatcher struct {
	mu   sync.RWMutex
	subs []subscription
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{}
}

// Subscribe registers hook for types, or for every type when none are given.
func (d *Dispatcher) Subscribe(hook Hook, types ...EventType) {
	sub := subscription{hook: hook}

	if len(types) > 0 {
		sub.types = make(map[EventType]bool, len(types))
		for _, t := range types {
			sub.types[t] = true
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.subs = append(d.subs, sub)
}

func (d *Dispatcher) Dispatch(ctx context.Context, event Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	d.mu.RLock()
	subs := make([]subscription, len(d.subs))
	copy(subs, d.subs)
	d.mu.RUnlock()

	for i, sub := range subs {
		if sub.types != nil && !sub.types[event.Type] {
			continue
		}

		if err := sub.hook.OnEvent(ctx, event); err != nil {
			return &DispatchError{Event: event.Type, Index: i, Err: err}
		}
	}

	return nil
}

// NewLoggingHook logs every event at debug level.
func NewLoggingHook(logger *zap.SugaredLogger) Hook {
	return HookFunc(func(_ context.Context, event Event) error {
		logger.Debugw("lifecycle_event",
			"event", string(event.Type),
			"moniker", event.Moniker.String(),
			"url", event.URL,
			"incarnation", event.IncarnationID.String())

		return nil
	})
}
