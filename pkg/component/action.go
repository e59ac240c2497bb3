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
	"github.com/united-manufacturing-hub/component-manager/pkg/moniker"
)

type ActionKind int

const (
	ActionDiscover ActionKind = iota + 1
	ActionResolve
	ActionStart
	ActionStop
	ActionShutdown
	ActionMarkDeleting
	ActionDeleteChild
	ActionDestroy
)

func (k ActionKind) String() string {
	switch k {
	case ActionDiscover:
		return "discover"
	case ActionResolve:
		return "resolve"
	case ActionStart:
		return "start"
	case ActionStop:
		return "stop"
	case ActionShutdown:
		return "shutdown"
	case ActionMarkDeleting:
		return "mark_deleting"
	case ActionDeleteChild:
		return "delete_child"
	case ActionDestroy:
		return "destroy"
	default:
		return "unknown"
	}
}

// StartReason explains why an instance was started.
type StartReason string

const (
	StartReasonRoot             StartReason = "root"
	StartReasonEager            StartReason = "eager"
	StartReasonSingleRun        StartReason = "single_run"
	StartReasonDebug            StartReason = "debug"
	StartReasonAccessCapability StartReason = "access_capability"
)

// Action is one lifecycle operation on one instance. Only the fields that
// belong to its Kind are set: Reason for Start, Child for MarkDeleting and
// DeleteChild.
type Action struct {
	Kind   ActionKind
	Child  moniker.ChildMoniker
	Reason StartReason
}

// ActionKey is the identity of an action. The start reason is not part of
// it, so the first reason to start an instance wins.
type ActionKey struct {
	Kind  ActionKind
	Child moniker.ChildMoniker
}

func (k ActionKey) String() string {
	switch k.Kind {
	case ActionMarkDeleting, ActionDeleteChild:
		return k.Kind.String() + "(" + k.Child.String() + ")"
	default:
		return k.Kind.String()
	}
}

func (a Action) Key() ActionKey {
	switch a.Kind {
	case ActionMarkDeleting, ActionDeleteChild:
		return ActionKey{Kind: a.Kind, Child: a.Child}
	default:
		return ActionKey{Kind: a.Kind}
	}
}

func (a Action) String() string {
	if a.Kind == ActionStart && a.Reason != "" {
		return "start(" + string(a.Reason) + ")"
	}

	return a.Key().String()
}

func DiscoverAction() Action { return Action{Kind: ActionDiscover} }

func ResolveAction() Action { return Action{Kind: ActionResolve} }

func StartAction(reason StartReason) Action { return Action{Kind: ActionStart, Reason: reason} }

func StopAction() Action { return Action{Kind: ActionStop} }

func ShutdownAction() Action { return Action{Kind: ActionShutdown} }

func MarkDeletingAction(child moniker.ChildMoniker) Action {
	return Action{Kind: ActionMarkDeleting, Child: child}
}

func DeleteChildAction(child moniker.ChildMoniker) Action {
	return Action{Kind: ActionDeleteChild, Child: child}
}

func DestroyAction() Action { return Action{Kind: ActionDestroy} }

// blockingKey returns the action that must finish before a, if any is in flight.
func blockingKey(a ActionKey) (ActionKey, bool) {
	switch a.Kind {
	case ActionShutdown:
		return ActionKey{Kind: ActionStop}, true
	case ActionStop:
		return ActionKey{Kind: ActionShutdown}, true
	default:
		return ActionKey{}, false
	}
}
