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

// Package component manages a tree of component instances.
//
// # Actions
//
// Every lifecycle operation is an Action registered on the ActionSet of one
// instance. Registering an action that is already in flight joins it, so
// concurrent callers share one execution and one result. Stop and Shutdown
// exclude each other: whichever is registered second waits for the other
// to finish before its body starts. Action bodies run to completion; the
// context passed to Register only bounds how long the caller waits.
//
// # Lifecycle
//
//	new -> discovered -> resolved -> purged
//
// Resolving fetches the declaration through the environment's resolvers and
// creates the static children. Destroy shuts an instance down, deletes its
// children and purges it. DeleteChild destroys a child and removes it from
// its parent; MarkDeleting hides it from lookups first.
//
// # Shutdown order
//
// Shutdown builds a graph over the instance and its children from strong
// offers and uses. A child that uses a capability from a sibling goes down
// before that sibling. Children that the instance itself does not depend on
// go down before the instance.
//
// # Locks
//
// Each instance has four locks, always taken in the order state, execution,
// actions, tasks. No lock is held while waiting on another action. With
// ENABLE_LOCK_ORDER_CHECKS=1 both rules are enforced at runtime.
package component
