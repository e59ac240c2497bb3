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

// Package lockmanager provides lock ordering enforcement for component instances.
//
// # Lock level hierarchy
//
// Every component instance owns four locks (lower = acquire first):
//
//	Level 1: state      - lifecycle state and the child maps
//	Level 2: execution  - the Runtime and the shut_down flag
//	Level 3: actions    - the ActionSet map
//	Level 4: tasks      - background tasks owned by the instance
//
// Rule: Always acquire locks in ascending level order. Locks of equal level
// may be held together, but the component package never holds a parent's
// lock while acquiring a child's.
//
// # Environment variable control
//
// Checking is controlled by ENABLE_LOCK_ORDER_CHECKS=1. It needs
// per-goroutine tracking and runtime stack introspection, so it is meant for
// tests and development. The component test suite runs with it enabled.
//
// # Panic on violation
//
// A violation panics with both lock names, their levels and the stack of the
// offending goroutine.
//
// # Usage
//
//	manager := lockmanager.NewLockManager()
//	state := manager.NewLock("/core/app.state", 1)
//	execution := manager.NewLock("/core/app.execution", 2)
//
//	state.Lock()
//	execution.Lock()   // allowed
//	execution.Unlock()
//	state.Unlock()
//
//	execution.Lock()
//	state.Lock()       // PANIC: lock order violation
//
// A lock must be released by the goroutine that acquired it.
package lockmanager
