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
	"errors"
	"fmt"
)

// Structural errors. They are reported to the immediate caller and never retried.
var (
	ErrCollectionNotFound          = errors.New("collection not found")
	ErrEagerStartupUnsupported     = errors.New("eager startup is not supported for dynamic children")
	ErrNumberedHandlesNotSingleRun = errors.New("numbered handles are only allowed in single-run collections")
	ErrDynamicOffersNotAllowed     = errors.New("collection does not allow dynamic offers")
	ErrPersistentUnsupported       = errors.New("persistent collections are not supported")
	ErrInstanceAlreadyExists       = errors.New("instance already exists")
	ErrInstanceNotFound            = errors.New("instance not found")
)

var (
	ErrInstanceShutDown  = errors.New("instance was shut down")
	ErrInstanceDestroyed = errors.New("instance was destroyed")
	ErrParentGone        = errors.New("parent instance is gone")
	ErrNoRunner          = errors.New("runner not found in environment")
)

// ResolveError is a failure to fetch, parse or validate a declaration.
type ResolveError struct {
	Moniker string
	URL     string
	Err     error
}

func (e *ResolveError) Error() string {
	return fmt.Sprintf("failed to resolve %s (%s): %v", e.Moniker, e.URL, e.Err)
}

func (e *ResolveError) Unwrap() error {
	return e.Err
}

type StartError struct {
	Moniker string
	Err     error
}

func (e *StartError) Error() string {
	return fmt.Sprintf("failed to start %s: %v", e.Moniker, e.Err)
}

func (e *StartError) Unwrap() error {
	return e.Err
}

// StopError is a failure to deliver a stop or kill request to a controller.
type StopError struct {
	Moniker string
	Err     error
}

func (e *StopError) Error() string {
	return fmt.Sprintf("failed to stop %s: %v", e.Moniker, e.Err)
}

func (e *StopError) Unwrap() error {
	return e.Err
}

// StructuralError wraps one of the structural sentinels with the operation
// and instance it was raised for.
type StructuralError struct {
	Moniker string
	Op      string
	Err     error
}

func (e *StructuralError) Error() string {
	return fmt.Sprintf("%s on %s: %v", e.Op, e.Moniker, e.Err)
}

func (e *StructuralError) Unwrap() error {
	return e.Err
}

type DestroyError struct {
	Moniker string
	Err     error
}

func (e *DestroyError) Error() string {
	return fmt.Sprintf("failed to destroy %s: %v", e.Moniker, e.Err)
}

func (e *DestroyError) Unwrap() error {
	return e.Err
}
