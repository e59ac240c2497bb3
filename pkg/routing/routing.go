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

// Package routing opens and deletes capabilities on behalf of component instances.
package routing

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"

	"github.com/united-manufacturing-hub/component-manager/pkg/decl"
	"github.com/united-manufacturing-hub/component-manager/pkg/moniker"
)

var (
	// ErrRouting matches every routing failure.
	ErrRouting = errors.New("routing failed")

	ErrNotRoutable     = errors.New("capability type is not routable")
	ErrStorageNotFound = errors.New("storage not found")
)

// Error describes a failed route for one capability.
type Error struct {
	Capability string
	Err        error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrRouting, e.Capability, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	return target == ErrRouting
}

// Target identifies the instance a route is computed for.
type Target struct {
	Moniker       moniker.Moniker
	IncarnationID uuid.UUID
	URL           string
}

type Request struct {
	Type decl.CapabilityType
	Name string
}

// Capability is an open handle to a routed capability.
type Capability interface {
	io.Closer
}

type Router interface {
	RouteAndOpenCapability(ctx context.Context, target Target, req Request) (Capability, error)
	// RouteAndDeleteStorage removes the storage backing use. An error
	// matching ErrRouting means there was nothing to delete.
	RouteAndDeleteStorage(ctx context.Context, target Target, use decl.Use) error
}
