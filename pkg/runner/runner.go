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

// Package runner starts the programs of component instances and hands back
// a Controller used to stop or kill them.
package runner

import (
	"context"
	"errors"

	"github.com/united-manufacturing-hub/component-manager/pkg/decl"
	"github.com/united-manufacturing-hub/component-manager/pkg/routing"
)

// ErrChannelClosed is returned by Controller.Stop and Controller.Kill when
// the program already went away.
var ErrChannelClosed = errors.New("controller channel closed")

// NumberedHandle is a startup handle passed to the first start of an instance.
type NumberedHandle struct {
	ID    uint32
	Value any
}

type StartInfo struct {
	URL             string
	Moniker         string
	Program         decl.Program
	NumberedHandles []NumberedHandle
	// Router and Target let the program open capabilities it uses.
	Router routing.Router
	Target routing.Target
}

// Controller is the control channel to a running program.
type Controller interface {
	// Stop asks the program to exit.
	Stop() error
	// Kill terminates the program without waiting for it to cooperate.
	Kill() error
	// Closed is closed once the program is gone.
	Closed() <-chan struct{}
}

type Runner interface {
	// Start launches the program. A nil Controller means the program has no
	// control channel and nothing needs to be stopped.
	Start(ctx context.Context, info StartInfo) (Controller, error)
}

// Null runs nothing. It is used for components without a program.
type Null struct{}

func (Null) Start(context.Context, StartInfo) (Controller, error) {
	return nil, nil
}
