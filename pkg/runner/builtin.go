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

package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/united-manufacturing-hub/component-manager/pkg/decl"
	"github.com/united-manufacturing-hub/component-manager/pkg/routing"
)

// ProgramInfoBinary is the program info key naming the builtin program.
const ProgramInfoBinary = "binary"

var ErrUnknownProgram = errors.New("unknown builtin program")

// ProgramFunc is an in-process program. ctx is cancelled on Kill; the
// program should return after Process.Stopping is closed.
type ProgramFunc func(ctx context.Context, proc *Process) error

// Process is what a builtin program sees of its environment.
type Process struct {
	Info     StartInfo
	Logger   *zap.SugaredLogger
	stopping <-chan struct{}
}

func (p *Process) Stopping() <-chan struct{} {
	return p.stopping
}

// OpenStorage opens a storage capability the component uses.
func (p *Process) OpenStorage(ctx context.Context, name string) (*routing.Storage, error) {
	if p.Info.Router == nil {
		return nil, &routing.Error{Capability: name, Err: routing.ErrNotRoutable}
	}

	capability, err := p.Info.Router.RouteAndOpenCapability(ctx, p.Info.Target, routing.Request{Type: decl.CapabilityStorage, Name: name})
	if err != nil {
		return nil, err
	}

	storage, ok := capability.(*routing.Storage)
	if !ok {
		_ = capability.Close()

		return nil, fmt.Errorf("capability %s is not a storage directory", name)
	}

	return storage, nil
}

// Builtin runs registered Go functions as goroutines.
type Builtin struct {
	mu       sync.RWMutex
	programs map[string]ProgramFunc
	logger   *zap.SugaredLogger
}

func NewBuiltin(logger *zap.SugaredLogger) *Builtin {
	return &Builtin{programs: make(map[string]ProgramFunc), logger: logger}
}

func (b *Builtin) Register(name string, fn ProgramFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.programs[name] = fn
}

func (b *Builtin) Start(_ context.Context, info StartInfo) (Controller, error) {
	name := info.Program.Info[ProgramInfoBinary]

	b.mu.RLock()
	fn, ok := b.programs[name]
	b.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownProgram, name)
	}

	// The program outlives the start request.
	ctx, kill := context.WithCancel(context.Background())
	stopping := make(chan struct{})

	c := &builtinController{
		kill:     kill,
		stopping: stopping,
		closed:   make(chan struct{}),
	}

	proc := &Process{
		Info:     info,
		Logger:   b.logger.With("moniker", info.Moniker, "program", name),
		stopping: stopping,
	}

	go func() {
		defer close(c.closed)
		defer kill()

		err := fn(ctx, proc)
		if err != nil && !errors.Is(err, context.Canceled) {
			proc.Logger.Warnw("program_exited_with_error", "error", err)
		}

		c.mu.Lock()
		c.exitErr = err
		c.mu.Unlock()
	}()

	return c, nil
}

type builtinController struct {
	kill     context.CancelFunc
	stopping chan struct{}
	closed   chan struct{}

	mu       sync.Mutex
	stopSent bool
	exitErr  error
}

func (c *builtinController) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

func (c *builtinController) Stop() error {
	if c.isClosed() {
		return ErrChannelClosed
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.stopSent {
		c.stopSent = true
		close(c.stopping)
	}

	return nil
}

func (c *builtinController) Kill() error {
	if c.isClosed() {
		return ErrChannelClosed
	}

	c.kill()

	return nil
}

func (c *builtinController) Closed() <-chan struct{} {
	return c.closed
}

// Err returns what the program returned once Closed is closed.
func (c *builtinController) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.exitErr
}
