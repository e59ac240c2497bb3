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

// Package componenttest provides fakes for the collaborators of the
// component package.
package componenttest

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/united-manufacturing-hub/component-manager/pkg/decl"
	"github.com/united-manufacturing-hub/component-manager/pkg/hooks"
	"github.com/united-manufacturing-hub/component-manager/pkg/routing"
	"github.com/united-manufacturing-hub/component-manager/pkg/runner"
)

// FakeController closes its channel when asked to stop or kill unless told
// to ignore the request.
type FakeController struct {
	IgnoreStop atomic.Bool
	IgnoreKill atomic.Bool

	mu      sync.Mutex
	stopErr error
	killErr error
	exitErr error

	closed    chan struct{}
	closeOnce sync.Once
	stops     atomic.Int32
	kills     atomic.Int32
}

func NewFakeController() *FakeController {
	return &FakeController{closed: make(chan struct{})}
}

// FailSends makes Stop and Kill return the given errors.
func (c *FakeController) FailSends(stopErr, killErr error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stopErr = stopErr
	c.killErr = killErr
}

func (c *FakeController) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

func (c *FakeController) Stop() error {
	c.stops.Add(1)

	if c.isClosed() {
		return runner.ErrChannelClosed
	}

	c.mu.Lock()
	err := c.stopErr
	c.mu.Unlock()

	if err != nil {
		return err
	}

	if !c.IgnoreStop.Load() {
		c.Exit(nil)
	}

	return nil
}

func (c *FakeController) Kill() error {
	c.kills.Add(1)

	if c.isClosed() {
		return runner.ErrChannelClosed
	}

	c.mu.Lock()
	err := c.killErr
	c.mu.Unlock()

	if err != nil {
		return err
	}

	if !c.IgnoreKill.Load() {
		c.Exit(nil)
	}

	return nil
}

func (c *FakeController) Closed() <-chan struct{} {
	return c.closed
}

// Exit closes the channel as if the program went away with err.
func (c *FakeController) Exit(err error) {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.exitErr = err
		c.mu.Unlock()

		close(c.closed)
	})
}

func (c *FakeController) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.exitErr
}

func (c *FakeController) StopCount() int {
	return int(c.stops.Load())
}

func (c *FakeController) KillCount() int {
	return int(c.kills.Load())
}

// FakeRunner hands out a fresh FakeController per start and remembers it
// by moniker.
type FakeRunner struct {
	// Configure, if set, is called with every new controller before it is
	// returned.
	Configure func(moniker string, c *FakeController)

	mu          sync.Mutex
	controllers map[string]*FakeController
	starts      map[string]int
	order       []string
	infos       map[string]runner.StartInfo
	failures    map[string]error
	block       chan struct{}
}

func NewFakeRunner() *FakeRunner {
	return &FakeRunner{
		controllers: make(map[string]*FakeController),
		starts:      make(map[string]int),
		infos:       make(map[string]runner.StartInfo),
		failures:    make(map[string]error),
	}
}

// FailStart makes starts of moniker fail with err.
func (r *FakeRunner) FailStart(moniker string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.failures[moniker] = err
}

// Block holds every start until the returned function is called.
func (r *FakeRunner) Block() (release func()) {
	r.mu.Lock()
	defer r.mu.Unlock()

	block := make(chan struct{})
	r.block = block

	var once sync.Once

	return func() { once.Do(func() { close(block) }) }
}

func (r *FakeRunner) Start(ctx context.Context, info runner.StartInfo) (runner.Controller, error) {
	r.mu.Lock()
	block := r.block
	r.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.starts[info.Moniker]++
	r.order = append(r.order, info.Moniker)
	r.infos[info.Moniker] = info

	if err := r.failures[info.Moniker]; err != nil {
		return nil, err
	}

	c := NewFakeController()
	if r.Configure != nil {
		r.Configure(info.Moniker, c)
	}

	r.controllers[info.Moniker] = c

	return c, nil
}

// Controller returns the controller of the latest start of moniker.
func (r *FakeRunner) Controller(moniker string) *FakeController {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.controllers[moniker]
}

func (r *FakeRunner) StartCount(moniker string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.starts[moniker]
}

func (r *FakeRunner) StartInfo(moniker string) (runner.StartInfo, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	info, ok := r.infos[moniker]

	return info, ok
}

// Started returns the monikers in start order.
func (r *FakeRunner) Started() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]string(nil), r.order...)
}

// RecordingHook records every event it sees.
type RecordingHook struct {
	mu     sync.Mutex
	events []hooks.Event
	failOn map[hooks.EventType]error
}

func NewRecordingHook() *RecordingHook {
	return &RecordingHook{failOn: make(map[hooks.EventType]error)}
}

// FailOn makes events of type t fail with err. A nil err clears it.
func (h *RecordingHook) FailOn(t hooks.EventType, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err == nil {
		delete(h.failOn, t)

		return
	}

	h.failOn[t] = err
}

func (h *RecordingHook) OnEvent(_ context.Context, event hooks.Event) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.events = append(h.events, event)

	return h.failOn[event.Type]
}

func (h *RecordingHook) Events() []hooks.Event {
	h.mu.Lock()
	defer h.mu.Unlock()

	return append([]hooks.Event(nil), h.events...)
}

// Count returns how many events of type t were seen for moniker.
func (h *RecordingHook) Count(t hooks.EventType, moniker string) int {
	n := 0

	for _, e := range h.Events() {
		if e.Type == t && e.Moniker.String() == moniker {
			n++
		}
	}

	return n
}

// Monikers returns the monikers of events of type t in dispatch order.
func (h *RecordingHook) Monikers(t hooks.EventType) []string {
	var out []string

	for _, e := range h.Events() {
		if e.Type == t {
			out = append(out, e.Moniker.String())
		}
	}

	return out
}

// FakeRouter records storage deletions.
type FakeRouter struct {
	mu        sync.Mutex
	deleted   []string
	deleteErr error
}

func NewFakeRouter() *FakeRouter {
	return &FakeRouter{}
}

func (r *FakeRouter) FailDeletes(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.deleteErr = err
}

type fakeCapability struct{}

func (fakeCapability) Close() error { return nil }

func (r *FakeRouter) RouteAndOpenCapability(_ context.Context, _ routing.Target, req routing.Request) (routing.Capability, error) {
	if req.Name == "" {
		return nil, &routing.Error{Capability: req.Name, Err: routing.ErrNotRoutable}
	}

	return fakeCapability{}, nil
}

func (r *FakeRouter) RouteAndDeleteStorage(_ context.Context, target routing.Target, use decl.Use) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.deleted = append(r.deleted, target.Moniker.String()+"/"+use.Name)

	return r.deleteErr
}

// Deleted returns "<moniker>/<storage>" for every deletion request.
func (r *FakeRouter) Deleted() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]string(nil), r.deleted...)
}

var ErrRebootFailed = errors.New("reboot failed")

// RebootRecorder records reboot requests. The first FailTimes calls fail.
type RebootRecorder struct {
	FailTimes atomic.Int32

	mu      sync.Mutex
	reasons []string
	calls   int
}

func (r *RebootRecorder) Reboot(_ context.Context, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.calls++

	if r.FailTimes.Load() > 0 {
		r.FailTimes.Add(-1)

		return ErrRebootFailed
	}

	r.reasons = append(r.reasons, reason)

	return nil
}

func (r *RebootRecorder) Calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.calls
}

// Reasons returns the reasons of the successful requests.
func (r *RebootRecorder) Reasons() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]string(nil), r.reasons...)
}
