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

package componenttest

import (
	"time"

	"go.uber.org/zap"

	"github.com/united-manufacturing-hub/component-manager/pkg/component"
	"github.com/united-manufacturing-hub/component-manager/pkg/decl"
	"github.com/united-manufacturing-hub/component-manager/pkg/hooks"
	"github.com/united-manufacturing-hub/component-manager/pkg/resolver"
	"github.com/united-manufacturing-hub/component-manager/pkg/runner"
)

const (
	Scheme     = "test"
	RunnerName = "fake"
)

// URL returns the test URL of the component called name.
func URL(name string) string {
	return Scheme + ":///" + name
}

// DeclBuilder assembles component declarations for tests.
type DeclBuilder struct {
	c decl.Component
}

func NewDecl() *DeclBuilder {
	return &DeclBuilder{}
}

// Program gives the component a program run by the fake runner.
func (b *DeclBuilder) Program() *DeclBuilder {
	b.c.Program = &decl.Program{Runner: RunnerName}

	return b
}

// Child adds a static child whose URL is URL(name).
func (b *DeclBuilder) Child(name string, startup decl.StartupMode) *DeclBuilder {
	return b.ChildDecl(decl.Child{Name: name, URL: URL(name), Startup: startup})
}

func (b *DeclBuilder) ChildDecl(child decl.Child) *DeclBuilder {
	b.c.Children = append(b.c.Children, child)

	return b
}

func (b *DeclBuilder) Collection(name string, durability decl.Durability) *DeclBuilder {
	return b.CollectionDecl(decl.Collection{Name: name, Durability: durability})
}

func (b *DeclBuilder) CollectionDecl(coll decl.Collection) *DeclBuilder {
	b.c.Collections = append(b.c.Collections, coll)

	return b
}

// Offer routes a strong protocol from source to target, both "#name" or
// "self" or "parent".
func (b *DeclBuilder) Offer(source, target decl.Ref) *DeclBuilder {
	return b.OfferDecl(decl.Offer{
		Type:       decl.CapabilityProtocol,
		Source:     source,
		SourceName: "test.Protocol",
		Target:     target,
		Dependency: decl.DependencyStrong,
	})
}

func (b *DeclBuilder) OfferDecl(offer decl.Offer) *DeclBuilder {
	b.c.Offers = append(b.c.Offers, offer)

	return b
}

func (b *DeclBuilder) Use(use decl.Use) *DeclBuilder {
	b.c.Uses = append(b.c.Uses, use)

	return b
}

// Storage adds a use of the storage called name.
func (b *DeclBuilder) Storage(name string) *DeclBuilder {
	return b.Use(decl.Use{Type: decl.CapabilityStorage, Source: decl.RefParent, Name: name, Path: "/" + name})
}

func (b *DeclBuilder) Environment(env decl.Environment) *DeclBuilder {
	b.c.Environments = append(b.c.Environments, env)

	return b
}

func (b *DeclBuilder) Build() *decl.Component {
	return b.c.Clone()
}

// Env is a complete set of fakes around one model.
type Env struct {
	Model    *component.Model
	Resolver *resolver.Static
	Runner   *FakeRunner
	Hook     *RecordingHook
	Router   *FakeRouter
	Rebooter *RebootRecorder
}

type EnvOption func(*component.ModelParams)

// WithStopTimeout sets the default stop timeout.
func WithStopTimeout(d time.Duration) EnvOption {
	return func(p *component.ModelParams) { p.StopTimeout = d }
}

func WithKillTimeout(d time.Duration) EnvOption {
	return func(p *component.ModelParams) { p.KillTimeout = d }
}

// NewEnv builds a model whose root is URL("root") declared as root.
func NewEnv(root *decl.Component, opts ...EnvOption) (*Env, error) {
	env := &Env{
		Resolver: resolver.NewStatic(),
		Runner:   NewFakeRunner(),
		Hook:     NewRecordingHook(),
		Router:   NewFakeRouter(),
		Rebooter: &RebootRecorder{},
	}

	env.Resolver.Add(URL("root"), root)

	resolvers := resolver.NewRegistry()
	if err := resolvers.Register(Scheme, env.Resolver); err != nil {
		return nil, err
	}

	runners := runner.NewRegistry()
	runners.Register(RunnerName, env.Runner)

	dispatcher := hooks.NewDispatcher()
	dispatcher.Subscribe(env.Hook)

	params := component.ModelParams{
		RootURL:             URL("root"),
		Resolvers:           resolvers,
		Runners:             runners,
		Hooks:               dispatcher,
		Router:              env.Router,
		Rebooter:            env.Rebooter,
		StopTimeout:         time.Second,
		KillTimeout:         100 * time.Millisecond,
		RebootRetryInterval: time.Millisecond,
		Logger:              zap.NewNop().Sugar(),
	}

	for _, opt := range opts {
		opt(&params)
	}

	model, err := component.NewModel(params)
	if err != nil {
		return nil, err
	}

	env.Model = model

	return env, nil
}

// Add registers the declaration of the component called name.
func (e *Env) Add(name string, c *decl.Component) {
	e.Resolver.Add(URL(name), c)
}
