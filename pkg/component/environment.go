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
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/united-manufacturing-hub/component-manager/pkg/decl"
	"github.com/united-manufacturing-hub/component-manager/pkg/resolver"
	"github.com/united-manufacturing-hub/component-manager/pkg/runner"
)

// Environment is the execution configuration an instance was created in:
// its stop timeout and the runners and resolvers it can reach. Lookups walk
// the chain of parents and end at the model's registries.
type Environment struct {
	name        string
	parent      *Environment
	stopTimeout time.Duration
	// alias -> name in the parent chain
	runners map[string]string
	// scheme -> scheme in the parent chain
	resolvers map[string]string

	// Set on the root environment only.
	runnerRegistry   *runner.Registry
	resolverRegistry *resolver.Registry
}

func newRootEnvironment(runners *runner.Registry, resolvers *resolver.Registry, stopTimeout time.Duration) *Environment {
	return &Environment{
		name:             "root",
		stopTimeout:      stopTimeout,
		runnerRegistry:   runners,
		resolverRegistry: resolvers,
	}
}

// newDeclaredEnvironment builds a named environment declared by a component
// whose own environment is realm. An environment that does not extend the
// realm still reaches the model's registries.
func newDeclaredEnvironment(d decl.Environment, realm *Environment) *Environment {
	parent := realm
	if d.Extends.OrDefault() == decl.ExtendsNone {
		parent = realm.root()
	}

	env := &Environment{
		name:        d.Name,
		parent:      parent,
		stopTimeout: parent.stopTimeout,
		runners:     make(map[string]string, len(d.Runners)),
		resolvers:   make(map[string]string, len(d.Resolvers)),
	}

	if d.StopTimeoutMs != nil {
		env.stopTimeout = time.Duration(*d.StopTimeoutMs) * time.Millisecond
	}

	for _, r := range d.Runners {
		env.runners[r.Name] = r.From
	}

	for _, r := range d.Resolvers {
		env.resolvers[r.Scheme] = r.FromScheme
	}

	return env
}

func (e *Environment) root() *Environment {
	env := e
	for env.parent != nil {
		env = env.parent
	}

	return env
}

func (e *Environment) Name() string {
	return e.name
}

func (e *Environment) StopTimeout() time.Duration {
	return e.stopTimeout
}

// Runner finds the runner registered as name.
func (e *Environment) Runner(name string) (runner.Runner, error) {
	for env := e; env != nil; env = env.parent {
		if from, ok := env.runners[name]; ok {
			name = from

			continue
		}

		if env.runnerRegistry != nil {
			if run, ok := env.runnerRegistry.Lookup(name); ok {
				return run, nil
			}
		}
	}

	return nil, fmt.Errorf("%w: %q", ErrNoRunner, name)
}

// Resolve resolves rawURL with the resolver the chain maps its scheme to.
func (e *Environment) Resolve(ctx context.Context, rawURL string) (resolver.ResolvedComponent, error) {
	scheme, err := resolver.Scheme(rawURL)
	if err != nil {
		return resolver.ResolvedComponent{}, &resolver.Error{URL: rawURL, Err: err}
	}

	for env := e; env != nil; env = env.parent {
		if from, ok := env.resolvers[scheme]; ok {
			scheme = from

			continue
		}

		if env.resolverRegistry != nil {
			if res, ok := env.resolverRegistry.Lookup(scheme); ok {
				rc, err := res.Resolve(ctx, rawURL)
				if err != nil {
					var rerr *resolver.Error
					if errors.As(err, &rerr) {
						return resolver.ResolvedComponent{}, err
					}

					return resolver.ResolvedComponent{}, &resolver.Error{URL: rawURL, Err: err}
				}

				return rc, nil
			}
		}
	}

	return resolver.ResolvedComponent{}, &resolver.Error{
		URL: rawURL,
		Err: fmt.Errorf("%w %q", resolver.ErrUnknownScheme, scheme),
	}
}
