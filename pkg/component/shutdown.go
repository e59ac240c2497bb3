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
	"sort"

	"go.uber.org/zap"

	"github.com/united-manufacturing-hub/component-manager/pkg/decl"
	"github.com/united-manufacturing-hub/component-manager/pkg/moniker"
)

const selfKey = "self"

// shutdownGraph orders the shutdown of one instance and its children. An
// edge from a dependent to a provider means the dependent shuts down first.
type shutdownGraph struct {
	nodes map[string]*ComponentInstance // nil for self
	// dependent -> providers
	providers map[string]map[string]struct{}
	// provider -> dependents
	dependents map[string]map[string]struct{}
}

func newShutdownGraph() *shutdownGraph {
	return &shutdownGraph{
		nodes:      map[string]*ComponentInstance{selfKey: nil},
		providers:  make(map[string]map[string]struct{}),
		dependents: make(map[string]map[string]struct{}),
	}
}

func (g *shutdownGraph) addEdge(dependent, provider string) {
	if dependent == provider {
		return
	}

	if _, ok := g.nodes[dependent]; !ok {
		return
	}

	if _, ok := g.nodes[provider]; !ok {
		return
	}

	if g.providers[dependent] == nil {
		g.providers[dependent] = make(map[string]struct{})
	}

	if g.dependents[provider] == nil {
		g.dependents[provider] = make(map[string]struct{})
	}

	g.providers[dependent][provider] = struct{}{}
	g.dependents[provider][dependent] = struct{}{}
}

// reachableFromSelf returns every node self depends on, directly or not.
func (g *shutdownGraph) reachableFromSelf() map[string]bool {
	seen := map[string]bool{selfKey: true}
	queue := []string{selfKey}

	for len(queue) > 0 {
		next := queue[0]
		queue = queue[1:]

		for p := range g.providers[next] {
			if !seen[p] {
				seen[p] = true
				queue = append(queue, p)
			}
		}
	}

	return seen
}

// buildShutdownGraph collects the strong dependencies between self and the
// children. Must be called with the state lock held.
func buildShutdownGraph(resolved *ResolvedInstanceState) *shutdownGraph {
	g := newShutdownGraph()
	for cm, child := range resolved.children {
		g.nodes[cm.String()] = child
	}

	keysFor := func(n decl.Node) []string {
		switch n.Kind {
		case decl.NodeSelf:
			return []string{selfKey}
		case decl.NodeChild:
			return []string{moniker.NewChildMoniker(moniker.ChildName{Name: n.Name}, 0).String()}
		case decl.NodeCollection:
			var keys []string
			for _, cm := range resolved.childrenIn(n.Name) {
				keys = append(keys, cm.String())
			}

			return keys
		}

		return nil
	}

	for _, e := range resolved.decl.StrongDependencies() {
		for _, dependent := range keysFor(e.Dependent) {
			for _, provider := range keysFor(e.Provider) {
				g.addEdge(dependent, provider)
			}
		}
	}

	for cm, offers := range resolved.dynamicOffers {
		for _, o := range offers {
			if !o.Dependency.IsStrong() {
				continue
			}

			provider, ok := resolved.decl.RefNode(o.Source)
			if !ok {
				continue
			}

			for _, key := range keysFor(provider) {
				g.addEdge(cm.String(), key)
			}
		}
	}

	// Children that self does not depend on go down before self.
	reachable := g.reachableFromSelf()
	for key := range g.nodes {
		if !reachable[key] {
			g.addEdge(key, selfKey)
		}
	}

	return g
}

type shutdownResult struct {
	key string
	err error
}

// run shuts every node down once all of its dependents are down. Every node
// is attempted and the first error is returned. On a cycle the remaining
// children are shut down together and self goes last.
func (g *shutdownGraph) run(log *zap.SugaredLogger, shut func(key string, child *ComponentInstance) error) error {
	pending := make(map[string]int, len(g.nodes))
	for key := range g.nodes {
		pending[key] = len(g.dependents[key])
	}

	started := make(map[string]bool, len(g.nodes))
	results := make(chan shutdownResult, len(g.nodes))
	running := 0

	launch := func(key string) {
		started[key] = true
		running++

		go func() {
			results <- shutdownResult{key: key, err: shut(key, g.nodes[key])}
		}()
	}

	for _, key := range sortedKeys(pending) {
		if pending[key] == 0 {
			launch(key)
		}
	}

	var firstErr error

	cycle := false

	for finished := 0; finished < len(g.nodes); {
		if running == 0 {
			if !cycle {
				cycle = true

				log.Warnw("shutdown_dependency_cycle", "remaining", len(g.nodes)-finished)
			}

			// Every unstarted child goes at once, including acyclic ones
			// that still wait on a dependent. Their ordering is lost.
			launched := false

			for _, key := range sortedKeys(pending) {
				if !started[key] && key != selfKey {
					launch(key)

					launched = true
				}
			}

			if !launched {
				launch(selfKey)
			}
		}

		res := <-results
		running--
		finished++

		if res.err != nil && firstErr == nil {
			firstErr = res.err
		}

		for provider := range g.providers[res.key] {
			pending[provider]--

			if pending[provider] > 0 || started[provider] {
				continue
			}

			if cycle && provider == selfKey {
				continue
			}

			launch(provider)
		}
	}

	return firstErr
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys
}

// shutdown shuts the instance and its subtree down so that no child stops
// before the children that depend on it.
func (c *ComponentInstance) shutdown(ctx context.Context) error {
	c.stateLock.RLock()

	if c.state.resolved == nil {
		c.stateLock.RUnlock()

		return c.stopInstance(ctx, true, false)
	}

	g := buildShutdownGraph(c.state.resolved)
	c.stateLock.RUnlock()

	return g.run(c.logger, func(key string, child *ComponentInstance) error {
		if key == selfKey {
			return c.stopInstance(ctx, true, false)
		}

		return child.Register(ctx, ShutdownAction())
	})
}
