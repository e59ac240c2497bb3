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

package decl

type NodeKind int

const (
	NodeSelf NodeKind = iota
	NodeChild
	NodeCollection
)

// Node is a participant in the dependency graph of one component.
type Node struct {
	Kind NodeKind
	Name string
}

var SelfNode = Node{Kind: NodeSelf}

func (n Node) String() string {
	switch n.Kind {
	case NodeSelf:
		return "self"
	case NodeCollection:
		return "#" + n.Name + " (collection)"
	default:
		return "#" + n.Name
	}
}

// Edge says Dependent must shut down before Provider.
type Edge struct {
	Dependent Node
	Provider  Node
}

// StrongDependencies returns the shutdown-ordering edges implied by strong
// offers and uses. Edges from a node to itself are dropped.
func (c *Component) StrongDependencies() []Edge {
	var edges []Edge

	add := func(dependent, provider Node, ok bool) {
		if ok && dependent != provider {
			edges = append(edges, Edge{Dependent: dependent, Provider: provider})
		}
	}

	for _, o := range c.Offers {
		if !o.Dependency.IsStrong() {
			continue
		}

		provider, okSource := c.RefNode(o.Source)
		dependent, okTarget := c.RefNode(o.Target)
		add(dependent, provider, okSource && okTarget)
	}

	for _, u := range c.Uses {
		if !u.Dependency.IsStrong() {
			continue
		}

		if _, isNamed := u.Source.Named(); !isNamed {
			continue
		}

		provider, ok := c.RefNode(u.Source)
		add(SelfNode, provider, ok)
	}

	return edges
}

// RefNode maps a reference to a graph node. Parent, framework and void are
// outside the graph.
func (c *Component) RefNode(r Ref) (Node, bool) {
	if r == RefSelf {
		return SelfNode, true
	}

	name, ok := r.Named()
	if !ok {
		return Node{}, false
	}

	if _, found := c.FindChild(name); found {
		return Node{Kind: NodeChild, Name: name}, true
	}

	if _, found := c.FindCollection(name); found {
		return Node{Kind: NodeCollection, Name: name}, true
	}

	return Node{}, false
}

// findCycle returns a node on a cycle, or false if the graph is acyclic.
func findCycle(edges []Edge) (Node, bool) {
	adj := make(map[Node][]Node)
	for _, e := range edges {
		adj[e.Dependent] = append(adj[e.Dependent], e.Provider)
	}

	const (
		unvisited = iota
		visiting
		done
	)

	color := make(map[Node]int)

	var visit func(n Node) (Node, bool)
	visit = func(n Node) (Node, bool) {
		color[n] = visiting

		for _, next := range adj[n] {
			switch color[next] {
			case visiting:
				return next, true
			case unvisited:
				if at, found := visit(next); found {
					return at, true
				}
			}
		}

		color[n] = done

		return Node{}, false
	}

	for _, e := range edges {
		if color[e.Dependent] == unvisited {
			if at, found := visit(e.Dependent); found {
				return at, true
			}
		}
	}

	return Node{}, false
}
