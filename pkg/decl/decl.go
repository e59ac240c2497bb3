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

// Package decl holds the declaration of a component: what it runs, which
// capabilities it uses and routes, and which children and collections it has.
//
// Declarations are authored as YAML, TOML or JSON manifests:
//
//	program:
//	  runner: builtin
//	  info:
//	    binary: echo
//	uses:
//	  - type: storage
//	    name: data
//	    path: /data
//	offers:
//	  - type: protocol
//	    source: "#d"
//	    sourceName: umh.Log
//	    target: "#c"
//	children:
//	  - name: c
//	    url: file:///c.yaml
//	    startup: eager
//	collections:
//	  - name: jobs
//	    durability: single_run
package decl

import (
	"strings"

	"github.com/tiendc/go-deepcopy"
)

type Component struct {
	Program      *Program          `yaml:"program,omitempty" json:"program,omitempty" toml:"program,omitempty"`
	Uses         []Use             `yaml:"uses,omitempty" json:"uses,omitempty" toml:"uses,omitempty"`
	Offers       []Offer           `yaml:"offers,omitempty" json:"offers,omitempty" toml:"offers,omitempty"`
	Exposes      []Expose          `yaml:"exposes,omitempty" json:"exposes,omitempty" toml:"exposes,omitempty"`
	Children     []Child           `yaml:"children,omitempty" json:"children,omitempty" toml:"children,omitempty"`
	Collections  []Collection      `yaml:"collections,omitempty" json:"collections,omitempty" toml:"collections,omitempty"`
	Environments []Environment     `yaml:"environments,omitempty" json:"environments,omitempty" toml:"environments,omitempty"`
	Facets       map[string]string `yaml:"facets,omitempty" json:"facets,omitempty" toml:"facets,omitempty"`
}

// Program names the runner that executes the component and carries
// runner-specific data.
type Program struct {
	Runner string            `yaml:"runner" json:"runner" toml:"runner"`
	Args   []string          `yaml:"args,omitempty" json:"args,omitempty" toml:"args,omitempty"`
	Env    map[string]string `yaml:"env,omitempty" json:"env,omitempty" toml:"env,omitempty"`
	Info   map[string]string `yaml:"info,omitempty" json:"info,omitempty" toml:"info,omitempty"`
}

type Use struct {
	Type       CapabilityType `yaml:"type" json:"type" toml:"type"`
	Source     Ref            `yaml:"source,omitempty" json:"source,omitempty" toml:"source,omitempty"`
	Name       string         `yaml:"name" json:"name" toml:"name"`
	Path       string         `yaml:"path,omitempty" json:"path,omitempty" toml:"path,omitempty"`
	Dependency DependencyType `yaml:"dependency,omitempty" json:"dependency,omitempty" toml:"dependency,omitempty"`
}

// Offer routes a capability from Source to Target. In a dynamic offer the
// target is left empty and means the child being created.
type Offer struct {
	Type       CapabilityType `yaml:"type" json:"type" toml:"type"`
	Source     Ref            `yaml:"source" json:"source" toml:"source"`
	SourceName string         `yaml:"sourceName" json:"sourceName" toml:"sourceName"`
	Target     Ref            `yaml:"target,omitempty" json:"target,omitempty" toml:"target,omitempty"`
	TargetName string         `yaml:"targetName,omitempty" json:"targetName,omitempty" toml:"targetName,omitempty"`
	Dependency DependencyType `yaml:"dependency,omitempty" json:"dependency,omitempty" toml:"dependency,omitempty"`
}

type Expose struct {
	Type       CapabilityType `yaml:"type" json:"type" toml:"type"`
	Source     Ref            `yaml:"source" json:"source" toml:"source"`
	SourceName string         `yaml:"sourceName" json:"sourceName" toml:"sourceName"`
	TargetName string         `yaml:"targetName,omitempty" json:"targetName,omitempty" toml:"targetName,omitempty"`
}

type Child struct {
	Name        string      `yaml:"name" json:"name" toml:"name"`
	URL         string      `yaml:"url" json:"url" toml:"url"`
	Startup     StartupMode `yaml:"startup,omitempty" json:"startup,omitempty" toml:"startup,omitempty"`
	OnTerminate OnTerminate `yaml:"onTerminate,omitempty" json:"onTerminate,omitempty" toml:"onTerminate,omitempty"`
	Environment string      `yaml:"environment,omitempty" json:"environment,omitempty" toml:"environment,omitempty"`
}

type Collection struct {
	Name          string        `yaml:"name" json:"name" toml:"name"`
	Durability    Durability    `yaml:"durability" json:"durability" toml:"durability"`
	AllowedOffers AllowedOffers `yaml:"allowedOffers,omitempty" json:"allowedOffers,omitempty" toml:"allowedOffers,omitempty"`
	Environment   string        `yaml:"environment,omitempty" json:"environment,omitempty" toml:"environment,omitempty"`
}

// Environment is a named execution configuration children can be placed in.
type Environment struct {
	Name    string  `yaml:"name" json:"name" toml:"name"`
	Extends Extends `yaml:"extends,omitempty" json:"extends,omitempty" toml:"extends,omitempty"`
	// StopTimeoutMs is required when Extends is none.
	StopTimeoutMs *uint32                `yaml:"stopTimeoutMs,omitempty" json:"stopTimeoutMs,omitempty" toml:"stopTimeoutMs,omitempty"`
	Runners       []RunnerRegistration   `yaml:"runners,omitempty" json:"runners,omitempty" toml:"runners,omitempty"`
	Resolvers     []ResolverRegistration `yaml:"resolvers,omitempty" json:"resolvers,omitempty" toml:"resolvers,omitempty"`
}

// RunnerRegistration makes the runner known as From in the enclosing
// environment chain available under Name.
type RunnerRegistration struct {
	Name string `yaml:"name" json:"name" toml:"name"`
	From string `yaml:"from" json:"from" toml:"from"`
}

// ResolverRegistration resolves URLs of Scheme with the resolver that
// handles FromScheme in the enclosing environment chain.
type ResolverRegistration struct {
	Scheme     string `yaml:"scheme" json:"scheme" toml:"scheme"`
	FromScheme string `yaml:"fromScheme" json:"fromScheme" toml:"fromScheme"`
}

// Ref points at the origin or destination of a capability route. Children
// and collections are written as "#name".
type Ref string

const (
	RefParent    Ref = "parent"
	RefSelf      Ref = "self"
	RefFramework Ref = "framework"
	RefVoid      Ref = "void"
)

// ChildRef refers to a child or collection by name.
func ChildRef(name string) Ref {
	return Ref("#" + name)
}

// Named returns the child or collection name of a "#name" reference.
func (r Ref) Named() (string, bool) {
	s := string(r)
	if !strings.HasPrefix(s, "#") || len(s) == 1 {
		return "", false
	}

	return s[1:], true
}

// Clone creates a deep copy of the declaration.
func (c *Component) Clone() *Component {
	if c == nil {
		return nil
	}

	clone := &Component{}
	_ = deepcopy.Copy(clone, c)

	return clone
}

func (c *Component) FindChild(name string) (Child, bool) {
	for _, child := range c.Children {
		if child.Name == name {
			return child, true
		}
	}

	return Child{}, false
}

func (c *Component) FindCollection(name string) (Collection, bool) {
	for _, coll := range c.Collections {
		if coll.Name == name {
			return coll, true
		}
	}

	return Collection{}, false
}

func (c *Component) FindEnvironment(name string) (Environment, bool) {
	for _, env := range c.Environments {
		if env.Name == name {
			return env, true
		}
	}

	return Environment{}, false
}

// StorageUses returns the uses of storage capabilities, in declaration order.
func (c *Component) StorageUses() []Use {
	var out []Use

	for _, u := range c.Uses {
		if u.Type == CapabilityStorage {
			out = append(out, u)
		}
	}

	return out
}
