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

import (
	"errors"
	"fmt"
	"strings"

	"github.com/united-manufacturing-hub/component-manager/pkg/moniker"
)

var ErrInvalid = errors.New("invalid component declaration")

// ValidationError lists every problem found in a declaration.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", ErrInvalid, strings.Join(e.Problems, "; "))
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalid
}

type validator struct {
	c        *Component
	problems []string
}

func (v *validator) addf(format string, args ...interface{}) {
	v.problems = append(v.problems, fmt.Sprintf(format, args...))
}

// Validate checks names, references and strong dependency cycles. It
// returns a *ValidationError or nil.
func (c *Component) Validate() error {
	v := &validator{c: c}

	v.program()
	v.environments()
	v.children()
	v.collections()
	v.uses()
	v.offers()
	v.exposes()

	if at, found := findCycle(c.StrongDependencies()); found {
		v.addf("strong dependency cycle through %s", at)
	}

	if len(v.problems) == 0 {
		return nil
	}

	return &ValidationError{Problems: v.problems}
}

func (v *validator) program() {
	if v.c.Program != nil && v.c.Program.Runner == "" {
		v.addf("program: runner must be set")
	}
}

func (v *validator) environments() {
	seen := make(map[string]bool)

	for _, env := range v.c.Environments {
		if err := moniker.ValidateName(env.Name); err != nil {
			v.addf("environment %q: %s", env.Name, err)
		}

		if seen[env.Name] {
			v.addf("environment %q: duplicate name", env.Name)
		}

		seen[env.Name] = true

		switch env.Extends.OrDefault() {
		case ExtendsRealm:
		case ExtendsNone:
			if env.StopTimeoutMs == nil {
				v.addf("environment %q: stopTimeoutMs is required when extends is none", env.Name)
			}
		default:
			v.addf("environment %q: unknown extends %q", env.Name, env.Extends)
		}

		for _, r := range env.Runners {
			if r.Name == "" || r.From == "" {
				v.addf("environment %q: runner registrations need name and from", env.Name)
			}
		}

		for _, r := range env.Resolvers {
			if r.Scheme == "" || r.FromScheme == "" {
				v.addf("environment %q: resolver registrations need scheme and fromScheme", env.Name)
			}
		}
	}
}

func (v *validator) environmentRef(owner, name string) {
	if name == "" {
		return
	}

	if _, ok := v.c.FindEnvironment(name); !ok {
		v.addf("%s: environment %q is not declared", owner, name)
	}
}

func (v *validator) children() {
	seen := make(map[string]bool)

	for _, child := range v.c.Children {
		owner := fmt.Sprintf("child %q", child.Name)

		if err := moniker.ValidateName(child.Name); err != nil {
			v.addf("%s: %s", owner, err)
		}

		if seen[child.Name] {
			v.addf("%s: duplicate name", owner)
		}

		seen[child.Name] = true

		if child.URL == "" {
			v.addf("%s: url must be set", owner)
		}

		switch child.Startup.OrDefault() {
		case StartupLazy, StartupEager:
		default:
			v.addf("%s: unknown startup %q", owner, child.Startup)
		}

		switch child.OnTerminate.OrDefault() {
		case OnTerminateNone, OnTerminateReboot:
		default:
			v.addf("%s: unknown onTerminate %q", owner, child.OnTerminate)
		}

		v.environmentRef(owner, child.Environment)
	}
}

func (v *validator) collections() {
	seen := make(map[string]bool)

	for _, coll := range v.c.Collections {
		owner := fmt.Sprintf("collection %q", coll.Name)

		if err := moniker.ValidateName(coll.Name); err != nil {
			v.addf("%s: %s", owner, err)
		}

		if seen[coll.Name] {
			v.addf("%s: duplicate name", owner)
		}

		if _, clash := v.c.FindChild(coll.Name); clash {
			v.addf("%s: name is also used by a child", owner)
		}

		seen[coll.Name] = true

		if !coll.Durability.Valid() {
			v.addf("%s: unknown durability %q", owner, coll.Durability)
		}

		switch coll.AllowedOffers.OrDefault() {
		case AllowedOffersStaticOnly, AllowedOffersStaticAndDynamic:
		default:
			v.addf("%s: unknown allowedOffers %q", owner, coll.AllowedOffers)
		}

		v.environmentRef(owner, coll.Environment)
	}
}

func (v *validator) uses() {
	for _, u := range v.c.Uses {
		owner := fmt.Sprintf("use %q", u.Name)

		if !u.Type.Valid() {
			v.addf("%s: unknown type %q", owner, u.Type)
		}

		if u.Name == "" {
			v.addf("use: name must be set")
		}

		switch u.Source {
		case "", RefParent, RefFramework, RefSelf:
		default:
			name, ok := u.Source.Named()
			if !ok {
				v.addf("%s: invalid source %q", owner, u.Source)
			} else if _, found := v.c.FindChild(name); !found {
				v.addf("%s: source child %q is not declared", owner, name)
			}
		}
	}
}

func (v *validator) offers() {
	for _, o := range v.c.Offers {
		owner := fmt.Sprintf("offer %q", o.SourceName)

		if !o.Type.Valid() {
			v.addf("%s: unknown type %q", owner, o.Type)
		}

		if o.SourceName == "" {
			v.addf("offer: sourceName must be set")
		}

		v.offerSource(owner, o)

		target, ok := o.Target.Named()
		if !ok {
			v.addf("%s: target must be a child or collection, got %q", owner, o.Target)

			continue
		}

		_, isChild := v.c.FindChild(target)
		_, isColl := v.c.FindCollection(target)

		if !isChild && !isColl {
			v.addf("%s: target %q is not declared", owner, target)
		}

		if o.Source == o.Target {
			v.addf("%s: source and target are both %q", owner, target)
		}
	}
}

func (v *validator) offerSource(owner string, o Offer) {
	switch o.Source {
	case RefParent, RefSelf, RefFramework, RefVoid:
		return
	}

	name, ok := o.Source.Named()
	if !ok {
		v.addf("%s: invalid source %q", owner, o.Source)

		return
	}

	if _, found := v.c.FindChild(name); found {
		return
	}

	if _, found := v.c.FindCollection(name); found && o.Type == CapabilityService {
		return
	}

	v.addf("%s: source %q is not a declared child", owner, name)
}

func (v *validator) exposes() {
	for _, e := range v.c.Exposes {
		owner := fmt.Sprintf("expose %q", e.SourceName)

		switch e.Source {
		case RefSelf, RefFramework:
			continue
		}

		name, ok := e.Source.Named()
		if !ok {
			v.addf("%s: invalid source %q", owner, e.Source)

			continue
		}

		if _, found := v.c.FindChild(name); !found {
			if _, isColl := v.c.FindCollection(name); !isColl || e.Type != CapabilityService {
				v.addf("%s: source %q is not declared", owner, name)
			}
		}
	}
}

// ValidateDynamicOffer checks an offer supplied when creating a child at
// runtime. Its target is implicit. Named sources must be static children.
func (c *Component) ValidateDynamicOffer(o Offer) error {
	if o.Target != "" {
		return fmt.Errorf("%w: dynamic offer %q must not name a target", ErrInvalid, o.SourceName)
	}

	if !o.Type.Valid() || o.SourceName == "" {
		return fmt.Errorf("%w: dynamic offer %q has type %q", ErrInvalid, o.SourceName, o.Type)
	}

	switch o.Source {
	case RefParent, RefSelf, RefFramework, RefVoid:
		return nil
	}

	name, ok := o.Source.Named()
	if !ok {
		return fmt.Errorf("%w: dynamic offer %q has invalid source %q", ErrInvalid, o.SourceName, o.Source)
	}

	if _, found := c.FindChild(name); !found {
		return fmt.Errorf("%w: dynamic offer %q names undeclared child %q", ErrInvalid, o.SourceName, name)
	}

	return nil
}
