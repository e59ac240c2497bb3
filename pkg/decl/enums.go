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

type CapabilityType string

const (
	CapabilityProtocol  CapabilityType = "protocol"
	CapabilityService   CapabilityType = "service"
	CapabilityDirectory CapabilityType = "directory"
	CapabilityStorage   CapabilityType = "storage"
	CapabilityRunner    CapabilityType = "runner"
	CapabilityResolver  CapabilityType = "resolver"
	CapabilityEvent     CapabilityType = "event_stream"
)

func (t CapabilityType) Valid() bool {
	switch t {
	case CapabilityProtocol, CapabilityService, CapabilityDirectory, CapabilityStorage,
		CapabilityRunner, CapabilityResolver, CapabilityEvent:
		return true
	default:
		return false
	}
}

// StartupMode controls whether a child starts with its parent.
type StartupMode string

const (
	StartupLazy  StartupMode = "lazy"
	StartupEager StartupMode = "eager"
)

// OrDefault maps the empty value to lazy.
func (s StartupMode) OrDefault() StartupMode {
	if s == "" {
		return StartupLazy
	}

	return s
}

// OnTerminate controls what happens when a component exits on its own.
type OnTerminate string

const (
	OnTerminateNone   OnTerminate = "none"
	OnTerminateReboot OnTerminate = "reboot"
)

func (o OnTerminate) OrDefault() OnTerminate {
	if o == "" {
		return OnTerminateNone
	}

	return o
}

// Durability controls how long members of a collection live.
type Durability string

const (
	// DurabilityTransient members live until deleted or until the parent stops.
	DurabilityTransient Durability = "transient"
	// DurabilitySingleRun members are started on creation and destroyed when they stop.
	DurabilitySingleRun Durability = "single_run"
	// DurabilityPersistent is declared but not supported at runtime.
	DurabilityPersistent Durability = "persistent"
)

func (d Durability) Valid() bool {
	return d == DurabilityTransient || d == DurabilitySingleRun || d == DurabilityPersistent
}

type AllowedOffers string

const (
	AllowedOffersStaticOnly       AllowedOffers = "static_only"
	AllowedOffersStaticAndDynamic AllowedOffers = "static_and_dynamic"
)

func (a AllowedOffers) OrDefault() AllowedOffers {
	if a == "" {
		return AllowedOffersStaticOnly
	}

	return a
}

// DependencyType marks whether a route orders shutdown. Empty means strong.
type DependencyType string

const (
	DependencyStrong DependencyType = "strong"
	DependencyWeak   DependencyType = "weak"
)

func (d DependencyType) IsStrong() bool {
	return d != DependencyWeak
}

type Extends string

const (
	ExtendsRealm Extends = "realm"
	ExtendsNone  Extends = "none"
)

func (e Extends) OrDefault() Extends {
	if e == "" {
		return ExtendsRealm
	}

	return e
}
