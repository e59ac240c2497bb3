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

// Package moniker identifies component instances by their position in the tree.
//
// A ChildName is what a declaration calls a child: a name and, for dynamic
// children, the collection it lives in. A ChildMoniker adds the instance id,
// which distinguishes successive incarnations of the same ChildName. A Moniker
// is the path of ChildMonikers from the root.
//
// String forms:
//
//	ChildName     "name" or "coll:name"
//	ChildMoniker  "name:0" or "coll:name:3"
//	Moniker       "/" for the root, "/core/coll:name" otherwise (ids omitted)
package moniker

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// MaxNameLength bounds child and collection names.
const MaxNameLength = 1024

var ErrInvalidName = errors.New("invalid name")

// InstanceID distinguishes incarnations of a ChildName. Static children
// always have id 0.
type InstanceID uint32

type ChildName struct {
	Collection string
	Name       string
}

// NewChildName builds a ChildName after validating both parts.
func NewChildName(name, collection string) (ChildName, error) {
	if err := ValidateName(name); err != nil {
		return ChildName{}, err
	}

	if collection != "" {
		if err := ValidateName(collection); err != nil {
			return ChildName{}, err
		}
	}

	return ChildName{Collection: collection, Name: name}, nil
}

func (c ChildName) String() string {
	if c.Collection == "" {
		return c.Name
	}

	return c.Collection + ":" + c.Name
}

// IsDynamic reports whether the child lives in a collection.
func (c ChildName) IsDynamic() bool {
	return c.Collection != ""
}

// ParseChildName parses "name" or "coll:name".
func ParseChildName(s string) (ChildName, error) {
	parts := strings.Split(s, ":")

	switch len(parts) {
	case 1:
		return NewChildName(parts[0], "")
	case 2:
		return NewChildName(parts[1], parts[0])
	default:
		return ChildName{}, fmt.Errorf("%w: %q has too many segments", ErrInvalidName, s)
	}
}

type ChildMoniker struct {
	ChildName
	InstanceID InstanceID
}

func NewChildMoniker(name ChildName, id InstanceID) ChildMoniker {
	return ChildMoniker{ChildName: name, InstanceID: id}
}

func (c ChildMoniker) String() string {
	return c.ChildName.String() + ":" + strconv.FormatUint(uint64(c.InstanceID), 10)
}

// ParseChildMoniker parses "name:id" or "coll:name:id".
func ParseChildMoniker(s string) (ChildMoniker, error) {
	idx := strings.LastIndex(s, ":")
	if idx < 0 {
		return ChildMoniker{}, fmt.Errorf("%w: %q has no instance id", ErrInvalidName, s)
	}

	id, err := strconv.ParseUint(s[idx+1:], 10, 32)
	if err != nil {
		return ChildMoniker{}, fmt.Errorf("%w: %q has a malformed instance id: %w", ErrInvalidName, s, err)
	}

	name, err := ParseChildName(s[:idx])
	if err != nil {
		return ChildMoniker{}, err
	}

	return NewChildMoniker(name, InstanceID(id)), nil
}

// ValidateName checks a child or collection name.
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty", ErrInvalidName)
	}

	if len(name) > MaxNameLength {
		return fmt.Errorf("%w: %d characters exceeds %d", ErrInvalidName, len(name), MaxNameLength)
	}

	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '_' || r == '-' || r == '.':
		default:
			return fmt.Errorf("%w: %q contains %q", ErrInvalidName, name, r)
		}
	}

	return nil
}

// Moniker is an absolute path from the root. The zero value is the root.
type Moniker struct {
	path []ChildMoniker
}

func Root() Moniker {
	return Moniker{}
}

func (m Moniker) IsRoot() bool {
	return len(m.path) == 0
}

// Path returns a copy of the path segments.
func (m Moniker) Path() []ChildMoniker {
	out := make([]ChildMoniker, len(m.path))
	copy(out, m.path)

	return out
}

// Child returns the moniker of a child of m.
func (m Moniker) Child(child ChildMoniker) Moniker {
	path := make([]ChildMoniker, len(m.path), len(m.path)+1)
	copy(path, m.path)

	return Moniker{path: append(path, child)}
}

// Parent returns the moniker of the parent, or false for the root.
func (m Moniker) Parent() (Moniker, bool) {
	if m.IsRoot() {
		return Moniker{}, false
	}

	return Moniker{path: m.path[:len(m.path)-1]}, true
}

// Leaf returns the last segment, or false for the root.
func (m Moniker) Leaf() (ChildMoniker, bool) {
	if m.IsRoot() {
		return ChildMoniker{}, false
	}

	return m.path[len(m.path)-1], true
}

// Depth is the number of segments below the root.
func (m Moniker) Depth() int {
	return len(m.path)
}

// Equal compares monikers including instance ids.
func (m Moniker) Equal(other Moniker) bool {
	if len(m.path) != len(other.path) {
		return false
	}

	for i := range m.path {
		if m.path[i] != other.path[i] {
			return false
		}
	}

	return true
}

func (m Moniker) String() string {
	if m.IsRoot() {
		return "/"
	}

	var b strings.Builder
	for _, c := range m.path {
		b.WriteByte('/')
		b.WriteString(c.ChildName.String())
	}

	return b.String()
}

// InstancedString renders the moniker with instance ids.
func (m Moniker) InstancedString() string {
	if m.IsRoot() {
		return "/"
	}

	var b strings.Builder
	for _, c := range m.path {
		b.WriteByte('/')
		b.WriteString(c.String())
	}

	return b.String()
}

// Parse parses "/", "/a/coll:b". Instance ids are not part of this form and
// are set to zero; lookups by the result match on ChildName.
func Parse(s string) (Moniker, error) {
	if !strings.HasPrefix(s, "/") {
		return Moniker{}, fmt.Errorf("%w: moniker %q must start with '/'", ErrInvalidName, s)
	}

	trimmed := strings.Trim(s, "/")
	if trimmed == "" {
		return Root(), nil
	}

	segments := strings.Split(trimmed, "/")
	path := make([]ChildMoniker, 0, len(segments))

	for _, seg := range segments {
		name, err := ParseChildName(seg)
		if err != nil {
			return Moniker{}, err
		}

		path = append(path, NewChildMoniker(name, 0))
	}

	return Moniker{path: path}, nil
}
