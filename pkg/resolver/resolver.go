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

// Package resolver turns component URLs into declarations.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"sync"

	"github.com/cespare/xxhash/v2"

	"github.com/united-manufacturing-hub/component-manager/pkg/decl"
)

var (
	ErrNotFound      = errors.New("component not found")
	ErrUnknownScheme = errors.New("no resolver registered for scheme")
	ErrInvalidURL    = errors.New("invalid component url")
)

// Error wraps any failure to fetch or parse the declaration behind URL.
type Error struct {
	URL string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("failed to resolve %s: %v", e.URL, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func wrap(rawURL string, err error) error {
	var rerr *Error
	if errors.As(err, &rerr) {
		return err
	}

	return &Error{URL: rawURL, Err: err}
}

// Package describes the bytes a declaration was decoded from.
type Package struct {
	URL    string
	Digest uint64
	Size   int
}

// NewPackage digests raw manifest bytes.
func NewPackage(rawURL string, data []byte) *Package {
	return &Package{URL: rawURL, Digest: xxhash.Sum64(data), Size: len(data)}
}

func (p *Package) String() string {
	return fmt.Sprintf("%s@%016x", p.URL, p.Digest)
}

type ResolvedComponent struct {
	URL  string
	Decl *decl.Component
	// Package is nil for declarations that did not come from bytes.
	Package *Package
}

type Resolver interface {
	Resolve(ctx context.Context, rawURL string) (ResolvedComponent, error)
}

// Func adapts a function to Resolver.
type Func func(ctx context.Context, rawURL string) (ResolvedComponent, error)

func (f Func) Resolve(ctx context.Context, rawURL string) (ResolvedComponent, error) {
	return f(ctx, rawURL)
}

// Scheme returns the scheme of a component URL.
func Scheme(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidURL, err)
	}

	if u.Scheme == "" {
		return "", fmt.Errorf("%w: %q has no scheme", ErrInvalidURL, rawURL)
	}

	return u.Scheme, nil
}

// Registry dispatches to a resolver by URL scheme.
type Registry struct {
	mu        sync.RWMutex
	resolvers map[string]Resolver
}

func NewRegistry() *Registry {
	return &Registry{resolvers: make(map[string]Resolver)}
}

// Register adds r for scheme. Registering a scheme twice is an error.
func (r *Registry) Register(scheme string, res Resolver) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.resolvers[scheme]; exists {
		return fmt.Errorf("resolver for scheme %q already registered", scheme)
	}

	r.resolvers[scheme] = res

	return nil
}

func (r *Registry) Lookup(scheme string) (Resolver, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	res, ok := r.resolvers[scheme]

	return res, ok
}

func (r *Registry) Schemes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.resolvers))
	for s := range r.resolvers {
		out = append(out, s)
	}

	sort.Strings(out)

	return out
}

// Resolve picks the resolver for the URL's scheme. Errors are *Error.
func (r *Registry) Resolve(ctx context.Context, rawURL string) (ResolvedComponent, error) {
	scheme, err := Scheme(rawURL)
	if err != nil {
		return ResolvedComponent{}, wrap(rawURL, err)
	}

	res, ok := r.Lookup(scheme)
	if !ok {
		return ResolvedComponent{}, wrap(rawURL, fmt.Errorf("%w %q", ErrUnknownScheme, scheme))
	}

	rc, err := res.Resolve(ctx, rawURL)
	if err != nil {
		return ResolvedComponent{}, wrap(rawURL, err)
	}

	return rc, nil
}
