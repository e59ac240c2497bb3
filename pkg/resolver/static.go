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

package resolver

import (
	"context"
	"sync"

	"github.com/united-manufacturing-hub/component-manager/pkg/decl"
)

// Static serves declarations registered in memory.
type Static struct {
	mu    sync.RWMutex
	decls map[string]*decl.Component
}

func NewStatic() *Static {
	return &Static{decls: make(map[string]*decl.Component)}
}

// Add registers or replaces the declaration for rawURL.
func (s *Static) Add(rawURL string, c *decl.Component) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.decls[rawURL] = c.Clone()
}

func (s *Static) Remove(rawURL string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.decls, rawURL)
}

// Resolve returns a copy so callers can not mutate the registered declaration.
func (s *Static) Resolve(_ context.Context, rawURL string) (ResolvedComponent, error) {
	s.mu.RLock()
	c, ok := s.decls[rawURL]
	s.mu.RUnlock()

	if !ok {
		return ResolvedComponent{}, wrap(rawURL, ErrNotFound)
	}

	return ResolvedComponent{URL: rawURL, Decl: c.Clone()}, nil
}
