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
	"time"

	"github.com/united-manufacturing-hub/expiremap/v2/pkg/expiremap"
	"golang.org/x/sync/singleflight"
)

type cacheEntry struct {
	rc  ResolvedComponent
	gen uint64
}

// Caching keeps successful resolutions for a TTL and coalesces concurrent
// fetches of the same URL. Failures are never cached.
type Caching struct {
	inner   Resolver
	entries *expiremap.ExpireMap[string, cacheEntry]
	group   singleflight.Group

	// Entries stored under an older generation are misses.
	mu   sync.Mutex
	gens map[string]uint64
	all  uint64
}

func NewCaching(inner Resolver, ttl time.Duration) *Caching {
	cull := ttl
	if cull < time.Second {
		cull = time.Second
	}

	return &Caching{
		inner:   inner,
		entries: expiremap.NewEx[string, cacheEntry](cull, ttl),
		gens:    make(map[string]uint64),
	}
}

func (c *Caching) generation(rawURL string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.all + c.gens[rawURL]
}

// Invalidate drops the cached entry for rawURL, including one being fetched.
func (c *Caching) Invalidate(rawURL string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.gens[rawURL]++
}

func (c *Caching) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.all++
}

// Len counts stored entries, including invalidated ones not yet culled.
func (c *Caching) Len() int {
	return c.entries.Length()
}

func (c *Caching) Resolve(ctx context.Context, rawURL string) (ResolvedComponent, error) {
	gen := c.generation(rawURL)

	if entry, ok := c.entries.Load(rawURL); ok && entry.gen == gen {
		return copyResolved(entry.rc), nil
	}

	v, err, _ := c.group.Do(rawURL, func() (interface{}, error) {
		rc, err := c.inner.Resolve(ctx, rawURL)
		if err != nil {
			return ResolvedComponent{}, err
		}

		if c.generation(rawURL) == gen {
			c.entries.Set(rawURL, cacheEntry{rc: rc, gen: gen})
		}

		return rc, nil
	})
	if err != nil {
		return ResolvedComponent{}, err
	}

	rc, _ := v.(ResolvedComponent)

	return copyResolved(rc), nil
}

func copyResolved(rc ResolvedComponent) ResolvedComponent {
	rc.Decl = rc.Decl.Clone()

	return rc
}
