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

// Package promise provides a single-assignment value many goroutines can wait on.
package promise

import (
	"context"
	"sync"
)

// Promise is resolved exactly once. Later Resolve calls are ignored.
type Promise[T any] struct {
	done chan struct{}
	once sync.Once
	val  T
	err  error
}

func New[T any]() *Promise[T] {
	return &Promise[T]{done: make(chan struct{})}
}

// Resolve stores the result and wakes every waiter. It reports whether
// this call won.
func (p *Promise[T]) Resolve(val T, err error) bool {
	won := false

	p.once.Do(func() {
		p.val = val
		p.err = err
		won = true

		close(p.done)
	})

	return won
}

// Done is closed once the promise is resolved.
func (p *Promise[T]) Done() <-chan struct{} {
	return p.done
}

// Wait blocks until the promise is resolved or ctx is done. Giving up on
// ctx does not affect the promise.
func (p *Promise[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-p.done:
		return p.val, p.err
	case <-ctx.Done():
		var zero T

		return zero, ctx.Err()
	}
}

// Result returns the stored result, or false if not yet resolved.
func (p *Promise[T]) Result() (T, error, bool) {
	select {
	case <-p.done:
		return p.val, p.err, true
	default:
		var zero T

		return zero, nil, false
	}
}
