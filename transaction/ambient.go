/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package transaction

import (
	"context"

	"golang.org/x/sync/errgroup"
)

type scopeKey struct{}

func withScope(ctx context.Context, s *Scope) context.Context {
	return context.WithValue(ctx, scopeKey{}, s)
}

// FromContext returns the innermost scope carried by ctx, or nil.
func FromContext(ctx context.Context) *Scope {
	if ctx == nil {
		return nil
	}
	s, _ := ctx.Value(scopeKey{}).(*Scope)
	return s
}

// IsSuppressed reports whether ctx runs inside a Suppress scope.
func IsSuppressed(ctx context.Context) bool {
	s := FromContext(ctx)
	return s != nil && s.suppress
}

// active returns the root scope that owns the ambient transaction, or nil
// when ctx carries none or the innermost scope suppresses it.
func active(ctx context.Context) *Scope {
	s := FromContext(ctx)
	if s == nil || s.suppress {
		return nil
	}
	return s.top()
}

// Detach returns a context that carries no ambient scope.
func Detach(ctx context.Context) context.Context {
	if FromContext(ctx) == nil {
		return ctx
	}
	return withScope(ctx, nil)
}

// Flow returns the context that concurrent work spawned from ctx must use.
// The ambient scope follows only when its AsyncFlow option is enabled.
func Flow(ctx context.Context) context.Context {
	s := FromContext(ctx)
	if s != nil && s.opts.AsyncFlow == AsyncFlowSuppressed {
		return Detach(ctx)
	}
	return ctx
}

// Go runs fn on a new goroutine with the flowed context and delivers its
// error on the returned channel.
func Go(ctx context.Context, fn func(ctx context.Context) error) <-chan error {
	done := make(chan error, 1)
	flowed := Flow(ctx)
	go func() {
		done <- fn(flowed)
	}()
	return done
}

// NewGroup returns an errgroup whose context follows the same flow rule as Go.
func NewGroup(ctx context.Context) (*errgroup.Group, context.Context) {
	return errgroup.WithContext(Flow(ctx))
}

// Info describes the ambient transaction of a context.
type Info struct {
	ID        string
	Isolation IsolationLevel
	Nested    bool
	Locators  []string
}

// Current describes the ambient transaction carried by ctx, or returns nil.
func Current(ctx context.Context) *Info {
	s := FromContext(ctx)
	if s == nil || s.suppress {
		return nil
	}
	root := s.top()
	return &Info{
		ID:        root.id,
		Isolation: root.opts.Isolation,
		Nested:    s.root != nil,
		Locators:  root.Locators(),
	}
}
