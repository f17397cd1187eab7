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

package dbcontext

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/tomoncle/transact/database"
	"github.com/uptrace/bun"
)

var (
	// ErrPoolReleased is returned when registering into a released pool.
	ErrPoolReleased = errors.New("dbcontext: pool already released")
	// ErrNoPool is returned when ctx carries no pool.
	ErrNoPool = errors.New("dbcontext: no context pool in context")
	// ErrUnknownLocator is returned by providers for unconfigured locators.
	ErrUnknownLocator = database.ErrUnknownLocator
)

// Provider resolves the database of a locator. *database.ContextFactory
// implements it.
type Provider interface {
	DB(ctx context.Context, locator string) (*bun.DB, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context, locator string) (*bun.DB, error)

func (f ProviderFunc) DB(ctx context.Context, locator string) (*bun.DB, error) {
	return f(ctx, locator)
}

// Static serves a fixed set of databases.
type Static map[string]*bun.DB

func (s Static) DB(_ context.Context, locator string) (*bun.DB, error) {
	db, ok := s[locator]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownLocator, locator)
	}
	return db, nil
}

var _ Provider = (*database.ContextFactory)(nil)

// Pool tracks the contexts used by one operation, at most one per locator,
// in the order they were first registered.
type Pool struct {
	provider Provider

	mu        sync.Mutex
	contexts  []*DbContext
	byLocator map[string]*DbContext
	released  bool
}

func NewPool(provider Provider) *Pool {
	return &Pool{provider: provider, byLocator: make(map[string]*DbContext)}
}

// Register returns the context of locator, creating it on first use.
func (p *Pool) Register(ctx context.Context, locator string) (*DbContext, error) {
	if locator == "" {
		locator = DefaultLocator
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.released {
		return nil, ErrPoolReleased
	}
	if c, ok := p.byLocator[locator]; ok {
		return c, nil
	}
	db, err := p.provider.DB(ctx, locator)
	if err != nil {
		return nil, err
	}
	c := New(locator, db)
	p.contexts = append(p.contexts, c)
	p.byLocator[locator] = c
	return c, nil
}

// Add tracks an existing context. A context already tracked for the same
// locator is replaced in place.
func (p *Pool) Add(c *DbContext) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.released {
		return ErrPoolReleased
	}
	if prev, ok := p.byLocator[c.Locator()]; ok {
		for i := range p.contexts {
			if p.contexts[i] == prev {
				p.contexts[i] = c
			}
		}
	} else {
		p.contexts = append(p.contexts, c)
	}
	p.byLocator[c.Locator()] = c
	return nil
}

// Get returns the context of locator if it was registered.
func (p *Pool) Get(locator string) (*DbContext, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	c, ok := p.byLocator[locator]
	return c, ok
}

// Contexts returns the registered contexts in registration order.
func (p *Pool) Contexts() []*DbContext {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*DbContext, len(p.contexts))
	copy(out, p.contexts)
	return out
}

func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.contexts)
}

// HasChanges reports whether any registered context has pending changes.
func (p *Pool) HasChanges() bool {
	for _, c := range p.Contexts() {
		if c.HasChanges() {
			return true
		}
	}
	return false
}

// SaveAllPending saves every context that has pending changes, in
// registration order, and returns the total number of entries written. It
// stops at the first failure and returns that error unchanged.
func (p *Pool) SaveAllPending(ctx context.Context) (int, error) {
	total := 0
	for _, c := range p.Contexts() {
		if !c.HasChanges() {
			continue
		}
		n, err := c.SaveChanges(ctx)
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

// Release discards every context. Later registrations fail.
func (p *Pool) Release() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, c := range p.contexts {
		c.Discard()
	}
	p.contexts = nil
	p.byLocator = make(map[string]*DbContext)
	p.released = true
}

type poolKey struct{}

// WithPool returns a context carrying p.
func WithPool(ctx context.Context, p *Pool) context.Context {
	return context.WithValue(ctx, poolKey{}, p)
}

// PoolFromContext returns the pool carried by ctx, or nil.
func PoolFromContext(ctx context.Context) *Pool {
	p, _ := ctx.Value(poolKey{}).(*Pool)
	return p
}

// Register resolves the context of locator from the pool carried by ctx.
func Register(ctx context.Context, locator string) (*DbContext, error) {
	p := PoolFromContext(ctx)
	if p == nil {
		return nil, ErrNoPool
	}
	return p.Register(ctx, locator)
}
