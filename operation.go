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

package transact

import (
	"sort"
	"sync"

	"github.com/tomoncle/transact/transaction"
)

// Operation describes one intercepted unit of work. A nil UnitOfWork means
// the resolver's defaults apply.
type Operation struct {
	Name        string
	NonTransact bool
	UnitOfWork  *transaction.Options
}

// Options returns the effective unit of work options, falling back to
// defaults when none are attached.
func (op Operation) Options(defaults transaction.Options) transaction.Options {
	if op.UnitOfWork != nil {
		return *op.UnitOfWork
	}
	return defaults
}

type OperationOption func(*Operation)

// WithNonTransact marks the operation to run without a unit of work.
func WithNonTransact() OperationOption {
	return func(op *Operation) { op.NonTransact = true }
}

// WithUnitOfWork attaches explicit unit of work options.
func WithUnitOfWork(opts transaction.Options) OperationOption {
	return func(op *Operation) {
		o := opts
		op.UnitOfWork = &o
	}
}

// Resolver holds the operation table and the process-wide defaults.
type Resolver struct {
	mu       sync.RWMutex
	defaults transaction.Options
	ops      map[string]Operation
}

// NewResolver returns a resolver whose unconfigured operations use defaults.
// The zero Options value equals transaction.DefaultOptions.
func NewResolver(defaults transaction.Options) *Resolver {
	return &Resolver{defaults: defaults, ops: make(map[string]Operation)}
}

// Defaults returns the process-wide unit of work options.
func (r *Resolver) Defaults() transaction.Options {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.defaults
}

// SetDefaults replaces the process-wide options.
func (r *Resolver) SetDefaults(opts transaction.Options) {
	r.mu.Lock()
	r.defaults = opts
	r.mu.Unlock()
}

// Register configures name and returns the stored operation. Registering a
// name again replaces it.
func (r *Resolver) Register(name string, opts ...OperationOption) Operation {
	op := Operation{Name: name}
	for _, opt := range opts {
		opt(&op)
	}
	r.mu.Lock()
	r.ops[name] = op
	r.mu.Unlock()
	return op
}

// Resolve returns the operation registered under name with its effective
// options filled in. Unknown names resolve to the defaults.
func (r *Resolver) Resolve(name string) Operation {
	r.mu.RLock()
	op, ok := r.ops[name]
	defaults := r.defaults
	r.mu.RUnlock()
	if !ok {
		op = Operation{Name: name}
	}
	opts := op.Options(defaults)
	op.UnitOfWork = &opts
	return op
}

// Operations lists the registered operations sorted by name.
func (r *Resolver) Operations() []Operation {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Operation, 0, len(r.ops))
	for _, op := range r.ops {
		out = append(out, op)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
