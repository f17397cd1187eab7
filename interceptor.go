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
	"context"
	"fmt"

	"github.com/tomoncle/transact/database"
	"github.com/tomoncle/transact/dbcontext"
	"github.com/tomoncle/transact/diagnostics"
	"github.com/tomoncle/transact/transaction"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/tomoncle/transact"

// Continuation is the intercepted operation body.
type Continuation func(ctx context.Context) error

// Interceptor wraps operations in a unit of work: one context pool per call,
// one transaction scope around the body, all pending changes saved before
// the scope commits.
type Interceptor struct {
	provider dbcontext.Provider
	resolver *Resolver
	sink     diagnostics.Sink
	logger   database.Logger
	tracer   trace.Tracer
}

type Option func(*Interceptor)

// WithSink replaces the default logger sink.
func WithSink(sink diagnostics.Sink) Option {
	return func(i *Interceptor) { i.sink = sink }
}

func WithResolver(r *Resolver) Option {
	return func(i *Interceptor) { i.resolver = r }
}

func WithLogger(logger database.Logger) Option {
	return func(i *Interceptor) { i.logger = logger }
}

func WithTracer(tracer trace.Tracer) Option {
	return func(i *Interceptor) { i.tracer = tracer }
}

// NewInterceptor returns an interceptor whose pools resolve databases from
// provider.
func NewInterceptor(provider dbcontext.Provider, opts ...Option) *Interceptor {
	i := &Interceptor{provider: provider}
	for _, opt := range opts {
		opt(i)
	}
	if i.logger == nil {
		i.logger = database.GetLogger()
	}
	if i.resolver == nil {
		i.resolver = NewResolver(transaction.DefaultOptions())
	}
	if i.sink == nil {
		i.sink = diagnostics.NewLoggerSink(i.logger)
	}
	if i.tracer == nil {
		i.tracer = otel.Tracer(instrumentationName)
	}
	return i
}

// Resolver returns the operation table used by RunNamed.
func (i *Interceptor) Resolver() *Resolver { return i.resolver }

// RunNamed resolves name and runs next as that operation.
func (i *Interceptor) RunNamed(ctx context.Context, name string, next Continuation) error {
	return i.Run(ctx, i.resolver.Resolve(name), next)
}

// Run executes next as op. next's error is returned unchanged and rolls the
// unit of work back; a panic rolls back and is re-raised.
func (i *Interceptor) Run(ctx context.Context, op Operation, next Continuation) (err error) {
	pool := dbcontext.NewPool(i.provider)
	defer pool.Release()
	ctx = dbcontext.WithPool(ctx, pool)

	ctx, span := i.tracer.Start(ctx, "transact.unit_of_work",
		trace.WithAttributes(attribute.String("transact.operation", op.Name)))
	defer span.End()

	if op.NonTransact {
		i.emit(ctx, diagnostics.Event{Stage: diagnostics.StageSkipped, Operation: op.Name})
		return next(ctx)
	}

	opts := op.Options(i.resolver.Defaults())
	i.emit(ctx, diagnostics.Event{Stage: diagnostics.StageBeginning, Operation: op.Name})

	scopeCtx, scope, err := transaction.Begin(ctx, opts)
	if err != nil {
		i.rollback(ctx, op, "", err)
		return err
	}

	defer func() {
		if r := recover(); r != nil {
			i.close(scope)
			i.emit(ctx, diagnostics.Event{
				Stage:     diagnostics.StageRollback,
				Operation: op.Name,
				ScopeID:   scope.ID(),
				IsError:   true,
				Message:   fmt.Sprintf("panic: %v", r),
			})
			panic(r)
		}
	}()

	if err := next(scopeCtx); err != nil {
		i.close(scope)
		i.rollback(ctx, op, scope.ID(), err)
		return err
	}

	changes, err := pool.SaveAllPending(scopeCtx)
	if err != nil {
		i.close(scope)
		i.rollback(ctx, op, scope.ID(), err)
		return err
	}

	scope.Complete()
	i.emit(ctx, diagnostics.Event{
		Stage:     diagnostics.StageCompleted,
		Operation: op.Name,
		ScopeID:   scope.ID(),
		Changes:   changes,
		Message:   fmt.Sprintf("Has %d DbContext Changes.", changes),
	})

	if _, err := scope.Close(); err != nil {
		i.rollback(ctx, op, scope.ID(), err)
		return err
	}
	return nil
}

// close releases a scope that is not going to commit.
func (i *Interceptor) close(scope *transaction.Scope) {
	if _, err := scope.Close(); err != nil {
		i.logger.Warn("Rollback failed", "scope_id", scope.ID(), "error", err)
	}
}

func (i *Interceptor) rollback(ctx context.Context, op Operation, scopeID string, err error) {
	i.emit(ctx, diagnostics.Event{
		Stage:     diagnostics.StageRollback,
		Operation: op.Name,
		ScopeID:   scopeID,
		IsError:   true,
		Message:   err.Error(),
		Err:       err,
	})
}

func (i *Interceptor) emit(ctx context.Context, e diagnostics.Event) {
	e.Category = diagnostics.Category
	i.sink.Emit(ctx, e)
}

// Execute runs fn as op and returns its result. The zero T is returned when
// the unit of work fails, including a failed commit.
func Execute[T any](ctx context.Context, i *Interceptor, op Operation, fn func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := i.Run(ctx, op, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		result = v
		return nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return result, nil
}
