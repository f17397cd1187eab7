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
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"go.uber.org/multierr"
)

// Scope is one transactional boundary. A root scope owns one bun.Tx per
// enlisted locator; a joined scope shares its root and only votes.
type Scope struct {
	id       string
	opts     Options
	root     *Scope
	suppress bool

	// root only
	ctx      context.Context
	cancel   context.CancelFunc
	enlisted []*enlistment
	byKey    map[string]*enlistment
	aborted  bool

	mu        sync.Mutex
	completed bool
	closed    bool
	outcome   Outcome
}

type enlistment struct {
	locator string
	tx      *bun.Tx
}

// Begin opens a scope according to opts and returns the context that
// carries it. Callers must Close the scope on every exit path.
func Begin(ctx context.Context, opts Options) (context.Context, *Scope, error) {
	if err := opts.Validate(); err != nil {
		return ctx, nil, err
	}

	switch opts.Scope {
	case ScopeSuppress:
		s := &Scope{id: uuid.NewString(), opts: opts, suppress: true}
		return withScope(ctx, s), s, nil
	case ScopeRequired:
		if root := active(ctx); root != nil {
			if opts.Isolation != IsolationUnspecified && opts.Isolation != root.opts.Isolation {
				return ctx, nil, fmt.Errorf("%w: ambient %s, requested %s", ErrIsolationMismatch, root.opts.Isolation, opts.Isolation)
			}
			s := &Scope{id: root.id, opts: opts, root: root}
			return withScope(ctx, s), s, nil
		}
	}

	s := &Scope{
		id:    uuid.NewString(),
		opts:  opts,
		ctx:   ctx,
		byKey: make(map[string]*enlistment),
	}
	if opts.Timeout > 0 {
		s.ctx, s.cancel = context.WithTimeout(ctx, opts.Timeout)
	}
	return withScope(s.ctx, s), s, nil
}

// ID identifies the transaction; joined scopes report their root's ID.
func (s *Scope) ID() string { return s.id }

// Options returns the options the scope was opened with.
func (s *Scope) Options() Options { return s.opts }

// Joined reports whether the scope shares an outer transaction.
func (s *Scope) Joined() bool { return s.root != nil }

// Suppressed reports whether the scope runs without a transaction.
func (s *Scope) Suppressed() bool { return s.suppress }

func (s *Scope) top() *Scope {
	if s.root != nil {
		return s.root
	}
	return s
}

// Locators returns the enlisted locators in enlistment order.
func (s *Scope) Locators() []string {
	root := s.top()
	root.mu.Lock()
	defer root.mu.Unlock()
	out := make([]string, 0, len(root.enlisted))
	for _, e := range root.enlisted {
		out = append(out, e.locator)
	}
	return out
}

// Complete marks the scope as successful. Without it, Close rolls back.
func (s *Scope) Complete() {
	s.mu.Lock()
	s.completed = true
	s.mu.Unlock()
}

// Enlist returns the handle persistence work for locator must use under ctx:
// the ambient transaction for that locator, begun on first use, or db itself
// when ctx carries no active transaction.
func Enlist(ctx context.Context, locator string, db *bun.DB) (bun.IDB, error) {
	root := active(ctx)
	if root == nil {
		return db, nil
	}
	return root.enlist(locator, db)
}

func (s *Scope) enlist(locator string, db *bun.DB) (bun.IDB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrScopeClosed
	}
	if e, ok := s.byKey[locator]; ok {
		return e.tx, nil
	}

	tx, err := db.BeginTx(s.ctx, &sql.TxOptions{Isolation: s.opts.Isolation.SQL()})
	if err != nil {
		return nil, fmt.Errorf("begin transaction for %q: %w", locator, err)
	}
	e := &enlistment{locator: locator, tx: &tx}
	s.enlisted = append(s.enlisted, e)
	s.byKey[locator] = e
	return e.tx, nil
}

// Close releases the scope. A completed root commits every enlisted
// transaction in enlistment order; anything else rolls back. Close is
// idempotent and returns the first outcome on repeated calls.
func (s *Scope) Close() (Outcome, error) {
	s.mu.Lock()
	if s.closed {
		out := s.outcome
		s.mu.Unlock()
		return out, nil
	}
	s.closed = true
	completed := s.completed
	s.mu.Unlock()

	switch {
	case s.suppress:
		return s.finish(completedOutcome(completed)), nil
	case s.root != nil:
		if !completed {
			s.root.abort()
		}
		return s.finish(Deferred), nil
	}

	if s.cancel != nil {
		defer s.cancel()
	}

	s.mu.Lock()
	aborted := s.aborted
	enlisted := s.enlisted
	s.mu.Unlock()

	if !completed || aborted {
		err := rollback(enlisted)
		if completed && aborted {
			err = multierr.Append(ErrTransactionAborted, err)
		}
		return s.finish(RolledBack), err
	}

	for i, e := range enlisted {
		if err := e.tx.Commit(); err != nil {
			err = fmt.Errorf("commit %q: %w", e.locator, err)
			if i > 0 {
				err = fmt.Errorf("%w: %w", ErrPartialCommit, err)
			}
			return s.finish(RolledBack), multierr.Append(err, rollback(enlisted[i+1:]))
		}
	}
	return s.finish(Committed), nil
}

func (s *Scope) finish(out Outcome) Outcome {
	s.mu.Lock()
	s.outcome = out
	s.mu.Unlock()
	return out
}

func (s *Scope) abort() {
	s.mu.Lock()
	s.aborted = true
	s.mu.Unlock()
}

func completedOutcome(completed bool) Outcome {
	if completed {
		return Committed
	}
	return RolledBack
}

func rollback(enlisted []*enlistment) error {
	var errs error
	for _, e := range enlisted {
		if err := e.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			errs = multierr.Append(errs, fmt.Errorf("rollback %q: %w", e.locator, err))
		}
	}
	return errs
}

// Run opens a scope, calls fn with its context and closes the scope on every
// exit path. fn's error is returned unchanged and forces a rollback; a panic
// rolls back and is re-raised.
func Run(ctx context.Context, opts Options, fn func(ctx context.Context, scope *Scope) error) (outcome Outcome, err error) {
	scopeCtx, scope, err := Begin(ctx, opts)
	if err != nil {
		return RolledBack, err
	}

	defer func() {
		if r := recover(); r != nil {
			_, _ = scope.Close()
			panic(r)
		}
		out, closeErr := scope.Close()
		outcome = out
		if err == nil {
			err = closeErr
		}
	}()

	if err = fn(scopeCtx, scope); err != nil {
		return RolledBack, err
	}
	scope.Complete()
	return Committed, nil
}
