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
	"fmt"
	"strings"
	"sync"

	"github.com/tomoncle/transact/database"
	"github.com/tomoncle/transact/transaction"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/feature"
)

// DefaultLocator is the locator used when none is named.
const DefaultLocator = database.DefaultLocator

type changeKind string

const (
	changeInsert changeKind = "insert"
	changeUpdate changeKind = "update"
	changeDelete changeKind = "delete"
	changeUpsert changeKind = "upsert"
	changeExec   changeKind = "exec"
)

type change struct {
	kind  changeKind
	apply func(ctx context.Context, db bun.IDB) error
}

// DbContext is a change-tracking persistence context bound to one locator.
type DbContext struct {
	locator string
	db      *bun.DB

	mu      sync.Mutex
	pending []change
}

// New binds a context to locator and its database.
func New(locator string, db *bun.DB) *DbContext {
	return &DbContext{locator: locator, db: db}
}

func (c *DbContext) Locator() string { return c.locator }

// Bun returns the underlying database, bypassing any ambient transaction.
func (c *DbContext) Bun() *bun.DB { return c.db }

// DB returns the handle reads must use under ctx: the ambient transaction of
// this locator when there is one, otherwise the database itself.
func (c *DbContext) DB(ctx context.Context) (bun.IDB, error) {
	return transaction.Enlist(ctx, c.locator, c.db)
}

// NewSelect starts a select query on the handle returned by DB.
func (c *DbContext) NewSelect(ctx context.Context) (*bun.SelectQuery, error) {
	db, err := c.DB(ctx)
	if err != nil {
		return nil, err
	}
	return db.NewSelect(), nil
}

// Add queues an insert per model.
func (c *DbContext) Add(models ...interface{}) {
	for _, model := range models {
		model := model
		c.track(changeInsert, func(ctx context.Context, db bun.IDB) error {
			_, err := db.NewInsert().Model(model).Exec(ctx)
			return err
		})
	}
}

// Update queues an update of model by primary key. With columns, only those
// columns are written.
func (c *DbContext) Update(model interface{}, columns ...string) {
	c.track(changeUpdate, func(ctx context.Context, db bun.IDB) error {
		q := db.NewUpdate().Model(model).WherePK()
		if len(columns) > 0 {
			q = q.Column(columns...)
		}
		_, err := q.Exec(ctx)
		return err
	})
}

// Remove queues a delete of model by primary key.
func (c *DbContext) Remove(model interface{}) {
	c.track(changeDelete, func(ctx context.Context, db bun.IDB) error {
		_, err := db.NewDelete().Model(model).WherePK().Exec(ctx)
		return err
	})
}

// RemoveWhere queues a delete on model's table filtered by where.
func (c *DbContext) RemoveWhere(model interface{}, where string, args ...interface{}) {
	c.track(changeDelete, func(ctx context.Context, db bun.IDB) error {
		_, err := db.NewDelete().Model(model).Where(where, args...).Exec(ctx)
		return err
	})
}

// Upsert queues an insert that updates fields when one of conflictKeys
// (default "id") already exists. models is usually a pointer to a slice.
func (c *DbContext) Upsert(fields []string, conflictKeys []string, models interface{}) error {
	if len(fields) == 0 {
		return fmt.Errorf("fields cannot be empty")
	}
	if len(conflictKeys) == 0 {
		conflictKeys = []string{"id"}
	}
	c.track(changeUpsert, func(ctx context.Context, db bun.IDB) error {
		switch {
		case c.db.HasFeature(feature.InsertOnConflict):
			set := make([]string, 0, len(fields))
			for _, field := range fields {
				set = append(set, fmt.Sprintf("%s = EXCLUDED.%s", bun.Ident(field), bun.Ident(field)))
			}
			_, err := db.NewInsert().
				Model(models).
				On("CONFLICT (" + strings.Join(conflictKeys, ",") + ") DO UPDATE").
				Set(strings.Join(set, ", ")).
				Exec(ctx)
			return err
		case c.db.HasFeature(feature.InsertOnDuplicateKey):
			set := make([]string, 0, len(fields))
			for _, field := range fields {
				set = append(set, fmt.Sprintf("%s = VALUES(%s)", bun.Ident(field), bun.Ident(field)))
			}
			_, err := db.NewInsert().
				Model(models).
				On("DUPLICATE KEY UPDATE " + strings.Join(set, ", ")).
				Exec(ctx)
			return err
		default:
			return fmt.Errorf("dialect %s supports no upsert", c.db.Dialect().Name())
		}
	})
	return nil
}

// Exec queues a raw statement.
func (c *DbContext) Exec(query string, args ...interface{}) {
	c.track(changeExec, func(ctx context.Context, db bun.IDB) error {
		_, err := db.ExecContext(ctx, query, args...)
		return err
	})
}

func (c *DbContext) track(kind changeKind, apply func(ctx context.Context, db bun.IDB) error) {
	c.mu.Lock()
	c.pending = append(c.pending, change{kind: kind, apply: apply})
	c.mu.Unlock()
}

func (c *DbContext) HasChanges() bool { return c.ChangeCount() > 0 }

// ChangeCount returns the number of pending entries.
func (c *DbContext) ChangeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Pending lists the kinds of the pending entries in queue order.
func (c *DbContext) Pending() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	kinds := make([]string, len(c.pending))
	for i, ch := range c.pending {
		kinds[i] = string(ch.kind)
	}
	return kinds
}

// Discard drops every pending change.
func (c *DbContext) Discard() {
	c.mu.Lock()
	c.pending = nil
	c.mu.Unlock()
}

// SaveChanges writes the pending changes in the order they were queued and
// returns how many entries were written. Inside a unit of work the changes go
// to the enlisted transaction; otherwise they run in a local transaction.
// Pending changes are kept when saving fails.
func (c *DbContext) SaveChanges(ctx context.Context) (int, error) {
	c.mu.Lock()
	batch := make([]change, len(c.pending))
	copy(batch, c.pending)
	c.mu.Unlock()
	if len(batch) == 0 {
		return 0, nil
	}

	var err error
	if transaction.Current(ctx) != nil {
		var db bun.IDB
		if db, err = c.DB(ctx); err == nil {
			err = applyAll(ctx, db, batch)
		}
	} else {
		err = c.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			return applyAll(ctx, tx, batch)
		})
	}
	if err != nil {
		return 0, err
	}

	c.mu.Lock()
	if len(c.pending) >= len(batch) {
		c.pending = c.pending[len(batch):]
	}
	c.mu.Unlock()
	database.GetLogger().Debug("Saved changes", "locator", c.locator, "count", len(batch))
	return len(batch), nil
}

func applyAll(ctx context.Context, db bun.IDB, batch []change) error {
	for _, ch := range batch {
		if err := ch.apply(ctx, db); err != nil {
			return err
		}
	}
	return nil
}
