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

package repository

import (
	"context"

	"github.com/tomoncle/transact/dbcontext"
	"github.com/tomoncle/transact/types"
	"github.com/uptrace/bun"
)

type Option func(*options)

type options struct {
	provider dbcontext.Provider
}

// WithProvider lets the repository work without a pool in ctx: each write
// then runs on a transient DbContext and is saved immediately.
func WithProvider(p dbcontext.Provider) Option {
	return func(o *options) { o.provider = p }
}

type baseRepositoryImpl[T any] struct {
	locator string
	initial string
	opts    options
}

// NewRepository returns a repository for T on locator, or on the default
// locator when locator is empty.
func NewRepository[T any](locator string, opts ...Option) Repository[T] {
	if locator == "" {
		locator = dbcontext.DefaultLocator
	}
	r := &baseRepositoryImpl[T]{locator: locator, initial: locator}
	for _, opt := range opts {
		opt(&r.opts)
	}
	return r
}

func (r *baseRepositoryImpl[T]) Locator() string { return r.locator }

func (r *baseRepositoryImpl[T]) Change(locator string) Repository[T] {
	if locator == "" {
		locator = dbcontext.DefaultLocator
	}
	c := *r
	c.locator = locator
	return &c
}

func (r *baseRepositoryImpl[T]) Reset() Repository[T] {
	return r.Change(r.initial)
}

// resolve returns the DbContext for ctx and whether writes must be saved
// right away because no pool owns it.
func (r *baseRepositoryImpl[T]) resolve(ctx context.Context) (*dbcontext.DbContext, bool, error) {
	if dbcontext.PoolFromContext(ctx) != nil || r.opts.provider == nil {
		c, err := dbcontext.Register(ctx, r.locator)
		return c, false, err
	}
	db, err := r.opts.provider.DB(ctx, r.locator)
	if err != nil {
		return nil, false, err
	}
	return dbcontext.New(r.locator, db), true, nil
}

func (r *baseRepositoryImpl[T]) Context(ctx context.Context) (*dbcontext.DbContext, error) {
	c, _, err := r.resolve(ctx)
	return c, err
}

func (r *baseRepositoryImpl[T]) NewSelect(ctx context.Context) (*bun.SelectQuery, error) {
	c, err := r.Context(ctx)
	if err != nil {
		return nil, err
	}
	return c.NewSelect(ctx)
}

func (r *baseRepositoryImpl[T]) write(ctx context.Context, queue func(c *dbcontext.DbContext) error) error {
	c, immediate, err := r.resolve(ctx)
	if err != nil {
		return err
	}
	if err := queue(c); err != nil {
		return err
	}
	if immediate {
		_, err = c.SaveChanges(ctx)
	}
	return err
}

func (r *baseRepositoryImpl[T]) GetOne(ctx context.Context, id any) (*T, error) {
	q, err := r.NewSelect(ctx)
	if err != nil {
		return nil, err
	}
	var entity T
	if err := q.Model(&entity).Where("id = ?", id).Scan(ctx); err != nil {
		return nil, err
	}
	return &entity, nil
}

func (r *baseRepositoryImpl[T]) GetAll(ctx context.Context) ([]*T, error) {
	return r.List(ctx, nil)
}

func (r *baseRepositoryImpl[T]) List(ctx context.Context, filter *types.QueryFilter) ([]*T, error) {
	q, err := r.NewSelect(ctx)
	if err != nil {
		return nil, err
	}
	var entities []*T
	q = q.Model(&entities)
	if filter != nil {
		q = q.Where(filter.Schema, filter.Args...)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, err
	}
	return entities, nil
}

func (r *baseRepositoryImpl[T]) Query(ctx context.Context, query string, args ...interface{}) ([]*T, error) {
	return r.List(ctx, types.NewQueryFilter(query, args...))
}

func (r *baseRepositoryImpl[T]) Count(ctx context.Context, filter *types.QueryFilter) (int, error) {
	q, err := r.NewSelect(ctx)
	if err != nil {
		return 0, err
	}
	q = q.Model((*T)(nil))
	if filter != nil {
		q = q.Where(filter.Schema, filter.Args...)
	}
	return q.Count(ctx)
}

func (r *baseRepositoryImpl[T]) Page(ctx context.Context, req *types.PageRequest) (*types.Pagination[T], error) {
	q, err := r.NewSelect(ctx)
	if err != nil {
		return nil, err
	}
	var entities []*T
	q = q.Model(&entities)
	if req.Filter != nil {
		q = q.Where(req.Filter.Schema, req.Filter.Args...)
	}
	pagination := types.NewPagination[T](req)
	total, err := q.Count(ctx)
	if err != nil || total == 0 {
		return pagination, err
	}
	if len(req.Orders) > 0 {
		q = q.Order(req.Orders...)
	}
	if err := q.Offset(req.Offset()).Limit(req.PageSize).Scan(ctx); err != nil {
		return nil, err
	}
	pagination.Total = total
	pagination.Items = entities
	return pagination, nil
}

func (r *baseRepositoryImpl[T]) Create(ctx context.Context, entity ...*T) error {
	if len(entity) == 0 {
		return nil
	}
	entities := make([]*T, len(entity))
	copy(entities, entity)
	return r.write(ctx, func(c *dbcontext.DbContext) error {
		c.Add(&entities)
		return nil
	})
}

func (r *baseRepositoryImpl[T]) Upsert(ctx context.Context, fields []string, duplicateKeys []string, entity ...*T) error {
	if len(entity) == 0 {
		return nil
	}
	entities := make([]*T, len(entity))
	copy(entities, entity)
	return r.write(ctx, func(c *dbcontext.DbContext) error {
		return c.Upsert(fields, duplicateKeys, &entities)
	})
}

func (r *baseRepositoryImpl[T]) Update(ctx context.Context, entity *T, columns ...string) error {
	return r.write(ctx, func(c *dbcontext.DbContext) error {
		c.Update(entity, columns...)
		return nil
	})
}

func (r *baseRepositoryImpl[T]) Delete(ctx context.Context, id any) error {
	return r.write(ctx, func(c *dbcontext.DbContext) error {
		c.RemoveWhere((*T)(nil), "id = ?", id)
		return nil
	})
}
