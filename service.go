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

	"github.com/tomoncle/transact/repository"
	"github.com/tomoncle/transact/types"
	"github.com/uptrace/bun"
)

type Service[T any] interface {
	// Get returns a single entity by its identifier.
	Get(ctx context.Context, id any) (*T, error)

	// All returns all entities.
	All(ctx context.Context) ([]*T, error)

	// List returns entities that match the provided filter.
	List(ctx context.Context, filter *types.QueryFilter) ([]*T, error)

	// Query filters entities with a raw WHERE clause.
	Query(ctx context.Context, query string, args ...interface{}) ([]*T, error)

	// Page returns a paginated list of entities.
	Page(ctx context.Context, page *types.PageRequest) (*types.Pagination[T], error)

	// Update queues an update of an existing entity.
	Update(ctx context.Context, model *T, columns ...string) error

	// Delete queues the removal of an entity by its identifier.
	Delete(ctx context.Context, id any) error

	// Save queues one or more new entities.
	Save(ctx context.Context, model ...*T) error

	// SaveOrUpdate queues an upsert based on fields and duplicate keys.
	SaveOrUpdate(ctx context.Context, fields []string, duplicateKeys []string, model ...*T) error

	// SelectBuilder returns a select query on the enlisted handle.
	SelectBuilder(ctx context.Context) (*bun.SelectQuery, error)

	// On returns the same service bound to another locator.
	On(locator string) Service[T]
}

type baseServiceImpl[T any] struct {
	repo repository.Repository[T]
}

// NewService returns a Service for T on locator. Inside an intercepted
// operation its writes join the operation's unit of work.
func NewService[T any](locator string, opts ...repository.Option) Service[T] {
	return &baseServiceImpl[T]{repo: repository.NewRepository[T](locator, opts...)}
}

func (s *baseServiceImpl[T]) Get(ctx context.Context, id any) (*T, error) {
	return s.repo.GetOne(ctx, id)
}

func (s *baseServiceImpl[T]) All(ctx context.Context) ([]*T, error) {
	return s.repo.GetAll(ctx)
}

func (s *baseServiceImpl[T]) List(ctx context.Context, filter *types.QueryFilter) ([]*T, error) {
	return s.repo.List(ctx, filter)
}

func (s *baseServiceImpl[T]) Query(ctx context.Context, query string, args ...interface{}) ([]*T, error) {
	return s.repo.Query(ctx, query, args...)
}

func (s *baseServiceImpl[T]) Page(ctx context.Context, page *types.PageRequest) (*types.Pagination[T], error) {
	return s.repo.Page(ctx, page)
}

func (s *baseServiceImpl[T]) Update(ctx context.Context, model *T, columns ...string) error {
	return s.repo.Update(ctx, model, columns...)
}

func (s *baseServiceImpl[T]) Delete(ctx context.Context, id any) error {
	return s.repo.Delete(ctx, id)
}

func (s *baseServiceImpl[T]) Save(ctx context.Context, model ...*T) error {
	return s.repo.Create(ctx, model...)
}

func (s *baseServiceImpl[T]) SaveOrUpdate(ctx context.Context, fields []string, duplicateKeys []string, model ...*T) error {
	return s.repo.Upsert(ctx, fields, duplicateKeys, model...)
}

func (s *baseServiceImpl[T]) SelectBuilder(ctx context.Context) (*bun.SelectQuery, error) {
	return s.repo.NewSelect(ctx)
}

func (s *baseServiceImpl[T]) On(locator string) Service[T] {
	return &baseServiceImpl[T]{repo: s.repo.Change(locator)}
}
