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

// ReadRepository reads entities through the enlisted handle.
type ReadRepository[T any] interface {
	GetOne(ctx context.Context, id any) (*T, error)

	GetAll(ctx context.Context) ([]*T, error)

	List(ctx context.Context, filter *types.QueryFilter) ([]*T, error)

	Query(ctx context.Context, query string, args ...interface{}) ([]*T, error)

	Count(ctx context.Context, filter *types.QueryFilter) (int, error)
}

// WriteRepository queues changes on the locator's DbContext. Outside a unit
// of work the changes are saved before the call returns.
type WriteRepository[T any] interface {
	Create(ctx context.Context, entity ...*T) error

	Upsert(ctx context.Context, fields []string, duplicateKeys []string, entity ...*T) error

	Update(ctx context.Context, entity *T, columns ...string) error

	Delete(ctx context.Context, id any) error
}

// PageQueryRepository defines pagination functionality for listing entities.
type PageQueryRepository[T any] interface {
	Page(ctx context.Context, page *types.PageRequest) (*types.Pagination[T], error)
}

// Repository combines reads, queued writes and pagination on one locator.
type Repository[T any] interface {
	ReadRepository[T]
	WriteRepository[T]
	PageQueryRepository[T]

	// Locator names the context the repository currently works on.
	Locator() string

	// Change returns a repository for the same entity on another locator.
	Change(locator string) Repository[T]

	// Reset returns the repository bound to the locator it was created with.
	Reset() Repository[T]

	// Context resolves the DbContext the repository writes to under ctx.
	Context(ctx context.Context) (*dbcontext.DbContext, error)

	// NewSelect starts a select on the enlisted handle.
	NewSelect(ctx context.Context) (*bun.SelectQuery, error)
}
