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

// Package testdb builds throwaway Bun databases for tests: in-memory SQLite
// through sqliteshim and Postgres-dialect databases over go-sqlmock.
package testdb

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

// Account is the model used across the module's tests.
type Account struct {
	bun.BaseModel `bun:"table:accounts,alias:a"`

	ID      int64  `bun:"id,pk" json:"id"`
	Owner   string `bun:"owner,notnull" json:"owner"`
	Balance int64  `bun:"balance,notnull" json:"balance"`
}

// Entry is a second model, used to spread work over two tables.
type Entry struct {
	bun.BaseModel `bun:"table:entries,alias:e"`

	ID        int64  `bun:"id,pk" json:"id"`
	AccountID int64  `bun:"account_id,notnull" json:"account_id"`
	Memo      string `bun:"memo" json:"memo"`
}

// SQLite opens a private in-memory database limited to one connection, with
// the accounts and entries tables created. It is closed with the test.
func SQLite(tb testing.TB) *bun.DB {
	tb.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(tb.Name())
	dsn := fmt.Sprintf("file:%s_%s?mode=memory&cache=shared", name, uuid.NewString()[:8])

	sqlDB, err := sql.Open(sqliteshim.ShimName, dsn)
	require.NoError(tb, err)
	sqlDB.SetMaxOpenConns(1)

	db := bun.NewDB(sqlDB, sqlitedialect.New())
	tb.Cleanup(func() { _ = db.Close() })

	ctx := context.Background()
	for _, model := range []interface{}{(*Account)(nil), (*Entry)(nil)} {
		_, err := db.NewCreateTable().Model(model).IfNotExists().Exec(ctx)
		require.NoError(tb, err)
	}
	return db
}

// Count returns the number of rows of model's table.
func Count(tb testing.TB, db bun.IDB, model interface{}) int {
	tb.Helper()
	n, err := db.NewSelect().Model(model).Count(context.Background())
	require.NoError(tb, err)
	return n
}

// Mock returns a Postgres-dialect Bun database backed by go-sqlmock. Unmet
// expectations fail the test at cleanup.
func Mock(tb testing.TB) (*bun.DB, sqlmock.Sqlmock) {
	tb.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(tb, err)

	db := bun.NewDB(sqlDB, pgdialect.New())
	tb.Cleanup(func() {
		assert.NoError(tb, mock.ExpectationsWereMet())
		_ = db.Close()
	})
	return db, mock
}
