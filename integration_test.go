//go:build integration

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
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/tomoncle/transact/database"
	"github.com/tomoncle/transact/dbcontext"
	"github.com/tomoncle/transact/diagnostics"
	"github.com/tomoncle/transact/internal/testdb"
	"github.com/tomoncle/transact/transaction"
)

func startPostgres(t *testing.T) string {
	t.Helper()
	ctx := context.Background()
	pg, err := postgres.Run(ctx,
		"postgres:17-alpine",
		postgres.WithDatabase("transact"),
		postgres.WithUsername("transact"),
		postgres.WithPassword("transact"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(pg); err != nil {
			t.Logf("terminate postgres: %v", err)
		}
	})

	dsn, err := pg.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	return dsn
}

func TestPostgresUnitOfWork(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	dsn := startPostgres(t)
	ctx := context.Background()

	factory := database.NewContextFactory()
	require.NoError(t, factory.Register(database.DefaultLocator, &database.ConnectionConfig{Type: "postgres", DSN: dsn}))
	require.NoError(t, factory.Register("ledger", &database.ConnectionConfig{Type: "postgres", DSN: dsn}))
	t.Cleanup(func() { _ = factory.Close() })

	db, err := factory.DB(ctx, database.DefaultLocator)
	require.NoError(t, err)
	for _, model := range []interface{}{(*testdb.Account)(nil), (*testdb.Entry)(nil)} {
		_, err := db.NewCreateTable().Model(model).IfNotExists().Exec(ctx)
		require.NoError(t, err)
	}

	rec := diagnostics.NewRecorder()
	i := NewInterceptor(factory, WithSink(diagnostics.Multi(rec, diagnostics.NewLoggerSink(nil))))
	serializable := Operation{
		Name:       "accounts.open",
		UnitOfWork: &transaction.Options{Isolation: transaction.IsolationSerializable},
	}

	t.Run("commits every locator", func(t *testing.T) {
		err := i.Run(ctx, serializable, func(ctx context.Context) error {
			accounts, err := dbcontext.Register(ctx, "")
			if err != nil {
				return err
			}
			ledger, err := dbcontext.Register(ctx, "ledger")
			if err != nil {
				return err
			}
			accounts.Add(&testdb.Account{ID: 1, Owner: "ann", Balance: 100})
			ledger.Add(&testdb.Entry{ID: 1, AccountID: 1, Memo: "opening balance"})
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, "Has 2 DbContext Changes.", rec.Events()[1].Message)
		assert.Equal(t, 1, testdb.Count(t, db, (*testdb.Account)(nil)))
		assert.Equal(t, 1, testdb.Count(t, db, (*testdb.Entry)(nil)))
	})

	t.Run("duplicate key rolls back", func(t *testing.T) {
		rec.Reset()
		err := i.Run(ctx, serializable, func(ctx context.Context) error {
			ledger, err := dbcontext.Register(ctx, "ledger")
			if err != nil {
				return err
			}
			ledger.Add(&testdb.Entry{ID: 2, AccountID: 1, Memo: "deposit"})
			accounts, err := dbcontext.Register(ctx, "")
			if err != nil {
				return err
			}
			accounts.Add(&testdb.Account{ID: 1, Owner: "ann again"})
			return nil
		})
		require.Error(t, err)
		kind, ok := database.ClassifySQLError(err)
		assert.True(t, ok)
		assert.Equal(t, database.DuplicateKeyErr, kind)
		assert.Equal(t, []diagnostics.Stage{diagnostics.StageBeginning, diagnostics.StageRollback}, rec.Stages())
		assert.Equal(t, 1, testdb.Count(t, db, (*testdb.Entry)(nil)))
	})

	t.Run("isolation mismatch is rejected", func(t *testing.T) {
		err := i.Run(ctx, serializable, func(ctx context.Context) error {
			return i.Run(ctx, Operation{
				Name:       "inner",
				UnitOfWork: &transaction.Options{Isolation: transaction.IsolationReadCommitted},
			}, func(context.Context) error { return nil })
		})
		assert.True(t, errors.Is(err, transaction.ErrIsolationMismatch))
	})
}
