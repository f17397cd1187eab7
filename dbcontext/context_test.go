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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tomoncle/transact/internal/testdb"
	"github.com/tomoncle/transact/transaction"
)

func TestSaveChangesOutsideUnitOfWork(t *testing.T) {
	db := testdb.SQLite(t)
	c := New(DefaultLocator, db)
	ctx := context.Background()

	alice := &testdb.Account{ID: 1, Owner: "alice", Balance: 10}
	c.Add(alice, &testdb.Account{ID: 2, Owner: "bob", Balance: 5})
	alice.Balance = 20
	c.Update(alice, "balance")
	assert.Equal(t, 3, c.ChangeCount())
	assert.Equal(t, []string{"insert", "insert", "update"}, c.Pending())

	n, err := c.SaveChanges(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.False(t, c.HasChanges())

	var got testdb.Account
	require.NoError(t, db.NewSelect().Model(&got).Where("id = ?", 1).Scan(ctx))
	assert.Equal(t, int64(20), got.Balance)
	assert.Equal(t, 2, testdb.Count(t, db, (*testdb.Account)(nil)))
}

func TestSaveChangesWithoutPendingIsNoop(t *testing.T) {
	c := New(DefaultLocator, testdb.SQLite(t))
	n, err := c.SaveChanges(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSaveChangesKeepsPendingOnFailure(t *testing.T) {
	db := testdb.SQLite(t)
	c := New(DefaultLocator, db)

	c.Add(&testdb.Account{ID: 1, Owner: "alice"})
	c.Exec("INSERT INTO missing_table (id) VALUES (1)")

	n, err := c.SaveChanges(context.Background())
	require.Error(t, err)
	assert.Zero(t, n)
	assert.Equal(t, 2, c.ChangeCount())
	assert.Zero(t, testdb.Count(t, db, (*testdb.Account)(nil)))
}

func TestSaveChangesJoinsAmbientTransaction(t *testing.T) {
	db := testdb.SQLite(t)
	c := New(DefaultLocator, db)
	boom := errors.New("boom")

	_, err := transaction.Run(context.Background(), transaction.DefaultOptions(), func(ctx context.Context, _ *transaction.Scope) error {
		c.Add(&testdb.Account{ID: 1, Owner: "alice"})
		n, err := c.SaveChanges(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		h, err := c.DB(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, testdb.Count(t, h, (*testdb.Account)(nil)))
		return boom
	})
	assert.Same(t, boom, err)
	assert.Zero(t, testdb.Count(t, db, (*testdb.Account)(nil)))
}

func TestNewSelectReadsThroughEnlistedHandle(t *testing.T) {
	db := testdb.SQLite(t)
	c := New(DefaultLocator, db)

	_, err := transaction.Run(context.Background(), transaction.DefaultOptions(), func(ctx context.Context, s *transaction.Scope) error {
		c.Add(&testdb.Account{ID: 7, Owner: "carol", Balance: 3})
		if _, err := c.SaveChanges(ctx); err != nil {
			return err
		}
		q, err := c.NewSelect(ctx)
		require.NoError(t, err)
		var got testdb.Account
		require.NoError(t, q.Model(&got).Where("id = ?", 7).Scan(ctx))
		assert.Equal(t, "carol", got.Owner)
		assert.Equal(t, []string{DefaultLocator}, s.Locators())
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, testdb.Count(t, db, (*testdb.Account)(nil)))
}

func TestUpsertAndRemove(t *testing.T) {
	db := testdb.SQLite(t)
	c := New(DefaultLocator, db)
	ctx := context.Background()

	c.Add(&testdb.Account{ID: 1, Owner: "alice", Balance: 1}, &testdb.Account{ID: 2, Owner: "bob", Balance: 2})
	_, err := c.SaveChanges(ctx)
	require.NoError(t, err)

	accounts := []*testdb.Account{{ID: 1, Owner: "alice", Balance: 100}, {ID: 3, Owner: "dave", Balance: 3}}
	require.NoError(t, c.Upsert([]string{"balance"}, nil, &accounts))
	c.Remove(&testdb.Account{ID: 2})
	c.RemoveWhere((*testdb.Account)(nil), "owner = ?", "nobody")
	n, err := c.SaveChanges(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	var got []testdb.Account
	require.NoError(t, db.NewSelect().Model(&got).Order("id ASC").Scan(ctx))
	require.Len(t, got, 2)
	assert.Equal(t, int64(100), got[0].Balance)
	assert.Equal(t, "dave", got[1].Owner)
}

func TestUpsertRequiresFields(t *testing.T) {
	c := New(DefaultLocator, testdb.SQLite(t))
	assert.Error(t, c.Upsert(nil, nil, &[]*testdb.Account{}))
	assert.False(t, c.HasChanges())
}

func TestDiscard(t *testing.T) {
	c := New(DefaultLocator, testdb.SQLite(t))
	c.Exec("DELETE FROM accounts")
	c.Discard()
	assert.Zero(t, c.ChangeCount())
}
