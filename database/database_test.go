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

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tomoncle/transact/internal/testdb"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
)

func memoryConfig() *ConnectionConfig {
	return &ConnectionConfig{
		Type:         "sqlite",
		DSN:          fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()),
		MaxOpenConns: 1,
	}
}

func TestParseConfig(t *testing.T) {
	cfg, err := ParseConfig([]byte(`
contexts:
  default:
    type: postgres
    host: db.internal
    port: 5432
    dbname: orders
    conn_max_lifetime: 30m
  audit:
    type: mysql
    dsn: "audit:secret@tcp(audit:3306)/audit"
unit_of_work:
  default:
    isolation: serializable
`))
	require.NoError(t, err)
	require.Len(t, cfg.Contexts, 2)
	assert.Equal(t, "db.internal", cfg.Contexts["default"].Host)
	assert.Equal(t, 30*time.Minute, cfg.Contexts["default"].ConnMaxLifetime)
	assert.Equal(t, "mysql", cfg.Contexts["audit"].Type)

	_, err = ParseConfig([]byte("unit_of_work: {}\n"))
	assert.Error(t, err)
	_, err = ParseConfig([]byte("contexts: [\n"))
	assert.Error(t, err)
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db.yaml")
	require.NoError(t, os.WriteFile(path, []byte("contexts:\n  default:\n    type: sqlite\n"), 0o600))
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.Contexts[DefaultLocator].Type)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "none.yaml"))
	assert.Error(t, err)
}

func TestWithDefaultsKeepsExplicitValues(t *testing.T) {
	c := ConnectionConfig{MaxOpenConns: 3}.withDefaults()
	assert.Equal(t, 3, c.MaxOpenConns)
	assert.Equal(t, DefaultConnectionConfig().MaxIdleConns, c.MaxIdleConns)
	assert.Equal(t, DefaultConnectionConfig().ConnectTimeout, c.ConnectTimeout)
}

func TestEnvPrefix(t *testing.T) {
	assert.Equal(t, "DB_", envPrefix(DefaultLocator))
	assert.Equal(t, "DB_AUDIT_LOG_", envPrefix("audit-log"))
	assert.Equal(t, "DB_REPORTS_EU_", envPrefix("reports.eu"))
}

func TestOverrideFromEnv(t *testing.T) {
	t.Setenv("DB_AUDIT_HOST", "audit.internal")
	t.Setenv("DB_AUDIT_PORT", "6543")
	t.Setenv("DB_AUDIT_MAX_OPEN_CONNS", "not-a-number")
	t.Setenv("DB_AUDIT_CONN_MAX_LIFETIME", "90")
	t.Setenv("DB_AUDIT_ENABLE_QUERY_LOG", "true")
	t.Setenv("DB_HOST", "default.internal")

	cfg := &ConnectionConfig{Host: "localhost", MaxOpenConns: 7}
	overrideFromEnv("audit", cfg)
	assert.Equal(t, "audit.internal", cfg.Host)
	assert.Equal(t, 6543, cfg.Port)
	assert.Equal(t, 7, cfg.MaxOpenConns)
	assert.Equal(t, 90*time.Second, cfg.ConnMaxLifetime)
	assert.True(t, cfg.EnableQueryLog)

	def := &ConnectionConfig{}
	overrideFromEnv(DefaultLocator, def)
	assert.Equal(t, "default.internal", def.Host)
}

func TestContextFactoryConnectsLazily(t *testing.T) {
	f := NewContextFactory()
	require.NoError(t, f.Register("reports", memoryConfig()))
	require.NoError(t, f.Register(DefaultLocator, memoryConfig()))
	assert.Equal(t, []string{"reports", DefaultLocator}, f.Locators())
	t.Cleanup(func() { _ = f.Close() })

	m, err := f.Manager("reports")
	require.NoError(t, err)
	assert.Nil(t, m.GetDB())

	db, err := f.DB(context.Background(), "reports")
	require.NoError(t, err)
	require.NotNil(t, db)
	again, err := f.DB(context.Background(), "reports")
	require.NoError(t, err)
	assert.Same(t, db, again)

	statuses := f.HealthCheck(context.Background())
	require.Len(t, statuses, 2)
	assert.True(t, statuses[0].Healthy)
	assert.Equal(t, "reports", statuses[0].Locator)
	assert.False(t, statuses[1].Healthy, "default was never opened")
}

func TestContextFactoryRejects(t *testing.T) {
	f := NewContextFactory()
	assert.Error(t, f.Register("x", nil))
	assert.Error(t, f.Register("x", &ConnectionConfig{Type: "oracle"}))
	assert.Error(t, f.Attach("x", nil))

	require.NoError(t, f.Register("x", memoryConfig()))
	assert.Error(t, f.Register("x", memoryConfig()))

	_, err := f.DB(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrUnknownLocator)
}

func TestContextFactoryAttach(t *testing.T) {
	db := testdb.SQLite(t)
	f := NewContextFactory()
	require.NoError(t, f.Attach("main", db))
	require.NoError(t, f.ConnectAll(context.Background()))

	got, err := f.DB(context.Background(), "main")
	require.NoError(t, err)
	assert.Same(t, db, got)

	m, _ := f.Manager("main")
	assert.Equal(t, 1, m.GetStats().MaxOpenConns)
}

func TestNewContextFactoryFromConfigSortsLocators(t *testing.T) {
	cfg := &Config{Contexts: map[string]ConnectionConfig{
		"zeta":  *memoryConfig(),
		"alpha": *memoryConfig(),
	}}
	f, err := NewContextFactoryFromConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "zeta"}, f.Locators())

	_, err = NewContextFactoryFromConfig(&Config{})
	assert.Error(t, err)
}

func TestGlobalContexts(t *testing.T) {
	cfg := &Config{Contexts: map[string]ConnectionConfig{DefaultLocator: *memoryConfig()}}
	f, err := InitContexts(context.Background(), cfg, true)
	require.NoError(t, err)
	assert.Same(t, f, GetContextFactory())

	statuses := GetHealthStatus(context.Background())
	require.Len(t, statuses, 1)
	assert.True(t, statuses[0].Healthy)

	require.NoError(t, CloseContexts())
	assert.Nil(t, GetContextFactory())
	assert.Nil(t, GetHealthStatus(context.Background()))
	assert.NoError(t, CloseContexts())
}

func TestClassifySQLError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want SQLError
		ok   bool
	}{
		{"nil", nil, UnknownErr, false},
		{"plain", errors.New("boom"), UnknownErr, false},
		{"no rows", fmt.Errorf("get: %w", sql.ErrNoRows), NoRowsErr, true},
		{"mysql duplicate", &mysql.MySQLError{Number: 1062}, DuplicateKeyErr, true},
		{"mysql deadlock", fmt.Errorf("save: %w", &mysql.MySQLError{Number: 1213}), DeadlockErr, true},
		{"mysql unmapped", &mysql.MySQLError{Number: 9999}, UnknownErr, true},
		{"pq serialization", &pq.Error{Code: "40001"}, SerializationFailureErr, true},
		{"pq missing table", &pq.Error{Code: "42P01"}, NoTableErr, true},
		{"sqlite unique", errors.New("constraint failed: UNIQUE constraint failed: accounts.id (1555)"), DuplicateKeyErr, true},
		{"sqlite locked", errors.New("database is locked (5) (SQLITE_BUSY)"), DeadlockErr, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ClassifySQLError(tt.err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.ok, ok)
		})
	}
}

func TestSQLErrorRetryable(t *testing.T) {
	assert.True(t, SerializationFailureErr.Retryable())
	assert.True(t, DeadlockErr.Retryable())
	assert.False(t, DuplicateKeyErr.Retryable())
	assert.Equal(t, "lock-timeout", LockTimeoutErr.String())
	assert.Equal(t, "unknown", SQLError(99).String())
}

func TestModelRegistryOrdersByPriority(t *testing.T) {
	type a struct{}
	type b struct{}
	type c struct{}
	locator := "registry-" + uuid.NewString()
	RegisterModel(locator, NewModelAdapter((*a)(nil), 10))
	RegisterModel(locator, NewModelAdapter((*b)(nil), 1))
	RegisterModel(locator, NewModelAdapter((*c)(nil), 10))

	got := RegisteredModelInstances(locator)
	assert.Equal(t, []interface{}{(*b)(nil), (*a)(nil), (*c)(nil)}, got)
	assert.Empty(t, RegisteredModelInstances(locator+"-other"))
}

func healthCheckedConfig() ConnectionConfig {
	cfg := *memoryConfig()
	cfg.HealthCheckInterval = 10 * time.Millisecond
	cfg.EnableReconnect = true
	cfg.ReconnectInterval = time.Millisecond
	cfg.MaxReconnectTries = 5
	return cfg
}

func TestDisconnectStopsHealthLoop(t *testing.T) {
	m := NewManager("health", healthCheckedConfig())
	require.NoError(t, m.Connect(context.Background()))
	require.NoError(t, m.Disconnect())

	assert.Never(t, func() bool { return m.GetDB() != nil }, 200*time.Millisecond, 10*time.Millisecond,
		"a disconnected manager must stay closed")
}

func TestHealthLoopReconnectsBrokenConnection(t *testing.T) {
	m := NewManager("broken", healthCheckedConfig())
	ctx := context.Background()
	require.NoError(t, m.Connect(ctx))
	t.Cleanup(func() { _ = m.Disconnect() })

	old := m.GetDB()
	require.NoError(t, m.GetSQLDB().Close())

	stop := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
					_ = m.Connect(ctx)
					_ = m.GetStats()
					time.Sleep(time.Millisecond)
				}
			}
		}()
	}

	assert.Eventually(t, func() bool {
		db := m.GetDB()
		return db != nil && db != old && db.PingContext(ctx) == nil
	}, 2*time.Second, 10*time.Millisecond)
	close(stop)
	wg.Wait()
}

func TestContextFactoryDBDoesNotPingOpenDatabase(t *testing.T) {
	sqldb, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	db := bun.NewDB(sqldb, pgdialect.New())
	t.Cleanup(func() { _ = db.Close() })

	f := NewContextFactory()
	require.NoError(t, f.Attach("orders", db))
	for i := 0; i < 3; i++ {
		got, err := f.DB(context.Background(), "orders")
		require.NoError(t, err)
		assert.Same(t, db, got)
	}
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresDSNEscapesCredentials(t *testing.T) {
	m := NewManager("pg", ConnectionConfig{
		Type:     "postgres",
		Host:     "db.internal",
		Port:     5432,
		Username: "app",
		Password: "p@ss/w:rd",
		DBName:   "orders",
	}).(*defaultManager)

	u, err := url.Parse(m.dsn())
	require.NoError(t, err)
	assert.Equal(t, "postgres", u.Scheme)
	assert.Equal(t, "app", u.User.Username())
	password, ok := u.User.Password()
	assert.True(t, ok)
	assert.Equal(t, "p@ss/w:rd", password)
	assert.Equal(t, "db.internal:5432", u.Host)
	assert.Equal(t, "/orders", u.Path)
	assert.Equal(t, "disable", u.Query().Get("sslmode"))
	assert.Equal(t, "10", u.Query().Get("connect_timeout"))
}
