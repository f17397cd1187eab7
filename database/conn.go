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
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"sync"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/mysqldialect"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
	"github.com/uptrace/bun/extra/bundebug"
)

type defaultManager struct {
	locator         string
	config          ConnectionConfig
	db              *bun.DB
	sqlDB           *sql.DB
	logger          Logger
	mu              sync.RWMutex
	connected       bool
	attached        bool
	reconnectTries  int
	// stopHealthCheck is set while the health loop runs; guarded by mu.
	stopHealthCheck context.CancelFunc
}

// NewManager returns a Manager that opens the locator's database on Connect.
func NewManager(locator string, config ConnectionConfig) Manager {
	return &defaultManager{
		locator:         locator,
		config:          config.withDefaults(),
		logger:          GetLogger(),
	}
}

// NewManagerFromDB wraps an already opened Bun database. Connect only pings it.
func NewManagerFromDB(locator string, db *bun.DB) Manager {
	return &defaultManager{
		locator:         locator,
		config:          DefaultConnectionConfig().withDefaults(),
		db:              db,
		sqlDB:           db.DB,
		logger:          GetLogger(),
		attached:        true,
	}
}

func (dm *defaultManager) Locator() string { return dm.locator }

func (dm *defaultManager) Connect(ctx context.Context) error {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	return dm.connectLocked(ctx)
}

func (dm *defaultManager) connectLocked(ctx context.Context) error {
	if dm.connected && dm.db != nil {
		return nil
	}

	if !dm.attached {
		sqlDB, db, err := dm.open()
		if err != nil {
			return fmt.Errorf("failed to open %q: %w", dm.locator, err)
		}
		dm.sqlDB, dm.db = sqlDB, db
		dm.sqlDB.SetMaxIdleConns(dm.config.MaxIdleConns)
		dm.sqlDB.SetMaxOpenConns(dm.config.MaxOpenConns)
		dm.sqlDB.SetConnMaxLifetime(dm.config.ConnMaxLifetime)
		dm.sqlDB.SetConnMaxIdleTime(dm.config.ConnMaxIdleTime)
	}

	ctxTimeout, cancel := context.WithTimeout(ctx, dm.config.ConnectTimeout)
	defer cancel()
	if err := dm.db.PingContext(ctxTimeout); err != nil {
		return fmt.Errorf("connection test for %q failed: %w", dm.locator, err)
	}

	dm.db.RegisterModel(RegisteredModelInstances(dm.locator)...)
	dm.connected = true
	dm.reconnectTries = 0

	if dm.config.HealthCheckInterval > 0 && dm.stopHealthCheck == nil {
		dm.startHealthCheck()
	}
	dm.logger.Info("Database context connected", "locator", dm.locator, "type", dm.config.Type)
	return nil
}

func (dm *defaultManager) open() (*sql.DB, *bun.DB, error) {
	var (
		sqlDB *sql.DB
		db    *bun.DB
		err   error
	)
	switch dm.config.Type {
	case "mysql":
		if sqlDB, err = sql.Open("mysql", dm.dsn()); err == nil {
			db = bun.NewDB(sqlDB, mysqldialect.New())
		}
	case "postgres", "postgresql":
		if sqlDB, err = sql.Open("postgres", dm.dsn()); err == nil {
			db = bun.NewDB(sqlDB, pgdialect.New())
		}
	case "sqlite", "sqlite3":
		if sqlDB, err = sql.Open(sqliteshim.ShimName, dm.dsn()); err == nil {
			db = bun.NewDB(sqlDB, sqlitedialect.New())
		}
	default:
		return nil, nil, fmt.Errorf("unsupported database type: %s", dm.config.Type)
	}
	if err != nil {
		return nil, nil, err
	}

	if dm.config.EnableQueryLog {
		db.AddQueryHook(NewQueryHook(dm.locator, os.Stdout))
	}
	if dm.config.VerboseQueryLog {
		db.AddQueryHook(bundebug.NewQueryHook(
			bundebug.WithVerbose(true),
			bundebug.FromEnv("BUNDEBUG"),
		))
	}
	if dm.config.SlowQueryTime > 0 {
		db.AddQueryHook(&slowQueryHook{locator: dm.locator, slowTime: dm.config.SlowQueryTime, logger: dm.logger})
	}
	return sqlDB, db, nil
}

func (dm *defaultManager) dsn() string {
	c := dm.config
	if c.DSN != "" {
		return c.DSN
	}
	switch c.Type {
	case "mysql":
		return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local&timeout=%s&readTimeout=%s&writeTimeout=%s",
			c.Username, c.Password, c.Host, c.Port, c.DBName, c.ConnectTimeout, c.ReadTimeout, c.WriteTimeout)
	case "postgres", "postgresql":
		sslMode := c.SSLMode
		if sslMode == "" {
			sslMode = "disable"
		}
		q := url.Values{}
		q.Set("sslmode", sslMode)
		q.Set("connect_timeout", strconv.Itoa(int(c.ConnectTimeout.Seconds())))
		u := url.URL{
			Scheme:   "postgres",
			User:     url.UserPassword(c.Username, c.Password),
			Host:     net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
			Path:     "/" + c.DBName,
			RawQuery: q.Encode(),
		}
		return u.String()
	default:
		return fmt.Sprintf("%s.db", c.DBName)
	}
}

func (dm *defaultManager) Disconnect() error {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	if dm.stopHealthCheck != nil {
		dm.stopHealthCheck()
		dm.stopHealthCheck = nil
	}

	if dm.db == nil {
		return nil
	}
	err := dm.db.Close()
	dm.db, dm.sqlDB = nil, nil
	dm.connected = false
	dm.attached = false
	if err != nil {
		dm.logger.Error("Failed to close database context", "locator", dm.locator, "error", err)
	} else {
		dm.logger.Info("Database context closed", "locator", dm.locator)
	}
	return err
}

func (dm *defaultManager) Ping(ctx context.Context) error {
	db := dm.GetDB()
	if db == nil {
		return fmt.Errorf("database context %q not connected", dm.locator)
	}
	return db.PingContext(ctx)
}

func (dm *defaultManager) GetDB() *bun.DB {
	dm.mu.RLock()
	defer dm.mu.RUnlock()
	return dm.db
}

func (dm *defaultManager) GetSQLDB() *sql.DB {
	dm.mu.RLock()
	defer dm.mu.RUnlock()
	return dm.sqlDB
}

func (dm *defaultManager) HealthCheck(ctx context.Context) *HealthStatus {
	start := time.Now()
	status := &HealthStatus{Locator: dm.locator, LastCheckTime: start}

	dm.mu.RLock()
	db, sqlDB := dm.db, dm.sqlDB
	status.Connected = dm.connected
	dm.mu.RUnlock()

	if db == nil {
		status.LastError = "database context not initialized"
		return status
	}

	ctxTimeout, cancel := context.WithTimeout(ctx, time.Second*5)
	defer cancel()
	if err := db.PingContext(ctxTimeout); err != nil {
		status.Connected = false
		status.LastError = err.Error()
	} else {
		status.Healthy = true
		status.Connected = true
	}
	status.ResponseTime = time.Since(start)

	stats := sqlDB.Stats()
	status.ActiveConns = stats.InUse
	status.IdleConns = stats.Idle
	status.MaxOpenConns = stats.MaxOpenConnections
	return status
}

// startHealthCheck runs the health loop until Disconnect. Callers hold mu.
func (dm *defaultManager) startHealthCheck() {
	loopCtx, cancel := context.WithCancel(context.Background())
	dm.stopHealthCheck = cancel
	go func() {
		ticker := time.NewTicker(dm.config.HealthCheckInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(loopCtx, time.Second*10)
				status := dm.HealthCheck(ctx)
				cancel()
				if !status.Healthy && dm.config.EnableReconnect {
					dm.reconnect(loopCtx)
				}
			case <-loopCtx.Done():
				return
			}
		}
	}()
}

// reconnect reopens the database unless loopCtx was cancelled by Disconnect.
func (dm *defaultManager) reconnect(loopCtx context.Context) {
	dm.mu.Lock()
	if dm.attached || loopCtx.Err() != nil || dm.reconnectTries >= dm.config.MaxReconnectTries {
		dm.mu.Unlock()
		return
	}
	dm.reconnectTries++
	try, logger := dm.reconnectTries, dm.logger
	dm.mu.Unlock()

	logger.Warn("Reconnecting database context", "locator", dm.locator, "try", try)
	select {
	case <-time.After(dm.config.ReconnectInterval):
	case <-loopCtx.Done():
		return
	}

	dm.mu.Lock()
	defer dm.mu.Unlock()
	if loopCtx.Err() != nil {
		return
	}
	if dm.db != nil {
		_ = dm.db.Close()
	}
	dm.db, dm.sqlDB, dm.connected = nil, nil, false

	ctx, cancel := context.WithTimeout(loopCtx, dm.config.ConnectTimeout)
	defer cancel()
	if err := dm.connectLocked(ctx); err != nil {
		dm.logger.Error("Reconnect failed", "locator", dm.locator, "error", err, "try", try)
	}
}

func (dm *defaultManager) GetStats() *DBStats {
	sqlDB := dm.GetSQLDB()
	if sqlDB == nil {
		return &DBStats{}
	}
	stats := sqlDB.Stats()
	return &DBStats{
		MaxOpenConns: stats.MaxOpenConnections,
		OpenConns:    stats.OpenConnections,
		InUse:        stats.InUse,
		Idle:         stats.Idle,
		WaitCount:    stats.WaitCount,
		WaitDuration: stats.WaitDuration,
	}
}

func (dm *defaultManager) SetLogger(logger Logger) {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	dm.logger = logger
}
