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
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/uptrace/bun"
	"go.uber.org/multierr"
)

// ErrUnknownLocator is returned when no context was configured for a locator.
var ErrUnknownLocator = errors.New("unknown database context locator")

var supportedTypes = []string{"mysql", "postgres", "postgresql", "sqlite", "sqlite3"}

// ContextFactory maps context locators to their connection managers and
// opens each database lazily, the first time a unit of work asks for it.
type ContextFactory struct {
	mu       sync.RWMutex
	managers map[string]Manager
	order    []string
	logger   Logger
}

// NewContextFactory returns an empty factory using the global logger.
func NewContextFactory() *ContextFactory {
	return &ContextFactory{
		managers: make(map[string]Manager),
		logger:   GetLogger(),
	}
}

// NewContextFactoryFromConfig registers every context of cfg, applying
// environment overrides per locator.
func NewContextFactoryFromConfig(cfg *Config) (*ContextFactory, error) {
	if cfg == nil || len(cfg.Contexts) == 0 {
		return nil, fmt.Errorf("database configuration cannot be empty")
	}
	f := NewContextFactory()
	locators := make([]string, 0, len(cfg.Contexts))
	for locator := range cfg.Contexts {
		locators = append(locators, locator)
	}
	sort.Strings(locators)
	for _, locator := range locators {
		cc := cfg.Contexts[locator]
		if err := f.Register(locator, &cc); err != nil {
			return nil, err
		}
	}
	return f, nil
}

// Register configures a locator. Registering the same locator twice fails.
func (f *ContextFactory) Register(locator string, cfg *ConnectionConfig) error {
	if cfg == nil {
		return fmt.Errorf("database configuration for %q cannot be empty", locator)
	}
	if !isSupported(cfg.Type) {
		return fmt.Errorf("unsupported database type: %s, supported types: %v", cfg.Type, supportedTypes)
	}
	overrideFromEnv(locator, cfg)
	m := NewManager(locator, *cfg)
	m.SetLogger(f.logger)
	return f.add(locator, m)
}

// Attach registers an already opened Bun database under locator.
func (f *ContextFactory) Attach(locator string, db *bun.DB) error {
	if db == nil {
		return fmt.Errorf("database for %q cannot be nil", locator)
	}
	m := NewManagerFromDB(locator, db)
	m.SetLogger(f.logger)
	return f.add(locator, m)
}

func (f *ContextFactory) add(locator string, m Manager) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.managers[locator]; ok {
		return fmt.Errorf("database context %q already registered", locator)
	}
	f.managers[locator] = m
	f.order = append(f.order, locator)
	return nil
}

// DB returns the Bun database of locator, connecting on first use. An open
// database is returned as is; liveness is left to the health loop.
func (f *ContextFactory) DB(ctx context.Context, locator string) (*bun.DB, error) {
	m, err := f.Manager(locator)
	if err != nil {
		return nil, err
	}
	if db := m.GetDB(); db != nil {
		return db, nil
	}
	if err := m.Connect(ctx); err != nil {
		return nil, err
	}
	return m.GetDB(), nil
}

// Manager returns the manager of locator.
func (f *ContextFactory) Manager(locator string) (Manager, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	m, ok := f.managers[locator]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownLocator, locator)
	}
	return m, nil
}

// Locators returns the registered locators in registration order.
func (f *ContextFactory) Locators() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]string, len(f.order))
	copy(out, f.order)
	return out
}

// ConnectAll eagerly connects every registered locator.
func (f *ContextFactory) ConnectAll(ctx context.Context) error {
	for _, locator := range f.Locators() {
		m, _ := f.Manager(locator)
		if err := m.Connect(ctx); err != nil {
			return err
		}
	}
	f.logger.Info("Database contexts initialized", "count", len(f.Locators()))
	return nil
}

// HealthCheck checks every registered locator in registration order.
func (f *ContextFactory) HealthCheck(ctx context.Context) []*HealthStatus {
	locators := f.Locators()
	out := make([]*HealthStatus, 0, len(locators))
	for _, locator := range locators {
		m, _ := f.Manager(locator)
		out = append(out, m.HealthCheck(ctx))
	}
	return out
}

// SetLogger sets the logger on the factory and every manager.
func (f *ContextFactory) SetLogger(logger Logger) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logger = logger
	for _, m := range f.managers {
		m.SetLogger(logger)
	}
}

// Close disconnects every locator and combines their failures.
func (f *ContextFactory) Close() error {
	var errs error
	for _, locator := range f.Locators() {
		m, _ := f.Manager(locator)
		errs = multierr.Append(errs, m.Disconnect())
	}
	return errs
}

func isSupported(t string) bool {
	for _, s := range supportedTypes {
		if t == s {
			return true
		}
	}
	return false
}

// envPrefix is "DB_" for the default locator and "DB_<LOCATOR>_" otherwise.
func envPrefix(locator string) string {
	if locator == DefaultLocator {
		return "DB_"
	}
	name := strings.ToUpper(strings.NewReplacer("-", "_", ".", "_").Replace(locator))
	return "DB_" + name + "_"
}

// overrideFromEnv overrides connection values from environment variables.
func overrideFromEnv(locator string, cfg *ConnectionConfig) {
	p := envPrefix(locator)
	if v := os.Getenv(p + "DSN"); v != "" {
		cfg.DSN = v
	}
	if v := os.Getenv(p + "HOST"); v != "" {
		cfg.Host = v
	}
	if v := os.Getenv(p + "PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Port = port
		}
	}
	if v := os.Getenv(p + "USERNAME"); v != "" {
		cfg.Username = v
	}
	if v := os.Getenv(p + "PASSWORD"); v != "" {
		cfg.Password = v
	}
	if v := os.Getenv(p + "NAME"); v != "" {
		cfg.DBName = v
	}
	if v := os.Getenv(p + "SSLMODE"); v != "" {
		cfg.SSLMode = v
	}
	if v := os.Getenv(p + "MAX_OPEN_CONNS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxOpenConns = n
		}
	}
	if v := os.Getenv(p + "CONN_MAX_LIFETIME"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.ConnMaxLifetime = time.Duration(n) * time.Second
		}
	}
	if v := os.Getenv(p + "ENABLE_QUERY_LOG"); v != "" {
		cfg.EnableQueryLog = v == "true"
	}
}
