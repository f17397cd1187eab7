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
	"fmt"
	"sync"
)

var (
	globalFactory   *ContextFactory
	globalFactoryMu sync.RWMutex
)

// InitContexts builds the global context factory from cfg. When eager is
// true every locator is connected before returning.
func InitContexts(ctx context.Context, cfg *Config, eager bool) (*ContextFactory, error) {
	f, err := NewContextFactoryFromConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create database contexts: %w", err)
	}
	if eager {
		if err := f.ConnectAll(ctx); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("failed to initialize database contexts: %w", err)
		}
	}

	globalFactoryMu.Lock()
	prev := globalFactory
	globalFactory = f
	globalFactoryMu.Unlock()
	if prev != nil {
		_ = prev.Close()
	}
	return f, nil
}

// GetContextFactory returns the global factory, or nil before InitContexts.
func GetContextFactory() *ContextFactory {
	globalFactoryMu.RLock()
	defer globalFactoryMu.RUnlock()
	return globalFactory
}

// CloseContexts closes and forgets the global factory.
func CloseContexts() error {
	globalFactoryMu.Lock()
	f := globalFactory
	globalFactory = nil
	globalFactoryMu.Unlock()
	if f == nil {
		return nil
	}
	return f.Close()
}

// GetHealthStatus checks every locator of the global factory.
func GetHealthStatus(ctx context.Context) []*HealthStatus {
	f := GetContextFactory()
	if f == nil {
		return nil
	}
	return f.HealthCheck(ctx)
}
