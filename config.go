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
	"fmt"
	"os"
	"sort"

	"github.com/tomoncle/transact/transaction"
	"gopkg.in/yaml.v3"
)

// UnitOfWorkConfig is the "unit_of_work" section of a configuration file:
//
//	unit_of_work:
//	  default:
//	    isolation: read-committed
//	  operations:
//	    orders.create:
//	      isolation: serializable
//	      timeout: 5s
//	    reports.export:
//	      non_transact: true
//
// Operation entries inherit every field they leave out from default.
type UnitOfWorkConfig struct {
	Default    transaction.Options  `yaml:"default"`
	Operations map[string]yaml.Node `yaml:"operations"`
}

type fileConfig struct {
	UnitOfWork UnitOfWorkConfig `yaml:"unit_of_work"`
}

type operationEntry struct {
	NonTransact         bool `yaml:"non_transact"`
	transaction.Options `yaml:",inline"`
}

// LoadOperations reads the unit of work section of a YAML file.
func LoadOperations(path string) (*Resolver, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return ParseOperations(data)
}

// ParseOperations builds a resolver from the unit of work section of a YAML
// document. A missing section yields the default options and no operations.
func ParseOperations(data []byte) (*Resolver, error) {
	var cfg fileConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	uow := cfg.UnitOfWork
	if err := uow.Default.Validate(); err != nil {
		return nil, fmt.Errorf("unit_of_work.default: %w", err)
	}

	r := NewResolver(uow.Default)
	names := make([]string, 0, len(uow.Operations))
	for name := range uow.Operations {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		node := uow.Operations[name]
		entry := operationEntry{Options: uow.Default}
		if err := node.Decode(&entry); err != nil {
			return nil, fmt.Errorf("unit_of_work.operations.%s: %w", name, err)
		}
		if entry.NonTransact {
			r.Register(name, WithNonTransact())
			continue
		}
		if err := entry.Options.Validate(); err != nil {
			return nil, fmt.Errorf("unit_of_work.operations.%s: %w", name, err)
		}
		r.Register(name, WithUnitOfWork(entry.Options))
	}
	return r, nil
}
