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
	"sort"
	"sync"
)

var defaultRegistry = newModelRegistry()

// SQLModel is a Bun model registered with a context. Priority orders
// registration, lower values first.
type SQLModel interface {
	Instance() interface{}
	Priority() int
}

// ModelRegistry stores models per locator.
type ModelRegistry interface {
	Register(locator string, model SQLModel)
	Models(locator string) []SQLModel
}

type modelRegistry struct {
	models map[string][]SQLModel
	mutex  sync.RWMutex
}

func newModelRegistry() ModelRegistry {
	return &modelRegistry{models: make(map[string][]SQLModel)}
}

func (r *modelRegistry) Register(locator string, model SQLModel) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.models[locator] = append(r.models[locator], model)
}

func (r *modelRegistry) Models(locator string) []SQLModel {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	result := make([]SQLModel, len(r.models[locator]))
	copy(result, r.models[locator])
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Priority() < result[j].Priority()
	})
	return result
}

type ModelAdapter struct {
	instance interface{}
	priority int
}

func NewModelAdapter(instance interface{}, priority int) SQLModel {
	return &ModelAdapter{instance: instance, priority: priority}
}

func (a *ModelAdapter) Instance() interface{} { return a.instance }

func (a *ModelAdapter) Priority() int { return a.priority }

// RegisterModel adds a model to locator. Models are registered with Bun when
// the locator connects, so m2m join models must be added before that.
func RegisterModel(locator string, model SQLModel) {
	defaultRegistry.Register(locator, model)
}

// RegisteredModelInstances returns the instances registered for locator,
// by ascending priority.
func RegisteredModelInstances(locator string) []interface{} {
	models := defaultRegistry.Models(locator)
	instances := make([]interface{}, len(models))
	for i, model := range models {
		instances[i] = model.Instance()
	}
	return instances
}
