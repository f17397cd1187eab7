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

// Package diagnostics carries the trace events a unit of work emits and the
// sinks that consume them.
package diagnostics

import (
	"context"
	"sync"
)

// Category is the category of every unit of work event.
const Category = "transaction"

type Stage string

const (
	StageSkipped   Stage = "skipped"
	StageBeginning Stage = "beginning"
	StageCompleted Stage = "completed"
	StageRollback  Stage = "rollback"
)

func (s Stage) String() string { return string(s) }

// Event is one diagnostic record. Err is set on rollback events caused by an
// error; IsError may be set without Err when the cause is a panic.
type Event struct {
	Category  string
	Stage     Stage
	Message   string
	IsError   bool
	Operation string
	ScopeID   string
	Changes   int
	Err       error
}

// Sink receives events. Implementations must not block for long; they run on
// the caller's goroutine.
type Sink interface {
	Emit(ctx context.Context, e Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, e Event)

func (f SinkFunc) Emit(ctx context.Context, e Event) { f(ctx, e) }

// Nop discards events.
var Nop Sink = SinkFunc(func(context.Context, Event) {})

type multi []Sink

// Multi fans events out to every non-nil sink in order.
func Multi(sinks ...Sink) Sink {
	out := make(multi, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

func (m multi) Emit(ctx context.Context, e Event) {
	for _, s := range m {
		s.Emit(ctx, e)
	}
}

// Recorder keeps events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func NewRecorder() *Recorder { return &Recorder{} }

func (r *Recorder) Emit(_ context.Context, e Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Stages returns the recorded stages in order.
func (r *Recorder) Stages() []Stage {
	events := r.Events()
	out := make([]Stage, len(events))
	for i, e := range events {
		out[i] = e.Stage
	}
	return out
}

func (r *Recorder) Reset() {
	r.mu.Lock()
	r.events = nil
	r.mu.Unlock()
}
