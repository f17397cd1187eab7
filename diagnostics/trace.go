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

package diagnostics

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TraceSink adds each event to the span carried by ctx. Rollback events mark
// the span as failed.
type TraceSink struct{}

func NewTraceSink() TraceSink { return TraceSink{} }

func (TraceSink) Emit(ctx context.Context, e Event) {
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("transact.category", e.Category),
		attribute.String("transact.stage", e.Stage.String()),
	}
	if e.Operation != "" {
		attrs = append(attrs, attribute.String("transact.operation", e.Operation))
	}
	if e.ScopeID != "" {
		attrs = append(attrs, attribute.String("transact.scope_id", e.ScopeID))
	}
	if e.Stage == StageCompleted {
		attrs = append(attrs, attribute.Int("transact.changes", e.Changes))
	}
	if e.Message != "" {
		attrs = append(attrs, attribute.String("transact.message", e.Message))
	}
	span.AddEvent("transact."+e.Stage.String(), trace.WithAttributes(attrs...))

	if e.IsError {
		if e.Err != nil {
			span.RecordError(e.Err)
			span.SetStatus(codes.Error, e.Err.Error())
		} else {
			span.SetStatus(codes.Error, e.Message)
		}
	}
}
