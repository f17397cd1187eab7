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

	"github.com/tomoncle/transact/database"
)

// LoggerSink writes events through a database.Logger. Rollbacks log at error
// level with the classified SQL error kind when the cause is a driver error.
type LoggerSink struct {
	logger database.Logger
}

// NewLoggerSink uses logger, or the global database logger when nil.
func NewLoggerSink(logger database.Logger) *LoggerSink {
	if logger == nil {
		logger = database.GetLogger()
	}
	return &LoggerSink{logger: logger}
}

func (s *LoggerSink) Emit(_ context.Context, e Event) {
	fields := []interface{}{"category", e.Category, "stage", e.Stage.String()}
	if e.Operation != "" {
		fields = append(fields, "operation", e.Operation)
	}
	if e.ScopeID != "" {
		fields = append(fields, "scope_id", e.ScopeID)
	}
	msg := e.Message
	if msg == "" {
		msg = "Unit of work " + e.Stage.String()
	}

	if !e.IsError {
		s.logger.Debug(msg, fields...)
		return
	}
	if e.Err != nil {
		fields = append(fields, "error", e.Err)
		if kind, ok := database.ClassifySQLError(e.Err); ok {
			fields = append(fields, "sql_error", kind.String(), "retryable", kind.Retryable())
		}
	}
	s.logger.Error(msg, fields...)
}
