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
	"fmt"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/tomoncle/transact/utils"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const loggerName = "DATABASE"

var (
	globalLogger   Logger
	globalLoggerMu sync.RWMutex
)

type LogLevel int

const (
	LogLevelDebug LogLevel = iota
	LogLevelInfo
	LogLevelWarn
	LogLevelError
)

func (l LogLevel) String() string {
	switch l {
	case LogLevelInfo:
		return "INFO"
	case LogLevelWarn:
		return "WARN"
	case LogLevelError:
		return "ERROR"
	default:
		return "DEBUG"
	}
}

// Logger is the structured logger used by database contexts and by the unit
// of work layers built on top of them. Fields are alternating key/value pairs.
type Logger interface {
	SetLevel(LogLevel)
	Debug(msg string, fields ...interface{})
	Info(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
}

// InitLogger installs log as the global logger. Nil is ignored.
func InitLogger(log Logger) {
	if log == nil {
		return
	}
	globalLoggerMu.Lock()
	defer globalLoggerMu.Unlock()
	globalLogger = log
}

func GetLogger() Logger {
	globalLoggerMu.RLock()
	l := globalLogger
	globalLoggerMu.RUnlock()
	if l != nil {
		return l
	}

	globalLoggerMu.Lock()
	defer globalLoggerMu.Unlock()
	if globalLogger == nil {
		globalLogger = NewLogrusLogger(utils.NewLogger(loggerName))
	}
	return globalLogger
}

// DefaultLogger adapts a logrus logger.
type DefaultLogger struct {
	logger *logrus.Logger
}

func NewLogrusLogger(l *logrus.Logger) *DefaultLogger {
	return &DefaultLogger{logger: l}
}

func (l *DefaultLogger) Debug(msg string, fields ...interface{}) {
	l.logger.WithFields(toFields(fields)).Debug(msg)
}

func (l *DefaultLogger) Info(msg string, fields ...interface{}) {
	l.logger.WithFields(toFields(fields)).Info(msg)
}

func (l *DefaultLogger) Warn(msg string, fields ...interface{}) {
	l.logger.WithFields(toFields(fields)).Warn(msg)
}

func (l *DefaultLogger) Error(msg string, fields ...interface{}) {
	l.logger.WithFields(toFields(fields)).Error(msg)
}

func (l *DefaultLogger) SetLevel(level LogLevel) {
	l.logger.SetLevel(utils.ParseLogLevel(strings.ToLower(level.String())))
}

func toFields(kv []interface{}) logrus.Fields {
	fields := make(logrus.Fields, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		fields[fmt.Sprint(kv[i])] = kv[i+1]
	}
	return fields
}

// ZapLogger adapts a zap logger. Its level is held in an AtomicLevel so
// SetLevel works after construction.
type ZapLogger struct {
	sugar *zap.SugaredLogger
	level zap.AtomicLevel
}

// NewZapLogger wraps base. A nil base builds a production logger.
func NewZapLogger(base *zap.Logger) (*ZapLogger, error) {
	level := zap.NewAtomicLevelAt(zapcore.InfoLevel)
	if base == nil {
		cfg := zap.NewProductionConfig()
		cfg.Level = level
		l, err := cfg.Build()
		if err != nil {
			return nil, err
		}
		base = l
	} else {
		base = base.WithOptions(zap.IncreaseLevel(level))
	}
	return &ZapLogger{sugar: base.Named(strings.ToLower(loggerName)).Sugar(), level: level}, nil
}

func (z *ZapLogger) SetLevel(level LogLevel) {
	switch level {
	case LogLevelDebug:
		z.level.SetLevel(zapcore.DebugLevel)
	case LogLevelWarn:
		z.level.SetLevel(zapcore.WarnLevel)
	case LogLevelError:
		z.level.SetLevel(zapcore.ErrorLevel)
	default:
		z.level.SetLevel(zapcore.InfoLevel)
	}
}

func (z *ZapLogger) Debug(msg string, fields ...interface{}) { z.sugar.Debugw(msg, fields...) }
func (z *ZapLogger) Info(msg string, fields ...interface{})  { z.sugar.Infow(msg, fields...) }
func (z *ZapLogger) Warn(msg string, fields ...interface{})  { z.sugar.Warnw(msg, fields...) }
func (z *ZapLogger) Error(msg string, fields ...interface{}) { z.sugar.Errorw(msg, fields...) }

// Sync flushes buffered zap entries.
func (z *ZapLogger) Sync() error { return z.sugar.Sync() }
