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

package utils

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
)

type Logger = logrus.Logger

const timestampFormat = "2006-01-02 15:04:05.000"

var (
	baseLevel        = ParseLogLevel(EnvDefaultString("LOG_LEVEL", "info"))
	consoleLogFormat = EnvDefaultString("CONSOLE_LOG_FORMAT", "text")
	output           io.Writer = os.Stdout
	loggerRegistryMu sync.RWMutex
	loggerRegistry   = map[string]*logrus.Logger{}
)

// ConfigureConsoleLogFormat switches loggers created afterwards between
// "text" and "json".
func ConfigureConsoleLogFormat(format string) {
	if strings.EqualFold(strings.TrimSpace(format), "json") {
		consoleLogFormat = "json"
	} else {
		consoleLogFormat = "text"
	}
}

// ConfigureOutput redirects loggers created afterwards. Nil restores stdout.
func ConfigureOutput(w io.Writer) {
	if w == nil {
		w = os.Stdout
	}
	output = w
}

func ParseLogLevel(s string) logrus.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return logrus.TraceLevel
	case "debug":
		return logrus.DebugLevel
	case "warn", "warning":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	case "fatal":
		return logrus.FatalLevel
	case "panic":
		return logrus.PanicLevel
	default:
		return logrus.InfoLevel
	}
}

func RegisterLogger(name string, l *logrus.Logger) {
	loggerRegistryMu.Lock()
	defer loggerRegistryMu.Unlock()
	loggerRegistry[name] = l
}

// RegisteredLoggers returns the sorted names of every registered logger.
func RegisteredLoggers() []string {
	loggerRegistryMu.RLock()
	defer loggerRegistryMu.RUnlock()
	names := make([]string, 0, len(loggerRegistry))
	for name := range loggerRegistry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func SetLoggerLevel(name string, lvlStr string) bool {
	loggerRegistryMu.RLock()
	lg, ok := loggerRegistry[name]
	loggerRegistryMu.RUnlock()
	if !ok {
		return false
	}
	lg.SetLevel(ParseLogLevel(lvlStr))
	return true
}

// ConfigureLogLevel sets the level of every registered logger and of those
// created afterwards.
func ConfigureLogLevel(levelStr string) {
	baseLevel = ParseLogLevel(levelStr)
	loggerRegistryMu.RLock()
	for _, lg := range loggerRegistry {
		lg.SetLevel(baseLevel)
	}
	loggerRegistryMu.RUnlock()
	logrus.SetLevel(baseLevel)
}

// NewLogger returns a named logrus logger and registers it. Calling it twice
// with the same name returns the registered instance.
func NewLogger(name string) *logrus.Logger {
	loggerRegistryMu.RLock()
	existing, ok := loggerRegistry[name]
	loggerRegistryMu.RUnlock()
	if ok {
		return existing
	}

	l := logrus.New()
	l.SetOutput(output)
	l.SetLevel(baseLevel)
	l.SetReportCaller(true)
	if consoleLogFormat == "json" {
		l.SetFormatter(&JSONLogFormatter{LoggerName: name})
	} else {
		l.SetFormatter(&Log4jColorFormatter{LoggerName: name, NameWidth: 12})
	}
	RegisterLogger(name, l)
	return l
}

// Log4jColorFormatter renders "time LEVEL pid --- [name] file:line : msg k=v".
type Log4jColorFormatter struct {
	LoggerName      string
	TimestampFormat string
	NameWidth       int
}

var levelColors = map[logrus.Level]*color.Color{
	logrus.TraceLevel: color.New(color.FgHiBlack),
	logrus.DebugLevel: color.New(color.FgBlue),
	logrus.InfoLevel:  color.New(color.FgGreen),
	logrus.WarnLevel:  color.New(color.FgYellow),
	logrus.ErrorLevel: color.New(color.FgRed),
	logrus.FatalLevel: color.New(color.FgRed, color.Bold),
	logrus.PanicLevel: color.New(color.FgRed, color.Bold),
}

var (
	nameColor  = color.New(color.FgCyan)
	pidColor   = color.New(color.FgMagenta)
	faintColor = color.New(color.Faint)
)

func (f *Log4jColorFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	tsFmt := f.TimestampFormat
	if tsFmt == "" {
		tsFmt = timestampFormat
	}
	lvl := fmt.Sprintf("%7s", strings.ToUpper(entry.Level.String()))
	if c, ok := levelColors[entry.Level]; ok {
		lvl = c.Sprint(lvl)
	}
	name := f.LoggerName
	if f.NameWidth > 0 {
		if r := []rune(name); len(r) > f.NameWidth {
			name = string(r[:f.NameWidth])
		}
		name = fmt.Sprintf("%*s", f.NameWidth, name)
	}
	caller := ""
	if entry.Caller != nil {
		caller = " " + faintColor.Sprintf("%s:%d", filepath.Base(entry.Caller.File), entry.Caller.Line)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s %s %s --- [%s]%s %s %s",
		entry.Time.Format(tsFmt), lvl, pidColor.Sprintf("%-6d", os.Getpid()),
		nameColor.Sprint(name), caller, faintColor.Sprint(":"), entry.Message)
	keys := make([]string, 0, len(entry.Data))
	for k := range entry.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, entry.Data[k])
	}
	b.WriteByte('\n')
	return []byte(b.String()), nil
}

// JSONLogFormatter writes one JSON object per entry. Unit-of-work fields are
// lifted to the top level.
type JSONLogFormatter struct {
	LoggerName      string
	TimestampFormat string
}

type jsonLogRecord struct {
	Time     string                 `json:"time"`
	Level    string                 `json:"level"`
	Logger   string                 `json:"logger"`
	Caller   string                 `json:"caller,omitempty"`
	Message  string                 `json:"message"`
	Category string                 `json:"category,omitempty"`
	Stage    string                 `json:"stage,omitempty"`
	ScopeID  string                 `json:"scope_id,omitempty"`
	Locator  string                 `json:"locator,omitempty"`
	Fields   map[string]interface{} `json:"fields,omitempty"`
}

func (f *JSONLogFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	tsFmt := f.TimestampFormat
	if tsFmt == "" {
		tsFmt = timestampFormat
	}
	rec := jsonLogRecord{
		Time:    entry.Time.Format(tsFmt),
		Level:   strings.ToLower(entry.Level.String()),
		Logger:  f.LoggerName,
		Message: entry.Message,
	}
	if entry.Caller != nil {
		rec.Caller = fmt.Sprintf("%s:%d", filepath.Base(entry.Caller.File), entry.Caller.Line)
	}

	extra := make(map[string]interface{}, len(entry.Data))
	for k, v := range entry.Data {
		s, isString := v.(string)
		switch {
		case k == "category" && isString:
			rec.Category = s
		case k == "stage" && isString:
			rec.Stage = s
		case k == "scope_id" && isString:
			rec.ScopeID = s
		case k == "locator" && isString:
			rec.Locator = s
		case k == logrus.ErrorKey:
			if err, ok := v.(error); ok {
				extra[k] = err.Error()
			} else {
				extra[k] = v
			}
		default:
			extra[k] = v
		}
	}
	if len(extra) > 0 {
		rec.Fields = extra
	}

	b, err := json.Marshal(rec)
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}

func EnvDefaultString(key string, def string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return v
	}
	return def
}

func EnvDefaultBool(key string, def bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok {
		return def
	}
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return def
	}
}

// EnvDefaultDuration parses key with time.ParseDuration, falling back to def.
func EnvDefaultDuration(key string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(strings.TrimSpace(v)); err == nil {
			return d
		}
	}
	return def
}
