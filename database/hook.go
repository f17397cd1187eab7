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
	"errors"
	"fmt"
	"io"
	"os"
	"reflect"
	"sync/atomic"
	"time"

	"github.com/fatih/color"
	"github.com/tomoncle/transact/transaction"
	"github.com/uptrace/bun"
)

var silent atomic.Bool

// EnableQueryLogSilent mutes every query hook of this package.
func EnableQueryLogSilent(b bool) {
	silent.Store(b)
}

var (
	tagColor   = color.New(color.FgCyan)
	txColor    = color.New(color.FgHiMagenta)
	errorColor = color.New(color.BgRed, color.FgHiWhite)
	opColors   = map[string]*color.Color{
		"SELECT": color.New(color.FgGreen),
		"INSERT": color.New(color.FgBlue),
		"UPDATE": color.New(color.FgYellow),
		"DELETE": color.New(color.FgMagenta),
	}
	opBackgrounds = map[string]*color.Color{
		"SELECT": color.New(color.BgGreen, color.FgHiWhite),
		"INSERT": color.New(color.BgBlue, color.FgHiWhite),
		"UPDATE": color.New(color.BgYellow, color.FgHiWhite),
		"DELETE": color.New(color.BgMagenta, color.FgHiWhite),
	}
	otherOp         = color.New(color.FgRed)
	otherBackground = color.New(color.BgRed, color.FgHiWhite)
)

// QueryHook prints every query of one locator, tagged with the ambient
// transaction id when the query runs inside a unit of work.
type QueryHook struct {
	locator string
	envName string
	writer  io.Writer
}

var _ bun.QueryHook = (*QueryHook)(nil)

// NewQueryHook logs queries of locator to w. Setting TRANSACT_QUERY_LOG=0
// disables it at runtime.
func NewQueryHook(locator string, w io.Writer) *QueryHook {
	if w == nil {
		w = os.Stdout
	}
	return &QueryHook{locator: locator, envName: "TRANSACT_QUERY_LOG", writer: w}
}

func (h *QueryHook) BeforeQuery(ctx context.Context, _ *bun.QueryEvent) context.Context {
	return ctx
}

func (h *QueryHook) AfterQuery(ctx context.Context, event *bun.QueryEvent) {
	if silent.Load() {
		return
	}
	if env, ok := os.LookupEnv(h.envName); ok && (env == "" || env == "0") {
		return
	}
	if errors.Is(event.Err, sql.ErrTxDone) {
		return
	}

	now := time.Now()
	args := []interface{}{
		now.Format("2006-01-02 15:04:05.000"),
		tagColor.Sprintf("%-16s", "[BUN:"+h.locator+"]"),
		fmt.Sprintf("%12s", now.Sub(event.StartTime).Round(time.Microsecond)),
	}
	if info := transaction.Current(ctx); info != nil {
		args = append(args, txColor.Sprintf("tx=%.8s", info.ID))
	}
	args = append(args, colorFor(event, opColors, otherOp).Sprint(event.Query))
	if event.Err != nil && !errors.Is(event.Err, sql.ErrNoRows) {
		typ := reflect.TypeOf(event.Err).String()
		args = append(args, "\t", errorColor.Sprintf(" %s: %s ", typ, event.Err.Error()))
	}
	_, _ = fmt.Fprintln(h.writer, args...)
}

func colorFor(event *bun.QueryEvent, table map[string]*color.Color, fallback *color.Color) *color.Color {
	if c, ok := table[event.Operation()]; ok {
		return c
	}
	return fallback
}

// slowQueryHook warns through the database logger about queries slower
// than slowTime.
type slowQueryHook struct {
	locator  string
	slowTime time.Duration
	logger   Logger
}

var _ bun.QueryHook = (*slowQueryHook)(nil)

func (h *slowQueryHook) BeforeQuery(ctx context.Context, _ *bun.QueryEvent) context.Context {
	return ctx
}

func (h *slowQueryHook) AfterQuery(ctx context.Context, event *bun.QueryEvent) {
	if silent.Load() || event.Err != nil {
		return
	}
	duration := time.Since(event.StartTime)
	if duration <= h.slowTime {
		return
	}
	fields := []interface{}{
		"locator", h.locator,
		"duration", duration.Round(time.Microsecond).String(),
		"query", colorFor(event, opBackgrounds, otherBackground).Sprint(event.Query),
	}
	if info := transaction.Current(ctx); info != nil {
		fields = append(fields, "scope_id", info.ID)
	}
	h.logger.Warn("Slow query", fields...)
}
