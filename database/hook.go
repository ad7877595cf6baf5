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
	"strings"
	"sync/atomic"
	"time"

	"github.com/fatih/color"
	"github.com/uptrace/bun"
)

var silentMode atomic.Bool

// EnableBunSqlSilent mutes QueryHook and SlowQueryHook, e.g. while
// migrations run.
func EnableBunSqlSilent(b bool) {
	silentMode.Store(b)
}

var operationColors = map[string]*color.Color{
	"SELECT": color.New(color.FgGreen),
	"INSERT": color.New(color.FgBlue),
	"UPDATE": color.New(color.FgYellow),
	"DELETE": color.New(color.FgMagenta),
}

var (
	defaultOperationColor = color.New(color.FgRed)
	hookTagColor          = color.New(color.FgCyan)
	slowTagColor          = color.New(color.FgYellow, color.Bold)
	errorColor            = color.New(color.BgRed, color.FgWhite)
)

func operationColor(event *bun.QueryEvent) *color.Color {
	if c, ok := operationColors[event.Operation()]; ok {
		return c
	}
	return defaultOperationColor
}

// QueryHook prints executed statements. The environment variable named by
// envName overrides the static switches: "0" or empty disables, "1" prints
// failed queries only, "2" prints every query.
type QueryHook struct {
	envName string
	enabled bool
	verbose bool
	writer  io.Writer
}

var _ bun.QueryHook = (*QueryHook)(nil)

type QueryHookOption func(*QueryHook)

// WithQueryHookEnv sets the controlling environment variable.
func WithQueryHookEnv(name string) QueryHookOption {
	return func(h *QueryHook) { h.envName = name }
}

// WithQueryHookVerbose prints successful queries too.
func WithQueryHookVerbose(v bool) QueryHookOption {
	return func(h *QueryHook) { h.verbose = v }
}

// WithQueryHookWriter redirects the output.
func WithQueryHookWriter(w io.Writer) QueryHookOption {
	return func(h *QueryHook) { h.writer = w }
}

// NewQueryHook returns an enabled hook writing to stdout.
func NewQueryHook(opts ...QueryHookOption) *QueryHook {
	h := &QueryHook{envName: "ENTORM_SQL", enabled: true, writer: os.Stdout}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *QueryHook) BeforeQuery(ctx context.Context, _ *bun.QueryEvent) context.Context {
	return ctx
}

func (h *QueryHook) AfterQuery(_ context.Context, event *bun.QueryEvent) {
	if silentMode.Load() {
		return
	}
	enabled, verbose := h.enabled, h.verbose
	if env, ok := os.LookupEnv(h.envName); ok {
		enabled = env != "" && env != "0"
		verbose = env == "2"
	}
	if !enabled {
		return
	}
	if !verbose {
		switch {
		case event.Err == nil, errors.Is(event.Err, sql.ErrNoRows), errors.Is(event.Err, sql.ErrTxDone):
			return
		}
	}

	now := time.Now()
	args := []interface{}{
		now.Format("2006-01-02 15:04:05.000"),
		hookTagColor.Sprintf("%8s", "[SQL]"),
		fmt.Sprintf("%12s", now.Sub(event.StartTime).Round(time.Microsecond)),
		" ", operationColor(event).Sprint(event.Query),
	}
	if event.Err != nil {
		args = append(args, "\t", errorColor.Sprintf(" %T: %s ", event.Err, event.Err.Error()))
	}
	_, _ = fmt.Fprintln(h.writer, args...)
}

// SlowQueryHook reports successful queries slower than the threshold. When
// a Logger is set the report goes there, otherwise to the writer.
type SlowQueryHook struct {
	fromEnv   string
	enabled   bool
	threshold time.Duration
	logger    Logger
	writer    io.Writer
}

var _ bun.QueryHook = (*SlowQueryHook)(nil)

// NewSlowQueryHook returns an enabled hook. The ENTORM_SLOW_SQL variable
// overrides it: "1" enables, anything else disables.
func NewSlowQueryHook(threshold time.Duration, logger Logger) *SlowQueryHook {
	return &SlowQueryHook{
		fromEnv:   "ENTORM_SLOW_SQL",
		enabled:   true,
		threshold: threshold,
		logger:    logger,
		writer:    os.Stdout,
	}
}

func (h *SlowQueryHook) BeforeQuery(ctx context.Context, _ *bun.QueryEvent) context.Context {
	return ctx
}

func (h *SlowQueryHook) AfterQuery(_ context.Context, event *bun.QueryEvent) {
	if silentMode.Load() || event.Err != nil {
		return
	}
	enabled := h.enabled
	if env, ok := os.LookupEnv(h.fromEnv); ok {
		enabled = strings.TrimSpace(env) == "1"
	}
	if !enabled {
		return
	}

	duration := time.Since(event.StartTime)
	if duration <= h.threshold {
		return
	}
	if h.logger != nil {
		h.logger.Warn("slow query", "duration", duration, "threshold", h.threshold, "query", event.Query)
		return
	}
	_, _ = fmt.Fprintln(h.writer,
		time.Now().Format("2006-01-02 15:04:05.000"),
		slowTagColor.Sprintf("%8s", "[SLOW]"),
		fmt.Sprintf("%12s", duration.Round(time.Microsecond)),
		" ", operationColor(event).Sprint(event.Query),
	)
}
