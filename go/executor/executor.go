// Copyright 2025 Supabase, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package executor runs single statements over an asynchronous connection
// and shapes the results. It is stateless: it never acquires, releases or
// closes connections.
package executor

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/unigres/unigres/go/pgwire"
	"github.com/unigres/unigres/go/tools/retry"
)

// Conn is the statement surface the executor drives. *pgwire.Conn
// implements it.
type Conn interface {
	// Send starts a row-returning statement.
	Send(ctx context.Context, sql string, params ...any) error
	// SendExec starts a command statement.
	SendExec(ctx context.Context, sql string, params ...any) error
	// IsBusy reports whether the statement is still running.
	IsBusy() bool
	// Result returns the outcome of the completed statement.
	Result() (*pgwire.Result, error)
	// LastError returns the server message of the last failed statement.
	LastError() string
}

// Poll intervals for waiting on a busy connection. The wait starts short to
// keep single-row round-trips fast and grows to bound the CPU spent on
// long-running statements.
const (
	pollBaseInterval = 100 * time.Microsecond
	pollMaxInterval  = 1000 * time.Microsecond
	pollGrowthFactor = 1.2
)

// Executor sends statements and polls them to completion.
type Executor struct {
	logger *slog.Logger
	timer  retry.Timer
}

// Option configures an Executor.
type Option func(*Executor)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(e *Executor) { e.logger = logger }
}

// WithTimer overrides the poll-loop timer. Tests use this to complete the
// loop without sleeping.
func WithTimer(t retry.Timer) Option {
	return func(e *Executor) { e.timer = t }
}

// NewExecutor creates an Executor.
func NewExecutor(opts ...Option) *Executor {
	e := &Executor{
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Query runs a statement and returns every row keyed by column name.
// An empty result set returns an empty, non-nil slice.
func (e *Executor) Query(ctx context.Context, conn Conn, sql string, params ...any) ([]map[string]any, error) {
	res, err := e.run(ctx, conn, sql, params, true)
	if err != nil {
		return nil, err
	}
	rows := make([]map[string]any, res.NumRows())
	for i := range rows {
		rows[i] = res.RowMap(i)
	}
	return rows, nil
}

// FetchOne runs a statement and returns the first row keyed by column name,
// or nil when the result set is empty.
func (e *Executor) FetchOne(ctx context.Context, conn Conn, sql string, params ...any) (map[string]any, error) {
	res, err := e.run(ctx, conn, sql, params, true)
	if err != nil {
		return nil, err
	}
	if res.NumRows() == 0 {
		return nil, nil
	}
	return res.RowMap(0), nil
}

// FetchValue runs a statement and returns the first column of the first
// row, or nil when the result set is empty.
func (e *Executor) FetchValue(ctx context.Context, conn Conn, sql string, params ...any) (any, error) {
	res, err := e.run(ctx, conn, sql, params, true)
	if err != nil {
		return nil, err
	}
	if res.NumRows() == 0 {
		return nil, nil
	}
	row := res.Row(0)
	if len(row) == 0 {
		return nil, nil
	}
	return row[0], nil
}

// Exec runs a command statement and returns the affected-row count.
// Statements without a row count report zero.
func (e *Executor) Exec(ctx context.Context, conn Conn, sql string, params ...any) (int64, error) {
	res, err := e.run(ctx, conn, sql, params, false)
	if err != nil {
		return 0, err
	}
	return res.Affected(), nil
}

// run normalizes the placeholders, sends the statement, polls the
// connection to completion and fetches the result.
func (e *Executor) run(ctx context.Context, conn Conn, sql string, params []any, wantRows bool) (*pgwire.Result, error) {
	normalized, err := NormalizePlaceholders(sql)
	if err != nil {
		return nil, err
	}

	if wantRows {
		err = conn.Send(ctx, normalized, params...)
	} else {
		err = conn.SendExec(ctx, normalized, params...)
	}
	if err != nil {
		return nil, &QueryError{SQL: sql, Params: params, Err: err}
	}

	if err := e.pollUntilDone(ctx, conn); err != nil {
		// The statement may still be running server-side; the pool
		// rolls the session back when the connection is released.
		return nil, err
	}

	res, err := conn.Result()
	if err != nil {
		e.logger.Debug("statement failed", "sql", normalized, "error", err)
		return nil, &QueryError{SQL: sql, Params: params, Server: conn.LastError(), Err: err}
	}
	if res == nil {
		return nil, &QueryError{SQL: sql, Params: params, Server: conn.LastError(), Err: errors.New("connection returned no result")}
	}
	return res, nil
}

func (e *Executor) pollUntilDone(ctx context.Context, conn Conn) error {
	opts := []retry.Option{retry.WithMultiplier(pollGrowthFactor)}
	if e.timer != nil {
		opts = append(opts, retry.WithTimer(e.timer))
	}
	poll := retry.New(pollBaseInterval, pollMaxInterval, opts...)
	for {
		if err := poll.StartAttempt(ctx); err != nil {
			return err
		}
		if !conn.IsBusy() {
			return nil
		}
	}
}
