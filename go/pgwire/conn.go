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

// Package pgwire provides a single-session PostgreSQL connection with an
// asynchronous send/poll/fetch surface over the lib/pq driver.
package pgwire

import (
	"context"
	"database/sql/driver"
	"errors"
	"io"
	"log/slog"
	"net"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/lib/pq"
)

// Server transaction status bytes, mirroring the wire protocol's
// ReadyForQuery indicator.
const (
	txnStatusIdle                = 'I'
	txnStatusInTransaction       = 'T'
	txnStatusInFailedTransaction = 'E'
)

// Conn is one PostgreSQL server session. A statement is started with Send or
// SendExec, observed with IsBusy, and collected with Result. At most one
// statement is in flight at a time.
//
// Conn tracks the server transaction status client-side from the statement
// verbs it sends, so the pool can detect and roll back stale transactions
// without a server round-trip.
type Conn struct {
	cfg    *Config
	dc     driver.Conn
	logger *slog.Logger

	closed  atomic.Bool
	healthy atomic.Bool
	busy    atomic.Bool
	txn     atomic.Int32

	mu        sync.Mutex
	result    *Result
	resultErr error
	lastErr   string
}

// Connect opens a new server session for cfg. The session is dedicated: it
// is not drawn from any driver-level pool. A nil logger falls back to
// slog.Default().
func Connect(ctx context.Context, cfg *Config, logger *slog.Logger) (*Conn, error) {
	if logger == nil {
		logger = slog.Default()
	}
	connector, err := pq.NewConnector(cfg.DSN())
	if err != nil {
		return nil, &ConnectionOpenFailedError{Err: err}
	}
	dc, err := connector.Connect(ctx)
	if err != nil {
		return nil, &ConnectionOpenFailedError{Err: err}
	}

	c := &Conn{
		cfg:    cfg,
		dc:     dc,
		logger: logger,
	}
	c.healthy.Store(true)
	c.txn.Store(txnStatusIdle)
	return c, nil
}

// Send starts a row-returning statement. The result is collected with
// Result once IsBusy reports false.
func (c *Conn) Send(ctx context.Context, sql string, params ...any) error {
	return c.send(ctx, sql, params, true)
}

// SendExec starts a command statement. The collected Result carries the
// affected-row count and no rows.
func (c *Conn) SendExec(ctx context.Context, sql string, params ...any) error {
	return c.send(ctx, sql, params, false)
}

func (c *Conn) send(ctx context.Context, sql string, params []any, wantRows bool) error {
	if c.closed.Load() {
		return ErrConnClosed
	}
	if !c.busy.CompareAndSwap(false, true) {
		return ErrConnBusy
	}

	go func() {
		res, err := c.roundTrip(ctx, sql, params, wantRows)
		c.mu.Lock()
		c.result, c.resultErr = res, err
		c.mu.Unlock()
		c.busy.Store(false)
	}()
	return nil
}

// IsBusy reports whether a statement started with Send or SendExec is still
// running.
func (c *Conn) IsBusy() bool {
	return c.busy.Load()
}

// Result returns the outcome of the last completed statement and clears it.
// Calling Result while the connection is busy, or when no statement has
// completed since the previous call, returns (nil, nil).
func (c *Conn) Result() (*Result, error) {
	if c.busy.Load() {
		return nil, nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	res, err := c.result, c.resultErr
	c.result, c.resultErr = nil, nil
	return res, err
}

// LastError returns the server message of the most recent failed statement,
// or the empty string.
func (c *Conn) LastError() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Healthy reports whether the session can still serve statements. It turns
// false permanently once the driver reports a broken connection.
func (c *Conn) Healthy() bool {
	return c.healthy.Load() && !c.closed.Load()
}

// TxnStatus returns the tracked server transaction status byte:
// 'I' idle, 'T' in transaction, 'E' in a failed transaction.
func (c *Conn) TxnStatus() byte {
	return byte(c.txn.Load())
}

// InTransaction reports whether the server session has an open transaction,
// failed or not.
func (c *Conn) InTransaction() bool {
	return c.TxnStatus() != txnStatusIdle
}

// Rollback synchronously aborts the open server transaction. It refuses to
// run while another statement is in flight.
func (c *Conn) Rollback(ctx context.Context) error {
	if c.closed.Load() {
		return ErrConnClosed
	}
	if !c.busy.CompareAndSwap(false, true) {
		return ErrConnBusy
	}
	defer c.busy.Store(false)

	_, err := c.roundTrip(ctx, "ROLLBACK", nil, false)
	return err
}

// Close terminates the server session. Idempotent.
func (c *Conn) Close() {
	if !c.closed.CompareAndSwap(false, true) {
		return
	}
	c.healthy.Store(false)
	if err := c.dc.Close(); err != nil {
		c.logger.Debug("closing connection", "host", c.cfg.Host, "error", err)
	}
}

// IsClosed reports whether Close has been called.
func (c *Conn) IsClosed() bool {
	return c.closed.Load()
}

// roundTrip runs one statement on the underlying driver connection and
// updates the health, transaction status and last-error bookkeeping.
func (c *Conn) roundTrip(ctx context.Context, sql string, params []any, wantRows bool) (*Result, error) {
	args, err := namedValues(params)
	if err != nil {
		return nil, err
	}

	var res *Result
	if wantRows {
		res, err = c.query(ctx, sql, args)
	} else {
		res, err = c.exec(ctx, sql, args)
	}
	c.observe(sql, err)
	return res, err
}

func (c *Conn) query(ctx context.Context, sql string, args []driver.NamedValue) (*Result, error) {
	q, ok := c.dc.(driver.QueryerContext)
	if !ok {
		return nil, errors.New("pgwire: driver does not support queries")
	}
	rows, err := q.QueryContext(ctx, sql, args)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	columns := rows.Columns()
	dest := make([]driver.Value, len(columns))
	var materialized [][]any
	for {
		if err := rows.Next(dest); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, err
		}
		row := make([]any, len(dest))
		for i, v := range dest {
			// The driver may reuse byte buffers between rows.
			if b, ok := v.([]byte); ok {
				row[i] = append([]byte(nil), b...)
			} else {
				row[i] = v
			}
		}
		materialized = append(materialized, row)
	}
	return NewResult(columns, materialized, 0), nil
}

func (c *Conn) exec(ctx context.Context, sql string, args []driver.NamedValue) (*Result, error) {
	e, ok := c.dc.(driver.ExecerContext)
	if !ok {
		return nil, errors.New("pgwire: driver does not support commands")
	}
	dres, err := e.ExecContext(ctx, sql, args)
	if err != nil {
		return nil, err
	}
	affected, err := dres.RowsAffected()
	if err != nil {
		affected = 0
	}
	return NewResult(nil, nil, affected), nil
}

func (c *Conn) observe(sql string, err error) {
	if err != nil {
		c.mu.Lock()
		c.lastErr = serverMessage(err)
		c.mu.Unlock()
		if isBroken(err) {
			c.healthy.Store(false)
			return
		}
		if c.txn.Load() == txnStatusInTransaction {
			c.txn.Store(txnStatusInFailedTransaction)
		}
		return
	}

	switch firstKeyword(sql) {
	case "BEGIN", "START":
		c.txn.Store(txnStatusInTransaction)
	case "COMMIT", "ROLLBACK", "END", "ABORT":
		c.txn.Store(txnStatusIdle)
	}
}

// serverMessage extracts the bare server error message when the driver
// surfaced a PostgreSQL error, and falls back to the full error text.
func serverMessage(err error) string {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Message
	}
	return err.Error()
}

func isBroken(err error) bool {
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

func firstKeyword(sql string) string {
	fields := strings.Fields(sql)
	if len(fields) == 0 {
		return ""
	}
	return strings.ToUpper(fields[0])
}

func namedValues(params []any) ([]driver.NamedValue, error) {
	if len(params) == 0 {
		return nil, nil
	}
	args := make([]driver.NamedValue, len(params))
	for i, p := range params {
		v, err := driver.DefaultParameterConverter.ConvertValue(p)
		if err != nil {
			return nil, err
		}
		args[i] = driver.NamedValue{Ordinal: i + 1, Value: v}
	}
	return args, nil
}
