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

// Package txn wraps the acquire / BEGIN / callback / COMMIT-or-ROLLBACK /
// release cycle with retry and deferred callback dispatch.
package txn

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/unigres/unigres/go/executor"
)

// Release returns a connection to wherever Acquire got it from.
type Release func()

// Acquire borrows a connection for one transaction attempt.
type Acquire func(ctx context.Context) (executor.Conn, Release, error)

// TxFunc is the user's transaction body. The passed context carries the
// transaction, so nested code can reach it through FromContext, OnCommit
// and OnRollback. Returning an error rolls the transaction back.
type TxFunc func(ctx context.Context, tx *Tx) error

// Manager runs transactions. Each attempt borrows a fresh connection, opens
// a transaction on it, runs the user callback and finishes with COMMIT or
// ROLLBACK before returning the connection.
type Manager struct {
	acquire Acquire
	exec    *executor.Executor
	logger  *slog.Logger
}

// NewManager creates a Manager. A nil logger falls back to slog.Default().
func NewManager(acquire Acquire, exec *executor.Executor, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{acquire: acquire, exec: exec, logger: logger}
}

type txOptions struct {
	attempts  int
	isolation IsolationLevel
}

// TxOption configures one Transaction call.
type TxOption func(*txOptions)

// WithAttempts sets how many times the transaction is tried before giving
// up. Defaults to 1. Values below 1 make Transaction fail with
// ErrBadArgument.
func WithAttempts(n int) TxOption {
	return func(o *txOptions) { o.attempts = n }
}

// WithIsolation sets the isolation level for the transaction.
func WithIsolation(level IsolationLevel) TxOption {
	return func(o *txOptions) { o.isolation = level }
}

// Transaction runs fn inside a transaction, retrying failed attempts with a
// fresh connection until one succeeds or the attempt budget is spent.
// Exhaustion returns a TransactionFailedError carrying the per-attempt
// history with the last error chained.
func (m *Manager) Transaction(ctx context.Context, fn TxFunc, opts ...TxOption) error {
	o := txOptions{attempts: 1}
	for _, opt := range opts {
		opt(&o)
	}
	if o.attempts < 1 {
		return fmt.Errorf("%w: attempts must be at least 1, got %d", ErrBadArgument, o.attempts)
	}

	history := make([]Attempt, 0, o.attempts)
	var lastErr error
	for attempt := 1; attempt <= o.attempts; attempt++ {
		start := time.Now()
		err := m.runAttempt(ctx, fn, o.isolation)
		if err == nil {
			return nil
		}
		elapsed := time.Since(start)
		lastErr = err
		history = append(history, Attempt{
			Attempt:      attempt,
			ErrorMessage: err.Error(),
			Elapsed:      elapsed,
		})
		m.logger.Warn("transaction attempt failed",
			"attempt", attempt,
			"attempts", o.attempts,
			"elapsed", elapsed,
			"error", err,
		)
		if ctx.Err() != nil {
			// The caller is gone; further attempts cannot succeed.
			break
		}
	}

	return &TransactionFailedError{
		Attempts: len(history),
		History:  history,
		Err:      lastErr,
	}
}

// runAttempt performs one full acquire / BEGIN / fn / COMMIT-or-ROLLBACK /
// release cycle.
func (m *Manager) runAttempt(ctx context.Context, fn TxFunc, iso IsolationLevel) error {
	conn, release, err := m.acquire(ctx)
	if err != nil {
		return err
	}

	tx := newTx(conn, m.exec)
	txCtx := withTx(ctx, tx)
	defer func() {
		tx.markDone()
		release()
	}()

	if _, err := m.exec.Exec(txCtx, conn, iso.beginStatement()); err != nil {
		return &TransactionError{Op: "begin", Err: err}
	}

	if err := m.runCallback(txCtx, tx, fn); err != nil {
		m.rollback(ctx, tx)
		return err
	}

	if _, err := m.exec.Exec(txCtx, conn, "COMMIT"); err != nil {
		m.rollback(ctx, tx)
		return &TransactionError{Op: "commit", Err: err}
	}

	if err := tx.fireCommit(); err != nil {
		return &TransactionError{Op: "commit callback", Err: err}
	}
	return nil
}

// runCallback runs the user callback, converting a panic into an attempt
// failure so the rollback path and retry loop see it like any other error.
func (m *Manager) runCallback(ctx context.Context, tx *Tx, fn TxFunc) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("transaction callback panicked: %v", r)
		}
	}()
	return fn(ctx, tx)
}

// rollback aborts the attempt's transaction and fires the rollback
// callbacks. Rollback failures are swallowed: the connection is released
// afterwards and the pool discards sessions it cannot clean up. The
// original attempt error stays the one reported, so callback failures here
// are only logged.
func (m *Manager) rollback(ctx context.Context, tx *Tx) {
	rbCtx := context.WithoutCancel(ctx)
	if _, err := m.exec.Exec(rbCtx, tx.conn, "ROLLBACK"); err != nil {
		m.logger.Debug("rollback failed", "error", err)
	}
	if err := tx.fireRollback(); err != nil {
		m.logger.Warn("rollback callback failed", "error", err)
	}
}
