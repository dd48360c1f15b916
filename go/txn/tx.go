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

package txn

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/unigres/unigres/go/executor"
)

// Tx is the handle passed to a transaction callback. It binds one
// connection and one in-flight transaction: statements run on that
// connection, and OnCommit/OnRollback queue callbacks on the transaction.
//
// The handle dies with the callback. Once the callback has returned, the
// statement methods, OnCommit and OnRollback fail with ErrTxDone; Conn still
// returns the bound connection.
type Tx struct {
	conn executor.Conn
	exec *executor.Executor
	done atomic.Bool

	mu          sync.Mutex
	commitCbs   []func() error
	rollbackCbs []func() error
}

func newTx(conn executor.Conn, exec *executor.Executor) *Tx {
	return &Tx{conn: conn, exec: exec}
}

// Query runs a statement inside the transaction and returns every row.
func (tx *Tx) Query(ctx context.Context, sql string, params ...any) ([]map[string]any, error) {
	if tx.done.Load() {
		return nil, ErrTxDone
	}
	return tx.exec.Query(ctx, tx.conn, sql, params...)
}

// FetchOne runs a statement inside the transaction and returns the first
// row, or nil.
func (tx *Tx) FetchOne(ctx context.Context, sql string, params ...any) (map[string]any, error) {
	if tx.done.Load() {
		return nil, ErrTxDone
	}
	return tx.exec.FetchOne(ctx, tx.conn, sql, params...)
}

// FetchValue runs a statement inside the transaction and returns the first
// column of the first row, or nil.
func (tx *Tx) FetchValue(ctx context.Context, sql string, params ...any) (any, error) {
	if tx.done.Load() {
		return nil, ErrTxDone
	}
	return tx.exec.FetchValue(ctx, tx.conn, sql, params...)
}

// Exec runs a command inside the transaction and returns the affected-row
// count.
func (tx *Tx) Exec(ctx context.Context, sql string, params ...any) (int64, error) {
	if tx.done.Load() {
		return 0, ErrTxDone
	}
	return tx.exec.Exec(ctx, tx.conn, sql, params...)
}

// OnCommit queues fn to run after the transaction commits. Callbacks run in
// registration order.
func (tx *Tx) OnCommit(fn func() error) error {
	if tx.done.Load() {
		return ErrTxDone
	}
	tx.mu.Lock()
	tx.commitCbs = append(tx.commitCbs, fn)
	tx.mu.Unlock()
	return nil
}

// OnRollback queues fn to run after the transaction rolls back. Callbacks
// run in registration order.
func (tx *Tx) OnRollback(fn func() error) error {
	if tx.done.Load() {
		return ErrTxDone
	}
	tx.mu.Lock()
	tx.rollbackCbs = append(tx.rollbackCbs, fn)
	tx.mu.Unlock()
	return nil
}

// Conn exposes the bound connection for advanced use.
func (tx *Tx) Conn() executor.Conn {
	return tx.conn
}

func (tx *Tx) markDone() {
	tx.done.Store(true)
}

// fireCommit drains the commit callbacks in registration order and returns
// the first error. Later callbacks still run.
func (tx *Tx) fireCommit() error {
	return fire(tx.takeCallbacks(&tx.commitCbs))
}

// fireRollback drains the rollback callbacks in registration order and
// returns the first error. Later callbacks still run.
func (tx *Tx) fireRollback() error {
	return fire(tx.takeCallbacks(&tx.rollbackCbs))
}

func (tx *Tx) takeCallbacks(cbs *[]func() error) []func() error {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	taken := *cbs
	*cbs = nil
	return taken
}

func fire(cbs []func() error) error {
	var first error
	for _, cb := range cbs {
		if err := cb(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
