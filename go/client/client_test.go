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

package client

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unigres/unigres/go/executor"
	"github.com/unigres/unigres/go/pgwire"
	"github.com/unigres/unigres/go/pools/connpool"
	"github.com/unigres/unigres/go/txn"
)

const testConnString = "host=localhost user=postgres dbname=app"

func TestNewValidation(t *testing.T) {
	// 1. The connection string is validated eagerly.
	_, err := New(Config{ConnString: "host=localhost"})
	var cfgErr *pgwire.ConfigurationError
	assert.ErrorAs(t, err, &cfgErr)

	// 2. A negative pool size is rejected.
	_, err = New(Config{ConnString: testConnString, PoolSize: -1})
	assert.ErrorAs(t, err, &cfgErr)
}

func TestNewPoolSizing(t *testing.T) {
	// 1. Zero means the default.
	c, err := New(Config{ConnString: testConnString})
	require.NoError(t, err)
	defer c.Close()
	assert.Equal(t, DefaultPoolSize, c.Stats().MaxSize)

	// 2. An explicit size is honored.
	c2, err := New(Config{ConnString: testConnString, PoolSize: 12})
	require.NoError(t, err)
	defer c2.Close()
	assert.Equal(t, 12, c2.Stats().MaxSize)
}

func TestClientClose(t *testing.T) {
	c, err := New(Config{ConnString: testConnString})
	require.NoError(t, err)

	// No connection was ever opened; Close only shuts the pool.
	c.Close()
	c.Close()

	// Statements after Close are rejected without touching the network.
	_, err = c.Query(t.Context(), "SELECT 1")
	assert.ErrorIs(t, err, connpool.ErrPoolClosed)
	_, err = c.Exec(t.Context(), "SELECT 1")
	assert.ErrorIs(t, err, connpool.ErrPoolClosed)
	err = c.Run(t.Context(), func(ctx context.Context, conn *pgwire.Conn) error { return nil })
	assert.ErrorIs(t, err, connpool.ErrPoolClosed)
}

// fakeConn is a synchronous executor.Conn used to exercise the
// transaction-routing path without a server.
type fakeConn struct {
	stmts      []string
	pendingRes *pgwire.Result
}

func (f *fakeConn) start(sql string) error {
	f.stmts = append(f.stmts, sql)
	f.pendingRes = pgwire.NewResult([]string{"ok"}, [][]any{{int64(1)}}, 1)
	return nil
}

func (f *fakeConn) Send(ctx context.Context, sql string, params ...any) error {
	return f.start(sql)
}

func (f *fakeConn) SendExec(ctx context.Context, sql string, params ...any) error {
	return f.start(sql)
}

func (f *fakeConn) IsBusy() bool { return false }

func (f *fakeConn) Result() (*pgwire.Result, error) {
	res := f.pendingRes
	f.pendingRes = nil
	return res, nil
}

func (f *fakeConn) LastError() string { return "" }

func TestClientRoutesStatementsToActiveTransaction(t *testing.T) {
	c, err := New(Config{ConnString: testConnString})
	require.NoError(t, err)
	defer c.Close()

	// A manager whose transactions run on a fake connection instead of the
	// client's pool.
	conn := &fakeConn{}
	mgr := txn.NewManager(func(ctx context.Context) (executor.Conn, txn.Release, error) {
		return conn, func() {}, nil
	}, executor.NewExecutor(), nil)

	err = mgr.Transaction(t.Context(), func(ctx context.Context, tx *txn.Tx) error {
		// Every facade shape follows the context onto the transaction's
		// connection; the pool stays untouched.
		rows, err := c.Query(ctx, "SELECT ok FROM t")
		require.NoError(t, err)
		assert.Equal(t, []map[string]any{{"ok": int64(1)}}, rows)

		row, err := c.FetchOne(ctx, "SELECT ok FROM t")
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"ok": int64(1)}, row)

		v, err := c.FetchValue(ctx, "SELECT ok FROM t")
		require.NoError(t, err)
		assert.Equal(t, int64(1), v)

		affected, err := c.Exec(ctx, "UPDATE t SET x = 1")
		require.NoError(t, err)
		assert.Equal(t, int64(1), affected)
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, []string{
		"BEGIN",
		"SELECT ok FROM t",
		"SELECT ok FROM t",
		"SELECT ok FROM t",
		"UPDATE t SET x = 1",
		"COMMIT",
	}, conn.stmts)
	assert.Equal(t, connpool.Stats{MaxSize: DefaultPoolSize}, c.Stats())
}
