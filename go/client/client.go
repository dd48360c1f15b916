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

// Package client is the public surface of the library: a pooled,
// transaction-capable PostgreSQL client.
package client

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/metric"

	"github.com/unigres/unigres/go/executor"
	"github.com/unigres/unigres/go/pgwire"
	"github.com/unigres/unigres/go/pools/connpool"
	"github.com/unigres/unigres/go/txn"
)

// DefaultPoolSize is used when Config.PoolSize is zero.
const DefaultPoolSize = 5

// Config configures a Client.
type Config struct {
	// ConnString is the space-delimited "key=value" connection string.
	ConnString string

	// PoolSize caps the number of concurrent server sessions.
	// Zero means DefaultPoolSize; negative is rejected.
	PoolSize int

	// PoolName identifies the pool in logs and metrics. Defaults to the
	// database name.
	PoolName string

	// Logger defaults to slog.Default().
	Logger *slog.Logger

	// Meter enables pool metrics when set.
	Meter metric.Meter
}

// Client runs queries and transactions against one database through a
// bounded connection pool.
type Client struct {
	cfg    *pgwire.Config
	logger *slog.Logger
	pool   *connpool.Pool[*pgwire.Conn]
	exec   *executor.Executor
	mgr    *txn.Manager
}

// New creates a Client. The connection string is validated here; the first
// server session is opened lazily by the first statement.
func New(cfg Config) (*Client, error) {
	wireCfg, err := pgwire.ParseConfig(cfg.ConnString)
	if err != nil {
		return nil, err
	}

	poolSize := cfg.PoolSize
	switch {
	case poolSize == 0:
		poolSize = DefaultPoolSize
	case poolSize < 0:
		return nil, &pgwire.ConfigurationError{Detail: fmt.Sprintf("pool size must be positive, got %d", poolSize)}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	poolName := cfg.PoolName
	if poolName == "" {
		poolName = wireCfg.Database
	}

	var metrics *connpool.Metrics
	if cfg.Meter != nil {
		metrics, err = connpool.NewMetrics(cfg.Meter, poolName)
		if err != nil {
			return nil, err
		}
	}

	factory := func(ctx context.Context) (*pgwire.Conn, error) {
		return pgwire.Connect(ctx, wireCfg, logger)
	}
	pool, err := connpool.NewPool(factory, connpool.Config{
		Name:    poolName,
		MaxSize: poolSize,
		Logger:  logger,
		Metrics: metrics,
	})
	if err != nil {
		return nil, err
	}

	c := &Client{
		cfg:    wireCfg,
		logger: logger,
		pool:   pool,
		exec:   executor.NewExecutor(executor.WithLogger(logger)),
	}
	c.mgr = txn.NewManager(c.acquire, c.exec, logger)
	return c, nil
}

func (c *Client) acquire(ctx context.Context) (executor.Conn, txn.Release, error) {
	pc, err := c.pool.Get(ctx)
	if err != nil {
		return nil, nil, err
	}
	return pc.Conn(), pc.Recycle, nil
}

// Query runs a statement and returns every row keyed by column name. When
// the context carries a transaction, the statement runs on that
// transaction's connection.
func (c *Client) Query(ctx context.Context, sql string, params ...any) ([]map[string]any, error) {
	if tx, ok := txn.FromContext(ctx); ok {
		return tx.Query(ctx, sql, params...)
	}
	pc, err := c.pool.Get(ctx)
	if err != nil {
		return nil, err
	}
	defer pc.Recycle()
	return c.exec.Query(ctx, pc.Conn(), sql, params...)
}

// FetchOne runs a statement and returns the first row, or nil.
func (c *Client) FetchOne(ctx context.Context, sql string, params ...any) (map[string]any, error) {
	if tx, ok := txn.FromContext(ctx); ok {
		return tx.FetchOne(ctx, sql, params...)
	}
	pc, err := c.pool.Get(ctx)
	if err != nil {
		return nil, err
	}
	defer pc.Recycle()
	return c.exec.FetchOne(ctx, pc.Conn(), sql, params...)
}

// FetchValue runs a statement and returns the first column of the first
// row, or nil.
func (c *Client) FetchValue(ctx context.Context, sql string, params ...any) (any, error) {
	if tx, ok := txn.FromContext(ctx); ok {
		return tx.FetchValue(ctx, sql, params...)
	}
	pc, err := c.pool.Get(ctx)
	if err != nil {
		return nil, err
	}
	defer pc.Recycle()
	return c.exec.FetchValue(ctx, pc.Conn(), sql, params...)
}

// Exec runs a command statement and returns the affected-row count.
func (c *Client) Exec(ctx context.Context, sql string, params ...any) (int64, error) {
	if tx, ok := txn.FromContext(ctx); ok {
		return tx.Exec(ctx, sql, params...)
	}
	pc, err := c.pool.Get(ctx)
	if err != nil {
		return 0, err
	}
	defer pc.Recycle()
	return c.exec.Exec(ctx, pc.Conn(), sql, params...)
}

// Run borrows a connection, hands it to fn, and releases it when fn
// returns, whatever the outcome.
func (c *Client) Run(ctx context.Context, fn func(ctx context.Context, conn *pgwire.Conn) error) error {
	pc, err := c.pool.Get(ctx)
	if err != nil {
		return err
	}
	defer pc.Recycle()
	return fn(ctx, pc.Conn())
}

// Transaction runs fn inside a transaction. See txn.Manager.Transaction.
func (c *Client) Transaction(ctx context.Context, fn txn.TxFunc, opts ...txn.TxOption) error {
	return c.mgr.Transaction(ctx, fn, opts...)
}

// Stats returns a snapshot of the pool counters.
func (c *Client) Stats() connpool.Stats {
	return c.pool.Stats()
}

// Close shuts the client down. Queued acquisitions are rejected and idle
// sessions are closed. Idempotent.
func (c *Client) Close() {
	c.pool.Close()
}
