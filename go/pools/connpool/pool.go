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

// Package connpool implements a bounded connection pool with strict FIFO
// waiter hand-off.
//
// The pool opens at most maxSize connections. When all of them are handed
// out, Get queues the caller on a waitlist; a released connection is handed
// directly to the head waiter without passing through the idle stack, so
// waiters are served in arrival order and a release can never be overtaken
// by a fresh Get.
package connpool

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// ErrPoolClosed is returned by Get after Close, and delivered to every
// waiter that was queued when Close ran.
var ErrPoolClosed = errors.New("connpool: pool is closed")

// Connection is what the pool needs from a pooled handle.
type Connection interface {
	// Close terminates the connection. Must be idempotent.
	Close()
	// IsClosed reports whether Close has been called.
	IsClosed() bool
	// Healthy reports whether the connection can still serve statements.
	Healthy() bool
	// InTransaction reports whether the server session has an open
	// transaction, failed or not.
	InTransaction() bool
	// Rollback synchronously aborts the open server transaction.
	Rollback(ctx context.Context) error
}

// Factory opens a new connection.
type Factory[C Connection] func(ctx context.Context) (C, error)

// Config configures a Pool.
type Config struct {
	// Name identifies the pool in logs and metrics.
	Name string
	// MaxSize is the connection cap. Required, positive.
	MaxSize int
	// Logger defaults to slog.Default().
	Logger *slog.Logger
	// Metrics is optional.
	Metrics *Metrics
}

// Pool is a bounded pool of connections created by a Factory.
//
// All pool state is guarded by one mutex; the critical sections only touch
// in-memory bookkeeping, never the network. Connections are validated when
// they move across the pool boundary: a dead connection is discarded rather
// than handed to a caller, and a connection still inside a server
// transaction is rolled back before reuse.
type Pool[C Connection] struct {
	name    string
	factory Factory[C]
	maxSize int
	logger  *slog.Logger
	metrics *Metrics

	mu     sync.Mutex
	closed bool
	idle   []C // LIFO, most recently released on top
	active int // handed out, not counting idle
	wait   waitlist[C]
}

// NewPool creates an empty pool. Connections are opened on demand.
func NewPool[C Connection](factory Factory[C], cfg Config) (*Pool[C], error) {
	if factory == nil {
		return nil, errors.New("connpool: factory is required")
	}
	if cfg.MaxSize < 1 {
		return nil, errors.New("connpool: MaxSize must be at least 1")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	p := &Pool[C]{
		name:    cfg.Name,
		factory: factory,
		maxSize: cfg.MaxSize,
		logger:  logger,
		metrics: cfg.Metrics,
	}
	p.wait.init()
	return p, nil
}

// Get returns a healthy connection, opening one if the pool has spare
// capacity. At capacity, Get blocks on the waitlist until a connection is
// released, the pool closes, or ctx is done.
func (p *Pool[C]) Get(ctx context.Context) (*Pooled[C], error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	for {
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			return nil, ErrPoolClosed
		}

		if n := len(p.idle); n > 0 {
			conn := p.idle[n-1]
			var zero C
			p.idle[n-1] = zero
			p.idle = p.idle[:n-1]

			if conn.IsClosed() || !conn.Healthy() {
				p.mu.Unlock()
				p.metrics.connIdle(-1)
				conn.Close()
				p.logger.Debug("discarded dead idle connection", "pool", p.name)
				continue
			}

			p.active++
			p.mu.Unlock()
			p.metrics.connIdle(-1)
			p.metrics.connUsed(+1)
			return newPooled(p, conn), nil
		}

		if p.active < p.maxSize {
			p.active++
			p.mu.Unlock()

			conn, err := p.factory(ctx)
			if err != nil {
				p.mu.Lock()
				p.active--
				p.mu.Unlock()
				return nil, err
			}
			p.metrics.connUsed(+1)
			return newPooled(p, conn), nil
		}

		// At capacity with nothing idle: queue behind earlier arrivals.
		elem := p.wait.enqueue()
		p.mu.Unlock()
		p.metrics.waited()
		return p.waitForConn(ctx, elem)
	}
}

// waitForConn blocks until a releaser hands over a connection, the pool
// closes, or ctx is done.
func (p *Pool[C]) waitForConn(ctx context.Context, elem *waitElem[C]) (*Pooled[C], error) {
	defer p.wait.recycle(elem)

	select {
	case ho := <-elem.Value.ch:
		if ho.err != nil {
			return nil, ho.err
		}
		return ho.conn, nil

	case <-ctx.Done():
		if p.wait.remove(elem) {
			return nil, context.Cause(ctx)
		}
		// We lost the removal race: a hand-off is already in flight.
		// Accept it and route the connection back so the next waiter
		// is not starved.
		ho := <-elem.Value.ch
		if ho.conn != nil {
			ho.conn.Recycle()
		}
		return nil, context.Cause(ctx)
	}
}

// put returns a connection to the pool. Dead connections are discarded, a
// stale server transaction is rolled back first, and a queued waiter gets
// the connection directly.
func (p *Pool[C]) put(conn C) {
	if conn.IsClosed() || !conn.Healthy() {
		p.logger.Debug("discarding dead connection on release", "pool", p.name)
		p.discard(conn)
		return
	}

	if conn.InTransaction() {
		p.logger.Debug("rolling back stale transaction on release", "pool", p.name)
		if err := conn.Rollback(context.Background()); err != nil {
			p.logger.Debug("rollback on release failed", "pool", p.name, "error", err)
			p.discard(conn)
			return
		}
	}

	p.mu.Lock()
	if p.closed {
		p.active--
		p.mu.Unlock()
		p.metrics.connUsed(-1)
		conn.Close()
		return
	}

	if elem := p.wait.dequeue(); elem != nil {
		p.mu.Unlock()
		// The connection stays checked out, it just changes hands.
		p.wait.deliver(elem, handoff[C]{conn: newPooled(p, conn)})
		return
	}

	p.active--
	p.idle = append(p.idle, conn)
	p.mu.Unlock()
	p.metrics.connUsed(-1)
	p.metrics.connIdle(+1)
}

// discard drops a checked-out connection from the pool. If a waiter is
// queued, its capacity slot is used to open a replacement on the waiter's
// behalf; the open happens off the releaser's goroutine so release never
// blocks on the network.
func (p *Pool[C]) discard(conn C) {
	p.mu.Lock()
	p.active--
	elem := p.wait.dequeue()
	if elem != nil {
		p.active++ // the slot moves to the replacement
	}
	p.mu.Unlock()
	p.metrics.connUsed(-1)
	conn.Close()

	if elem == nil {
		return
	}
	go p.openForWaiter(elem)
}

func (p *Pool[C]) openForWaiter(elem *waitElem[C]) {
	fresh, err := p.factory(context.Background())
	if err != nil {
		p.mu.Lock()
		p.active--
		p.mu.Unlock()
		p.wait.deliver(elem, handoff[C]{err: err})
		return
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		fresh.Close()
		p.wait.deliver(elem, handoff[C]{err: ErrPoolClosed})
		return
	}
	p.mu.Unlock()
	p.metrics.connUsed(+1)
	p.wait.deliver(elem, handoff[C]{conn: newPooled(p, fresh)})
}

// Close shuts the pool down: every queued waiter is rejected with
// ErrPoolClosed, every idle connection is closed, and the counters reset.
// Idempotent. Connections currently handed out are closed when returned.
func (p *Pool[C]) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	idle := p.idle
	p.idle = nil
	p.active = 0
	p.mu.Unlock()

	for {
		elem := p.wait.dequeue()
		if elem == nil {
			break
		}
		p.wait.deliver(elem, handoff[C]{err: ErrPoolClosed})
	}

	p.metrics.connIdle(int64(-len(idle)))
	for _, conn := range idle {
		conn.Close()
	}
	p.logger.Debug("pool closed", "pool", p.name, "idle_closed", len(idle))
}

// Stats is a point-in-time snapshot of the pool counters.
type Stats struct {
	MaxSize int
	Active  int
	Idle    int
	Waiting int
}

// Stats returns a snapshot of the pool counters.
func (p *Pool[C]) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{
		MaxSize: p.maxSize,
		Active:  p.active,
		Idle:    len(p.idle),
		Waiting: p.wait.waiting(),
	}
}

// Name returns the pool name used in logs and metrics.
func (p *Pool[C]) Name() string {
	return p.name
}
