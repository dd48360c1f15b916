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

package connpool

import "sync/atomic"

// Pooled is a checked-out connection. It is created per checkout, so the
// returned flag makes a second Recycle or Taint a no-op: a connection can
// never enter the idle stack twice.
type Pooled[C Connection] struct {
	pool     *Pool[C]
	conn     C
	returned atomic.Bool
}

func newPooled[C Connection](pool *Pool[C], conn C) *Pooled[C] {
	return &Pooled[C]{pool: pool, conn: conn}
}

// Conn returns the underlying connection.
func (pc *Pooled[C]) Conn() C {
	return pc.conn
}

// Recycle returns the connection to its pool. Calling Recycle more than
// once, or after Taint, is a no-op.
func (pc *Pooled[C]) Recycle() {
	if !pc.returned.CompareAndSwap(false, true) {
		return
	}
	pc.pool.put(pc.conn)
}

// Taint removes the connection from the pool and closes it. Use it when the
// connection is known to be in an unrecoverable state. A queued waiter gets
// a freshly opened replacement.
func (pc *Pooled[C]) Taint() {
	if !pc.returned.CompareAndSwap(false, true) {
		return
	}
	pc.pool.discard(pc.conn)
}
