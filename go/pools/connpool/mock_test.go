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

import (
	"context"
	"sync/atomic"
)

var mockConnID atomic.Int64

// mockConnection is an in-memory Connection for pool tests.
type mockConnection struct {
	id int64

	closed      atomic.Bool
	unhealthy   atomic.Bool
	inTxn       atomic.Bool
	rollbackErr error
	rollbacks   atomic.Int64
}

func newMockConnection() *mockConnection {
	return &mockConnection{id: mockConnID.Add(1)}
}

func (m *mockConnection) Close()              { m.closed.Store(true) }
func (m *mockConnection) IsClosed() bool      { return m.closed.Load() }
func (m *mockConnection) Healthy() bool       { return !m.unhealthy.Load() && !m.closed.Load() }
func (m *mockConnection) InTransaction() bool { return m.inTxn.Load() }

func (m *mockConnection) Rollback(ctx context.Context) error {
	m.rollbacks.Add(1)
	if m.rollbackErr != nil {
		return m.rollbackErr
	}
	m.inTxn.Store(false)
	return nil
}
