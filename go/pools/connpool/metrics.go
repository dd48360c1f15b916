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

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Attribute keys from the OTel database semantic conventions.
const (
	attrKeyPoolName = "db.client.connection.pool.name"
	attrKeyState    = "db.client.connection.state"
)

// Connection states reported on the connection-count metric.
const (
	stateIdle = "idle"
	stateUsed = "used"
)

// Metrics holds the pool's OTel instruments. A nil *Metrics disables
// recording, so the pool can call it unconditionally.
type Metrics struct {
	poolName  string
	connCount metric.Int64UpDownCounter
	waits     metric.Int64Counter
}

// NewMetrics creates the pool instruments on the given meter, using the
// standard db.client.connection.count metric from the OTel semantic
// conventions plus a wait counter.
func NewMetrics(m metric.Meter, poolName string) (*Metrics, error) {
	connCount, err := m.Int64UpDownCounter(
		"db.client.connection.count",
		metric.WithDescription("The number of connections that are currently in state described by the state attribute."),
		metric.WithUnit("{connection}"),
	)
	if err != nil {
		return nil, err
	}
	waits, err := m.Int64Counter(
		"db.client.connection.waits",
		metric.WithDescription("The number of acquisitions that had to queue for a connection."),
		metric.WithUnit("{wait}"),
	)
	if err != nil {
		return nil, err
	}
	return &Metrics{
		poolName:  poolName,
		connCount: connCount,
		waits:     waits,
	}, nil
}

func (m *Metrics) connIdle(delta int64) {
	m.add(delta, stateIdle)
}

func (m *Metrics) connUsed(delta int64) {
	m.add(delta, stateUsed)
}

func (m *Metrics) add(delta int64, state string) {
	if m == nil {
		return
	}
	m.connCount.Add(context.Background(), delta, metric.WithAttributes(
		attribute.String(attrKeyPoolName, m.poolName),
		attribute.String(attrKeyState, state),
	))
}

func (m *Metrics) waited() {
	if m == nil {
		return
	}
	m.waits.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String(attrKeyPoolName, m.poolName),
	))
}
