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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// getConnectionCountMetric extracts the db.client.connection.count metric data.
func getConnectionCountMetric(t *testing.T, reader *sdkmetric.ManualReader) *metricdata.Sum[int64] {
	t.Helper()

	var metricData metricdata.ResourceMetrics
	err := reader.Collect(t.Context(), &metricData)
	require.NoError(t, err)

	for _, scopeMetric := range metricData.ScopeMetrics {
		for _, m := range scopeMetric.Metrics {
			if m.Name == "db.client.connection.count" {
				sum, ok := m.Data.(metricdata.Sum[int64])
				require.True(t, ok, "expected Sum[int64] data type for db.client.connection.count")
				return &sum
			}
		}
	}
	return nil
}

// getStateCount extracts the count for a specific pool name and state from the metric data.
func getStateCount(sum *metricdata.Sum[int64], poolName, state string) int64 {
	if sum == nil {
		return 0
	}
	for _, dp := range sum.DataPoints {
		var dpPoolName, dpState string
		for _, attr := range dp.Attributes.ToSlice() {
			if string(attr.Key) == attrKeyPoolName {
				dpPoolName = attr.Value.AsString()
			}
			if string(attr.Key) == attrKeyState {
				dpState = attr.Value.AsString()
			}
		}
		if dpPoolName == poolName && dpState == state {
			return dp.Value
		}
	}
	return 0
}

func TestOTelConnectionCount(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() {
		_ = provider.Shutdown(context.Background())
	})

	metrics, err := NewMetrics(provider.Meter("test"), "test-pool")
	require.NoError(t, err)

	pool, err := NewPool(func(ctx context.Context) (*mockConnection, error) {
		return newMockConnection(), nil
	}, Config{Name: "test-pool", MaxSize: 2, Metrics: metrics})
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	// 1. No data points before any connection exists.
	sum := getConnectionCountMetric(t, reader)
	assert.Nil(t, sum)

	// 2. A checked-out connection counts as used.
	pc, err := pool.Get(t.Context())
	require.NoError(t, err)
	sum = getConnectionCountMetric(t, reader)
	assert.Equal(t, int64(1), getStateCount(sum, "test-pool", stateUsed))
	assert.Equal(t, int64(0), getStateCount(sum, "test-pool", stateIdle))

	// 3. Recycle moves it from used to idle.
	pc.Recycle()
	sum = getConnectionCountMetric(t, reader)
	assert.Equal(t, int64(0), getStateCount(sum, "test-pool", stateUsed))
	assert.Equal(t, int64(1), getStateCount(sum, "test-pool", stateIdle))

	// 4. Close drains the idle count.
	pool.Close()
	sum = getConnectionCountMetric(t, reader)
	assert.Equal(t, int64(0), getStateCount(sum, "test-pool", stateIdle))
}

func TestOTelNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.connIdle(1)
	m.connUsed(-1)
	m.waited()
}
