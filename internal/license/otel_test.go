package license

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestMetricsRecordThroughClient(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	metrics, err := NewMetrics(provider.Meter("test"))
	require.NoError(t, err)

	signer := newTestSigner(t)
	fs := newFakeServer(t, signer)
	c := newTestClient(t, fs, nil)
	c.SetMetrics(metrics)

	require.NoError(t, c.EnsureLicense(context.Background()))

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	names := map[string]bool{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			names[m.Name] = true
		}
	}
	assert.True(t, names["license_operations_total"], "consume should count as an operation")
	assert.True(t, names["license_operation_duration_seconds"])
	assert.True(t, names["license_checks_total"])
}

func TestMetricsNilSafe(t *testing.T) {
	var m *Metrics
	ctx := context.Background()

	// Unmetered clients take this path on every call.
	m.recordOperation(ctx, "consume", time.Second, nil)
	m.recordCheck(ctx, "no_token", nil)
	m.recordBystander(ctx)
}
