package license

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the OpenTelemetry instruments for lease operations.
// All record methods are nil-safe so the client works unmetered.
type Metrics struct {
	operationsTotal   metric.Int64Counter
	operationDuration metric.Float64Histogram
	checksTotal       metric.Int64Counter
	bystandersTotal   metric.Int64Counter
}

// NewMetrics creates the lease-client instruments on the given meter
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	operationsTotal, err := meter.Int64Counter(
		"license_operations_total",
		metric.WithDescription("Total number of license server operations (consume/renew/release)"),
	)
	if err != nil {
		return nil, err
	}

	operationDuration, err := meter.Float64Histogram(
		"license_operation_duration_seconds",
		metric.WithDescription("License server operation duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	checksTotal, err := meter.Int64Counter(
		"license_checks_total",
		metric.WithDescription("Total number of license checks by outcome"),
	)
	if err != nil {
		return nil, err
	}

	bystandersTotal, err := meter.Int64Counter(
		"license_check_bystanders_total",
		metric.WithDescription("License checks short-circuited because another check was in flight"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		operationsTotal:   operationsTotal,
		operationDuration: operationDuration,
		checksTotal:       checksTotal,
		bystandersTotal:   bystandersTotal,
	}, nil
}

func (m *Metrics) recordOperation(ctx context.Context, op string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("operation", op),
		attribute.Bool("success", err == nil),
	)
	m.operationsTotal.Add(ctx, 1, attrs)
	m.operationDuration.Record(ctx, duration.Seconds(), attrs)
}

func (m *Metrics) recordCheck(ctx context.Context, state string, err error) {
	if m == nil {
		return
	}
	m.checksTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("state", state),
		attribute.Bool("success", err == nil),
	))
}

func (m *Metrics) recordBystander(ctx context.Context) {
	if m == nil {
		return
	}
	m.bystandersTotal.Add(ctx, 1)
}
