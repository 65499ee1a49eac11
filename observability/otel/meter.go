package otel

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Meter returns the daemon meter from the global provider. It exports
// nothing until Init installs a metric exporter.
func Meter() metric.Meter {
	return otel.Meter(TracerName)
}

// Operations counts sale calls by operation and outcome.
type Operations struct {
	calls metric.Int64Counter
}

func NewOperations(meter metric.Meter) (*Operations, error) {
	if meter == nil {
		meter = Meter()
	}
	calls, err := meter.Int64Counter("crowdsale.operations",
		metric.WithDescription("Sale operations handled, by outcome."),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, fmt.Errorf("otel: operations counter: %w", err)
	}
	return &Operations{calls: calls}, nil
}

// Record adds one call. A nil receiver records nothing.
func (o *Operations) Record(ctx context.Context, op, outcome string) {
	if o == nil {
		return
	}
	o.calls.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", op),
		attribute.String("outcome", outcome),
	))
}
