package process

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const meterName = "corebridge/process-service/process"

// Transition outcomes recorded on the process.transitions counter.
const (
	resultApplied  = "applied"
	resultRejected = "rejected"
	resultFailed   = "failed"
)

type metrics struct {
	transitions metric.Int64Counter
	created     metric.Int64Counter
	withdrawn   metric.Int64Counter
}

func newMetrics() *metrics {
	meter := otel.Meter(meterName)
	return &metrics{
		transitions: counter(meter, "process.transitions", "Stage transitions by outcome"),
		created:     counter(meter, "process.created", "Workflow instances created"),
		withdrawn:   counter(meter, "process.withdrawn", "Workflow instances withdrawn while APPLIED"),
	}
}

func counter(meter metric.Meter, name, desc string) metric.Int64Counter {
	c, err := meter.Int64Counter(name, metric.WithDescription(desc))
	if err != nil {
		return noop.Int64Counter{}
	}
	return c
}

func (m *metrics) transition(ctx context.Context, from, to Stage, result string) {
	m.transitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("from", string(from)),
		attribute.String("to", string(to)),
		attribute.String("result", result),
	))
}
