package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const meterName = "github.com/notflix/aiservice"

// Metrics records model and inference measurements. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	loads             metric.Int64Counter
	loadDuration      metric.Float64Histogram
	lockWait          metric.Float64Histogram
	inference         metric.Float64Histogram
	externalProcesses metric.Int64Counter
}

// NewMetrics creates the instruments on mp. A nil mp yields no-op instruments.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	if mp == nil {
		mp = noop.NewMeterProvider()
	}
	meter := mp.Meter(meterName)

	m := &Metrics{}
	var err error

	if m.loads, err = meter.Int64Counter("aiservice.model.loads",
		metric.WithDescription("Model load attempts by candidate and outcome")); err != nil {
		return nil, err
	}
	if m.loadDuration, err = meter.Float64Histogram("aiservice.model.load.duration",
		metric.WithDescription("Time spent loading a model candidate"),
		metric.WithUnit("s")); err != nil {
		return nil, err
	}
	if m.lockWait, err = meter.Float64Histogram("aiservice.inference.lock.wait",
		metric.WithDescription("Time spent waiting for a model's inference lock"),
		metric.WithUnit("s")); err != nil {
		return nil, err
	}
	if m.inference, err = meter.Float64Histogram("aiservice.inference.duration",
		metric.WithDescription("Time spent inside a model call while holding its lock"),
		metric.WithUnit("s")); err != nil {
		return nil, err
	}
	if m.externalProcesses, err = meter.Int64Counter("aiservice.external.processes",
		metric.WithDescription("Auxiliary process invocations by outcome")); err != nil {
		return nil, err
	}

	return m, nil
}

func outcome(err error) attribute.KeyValue {
	if err != nil {
		return attribute.String("outcome", "error")
	}
	return attribute.String("outcome", "ok")
}

// ModelLoad records one load attempt of a candidate artifact.
func (m *Metrics) ModelLoad(ctx context.Context, family, candidate string, d time.Duration, err error) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("family", family),
		attribute.String("candidate", candidate),
		outcome(err),
	)
	m.loads.Add(ctx, 1, attrs)
	m.loadDuration.Record(ctx, d.Seconds(), attrs)
}

// LockWait records how long a caller queued for an inference lock.
func (m *Metrics) LockWait(ctx context.Context, family, key string, d time.Duration) {
	if m == nil {
		return
	}
	m.lockWait.Record(ctx, d.Seconds(), metric.WithAttributes(
		attribute.String("family", family),
		attribute.String("key", key),
	))
}

// Inference records the duration of one locked model call.
func (m *Metrics) Inference(ctx context.Context, family, key string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.inference.Record(ctx, d.Seconds(), metric.WithAttributes(
		attribute.String("family", family),
		attribute.String("key", key),
		outcome(err),
	))
}

// ExternalProcess counts one auxiliary process invocation.
func (m *Metrics) ExternalProcess(ctx context.Context, name string, err error) {
	if m == nil {
		return
	}
	m.externalProcesses.Add(ctx, 1, metric.WithAttributes(
		attribute.String("process", name),
		outcome(err),
	))
}
