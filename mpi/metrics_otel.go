package mpi

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// OTelMetricsOptions configures NewOTelMetrics.
type OTelMetricsOptions struct {
	MeterProvider          metric.MeterProvider
	Meter                  metric.Meter
	InstrumentationName    string
	InstrumentationVersion string
}

var _ MetricHook = (*OTelMetrics)(nil)

// OTelMetrics implements MetricHook using OpenTelemetry counters.
type OTelMetrics struct {
	callsCompleted   metric.Int64Counter
	callsFailed      metric.Int64Counter
	callsUnsupported metric.Int64Counter
	worldsCreated    metric.Int64Counter
	worldsDestroyed  metric.Int64Counter
}

// NewOTelMetrics constructs a MetricHook that emits OpenTelemetry counter
// measurements.
func NewOTelMetrics(opts OTelMetricsOptions) (*OTelMetrics, error) {
	meter := opts.Meter
	if meter == nil {
		provider := opts.MeterProvider
		if provider == nil {
			provider = otel.GetMeterProvider()
		}
		name := opts.InstrumentationName
		if name == "" {
			name = "github.com/joshuafried/faasm/mpi"
		}
		meter = provider.Meter(name, metric.WithInstrumentationVersion(opts.InstrumentationVersion))
	}

	callsCompleted, err := meter.Int64Counter("faasm.mpi.calls")
	if err != nil {
		return nil, err
	}
	callsFailed, err := meter.Int64Counter("faasm.mpi.call_failures")
	if err != nil {
		return nil, err
	}
	callsUnsupported, err := meter.Int64Counter("faasm.mpi.unsupported_calls")
	if err != nil {
		return nil, err
	}
	worldsCreated, err := meter.Int64Counter("faasm.mpi.worlds_created")
	if err != nil {
		return nil, err
	}
	worldsDestroyed, err := meter.Int64Counter("faasm.mpi.worlds_destroyed")
	if err != nil {
		return nil, err
	}

	return &OTelMetrics{
		callsCompleted:   callsCompleted,
		callsFailed:      callsFailed,
		callsUnsupported: callsUnsupported,
		worldsCreated:    worldsCreated,
		worldsDestroyed:  worldsDestroyed,
	}, nil
}

func callAttrs(call string, attrs map[string]string) metric.MeasurementOption {
	kvs := []attribute.KeyValue{attribute.String(labelCall, call)}
	if world := label(attrs, labelWorld); world != "" {
		kvs = append(kvs, attribute.String(labelWorld, world))
	}
	if rank := label(attrs, labelRank); rank != "" {
		kvs = append(kvs, attribute.String(labelRank, rank))
	}
	return metric.WithAttributes(kvs...)
}

func (o *OTelMetrics) CallCompleted(call string, attrs map[string]string) {
	o.callsCompleted.Add(context.Background(), 1, callAttrs(call, attrs))
}

func (o *OTelMetrics) CallFailed(call string, _ error, attrs map[string]string) {
	o.callsFailed.Add(context.Background(), 1, callAttrs(call, attrs))
}

func (o *OTelMetrics) UnsupportedCall(call string, attrs map[string]string) {
	o.callsUnsupported.Add(context.Background(), 1, callAttrs(call, attrs))
}

func (o *OTelMetrics) WorldCreated(map[string]string) {
	o.worldsCreated.Add(context.Background(), 1)
}

func (o *OTelMetrics) WorldDestroyed(map[string]string) {
	o.worldsDestroyed.Add(context.Background(), 1)
}
