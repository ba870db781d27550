// Package telemetry provides the OpenTelemetry-backed implementation of
// core.MetricsRegistry described in spec.md §6.5. It installs no
// collector/exporter pipeline — only an in-process MeterProvider with
// its own instrument registry — since an external collector surface
// belongs to the transport layer excluded by spec.md §1.
package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/trace"
)

// OtelRegistry implements core.MetricsRegistry on top of an
// in-process otel/sdk/metric MeterProvider.
type OtelRegistry struct {
	provider *sdkmetric.MeterProvider
	meter    metric.Meter

	mu         sync.Mutex
	counters   map[string]metric.Float64Counter
	gauges     map[string]metric.Float64Gauge
	histograms map[string]metric.Float64Histogram
}

// NewOtelRegistry constructs a registry scoped to serviceName. Call
// core.SetMetricsRegistry(reg) once at process startup to activate it.
func NewOtelRegistry(serviceName string) *OtelRegistry {
	provider := sdkmetric.NewMeterProvider()
	return &OtelRegistry{
		provider:   provider,
		meter:      provider.Meter(serviceName),
		counters:   make(map[string]metric.Float64Counter),
		gauges:     make(map[string]metric.Float64Gauge),
		histograms: make(map[string]metric.Float64Histogram),
	}
}

// Shutdown flushes and releases the underlying MeterProvider.
func (r *OtelRegistry) Shutdown(ctx context.Context) error {
	return r.provider.Shutdown(ctx)
}

func (r *OtelRegistry) Counter(name string, labels ...string) {
	r.counterFor(name).Add(context.Background(), 1, metric.WithAttributes(attrsFromLabels(labels)...))
}

func (r *OtelRegistry) EmitWithContext(ctx context.Context, name string, value float64, labels ...string) {
	r.counterFor(name).Add(ctx, value, metric.WithAttributes(attrsFromLabels(labels)...))
}

func (r *OtelRegistry) Gauge(name string, value float64, labels ...string) {
	r.gaugeFor(name).Record(context.Background(), value, metric.WithAttributes(attrsFromLabels(labels)...))
}

func (r *OtelRegistry) Histogram(name string, value float64, labels ...string) {
	r.histogramFor(name).Record(context.Background(), value, metric.WithAttributes(attrsFromLabels(labels)...))
}

// GetBaggage extracts the active span's trace/span IDs, if any, for log
// correlation. Returns an empty map outside a traced context.
func (r *OtelRegistry) GetBaggage(ctx context.Context) map[string]string {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return map[string]string{}
	}
	return map[string]string{
		"trace_id": sc.TraceID().String(),
		"span_id":  sc.SpanID().String(),
	}
}

func (r *OtelRegistry) counterFor(name string) metric.Float64Counter {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.counters[name]; ok {
		return c
	}
	c, _ := r.meter.Float64Counter(name)
	r.counters[name] = c
	return c
}

func (r *OtelRegistry) gaugeFor(name string) metric.Float64Gauge {
	r.mu.Lock()
	defer r.mu.Unlock()
	if g, ok := r.gauges[name]; ok {
		return g
	}
	g, _ := r.meter.Float64Gauge(name)
	r.gauges[name] = g
	return g
}

func (r *OtelRegistry) histogramFor(name string) metric.Float64Histogram {
	r.mu.Lock()
	defer r.mu.Unlock()
	if h, ok := r.histograms[name]; ok {
		return h
	}
	h, _ := r.meter.Float64Histogram(name)
	r.histograms[name] = h
	return h
}

func attrsFromLabels(labels []string) []attribute.KeyValue {
	out := make([]attribute.KeyValue, 0, len(labels)/2)
	for i := 0; i+1 < len(labels); i += 2 {
		out = append(out, attribute.String(labels[i], labels[i+1]))
	}
	return out
}
