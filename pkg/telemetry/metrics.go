package telemetry

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/deptrack/deptrack/pkg/domain"
)

var (
	metricsOnce       sync.Once
	metricsInitErr    error
	dependencyCounter metric.Int64Counter
	exceptionCounter  metric.Int64Counter
	durationHistogram metric.Float64Histogram
)

// MetricEmitter records counters and a latency histogram for every emitted
// dependency record. It satisfies domain.Emitter so it can sit in a fanout
// next to the span bridge.
type MetricEmitter struct{}

// NewMetricEmitter creates a MetricEmitter.
func NewMetricEmitter() *MetricEmitter {
	return &MetricEmitter{}
}

// EmitDependency implements domain.Emitter.
func (m *MetricEmitter) EmitDependency(record *domain.DependencyRecord) {
	if err := ensureMetrics(); err != nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("dependency.type", string(record.Type)),
		attribute.String("dependency.target", record.Target),
		attribute.String("dependency.result_code", record.ResultCode),
		attribute.Bool("dependency.success", record.Success),
	}

	ctx := context.Background()
	dependencyCounter.Add(ctx, 1, metric.WithAttributes(attrs...))
	if record.Duration > 0 {
		durationHistogram.Record(ctx, float64(record.Duration)/float64(time.Millisecond), metric.WithAttributes(attrs...))
	}
}

// EmitException implements domain.Emitter.
func (m *MetricEmitter) EmitException(err error) {
	if err == nil || ensureMetrics() != nil {
		return
	}
	exceptionCounter.Add(context.Background(), 1)
}

func ensureMetrics() error {
	metricsOnce.Do(func() {
		meter := otel.GetMeterProvider().Meter("deptrack.dependency")

		dependencyCounter, metricsInitErr = meter.Int64Counter(
			"deptrack.dependencies_total",
			metric.WithDescription("Completed outbound dependency calls"),
		)
		if metricsInitErr != nil {
			return
		}

		exceptionCounter, metricsInitErr = meter.Int64Counter(
			"deptrack.dependency_exceptions_total",
			metric.WithDescription("Exceptions observed for outbound dependency calls"),
		)
		if metricsInitErr != nil {
			return
		}

		durationHistogram, metricsInitErr = meter.Float64Histogram(
			"deptrack.dependency_duration_ms",
			metric.WithDescription("Outbound dependency call duration in milliseconds"),
			metric.WithUnit("ms"),
		)
	})
	return metricsInitErr
}
