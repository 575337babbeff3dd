package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/deptrack/deptrack/pkg/domain"
)

const tracerName = "deptrack.dependency"

// SpanEmitter exports each completed dependency record as a client span on
// the configured tracer provider. Spans carry the record's real start time
// and duration, not the emission time.
type SpanEmitter struct {
	tracer trace.Tracer
}

// NewSpanEmitter creates a SpanEmitter. A nil provider uses the global one.
func NewSpanEmitter(provider trace.TracerProvider) *SpanEmitter {
	if provider == nil {
		provider = otel.GetTracerProvider()
	}
	return &SpanEmitter{tracer: provider.Tracer(tracerName)}
}

// EmitDependency implements domain.Emitter.
func (s *SpanEmitter) EmitDependency(record *domain.DependencyRecord) {
	attrs := []attribute.KeyValue{
		attribute.String("dependency.target", record.Target),
		attribute.String("dependency.type", string(record.Type)),
		attribute.String("dependency.result_code", record.ResultCode),
		attribute.Bool("dependency.success", record.Success),
		attribute.String("dependency.trace_id", record.TraceID),
		attribute.String("dependency.parent_id", record.ParentID),
		attribute.String("dependency.id", record.ID),
	}
	for k, v := range record.Properties {
		attrs = append(attrs, attribute.String("dependency.properties."+k, v))
	}

	_, span := s.tracer.Start(context.Background(), record.Name,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithTimestamp(record.Timestamp),
		trace.WithAttributes(attrs...),
	)
	if !record.Success {
		span.SetStatus(codes.Error, record.ResultCode)
	}
	span.End(trace.WithTimestamp(record.Timestamp.Add(record.Duration)))
}

// EmitException implements domain.Emitter. The exception is exported as a
// zero-length span carrying the recorded error, independent of any
// dependency record.
func (s *SpanEmitter) EmitException(err error) {
	_, span := s.tracer.Start(context.Background(), "dependency exception",
		trace.WithSpanKind(trace.SpanKindClient),
	)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	span.End()
}
