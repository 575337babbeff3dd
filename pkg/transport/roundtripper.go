// Package transport is the event source for deptrack: an http.RoundTripper
// decorator that publishes outbound-call lifecycle events onto the dispatch
// bus. The modern generation publishes start/stop/exception; a legacy shim
// publishes request/response pairs for older stacks.
package transport

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/baggage"
	"go.opentelemetry.io/otel/trace"

	"github.com/deptrack/deptrack/pkg/dispatch"
	"github.com/deptrack/deptrack/pkg/domain"
)

// Transport decorates a base RoundTripper with lifecycle event publication.
// It owns the ambient trace context for each call: ids come from the active
// OpenTelemetry span when one is present, baggage from the request context.
// The decorator never fails a call; event publication is fire-and-forget.
type Transport struct {
	base     http.RoundTripper
	bus      *dispatch.Bus
	protocol dispatch.Protocol
	logger   *slog.Logger
}

// New creates a Transport over base (nil means http.DefaultTransport).
func New(base http.RoundTripper, bus *dispatch.Bus, protocol dispatch.Protocol, logger *slog.Logger) *Transport {
	if base == nil {
		base = http.DefaultTransport
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Transport{
		base:     base,
		bus:      bus,
		protocol: protocol,
		logger:   logger,
	}
}

// NewClient returns an http.Client whose transport publishes lifecycle
// events and carries W3C trace context via otelhttp underneath.
func NewClient(bus *dispatch.Bus, protocol dispatch.Protocol, logger *slog.Logger) *http.Client {
	base := otelhttp.NewTransport(http.DefaultTransport)
	return &http.Client{
		Transport: New(base, bus, protocol, logger),
	}
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	tc := t.newTraceContext(req)

	if t.protocol == dispatch.ProtocolLegacy {
		return t.roundTripLegacy(tc, req)
	}

	t.bus.Publish(dispatch.EventStart, dispatch.StartEvent{Context: tc, Request: req})

	resp, err := t.base.RoundTrip(req)
	if err != nil {
		t.bus.Publish(dispatch.EventException, dispatch.ExceptionEvent{Context: tc, Request: req, Err: err})
	}

	t.bus.Publish(dispatch.EventStop, dispatch.StopEvent{
		Context:  tc,
		Request:  req,
		Response: resp,
		Status:   completionStatus(req.Context(), resp, err),
	})
	return resp, err
}

func (t *Transport) roundTripLegacy(tc *domain.TraceContext, req *http.Request) (*http.Response, error) {
	callID := uuid.NewString()
	t.bus.Publish(dispatch.EventLegacyRequest, dispatch.LegacyRequestEvent{
		CallID:  callID,
		Context: tc,
		Request: req,
	})

	resp, err := t.base.RoundTrip(req)

	t.bus.Publish(dispatch.EventLegacyResponse, dispatch.LegacyResponseEvent{
		CallID:   callID,
		Response: resp,
	})
	return resp, err
}

// newTraceContext derives the ambient context for one call. Trace and
// parent ids come from the active span when valid; the call's own id is
// always freshly generated.
func (t *Transport) newTraceContext(req *http.Request) *domain.TraceContext {
	tc := &domain.TraceContext{
		ID:        uuid.NewString(),
		StartTime: time.Now(),
	}

	if sc := trace.SpanContextFromContext(req.Context()); sc.IsValid() {
		tc.TraceID = sc.TraceID().String()
		tc.ParentID = sc.SpanID().String()
	} else {
		tc.TraceID = uuid.NewString()
	}

	if members := baggage.FromContext(req.Context()).Members(); len(members) > 0 {
		tc.Baggage = make(map[string]string, len(members))
		for _, m := range members {
			tc.Baggage[m.Key()] = m.Value()
		}
	}
	return tc
}

// completionStatus maps the terminal state of a call to the task-completion
// status stringified into records that have no response.
func completionStatus(ctx context.Context, resp *http.Response, err error) domain.CompletionStatus {
	if err == nil && resp != nil {
		return domain.StatusCompleted
	}
	if errors.Is(err, context.Canceled) || ctx.Err() != nil {
		return domain.StatusCanceled
	}
	return domain.StatusFaulted
}
