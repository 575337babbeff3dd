package dispatch

import (
	"fmt"
	"net/http"

	"github.com/deptrack/deptrack/pkg/domain"
)

// Typed payloads, one per event name. Sources that import this package
// publish these directly; anything else is assembled from the untyped
// payload through the cached field accessor at the bus boundary.

// StartEvent announces an outbound call about to be sent.
type StartEvent struct {
	Context *domain.TraceContext
	Request *http.Request
}

// StopEvent announces a completed outbound call. Response is nil when the
// call terminated without one; Status then carries the task-completion
// state.
type StopEvent struct {
	Context  *domain.TraceContext
	Request  *http.Request
	Response *http.Response
	Status   domain.CompletionStatus
}

// ExceptionEvent announces an error raised for an in-flight call.
type ExceptionEvent struct {
	Context *domain.TraceContext
	Request *http.Request
	Err     error
}

// LegacyRequestEvent is the old stack's call-begin event.
type LegacyRequestEvent struct {
	CallID  string
	Context *domain.TraceContext
	Request *http.Request
}

// LegacyResponseEvent is the old stack's call-end event.
type LegacyResponseEvent struct {
	CallID   string
	Response *http.Response
}

func asStartEvent(payload any) (StartEvent, *extractError) {
	switch ev := payload.(type) {
	case StartEvent:
		return ev, nil
	case *StartEvent:
		return *ev, nil
	}

	tc, err := field[*domain.TraceContext](payload, EventStart, "Context", false)
	if err != nil {
		return StartEvent{}, err
	}
	req, err := field[*http.Request](payload, EventStart, "Request", true)
	if err != nil {
		return StartEvent{}, err
	}
	return StartEvent{Context: tc, Request: req}, nil
}

func asStopEvent(payload any) (StopEvent, *extractError) {
	switch ev := payload.(type) {
	case StopEvent:
		return ev, nil
	case *StopEvent:
		return *ev, nil
	}

	tc, err := field[*domain.TraceContext](payload, EventStop, "Context", false)
	if err != nil {
		return StopEvent{}, err
	}
	req, err := field[*http.Request](payload, EventStop, "Request", true)
	if err != nil {
		return StopEvent{}, err
	}
	resp, err := field[*http.Response](payload, EventStop, "Response", false)
	if err != nil {
		return StopEvent{}, err
	}
	status, err := statusField(payload, EventStop)
	if err != nil {
		return StopEvent{}, err
	}
	return StopEvent{Context: tc, Request: req, Response: resp, Status: status}, nil
}

func asExceptionEvent(payload any) (ExceptionEvent, *extractError) {
	switch ev := payload.(type) {
	case ExceptionEvent:
		return ev, nil
	case *ExceptionEvent:
		return *ev, nil
	}

	tc, err := field[*domain.TraceContext](payload, EventException, "Context", false)
	if err != nil {
		return ExceptionEvent{}, err
	}
	req, err := field[*http.Request](payload, EventException, "Request", true)
	if err != nil {
		return ExceptionEvent{}, err
	}
	cause, err := field[error](payload, EventException, "Err", true)
	if err != nil {
		return ExceptionEvent{}, err
	}
	return ExceptionEvent{Context: tc, Request: req, Err: cause}, nil
}

func asLegacyRequestEvent(payload any) (LegacyRequestEvent, *extractError) {
	switch ev := payload.(type) {
	case LegacyRequestEvent:
		return ev, nil
	case *LegacyRequestEvent:
		return *ev, nil
	}

	callID, err := field[string](payload, EventLegacyRequest, "CallID", true)
	if err != nil {
		return LegacyRequestEvent{}, err
	}
	tc, err := field[*domain.TraceContext](payload, EventLegacyRequest, "Context", false)
	if err != nil {
		return LegacyRequestEvent{}, err
	}
	req, err := field[*http.Request](payload, EventLegacyRequest, "Request", true)
	if err != nil {
		return LegacyRequestEvent{}, err
	}
	return LegacyRequestEvent{CallID: callID, Context: tc, Request: req}, nil
}

func asLegacyResponseEvent(payload any) (LegacyResponseEvent, *extractError) {
	switch ev := payload.(type) {
	case LegacyResponseEvent:
		return ev, nil
	case *LegacyResponseEvent:
		return *ev, nil
	}

	callID, err := field[string](payload, EventLegacyResponse, "CallID", true)
	if err != nil {
		return LegacyResponseEvent{}, err
	}
	resp, err := field[*http.Response](payload, EventLegacyResponse, "Response", false)
	if err != nil {
		return LegacyResponseEvent{}, err
	}
	return LegacyResponseEvent{CallID: callID, Response: resp}, nil
}

// statusField reads the completion status, accepting either the domain type
// or its string form. An unknown non-empty value is a shape mismatch.
func statusField(payload any, event string) (domain.CompletionStatus, *extractError) {
	raw, ok := fetchField(payload, "Status")
	if !ok || raw == nil {
		return "", nil
	}

	var s string
	switch v := raw.(type) {
	case domain.CompletionStatus:
		s = string(v)
	case string:
		s = v
	default:
		return "", &extractError{Event: event, Field: "Status", Err: fmt.Errorf("unexpected type %T", raw)}
	}

	switch status := domain.CompletionStatus(s); status {
	case "", domain.StatusCompleted, domain.StatusCanceled, domain.StatusFaulted:
		return status, nil
	default:
		return "", &extractError{Event: event, Field: "Status", Err: fmt.Errorf("unparsable value %q", s)}
	}
}
