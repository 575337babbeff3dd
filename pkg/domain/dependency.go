package domain

import (
	"time"
)

// DependencyType tags the kind of outbound call a record describes.
type DependencyType string

const (
	// DependencyTypeHTTP is a plain HTTP call to an untracked target.
	DependencyTypeHTTP DependencyType = "Http"

	// DependencyTypeTrackedComponent is an HTTP call whose callee was
	// identified as a distinct instrumented component.
	DependencyTypeTrackedComponent DependencyType = "Http (tracked component)"
)

// CompletionStatus describes how a call terminated when no response was
// observed. It is stringified verbatim into the record's ResultCode.
type CompletionStatus string

const (
	StatusCompleted CompletionStatus = "RanToCompletion"
	StatusCanceled  CompletionStatus = "Canceled"
	StatusFaulted   CompletionStatus = "Faulted"
)

// DependencyRecord is the unit of output: one completed record per
// logically distinct outbound call.
type DependencyRecord struct {
	// Correlation identity, copied from the ambient trace context.
	TraceID  string
	ParentID string
	ID       string

	// Name is "<METHOD> <path>" of the call.
	Name string

	// Target is the callee host, annotated as "<host> | <appId>" when the
	// callee resolved to a distinct tracked component.
	Target string

	Type DependencyType

	Timestamp time.Time
	Duration  time.Duration

	Success    bool
	ResultCode string

	// Properties carries propagated baggage and, on failure, the error
	// message under PropertyErrorMessage.
	Properties map[string]string

	InstrumentationKey string
}

// PropertyErrorMessage is the Properties key holding the message of an
// exception consumed by the matching stop event.
const PropertyErrorMessage = "error.message"

// SetProperty records a key/value on the record, allocating the map on
// first use.
func (r *DependencyRecord) SetProperty(key, value string) {
	if r.Properties == nil {
		r.Properties = make(map[string]string)
	}
	r.Properties[key] = value
}
