package domain

import "time"

// TraceContext is the ambient correlation state for one outbound call. It is
// created by the event source (the instrumented HTTP stack), threaded
// explicitly through every handler, and never mutated by the correlation
// engine.
type TraceContext struct {
	TraceID  string
	ParentID string
	ID       string

	StartTime time.Time

	// Baggage holds key/value pairs propagated across process boundaries.
	// Insertion order is irrelevant.
	Baggage map[string]string
}

// Elapsed returns the duration since the context's start time, measured at t.
func (tc *TraceContext) Elapsed(t time.Time) time.Duration {
	if tc.StartTime.IsZero() {
		return 0
	}
	return t.Sub(tc.StartTime)
}
