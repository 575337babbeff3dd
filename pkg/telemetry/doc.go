// Package telemetry implements the emission collaborators for deptrack.
//
// It centralises OpenTelemetry provider setup and offers Emitter
// implementations that turn completed dependency records into client spans
// and metrics. An in-memory sink supports tests, and a fanout combines
// several emitters behind the single interface the correlation engine
// sees.
package telemetry
