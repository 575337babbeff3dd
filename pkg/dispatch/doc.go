// Package dispatch connects the loosely typed lifecycle event stream to the
// correlation engine.
//
// Events arrive as (name, untyped payload) pairs on a Bus. At subscription
// time the listener resolves exactly once which of two mutually exclusive
// event schema generations is authoritative for the process's HTTP stack,
// and installs the matching handler table. Payload fields are extracted through
// a lazily cached reflective accessor and assembled into one explicit typed
// payload per event name at the bus boundary; from there on everything is
// statically typed.
//
// A malformed event is dropped, logged, and counted. It never stops the
// listener and never propagates back to the event source.
package dispatch
