package domain

// Emitter accepts completed telemetry for transport. Implementations own
// buffering, batching, and delivery; the correlation engine only hands off.
type Emitter interface {
	// EmitDependency delivers one completed dependency record.
	EmitDependency(record *DependencyRecord)

	// EmitException delivers a raw exception observed for an outbound
	// call, independent of any dependency record.
	EmitException(err error)
}

// IdentityResolver maps a local instrumentation key to the opaque
// application id registered for it. The boolean reports whether a mapping
// is currently available; a false result is not an error and may succeed
// on a later call.
type IdentityResolver interface {
	AppID(instrumentationKey string) (string, bool)
}
