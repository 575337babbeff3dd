// Package domain defines the core types and interfaces for deptrack.
//
// This package contains pure domain logic with ZERO external dependencies
// outside the Go standard library. All types in this package are:
//
// - Independent of infrastructure (no transport, exporter, or config coupling)
// - Testable in isolation without mocks
// - Stable and unlikely to change frequently
//
// Other packages (correlation, dispatch, transport, telemetry) implement the
// interfaces defined here and depend on these types. The dependency direction
// is always:
//
//	Infrastructure → Domain (CORRECT)
//	Domain → Infrastructure (FORBIDDEN)
package domain
