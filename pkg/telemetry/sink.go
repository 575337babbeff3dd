package telemetry

import (
	"sync"

	"github.com/deptrack/deptrack/pkg/domain"
)

// InMemorySink collects emitted telemetry for inspection. It is the test
// double for the emission collaborator and is safe for concurrent use.
type InMemorySink struct {
	mu         sync.Mutex
	records    []*domain.DependencyRecord
	exceptions []error
}

// NewInMemorySink creates an empty sink.
func NewInMemorySink() *InMemorySink {
	return &InMemorySink{}
}

// EmitDependency implements domain.Emitter.
func (s *InMemorySink) EmitDependency(record *domain.DependencyRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, record)
}

// EmitException implements domain.Emitter.
func (s *InMemorySink) EmitException(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.exceptions = append(s.exceptions, err)
}

// Records returns a copy of the collected dependency records.
func (s *InMemorySink) Records() []*domain.DependencyRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*domain.DependencyRecord(nil), s.records...)
}

// Exceptions returns a copy of the collected exceptions.
func (s *InMemorySink) Exceptions() []error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]error(nil), s.exceptions...)
}

// MultiEmitter fans each emission out to every wrapped emitter.
type MultiEmitter []domain.Emitter

// EmitDependency implements domain.Emitter.
func (m MultiEmitter) EmitDependency(record *domain.DependencyRecord) {
	for _, e := range m {
		e.EmitDependency(record)
	}
}

// EmitException implements domain.Emitter.
func (m MultiEmitter) EmitException(err error) {
	for _, e := range m {
		e.EmitException(err)
	}
}
