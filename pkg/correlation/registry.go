package correlation

import (
	"context"
	"sync"
	"time"

	"github.com/deptrack/deptrack/pkg/domain"
)

// PendingRegistry associates in-flight legacy calls with their in-progress
// dependency records. Go has no ownership-aware weak map, so the
// association is an explicit side table keyed by the generated call id.
// A TTL sweep bounds growth from calls abandoned without a completion
// event.
type PendingRegistry struct {
	mu      sync.RWMutex
	entries map[string]*pendingEntry
}

type pendingEntry struct {
	record    *domain.DependencyRecord
	createdAt time.Time
}

// NewPendingRegistry creates an empty registry.
func NewPendingRegistry() *PendingRegistry {
	return &PendingRegistry{
		entries: make(map[string]*pendingEntry),
	}
}

// Add stores the in-progress record for a call id.
func (r *PendingRegistry) Add(callID string, record *domain.DependencyRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[callID] = &pendingEntry{record: record, createdAt: time.Now()}
}

// Take removes and returns the record for a call id. A miss reflects an
// untracked or already-completed call and is not an error.
func (r *PendingRegistry) Take(callID string) (*domain.DependencyRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.entries[callID]
	if !ok {
		return nil, false
	}
	delete(r.entries, callID)
	return entry.record, true
}

// Len reports the number of in-flight entries.
func (r *PendingRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// StartCleanup runs a ticker that evicts entries older than ttl until the
// context is cancelled. This is the only background work the correlation
// core owns.
func (r *PendingRegistry) StartCleanup(ctx context.Context, interval, ttl time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.cleanup(ttl)
			}
		}
	}()
}

func (r *PendingRegistry) cleanup(ttl time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	for id, entry := range r.entries {
		if now.Sub(entry.createdAt) > ttl {
			delete(r.entries, id)
		}
	}
}

// ExceptionStore holds exceptions raised for in-flight calls before their
// stop event arrives, keyed by trace id. Entries are strong and removed on
// first consumption; multiple calls complete in parallel, so all operations
// are safe for concurrent use.
type ExceptionStore struct {
	mu     sync.Mutex
	errors map[string]error
}

// NewExceptionStore creates an empty store.
func NewExceptionStore() *ExceptionStore {
	return &ExceptionStore{errors: make(map[string]error)}
}

// Store records the exception for a trace id, replacing any earlier one.
func (s *ExceptionStore) Store(traceID string, err error) {
	if traceID == "" || err == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errors[traceID] = err
}

// Take removes and returns the exception for a trace id. A second call for
// the same id finds nothing.
func (s *ExceptionStore) Take(traceID string) (error, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	err, ok := s.errors[traceID]
	if !ok {
		return nil, false
	}
	delete(s.errors, traceID)
	return err, true
}
