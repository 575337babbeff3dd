package correlation

import (
	"log/slog"
	"sync"
)

// FetchAppID resolves an instrumentation key to an application id at the
// source of truth (typically the ingestion service's appid endpoint).
type FetchAppID func(instrumentationKey string) (string, error)

// CachingResolver maps instrumentation keys to application ids, caching
// successful lookups. The cache is read-mostly: the common path is a shared
// read lock; a fetch happens once per key until it succeeds.
type CachingResolver struct {
	fetch  FetchAppID
	logger *slog.Logger

	mu    sync.RWMutex
	cache map[string]string
}

// NewCachingResolver creates a resolver backed by the given fetch function.
func NewCachingResolver(fetch FetchAppID, logger *slog.Logger) *CachingResolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &CachingResolver{
		fetch:  fetch,
		logger: logger,
		cache:  make(map[string]string),
	}
}

// AppID returns the application id for the instrumentation key. A failed
// fetch yields (_, false) and is retried on the next call; it is never
// cached as a negative entry.
func (r *CachingResolver) AppID(instrumentationKey string) (string, bool) {
	if instrumentationKey == "" {
		return "", false
	}

	r.mu.RLock()
	id, ok := r.cache[instrumentationKey]
	r.mu.RUnlock()
	if ok {
		return id, true
	}

	if r.fetch == nil {
		return "", false
	}
	id, err := r.fetch(instrumentationKey)
	if err != nil {
		r.logger.Debug("app id fetch failed", "error", err)
		return "", false
	}

	r.mu.Lock()
	r.cache[instrumentationKey] = id
	r.mu.Unlock()
	return id, true
}

// StaticResolver serves application ids from a fixed map. Used for
// config-driven deployments and tests.
type StaticResolver map[string]string

// AppID implements domain.IdentityResolver.
func (s StaticResolver) AppID(instrumentationKey string) (string, bool) {
	id, ok := s[instrumentationKey]
	return id, ok && id != ""
}
