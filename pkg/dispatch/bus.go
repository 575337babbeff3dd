package dispatch

import (
	"log/slog"
	"sync"
)

// Handler consumes one event payload. Handlers run synchronously on the
// publisher's goroutine; the bus introduces no scheduling of its own.
type Handler func(payload any)

// FilterFunc is evaluated per event before the handler runs, so cheap
// rejections (e.g. the telemetry system's own outbound calls) happen before
// any payload extraction.
type FilterFunc func(name string, payload any) bool

type subscription struct {
	filter  FilterFunc
	handler Handler
}

// Bus is a minimal named-event bus. Subscription happens at startup;
// Publish is safe for concurrent use from arbitrary goroutines. A panicking
// handler is recovered and logged so subsequent events are unaffected.
type Bus struct {
	mu      sync.RWMutex
	subs    map[string][]subscription
	logger  *slog.Logger
	metrics *Metrics
}

// NewBus creates a bus. Both logger and metrics may be nil.
func NewBus(logger *slog.Logger, metrics *Metrics) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		subs:    make(map[string][]subscription),
		logger:  logger,
		metrics: metrics,
	}
}

// Subscribe registers a handler for an event name.
func (b *Bus) Subscribe(name string, handler Handler) {
	b.SubscribeFiltered(name, nil, handler)
}

// SubscribeFiltered registers a handler guarded by a per-event filter. A
// nil filter admits every event.
func (b *Bus) SubscribeFiltered(name string, filter FilterFunc, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[name] = append(b.subs[name], subscription{filter: filter, handler: handler})
}

// Publish delivers the payload to every subscriber of name, synchronously.
func (b *Bus) Publish(name string, payload any) {
	b.mu.RLock()
	subs := b.subs[name]
	b.mu.RUnlock()

	for _, sub := range subs {
		b.deliver(name, payload, sub)
	}
}

func (b *Bus) deliver(name string, payload any, sub subscription) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked", "event", name, "panic", r)
			b.metrics.countEvent(name, outcomePanic)
		}
	}()

	if sub.filter != nil && !sub.filter(name, payload) {
		b.metrics.countEvent(name, outcomeFiltered)
		return
	}
	sub.handler(payload)
}
