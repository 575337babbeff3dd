package dispatch

import (
	"log/slog"

	"github.com/deptrack/deptrack/pkg/correlation"
)

// Listener subscribes the correlation engine to the bus. The protocol
// generation is fixed at construction and dispatched through a static route
// table; per-event branching on the schema generation never happens.
type Listener struct {
	bus      *Bus
	engine   *correlation.Engine
	protocol Protocol
	filter   FilterFunc
	logger   *slog.Logger
	metrics  *Metrics
}

// NewListener wires a listener. filter, logger, and metrics may be nil; the
// filter guards only the modern event set, ahead of payload extraction.
func NewListener(bus *Bus, engine *correlation.Engine, protocol Protocol, filter FilterFunc, logger *slog.Logger, metrics *Metrics) *Listener {
	if logger == nil {
		logger = slog.Default()
	}
	return &Listener{
		bus:      bus,
		engine:   engine,
		protocol: protocol,
		filter:   filter,
		logger:   logger,
		metrics:  metrics,
	}
}

type route struct {
	name    string
	filter  FilterFunc
	handler Handler
}

// Subscribe installs the route table for the negotiated protocol. Exactly
// one generation is ever active.
func (l *Listener) Subscribe() {
	var routes []route
	switch l.protocol {
	case ProtocolLegacy:
		routes = []route{
			{EventLegacyRequest, nil, l.onLegacyRequest},
			{EventLegacyResponse, nil, l.onLegacyResponse},
		}
	default:
		routes = []route{
			{EventStart, l.filter, l.onStart},
			{EventStop, l.filter, l.onStop},
			{EventException, l.filter, l.onException},
		}
	}

	for _, r := range routes {
		l.bus.SubscribeFiltered(r.name, r.filter, r.handler)
	}
	l.logger.Info("dependency listener subscribed", "protocol", l.protocol.String())
}

func (l *Listener) onStart(payload any) {
	ev, err := asStartEvent(payload)
	if err != nil {
		l.drop(err)
		return
	}
	l.engine.HandleStart(ev.Context, ev.Request)
	l.metrics.countEvent(EventStart, outcomeHandled)
}

func (l *Listener) onStop(payload any) {
	ev, err := asStopEvent(payload)
	if err != nil {
		l.drop(err)
		return
	}
	l.engine.HandleStop(ev.Context, ev.Request, ev.Response, ev.Status)
	l.metrics.countEvent(EventStop, outcomeHandled)
}

func (l *Listener) onException(payload any) {
	ev, err := asExceptionEvent(payload)
	if err != nil {
		l.drop(err)
		return
	}
	l.engine.HandleException(ev.Context, ev.Request, ev.Err)
	l.metrics.countEvent(EventException, outcomeHandled)
}

func (l *Listener) onLegacyRequest(payload any) {
	ev, err := asLegacyRequestEvent(payload)
	if err != nil {
		l.drop(err)
		return
	}
	l.engine.HandleLegacyRequest(ev.CallID, ev.Context, ev.Request)
	l.metrics.countEvent(EventLegacyRequest, outcomeHandled)
}

func (l *Listener) onLegacyResponse(payload any) {
	ev, err := asLegacyResponseEvent(payload)
	if err != nil {
		l.drop(err)
		return
	}
	l.engine.HandleLegacyResponse(ev.CallID, ev.Response)
	l.metrics.countEvent(EventLegacyResponse, outcomeHandled)
}

// drop discards a malformed event: logged with event name and field,
// counted, and the listener moves on.
func (l *Listener) drop(err *extractError) {
	l.logger.Warn("dropping malformed event", "event", err.Event, "field", err.Field, "error", err.Err)
	l.metrics.countEvent(err.Event, outcomeDropped)
	l.metrics.countDrop(err.Event, err.Field)
}
