package dispatch

import (
	"net/http"
	"strings"
)

// SelfTrafficFilter builds a predicate that rejects events for calls to the
// telemetry system's own ingestion host. It only looks at the request's
// host, so self-traffic is rejected before any field extraction; payloads
// it cannot see through are admitted and left to the engine's own check.
func SelfTrafficFilter(ingestionHost string) FilterFunc {
	if ingestionHost == "" {
		return nil
	}
	return func(name string, payload any) bool {
		req := eventRequest(payload)
		if req == nil || req.URL == nil {
			return true
		}
		return !strings.EqualFold(req.URL.Hostname(), ingestionHost)
	}
}

func eventRequest(payload any) *http.Request {
	switch ev := payload.(type) {
	case StartEvent:
		return ev.Request
	case *StartEvent:
		return ev.Request
	case StopEvent:
		return ev.Request
	case *StopEvent:
		return ev.Request
	case ExceptionEvent:
		return ev.Request
	case *ExceptionEvent:
		return ev.Request
	}
	return nil
}
