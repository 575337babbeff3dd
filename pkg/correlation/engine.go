package correlation

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/deptrack/deptrack/pkg/domain"
)

// Settings is the configuration surface the engine consumes. Everything
// else (sampling, endpoints, buffering) belongs to the emission
// collaborator.
type Settings struct {
	// InstrumentationKey identifies the local component.
	InstrumentationKey string

	// IngestionHost is the telemetry system's own endpoint; calls to it
	// are self-traffic and never produce records.
	IngestionHost string

	// InjectHeaders enables correlation-header injection on start.
	InjectHeaders bool

	// ExcludedDomains lists host suffixes that must not receive
	// correlation headers (targets outside the trust boundary).
	ExcludedDomains []string

	// LegacyHeadersEnabled additionally mirrors trace/call ids into the
	// old two-header scheme for interoperability.
	LegacyHeadersEnabled bool
}

// Engine is the per-call state machine: Unseen → Started → Completed. It
// consumes lifecycle events for outbound calls, injects and parses
// correlation headers, and emits exactly one completed dependency record
// per call through the emission collaborator. All processing is synchronous
// on the event source's goroutine.
type Engine struct {
	settings   Settings
	resolver   domain.IdentityResolver
	emitter    domain.Emitter
	pending    *PendingRegistry
	exceptions *ExceptionStore
	logger     *slog.Logger
}

// NewEngine wires the engine with its collaborators. A nil resolver
// disables cross-component classification and source-id injection; a nil
// logger falls back to slog.Default().
func NewEngine(settings Settings, resolver domain.IdentityResolver, emitter domain.Emitter, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		settings:   settings,
		resolver:   resolver,
		emitter:    emitter,
		pending:    NewPendingRegistry(),
		exceptions: NewExceptionStore(),
		logger:     logger,
	}
}

// Pending exposes the in-flight registry so the owner can bound it with
// StartCleanup.
func (e *Engine) Pending() *PendingRegistry {
	return e.pending
}

// HandleStart processes a modern start event. No record is materialized
// yet: the trace context carries the start time, and the record is built at
// stop. Start only injects correlation headers.
func (e *Engine) HandleStart(tc *domain.TraceContext, req *http.Request) {
	if req == nil || e.isSelfTraffic(req) {
		return
	}
	if tc == nil {
		e.logger.Debug("dropping start event without trace context", "url", requestURL(req))
		return
	}
	e.injectHeaders(tc, req, false)
}

// HandleStop processes a modern stop event and emits the call's record.
// With a response present the result is classified from it; otherwise any
// exception stored for the trace id is consumed into the record's
// properties and the result code is the stringified completion status,
// which covers cancellation and unobserved faults.
func (e *Engine) HandleStop(tc *domain.TraceContext, req *http.Request, resp *http.Response, status domain.CompletionStatus) {
	if req == nil || e.isSelfTraffic(req) {
		return
	}
	if tc == nil {
		e.logger.Debug("dropping stop event without trace context", "url", requestURL(req))
		return
	}

	record := e.buildRecord(tc, req)
	record.Duration = tc.Elapsed(time.Now())

	if resp != nil {
		e.classify(record, resp)
	} else {
		if err, ok := e.exceptions.Take(tc.TraceID); ok {
			record.SetProperty(domain.PropertyErrorMessage, err.Error())
		}
		record.Success = false
		record.ResultCode = string(status)
	}

	e.emit(record)
}

// HandleException stores the exception for consumption by the matching stop
// event and forwards it to the emission collaborator. Exception events are
// delivered even when the rest of instrumentation is disabled, so this path
// runs unconditionally apart from the usual drops.
func (e *Engine) HandleException(tc *domain.TraceContext, req *http.Request, err error) {
	if err == nil || req == nil || e.isSelfTraffic(req) {
		return
	}
	if tc == nil {
		e.logger.Debug("dropping exception event without trace context", "url", requestURL(req))
		return
	}

	e.exceptions.Store(tc.TraceID, err)
	if e.emitter != nil {
		e.emitter.EmitException(err)
	}
}

// HandleLegacyRequest processes a request event from the old HTTP stack:
// it begins an in-progress record, stores it keyed by the call id, and
// injects headers including the legacy Request-Id and baggage.
func (e *Engine) HandleLegacyRequest(callID string, tc *domain.TraceContext, req *http.Request) {
	if callID == "" || req == nil || e.isSelfTraffic(req) {
		return
	}
	if tc == nil {
		e.logger.Debug("dropping legacy request event without trace context", "url", requestURL(req))
		return
	}

	record := e.buildRecord(tc, req)
	e.pending.Add(callID, record)
	e.injectHeaders(tc, req, true)
}

// HandleLegacyResponse completes a legacy call. A registry miss reflects an
// untracked or already-completed call and is silently ignored.
func (e *Engine) HandleLegacyResponse(callID string, resp *http.Response) {
	record, ok := e.pending.Take(callID)
	if !ok {
		return
	}

	record.Duration = time.Since(record.Timestamp)
	if resp != nil {
		e.classify(record, resp)
	} else {
		record.Success = false
	}

	e.emit(record)
}

// buildRecord materializes a record from the ambient trace context and the
// call's method, path, and target host. Baggage entries become properties
// verbatim.
func (e *Engine) buildRecord(tc *domain.TraceContext, req *http.Request) *domain.DependencyRecord {
	record := &domain.DependencyRecord{
		TraceID:            tc.TraceID,
		ParentID:           tc.ParentID,
		ID:                 tc.ID,
		Name:               req.Method + " " + req.URL.Path,
		Target:             req.URL.Host,
		Type:               domain.DependencyTypeHTTP,
		Timestamp:          tc.StartTime,
		InstrumentationKey: e.settings.InstrumentationKey,
	}
	for k, v := range tc.Baggage {
		record.SetProperty(k, v)
	}
	return record
}

// injectHeaders writes correlation headers onto the outbound request. Every
// step is best-effort and conditional on header absence: a caller-set
// header is never overwritten, and a failure in one step does not block the
// others.
func (e *Engine) injectHeaders(tc *domain.TraceContext, req *http.Request, legacy bool) {
	if !e.settings.InjectHeaders || e.hostExcluded(req.URL.Hostname()) {
		return
	}
	if req.Header == nil {
		req.Header = make(http.Header)
	}

	if e.resolver != nil {
		existing, err := SourceAppID(req.Header)
		if err != nil {
			e.logger.Debug("skipping source app id injection", "error", err)
		} else if existing == "" {
			if appID, ok := e.resolver.AppID(e.settings.InstrumentationKey); ok {
				SetSourceAppID(req.Header, appID)
			}
		}
	}

	if legacy {
		SetRequestID(req.Header, tc.ID)
		SetBaggage(req.Header, tc.Baggage)
	}

	if e.settings.LegacyHeadersEnabled {
		SetLegacyIDs(req.Header, tc.TraceID, tc.ID)
	}
}

// isSelfTraffic reports whether the call targets the telemetry system's own
// ingestion endpoint.
func (e *Engine) isSelfTraffic(req *http.Request) bool {
	if e.settings.IngestionHost == "" || req.URL == nil {
		return false
	}
	return strings.EqualFold(req.URL.Hostname(), e.settings.IngestionHost)
}

// hostExcluded reports whether the host matches the injection exclusion
// list. Matching is by case-insensitive suffix so a configured domain
// covers its subdomains.
func (e *Engine) hostExcluded(host string) bool {
	host = strings.ToLower(host)
	for _, excluded := range e.settings.ExcludedDomains {
		excluded = strings.ToLower(strings.TrimSpace(excluded))
		if excluded == "" {
			continue
		}
		if host == excluded || strings.HasSuffix(host, "."+excluded) {
			return true
		}
	}
	return false
}

func (e *Engine) emit(record *domain.DependencyRecord) {
	if e.emitter == nil {
		return
	}
	e.emitter.EmitDependency(record)
}

func requestURL(req *http.Request) string {
	if req == nil || req.URL == nil {
		return ""
	}
	return req.URL.String()
}
