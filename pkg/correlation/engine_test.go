package correlation

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deptrack/deptrack/pkg/domain"
	"github.com/deptrack/deptrack/pkg/telemetry"
)

const testIkey = "ikey-local"

func testSettings() Settings {
	return Settings{
		InstrumentationKey: testIkey,
		IngestionHost:      "dc.ingest.example.com",
		InjectHeaders:      true,
	}
}

func newTestEngine(settings Settings, resolver domain.IdentityResolver) (*Engine, *telemetry.InMemorySink) {
	sink := telemetry.NewInMemorySink()
	return NewEngine(settings, resolver, sink, nil), sink
}

func testTraceContext() *domain.TraceContext {
	return &domain.TraceContext{
		TraceID:   "trace-1",
		ParentID:  "parent-1",
		ID:        "span-1",
		StartTime: time.Now().Add(-50 * time.Millisecond),
	}
}

func newRequest(t *testing.T, method, url string) *http.Request {
	t.Helper()
	req, err := http.NewRequest(method, url, nil)
	require.NoError(t, err)
	return req
}

func newResponse(status int) *http.Response {
	return &http.Response{StatusCode: status, Header: make(http.Header)}
}

func TestStopEmitsExactlyOneRecord(t *testing.T) {
	engine, sink := newTestEngine(testSettings(), nil)
	tc := testTraceContext()
	req := newRequest(t, http.MethodGet, "https://api.example.com/orders/42")

	engine.HandleStart(tc, req)
	engine.HandleStop(tc, req, newResponse(http.StatusOK), domain.StatusCompleted)

	records := sink.Records()
	require.Len(t, records, 1)

	rec := records[0]
	assert.Equal(t, "GET /orders/42", rec.Name)
	assert.Equal(t, "api.example.com", rec.Target)
	assert.Equal(t, domain.DependencyTypeHTTP, rec.Type)
	assert.Equal(t, "trace-1", rec.TraceID)
	assert.Equal(t, "parent-1", rec.ParentID)
	assert.Equal(t, "span-1", rec.ID)
	assert.Equal(t, "200", rec.ResultCode)
	assert.True(t, rec.Success)
	assert.Equal(t, testIkey, rec.InstrumentationKey)
	assert.Greater(t, rec.Duration, time.Duration(0))
}

func TestSuccessClassification(t *testing.T) {
	tests := []struct {
		status  int
		success bool
	}{
		{200, true},
		{204, true},
		{299, true},
		{301, true},
		{399, true},
		{400, false},
		{404, false},
		{500, false},
	}

	for _, tt := range tests {
		engine, sink := newTestEngine(testSettings(), nil)
		tc := testTraceContext()
		req := newRequest(t, http.MethodGet, "https://api.example.com/x")

		engine.HandleStop(tc, req, newResponse(tt.status), domain.StatusCompleted)

		records := sink.Records()
		require.Len(t, records, 1, "status %d", tt.status)
		assert.Equal(t, tt.success, records[0].Success, "status %d", tt.status)
	}
}

func TestStopWithoutResponseCanceled(t *testing.T) {
	engine, sink := newTestEngine(testSettings(), nil)
	tc := testTraceContext()
	req := newRequest(t, http.MethodGet, "https://api.example.com/x")

	engine.HandleStop(tc, req, nil, domain.StatusCanceled)

	records := sink.Records()
	require.Len(t, records, 1)
	assert.False(t, records[0].Success)
	assert.Equal(t, "Canceled", records[0].ResultCode)
}

func TestExceptionConsumedByStop(t *testing.T) {
	engine, sink := newTestEngine(testSettings(), nil)
	tc := testTraceContext()
	req := newRequest(t, http.MethodGet, "https://api.example.com/x")

	engine.HandleException(tc, req, errors.New("connection refused"))
	engine.HandleStop(tc, req, nil, domain.StatusFaulted)

	records := sink.Records()
	require.Len(t, records, 1)
	rec := records[0]
	assert.False(t, rec.Success)
	assert.Equal(t, "Faulted", rec.ResultCode)
	assert.Equal(t, "connection refused", rec.Properties[domain.PropertyErrorMessage])

	// The stored exception was consumed; a second lookup finds nothing.
	_, ok := engine.exceptions.Take(tc.TraceID)
	assert.False(t, ok)

	// The raw exception went to the emission collaborator independently.
	require.Len(t, sink.Exceptions(), 1)
}

func TestSelfTrafficNeverEmits(t *testing.T) {
	engine, sink := newTestEngine(testSettings(), nil)
	tc := testTraceContext()
	req := newRequest(t, http.MethodPost, "https://dc.ingest.example.com/v2/track")

	engine.HandleStart(tc, req)
	engine.HandleException(tc, req, errors.New("boom"))
	engine.HandleStop(tc, req, newResponse(http.StatusOK), domain.StatusCompleted)
	engine.HandleLegacyRequest("call-1", tc, req)
	engine.HandleLegacyResponse("call-1", newResponse(http.StatusOK))

	assert.Empty(t, sink.Records())
	assert.Empty(t, sink.Exceptions())
	assert.Empty(t, req.Header.Get(RequestContextHeader))
}

func TestMissingTraceContextDropped(t *testing.T) {
	engine, sink := newTestEngine(testSettings(), nil)
	req := newRequest(t, http.MethodGet, "https://api.example.com/x")

	engine.HandleStart(nil, req)
	engine.HandleStop(nil, req, newResponse(http.StatusOK), domain.StatusCompleted)
	engine.HandleException(nil, req, errors.New("boom"))

	assert.Empty(t, sink.Records())
	assert.Empty(t, req.Header.Get(RequestContextHeader))
}

func TestStartInjectsSourceAppID(t *testing.T) {
	resolver := StaticResolver{testIkey: "app-local"}
	engine, _ := newTestEngine(testSettings(), resolver)
	tc := testTraceContext()
	req := newRequest(t, http.MethodGet, "https://api.example.com/x")

	engine.HandleStart(tc, req)

	appID, err := SourceAppID(req.Header)
	require.NoError(t, err)
	assert.Equal(t, "app-local", appID)
}

func TestStartNeverOverwritesSourceAppID(t *testing.T) {
	resolver := StaticResolver{testIkey: "app-local"}
	engine, _ := newTestEngine(testSettings(), resolver)
	tc := testTraceContext()
	req := newRequest(t, http.MethodGet, "https://api.example.com/x")
	req.Header.Set(RequestContextHeader, "appId=caller-set")

	engine.HandleStart(tc, req)

	appID, err := SourceAppID(req.Header)
	require.NoError(t, err)
	assert.Equal(t, "caller-set", appID)
}

func TestExcludedDomainSkipsInjection(t *testing.T) {
	settings := testSettings()
	settings.ExcludedDomains = []string{"example.com"}
	resolver := StaticResolver{testIkey: "app-local"}
	engine, _ := newTestEngine(settings, resolver)
	tc := testTraceContext()

	req := newRequest(t, http.MethodGet, "https://api.example.com/x")
	engine.HandleStart(tc, req)
	assert.Empty(t, req.Header.Get(RequestContextHeader))

	// Other hosts still get headers.
	other := newRequest(t, http.MethodGet, "https://api.other.net/x")
	engine.HandleStart(tc, other)
	assert.NotEmpty(t, other.Header.Get(RequestContextHeader))
}

func TestInjectionDisabled(t *testing.T) {
	settings := testSettings()
	settings.InjectHeaders = false
	resolver := StaticResolver{testIkey: "app-local"}
	engine, _ := newTestEngine(settings, resolver)

	req := newRequest(t, http.MethodGet, "https://api.example.com/x")
	engine.HandleStart(testTraceContext(), req)
	assert.Empty(t, req.Header)
}

func TestLegacyCompatibilityHeaders(t *testing.T) {
	settings := testSettings()
	settings.LegacyHeadersEnabled = true
	engine, _ := newTestEngine(settings, nil)
	tc := testTraceContext()

	req := newRequest(t, http.MethodGet, "https://api.example.com/x")
	engine.HandleStart(tc, req)

	assert.Equal(t, "trace-1", req.Header.Get(RootIDHeader))
	assert.Equal(t, "span-1", req.Header.Get(ParentIDHeader))
}

func TestCrossComponentClassification(t *testing.T) {
	resolver := StaticResolver{testIkey: "app-local"}
	engine, sink := newTestEngine(testSettings(), resolver)
	tc := testTraceContext()
	req := newRequest(t, http.MethodGet, "https://api.example.com/x")

	resp := newResponse(http.StatusOK)
	resp.Header.Set(RequestContextHeader, "appId=app-remote")
	engine.HandleStop(tc, req, resp, domain.StatusCompleted)

	records := sink.Records()
	require.Len(t, records, 1)
	assert.Equal(t, "api.example.com | app-remote", records[0].Target)
	assert.Equal(t, domain.DependencyTypeTrackedComponent, records[0].Type)
}

func TestSameComponentStaysPlain(t *testing.T) {
	resolver := StaticResolver{testIkey: "app-local"}
	engine, sink := newTestEngine(testSettings(), resolver)
	tc := testTraceContext()
	req := newRequest(t, http.MethodGet, "https://api.example.com/x")

	resp := newResponse(http.StatusOK)
	resp.Header.Set(RequestContextHeader, "appId=app-local")
	engine.HandleStop(tc, req, resp, domain.StatusCompleted)

	records := sink.Records()
	require.Len(t, records, 1)
	assert.Equal(t, "api.example.com", records[0].Target)
	assert.Equal(t, domain.DependencyTypeHTTP, records[0].Type)
}

func TestMalformedResponseHeaderFallsBack(t *testing.T) {
	resolver := StaticResolver{testIkey: "app-local"}
	engine, sink := newTestEngine(testSettings(), resolver)
	tc := testTraceContext()
	req := newRequest(t, http.MethodGet, "https://api.example.com/x")

	resp := newResponse(http.StatusOK)
	resp.Header.Set(RequestContextHeader, "garbage-without-pairs")
	engine.HandleStop(tc, req, resp, domain.StatusCompleted)

	records := sink.Records()
	require.Len(t, records, 1)
	assert.Equal(t, "api.example.com", records[0].Target)
	assert.Equal(t, "200", records[0].ResultCode)
	assert.True(t, records[0].Success)
}

func TestLegacyPairing(t *testing.T) {
	engine, sink := newTestEngine(testSettings(), nil)
	tc := testTraceContext()
	req := newRequest(t, http.MethodGet, "https://api.example.com/items")

	engine.HandleLegacyRequest("call-9", tc, req)
	assert.Equal(t, "span-1", req.Header.Get(RequestIDHeader))

	engine.HandleLegacyResponse("call-9", newResponse(http.StatusCreated))

	records := sink.Records()
	require.Len(t, records, 1)
	assert.Equal(t, "GET /items", records[0].Name)
	assert.Equal(t, "201", records[0].ResultCode)
	assert.True(t, records[0].Success)

	// A duplicate completion finds no pending entry and emits nothing.
	engine.HandleLegacyResponse("call-9", newResponse(http.StatusOK))
	assert.Len(t, sink.Records(), 1)
}

func TestLegacyResponseWithoutRequest(t *testing.T) {
	engine, sink := newTestEngine(testSettings(), nil)

	engine.HandleLegacyResponse("never-seen", newResponse(http.StatusOK))

	assert.Empty(t, sink.Records())
}

func TestLegacyRequestInjectsBaggage(t *testing.T) {
	engine, _ := newTestEngine(testSettings(), nil)
	tc := testTraceContext()
	tc.Baggage = map[string]string{"tenant": "acme", "region": "eu"}
	req := newRequest(t, http.MethodGet, "https://api.example.com/x")

	engine.HandleLegacyRequest("call-2", tc, req)

	assert.Equal(t, "region=eu,tenant=acme", req.Header.Get(CorrelationContextHeader))
}

func TestBaggageRoundTrip(t *testing.T) {
	engine, sink := newTestEngine(testSettings(), nil)
	tc := testTraceContext()
	tc.Baggage = map[string]string{"tenant": "acme", "tier": "gold"}
	req := newRequest(t, http.MethodGet, "https://api.example.com/x")

	engine.HandleStop(tc, req, newResponse(http.StatusOK), domain.StatusCompleted)

	records := sink.Records()
	require.Len(t, records, 1)
	assert.Equal(t, "acme", records[0].Properties["tenant"])
	assert.Equal(t, "gold", records[0].Properties["tier"])
}

func TestRealServerRoundTrip(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(RequestContextHeader, "appId=app-remote")
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	resolver := StaticResolver{testIkey: "app-local"}
	engine, sink := newTestEngine(testSettings(), resolver)
	tc := testTraceContext()

	req := newRequest(t, http.MethodGet, server.URL+"/jobs")
	engine.HandleStart(tc, req)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	engine.HandleStop(tc, req, resp, domain.StatusCompleted)

	records := sink.Records()
	require.Len(t, records, 1)
	assert.Equal(t, "202", records[0].ResultCode)
	assert.Contains(t, records[0].Target, "app-remote")
}
