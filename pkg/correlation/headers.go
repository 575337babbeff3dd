// Package correlation implements the dependency-correlation core: the
// cross-process header codec, the application-identity resolver, the
// pending-call and exception registries, and the engine that turns outbound
// call lifecycle events into exactly one completed dependency record per
// call.
package correlation

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
)

// Cross-process correlation headers. Values are header-encoded strings;
// multi-valued headers are comma-separated key=value pairs.
const (
	// RequestContextHeader carries application identity across a call.
	// The caller writes its own app id into the request copy; the callee
	// writes its app id into the response copy.
	RequestContextHeader = "Request-Context"

	// RequestContextAppIDKey is the well-known Request-Context subkey for
	// an application id, on both the request (source) and response
	// (target) side.
	RequestContextAppIDKey = "appId"

	// RequestIDHeader carries the opaque call id to callees that predate
	// W3C trace context.
	RequestIDHeader = "Request-Id"

	// CorrelationContextHeader carries baggage as key=value pairs.
	CorrelationContextHeader = "Correlation-Context"

	// Legacy two-header scheme, written only in compatibility mode for
	// callees that understand nothing newer.
	RootIDHeader   = "x-ms-request-root-id"
	ParentIDHeader = "x-ms-request-id"
)

// parseKeyValueHeader splits a comma-separated key=value header into a map.
// Malformed segments (no '=', empty key) are skipped rather than failing the
// whole header; whitespace around keys and values is trimmed.
func parseKeyValueHeader(value string) map[string]string {
	pairs := make(map[string]string)
	for _, segment := range strings.Split(value, ",") {
		segment = strings.TrimSpace(segment)
		if segment == "" {
			continue
		}
		eq := strings.Index(segment, "=")
		if eq <= 0 {
			continue
		}
		key := strings.TrimSpace(segment[:eq])
		if key == "" {
			continue
		}
		pairs[key] = strings.TrimSpace(segment[eq+1:])
	}
	return pairs
}

// encodeKeyValueHeader renders pairs as a comma-separated key=value header
// value with deterministic (sorted) key order.
func encodeKeyValueHeader(pairs map[string]string) string {
	if len(pairs) == 0 {
		return ""
	}
	keys := make([]string, 0, len(pairs))
	for k := range pairs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteString(",")
		}
		b.WriteString(k)
		b.WriteString("=")
		b.WriteString(pairs[k])
	}
	return b.String()
}

// headerKeyValue reads the named subkey out of a key=value header. It
// returns an error when the header is present but carries no usable pairs,
// so callers can log the malformed value before falling back.
func headerKeyValue(h http.Header, header, key string) (string, error) {
	raw := h.Get(header)
	if raw == "" {
		return "", nil
	}
	pairs := parseKeyValueHeader(raw)
	if len(pairs) == 0 {
		return "", fmt.Errorf("header %s: malformed value %q", header, raw)
	}
	return pairs[key], nil
}

// setHeaderKeyValue adds key=value to a key=value header, preserving pairs
// already present. An existing value for key is never overwritten.
func setHeaderKeyValue(h http.Header, header, key, value string) {
	pairs := parseKeyValueHeader(h.Get(header))
	if _, exists := pairs[key]; exists {
		return
	}
	pairs[key] = value
	h.Set(header, encodeKeyValueHeader(pairs))
}

// SourceAppID reads the application id the caller stamped on a request.
func SourceAppID(h http.Header) (string, error) {
	return headerKeyValue(h, RequestContextHeader, RequestContextAppIDKey)
}

// SetSourceAppID stamps the caller's application id on an outbound request
// unless one is already present.
func SetSourceAppID(h http.Header, appID string) {
	setHeaderKeyValue(h, RequestContextHeader, RequestContextAppIDKey, appID)
}

// TargetAppID reads the application id the callee stamped on a response.
func TargetAppID(h http.Header) (string, error) {
	return headerKeyValue(h, RequestContextHeader, RequestContextAppIDKey)
}

// SetRequestID writes the legacy call-id header unless already present.
func SetRequestID(h http.Header, callID string) {
	if h.Get(RequestIDHeader) == "" {
		h.Set(RequestIDHeader, callID)
	}
}

// SetBaggage encodes baggage onto the Correlation-Context header unless the
// caller already set one. Empty baggage writes nothing.
func SetBaggage(h http.Header, baggage map[string]string) {
	if len(baggage) == 0 || h.Get(CorrelationContextHeader) != "" {
		return
	}
	h.Set(CorrelationContextHeader, encodeKeyValueHeader(baggage))
}

// ParseBaggage decodes the Correlation-Context header into key/value pairs.
func ParseBaggage(h http.Header) map[string]string {
	raw := h.Get(CorrelationContextHeader)
	if raw == "" {
		return nil
	}
	return parseKeyValueHeader(raw)
}

// SetLegacyIDs mirrors the trace id and call id into the old two-header
// scheme for callees that only understand it. Existing values win.
func SetLegacyIDs(h http.Header, rootID, parentID string) {
	if h.Get(RootIDHeader) == "" && rootID != "" {
		h.Set(RootIDHeader, rootID)
	}
	if h.Get(ParentIDHeader) == "" && parentID != "" {
		h.Set(ParentIDHeader, parentID)
	}
}
