package dispatch

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deptrack/deptrack/pkg/domain"
)

type samplePayload struct {
	Request *http.Request
	Count   int
	hidden  string //nolint:unused // exercises the unexported-field path
}

func TestFetchField(t *testing.T) {
	req := &http.Request{}
	payload := samplePayload{Request: req, Count: 7}

	// Repeated access exercises the cached path.
	for i := 0; i < 3; i++ {
		raw, ok := fetchField(payload, "Request")
		require.True(t, ok)
		assert.Same(t, req, raw)

		raw, ok = fetchField(&payload, "Count")
		require.True(t, ok)
		assert.Equal(t, 7, raw)
	}
}

func TestFetchFieldMissing(t *testing.T) {
	_, ok := fetchField(samplePayload{}, "Nope")
	assert.False(t, ok)

	_, ok = fetchField(samplePayload{}, "hidden")
	assert.False(t, ok)

	_, ok = fetchField("not a struct", "Request")
	assert.False(t, ok)

	_, ok = fetchField((*samplePayload)(nil), "Request")
	assert.False(t, ok)
}

func TestFieldTypeMismatch(t *testing.T) {
	type wrongShape struct {
		Request string
	}

	_, err := field[*http.Request](wrongShape{Request: "oops"}, EventStart, "Request", true)
	require.NotNil(t, err)
	assert.Equal(t, EventStart, err.Event)
	assert.Equal(t, "Request", err.Field)
	assert.Contains(t, err.Error(), "unexpected type")
}

func TestFieldOptionalAbsent(t *testing.T) {
	type bare struct{}

	resp, err := field[*http.Response](bare{}, EventStop, "Response", false)
	require.Nil(t, err)
	assert.Nil(t, resp)

	_, err = field[*http.Response](bare{}, EventStop, "Response", true)
	require.NotNil(t, err)
}

func TestStatusField(t *testing.T) {
	type withString struct{ Status string }
	type withTyped struct{ Status domain.CompletionStatus }
	type withInt struct{ Status int }

	status, err := statusField(withString{Status: "Canceled"}, EventStop)
	require.Nil(t, err)
	assert.Equal(t, domain.StatusCanceled, status)

	status, err = statusField(withTyped{Status: domain.StatusFaulted}, EventStop)
	require.Nil(t, err)
	assert.Equal(t, domain.StatusFaulted, status)

	_, err = statusField(withString{Status: "Exploded"}, EventStop)
	require.NotNil(t, err)
	assert.Contains(t, err.Error(), "unparsable")

	_, err = statusField(withInt{Status: 3}, EventStop)
	require.NotNil(t, err)
}
