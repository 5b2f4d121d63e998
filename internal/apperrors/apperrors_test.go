package apperrors

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorMessageIncludesWrappedError(t *testing.T) {
	wrapped := errors.New("boom")
	e := New(KindTransport, "fetch failed", wrapped)
	assert.Contains(t, e.Error(), "boom")
	assert.Contains(t, e.Error(), "fetch failed")
	assert.Equal(t, wrapped, errors.Unwrap(e))
}

func TestErrorMessageWithoutWrappedError(t *testing.T) {
	e := New(KindNotFound, "no such task", nil)
	assert.Equal(t, "not_found: no such task", e.Error())
}

func TestIsMatchesKind(t *testing.T) {
	e := New(KindTaskTimeout, "deadline exceeded", nil)
	assert.True(t, Is(e, KindTaskTimeout))
	assert.False(t, Is(e, KindTaskCancelled))
	assert.False(t, Is(errors.New("plain"), KindTaskTimeout))
}

func TestStatusFor(t *testing.T) {
	cases := map[Kind]int{
		KindNotFound:       http.StatusNotFound,
		KindInvalidInput:   http.StatusBadRequest,
		KindConfigInvalid:  http.StatusBadRequest,
		KindTaskTimeout:    http.StatusBadGateway,
		KindUpstreamServer: http.StatusBadGateway,
		KindTransport:      http.StatusBadGateway,
		KindStore:          http.StatusInternalServerError,
	}
	for kind, want := range cases {
		assert.Equal(t, want, StatusFor(kind), "kind=%s", kind)
	}
}

func TestWriteHTTPWritesEnvelope(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteHTTP(rec, http.StatusBadGateway, "upstream exploded")

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body HTTPErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "error", body.Status)
	assert.Equal(t, "upstream exploded", body.Message)
}
