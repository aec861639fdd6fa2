package log

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	Configure(Config{Output: &buf, Level: "debug"})
	t.Cleanup(func() { Configure(Config{}) })
	return &buf
}

func TestRequestIDContext(t *testing.T) {
	tests := []struct {
		name string
		ctx  context.Context
		id   string
	}{
		{"nil context", nil, "req-1"},
		{"background", context.Background(), "req-2"},
		{"empty id", context.Background(), ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := ContextWithRequestID(tt.ctx, tt.id)
			assert.Equal(t, tt.id, RequestIDFromContext(ctx))
		})
	}
	assert.Empty(t, RequestIDFromContext(nil))
}

func TestWithComponentFromContext(t *testing.T) {
	buf := captureLogs(t)

	ctx := ContextWithRequestID(context.Background(), "abc")
	l := WithComponentFromContext(ctx, "timetable")
	l.Info().Msg("hello")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "abc", entry[FieldRequestID])
	assert.Equal(t, "timetable", entry[FieldComponent])
	assert.Equal(t, "arematv", entry["service"])
}

func TestMiddleware_AssignsRequestIDAndLogs(t *testing.T) {
	buf := captureLogs(t)

	var seen string
	h := Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/series", nil))

	require.NotEmpty(t, seen)
	assert.Equal(t, seen, rec.Header().Get(RequestIDHeader))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "warn", entry["level"])
	assert.Equal(t, float64(http.StatusTeapot), entry["status"])
	assert.Equal(t, "/api/series", entry["path"])
}

func TestMiddleware_KeepsIncomingRequestID(t *testing.T) {
	captureLogs(t)

	h := Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "client-id")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, "client-id", rec.Header().Get(RequestIDHeader))
}
