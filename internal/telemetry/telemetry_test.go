package telemetry

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/italolelis/enadl/internal/logctx"
)

func newEnabled(t *testing.T) *Telemetry {
	t.Helper()

	tel, err := New(context.Background(), Config{Enabled: true, ServiceName: "enadl-test", ServiceVersion: "test"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = tel.Shutdown(context.Background()) })

	return tel
}

func scrape(t *testing.T, tel *Telemetry) string {
	t.Helper()

	rec := httptest.NewRecorder()
	tel.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	return rec.Body.String()
}

func TestNilTelemetryIsSafe(t *testing.T) {
	var tel *Telemetry

	assert.NotPanics(t, func() {
		tel.RecordFile("OK", time.Second)
		tel.RecordBytes(10)
		tel.RecordChecksum("pass")
		tel.RecordRunComplete(false)
		tel.IncrementActiveFiles()
		tel.DecrementActiveFiles()
		_ = tel.Shutdown(context.Background())
		_ = tel.Meter()
	})

	assert.Nil(t, tel.LogHandler("enadl"))

	called := false
	err := tel.InstrumentStoreOperation(context.Background(), "tsv", "record", func(context.Context) error {
		called = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, called)

	rec := httptest.NewRecorder()
	tel.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDisabledTelemetryRecordsNothing(t *testing.T) {
	tel, err := New(context.Background(), Config{Enabled: false})
	require.NoError(t, err)

	status := tel.InstrumentFile(context.Background(), func(context.Context) string { return "OK" })
	assert.Equal(t, "OK", status)
}

func TestEnabledTelemetryExportsDownloadMetrics(t *testing.T) {
	tel := newEnabled(t)

	tel.InstrumentFile(context.Background(), func(context.Context) string { return "OK" })
	tel.RecordBytes(1024)
	tel.RecordChecksum("fail")
	tel.RecordRunComplete(true)

	err := tel.InstrumentStoreOperation(context.Background(), "sqlite", "record", func(context.Context) error {
		return errors.New("disk full")
	})
	require.Error(t, err)

	body := scrape(t, tel)
	assert.Contains(t, body, "files_total")
	assert.Contains(t, body, "bytes_downloaded")
	assert.Contains(t, body, "checksum_verifications_total")
	assert.Contains(t, body, "store_operations_total")
	assert.Contains(t, body, "runs_completed_total")
}

func TestMiddlewareChain(t *testing.T) {
	tel := newEnabled(t)

	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(logctx.WithLogger(req.Context(), logger)))
		})
	})
	r.Use(RequestID, HTTPLogging, NewHTTPMiddleware(tel).Middleware)
	r.Get("/api/rows/{run}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = io.WriteString(w, "short and stout")
	})

	req := httptest.NewRequest(http.MethodGet, "/api/rows/SRR1", nil)
	req.Header.Set(RequestIDHeader, "req-123")

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, "req-123", rec.Header().Get(RequestIDHeader))
	assert.Contains(t, buf.String(), `"request_id":"req-123"`)
	assert.Contains(t, buf.String(), `"level":"WARN"`)
	assert.Contains(t, scrape(t, tel), "http_requests_total")
}

func TestRequestIDGeneratedWhenMissing(t *testing.T) {
	var seen string

	h := RequestID(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.NotEmpty(t, seen)
	assert.Equal(t, seen, rec.Header().Get(RequestIDHeader))
}

func TestGetStatusClass(t *testing.T) {
	assert.Equal(t, "2xx", getStatusClass(http.StatusNoContent))
	assert.Equal(t, "3xx", getStatusClass(http.StatusFound))
	assert.Equal(t, "4xx", getStatusClass(http.StatusNotFound))
	assert.Equal(t, "5xx", getStatusClass(http.StatusBadGateway))
	assert.Equal(t, "unknown", getStatusClass(100))
}
