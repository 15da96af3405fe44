package router

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/asaskevich/EventBus"
	"github.com/getsentry/repro/internal/collector/bus"
	"github.com/getsentry/repro/internal/collector/cache"
	"github.com/getsentry/repro/internal/collector/handler"
	"github.com/getsentry/repro/internal/collector/model"
	"github.com/getsentry/repro/internal/collector/server"
	"github.com/getsentry/repro/internal/collector/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type collector struct {
	srv      *httptest.Server
	eventBus bus.TypedEventBus[model.SpansReceived]
	logs     *observer.ObservedLogs
}

func newCollector(t *testing.T) *collector {
	t.Helper()
	core, logs := observer.New(zapcore.InfoLevel)
	logger := zap.New(core)

	rc, err := cache.NewRistretto(1 << 10)
	require.NoError(t, err)
	spanCache := cache.NewSpanCacheImpl[model.Span](rc)
	t.Cleanup(spanCache.Close)

	eventBus := bus.NewTypedEventBus[model.SpansReceived](EventBus.New(), logger)
	auditor := service.NewTimingAuditor(time.Millisecond, logger)
	require.NoError(t, auditor.Start(eventBus))
	traceServer := server.NewTraceServiceServerImpl(logger, spanCache, eventBus)

	srv := httptest.NewServer(CreateRouter(traceServer, spanCache, auditor, logger))
	t.Cleanup(srv.Close)
	return &collector{srv: srv, eventBus: eventBus, logs: logs}
}

func (c *collector) getJSON(t *testing.T, path string, out interface{}) int {
	t.Helper()
	resp, err := http.Get(c.srv.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusOK {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func exportClientSpan(t *testing.T, endpoint string, duration time.Duration) trace.SpanContext {
	t.Helper()
	ctx := context.Background()
	exporter, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpointURL(endpoint+"/v1/traces"))
	require.NoError(t, err)
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	t.Cleanup(func() { _ = tp.Shutdown(ctx) })

	start := time.Now()
	_, span := tp.Tracer("collector-test").Start(
		ctx, "GET",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithTimestamp(start),
	)
	span.End(trace.WithTimestamp(start.Add(duration)))
	require.NoError(t, tp.ForceFlush(ctx))
	return span.SpanContext()
}

func TestCollector_OTLPHTTP(t *testing.T) {
	c := newCollector(t)

	fast := exportClientSpan(t, c.srv.URL, 30*time.Microsecond)
	slow := exportClientSpan(t, c.srv.URL, 250*time.Millisecond)
	c.eventBus.WaitAsync()

	t.Run("Serves the spans of a trace with their duration", func(t *testing.T) {
		var res handler.TraceResponseDTO
		require.Equal(t, http.StatusOK, c.getJSON(t, "/traces/"+slow.TraceID().String(), &res))
		require.Len(t, res.Spans, 1)
		assert.Equal(t, slow.SpanID().String(), res.Spans[0].SpanID)
		assert.Equal(t, model.SpanKindClient, res.Spans[0].SpanKind)
		assert.InDelta(t, 250.0, res.Spans[0].DurationMs, 0.001)
	})

	t.Run("Flags the implausibly short client span", func(t *testing.T) {
		var stats service.Stats
		require.Equal(t, http.StatusOK, c.getJSON(t, "/stats", &stats))
		assert.Equal(t, int64(2), stats.Client)
		assert.Equal(t, int64(1), stats.Flagged)

		entries := c.logs.FilterMessage("client span duration implausibly short").All()
		require.Len(t, entries, 1)
		assert.Equal(t, fast.TraceID().String(), entries[0].ContextMap()["trace_id"])
	})

	t.Run("Answers 404 for an unknown trace", func(t *testing.T) {
		var res handler.TraceResponseDTO
		assert.Equal(t, http.StatusNotFound, c.getJSON(t, "/traces/ffffffffffffffffffffffffffffffff", &res))
	})
}

func TestCollector_OTLPJSON(t *testing.T) {
	c := newCollector(t)

	t.Run("Accepts a JSON export request", func(t *testing.T) {
		resp, err := http.Post(c.srv.URL+"/v1/traces", "application/json", bytes.NewBufferString(`{"resourceSpans":[]}`))
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	})

	t.Run("Rejects an invalid JSON body", func(t *testing.T) {
		resp, err := http.Post(c.srv.URL+"/v1/traces", "application/json", bytes.NewBufferString(`{"resourceSpans":`))
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("Rejects other content types", func(t *testing.T) {
		resp, err := http.Post(c.srv.URL+"/v1/traces", "text/plain", bytes.NewBufferString("spans"))
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusUnsupportedMediaType, resp.StatusCode)
	})
}
