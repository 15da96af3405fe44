package monitor

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/getsentry/repro/internal/async"
	"github.com/getsentry/repro/internal/auth"
	"github.com/getsentry/repro/internal/auth/mocks"
	"github.com/getsentry/repro/internal/config"
	"github.com/getsentry/sentry-go"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.uber.org/mock/gomock"
	"golang.org/x/crypto/bcrypt"
)

const testDSN = "http://whatever@example.com/1337"

type eventSink struct {
	mu     sync.Mutex
	events []*sentry.Event
}

func (es *eventSink) beforeSend(event *sentry.Event, hint *sentry.EventHint) *sentry.Event {
	es.mu.Lock()
	defer es.mu.Unlock()
	es.events = append(es.events, event)
	return event
}

func (es *eventSink) all() []*sentry.Event {
	es.mu.Lock()
	defer es.mu.Unlock()
	return append([]*sentry.Event(nil), es.events...)
}

func newHubWithUserIntegration(t *testing.T, pii bool, logger *logrus.Logger) (*sentry.Hub, *eventSink) {
	t.Helper()
	sink := &eventSink{}
	client, err := sentry.NewClient(sentry.ClientOptions{
		Dsn:            localIngestDSN(t),
		SendDefaultPII: pii,
		BeforeSend:     sink.beforeSend,
		Integrations: func(integrations []sentry.Integration) []sentry.Integration {
			return append(integrations, NewUserIntegration(logger))
		},
	})
	require.NoError(t, err)
	t.Cleanup(func() { client.Flush(time.Second) })
	return sentry.NewHub(client, sentry.NewScope()), sink
}

// localIngestDSN points the client at a throwaway ingest endpoint so events
// are really sent and CaptureException returns their id.
func localIngestDSN(t *testing.T) string {
	t.Helper()
	ingest := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(ingest.Close)
	u, err := url.Parse(ingest.URL)
	require.NoError(t, err)
	return "http://public@" + u.Host + "/1"
}

func newSessionStore(t *testing.T) (*auth.SQLiteStore, string) {
	t.Helper()
	logger, _ := test.NewNullLogger()
	store, err := auth.OpenSQLiteStore(":memory:", logger, auth.WithHashCost(bcrypt.MinCost))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	ctx := context.Background()
	require.NoError(t, store.Migrate(ctx))
	user, err := store.CreateUser(ctx, auth.NewUser{Username: "admin", Email: "admin@example.com", Password: "pw"})
	require.NoError(t, err)
	key, err := store.CreateSession(ctx, user.ID)
	require.NoError(t, err)
	return store, key
}

func TestUserIntegration(t *testing.T) {
	captured := errors.New("Test error to trigger Sentry capture")

	t.Run("Logs a SynchronousOnlyOperation error when read from an event-loop task", func(t *testing.T) {
		logger, hook := test.NewNullLogger()
		hub, sink := newHubWithUserIntegration(t, true, logger)
		store, key := newSessionStore(t)

		ctx := auth.WithUser(context.Background(), auth.NewLazyUser(store, key))
		ctx = async.WithEventLoop(sentry.SetHubOnContext(ctx, hub))
		eventID := CaptureException(ctx, captured)
		require.NotNil(t, eventID)

		events := sink.all()
		require.Len(t, events, 1)
		assert.Empty(t, events[0].User.Username)

		entry := hook.LastEntry()
		require.NotNil(t, entry)
		assert.Equal(t, logrus.ErrorLevel, entry.Level)
		err, ok := entry.Data[logrus.ErrorKey].(error)
		require.True(t, ok)
		assert.ErrorIs(t, err, async.ErrSynchronousOnly)
	})

	t.Run("Attaches the user when read outside the event loop", func(t *testing.T) {
		logger, hook := test.NewNullLogger()
		hub, sink := newHubWithUserIntegration(t, true, logger)
		store, key := newSessionStore(t)

		ctx := auth.WithUser(context.Background(), auth.NewLazyUser(store, key))
		ctx = sentry.SetHubOnContext(ctx, hub)
		require.NotNil(t, CaptureException(ctx, captured))

		events := sink.all()
		require.Len(t, events, 1)
		assert.Equal(t, "admin", events[0].User.Username)
		assert.Equal(t, "admin@example.com", events[0].User.Email)
		assert.Empty(t, hook.AllEntries())
	})

	t.Run("Does not touch the user when PII is disabled", func(t *testing.T) {
		logger, _ := test.NewNullLogger()
		hub, sink := newHubWithUserIntegration(t, false, logger)
		ctrl := gomock.NewController(t)
		store := mocks.NewMockStore(ctrl)

		ctx := auth.WithUser(context.Background(), auth.NewLazyUser(store, "key"))
		ctx = async.WithEventLoop(sentry.SetHubOnContext(ctx, hub))
		require.NotNil(t, CaptureException(ctx, captured))
		assert.Len(t, sink.all(), 1)
	})

	t.Run("Leaves anonymous requests without user data", func(t *testing.T) {
		logger, hook := test.NewNullLogger()
		hub, sink := newHubWithUserIntegration(t, true, logger)
		ctrl := gomock.NewController(t)
		store := mocks.NewMockStore(ctrl)

		ctx := auth.WithUser(context.Background(), auth.NewLazyUser(store, ""))
		ctx = async.WithEventLoop(sentry.SetHubOnContext(ctx, hub))
		require.NotNil(t, CaptureException(ctx, captured))

		events := sink.all()
		require.Len(t, events, 1)
		assert.Empty(t, events[0].User.ID)
		assert.Empty(t, hook.AllEntries())
	})
}

func TestCaptureException(t *testing.T) {
	t.Run("Returns nil when no client is bound", func(t *testing.T) {
		hub := sentry.NewHub(nil, sentry.NewScope())
		ctx := sentry.SetHubOnContext(context.Background(), hub)
		assert.Nil(t, CaptureException(ctx, errors.New("x")))
	})

	t.Run("Returns the id of the event that was sent", func(t *testing.T) {
		logger, _ := test.NewNullLogger()
		hub, sink := newHubWithUserIntegration(t, false, logger)
		ctx := sentry.SetHubOnContext(context.Background(), hub)

		eventID := CaptureException(ctx, errors.New("x"))
		require.NotNil(t, eventID)
		events := sink.all()
		require.Len(t, events, 1)
		assert.Equal(t, *eventID, events[0].EventID)
	})
}

func TestNewClientOptions(t *testing.T) {
	t.Run("Enables tracing only with a positive sample rate", func(t *testing.T) {
		opts := NewClientOptions(config.SentryConfig{DSN: testDSN, TracesSampleRate: 1.0, SendDefaultPII: true})
		assert.True(t, opts.EnableTracing)
		assert.True(t, opts.SendDefaultPII)
		assert.Equal(t, testDSN, opts.Dsn)

		opts = NewClientOptions(config.SentryConfig{TracesSampleRate: 0})
		assert.False(t, opts.EnableTracing)
	})
}

func TestSameOrderOfMagnitude(t *testing.T) {
	cases := []struct {
		name     string
		recorded time.Duration
		measured time.Duration
		want     bool
	}{
		{"equal", time.Second, time.Second, true},
		{"slightly shorter", 900 * time.Millisecond, time.Second, true},
		{"sub-millisecond against a second", 500 * time.Microsecond, time.Second, false},
		{"ten times longer", 10 * time.Second, time.Second, true},
		{"far longer", 20 * time.Second, time.Second, false},
		{"no measurement", 0, 0, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, SameOrderOfMagnitude(tc.recorded, tc.measured))
		})
	}
}

func clientSpan(recorded time.Duration, wallMs interface{}) *sentry.Span {
	start := time.Now()
	span := &sentry.Span{
		Op:          OpHTTPClient,
		Description: "GET https://httpbin.org/delay/1",
		StartTime:   start,
		EndTime:     start.Add(recorded),
	}
	if wallMs != nil {
		span.Data = map[string]interface{}{WallClockDataKey: wallMs}
	}
	return span
}

func TestCheckSpanTiming(t *testing.T) {
	t.Run("Reports a plausible span", func(t *testing.T) {
		report, ok := CheckSpanTiming(clientSpan(time.Second, float64(1003)))
		require.True(t, ok)
		assert.True(t, report.Plausible)
		assert.Equal(t, time.Second, report.Recorded)
		assert.Equal(t, 1003*time.Millisecond, report.WallClock)
	})

	t.Run("Flags a span shorter than a millisecond for a one second call", func(t *testing.T) {
		report, ok := CheckSpanTiming(clientSpan(300*time.Microsecond, int64(1000)))
		require.True(t, ok)
		assert.False(t, report.Plausible)
	})

	t.Run("Skips spans without a wall-clock measurement", func(t *testing.T) {
		_, ok := CheckSpanTiming(clientSpan(time.Second, nil))
		assert.False(t, ok)
	})
}

func TestSpanReporter(t *testing.T) {
	t.Run("Logs each client span and warns on implausible ones", func(t *testing.T) {
		logger, hook := test.NewNullLogger()
		reporter := NewSpanReporter(logger)
		start := time.Now()
		event := &sentry.Event{
			Type:        "transaction",
			Transaction: "GET /multiple-requests",
			StartTime:   start,
			Timestamp:   start.Add(3 * time.Second),
			Spans: []*sentry.Span{
				clientSpan(time.Second, float64(1000)),
				clientSpan(200*time.Microsecond, float64(1000)),
				{Op: "middleware.handle", StartTime: start, EndTime: start},
			},
		}

		out := reporter.BeforeSendTransaction(event, &sentry.EventHint{})
		assert.Same(t, event, out)

		reports := reporter.Reports()
		require.Len(t, reports, 2)
		assert.True(t, reports[0].Plausible)
		assert.False(t, reports[1].Plausible)

		var warnings int
		for _, entry := range hook.AllEntries() {
			if entry.Level == logrus.WarnLevel {
				warnings++
			}
		}
		assert.Equal(t, 1, warnings)
	})

	t.Run("Summarizes every report when the run ends", func(t *testing.T) {
		logger, hook := test.NewNullLogger()
		reporter := NewSpanReporter(logger)
		for i := 0; i < maxReports+5; i++ {
			reporter.BeforeSendTransaction(&sentry.Event{
				Type:  "transaction",
				Spans: []*sentry.Span{clientSpan(200*time.Microsecond, float64(1000))},
			}, nil)
		}
		assert.Len(t, reporter.Reports(), maxReports)
		assert.Equal(t, TimingSummary{Checked: maxReports + 5, Implausible: maxReports + 5}, reporter.Summary())

		reporter.LogSummary()
		entry := hook.LastEntry()
		assert.Equal(t, logrus.WarnLevel, entry.Level)
		assert.Equal(t, maxReports+5, entry.Data["checked"])
		assert.Equal(t, maxReports+5, entry.Data["implausible"])
		assert.EqualValues(t, 1000, entry.Data["last_wall_clock_ms"])
	})

	t.Run("Logs an empty summary at info level", func(t *testing.T) {
		logger, hook := test.NewNullLogger()
		NewSpanReporter(logger).LogSummary()
		assert.Equal(t, logrus.InfoLevel, hook.LastEntry().Level)
		assert.Equal(t, 0, hook.LastEntry().Data["checked"])
	})
}

func TestInitTracer(t *testing.T) {
	t.Run("Installs an in-process provider without an endpoint", func(t *testing.T) {
		logger, _ := test.NewNullLogger()
		tp, err := InitTracer(context.Background(), config.OtelConfig{ServiceName: "test"}, logger)
		require.NoError(t, err)
		defer func() { _ = tp.Shutdown(context.Background()) }()
		assert.Same(t, tp, otel.GetTracerProvider())
	})
}
