package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/getsentry/repro/internal/config"
	"github.com/getsentry/sentry-go"
	"github.com/sirupsen/logrus"
)

// FlushTimeout bounds how long shutdown waits for buffered events.
const FlushTimeout = 2 * time.Second

// NewClientOptions translates the harness configuration into sentry options.
func NewClientOptions(cfg config.SentryConfig) sentry.ClientOptions {
	return sentry.ClientOptions{
		Dsn:              cfg.DSN,
		Debug:            cfg.Debug,
		SendDefaultPII:   cfg.SendDefaultPII,
		EnableTracing:    cfg.TracesSampleRate > 0,
		TracesSampleRate: cfg.TracesSampleRate,
		Environment:      cfg.Environment,
		Release:          cfg.Release,
	}
}

// InitSentry binds a client built from options to the current hub and returns
// the flush function to defer. An empty DSN degrades to local-only processing.
func InitSentry(options sentry.ClientOptions, logger *logrus.Logger) (func(), error) {
	if options.Dsn == "" {
		logger.Warn("SENTRY_DSN not set. Set it to see events and traces in Sentry.")
	}
	if options.Debug && options.DebugWriter == nil {
		options.DebugWriter = logger.WriterLevel(logrus.DebugLevel)
	}
	if err := sentry.Init(options); err != nil {
		return nil, fmt.Errorf("sentry.Init: %w", err)
	}
	if options.Dsn != "" {
		logger.Infof("Sentry initialized with DSN: %s...", truncate(options.Dsn, 20))
	}

	return func() {
		if !sentry.Flush(FlushTimeout) {
			logger.Warn("Timed out flushing buffered Sentry events")
		}
	}, nil
}

// CaptureException reports err through the hub bound to ctx. ctx travels in the
// event hint so event processors can reach request state.
func CaptureException(ctx context.Context, err error) *sentry.EventID {
	hub := sentry.GetHubFromContext(ctx)
	if hub == nil {
		hub = sentry.CurrentHub()
	}
	client := hub.Client()
	if client == nil {
		return nil
	}
	return client.CaptureException(
		err,
		&sentry.EventHint{Context: ctx, OriginalException: err},
		hub.Scope(),
	)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
