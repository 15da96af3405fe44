package outbound

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/trace"
)

// CallResult describes one completed outbound call.
type CallResult struct {
	URL        string
	StatusCode int
	Elapsed    time.Duration
}

// NewInstrumentedTransport wraps base with the sentry span transport and the
// OTel client transport.
func NewInstrumentedTransport(base http.RoundTripper, tp trace.TracerProvider) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	return NewSpanTransport(otelhttp.NewTransport(base, otelhttp.WithTracerProvider(tp)))
}

// Client performs blocking GETs against the slow remote endpoint. There is no
// timeout and no retry.
type Client struct {
	httpClient *http.Client
	url        string
	logger     *logrus.Logger
}

func NewClient(url string, transport http.RoundTripper, logger *logrus.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Transport: transport},
		url:        url,
		logger:     logger,
	}
}

func (c *Client) URL() string {
	return c.url
}

// Get calls the remote endpoint once and reads the whole response body. The
// elapsed time it measures is also attached to the call's http.client span as
// the wall-clock reference for timing checks.
func (c *Client) Get(ctx context.Context) (CallResult, error) {
	ctx, spans := withCallSpans(ctx)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return CallResult{}, fmt.Errorf("unable to build request for %s: %w", c.url, err)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		spans.setWallClock(time.Since(start))
		return CallResult{}, fmt.Errorf("outbound call to %s failed: %w", c.url, err)
	}
	defer func(Body io.ReadCloser) {
		if err := Body.Close(); err != nil {
			c.logger.Errorf("Error encountered when closing response body %v", err)
		}
	}(resp.Body)

	if _, err := io.Copy(io.Discard, resp.Body); err != nil {
		spans.setWallClock(time.Since(start))
		return CallResult{}, fmt.Errorf("unable to read response from %s: %w", c.url, err)
	}
	elapsed := time.Since(start)
	spans.setWallClock(elapsed)

	c.logger.WithFields(logrus.Fields{
		"url":        c.url,
		"status":     resp.StatusCode,
		"elapsed_ms": elapsed.Milliseconds(),
	}).Info("Outbound call completed")

	return CallResult{URL: c.url, StatusCode: resp.StatusCode, Elapsed: elapsed}, nil
}
