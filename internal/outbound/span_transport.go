package outbound

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/getsentry/repro/internal/monitor"
	"github.com/getsentry/sentry-go"
)

// SpanTransport records each outbound request as an http.client child span of
// the transaction carried by the request context. The span is finished when the
// response body is fully read or closed, so it covers the whole exchange.
// The wall-clock data on the span is left to the caller, see Client.Get.
type SpanTransport struct {
	base http.RoundTripper
}

func NewSpanTransport(base http.RoundTripper) *SpanTransport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &SpanTransport{base: base}
}

func (st *SpanTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	if sentry.TransactionFromContext(ctx) == nil {
		return st.base.RoundTrip(req)
	}

	span := sentry.StartSpan(
		ctx,
		monitor.OpHTTPClient,
		sentry.WithDescription(fmt.Sprintf("%s %s", req.Method, req.URL.String())),
	)
	span.SetData("http.request.method", req.Method)
	span.SetData("url", req.URL.String())
	registerCallSpan(ctx, span)

	outgoing := req.Clone(span.Context())
	outgoing.Header.Set(sentry.SentryTraceHeader, span.ToSentryTrace())

	resp, err := st.base.RoundTrip(outgoing)
	if err != nil {
		span.Status = sentry.SpanStatusInternalError
		span.Finish()
		return nil, err
	}

	span.Status = sentry.HTTPtoSpanStatus(resp.StatusCode)
	span.SetData("http.response.status_code", resp.StatusCode)
	resp.Body = &spanBody{
		ReadCloser: resp.Body,
		finish:     span.Finish,
	}
	return resp, nil
}

type callSpansKey struct{}

// callSpans collects the http.client spans opened while serving one Client.Get,
// one per hop when redirects are followed.
type callSpans struct {
	mu    sync.Mutex
	spans []*sentry.Span
}

func withCallSpans(ctx context.Context) (context.Context, *callSpans) {
	cs := &callSpans{}
	return context.WithValue(ctx, callSpansKey{}, cs), cs
}

func registerCallSpan(ctx context.Context, span *sentry.Span) {
	cs, ok := ctx.Value(callSpansKey{}).(*callSpans)
	if !ok {
		return
	}
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.spans = append(cs.spans, span)
}

// setWallClock attaches the caller's own measurement of the call to the final
// hop's span. The transaction is serialized only when it finishes, so this may
// run after the span itself has finished.
func (cs *callSpans) setWallClock(elapsed time.Duration) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	if len(cs.spans) == 0 {
		return
	}
	cs.spans[len(cs.spans)-1].SetData(monitor.WallClockDataKey, float64(elapsed)/float64(time.Millisecond))
}

type spanBody struct {
	io.ReadCloser
	once   sync.Once
	finish func()
}

func (sb *spanBody) Read(p []byte) (int, error) {
	n, err := sb.ReadCloser.Read(p)
	if err == io.EOF {
		sb.once.Do(sb.finish)
	}
	return n, err
}

func (sb *spanBody) Close() error {
	err := sb.ReadCloser.Close()
	sb.once.Do(sb.finish)
	return err
}
