package monitor

import (
	"sync"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/sirupsen/logrus"
)

const (
	OpHTTPClient     = "http.client"
	WallClockDataKey = "http.wall_clock_ms"

	// Durations further apart than this factor are a different order of magnitude.
	magnitudeFactor = 10
	maxReports      = 100
)

// TimingReport compares the duration sentry recorded for a span with the
// wall-clock time the caller measured around the same call.
type TimingReport struct {
	Op          string
	Description string
	Recorded    time.Duration
	WallClock   time.Duration
	Plausible   bool
}

// SameOrderOfMagnitude reports whether recorded and measured are within a factor of ten.
func SameOrderOfMagnitude(recorded time.Duration, measured time.Duration) bool {
	if measured <= 0 {
		return true
	}
	return recorded*magnitudeFactor >= measured && recorded <= measured*magnitudeFactor
}

// CheckSpanTiming builds the report for span. ok is false when the span carries
// no wall-clock measurement.
func CheckSpanTiming(span *sentry.Span) (report TimingReport, ok bool) {
	wall, ok := wallClock(span.Data[WallClockDataKey])
	if !ok {
		return TimingReport{}, false
	}
	recorded := span.EndTime.Sub(span.StartTime)
	return TimingReport{
		Op:          span.Op,
		Description: span.Description,
		Recorded:    recorded,
		WallClock:   wall,
		Plausible:   SameOrderOfMagnitude(recorded, wall),
	}, true
}

func wallClock(value interface{}) (time.Duration, bool) {
	switch ms := value.(type) {
	case float64:
		return time.Duration(ms * float64(time.Millisecond)), true
	case int64:
		return time.Duration(ms) * time.Millisecond, true
	case int:
		return time.Duration(ms) * time.Millisecond, true
	default:
		return 0, false
	}
}

// SpanReporter logs the http.client spans of every outgoing transaction and
// keeps the most recent timing reports.
type SpanReporter struct {
	logger  *logrus.Logger
	mu      sync.Mutex
	reports []TimingReport
	summary TimingSummary
}

// TimingSummary counts every report seen since start, including those that
// have rotated out of the recent buffer.
type TimingSummary struct {
	Checked     int
	Implausible int
}

func NewSpanReporter(logger *logrus.Logger) *SpanReporter {
	return &SpanReporter{logger: logger}
}

// BeforeSendTransaction is installed as sentry.ClientOptions.BeforeSendTransaction.
func (sr *SpanReporter) BeforeSendTransaction(event *sentry.Event, hint *sentry.EventHint) *sentry.Event {
	sr.logger.WithFields(logrus.Fields{
		"transaction": event.Transaction,
		"duration_ms": event.Timestamp.Sub(event.StartTime).Milliseconds(),
		"spans":       len(event.Spans),
	}).Info("Sending transaction")

	for _, span := range event.Spans {
		if span.Op != OpHTTPClient {
			continue
		}
		report, ok := CheckSpanTiming(span)
		if !ok {
			continue
		}
		sr.record(report)

		entry := sr.logger.WithFields(logrus.Fields{
			"span":           report.Description,
			"recorded_ms":    report.Recorded.Milliseconds(),
			"wall_clock_ms":  report.WallClock.Milliseconds(),
			"same_magnitude": report.Plausible,
			"transaction":    event.Transaction,
		})
		if report.Plausible {
			entry.Info("http.client span timing")
		} else {
			entry.Warn("http.client span duration implausibly short for the measured wall-clock time")
		}
	}
	return event
}

func (sr *SpanReporter) record(report TimingReport) {
	sr.mu.Lock()
	defer sr.mu.Unlock()
	sr.summary.Checked++
	if !report.Plausible {
		sr.summary.Implausible++
	}
	sr.reports = append(sr.reports, report)
	if len(sr.reports) > maxReports {
		sr.reports = sr.reports[len(sr.reports)-maxReports:]
	}
}

// Reports returns a copy of the recorded timing reports, oldest first.
func (sr *SpanReporter) Reports() []TimingReport {
	sr.mu.Lock()
	defer sr.mu.Unlock()
	out := make([]TimingReport, len(sr.reports))
	copy(out, sr.reports)
	return out
}

func (sr *SpanReporter) Summary() TimingSummary {
	sr.mu.Lock()
	defer sr.mu.Unlock()
	return sr.summary
}

// LogSummary logs the totals and the latest report. The server calls it on
// shutdown so the outcome of a run is visible without scrolling the per-span logs.
func (sr *SpanReporter) LogSummary() {
	summary := sr.Summary()
	fields := logrus.Fields{
		"checked":     summary.Checked,
		"implausible": summary.Implausible,
	}
	if reports := sr.Reports(); len(reports) > 0 {
		last := reports[len(reports)-1]
		fields["last_span"] = last.Description
		fields["last_recorded_ms"] = last.Recorded.Milliseconds()
		fields["last_wall_clock_ms"] = last.WallClock.Milliseconds()
	}
	entry := sr.logger.WithFields(fields)
	if summary.Implausible > 0 {
		entry.Warn("http.client span timing summary: implausible durations recorded")
		return
	}
	entry.Info("http.client span timing summary")
}
