package model

import "time"

const (
	SpanKindClient = "SPAN_KIND_CLIENT"
	SpanKindServer = "SPAN_KIND_SERVER"
)

type Span struct {
	SpanID       string            `json:"span_id"`
	ParentSpanID string            `json:"parent_span_id"`
	TraceID      string            `json:"trace_id"`
	ServiceName  string            `json:"service_name"`
	StartTime    time.Time         `json:"start_time"`
	EndTime      time.Time         `json:"end_time"`
	ActionName   string            `json:"action_name"`
	SpanKind     string            `json:"span_kind"`
	StatusCode   string            `json:"status_code"`
	Attributes   map[string]string `json:"attributes"` // Metadata like HTTP status and URL
	Events       []SpanEvent       `json:"events"`
}

type SpanEvent struct {
	Name       string            `json:"name"`
	Attributes map[string]string `json:"attributes"`
	Timestamp  time.Time         `json:"timestamp"`
}

func (s Span) Duration() time.Duration {
	return s.EndTime.Sub(s.StartTime)
}

// SpansReceived is published once per trace id for every export.
type SpansReceived struct {
	TraceID string `json:"trace_id"`
	Spans   []Span `json:"spans"`
}
