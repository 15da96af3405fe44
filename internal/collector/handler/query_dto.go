package handler

import (
	"time"

	"github.com/getsentry/repro/internal/collector/model"
)

// SpanDTO represents a received span together with its duration
// @swagger:model SpanDTO
type SpanDTO struct {
	SpanID       string            `json:"span_id"`
	ParentSpanID string            `json:"parent_span_id"`
	TraceID      string            `json:"trace_id"`
	ServiceName  string            `json:"service_name"`
	ActionName   string            `json:"action_name"`
	SpanKind     string            `json:"span_kind"`
	StatusCode   string            `json:"status_code"`
	StartTime    time.Time         `json:"start_time"`
	EndTime      time.Time         `json:"end_time"`
	DurationMs   float64           `json:"duration_ms"`
	Attributes   map[string]string `json:"attributes,omitempty"`
}

// TraceResponseDTO lists every span cached for a trace
// @swagger:model TraceResponseDTO
type TraceResponseDTO struct {
	TraceID string    `json:"trace_id"`
	Spans   []SpanDTO `json:"spans"`
}

func mapSpanToDTO(span model.Span) SpanDTO {
	return SpanDTO{
		SpanID:       span.SpanID,
		ParentSpanID: span.ParentSpanID,
		TraceID:      span.TraceID,
		ServiceName:  span.ServiceName,
		ActionName:   span.ActionName,
		SpanKind:     span.SpanKind,
		StatusCode:   span.StatusCode,
		StartTime:    span.StartTime,
		EndTime:      span.EndTime,
		DurationMs:   float64(span.Duration()) / float64(time.Millisecond),
		Attributes:   span.Attributes,
	}
}
