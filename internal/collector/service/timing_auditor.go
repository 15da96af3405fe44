package service

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/getsentry/repro/internal/collector/bus"
	"github.com/getsentry/repro/internal/collector/model"
	"go.uber.org/zap"
)

const SpansReceivedTopic = "spans:received"

type Stats struct {
	Received          int64  `json:"received"`
	Client            int64  `json:"client"`
	Flagged           int64  `json:"flagged"`
	MinClientDuration string `json:"min_client_duration"`
}

// TimingAuditor flags client spans that finished faster than any real network
// exchange could.
type TimingAuditor struct {
	minClientDuration time.Duration
	received          atomic.Int64
	client            atomic.Int64
	flagged           atomic.Int64
	logger            *zap.Logger
}

func NewTimingAuditor(minClientDuration time.Duration, logger *zap.Logger) *TimingAuditor {
	return &TimingAuditor{
		minClientDuration: minClientDuration,
		logger:            logger,
	}
}

func (ta *TimingAuditor) Start(eventBus bus.TypedEventBus[model.SpansReceived]) error {
	if err := eventBus.Subscribe(SpansReceivedTopic, ta.Audit, false); err != nil {
		return fmt.Errorf("failed to start timing auditor: %w", err)
	}
	return nil
}

func (ta *TimingAuditor) Audit(input model.SpansReceived) error {
	ta.received.Add(int64(len(input.Spans)))
	for _, span := range input.Spans {
		if span.SpanKind != model.SpanKindClient {
			continue
		}
		ta.client.Add(1)
		if span.Duration() >= ta.minClientDuration {
			continue
		}
		ta.flagged.Add(1)
		ta.logger.Warn(
			"client span duration implausibly short",
			zap.String("trace_id", span.TraceID),
			zap.String("span_id", span.SpanID),
			zap.String("service_name", span.ServiceName),
			zap.String("action_name", span.ActionName),
			zap.Duration("duration", span.Duration()),
			zap.Duration("min_client_duration", ta.minClientDuration),
		)
	}
	return nil
}

func (ta *TimingAuditor) Stats() Stats {
	return Stats{
		Received:          ta.received.Load(),
		Client:            ta.client.Load(),
		Flagged:           ta.flagged.Load(),
		MinClientDuration: ta.minClientDuration.String(),
	}
}
