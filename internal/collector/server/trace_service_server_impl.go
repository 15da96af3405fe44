package server

import (
	"context"
	"encoding/hex"
	"strconv"
	"time"

	"github.com/getsentry/repro/internal/collector/bus"
	"github.com/getsentry/repro/internal/collector/cache"
	"github.com/getsentry/repro/internal/collector/model"
	"github.com/getsentry/repro/internal/collector/service"
	protoTrace "go.opentelemetry.io/proto/otlp/collector/trace/v1"
	commonv1 "go.opentelemetry.io/proto/otlp/common/v1"
	v1 "go.opentelemetry.io/proto/otlp/trace/v1"
	"go.uber.org/zap"
)

const unknownServiceName = "Never Assigned"

type TraceServiceServerImpl struct {
	protoTrace.UnimplementedTraceServiceServer
	logger    *zap.Logger
	spanCache cache.SpanCache[model.Span]
	eventBus  bus.TypedEventBus[model.SpansReceived]
}

func NewTraceServiceServerImpl(
	logger *zap.Logger,
	spanCache cache.SpanCache[model.Span],
	eventBus bus.TypedEventBus[model.SpansReceived],
) *TraceServiceServerImpl {
	logger.Info("Creating new TraceServiceServerImpl")
	return &TraceServiceServerImpl{
		logger:    logger,
		spanCache: spanCache,
		eventBus:  eventBus,
	}
}

// Export caches the received spans per trace id and announces them on the event
// bus. Cache failures are logged and never reject the export.
func (tss *TraceServiceServerImpl) Export(
	ctx context.Context,
	req *protoTrace.ExportTraceServiceRequest,
) (*protoTrace.ExportTraceServiceResponse, error) {
	for _, resourceSpan := range req.ResourceSpans {
		serviceName := getServiceName(resourceSpan)
		if serviceName == unknownServiceName {
			tss.logger.Warn("Service name not found in resource span")
		}

		typedSpans := getTypedSpans(resourceSpan, serviceName)
		// spans under the same resource span may belong to different traces
		groupedSpans := groupTypedSpansByTraceID(typedSpans)
		for traceID, spans := range groupedSpans {
			if err := tss.spanCache.Put(traceID, spans); err != nil {
				tss.logger.Error("Failed to put spans in cache", zap.String("trace_id", traceID), zap.Error(err))
			}
			err := tss.eventBus.Publish(service.SpansReceivedTopic, model.SpansReceived{TraceID: traceID, Spans: spans})
			if err != nil {
				tss.logger.Error("Failed to publish received spans", zap.String("trace_id", traceID), zap.Error(err))
			}
		}
		tss.logger.Debug(
			"Spans received",
			zap.String("service_name", serviceName),
			zap.Int("span_count", len(typedSpans)),
		)
	}

	return &protoTrace.ExportTraceServiceResponse{}, nil
}

func getServiceName(resourceSpan *v1.ResourceSpans) string {
	var serviceName = unknownServiceName
	if resourceSpan.Resource == nil {
		return serviceName
	}
	for _, attr := range resourceSpan.Resource.Attributes {
		if attr.Key == "service.name" {
			serviceName = attr.Value.GetStringValue()
		}
	}
	return serviceName
}

func getTypedSpans(resourceSpan *v1.ResourceSpans, serviceName string) []model.Span {
	var typedSpans []model.Span
	for _, scopeSpan := range resourceSpan.ScopeSpans {
		for _, span := range scopeSpan.Spans {
			typedSpans = append(typedSpans, getTypedSpan(span, serviceName))
		}
	}
	return typedSpans
}

func getTypedSpan(span *v1.Span, serviceName string) model.Span {
	return model.Span{
		SpanID:       hex.EncodeToString(span.SpanId),
		ParentSpanID: hex.EncodeToString(span.ParentSpanId),
		TraceID:      hex.EncodeToString(span.TraceId),
		ServiceName:  serviceName,
		StartTime:    time.Unix(0, int64(span.StartTimeUnixNano)).UTC(),
		EndTime:      time.Unix(0, int64(span.EndTimeUnixNano)).UTC(),
		ActionName:   span.Name,
		SpanKind:     span.Kind.String(),
		StatusCode:   span.GetStatus().GetCode().String(),
		Attributes:   getAttributes(span.Attributes),
		Events:       getEvents(span),
	}
}

func getEvents(span *v1.Span) []model.SpanEvent {
	events := make([]model.SpanEvent, len(span.Events))
	for i, event := range span.Events {
		events[i] = model.SpanEvent{
			Name:       event.Name,
			Attributes: getAttributes(event.Attributes),
			Timestamp:  time.Unix(0, int64(event.TimeUnixNano)).UTC(),
		}
	}
	return events
}

func getAttributes(keyValues []*commonv1.KeyValue) map[string]string {
	attributes := make(map[string]string, len(keyValues))
	for _, attribute := range keyValues {
		attributes[attribute.Key] = stringValue(attribute.Value)
	}
	return attributes
}

func stringValue(value *commonv1.AnyValue) string {
	switch v := value.GetValue().(type) {
	case *commonv1.AnyValue_StringValue:
		return v.StringValue
	case *commonv1.AnyValue_IntValue:
		return strconv.FormatInt(v.IntValue, 10)
	case *commonv1.AnyValue_DoubleValue:
		return strconv.FormatFloat(v.DoubleValue, 'f', -1, 64)
	case *commonv1.AnyValue_BoolValue:
		return strconv.FormatBool(v.BoolValue)
	case *commonv1.AnyValue_BytesValue:
		return hex.EncodeToString(v.BytesValue)
	default:
		return ""
	}
}

func groupTypedSpansByTraceID(spans []model.Span) map[string][]model.Span {
	groupedSpans := make(map[string][]model.Span)
	for _, span := range spans {
		groupedSpans[span.TraceID] = append(groupedSpans[span.TraceID], span)
	}
	return groupedSpans
}
