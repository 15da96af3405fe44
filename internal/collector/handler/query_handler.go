package handler

import (
	"errors"
	"net/http"

	"github.com/getsentry/repro/internal/collector/cache"
	"github.com/getsentry/repro/internal/collector/model"
	"github.com/getsentry/repro/internal/collector/service"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// TraceHandler returns the spans received for a trace.
// @Summary Get the spans of a trace
// @Produce json
// @Param traceId path string true "Hex encoded trace id"
// @Success 200 {object} TraceResponseDTO
// @Failure 404 {object} ErrorMessage "Trace not found"
// @Router /traces/{traceId} [get]
func TraceHandler(spanCache cache.SpanCache[model.Span], logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		traceID := mux.Vars(r)["traceId"]
		spans, err := spanCache.Get(traceID)
		if errors.Is(err, cache.ErrKeyNotFound) {
			HttpError(w, "Trace not found", http.StatusNotFound, logger)
			return
		}
		if err != nil {
			logger.Error("Error encountered when reading trace from cache", zap.String("trace_id", traceID), zap.Error(err))
			HttpError(w, "Internal server error", http.StatusInternalServerError, logger)
			return
		}

		res := TraceResponseDTO{TraceID: traceID, Spans: make([]SpanDTO, len(spans))}
		for i, span := range spans {
			res.Spans[i] = mapSpanToDTO(span)
		}
		writeJSON(w, res, logger)
	}
}

// StatsHandler returns the timing auditor counters.
// @Summary Get the timing audit counters
// @Produce json
// @Success 200 {object} service.Stats
// @Router /stats [get]
func StatsHandler(auditor *service.TimingAuditor, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, auditor.Stats(), logger)
	}
}
