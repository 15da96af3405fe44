package router

import (
	"net/http"

	"github.com/getsentry/repro/internal/collector/cache"
	"github.com/getsentry/repro/internal/collector/handler"
	"github.com/getsentry/repro/internal/collector/model"
	"github.com/getsentry/repro/internal/collector/service"
	"github.com/gorilla/mux"
	protoTrace "go.opentelemetry.io/proto/otlp/collector/trace/v1"
	"go.uber.org/zap"
)

func CreateRouter(
	traceServer protoTrace.TraceServiceServer,
	spanCache cache.SpanCache[model.Span],
	auditor *service.TimingAuditor,
	logger *zap.Logger,
) http.Handler {
	r := mux.NewRouter()

	r.Handle("/v1/traces", handler.OTLPTracesHandler(traceServer, logger)).Methods("POST")
	r.Handle("/traces/{traceId}", handler.TraceHandler(spanCache, logger)).Methods("GET")
	r.Handle("/stats", handler.StatsHandler(auditor, logger)).Methods("GET")

	return r
}
