package router

import (
	"net/http"

	"github.com/getsentry/repro/internal/logging"
	"github.com/getsentry/repro/internal/outbound"
	"github.com/getsentry/repro/internal/outbound/handler"
	sentryhttp "github.com/getsentry/sentry-go/http"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/trace"
)

const serverOperation = "outbound-timing-server"

func CreateRouter(
	client *outbound.Client,
	tp trace.TracerProvider,
	logger *logrus.Logger,
) http.Handler {
	sentryHandler := sentryhttp.New(sentryhttp.Options{Repanic: true})

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(logging.RequestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(sentryHandler.Handle)

	r.Get("/", handler.SingleRequestHandler(client, logger))
	r.Get("/multiple-requests", handler.MultipleRequestsHandler(client, logger))

	return otelhttp.NewHandler(r, serverOperation, otelhttp.WithTracerProvider(tp))
}
