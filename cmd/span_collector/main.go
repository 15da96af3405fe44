package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/asaskevich/EventBus"
	"github.com/getsentry/repro/internal/collector/bus"
	"github.com/getsentry/repro/internal/collector/cache"
	"github.com/getsentry/repro/internal/collector/model"
	"github.com/getsentry/repro/internal/collector/router"
	"github.com/getsentry/repro/internal/collector/server"
	"github.com/getsentry/repro/internal/collector/service"
	"github.com/getsentry/repro/internal/config"
	protoTrace "go.opentelemetry.io/proto/otlp/collector/trace/v1"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	_ "google.golang.org/grpc/encoding/gzip"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		os.Exit(1)
	}
	defer logger.Sync()

	v, err := config.NewViper()
	if err != nil {
		logger.Fatal("Failed to initialise configuration", zap.Error(err))
	}
	cfg, err := config.Load(v, os.Getenv("COLLECTOR_CONFIG"))
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}

	rc, err := cache.NewRistretto(cfg.Collector.CacheMaxSpans)
	if err != nil {
		logger.Fatal("Failed to create span cache", zap.Error(err))
	}
	spanCache := cache.NewSpanCacheImpl[model.Span](rc)
	defer spanCache.Close()

	eventBus := bus.NewTypedEventBus[model.SpansReceived](EventBus.New(), logger)
	auditor := service.NewTimingAuditor(cfg.Collector.MinClientDuration, logger)
	if err := auditor.Start(eventBus); err != nil {
		logger.Fatal("Failed to start timing auditor", zap.Error(err))
	}

	traceServiceServer := server.NewTraceServiceServerImpl(logger, spanCache, eventBus)

	listener, err := net.Listen("tcp", cfg.Collector.GRPCAddr)
	if err != nil {
		logger.Fatal("Failed to listen", zap.String("addr", cfg.Collector.GRPCAddr), zap.Error(err))
	}
	grpcServer := grpc.NewServer()
	protoTrace.RegisterTraceServiceServer(grpcServer, traceServiceServer)

	httpServer := &http.Server{
		Addr:              cfg.Collector.HTTPAddr,
		Handler:           router.CreateRouter(traceServiceServer, spanCache, auditor, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("gRPC service started, listening for OpenTelemetry traces...",
			zap.String("addr", cfg.Collector.GRPCAddr))
		return grpcServer.Serve(listener)
	})
	g.Go(func() error {
		logger.Info("HTTP service started, listening for OpenTelemetry traces...",
			zap.String("addr", cfg.Collector.HTTPAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		grpcServer.GracefulStop()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("Collector exited with error", zap.Error(err))
	}
	eventBus.WaitAsync()
	stats := auditor.Stats()
	logger.Info("Collector stopped",
		zap.Int64("received", stats.Received),
		zap.Int64("client", stats.Client),
		zap.Int64("flagged", stats.Flagged),
	)
}
