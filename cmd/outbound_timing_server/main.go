package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/getsentry/repro/internal/config"
	"github.com/getsentry/repro/internal/httpserver"
	"github.com/getsentry/repro/internal/logging"
	"github.com/getsentry/repro/internal/monitor"
	"github.com/getsentry/repro/internal/outbound"
	"github.com/getsentry/repro/internal/outbound/handler"
	"github.com/getsentry/repro/internal/outbound/router"
	"github.com/spf13/cobra"
)

const defaultAddr = "0.0.0.0:8000"

func main() {
	if err := newRootCommand().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var configFile string
	cmd := &cobra.Command{
		Use:           "outbound_timing_server",
		Short:         "Reproduces http.client span timing for slow outbound calls",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.Flags().StringVar(&configFile, "config", "", "optional YAML config file")
	cmd.Flags().String("addr", "", "listen address")
	cmd.Flags().String("outbound-url", "", "slow remote endpoint to call")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		v, err := config.NewViper()
		if err != nil {
			return err
		}
		v.SetDefault("server.addr", defaultAddr)
		_ = v.BindPFlag("server.addr", cmd.Flags().Lookup("addr"))
		_ = v.BindPFlag("outbound.url", cmd.Flags().Lookup("outbound-url"))
		cfg, err := config.Load(v, configFile)
		if err != nil {
			return err
		}
		return serve(cmd.Context(), cfg)
	}
	return cmd
}

func serve(ctx context.Context, cfg *config.Config) error {
	logger, err := logging.InitLogger(cfg.Log)
	if err != nil {
		return err
	}

	reporter := monitor.NewSpanReporter(logger)
	defer reporter.LogSummary()
	options := monitor.NewClientOptions(cfg.Sentry)
	options.BeforeSendTransaction = reporter.BeforeSendTransaction
	flush, err := monitor.InitSentry(options, logger)
	if err != nil {
		return err
	}
	defer flush()

	tp, err := monitor.InitTracer(ctx, cfg.Otel, logger)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), monitor.FlushTimeout)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			logger.Errorf("Failed to shut down tracer provider: %v", err)
		}
	}()

	transport := outbound.NewInstrumentedTransport(http.DefaultTransport, tp)
	client := outbound.NewClient(cfg.Outbound.URL, transport, logger)
	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router.CreateRouter(client, tp, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	printBanner(os.Stdout, cfg)
	return httpserver.Run(ctx, srv, logger)
}

func printBanner(w io.Writer, cfg *config.Config) {
	rule := strings.Repeat("=", 60)
	fmt.Fprintf(w, "\n%s\n", rule)
	fmt.Fprintf(w, "Starting outbound timing server on %s\n", cfg.Server.Addr)
	fmt.Fprintf(w, "%s\n\n", rule)
	fmt.Fprintln(w, "Endpoints:")
	fmt.Fprintf(w, "  GET /                  - Single request to %s\n", cfg.Outbound.URL)
	fmt.Fprintf(w, "  GET /multiple-requests - %d requests to %s\n", handler.MultipleRequestCount, cfg.Outbound.URL)
	fmt.Fprintln(w, "\nExpected behavior:")
	fmt.Fprintln(w, "  http.client spans last as long as the remote call")
	fmt.Fprintln(w, "\nActual behavior (bug):")
	fmt.Fprintln(w, "  http.client spans show < 1ms (incorrect/impossible timing)")
	fmt.Fprintf(w, "\n%s\n\n", rule)
}
