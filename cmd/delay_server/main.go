package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/getsentry/repro/internal/config"
	"github.com/getsentry/repro/internal/delay"
	"github.com/getsentry/repro/internal/httpserver"
	"github.com/getsentry/repro/internal/logging"
	"github.com/spf13/cobra"
)

func main() {
	var addr string
	cmd := &cobra.Command{
		Use:           "delay_server",
		Short:         "Serves httpbin-style /delay/{seconds} so the timing harness can run offline",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8081", "listen address")

	if err := cmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serve(ctx context.Context, addr string) error {
	v, err := config.NewViper()
	if err != nil {
		return err
	}
	cfg, err := config.Load(v, "")
	if err != nil {
		return err
	}
	logger, err := logging.InitLogger(cfg.Log)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           logging.RequestLogger(logger)(delay.CreateRouter(logger)),
		ReadHeaderTimeout: 10 * time.Second,
	}
	logger.Infof("Serving /delay/{seconds} with a cap of %s", delay.MaxDelay)
	return httpserver.Run(ctx, srv, logger)
}
