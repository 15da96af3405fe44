package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/getsentry/repro/internal/config"
	"github.com/getsentry/repro/internal/logging"
	"github.com/getsentry/repro/internal/probe"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCommand().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var logger *logrus.Logger
	client := &http.Client{}

	root := &cobra.Command{
		Use:           "probe",
		Short:         "Checks the reproduction harnesses from the outside",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			v, err := config.NewViper()
			if err != nil {
				return err
			}
			cfg, err := config.Load(v, "")
			if err != nil {
				return err
			}
			logger, err = logging.InitLogger(cfg.Log)
			return err
		},
	}

	var captureURL string
	captureCmd := &cobra.Command{
		Use:   "capture",
		Short: "GET / on the async capture server and expect the diagnostic text",
		RunE: func(cmd *cobra.Command, args []string) error {
			p := probe.NewProber(client, logger)
			return probe.Verify(p.CheckCapture(cmd.Context(), captureURL))
		},
	}
	captureCmd.Flags().StringVar(&captureURL, "url", "http://localhost:8080", "async capture server base URL")

	var timingURL string
	var delay time.Duration
	timingCmd := &cobra.Command{
		Use:   "timing",
		Short: "Check both outbound timing endpoints take at least the remote delay",
		RunE: func(cmd *cobra.Command, args []string) error {
			p := probe.NewProber(client, logger)
			return probe.Verify(p.CheckTiming(cmd.Context(), timingURL, delay)...)
		},
	}
	timingCmd.Flags().StringVar(&timingURL, "url", "http://localhost:8000", "outbound timing server base URL")
	timingCmd.Flags().DurationVar(&delay, "delay", time.Second, "delay of the remote endpoint")

	var loadCfg probe.LoadConfig
	loadCmd := &cobra.Command{
		Use:   "load",
		Short: "Send requests from concurrent virtual users and report latency",
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := probe.RunLoad(cmd.Context(), client, loadCfg, logger)
			if err != nil {
				return err
			}
			fmt.Printf("Total Requests: %d\nFailed Requests: %d\nAverage Response Time: %s\n",
				res.TotalRequests, res.Failed, res.AverageLatency)
			return nil
		},
	}
	loadCmd.Flags().StringVar(&loadCfg.URL, "url", "http://localhost:8000/", "endpoint to load")
	loadCmd.Flags().StringVar(&loadCfg.Method, "method", http.MethodGet, "HTTP method")
	loadCmd.Flags().IntVar(&loadCfg.Users, "users", 5, "number of concurrent virtual users")
	loadCmd.Flags().DurationVar(&loadCfg.Duration, "duration", time.Minute, "test duration")

	root.AddCommand(captureCmd, timingCmd, loadCmd)
	return root
}
