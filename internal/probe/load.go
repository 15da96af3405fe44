package probe

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

type LoadConfig struct {
	URL      string
	Method   string
	Headers  map[string]string
	Users    int // Number of virtual users
	Duration time.Duration
}

type LoadResult struct {
	TotalRequests  int
	Failed         int
	AverageLatency time.Duration
}

type sample struct {
	latency time.Duration
	failed  bool
}

// worker sends requests until ctx is done and records response times.
func worker(ctx context.Context, client *http.Client, cfg LoadConfig, results chan<- sample) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		req, err := http.NewRequestWithContext(ctx, cfg.Method, cfg.URL, nil)
		if err != nil {
			return fmt.Errorf("failed to build load request: %w", err)
		}
		for key, value := range cfg.Headers {
			req.Header.Set(key, value)
		}

		start := time.Now()
		resp, err := client.Do(req)
		latency := time.Since(start)
		if ctx.Err() != nil {
			return nil
		}
		failed := err != nil || resp.StatusCode >= http.StatusInternalServerError
		if resp != nil {
			_ = resp.Body.Close()
		}
		results <- sample{latency: latency, failed: failed}
	}
}

func RunLoad(ctx context.Context, client *http.Client, cfg LoadConfig, logger *logrus.Logger) (LoadResult, error) {
	if cfg.Method == "" {
		cfg.Method = http.MethodGet
	}
	if cfg.Users < 1 {
		return LoadResult{}, fmt.Errorf("load test needs at least one user, got %d", cfg.Users)
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.Duration)
	defer cancel()

	logger.WithFields(logrus.Fields{
		"url":      cfg.URL,
		"users":    cfg.Users,
		"duration": cfg.Duration.String(),
	}).Info("Starting load test")

	results := make(chan sample, 1000)
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < cfg.Users; i++ {
		g.Go(func() error {
			return worker(gctx, client, cfg, results)
		})
	}

	errc := make(chan error, 1)
	go func() {
		errc <- g.Wait()
		close(results)
	}()

	var res LoadResult
	var totalTime time.Duration
	for r := range results {
		res.TotalRequests++
		totalTime += r.latency
		if r.failed {
			res.Failed++
		}
	}
	if res.TotalRequests > 0 {
		res.AverageLatency = totalTime / time.Duration(res.TotalRequests)
	}

	logger.WithFields(logrus.Fields{
		"total_requests":     res.TotalRequests,
		"failed_requests":    res.Failed,
		"average_latency_ms": res.AverageLatency.Milliseconds(),
	}).Info("Load test completed")

	if err := <-errc; err != nil {
		return res, fmt.Errorf("load test encountered errors: %w", err)
	}
	return res, nil
}
