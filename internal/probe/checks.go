// Package probe runs acceptance checks and load against the running harnesses.
package probe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	captureHandler "github.com/getsentry/repro/internal/capture/handler"
	timingHandler "github.com/getsentry/repro/internal/outbound/handler"
	"github.com/sirupsen/logrus"
)

var ErrCheckFailed = errors.New("check failed")

type CheckResult struct {
	Name    string
	Passed  bool
	Elapsed time.Duration
	Detail  string
}

type Prober struct {
	client *http.Client
	logger *logrus.Logger
}

func NewProber(client *http.Client, logger *logrus.Logger) *Prober {
	return &Prober{client: client, logger: logger}
}

// CheckCapture expects the fixed diagnostic text from the capture harness.
func (p *Prober) CheckCapture(ctx context.Context, baseURL string) CheckResult {
	result := CheckResult{Name: "capture GET /"}
	status, body, elapsed, err := p.get(ctx, baseURL+"/")
	result.Elapsed = elapsed
	switch {
	case err != nil:
		result.Detail = err.Error()
	case status != http.StatusOK:
		result.Detail = fmt.Sprintf("unexpected status %d", status)
	case strings.TrimSpace(string(body)) != captureHandler.DiagnosticMessage:
		result.Detail = "unexpected body"
	default:
		result.Passed = true
	}
	return p.report(result)
}

// CheckTiming verifies both timing endpoints took at least as long as the remote delay.
func (p *Prober) CheckTiming(ctx context.Context, baseURL string, delay time.Duration) []CheckResult {
	return []CheckResult{
		p.checkSingle(ctx, baseURL, delay),
		p.checkMultiple(ctx, baseURL, delay),
	}
}

func (p *Prober) checkSingle(ctx context.Context, baseURL string, delay time.Duration) CheckResult {
	result := CheckResult{Name: "timing GET /"}
	status, body, elapsed, err := p.get(ctx, baseURL+"/")
	result.Elapsed = elapsed
	if err != nil {
		result.Detail = err.Error()
		return p.report(result)
	}
	if status != http.StatusOK {
		result.Detail = fmt.Sprintf("unexpected status %d", status)
		return p.report(result)
	}

	var res timingHandler.SingleRequestResponseDTO
	if err := json.Unmarshal(body, &res); err != nil {
		result.Detail = fmt.Sprintf("invalid body: %v", err)
		return p.report(result)
	}
	switch {
	case res.StatusCode == 0 || res.ExternalURL == "":
		result.Detail = "status_code or external_url missing"
	case elapsed < delay:
		result.Detail = fmt.Sprintf("finished in %s, before the %s remote delay", elapsed, delay)
	default:
		result.Passed = true
	}
	return p.report(result)
}

func (p *Prober) checkMultiple(ctx context.Context, baseURL string, delay time.Duration) CheckResult {
	result := CheckResult{Name: "timing GET /multiple-requests"}
	status, body, elapsed, err := p.get(ctx, baseURL+"/multiple-requests")
	result.Elapsed = elapsed
	if err != nil {
		result.Detail = err.Error()
		return p.report(result)
	}
	if status != http.StatusOK {
		result.Detail = fmt.Sprintf("unexpected status %d", status)
		return p.report(result)
	}

	var res timingHandler.MultipleRequestsResponseDTO
	if err := json.Unmarshal(body, &res); err != nil {
		result.Detail = fmt.Sprintf("invalid body: %v", err)
		return p.report(result)
	}
	minElapsed := time.Duration(len(res.Results)) * delay
	switch {
	case len(res.Results) != 3:
		result.Detail = fmt.Sprintf("expected 3 results, got %d", len(res.Results))
	case elapsed < minElapsed:
		result.Detail = fmt.Sprintf("finished in %s, before %s of serial remote delay", elapsed, minElapsed)
	default:
		result.Passed = true
	}
	return p.report(result)
}

func (p *Prober) get(ctx context.Context, url string) (int, []byte, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, nil, 0, fmt.Errorf("failed to build request for %s: %w", url, err)
	}
	start := time.Now()
	resp, err := p.client.Do(req)
	if err != nil {
		return 0, nil, time.Since(start), fmt.Errorf("request to %s failed: %w", url, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	elapsed := time.Since(start)
	if err != nil {
		return resp.StatusCode, nil, elapsed, fmt.Errorf("failed to read response from %s: %w", url, err)
	}
	return resp.StatusCode, body, elapsed, nil
}

func (p *Prober) report(result CheckResult) CheckResult {
	entry := p.logger.WithFields(logrus.Fields{
		"check":      result.Name,
		"elapsed_ms": result.Elapsed.Milliseconds(),
	})
	if result.Passed {
		entry.Info("Check passed")
	} else {
		entry.WithField("detail", result.Detail).Error("Check failed")
	}
	return result
}

// Verify returns ErrCheckFailed when any result did not pass.
func Verify(results ...CheckResult) error {
	var failed []string
	for _, result := range results {
		if !result.Passed {
			failed = append(failed, result.Name)
		}
	}
	if len(failed) > 0 {
		return fmt.Errorf("%w: %s", ErrCheckFailed, strings.Join(failed, ", "))
	}
	return nil
}
