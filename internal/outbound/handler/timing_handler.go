package handler

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/getsentry/repro/internal/monitor"
	"github.com/getsentry/repro/internal/outbound"
	"github.com/sirupsen/logrus"
)

type appHandler func(w http.ResponseWriter, r *http.Request) error

// handle turns a returned error into the router's default 500 response after
// logging and capturing it. Nothing is retried or translated.
func handle(h appHandler, logger *logrus.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := h(w, r); err != nil {
			logger.Errorf("Unhandled error serving %s: %v", r.URL.Path, err)
			monitor.CaptureException(r.Context(), err)
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
	}
}

// SingleRequestHandler makes one outbound call to the slow endpoint.
// @Summary Single outbound call
// @Produce json
// @Success 200 {object} SingleRequestResponseDTO
// @Router / [get]
func SingleRequestHandler(client *outbound.Client, logger *logrus.Logger) http.HandlerFunc {
	return handle(func(w http.ResponseWriter, r *http.Request) error {
		result, err := client.Get(r.Context())
		if err != nil {
			return err
		}
		return writeJSON(w, SingleRequestResponseDTO{
			Message:     "Check Sentry traces - the http.client span should show ~1000ms",
			StatusCode:  result.StatusCode,
			ExternalURL: client.URL(),
		})
	}, logger)
}

// MultipleRequestCount is the fixed number of calls made by GET /multiple-requests.
const MultipleRequestCount = 3

// MultipleRequestsHandler makes MultipleRequestCount sequential outbound calls.
// @Summary Sequential outbound calls
// @Produce json
// @Success 200 {object} MultipleRequestsResponseDTO
// @Router /multiple-requests [get]
func MultipleRequestsHandler(client *outbound.Client, logger *logrus.Logger) http.HandlerFunc {
	return handle(func(w http.ResponseWriter, r *http.Request) error {
		results := make([]RequestResultDTO, 0, MultipleRequestCount)
		for i := 0; i < MultipleRequestCount; i++ {
			result, err := client.Get(r.Context())
			if err != nil {
				return err
			}
			results = append(results, RequestResultDTO{Request: i + 1, Status: result.StatusCode})
		}
		return writeJSON(w, MultipleRequestsResponseDTO{
			Message: fmt.Sprintf(
				"Made %d requests to %s - each should show ~1000ms in traces",
				MultipleRequestCount,
				client.URL(),
			),
			Results: results,
		})
	}, logger)
}

func writeJSON(w http.ResponseWriter, body interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(body); err != nil {
		return fmt.Errorf("error encountered during JSON encoding of response: %w", err)
	}
	return nil
}
