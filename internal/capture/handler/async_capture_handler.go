package handler

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/getsentry/repro/internal/async"
	"github.com/getsentry/repro/internal/auth"
	"github.com/getsentry/repro/internal/monitor"
	"github.com/sirupsen/logrus"
)

// DiagnosticMessage is the fixed body of GET /.
const DiagnosticMessage = "Check the server console for SynchronousOnlyOperation error from Sentry SDK.\n" +
	"The error occurs when Sentry tries to access request.user.is_authenticated " +
	"in the ASGI event processor."

const EventNotSentMessage = "Exception event was not sent: no Sentry client is bound or the SDK dropped it"

var ErrTriggerCapture = errors.New("test error to trigger Sentry capture")

// AsyncCaptureHandler captures a synthetic error from inside an event-loop task.
// The response never depends on what happens during capture.
// @Summary Trigger an error capture from an async view
// @Produce plain
// @Success 200 {string} string "Diagnostic text"
// @Router / [get]
func AsyncCaptureHandler(logger *logrus.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		user, _ := auth.UserFromContext(ctx)
		logger.WithFields(logrus.Fields{
			"user_type":     fmt.Sprintf("%T", user),
			"async_context": async.InEventLoop(ctx),
		}).Info("Async view handling request")

		eventID := monitor.CaptureException(ctx, ErrTriggerCapture)
		if eventID != nil {
			logger.WithField("event_id", string(*eventID)).
				Info("captured event, check the logs for SynchronousOnlyOperation")
		} else {
			logger.Warn(EventNotSentMessage)
		}

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		if _, err := io.WriteString(w, DiagnosticMessage); err != nil {
			logger.Errorf("Error encountered when writing response %v", err)
		}
	}
}
