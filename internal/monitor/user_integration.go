package monitor

import (
	"context"
	"strconv"

	"github.com/getsentry/repro/internal/auth"
	"github.com/getsentry/sentry-go"
	"github.com/sirupsen/logrus"
)

// UserIntegration attaches the request's authenticated user to error events
// when SendDefaultPII is enabled. The user is read synchronously from inside the
// capture call, which is the access the capture harness makes observable.
type UserIntegration struct {
	logger *logrus.Logger
}

func NewUserIntegration(logger *logrus.Logger) *UserIntegration {
	return &UserIntegration{logger: logger}
}

func (ui *UserIntegration) Name() string {
	return "RequestUser"
}

func (ui *UserIntegration) SetupOnce(client *sentry.Client) {
	client.AddEventProcessor(ui.processor(client))
}

func (ui *UserIntegration) processor(client *sentry.Client) sentry.EventProcessor {
	return func(event *sentry.Event, hint *sentry.EventHint) *sentry.Event {
		if !client.Options().SendDefaultPII || hint == nil || hint.Context == nil {
			return event
		}
		return ui.applyUser(hint.Context, event)
	}
}

// applyUser never drops the event: a failed lookup is logged and the event goes
// out without user data.
func (ui *UserIntegration) applyUser(ctx context.Context, event *sentry.Event) *sentry.Event {
	lazy, ok := auth.UserFromContext(ctx)
	if !ok {
		return event
	}

	user, err := lazy.Get(ctx)
	if err != nil {
		ui.logger.WithError(err).WithField("event_id", string(event.EventID)).
			Error("Error in event processor while reading request.user.is_authenticated")
		return event
	}
	if !user.IsAuthenticated() {
		return event
	}

	event.User.ID = strconv.FormatInt(user.ID, 10)
	event.User.Username = user.Username
	event.User.Email = user.Email
	return event
}
