package notifications

import (
	"context"
	"log/slog"

	"imagefeeder/internal/config"
	"imagefeeder/internal/logging"
	"imagefeeder/internal/session"
)

// SessionNotifier publishes finished sessions. It implements session.Notifier.
type SessionNotifier struct {
	svc    Service
	cfg    config.Notifications
	logger *slog.Logger
}

// NewSessionNotifier wraps svc with the event toggles from cfg.
func NewSessionNotifier(svc Service, cfg config.Notifications, logger *slog.Logger) *SessionNotifier {
	return &SessionNotifier{
		svc:    svc,
		cfg:    cfg,
		logger: logging.NewComponentLogger(logger, "notifications"),
	}
}

// SessionFinished publishes the outcome and, when the session failed with an
// error, an alert. Delivery failures are logged and otherwise ignored.
func (n *SessionNotifier) SessionFinished(ctx context.Context, r session.Result) {
	if n == nil || n.svc == nil {
		return
	}
	payload := Payload{
		"root":      r.Root.Path,
		"terminal":  r.TerminalDir,
		"forwarded": r.Forwarded,
		"verdict":   r.Verdict.String(),
	}
	if n.cfg.SessionOutcome && !r.Interrupted {
		event := EventSessionAborted
		switch r.Outcome {
		case session.Committed:
			event = EventSessionCommitted
		case session.Failed:
			event = EventSessionFailed
		}
		n.publish(ctx, event, payload)
	}
	if n.cfg.Errors && r.Err != nil && !r.Interrupted {
		n.publish(ctx, EventError, Payload{"context": r.Root.Path, "error": r.Err.Error()})
	}
}

func (n *SessionNotifier) publish(ctx context.Context, event Event, payload Payload) {
	if err := n.svc.Publish(ctx, event, payload); err != nil {
		logging.WarnWithContext(n.logger, "notification delivery failed", "notification_failed",
			logging.String("event", string(event)),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check notifications.ntfy_topic"),
		)
	}
}
