package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"imagefeeder/internal/config"
)

const userAgent = "ImageFeeder-Go/0.1.0"

// Event identifies a notification type.
type Event string

const (
	EventSessionCommitted Event = "session_committed"
	EventSessionFailed    Event = "session_failed"
	EventSessionAborted   Event = "session_aborted"
	EventRecovery         Event = "recovery"
	EventRunCompleted     Event = "run_completed"
	EventError            Event = "error"
	EventTest             Event = "test"
)

// Payload carries event fields. Values are formatted with fmt.
type Payload map[string]any

// Service publishes notification events.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
	}
}

type message struct {
	title    string
	body     string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
}

func (n *ntfyService) Publish(ctx context.Context, event Event, payload Payload) error {
	msg, ok := format(event, payload)
	if !ok {
		return nil
	}
	return n.send(ctx, msg)
}

func format(event Event, p Payload) (message, bool) {
	switch event {
	case EventSessionCommitted:
		body := fmt.Sprintf("✅ %s: %s artifacts, %s", p.text("verdict"), p.text("forwarded"), p.text("root"))
		return message{
			title: "ImageFeeder - Session Passed",
			body:  body,
			tags:  []string{"imagefeeder", "session", "passed"},
		}, true
	case EventSessionFailed:
		return message{
			title:    "ImageFeeder - Session Mismatch",
			body:     fmt.Sprintf("❗ Mismatch: %s\nArtifacts: %s", p.text("root"), p.text("terminal")),
			tags:     []string{"imagefeeder", "session", "mismatch"},
			priority: "high",
		}, true
	case EventSessionAborted:
		return message{
			title: "ImageFeeder - Session Aborted",
			body:  fmt.Sprintf("Session aborted: %s\nArtifacts: %s", p.text("root"), p.text("terminal")),
			tags:  []string{"imagefeeder", "session", "aborted"},
		}, true
	case EventRecovery:
		return message{
			title: "ImageFeeder - Recovered Sessions",
			body:  fmt.Sprintf("Relocated %s interrupted session(s) from a previous run", p.text("count")),
			tags:  []string{"imagefeeder", "recovery"},
		}, true
	case EventRunCompleted:
		title := "ImageFeeder - Run Complete"
		if p.text("failed") != "0" {
			title = "ImageFeeder - Run Complete (with failures)"
		}
		return message{
			title: title,
			body:  fmt.Sprintf("%s passed, %s failed, %s aborted in %s", p.text("passed"), p.text("failed"), p.text("aborted"), p.text("duration")),
			tags:  []string{"imagefeeder", "run", "completed"},
		}, true
	case EventError:
		var builder strings.Builder
		builder.WriteString("❌ Error")
		if label := p.text("context"); label != "" {
			builder.WriteString(" with ")
			builder.WriteString(label)
		}
		builder.WriteString(": ")
		if errText := p.text("error"); errText != "" {
			builder.WriteString(errText)
		} else {
			builder.WriteString("unknown")
		}
		return message{
			title:    "ImageFeeder - Error",
			body:     builder.String(),
			tags:     []string{"imagefeeder", "error", "alert"},
			priority: "high",
		}, true
	case EventTest:
		return message{
			title:    "ImageFeeder - Test",
			body:     "🧪 Notification system test",
			tags:     []string{"imagefeeder", "test"},
			priority: "low",
		}, true
	default:
		return message{}, false
	}
}

func (p Payload) text(key string) string {
	value, ok := p[key]
	if !ok || value == nil {
		return ""
	}
	return strings.TrimSpace(fmt.Sprint(value))
}

func (n *ntfyService) send(ctx context.Context, msg message) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(msg.body))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if msg.title != "" {
		req.Header.Set("Title", msg.title)
	}
	if len(msg.tags) > 0 {
		req.Header.Set("Tags", strings.Join(msg.tags, ","))
	}
	if msg.priority != "" && msg.priority != "default" {
		req.Header.Set("Priority", msg.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }
