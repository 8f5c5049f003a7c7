package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"fetchbot/internal/config"
)

const userAgent = "Fetchbot-Go/0.1.0"

// Event identifies an operator alert.
type Event string

const (
	EventDaemonStarted    Event = "daemon_started"
	EventJobFailed        Event = "job_failed"
	EventCapacityExceeded Event = "capacity_exceeded"
	EventTest             Event = "test"
)

// Payload carries event fields. Known keys: "title", "kind", "error",
// "jobID", "userID", "queueLength", "version".
type Payload map[string]any

// Service defines the notification surface exposed to daemon components.
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
		endpoint:    topic,
		client:      &http.Client{Timeout: timeout},
		jobFailures: cfg.Notifications.JobFailures,
		capacity:    cfg.Notifications.Capacity,
		dedupWindow: time.Minute,
		lastSent:    make(map[Event]time.Time),
		now:         time.Now,
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint    string
	client      *http.Client
	jobFailures bool
	capacity    bool

	dedupWindow time.Duration
	mu          sync.Mutex
	lastSent    map[Event]time.Time
	now         func() time.Time
}

func (n *ntfyService) Publish(ctx context.Context, event Event, data Payload) error {
	switch event {
	case EventJobFailed:
		if !n.jobFailures {
			return nil
		}
	case EventCapacityExceeded:
		if !n.capacity || n.recentlySent(event) {
			return nil
		}
	}
	msg, ok := format(event, data)
	if !ok {
		return fmt.Errorf("unknown notification event %q", event)
	}
	return n.send(ctx, msg)
}

// recentlySent reports whether event already fired inside the dedup window,
// recording this attempt otherwise.
func (n *ntfyService) recentlySent(event Event) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	now := n.now()
	if last, ok := n.lastSent[event]; ok && now.Sub(last) < n.dedupWindow {
		return true
	}
	n.lastSent[event] = now
	return false
}

func format(event Event, data Payload) (payload, bool) {
	switch event {
	case EventDaemonStarted:
		message := "Fetchbot daemon started"
		if version := stringValue(data, "version"); version != "" {
			message = fmt.Sprintf("%s (%s)", message, version)
		}
		return payload{
			title:    "Fetchbot - Started",
			message:  message,
			tags:     []string{"fetchbot", "daemon", "started"},
			priority: "low",
		}, true
	case EventJobFailed:
		var b strings.Builder
		b.WriteString("❌ Job failed")
		if title := stringValue(data, "title"); title != "" {
			b.WriteString(": ")
			b.WriteString(title)
		}
		if kind := stringValue(data, "kind"); kind != "" {
			fmt.Fprintf(&b, "\nKind: %s", kind)
		}
		if errText := stringValue(data, "error"); errText != "" {
			fmt.Fprintf(&b, "\nError: %s", errText)
		}
		if id := stringValue(data, "jobID"); id != "" {
			fmt.Fprintf(&b, "\nJob: %s", id)
		}
		return payload{
			title:    "Fetchbot - Job Failed",
			message:  b.String(),
			tags:     []string{"fetchbot", "job", "failed"},
			priority: "high",
		}, true
	case EventCapacityExceeded:
		return payload{
			title:   "Fetchbot - At Capacity",
			message: fmt.Sprintf("Job queue full (%v queued); new requests are being turned away", data["queueLength"]),
			tags:    []string{"fetchbot", "queue", "capacity"},
		}, true
	case EventTest:
		return payload{
			title:    "Fetchbot - Test",
			message:  "🧪 Notification system test",
			tags:     []string{"fetchbot", "test"},
			priority: "low",
		}, true
	default:
		return payload{}, false
	}
}

func stringValue(data Payload, key string) string {
	if data == nil {
		return ""
	}
	switch v := data[key].(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case error:
		return strings.TrimSpace(v.Error())
	case fmt.Stringer:
		return strings.TrimSpace(v.String())
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
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
