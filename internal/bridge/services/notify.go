package services

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/tidwall/gjson"

	"github.com/cyrup-ai/action-items-sub005/internal/bridge"
)

// ErrMissingTitle is returned when a notification has no title or message.
var ErrMissingTitle = errors.New("notification requires a title or message")

// maxRecentNotifications bounds the in-memory notification history.
const maxRecentNotifications = 100

// Notification is one user notification posted by a plugin.
type Notification struct {
	PluginID string
	Title    string
	Body     string
	Time     time.Time
}

// Notifier records notifications for the presentation layer to render.
// The core holds the history; the shell subscribes to it.
type Notifier struct {
	mu     sync.Mutex
	recent []Notification
}

// NewNotifier creates an empty notifier.
func NewNotifier() *Notifier {
	return &Notifier{}
}

// Post records a notification, trimming history beyond the cap.
func (n *Notifier) Post(note Notification) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.recent = append(n.recent, note)
	if len(n.recent) > maxRecentNotifications {
		n.recent = n.recent[len(n.recent)-maxRecentNotifications:]
	}
}

// Recent returns a copy of the notification history, newest last.
func (n *Notifier) Recent() []Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]Notification, len(n.recent))
	copy(out, n.recent)
	return out
}

// handleNotification records {"title": t, "body": b}. A bare string
// message is accepted in the "message" field for the toast/HUD shims.
func (s *Services) handleNotification(ctx context.Context, req bridge.ServiceRequest) (json.RawMessage, error) {
	title := gjson.GetBytes(req.Payload, "title").String()
	body := gjson.GetBytes(req.Payload, "body").String()
	if title == "" {
		title = gjson.GetBytes(req.Payload, "message").String()
	}
	if title == "" {
		return nil, ErrMissingTitle
	}

	note := Notification{
		PluginID: req.PluginID,
		Title:    title,
		Body:     body,
		Time:     time.Now(),
	}
	s.Notifier.Post(note)
	s.logger.Info("notification", "plugin", req.PluginID, "title", title)
	return json.RawMessage(`{}`), nil
}
