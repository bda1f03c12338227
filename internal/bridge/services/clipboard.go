package services

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/cyrup-ai/action-items-sub005/internal/bridge"
)

// ErrMissingText is returned when a clipboard write carries no text.
var ErrMissingText = errors.New("clipboard write requires a text field")

// Clipboard is the host clipboard behind the bridge. The graphical
// shell owns the real system clipboard; the core keeps the
// authoritative text so plugins see consistent reads.
type Clipboard struct {
	mu   sync.RWMutex
	text string
}

// NewClipboard creates an empty clipboard.
func NewClipboard() *Clipboard {
	return &Clipboard{}
}

// Read returns the clipboard text.
func (c *Clipboard) Read() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.text
}

// Write replaces the clipboard text.
func (c *Clipboard) Write(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.text = text
}

// handleClipboardRead answers a ClipboardRead request with
// {"text": "..."}.
func (s *Services) handleClipboardRead(ctx context.Context, req bridge.ServiceRequest) (json.RawMessage, error) {
	out, err := sjson.Set("{}", "text", s.Clipboard.Read())
	if err != nil {
		return nil, err
	}
	return json.RawMessage(out), nil
}

// handleClipboardWrite stores the request's text field.
func (s *Services) handleClipboardWrite(ctx context.Context, req bridge.ServiceRequest) (json.RawMessage, error) {
	text := gjson.GetBytes(req.Payload, "text")
	if !text.Exists() {
		return nil, ErrMissingText
	}
	s.Clipboard.Write(text.String())
	return json.RawMessage(`{}`), nil
}
