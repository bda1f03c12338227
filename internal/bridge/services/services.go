// Package services implements the host-side operations the bridge
// dispatcher executes: clipboard access, persistent storage, user
// notifications, and outbound HTTP. Plugins never touch these directly;
// every effect flows through a bridge request.
package services

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/cyrup-ai/action-items-sub005/internal/bridge"
)

// Services bundles the host service implementations behind the bridge.
type Services struct {
	Clipboard *Clipboard
	Storage   *Storage
	Notifier  *Notifier
	Fetcher   *Fetcher

	logger *slog.Logger
}

// Option configures Services.
type Option func(*Services)

// WithLogger sets the services logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Services) { s.logger = logger }
}

// WithFetcher replaces the default HTTP fetcher.
func WithFetcher(f *Fetcher) Option {
	return func(s *Services) { s.Fetcher = f }
}

// New creates the host services. storagePath is the SQLite database
// file backing plugin storage.
func New(storagePath string, opts ...Option) (*Services, error) {
	storage, err := OpenStorage(storagePath)
	if err != nil {
		return nil, err
	}

	s := &Services{
		Clipboard: NewClipboard(),
		Storage:   storage,
		Notifier:  NewNotifier(),
		Fetcher:   NewFetcher(),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close releases service resources.
func (s *Services) Close() error {
	return s.Storage.Close()
}

// Register installs a handler on the bridge for every service kind.
func (s *Services) Register(b *bridge.Bridge) {
	b.RegisterHandler(bridge.KindClipboardRead, s.handleClipboardRead)
	b.RegisterHandler(bridge.KindClipboardWrite, s.handleClipboardWrite)
	b.RegisterHandler(bridge.KindNotification, s.handleNotification)
	b.RegisterHandler(bridge.KindHTTP, s.handleHTTP)
	b.RegisterHandler(bridge.KindStorageRead, s.handleStorageRead)
	b.RegisterHandler(bridge.KindStorageWrite, s.handleStorageWrite)
	b.RegisterHandler(bridge.KindCallback, s.handleCallback)
}

// handleCallback accepts a generic callback payload and echoes it. The
// payload is logged so external consumers can trace plugin callbacks.
func (s *Services) handleCallback(ctx context.Context, req bridge.ServiceRequest) (json.RawMessage, error) {
	s.logger.Debug("plugin callback", "plugin", req.PluginID, "payload", string(req.Payload))
	return req.Payload, nil
}
