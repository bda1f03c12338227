package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	_ "modernc.org/sqlite"

	"github.com/cyrup-ai/action-items-sub005/internal/bridge"
)

// Storage errors.
var (
	ErrMissingKey = errors.New("storage request requires a key field")
	ErrNoValue    = errors.New("storage write requires a value field")
)

// Storage persists per-plugin key/value pairs in SQLite. Values are
// stored as JSON text so plugins can round-trip structured data.
type Storage struct {
	db   *sql.DB
	path string
}

// OpenStorage opens (or creates) the storage database at path and runs
// migrations.
func OpenStorage(path string) (*Storage, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage database: %w", err)
	}

	s := &Storage{db: db, path: path}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate storage database: %w", err)
	}
	return s, nil
}

// migrate creates the storage schema.
func (s *Storage) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS plugin_storage (
			plugin_id TEXT NOT NULL,
			key       TEXT NOT NULL,
			value     TEXT NOT NULL,
			PRIMARY KEY (plugin_id, key)
		)`)
	return err
}

// Close closes the database connection.
func (s *Storage) Close() error {
	return s.db.Close()
}

// Get returns the stored JSON value for (pluginID, key). The second
// return is false when the key has never been written.
func (s *Storage) Get(ctx context.Context, pluginID, key string) (json.RawMessage, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM plugin_storage WHERE plugin_id = ? AND key = ?`,
		pluginID, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return json.RawMessage(value), true, nil
}

// Set stores a JSON value for (pluginID, key), replacing any previous
// value.
func (s *Storage) Set(ctx context.Context, pluginID, key string, value json.RawMessage) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO plugin_storage (plugin_id, key, value) VALUES (?, ?, ?)
		 ON CONFLICT (plugin_id, key) DO UPDATE SET value = excluded.value`,
		pluginID, key, string(value))
	return err
}

// Delete removes a stored key.
func (s *Storage) Delete(ctx context.Context, pluginID, key string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM plugin_storage WHERE plugin_id = ? AND key = ?`,
		pluginID, key)
	return err
}

// DeletePlugin removes every key stored by a plugin.
func (s *Storage) DeletePlugin(ctx context.Context, pluginID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM plugin_storage WHERE plugin_id = ?`, pluginID)
	return err
}

// handleStorageRead answers {"key": k} with {"found": bool, "value": v}.
func (s *Services) handleStorageRead(ctx context.Context, req bridge.ServiceRequest) (json.RawMessage, error) {
	key := gjson.GetBytes(req.Payload, "key")
	if !key.Exists() {
		return nil, ErrMissingKey
	}

	value, found, err := s.Storage.Get(ctx, req.PluginID, key.String())
	if err != nil {
		return nil, err
	}

	out, err := sjson.Set("{}", "found", found)
	if err != nil {
		return nil, err
	}
	if found {
		out, err = sjson.SetRaw(out, "value", string(value))
		if err != nil {
			return nil, err
		}
	}
	return json.RawMessage(out), nil
}

// handleStorageWrite stores {"key": k, "value": v} for the requesting
// plugin.
func (s *Services) handleStorageWrite(ctx context.Context, req bridge.ServiceRequest) (json.RawMessage, error) {
	key := gjson.GetBytes(req.Payload, "key")
	if !key.Exists() {
		return nil, ErrMissingKey
	}
	value := gjson.GetBytes(req.Payload, "value")
	if !value.Exists() {
		return nil, ErrNoValue
	}

	if err := s.Storage.Set(ctx, req.PluginID, key.String(), json.RawMessage(value.Raw)); err != nil {
		return nil, err
	}
	return json.RawMessage(`{}`), nil
}
