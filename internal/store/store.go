// Package store provides the durable key-value storage backing the
// session state. Values round-trip through SQLite verbatim as JSON;
// reads that fail fall back to the caller-supplied default.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mkleene/chime/internal/protocol"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"
)

// Well-known keys. Absent keys return the documented defaults.
const (
	KeyQueue        = "queue"         // []protocol.Track
	KeyCurrentIndex = "current-index" // int, -1 when nothing selected
	KeyVolume       = "volume"        // int 0-100
	KeyRepeatMode   = "repeat-mode"   // protocol.RepeatMode string
	KeyShuffle      = "shuffle"       // bool
	KeyMuted        = "muted"         // bool
	KeyHistory      = "history"       // []protocol.Track, capped
)

// Store is a SQLite-backed key-value store.
type Store struct {
	db     *sql.DB
	logger zerolog.Logger
}

// Open opens (creating if needed) the store at dbPath.
func Open(dbPath string, logger zerolog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Single connection keeps in-memory databases consistent and is
	// plenty for a key-value table.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA busy_timeout = 10000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA journal_mode = WAL",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	schema := `
		CREATE TABLE IF NOT EXISTS kv (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
		);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &Store{
		db:     db,
		logger: logger.With().Str("component", "store").Logger(),
	}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// get reads the raw JSON value for key. The second result is false
// when the key is absent.
func (s *Store) get(ctx context.Context, key string) (json.RawMessage, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM kv WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read key %q: %w", key, err)
	}
	return json.RawMessage(value), true, nil
}

// set upserts the JSON encoding of v under key.
func (s *Store) set(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode key %q: %w", key, err)
	}

	query := `
		INSERT INTO kv (key, value, updated_at) VALUES (?, ?, strftime('%s', 'now'))
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`
	if _, err := s.db.ExecContext(ctx, query, key, string(data)); err != nil {
		return fmt.Errorf("failed to write key %q: %w", key, err)
	}
	return nil
}

// load unmarshals the value for key into v, reporting whether the key
// existed and decoded cleanly. A storage or decode failure is logged
// and treated the same as an absent key so the caller's default wins.
func (s *Store) load(ctx context.Context, key string, v any) bool {
	raw, ok, err := s.get(ctx, key)
	if err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("Storage read failed, using default")
		return false
	}
	if !ok {
		return false
	}
	if err := json.Unmarshal(raw, v); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("Storage value corrupt, using default")
		return false
	}
	return true
}

// GetTracks returns the track list stored under key, or def.
func (s *Store) GetTracks(ctx context.Context, key string, def []protocol.Track) []protocol.Track {
	var tracks []protocol.Track
	if !s.load(ctx, key, &tracks) {
		return def
	}
	if tracks == nil {
		return def
	}
	return tracks
}

// SetTracks stores a track list under key.
func (s *Store) SetTracks(ctx context.Context, key string, tracks []protocol.Track) error {
	if tracks == nil {
		tracks = []protocol.Track{}
	}
	return s.set(ctx, key, tracks)
}

// GetInt returns the integer stored under key, or def.
func (s *Store) GetInt(ctx context.Context, key string, def int) int {
	var v int
	if !s.load(ctx, key, &v) {
		return def
	}
	return v
}

// SetInt stores an integer under key.
func (s *Store) SetInt(ctx context.Context, key string, v int) error {
	return s.set(ctx, key, v)
}

// GetString returns the string stored under key, or def.
func (s *Store) GetString(ctx context.Context, key string, def string) string {
	var v string
	if !s.load(ctx, key, &v) {
		return def
	}
	return v
}

// SetString stores a string under key.
func (s *Store) SetString(ctx context.Context, key string, v string) error {
	return s.set(ctx, key, v)
}

// GetBool returns the boolean stored under key, or def.
func (s *Store) GetBool(ctx context.Context, key string, def bool) bool {
	var v bool
	if !s.load(ctx, key, &v) {
		return def
	}
	return v
}

// SetBool stores a boolean under key.
func (s *Store) SetBool(ctx context.Context, key string, v bool) error {
	return s.set(ctx, key, v)
}
