// Package store is the device-local key-value store holding the single
// cached user profile and a handful of lightweight keys (last-active marker,
// push-registration token, coin quick-cache).
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"triviaa-companion/internal/models"
)

// Storage keys. These match the layout the mobile builds used, so a store
// migrated from an old install keeps working.
const (
	UserDataKey    = "@user_data_v1"
	LastActiveKey  = "@last_active"
	DeviceTokenKey = "deviceToken"
	FCMTokenKey    = "@fcm_token"
	CoinsKey       = "coins"
)

type Store struct {
	db        *sql.DB
	log       *slog.Logger
	writeLock sync.Mutex // the sqlite driver does not support concurrent writes
}

// Open opens (creating if needed) the store at path.
func Open(log *slog.Logger, path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create store dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping store: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS kv (
			key        TEXT PRIMARY KEY,
			value      TEXT    NOT NULL,
			updated_at INTEGER NOT NULL
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	return &Store{db: db, log: log}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// SaveUser serializes the profile inside a cache envelope, writes it under
// the fixed key, refreshes the last-active marker and re-reads to confirm the
// write landed. A failed verification returns false without an error; a
// failed write propagates.
func (s *Store) SaveUser(ctx context.Context, user models.UserProfile) (bool, error) {
	env := models.CacheEnvelope{
		UserData:  &user,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	raw, err := json.Marshal(env)
	if err != nil {
		return false, fmt.Errorf("marshal user data: %w", err)
	}

	if err := s.set(ctx, UserDataKey, string(raw)); err != nil {
		return false, fmt.Errorf("save user data: %w", err)
	}
	s.touchLastActive(ctx)

	saved, err := s.get(ctx, UserDataKey)
	if err != nil || saved == "" {
		s.log.Warn("user_data_not_persisted_after_save", "error", err)
		return false, nil
	}

	s.log.Debug("user_data_saved", "user_id", user.UserID)
	return true, nil
}

// GetUser loads the cached profile. An absent entry, an envelope missing the
// userData field or any read failure all report "no profile" rather than an
// error, so startup stays resilient to a bad cache.
func (s *Store) GetUser(ctx context.Context) *models.UserProfile {
	raw, err := s.get(ctx, UserDataKey)
	if err != nil {
		s.log.Warn("user_data_read_failed", "error", err)
		return nil
	}
	if raw == "" {
		s.log.Debug("no_user_data_in_store")
		return nil
	}

	var env models.CacheEnvelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		s.log.Warn("user_data_malformed", "error", err)
		return nil
	}
	if env.UserData == nil {
		s.log.Warn("user_data_envelope_missing_user")
		return nil
	}

	s.touchLastActive(ctx)
	return env.UserData
}

// UpdateUser rewrites the cached profile as current-fields-plus-overrides.
// Returns false when there is no profile to update.
func (s *Store) UpdateUser(ctx context.Context, updates models.ProfileUpdate) (bool, error) {
	current := s.GetUser(ctx)
	if current == nil {
		s.log.Debug("no_user_to_update")
		return false, nil
	}
	return s.SaveUser(ctx, updates.Apply(*current))
}

// HasUser reports whether a profile entry exists, without deserializing it.
func (s *Store) HasUser(ctx context.Context) bool {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM kv WHERE key = ?)", UserDataKey,
	).Scan(&exists)
	if err != nil {
		s.log.Warn("user_exists_check_failed", "error", err)
		return false
	}
	return exists
}

// LastActive returns the last-active marker, or the zero string if unset.
func (s *Store) LastActive(ctx context.Context) string {
	v, err := s.get(ctx, LastActiveKey)
	if err != nil {
		s.log.Warn("last_active_read_failed", "error", err)
		return ""
	}
	return v
}

// ClearSession removes only the profile entry and verifies the removal.
// Unrelated keys (device token, coins) are left in place.
func (s *Store) ClearSession(ctx context.Context) (bool, error) {
	if err := s.del(ctx, UserDataKey); err != nil {
		return false, fmt.Errorf("clear session: %w", err)
	}
	remaining, err := s.get(ctx, UserDataKey)
	if err != nil {
		return false, fmt.Errorf("verify session cleared: %w", err)
	}
	return remaining == "", nil
}

// ClearAll removes every locally persisted key and verifies the store is
// empty afterwards.
func (s *Store) ClearAll(ctx context.Context) (bool, error) {
	s.writeLock.Lock()
	_, err := s.db.ExecContext(ctx, "DELETE FROM kv")
	s.writeLock.Unlock()
	if err != nil {
		return false, fmt.Errorf("clear store: %w", err)
	}

	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM kv").Scan(&count); err != nil {
		return false, fmt.Errorf("verify store cleared: %w", err)
	}
	return count == 0, nil
}

// DeviceToken returns the stored push-registration token, empty when unset.
func (s *Store) DeviceToken(ctx context.Context) string {
	v, err := s.get(ctx, DeviceTokenKey)
	if err != nil {
		s.log.Warn("device_token_read_failed", "error", err)
		return ""
	}
	return v
}

func (s *Store) SetDeviceToken(ctx context.Context, token string) error {
	if err := s.set(ctx, DeviceTokenKey, token); err != nil {
		return fmt.Errorf("save device token: %w", err)
	}
	return nil
}

// Coins reads the lightweight coin quick-cache (stringified integer,
// separate from the profile blob). Missing or unparsable values read as 0.
func (s *Store) Coins(ctx context.Context) int64 {
	v, err := s.get(ctx, CoinsKey)
	if err != nil || v == "" {
		return 0
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		s.log.Warn("coins_value_malformed", "value", v)
		return 0
	}
	return n
}

func (s *Store) SetCoins(ctx context.Context, coins int64) error {
	if err := s.set(ctx, CoinsKey, strconv.FormatInt(coins, 10)); err != nil {
		return fmt.Errorf("save coins: %w", err)
	}
	return nil
}

// AddCoins bumps the quick-cache by amount and returns the new total.
func (s *Store) AddCoins(ctx context.Context, amount int64) (int64, error) {
	total := s.Coins(ctx) + amount
	if err := s.SetCoins(ctx, total); err != nil {
		return 0, err
	}
	return total, nil
}

func (s *Store) touchLastActive(ctx context.Context) {
	ts := time.Now().UTC().Format(time.RFC3339)
	if err := s.set(ctx, LastActiveKey, ts); err != nil {
		s.log.Warn("last_active_update_failed", "error", err)
	}
}

func (s *Store) set(ctx context.Context, key, value string) error {
	s.writeLock.Lock()
	defer s.writeLock.Unlock()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().Unix(),
	)
	return err
}

func (s *Store) get(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		"SELECT value FROM kv WHERE key = ?", key,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return value, nil
}

func (s *Store) del(ctx context.Context, key string) error {
	s.writeLock.Lock()
	defer s.writeLock.Unlock()

	_, err := s.db.ExecContext(ctx, "DELETE FROM kv WHERE key = ?", key)
	return err
}

// SetRaw writes an arbitrary key. Used by tests and migration tooling.
func (s *Store) SetRaw(ctx context.Context, key, value string) error {
	return s.set(ctx, key, value)
}
