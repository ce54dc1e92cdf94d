// Package db provides database connection helpers, the versioned schema
// migration runner, and small data access helpers for command history,
// guild settings, and per-user data.
package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3" // sqlite driver registered as 'sqlite3'

	"github.com/onnwee/infibot/crypto"
)

var (
	// encryptor is the global encryptor instance for user data at-rest encryption
	encryptor     crypto.Encryptor
	encryptorOnce sync.Once
	encryptorErr  error
)

// initEncryptor initializes the global encryptor from ENCRYPTION_KEY.
// If ENCRYPTION_KEY is not set, encryption is disabled (encryption_version = 0).
// Called lazily on first use.
func initEncryptor() {
	encryptorOnce.Do(func() {
		key := os.Getenv("ENCRYPTION_KEY")
		if key == "" {
			return
		}

		enc, err := crypto.NewAESEncryptor(key)
		if err != nil {
			encryptorErr = fmt.Errorf("failed to initialize encryption: %w", err)
			slog.Error("encryption initialization failed", slog.Any("error", encryptorErr), slog.String("component", "db_encryption"))
			return
		}

		encryptor = enc
		slog.Info("user data encryption enabled (AES-256-GCM)", slog.String("component", "db_encryption"))
	})
}

// getEncryptor returns the global encryptor, or nil if encryption is not configured.
func getEncryptor() (crypto.Encryptor, error) {
	initEncryptor()
	if encryptorErr != nil {
		return nil, encryptorErr
	}
	return encryptor, nil
}

// Connect opens the SQLite database at the given path, creating parent
// directories as needed. WAL journaling keeps reads from blocking the single
// writer, and the 5 second busy timeout makes a contended write fail fast
// with a reportable error instead of hanging a handler.
func Connect(path string) (*sql.DB, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000", path)
	database, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	// Single connection: the sqlite driver serializes writes per connection
	// and the busy timeout handles contention from other processes.
	database.SetMaxOpenConns(1)
	return database, nil
}

// IsBusy reports whether an error is a sqlite lock/busy contention failure
// surfaced after the busy timeout elapsed.
func IsBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "database table is locked")
}

// GuildSettings is the per-guild settings row.
type GuildSettings struct {
	GuildID   string
	Prefix    string // empty means default prefix
	UpdatedAt time.Time
}

// UserData is the stored per-user blob, decoded from JSON.
type UserData struct {
	UserID    string
	Data      map[string]json.RawMessage
	UpdatedAt time.Time
}

// LogCommand appends a command execution record to command_history.
func LogCommand(ctx context.Context, dbx *sql.DB, guildID, channelID, userID, commandName, commandArgs string, success bool) error {
	var guild any
	if guildID != "" {
		guild = guildID
	}
	_, err := dbx.ExecContext(ctx,
		`INSERT INTO command_history (guild_id, channel_id, user_id, command_name, command_args, success)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		guild, channelID, userID, commandName, commandArgs, boolToInt(success))
	return err
}

// GetGuildSettings returns the settings row for a guild, or nil if none exists.
func GetGuildSettings(ctx context.Context, dbx *sql.DB, guildID string) (*GuildSettings, error) {
	var gs GuildSettings
	var prefix sql.NullString
	row := dbx.QueryRowContext(ctx,
		`SELECT guild_id, prefix, updated_at FROM guild_settings WHERE guild_id = ?`, guildID)
	if err := row.Scan(&gs.GuildID, &prefix, &gs.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	gs.Prefix = prefix.String
	return &gs, nil
}

// SetGuildPrefix stores or updates the command prefix for a guild.
// An empty prefix clears the override back to the default.
func SetGuildPrefix(ctx context.Context, dbx *sql.DB, guildID, prefix string) error {
	var p any
	if prefix != "" {
		p = prefix
	}
	_, err := dbx.ExecContext(ctx,
		`INSERT INTO guild_settings (guild_id, prefix, updated_at)
		 VALUES (?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(guild_id) DO UPDATE SET
		   prefix = excluded.prefix,
		   updated_at = CURRENT_TIMESTAMP`,
		guildID, p)
	return err
}

// GetUserData returns the stored blob for a user, or nil if none exists.
// Blobs written with encryption_version=1 are decrypted transparently;
// plaintext rows (version=0) are read as-is for backward compatibility.
func GetUserData(ctx context.Context, dbx *sql.DB, userID string) (*UserData, error) {
	var ud UserData
	var raw sql.NullString
	var encVersion int
	row := dbx.QueryRowContext(ctx,
		`SELECT user_id, data, updated_at, COALESCE(encryption_version, 0) FROM user_data WHERE user_id = ?`, userID)
	if err := row.Scan(&ud.UserID, &raw, &ud.UpdatedAt, &encVersion); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	payload := raw.String
	if encVersion == 1 && payload != "" {
		enc, err := getEncryptor()
		if err != nil {
			return nil, fmt.Errorf("get encryptor for decryption: %w", err)
		}
		if enc == nil {
			return nil, fmt.Errorf("user data is encrypted but ENCRYPTION_KEY not configured")
		}
		dec, err := crypto.DecryptString(enc, payload)
		if err != nil {
			return nil, fmt.Errorf("decrypt user data: %w", err)
		}
		payload = dec
	}

	ud.Data = map[string]json.RawMessage{}
	if payload != "" {
		if err := json.Unmarshal([]byte(payload), &ud.Data); err != nil {
			return nil, fmt.Errorf("decode user data: %w", err)
		}
	}
	return &ud, nil
}

// SetUserData stores the blob for a user (JSON-serialized, upsert semantics).
// If encryption is enabled the payload is encrypted before storage and the row
// is marked encryption_version=1.
func SetUserData(ctx context.Context, dbx *sql.DB, userID string, data map[string]json.RawMessage) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode user data: %w", err)
	}

	enc, err := getEncryptor()
	if err != nil {
		return fmt.Errorf("get encryptor: %w", err)
	}

	encVersion := 0
	toStore := string(payload)
	if enc != nil {
		encVersion = 1
		encrypted, err := crypto.EncryptString(enc, toStore)
		if err != nil {
			return fmt.Errorf("encrypt user data: %w", err)
		}
		toStore = encrypted
	}

	_, err = dbx.ExecContext(ctx,
		`INSERT INTO user_data (user_id, data, encryption_version, updated_at)
		 VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(user_id) DO UPDATE SET
		   data = excluded.data,
		   encryption_version = excluded.encryption_version,
		   updated_at = CURRENT_TIMESTAMP`,
		userID, toStore, encVersion)
	return err
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
