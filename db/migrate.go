package db

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// migrations maps schema version to its statements. Versions are applied in
// ascending order, each inside a single transaction together with its
// schema_version watermark row, so a crash mid-run leaves the watermark at
// the last fully applied version. Numbering gaps are legal and skipped.
var migrations = map[int][]string{
	1: {
		`CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS command_history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			guild_id TEXT,
			channel_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			command_name TEXT NOT NULL,
			command_args TEXT,
			executed_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			success INTEGER DEFAULT 1
		)`,
		`CREATE INDEX IF NOT EXISTS idx_command_history_guild ON command_history(guild_id)`,
		`CREATE INDEX IF NOT EXISTS idx_command_history_user ON command_history(user_id)`,
		`CREATE TABLE IF NOT EXISTS guild_settings (
			guild_id TEXT PRIMARY KEY,
			prefix TEXT,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS user_data (
			user_id TEXT PRIMARY KEY,
			data TEXT,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
	},
	2: {
		`ALTER TABLE user_data ADD COLUMN encryption_version INTEGER NOT NULL DEFAULT 0`,
	},
}

// currentVersion is the highest declared migration version.
func currentVersion() int {
	max := 0
	for v := range migrations {
		if v > max {
			max = v
		}
	}
	return max
}

// SchemaVersion returns the current watermark. A missing schema_version table
// means an uninitialized database and yields 0; any other failure is returned
// as an error rather than being conflated with first-run.
func SchemaVersion(ctx context.Context, dbx *sql.DB) (int, error) {
	var name string
	err := dbx.QueryRowContext(ctx,
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name = 'schema_version'`).Scan(&name)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("check schema_version table: %w", err)
	}

	var version sql.NullInt64
	if err := dbx.QueryRowContext(ctx, `SELECT MAX(version) FROM schema_version`).Scan(&version); err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return int(version.Int64), nil
}

// Migrate applies all pending schema migrations and returns how many versions
// were applied. It is idempotent and safe to call on every process start;
// re-running when already current is a no-op.
func Migrate(ctx context.Context, dbx *sql.DB) (int, error) {
	version, err := SchemaVersion(ctx, dbx)
	if err != nil {
		return 0, err
	}

	target := currentVersion()
	if version >= target {
		slog.Info("database schema is up to date", slog.Int("version", version), slog.String("component", "db_migrate"))
		return 0, nil
	}

	applied := 0
	for v := version + 1; v <= target; v++ {
		stmts, ok := migrations[v]
		if !ok {
			continue
		}

		tx, err := dbx.BeginTx(ctx, nil)
		if err != nil {
			return applied, fmt.Errorf("begin migration %d: %w", v, err)
		}
		if err := applyVersion(ctx, tx, v, stmts); err != nil {
			_ = tx.Rollback()
			return applied, err
		}
		if err := tx.Commit(); err != nil {
			return applied, fmt.Errorf("commit migration %d: %w", v, err)
		}

		applied++
		slog.Info("migration applied", slog.Int("version", v), slog.String("component", "db_migrate"))
	}

	slog.Info("database migrated", slog.Int("version", target), slog.String("component", "db_migrate"))
	return applied, nil
}

func applyVersion(ctx context.Context, tx *sql.Tx, version int, stmts []string) error {
	for i, s := range stmts {
		if _, err := tx.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("migration %d step %d failed: %w", version, i, err)
		}
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO schema_version (version) VALUES (?)`, version); err != nil {
		return fmt.Errorf("record migration %d: %w", version, err)
	}
	return nil
}
