// Package sqlite provides SQLite-based persistent storage for Whispie.
// Uses WAL mode for concurrent reads and crash-safe writes.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver (no CGO required)

	"github.com/whispie/whispie/internal/domain"
)

// DB wraps a SQLite connection with WAL mode and migrations.
// It implements domain.ProgressionStore.
type DB struct {
	db  *sql.DB
	now func() time.Time
}

var _ domain.ProgressionStore = (*DB)(nil)

// Open creates or opens the SQLite database at dir/whispie.db.
// Enables WAL mode, foreign keys, and a 5-second busy timeout.
func Open(dir string) (*DB, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	db, err := sql.Open("sqlite", filepath.Join(dir, "whispie.db"))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite is single-writer. One connection also serializes every
	// session commit, and keeps the pragmas below in effect.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", p, err)
		}
	}

	d := &DB{db: db, now: time.Now}
	if err := d.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return d, nil
}

// Close cleanly shuts down the database.
func (d *DB) Close() error {
	return d.db.Close()
}

// Ping checks database connectivity.
func (d *DB) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

// migrate runs idempotent schema migrations.
func (d *DB) migrate() error {
	migrations := []string{
		// Profiles: the progression slice of a user profile.
		`CREATE TABLE IF NOT EXISTS profiles (
			user_id                TEXT PRIMARY KEY,
			xp                     INTEGER NOT NULL DEFAULT 0,
			level                  INTEGER NOT NULL DEFAULT 1,
			current_streak         INTEGER NOT NULL DEFAULT 0,
			longest_streak         INTEGER NOT NULL DEFAULT 0,
			last_practice_date     TEXT,
			total_conversations    INTEGER NOT NULL DEFAULT 0,
			total_practice_minutes INTEGER NOT NULL DEFAULT 0,
			created_at             INTEGER NOT NULL,
			updated_at             INTEGER NOT NULL
		)`,

		// Achievement catalog
		`CREATE TABLE IF NOT EXISTS achievements (
			id                TEXT PRIMARY KEY,
			key               TEXT NOT NULL UNIQUE,
			name              TEXT NOT NULL,
			description       TEXT NOT NULL DEFAULT '',
			icon              TEXT NOT NULL DEFAULT '',
			xp_reward         INTEGER NOT NULL DEFAULT 0,
			category          TEXT NOT NULL,
			requirement_value INTEGER,
			is_active         BOOLEAN NOT NULL DEFAULT 1,
			sort_order        INTEGER NOT NULL DEFAULT 0,
			created_at        INTEGER NOT NULL
		)`,

		// Unlock records; the primary key rejects a second unlock.
		`CREATE TABLE IF NOT EXISTS user_achievements (
			user_id         TEXT NOT NULL REFERENCES profiles(user_id) ON DELETE CASCADE,
			achievement_key TEXT NOT NULL,
			unlocked_at     INTEGER NOT NULL,
			PRIMARY KEY (user_id, achievement_key)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_user_achievements_at ON user_achievements(user_id, unlocked_at)`,

		// One row per completed session, for replay.
		`CREATE TABLE IF NOT EXISTS practice_sessions (
			session_id       TEXT PRIMARY KEY,
			user_id          TEXT NOT NULL REFERENCES profiles(user_id) ON DELETE CASCADE,
			overall_score    INTEGER NOT NULL,
			difficulty       TEXT NOT NULL,
			duration_minutes INTEGER NOT NULL DEFAULT 0,
			xp_earned        INTEGER NOT NULL,
			achievement_xp   INTEGER NOT NULL DEFAULT 0,
			xp_after         INTEGER NOT NULL,
			level_before     INTEGER NOT NULL,
			level_after      INTEGER NOT NULL,
			streak_after     INTEGER NOT NULL,
			unlocked_keys    TEXT NOT NULL DEFAULT '[]',
			completed_at     INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_user ON practice_sessions(user_id, completed_at)`,
	}

	for _, m := range migrations {
		if _, err := d.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\nSQL: %s", err, m)
		}
	}
	return nil
}

// ─── Helpers ────────────────────────────────────────────────────────────────

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func nullableDate(d domain.Date) sql.NullString {
	if d.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: d.String(), Valid: true}
}

func nullableInt(p *int) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*p), Valid: true}
}
