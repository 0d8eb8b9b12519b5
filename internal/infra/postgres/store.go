// Package postgres implements domain.ProgressionStore on PostgreSQL.
// The schema matches the hosted (Supabase) deployment: profiles,
// achievements, user_achievements and practice_sessions.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/whispie/whispie/internal/domain"
)

// uniqueViolation is the SQLSTATE for a unique constraint failure.
const uniqueViolation = "23505"

// Store is a pgxpool-backed progression store.
type Store struct {
	pool *pgxpool.Pool
}

var _ domain.ProgressionStore = (*Store)(nil)

// Open connects to databaseURL, verifies the connection and applies the schema.
// maxConns <= 0 keeps the pool default.
func Open(ctx context.Context, databaseURL string, maxConns int32) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse database URL: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	cfg.MaxConnLifetime = time.Hour
	cfg.MaxConnIdleTime = 30 * time.Minute
	cfg.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}

	s := &Store{pool: pool}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

const schema = `
CREATE TABLE IF NOT EXISTS profiles (
    user_id                TEXT PRIMARY KEY,
    xp                     BIGINT NOT NULL DEFAULT 0,
    level                  INTEGER NOT NULL DEFAULT 1,
    current_streak         INTEGER NOT NULL DEFAULT 0,
    longest_streak         INTEGER NOT NULL DEFAULT 0,
    last_practice_date     DATE,
    total_conversations    INTEGER NOT NULL DEFAULT 0,
    total_practice_minutes INTEGER NOT NULL DEFAULT 0,
    created_at             TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    updated_at             TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_xp CHECK (xp >= 0),
    CONSTRAINT valid_streak CHECK (longest_streak >= current_streak AND current_streak >= 0)
);

CREATE TABLE IF NOT EXISTS achievements (
    id                UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    key               VARCHAR(64) NOT NULL UNIQUE,
    name              VARCHAR(100) NOT NULL,
    description       TEXT NOT NULL DEFAULT '',
    icon              VARCHAR(16) NOT NULL DEFAULT '',
    xp_reward         BIGINT NOT NULL DEFAULT 0,
    category          VARCHAR(20) NOT NULL,
    requirement_value INTEGER,
    is_active         BOOLEAN NOT NULL DEFAULT TRUE,
    sort_order        INTEGER NOT NULL DEFAULT 0,
    created_at        TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_category CHECK (category IN ('milestone', 'streak', 'skill', 'special')),
    CONSTRAINT valid_reward CHECK (xp_reward >= 0)
);

CREATE TABLE IF NOT EXISTS user_achievements (
    user_id         TEXT NOT NULL REFERENCES profiles(user_id) ON DELETE CASCADE,
    achievement_key VARCHAR(64) NOT NULL,
    unlocked_at     TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    PRIMARY KEY (user_id, achievement_key)
);

CREATE TABLE IF NOT EXISTS practice_sessions (
    session_id       TEXT PRIMARY KEY,
    user_id          TEXT NOT NULL REFERENCES profiles(user_id) ON DELETE CASCADE,
    overall_score    INTEGER NOT NULL,
    difficulty       VARCHAR(10) NOT NULL,
    duration_minutes INTEGER NOT NULL DEFAULT 0,
    xp_earned        BIGINT NOT NULL,
    achievement_xp   BIGINT NOT NULL DEFAULT 0,
    xp_after         BIGINT NOT NULL,
    level_before     INTEGER NOT NULL,
    level_after      INTEGER NOT NULL,
    streak_after     INTEGER NOT NULL,
    unlocked_keys    TEXT[] NOT NULL DEFAULT '{}',
    completed_at     TIMESTAMP WITH TIME ZONE NOT NULL,

    CONSTRAINT valid_score CHECK (overall_score BETWEEN 0 AND 100),
    CONSTRAINT valid_difficulty CHECK (difficulty IN ('easy', 'medium', 'hard'))
);

CREATE INDEX IF NOT EXISTS idx_user_achievements_user ON user_achievements(user_id, unlocked_at DESC);
CREATE INDEX IF NOT EXISTS idx_practice_sessions_user ON practice_sessions(user_id, completed_at DESC);
`

func (s *Store) migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("postgres: migrate: %w", err)
	}
	return nil
}

// ─── Profiles ───────────────────────────────────────────────────────────────

// GetProgression returns the user's progression state or domain.ErrProfileNotFound.
func (s *Store) GetProgression(ctx context.Context, userID string) (domain.ProgressionState, error) {
	var st domain.ProgressionState
	var last *time.Time
	err := s.pool.QueryRow(ctx,
		`SELECT xp, level, current_streak, longest_streak, last_practice_date,
			total_conversations, total_practice_minutes
		 FROM profiles WHERE user_id = $1`, userID,
	).Scan(&st.XP, &st.Level, &st.CurrentStreak, &st.LongestStreak, &last,
		&st.TotalConversations, &st.TotalPracticeMinutes)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ProgressionState{}, domain.ErrProfileNotFound
	}
	if err != nil {
		return domain.ProgressionState{}, err
	}
	if last != nil {
		st.LastPracticeDate = domain.DateOf(last.UTC())
	}
	return st, nil
}

// CreateProfile inserts a fresh profile or returns domain.ErrProfileExists.
func (s *Store) CreateProfile(ctx context.Context, userID string) (domain.ProgressionState, error) {
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO profiles (user_id) VALUES ($1) ON CONFLICT (user_id) DO NOTHING`, userID)
	if err != nil {
		return domain.ProgressionState{}, fmt.Errorf("create profile: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ProgressionState{}, domain.ErrProfileExists
	}
	return domain.NewProgressionState(), nil
}

// ─── Achievement Catalog ────────────────────────────────────────────────────

// ListActiveAchievements returns active catalog rows by category, then seed order.
func (s *Store) ListActiveAchievements(ctx context.Context) ([]domain.AchievementDefinition, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT key, name, description, icon, xp_reward, category, requirement_value, is_active
		 FROM achievements
		 WHERE is_active
		 ORDER BY array_position(ARRAY['milestone','streak','skill','special']::varchar[], category),
			sort_order, key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var defs []domain.AchievementDefinition
	for rows.Next() {
		var def domain.AchievementDefinition
		var category string
		if err := rows.Scan(&def.Key, &def.Name, &def.Description, &def.Icon,
			&def.XPReward, &category, &def.RequirementValue, &def.IsActive); err != nil {
			return nil, err
		}
		def.Category = domain.AchievementCategory(category)
		defs = append(defs, def)
	}
	return defs, rows.Err()
}

// UpsertAchievements inserts or updates catalog rows by key in one batch.
func (s *Store) UpsertAchievements(ctx context.Context, defs []domain.AchievementDefinition) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for i, def := range defs {
			batch.Queue(
				`INSERT INTO achievements (key, name, description, icon, xp_reward, category,
					requirement_value, is_active, sort_order)
				 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
				 ON CONFLICT (key) DO UPDATE SET
					name = EXCLUDED.name,
					description = EXCLUDED.description,
					icon = EXCLUDED.icon,
					xp_reward = EXCLUDED.xp_reward,
					category = EXCLUDED.category,
					requirement_value = EXCLUDED.requirement_value,
					is_active = EXCLUDED.is_active,
					sort_order = EXCLUDED.sort_order`,
				def.Key, def.Name, def.Description, def.Icon, def.XPReward,
				string(def.Category), def.RequirementValue, def.IsActive, i,
			)
		}
		return tx.SendBatch(ctx, batch).Close()
	})
}

// ─── Unlock Records ─────────────────────────────────────────────────────────

// ListUnlockedAchievements returns the user's unlock records, newest first.
func (s *Store) ListUnlockedAchievements(ctx context.Context, userID string) ([]domain.UnlockedAchievement, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT achievement_key, unlocked_at FROM user_achievements
		 WHERE user_id = $1 ORDER BY unlocked_at DESC, achievement_key`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.UnlockedAchievement
	for rows.Next() {
		var u domain.UnlockedAchievement
		if err := rows.Scan(&u.Key, &u.UnlockedAt); err != nil {
			return nil, err
		}
		u.UnlockedAt = u.UnlockedAt.UTC()
		out = append(out, u)
	}
	return out, rows.Err()
}

// ─── Sessions ───────────────────────────────────────────────────────────────

// GetSession returns a recorded session, or nil if it was never recorded.
func (s *Store) GetSession(ctx context.Context, sessionID string) (*domain.SessionRecord, error) {
	var rec domain.SessionRecord
	var difficulty string
	err := s.pool.QueryRow(ctx,
		`SELECT session_id, user_id, overall_score, difficulty, duration_minutes, xp_earned,
			achievement_xp, xp_after, level_before, level_after, streak_after, unlocked_keys, completed_at
		 FROM practice_sessions WHERE session_id = $1`, sessionID,
	).Scan(&rec.SessionID, &rec.UserID, &rec.OverallScore, &difficulty, &rec.DurationMinutes,
		&rec.XPEarned, &rec.AchievementXP, &rec.XPAfter, &rec.LevelBefore, &rec.LevelAfter,
		&rec.StreakAfter, &rec.UnlockedKeys, &rec.CompletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	rec.Difficulty = domain.Difficulty(difficulty)
	rec.CompletedAt = rec.CompletedAt.UTC()
	return &rec, nil
}

// CommitSession applies a session in one transaction, guarded by the
// expected snapshot's xp and total_conversations.
func (s *Store) CommitSession(ctx context.Context, c domain.SessionCommit) error {
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		next := c.Next
		var last *time.Time
		if !next.LastPracticeDate.IsZero() {
			t := next.LastPracticeDate.Time()
			last = &t
		}

		tag, err := tx.Exec(ctx,
			`UPDATE profiles SET
				xp = $1, level = $2, current_streak = $3, longest_streak = $4,
				last_practice_date = $5, total_conversations = $6, total_practice_minutes = $7,
				updated_at = NOW()
			 WHERE user_id = $8 AND xp = $9 AND total_conversations = $10`,
			next.XP, next.Level, next.CurrentStreak, next.LongestStreak, last,
			next.TotalConversations, next.TotalPracticeMinutes,
			c.UserID, c.Expected.XP, c.Expected.TotalConversations,
		)
		if err != nil {
			return fmt.Errorf("update profile: %w", err)
		}
		if tag.RowsAffected() == 0 {
			var found bool
			if err := tx.QueryRow(ctx,
				`SELECT EXISTS (SELECT 1 FROM profiles WHERE user_id = $1)`, c.UserID).Scan(&found); err != nil {
				return err
			}
			if !found {
				return domain.ErrProfileNotFound
			}
			return domain.ErrConcurrentUpdate
		}

		for _, u := range c.Unlocks {
			tag, err := tx.Exec(ctx,
				`INSERT INTO user_achievements (user_id, achievement_key, unlocked_at)
				 VALUES ($1, $2, $3) ON CONFLICT DO NOTHING`,
				c.UserID, u.Key, u.UnlockedAt)
			if err != nil {
				return fmt.Errorf("unlock %s: %w", u.Key, err)
			}
			if tag.RowsAffected() == 0 {
				return domain.ErrConcurrentUpdate
			}
		}

		rec := c.Session
		keys := rec.UnlockedKeys
		if keys == nil {
			keys = []string{}
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO practice_sessions (session_id, user_id, overall_score, difficulty,
				duration_minutes, xp_earned, achievement_xp, xp_after, level_before, level_after,
				streak_after, unlocked_keys, completed_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
			rec.SessionID, c.UserID, rec.OverallScore, string(rec.Difficulty), rec.DurationMinutes,
			rec.XPEarned, rec.AchievementXP, rec.XPAfter, rec.LevelBefore, rec.LevelAfter,
			rec.StreakAfter, keys, rec.CompletedAt,
		)
		if err != nil {
			return fmt.Errorf("record session: %w", err)
		}
		return nil
	})

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation && pgErr.TableName == "practice_sessions" {
		return domain.ErrSessionRecorded
	}
	return err
}
