package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/whispie/whispie/internal/domain"
)

// ─── Profiles ───────────────────────────────────────────────────────────────

const profileColumns = `xp, level, current_streak, longest_streak, last_practice_date,
	total_conversations, total_practice_minutes`

// GetProgression returns the user's progression state or domain.ErrProfileNotFound.
func (d *DB) GetProgression(ctx context.Context, userID string) (domain.ProgressionState, error) {
	row := d.db.QueryRowContext(ctx,
		`SELECT `+profileColumns+` FROM profiles WHERE user_id = ?`, userID)
	st, err := scanProgression(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ProgressionState{}, domain.ErrProfileNotFound
	}
	return st, err
}

// CreateProfile inserts a fresh profile. Returns domain.ErrProfileExists if
// the user already has one.
func (d *DB) CreateProfile(ctx context.Context, userID string) (domain.ProgressionState, error) {
	now := d.now().Unix()
	res, err := d.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO profiles (user_id, created_at, updated_at) VALUES (?, ?, ?)`,
		userID, now, now,
	)
	if err != nil {
		return domain.ProgressionState{}, fmt.Errorf("create profile: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ProgressionState{}, domain.ErrProfileExists
	}
	return domain.NewProgressionState(), nil
}

func scanProgression(s scanner) (domain.ProgressionState, error) {
	var st domain.ProgressionState
	var last sql.NullString
	err := s.Scan(&st.XP, &st.Level, &st.CurrentStreak, &st.LongestStreak, &last,
		&st.TotalConversations, &st.TotalPracticeMinutes)
	if err != nil {
		return domain.ProgressionState{}, err
	}
	if last.Valid {
		if st.LastPracticeDate, err = domain.ParseDate(last.String); err != nil {
			return domain.ProgressionState{}, err
		}
	}
	return st, nil
}

// ─── Achievement Catalog ────────────────────────────────────────────────────

// ListActiveAchievements returns active catalog rows in display order:
// by category, then in the order they were seeded.
func (d *DB) ListActiveAchievements(ctx context.Context) ([]domain.AchievementDefinition, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT key, name, description, icon, xp_reward, category, requirement_value, is_active
		 FROM achievements
		 WHERE is_active = 1
		 ORDER BY CASE category
			WHEN 'milestone' THEN 0
			WHEN 'streak' THEN 1
			WHEN 'skill' THEN 2
			WHEN 'special' THEN 3
			ELSE 4 END, sort_order, key`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var defs []domain.AchievementDefinition
	for rows.Next() {
		var def domain.AchievementDefinition
		var req sql.NullInt64
		if err := rows.Scan(&def.Key, &def.Name, &def.Description, &def.Icon,
			&def.XPReward, &def.Category, &req, &def.IsActive); err != nil {
			return nil, err
		}
		if req.Valid {
			v := int(req.Int64)
			def.RequirementValue = &v
		}
		defs = append(defs, def)
	}
	return defs, rows.Err()
}

// UpsertAchievements inserts or updates catalog rows by key. The slice order
// becomes the display order within each category.
func (d *DB) UpsertAchievements(ctx context.Context, defs []domain.AchievementDefinition) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := d.now().Unix()
	for i, def := range defs {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO achievements (id, key, name, description, icon, xp_reward, category,
				requirement_value, is_active, sort_order, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT(key) DO UPDATE SET
				name=excluded.name,
				description=excluded.description,
				icon=excluded.icon,
				xp_reward=excluded.xp_reward,
				category=excluded.category,
				requirement_value=excluded.requirement_value,
				is_active=excluded.is_active,
				sort_order=excluded.sort_order`,
			uuid.NewString(), def.Key, def.Name, def.Description, def.Icon, def.XPReward,
			string(def.Category), nullableInt(def.RequirementValue), def.IsActive, i, now,
		)
		if err != nil {
			return fmt.Errorf("upsert achievement %s: %w", def.Key, err)
		}
	}
	return tx.Commit()
}

// ─── Unlock Records ─────────────────────────────────────────────────────────

// ListUnlockedAchievements returns the user's unlock records, newest first.
func (d *DB) ListUnlockedAchievements(ctx context.Context, userID string) ([]domain.UnlockedAchievement, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT achievement_key, unlocked_at FROM user_achievements
		 WHERE user_id = ? ORDER BY unlocked_at DESC, achievement_key`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.UnlockedAchievement
	for rows.Next() {
		var u domain.UnlockedAchievement
		var at int64
		if err := rows.Scan(&u.Key, &at); err != nil {
			return nil, err
		}
		u.UnlockedAt = time.Unix(at, 0).UTC()
		out = append(out, u)
	}
	return out, rows.Err()
}

// ─── Sessions ───────────────────────────────────────────────────────────────

// GetSession returns a recorded session, or nil if it was never recorded.
func (d *DB) GetSession(ctx context.Context, sessionID string) (*domain.SessionRecord, error) {
	row := d.db.QueryRowContext(ctx,
		`SELECT session_id, user_id, overall_score, difficulty, duration_minutes, xp_earned,
			achievement_xp, xp_after, level_before, level_after, streak_after, unlocked_keys, completed_at
		 FROM practice_sessions WHERE session_id = ?`, sessionID)

	var rec domain.SessionRecord
	var keys string
	var completed int64
	err := row.Scan(&rec.SessionID, &rec.UserID, &rec.OverallScore, &rec.Difficulty,
		&rec.DurationMinutes, &rec.XPEarned, &rec.AchievementXP, &rec.XPAfter,
		&rec.LevelBefore, &rec.LevelAfter, &rec.StreakAfter, &keys, &completed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil // Not found, no error
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(keys), &rec.UnlockedKeys); err != nil {
		return nil, fmt.Errorf("decode unlocked keys: %w", err)
	}
	rec.CompletedAt = time.Unix(completed, 0).UTC()
	return &rec, nil
}

// CommitSession writes the new profile state, unlock records and session
// record in one transaction. The profile update only applies while the stored
// xp and total_conversations still match c.Expected.
func (d *DB) CommitSession(ctx context.Context, c domain.SessionCommit) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM practice_sessions WHERE session_id = ?`, c.Session.SessionID).Scan(&exists)
	if err != nil {
		return err
	}
	if exists > 0 {
		return domain.ErrSessionRecorded
	}

	next := c.Next
	res, err := tx.ExecContext(ctx,
		`UPDATE profiles SET
			xp = ?, level = ?, current_streak = ?, longest_streak = ?, last_practice_date = ?,
			total_conversations = ?, total_practice_minutes = ?, updated_at = ?
		 WHERE user_id = ? AND xp = ? AND total_conversations = ?`,
		next.XP, next.Level, next.CurrentStreak, next.LongestStreak, nullableDate(next.LastPracticeDate),
		next.TotalConversations, next.TotalPracticeMinutes, d.now().Unix(),
		c.UserID, c.Expected.XP, c.Expected.TotalConversations,
	)
	if err != nil {
		return fmt.Errorf("update profile: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		var found int
		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM profiles WHERE user_id = ?`, c.UserID).Scan(&found); err != nil {
			return err
		}
		if found == 0 {
			return domain.ErrProfileNotFound
		}
		return domain.ErrConcurrentUpdate
	}

	for _, u := range c.Unlocks {
		res, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO user_achievements (user_id, achievement_key, unlocked_at) VALUES (?, ?, ?)`,
			c.UserID, u.Key, u.UnlockedAt.Unix(),
		)
		if err != nil {
			return fmt.Errorf("unlock %s: %w", u.Key, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			// Someone else unlocked it; the plan's reward would double count.
			return domain.ErrConcurrentUpdate
		}
	}

	keys, err := json.Marshal(nonNil(c.Session.UnlockedKeys))
	if err != nil {
		return err
	}
	s := c.Session
	_, err = tx.ExecContext(ctx,
		`INSERT INTO practice_sessions (session_id, user_id, overall_score, difficulty, duration_minutes,
			xp_earned, achievement_xp, xp_after, level_before, level_after, streak_after, unlocked_keys, completed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.SessionID, c.UserID, s.OverallScore, string(s.Difficulty), s.DurationMinutes,
		s.XPEarned, s.AchievementXP, s.XPAfter, s.LevelBefore, s.LevelAfter, s.StreakAfter,
		string(keys), s.CompletedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("record session: %w", err)
	}

	return tx.Commit()
}

func nonNil(keys []string) []string {
	if keys == nil {
		return []string{}
	}
	return keys
}
