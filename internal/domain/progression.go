// Package domain holds the pure types shared by the Whispie progression engine.
// Users earn XP from completed practice sessions, keep daily streaks alive and
// unlock achievements. Nothing in this package performs I/O.
package domain

import (
	"fmt"
	"time"
)

// ─── Session Input ──────────────────────────────────────────────────────────

// Difficulty is the scenario difficulty a session was played at.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// Valid reports whether d is one of the three known difficulties.
func (d Difficulty) Valid() bool {
	switch d {
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
		return true
	}
	return false
}

// ParseDifficulty normalizes a difficulty string.
func ParseDifficulty(s string) (Difficulty, error) {
	d := Difficulty(s)
	if !d.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidDifficulty, s)
	}
	return d, nil
}

// SessionResult is the scored outcome of one completed practice conversation.
type SessionResult struct {
	SessionID       string     `json:"session_id"`
	OverallScore    int        `json:"overall_score"` // 0-100
	Difficulty      Difficulty `json:"difficulty"`
	DurationMinutes int        `json:"duration_minutes"`
}

// Validate rejects results the award math is not defined for.
func (r SessionResult) Validate() error {
	if r.OverallScore < 0 || r.OverallScore > 100 {
		return fmt.Errorf("%w: %d", ErrInvalidScore, r.OverallScore)
	}
	if !r.Difficulty.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidDifficulty, r.Difficulty)
	}
	if r.DurationMinutes < 0 {
		return fmt.Errorf("%w: negative duration %d", ErrInvalidSession, r.DurationMinutes)
	}
	return nil
}

// ─── Progression State ──────────────────────────────────────────────────────

// ProgressionState is the slice of a user profile the progression engine owns.
// Level is always LevelFromXP(XP); LongestStreak is always >= CurrentStreak.
type ProgressionState struct {
	XP                   int64 `json:"xp"`
	Level                int   `json:"level"`
	CurrentStreak        int   `json:"current_streak"`
	LongestStreak        int   `json:"longest_streak"`
	LastPracticeDate     Date  `json:"last_practice_date"` // zero = never practiced
	TotalConversations   int   `json:"total_conversations"`
	TotalPracticeMinutes int   `json:"total_practice_minutes"`
}

// NewProgressionState returns the state of a user who has never practiced.
func NewProgressionState() ProgressionState {
	return ProgressionState{Level: 1}
}

// StreakUpdate is the result of applying one session to a streak.
type StreakUpdate struct {
	NewStreak        int  `json:"new_streak"`
	NewLongestStreak int  `json:"new_longest_streak"`
	StreakIncreased  bool `json:"streak_increased"`
}

// ─── Achievement Types ──────────────────────────────────────────────────────

// AchievementCategory groups achievements by theme.
type AchievementCategory string

const (
	CatMilestone AchievementCategory = "milestone"
	CatStreak    AchievementCategory = "streak"
	CatSkill     AchievementCategory = "skill"
	CatSpecial   AchievementCategory = "special"
)

// Categories lists the categories in display order.
var Categories = []AchievementCategory{CatMilestone, CatStreak, CatSkill, CatSpecial}

// Valid reports whether c is a known category.
func (c AchievementCategory) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// AchievementDefinition is one row of the externally managed catalog.
// Whether a key can unlock at all is decided by the progression rule table.
type AchievementDefinition struct {
	Key              string              `json:"key" yaml:"key"`
	Name             string              `json:"name" yaml:"name"`
	Description      string              `json:"description" yaml:"description"`
	Icon             string              `json:"icon" yaml:"icon"`
	XPReward         int64               `json:"xp_reward" yaml:"xp_reward"`
	Category         AchievementCategory `json:"category" yaml:"category"`
	RequirementValue *int                `json:"requirement_value,omitempty" yaml:"requirement_value,omitempty"`
	IsActive         bool                `json:"is_active" yaml:"is_active"`
}

// UnlockedAchievement records when a user earned an achievement.
type UnlockedAchievement struct {
	Key        string    `json:"key"`
	UnlockedAt time.Time `json:"unlocked_at"`
}

// AchievementStats is the post-session snapshot fed to the unlock rules.
// Now must already be in the zone whose wall clock the time rules use.
type AchievementStats struct {
	TotalConversations int       `json:"total_conversations"`
	CurrentStreak      int       `json:"current_streak"`
	OverallScore       int       `json:"overall_score"`
	Now                time.Time `json:"now"`
}

// ─── Session Records ────────────────────────────────────────────────────────

// SessionRecord is the persisted outcome of one completed session. It lets a
// repeated completion of the same session replay instead of re-awarding XP.
type SessionRecord struct {
	SessionID       string     `json:"session_id"`
	UserID          string     `json:"user_id"`
	OverallScore    int        `json:"overall_score"`
	Difficulty      Difficulty `json:"difficulty"`
	DurationMinutes int        `json:"duration_minutes"`
	XPEarned        int64      `json:"xp_earned"`
	AchievementXP   int64      `json:"achievement_xp"`
	XPAfter         int64      `json:"xp_after"`
	LevelBefore     int        `json:"level_before"`
	LevelAfter      int        `json:"level_after"`
	StreakAfter     int        `json:"streak_after"`
	UnlockedKeys    []string   `json:"unlocked_keys"`
	CompletedAt     time.Time  `json:"completed_at"`
}

// SessionCommit is everything one completed session writes, applied atomically.
// Expected is the snapshot the plan was computed from; the store refuses the
// commit with ErrConcurrentUpdate if the stored profile no longer matches it.
type SessionCommit struct {
	UserID   string
	Expected ProgressionState
	Next     ProgressionState
	Unlocks  []UnlockedAchievement
	Session  SessionRecord
}

// ProfileSnapshot is the cacheable, store-derived view of one user.
type ProfileSnapshot struct {
	UserID   string                `json:"user_id"`
	State    ProgressionState      `json:"state"`
	Unlocked []UnlockedAchievement `json:"unlocked"`
}
