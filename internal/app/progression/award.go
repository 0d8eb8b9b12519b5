package progression

import (
	"fmt"
	"math"

	"github.com/whispie/whispie/internal/domain"
)

const (
	firstConversationBonus = 25
	streakBonusPerDay      = 0.05
	streakBonusCap         = 0.50
)

// XPFromScore returns the base award for a session score.
// Brackets include their lower bound: 90+ 50, 80+ 40, 70+ 30, 50+ 20, else 10.
func XPFromScore(score int) int64 {
	switch {
	case score >= 90:
		return 50
	case score >= 80:
		return 40
	case score >= 70:
		return 30
	case score >= 50:
		return 20
	default:
		return 10
	}
}

// StreakMultiplier returns the XP multiplier for a streak.
// +5% per consecutive day, capped at +50%.
func StreakMultiplier(streakDays int) float64 {
	if streakDays <= 0 {
		return 1.0
	}
	return 1 + math.Min(float64(streakDays)*streakBonusPerDay, streakBonusCap)
}

// DifficultyMultiplier returns 1.5 for hard, 1.25 for medium and 1 for easy.
func DifficultyMultiplier(d domain.Difficulty) float64 {
	switch d {
	case domain.DifficultyHard:
		return 1.5
	case domain.DifficultyMedium:
		return 1.25
	default:
		return 1.0
	}
}

// AwardOptions carries the session context the bonuses depend on.
// CurrentStreakDays is the streak before this session is applied.
type AwardOptions struct {
	IsFirstConversation bool
	CurrentStreakDays   int
	Difficulty          domain.Difficulty
}

// AwardBreakdown shows the running total after each stage of the award.
type AwardBreakdown struct {
	Base            int64 `json:"base"`
	FirstBonus      int64 `json:"first_bonus"`
	AfterStreak     int64 `json:"after_streak"`
	AfterDifficulty int64 `json:"after_difficulty"`
}

// Total returns the final award.
func (b AwardBreakdown) Total() int64 {
	return b.AfterDifficulty
}

// BreakdownSessionAward computes the award stage by stage. Order matters:
// first-conversation bonus, then streak multiplier, then difficulty
// multiplier, flooring after each multiplication.
func BreakdownSessionAward(score int, opts AwardOptions) (AwardBreakdown, error) {
	var b AwardBreakdown
	if score < 0 || score > 100 {
		return b, fmt.Errorf("%w: %d", domain.ErrInvalidScore, score)
	}
	if opts.CurrentStreakDays < 0 {
		return b, fmt.Errorf("%w: %d", domain.ErrInvalidStreak, opts.CurrentStreakDays)
	}
	if !opts.Difficulty.Valid() {
		return b, fmt.Errorf("%w: %q", domain.ErrInvalidDifficulty, opts.Difficulty)
	}

	b.Base = XPFromScore(score)
	total := b.Base

	if opts.IsFirstConversation {
		b.FirstBonus = firstConversationBonus
		total += firstConversationBonus
	}

	total = int64(math.Floor(float64(total) * StreakMultiplier(opts.CurrentStreakDays)))
	b.AfterStreak = total

	total = int64(math.Floor(float64(total) * DifficultyMultiplier(opts.Difficulty)))
	b.AfterDifficulty = total

	return b, nil
}

// CalculateSessionAward returns the XP earned by one completed session.
func CalculateSessionAward(score int, opts AwardOptions) (int64, error) {
	b, err := BreakdownSessionAward(score, opts)
	if err != nil {
		return 0, err
	}
	return b.Total(), nil
}
