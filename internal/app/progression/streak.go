package progression

import (
	"github.com/whispie/whispie/internal/domain"
)

// UpdateStreak applies one completed session on day today to a streak.
//
//   - never practiced: streak starts at 1
//   - already practiced today: no change
//   - practiced yesterday: streak extends by one
//   - any longer gap: streak restarts at 1, longest is kept
//
// A last date after today is treated like "already practiced today", so a
// skewed clock can neither extend nor reset a streak.
// The caller records today as the new last practice date.
func UpdateStreak(current, longest int, last, today domain.Date) domain.StreakUpdate {
	current = max(current, 0)
	longest = max(longest, current)

	if last.IsZero() {
		return domain.StreakUpdate{
			NewStreak:        1,
			NewLongestStreak: max(longest, 1),
			StreakIncreased:  true,
		}
	}

	switch gap := today.DaysSince(last); {
	case gap <= 0:
		return domain.StreakUpdate{
			NewStreak:        current,
			NewLongestStreak: longest,
			StreakIncreased:  false,
		}

	case gap == 1:
		next := current + 1
		return domain.StreakUpdate{
			NewStreak:        next,
			NewLongestStreak: max(longest, next),
			StreakIncreased:  true,
		}

	default:
		return domain.StreakUpdate{
			NewStreak:        1,
			NewLongestStreak: max(longest, 1),
			StreakIncreased:  true,
		}
	}
}

// IsStreakAtRisk reports whether the streak resets unless the user practices
// today, i.e. the last practice was exactly yesterday. Read-only.
func IsStreakAtRisk(last, today domain.Date) bool {
	if last.IsZero() {
		return false
	}
	return today.DaysSince(last) == 1
}

// StreakMessage returns the encouragement shown next to a streak.
func StreakMessage(streak int) string {
	switch {
	case streak >= 30:
		return "Incredible dedication!"
	case streak >= 14:
		return "You're on fire!"
	case streak >= 7:
		return "One week strong!"
	case streak >= 3:
		return "Keep it going!"
	case streak >= 1:
		return "Great start!"
	default:
		return "Start your streak today!"
	}
}
