package progression

import (
	"time"

	"github.com/whispie/whispie/internal/domain"
)

// RuleKind identifies the family of an unlock rule.
type RuleKind int

const (
	// RuleConversations unlocks at a total conversation count.
	RuleConversations RuleKind = iota + 1
	// RuleStreak unlocks at a current streak length.
	RuleStreak
	// RuleScore unlocks when one session scores at least Threshold.
	RuleScore
	// RuleHourFrom unlocks when the local hour is >= Threshold.
	RuleHourFrom
	// RuleHourBefore unlocks when the local hour is < Threshold.
	RuleHourBefore
	// RuleWeekend unlocks on Saturday or Sunday.
	RuleWeekend
)

// String returns the rule family name.
func (k RuleKind) String() string {
	switch k {
	case RuleConversations:
		return "conversations"
	case RuleStreak:
		return "streak"
	case RuleScore:
		return "score"
	case RuleHourFrom:
		return "hour_from"
	case RuleHourBefore:
		return "hour_before"
	case RuleWeekend:
		return "weekend"
	default:
		return "unknown"
	}
}

// Rule is the unlock predicate for one achievement key.
type Rule struct {
	Kind      RuleKind
	Threshold int
}

// Satisfied evaluates the rule against post-session stats.
func (r Rule) Satisfied(s domain.AchievementStats) bool {
	switch r.Kind {
	case RuleConversations:
		return s.TotalConversations >= r.Threshold
	case RuleStreak:
		return s.CurrentStreak >= r.Threshold
	case RuleScore:
		return s.OverallScore >= r.Threshold
	case RuleHourFrom:
		return s.Now.Hour() >= r.Threshold
	case RuleHourBefore:
		return s.Now.Hour() < r.Threshold
	case RuleWeekend:
		wd := s.Now.Weekday()
		return wd == time.Saturday || wd == time.Sunday
	default:
		return false
	}
}

// rules maps catalog keys to their unlock predicate. A key missing here never
// unlocks automatically.
var rules = map[string]Rule{
	// Milestones
	"first_conversation": {RuleConversations, 1},
	"conversations_5":    {RuleConversations, 5},
	"conversations_10":   {RuleConversations, 10},
	"conversations_25":   {RuleConversations, 25},
	"conversations_50":   {RuleConversations, 50},

	// Streaks
	"streak_3":  {RuleStreak, 3},
	"streak_7":  {RuleStreak, 7},
	"streak_14": {RuleStreak, 14},
	"streak_30": {RuleStreak, 30},

	// Skill
	"score_80":  {RuleScore, 80},
	"score_90":  {RuleScore, 90},
	"score_100": {RuleScore, 100},

	// Special (time-based)
	"night_owl":       {RuleHourFrom, 22},
	"early_bird":      {RuleHourBefore, 7},
	"weekend_warrior": {RuleWeekend, 0},
}

// RuleFor returns the unlock rule for key.
func RuleFor(key string) (Rule, bool) {
	r, ok := rules[key]
	return r, ok
}

// KeySet is a set of achievement keys.
type KeySet map[string]struct{}

// NewKeySet builds a set from keys.
func NewKeySet(keys ...string) KeySet {
	s := make(KeySet, len(keys))
	for _, k := range keys {
		s[k] = struct{}{}
	}
	return s
}

// UnlockedKeySet builds a set from unlock records.
func UnlockedKeySet(unlocked []domain.UnlockedAchievement) KeySet {
	s := make(KeySet, len(unlocked))
	for _, u := range unlocked {
		s[u.Key] = struct{}{}
	}
	return s
}

// Has reports whether key is in the set.
func (s KeySet) Has(key string) bool {
	_, ok := s[key]
	return ok
}

// EvaluateAchievements returns the catalog keys that newly unlock for stats,
// in catalog order. Inactive, unmapped and already unlocked keys are skipped,
// and a key listed twice in the catalog is returned at most once.
func EvaluateAchievements(catalog []domain.AchievementDefinition, unlocked KeySet, stats domain.AchievementStats) []string {
	var newlyUnlocked []string
	seen := make(KeySet, len(catalog))

	for _, def := range catalog {
		if !def.IsActive || unlocked.Has(def.Key) || seen.Has(def.Key) {
			continue
		}
		seen[def.Key] = struct{}{}

		rule, ok := RuleFor(def.Key)
		if !ok {
			continue
		}
		if rule.Satisfied(stats) {
			newlyUnlocked = append(newlyUnlocked, def.Key)
		}
	}
	return newlyUnlocked
}

// RewardFor sums the XP reward of the catalog entries named by keys.
func RewardFor(catalog []domain.AchievementDefinition, keys []string) int64 {
	want := NewKeySet(keys...)
	var total int64
	for _, def := range catalog {
		if want.Has(def.Key) {
			total += max(def.XPReward, 0)
			delete(want, def.Key)
		}
	}
	return total
}

// DefinitionsFor returns the catalog entries named by keys, in key order.
func DefinitionsFor(catalog []domain.AchievementDefinition, keys []string) []domain.AchievementDefinition {
	byKey := make(map[string]domain.AchievementDefinition, len(catalog))
	for _, def := range catalog {
		if _, dup := byKey[def.Key]; !dup {
			byKey[def.Key] = def
		}
	}
	defs := make([]domain.AchievementDefinition, 0, len(keys))
	for _, k := range keys {
		if def, ok := byKey[k]; ok {
			defs = append(defs, def)
		}
	}
	return defs
}
