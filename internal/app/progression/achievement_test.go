package progression

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/whispie/whispie/internal/domain"
)

// tuesdayNoon is a weekday hour that trips none of the time rules.
var tuesdayNoon = time.Date(2025, time.July, 8, 12, 0, 0, 0, time.UTC)

func stats(conversations, streak, score int, now time.Time) domain.AchievementStats {
	return domain.AchievementStats{
		TotalConversations: conversations,
		CurrentStreak:      streak,
		OverallScore:       score,
		Now:                now,
	}
}

func TestEvaluateAchievements_FirstSession(t *testing.T) {
	got := EvaluateAchievements(DefaultCatalog(), nil, stats(1, 1, 45, tuesdayNoon))
	assert.Equal(t, []string{"first_conversation"}, got)
}

func TestEvaluateAchievements_Thresholds(t *testing.T) {
	got := EvaluateAchievements(DefaultCatalog(), nil, stats(10, 7, 90, tuesdayNoon))
	assert.Equal(t, []string{
		"first_conversation", "conversations_5", "conversations_10",
		"streak_3", "streak_7",
		"score_80", "score_90",
	}, got)
}

func TestEvaluateAchievements_SkipsUnlocked(t *testing.T) {
	unlocked := NewKeySet("first_conversation", "conversations_5")
	got := EvaluateAchievements(DefaultCatalog(), unlocked, stats(5, 1, 10, tuesdayNoon))
	assert.Empty(t, got)
}

func TestEvaluateAchievements_NeverReunlocks(t *testing.T) {
	unlocked := NewKeySet("first_conversation")
	got := EvaluateAchievements(DefaultCatalog(), unlocked, stats(5, 1, 10, tuesdayNoon))
	assert.Equal(t, []string{"conversations_5"}, got)
	assert.NotContains(t, got, "first_conversation")
}

func TestEvaluateAchievements_TimeRules(t *testing.T) {
	tests := []struct {
		name string
		now  time.Time
		want []string
	}{
		{"22:00 is night", time.Date(2025, time.July, 8, 22, 0, 0, 0, time.UTC), []string{"night_owl"}},
		{"21:59 is not night", time.Date(2025, time.July, 8, 21, 59, 0, 0, time.UTC), nil},
		{"06:59 is early", time.Date(2025, time.July, 8, 6, 59, 0, 0, time.UTC), []string{"early_bird"}},
		{"07:00 is not early", time.Date(2025, time.July, 8, 7, 0, 0, 0, time.UTC), nil},
		{"saturday", time.Date(2025, time.July, 12, 12, 0, 0, 0, time.UTC), []string{"weekend_warrior"}},
		{"sunday midnight", time.Date(2025, time.July, 13, 0, 30, 0, 0, time.UTC), []string{"early_bird", "weekend_warrior"}},
	}
	unlocked := NewKeySet("first_conversation")
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EvaluateAchievements(DefaultCatalog(), unlocked, stats(2, 1, 10, tt.now))
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEvaluateAchievements_UsesWallClockOfNow(t *testing.T) {
	tokyo, err := time.LoadLocation("Asia/Tokyo")
	require.NoError(t, err)

	// 14:00 UTC on a Friday is 23:00 in Tokyo.
	utc := time.Date(2025, time.July, 11, 14, 0, 0, 0, time.UTC)
	unlocked := NewKeySet("first_conversation")

	assert.Empty(t, EvaluateAchievements(DefaultCatalog(), unlocked, stats(2, 1, 10, utc)))
	assert.Equal(t, []string{"night_owl"},
		EvaluateAchievements(DefaultCatalog(), unlocked, stats(2, 1, 10, utc.In(tokyo))))
}

func TestEvaluateAchievements_InactiveDuplicateAndUnmapped(t *testing.T) {
	catalog := []domain.AchievementDefinition{
		{Key: "first_conversation", Category: domain.CatMilestone, IsActive: false},
		{Key: "score_80", Category: domain.CatSkill, IsActive: true},
		{Key: "score_80", Category: domain.CatSkill, IsActive: true},
		{Key: "ambassador", Category: domain.CatSpecial, IsActive: true},
	}
	got := EvaluateAchievements(catalog, nil, stats(1, 1, 85, tuesdayNoon))
	assert.Equal(t, []string{"score_80"}, got)
}

func TestEvaluateAchievements_EmptyCatalog(t *testing.T) {
	assert.Empty(t, EvaluateAchievements(nil, nil, stats(100, 100, 100, tuesdayNoon)))
}

func TestRuleFor_CoversDefaultCatalog(t *testing.T) {
	for _, def := range DefaultCatalog() {
		_, ok := RuleFor(def.Key)
		assert.True(t, ok, "no rule for %s", def.Key)
	}
	_, ok := RuleFor("ambassador")
	assert.False(t, ok)
}

func TestRewardFor(t *testing.T) {
	catalog := DefaultCatalog()
	assert.Equal(t, int64(10), RewardFor(catalog, []string{"first_conversation"}))
	assert.Equal(t, int64(35), RewardFor(catalog, []string{"first_conversation", "conversations_5"}))
	assert.Equal(t, int64(10), RewardFor(catalog, []string{"first_conversation", "first_conversation"}))
	assert.Equal(t, int64(0), RewardFor(catalog, []string{"unknown"}))
	assert.Equal(t, int64(0), RewardFor(catalog, nil))

	negative := []domain.AchievementDefinition{{Key: "score_80", XPReward: -50}}
	assert.Equal(t, int64(0), RewardFor(negative, []string{"score_80"}))
}

func TestDefinitionsFor(t *testing.T) {
	defs := DefinitionsFor(DefaultCatalog(), []string{"streak_3", "missing", "first_conversation"})
	require.Len(t, defs, 2)
	assert.Equal(t, "streak_3", defs[0].Key)
	assert.Equal(t, "first_conversation", defs[1].Key)
}

func TestRuleKindString(t *testing.T) {
	assert.Equal(t, "conversations", RuleConversations.String())
	assert.Equal(t, "weekend", RuleWeekend.String())
	assert.Equal(t, "unknown", RuleKind(0).String())
}
