package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/whispie/whispie/internal/domain"
)

// newTestStore connects to WHISPIE_TEST_POSTGRES_URL or skips.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	url := os.Getenv("WHISPIE_TEST_POSTGRES_URL")
	if url == "" {
		t.Skip("WHISPIE_TEST_POSTGRES_URL not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	s, err := Open(ctx, url, 4)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func reqValue(n int) *int { return &n }

func TestStore_ProfileLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	user := "test-" + uuid.NewString()

	_, err := s.GetProgression(ctx, user)
	assert.ErrorIs(t, err, domain.ErrProfileNotFound)

	st, err := s.CreateProfile(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, 1, st.Level)

	_, err = s.CreateProfile(ctx, user)
	assert.ErrorIs(t, err, domain.ErrProfileExists)

	got, err := s.GetProgression(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, st, got)
}

func TestStore_CatalogUpsert(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	key := "test_" + uuid.NewString()[:8]
	def := domain.AchievementDefinition{
		Key: key, Name: "Test", Category: domain.CatSkill,
		XPReward: 5, RequirementValue: reqValue(3), IsActive: true,
	}
	require.NoError(t, s.UpsertAchievements(ctx, []domain.AchievementDefinition{def}))

	def.XPReward = 7
	require.NoError(t, s.UpsertAchievements(ctx, []domain.AchievementDefinition{def}))

	defs, err := s.ListActiveAchievements(ctx)
	require.NoError(t, err)
	var found *domain.AchievementDefinition
	for i := range defs {
		if defs[i].Key == key {
			found = &defs[i]
		}
	}
	require.NotNil(t, found)
	assert.Equal(t, int64(7), found.XPReward)
	require.NotNil(t, found.RequirementValue)
	assert.Equal(t, 3, *found.RequirementValue)

	def.IsActive = false
	require.NoError(t, s.UpsertAchievements(ctx, []domain.AchievementDefinition{def}))
	defs, err = s.ListActiveAchievements(ctx)
	require.NoError(t, err)
	for _, d := range defs {
		assert.NotEqual(t, key, d.Key, "inactive rows are not listed")
	}
}

func TestStore_CommitSession(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	user := "test-" + uuid.NewString()
	session := uuid.NewString()

	st, err := s.CreateProfile(ctx, user)
	require.NoError(t, err)

	at := time.Date(2025, time.July, 8, 12, 0, 0, 0, time.UTC)
	next := st
	next.XP = 45
	next.CurrentStreak, next.LongestStreak = 1, 1
	next.LastPracticeDate = domain.DateOf(at)
	next.TotalConversations = 1

	commit := domain.SessionCommit{
		UserID:   user,
		Expected: st,
		Next:     next,
		Unlocks:  []domain.UnlockedAchievement{{Key: "first_conversation", UnlockedAt: at}},
		Session: domain.SessionRecord{
			SessionID: session, UserID: user, OverallScore: 45, Difficulty: domain.DifficultyEasy,
			XPEarned: 35, AchievementXP: 10, XPAfter: 45, LevelBefore: 1, LevelAfter: 1,
			StreakAfter: 1, UnlockedKeys: []string{"first_conversation"}, CompletedAt: at,
		},
	}
	require.NoError(t, s.CommitSession(ctx, commit))

	got, err := s.GetProgression(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, next, got)

	unlocked, err := s.ListUnlockedAchievements(ctx, user)
	require.NoError(t, err)
	require.Len(t, unlocked, 1)
	assert.True(t, at.Equal(unlocked[0].UnlockedAt))

	rec, err := s.GetSession(ctx, session)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, []string{"first_conversation"}, rec.UnlockedKeys)
	assert.Equal(t, domain.DifficultyEasy, rec.Difficulty)

	// Replaying the same commit hits the snapshot guard first.
	assert.ErrorIs(t, s.CommitSession(ctx, commit), domain.ErrConcurrentUpdate)

	// With a fresh snapshot the duplicate session ID is rejected.
	commit.Expected = got
	commit.Unlocks = nil
	assert.ErrorIs(t, s.CommitSession(ctx, commit), domain.ErrSessionRecorded)
}

func TestStore_GetSession_NotFound(t *testing.T) {
	s := newTestStore(t)
	rec, err := s.GetSession(context.Background(), uuid.NewString())
	require.NoError(t, err)
	assert.Nil(t, rec)
}
