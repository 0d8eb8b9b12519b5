package cache

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

// newTestCache connects to WHISPIE_TEST_REDIS_ADDR or skips.
func newTestCache(t *testing.T, ttl time.Duration) *RedisCache {
	t.Helper()
	addr := os.Getenv("WHISPIE_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("WHISPIE_TEST_REDIS_ADDR not set")
	}
	c, err := NewRedisCache(context.Background(), Config{Addr: addr, TTL: ttl})
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestKey(t *testing.T) {
	assert.Equal(t, "whispie:profile:u1", key("u1"))
	assert.Equal(t, "whispie:profile-gen:u1", genKey("u1"))
}

func TestRedisCache_RoundTrip(t *testing.T) {
	c := newTestCache(t, time.Minute)
	ctx := context.Background()
	user := uuid.NewString()

	_, err := c.Get(ctx, user)
	assert.ErrorIs(t, err, domain.ErrCacheMiss)

	snap := domain.ProfileSnapshot{
		UserID: user,
		State: domain.ProgressionState{
			XP: 197, Level: 3, CurrentStreak: 2, LongestStreak: 4,
			LastPracticeDate:   domain.NewDate(2025, time.July, 8),
			TotalConversations: 9, TotalPracticeMinutes: 41,
		},
		Unlocked: []domain.UnlockedAchievement{
			{Key: "first_conversation", UnlockedAt: time.Date(2025, time.July, 1, 9, 0, 0, 0, time.UTC)},
		},
	}
	require.NoError(t, c.Set(ctx, snap, 0))

	got, err := c.Get(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, snap.State, got.State)
	require.Len(t, got.Unlocked, 1)
	assert.True(t, snap.Unlocked[0].UnlockedAt.Equal(got.Unlocked[0].UnlockedAt))

	require.NoError(t, c.Invalidate(ctx, user))
	_, err = c.Get(ctx, user)
	assert.ErrorIs(t, err, domain.ErrCacheMiss)
}

func TestRedisCache_NeverPracticedRoundTrip(t *testing.T) {
	c := newTestCache(t, time.Minute)
	ctx := context.Background()
	user := uuid.NewString()

	snap := domain.ProfileSnapshot{UserID: user, State: domain.NewProgressionState()}
	require.NoError(t, c.Set(ctx, snap, 0))

	got, err := c.Get(ctx, user)
	require.NoError(t, err)
	assert.True(t, got.State.LastPracticeDate.IsZero())
	assert.Equal(t, 1, got.State.Level)
}

func TestRedisCache_CorruptEntryIsMiss(t *testing.T) {
	c := newTestCache(t, time.Minute)
	ctx := context.Background()
	user := uuid.NewString()

	require.NoError(t, c.client.Set(ctx, key(user), "{not json", time.Minute).Err())
	_, err := c.Get(ctx, user)
	assert.ErrorIs(t, err, domain.ErrCacheMiss)
}

func TestRedisCache_TTL(t *testing.T) {
	c := newTestCache(t, 0)
	assert.Equal(t, DefaultTTL, c.ttl)

	ctx := context.Background()
	user := uuid.NewString()
	require.NoError(t, c.Set(ctx, domain.ProfileSnapshot{UserID: user}, 0))

	ttl, err := c.client.TTL(ctx, key(user)).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
	assert.LessOrEqual(t, ttl, DefaultTTL)
}

func TestRedisCache_InvalidateBumpsGeneration(t *testing.T) {
	c := newTestCache(t, time.Minute)
	ctx := context.Background()
	user := uuid.NewString()

	gen, err := c.Generation(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, int64(0), gen)

	require.NoError(t, c.Invalidate(ctx, user))
	require.NoError(t, c.Invalidate(ctx, user))
	gen, err = c.Generation(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, int64(2), gen)

	ttl, err := c.client.TTL(ctx, genKey(user)).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, DefaultTTL)
}

func TestRedisCache_SetAfterInvalidateIsStale(t *testing.T) {
	c := newTestCache(t, time.Minute)
	ctx := context.Background()
	user := uuid.NewString()

	// A reader takes the generation, then a commit invalidates before the
	// reader's store snapshot is written back.
	gen, err := c.Generation(ctx, user)
	require.NoError(t, err)
	require.NoError(t, c.Invalidate(ctx, user))

	old := domain.ProfileSnapshot{UserID: user, State: domain.ProgressionState{XP: 160, TotalConversations: 1}}
	assert.ErrorIs(t, c.Set(ctx, old, gen), domain.ErrStaleSnapshot)
	_, err = c.Get(ctx, user)
	assert.ErrorIs(t, err, domain.ErrCacheMiss)

	// A reader that started after the commit may fill the cache.
	gen, err = c.Generation(ctx, user)
	require.NoError(t, err)
	fresh := domain.ProfileSnapshot{UserID: user, State: domain.ProgressionState{XP: 212, TotalConversations: 2}}
	require.NoError(t, c.Set(ctx, fresh, gen))
	got, err := c.Get(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, int64(212), got.State.XP)
}
