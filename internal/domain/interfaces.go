package domain

import "context"

// ─── Service Interfaces ─────────────────────────────────────────────────────
// These interfaces define boundaries between layers.
// Infrastructure implements them; application layer depends on them.

// ProgressionStore persists profiles, the achievement catalog, unlock records
// and completed sessions. Implemented by infra/sqlite.DB and infra/postgres.Store.
type ProgressionStore interface {
	// GetProgression returns the user's state or ErrProfileNotFound.
	GetProgression(ctx context.Context, userID string) (ProgressionState, error)

	// CreateProfile inserts a fresh profile or returns ErrProfileExists.
	CreateProfile(ctx context.Context, userID string) (ProgressionState, error)

	// ListActiveAchievements returns the active catalog ordered by category.
	ListActiveAchievements(ctx context.Context) ([]AchievementDefinition, error)

	// UpsertAchievements inserts or updates catalog rows by key.
	UpsertAchievements(ctx context.Context, defs []AchievementDefinition) error

	// ListUnlockedAchievements returns the user's unlock records, newest first.
	ListUnlockedAchievements(ctx context.Context, userID string) ([]UnlockedAchievement, error)

	// GetSession returns a recorded session, or nil if it was never recorded.
	GetSession(ctx context.Context, sessionID string) (*SessionRecord, error)

	// CommitSession applies a SessionCommit in one transaction. It returns
	// ErrConcurrentUpdate when the stored profile no longer equals
	// commit.Expected and ErrSessionRecorded when the session ID exists.
	CommitSession(ctx context.Context, commit SessionCommit) error

	// Ping checks connectivity.
	Ping(ctx context.Context) error

	// Close releases the underlying connections.
	Close() error
}

// SnapshotCache caches ProfileSnapshots between writes.
// Implemented by infra/cache.RedisCache.
type SnapshotCache interface {
	// Get returns the cached snapshot or ErrCacheMiss.
	Get(ctx context.Context, userID string) (ProfileSnapshot, error)

	// Generation returns the user's invalidation counter. Read it before
	// loading the snapshot from the store.
	Generation(ctx context.Context, userID string) (int64, error)

	// Set stores snap only while the user's generation still equals gen.
	// It returns ErrStaleSnapshot when an Invalidate ran in between.
	Set(ctx context.Context, snap ProfileSnapshot, gen int64) error

	// Invalidate drops the snapshot and bumps the user's generation.
	Invalidate(ctx context.Context, userID string) error

	Ping(ctx context.Context) error
	Close() error
}
