package domain

import "errors"

// ─── Sentinel Errors ────────────────────────────────────────────────────────
// Domain errors carry no infrastructure dependency.

var (
	// Input errors
	ErrInvalidScore      = errors.New("overall score must be between 0 and 100")
	ErrInvalidDifficulty = errors.New("difficulty must be easy, medium or hard")
	ErrInvalidStreak     = errors.New("streak days must not be negative")
	ErrInvalidSession    = errors.New("invalid session result")
	ErrInvalidUserID     = errors.New("invalid user id")

	// Catalog errors
	ErrInvalidCatalog = errors.New("invalid achievement catalog")

	// Store errors
	ErrProfileNotFound  = errors.New("profile not found")
	ErrProfileExists    = errors.New("profile already exists")
	ErrConcurrentUpdate = errors.New("profile changed since it was read")
	ErrSessionRecorded  = errors.New("session already recorded")

	// Cache errors
	ErrCacheMiss     = errors.New("cache miss")
	ErrStaleSnapshot = errors.New("snapshot invalidated while loading")

	// Auth errors
	ErrUnauthorized = errors.New("missing or invalid bearer token")
	ErrForbidden    = errors.New("token subject does not match user")
)
