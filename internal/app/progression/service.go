package progression

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/whispie/whispie/internal/domain"
	"github.com/whispie/whispie/internal/infra/metrics"
)

// ─── Session Plan ───────────────────────────────────────────────────────────

// SessionPlan is the complete effect of one session on a profile, computed
// without side effects.
type SessionPlan struct {
	Next          domain.ProgressionState
	Breakdown     AwardBreakdown
	XPEarned      int64
	Streak        domain.StreakUpdate
	StreakReset   bool
	Today         domain.Date
	UnlockedKeys  []string
	AchievementXP int64
	LevelBefore   int
	LevelAfter    int
}

// LeveledUp reports whether the plan raises the user's level.
func (p SessionPlan) LeveledUp() bool {
	return p.LevelAfter > p.LevelBefore
}

// ApplySession computes the state after one completed session.
//
// The award uses the streak as it was before this session. The streak is then
// advanced for DateOf(now), counters and XP are updated, and achievements are
// evaluated against the post-session stats. Achievement rewards are added last,
// so their XP can raise the level again. now must be in the zone that defines
// "today" for the user.
func ApplySession(
	state domain.ProgressionState,
	result domain.SessionResult,
	catalog []domain.AchievementDefinition,
	unlocked KeySet,
	now time.Time,
) (SessionPlan, error) {
	var plan SessionPlan
	if err := result.Validate(); err != nil {
		return plan, err
	}

	state.XP = max(state.XP, 0)
	state.CurrentStreak = max(state.CurrentStreak, 0)
	state.TotalConversations = max(state.TotalConversations, 0)
	plan.LevelBefore = LevelFromXP(state.XP)

	breakdown, err := BreakdownSessionAward(result.OverallScore, AwardOptions{
		IsFirstConversation: state.TotalConversations == 0,
		CurrentStreakDays:   state.CurrentStreak,
		Difficulty:          result.Difficulty,
	})
	if err != nil {
		return plan, err
	}
	plan.Breakdown = breakdown
	plan.XPEarned = breakdown.Total()

	plan.Today = domain.DateOf(now)
	plan.Streak = UpdateStreak(state.CurrentStreak, state.LongestStreak, state.LastPracticeDate, plan.Today)
	plan.StreakReset = state.CurrentStreak > 0 && !state.LastPracticeDate.IsZero() &&
		plan.Today.DaysSince(state.LastPracticeDate) > 1

	next := state
	next.CurrentStreak = plan.Streak.NewStreak
	next.LongestStreak = plan.Streak.NewLongestStreak
	if !state.LastPracticeDate.After(plan.Today) {
		next.LastPracticeDate = plan.Today
	}
	next.TotalConversations++
	next.TotalPracticeMinutes = max(next.TotalPracticeMinutes, 0) + result.DurationMinutes
	next.XP += plan.XPEarned

	plan.UnlockedKeys = EvaluateAchievements(catalog, unlocked, domain.AchievementStats{
		TotalConversations: next.TotalConversations,
		CurrentStreak:      next.CurrentStreak,
		OverallScore:       result.OverallScore,
		Now:                now,
	})
	plan.AchievementXP = RewardFor(catalog, plan.UnlockedKeys)
	next.XP += plan.AchievementXP
	next.Level = LevelFromXP(next.XP)

	plan.Next = next
	plan.LevelAfter = next.Level
	return plan, nil
}

// ─── Service ────────────────────────────────────────────────────────────────

// Options configures a Service. Zero values fall back to defaults.
type Options struct {
	Cache              domain.SnapshotCache // optional
	Logger             *log.Logger
	Location           *time.Location // zone that defines "today"; UTC when nil
	MaxCommitRetries   int
	AutoCreateProfiles bool
	Driver             string // store label for metrics
	Now                func() time.Time
}

// Service applies completed sessions to persisted profiles and serves the
// derived progress views.
type Service struct {
	store      domain.ProgressionStore
	cache      domain.SnapshotCache
	log        *log.Logger
	loc        *time.Location
	maxRetries int
	autoCreate bool
	driver     string
	now        func() time.Time
}

// NewService creates a progression service on top of store.
func NewService(store domain.ProgressionStore, opts Options) *Service {
	s := &Service{
		store:      store,
		cache:      opts.Cache,
		log:        opts.Logger,
		loc:        opts.Location,
		maxRetries: opts.MaxCommitRetries,
		autoCreate: opts.AutoCreateProfiles,
		driver:     opts.Driver,
		now:        opts.Now,
	}
	if s.log == nil {
		s.log = log.NewWithOptions(io.Discard, log.Options{})
	}
	if s.loc == nil {
		s.loc = time.UTC
	}
	if s.maxRetries <= 0 {
		s.maxRetries = 3
	}
	if s.driver == "" {
		s.driver = "unknown"
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Location returns the zone used to derive calendar days.
func (s *Service) Location() *time.Location { return s.loc }

// SessionOutcome is what completing a session reports back to the caller.
type SessionOutcome struct {
	SessionID     string                         `json:"session_id"`
	XPEarned      int64                          `json:"xp_earned"`
	Breakdown     *AwardBreakdown                `json:"breakdown,omitempty"`
	AchievementXP int64                          `json:"achievement_xp"`
	TotalXP       int64                          `json:"total_xp"`
	Level         int                            `json:"level"`
	LeveledUp     bool                           `json:"leveled_up"`
	NewLevel      *int                           `json:"new_level,omitempty"`
	Streak        int                            `json:"streak_days"`
	Unlocked      []domain.AchievementDefinition `json:"unlocked_achievements"`
	Replayed      bool                           `json:"replayed"`
}

// CompleteSession applies one completed session to the user's profile.
//
// The profile, unlock records and session record are written in one store
// transaction guarded by the snapshot the plan was computed from. A lost race
// re-reads and recomputes, up to the configured retry budget. A session ID
// that was already recorded returns the stored outcome without awarding XP.
func (s *Service) CompleteSession(ctx context.Context, userID string, result domain.SessionResult) (*SessionOutcome, error) {
	if userID == "" {
		return nil, domain.ErrInvalidUserID
	}
	if err := result.Validate(); err != nil {
		metrics.SessionsFailed.WithLabelValues("invalid_input").Inc()
		return nil, err
	}
	if result.SessionID == "" {
		result.SessionID = uuid.NewString()
	} else if out, err := s.replay(ctx, userID, result.SessionID); out != nil || err != nil {
		return out, err
	}

	catalog, err := s.store.ListActiveAchievements(ctx)
	if err != nil {
		metrics.SessionsFailed.WithLabelValues("store").Inc()
		return nil, fmt.Errorf("load catalog: %w", err)
	}

	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		out, err := s.tryComplete(ctx, userID, result, catalog)
		switch {
		case err == nil:
			return out, nil

		case errors.Is(err, domain.ErrConcurrentUpdate):
			metrics.CommitConflicts.Inc()
			s.log.Warn("profile changed during commit, retrying",
				"user", userID, "session", result.SessionID, "attempt", attempt+1)
			continue

		case errors.Is(err, domain.ErrSessionRecorded):
			return s.replay(ctx, userID, result.SessionID)

		case errors.Is(err, domain.ErrProfileNotFound):
			metrics.SessionsFailed.WithLabelValues("not_found").Inc()
			return nil, err

		default:
			metrics.SessionsFailed.WithLabelValues("store").Inc()
			s.log.Error("session commit failed", "user", userID, "session", result.SessionID, "err", err)
			return nil, err
		}
	}

	metrics.SessionsFailed.WithLabelValues("conflict").Inc()
	return nil, fmt.Errorf("complete session %s after %d attempts: %w",
		result.SessionID, s.maxRetries+1, domain.ErrConcurrentUpdate)
}

// tryComplete runs one read-plan-commit cycle.
func (s *Service) tryComplete(ctx context.Context, userID string, result domain.SessionResult, catalog []domain.AchievementDefinition) (*SessionOutcome, error) {
	state, err := s.loadOrCreate(ctx, userID)
	if err != nil {
		return nil, err
	}
	unlocked, err := s.store.ListUnlockedAchievements(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list unlocked achievements: %w", err)
	}

	now := s.now().In(s.loc)
	plan, err := ApplySession(state, result, catalog, UnlockedKeySet(unlocked), now)
	if err != nil {
		return nil, err
	}

	stamp := now.UTC()
	unlocks := make([]domain.UnlockedAchievement, 0, len(plan.UnlockedKeys))
	for _, key := range plan.UnlockedKeys {
		unlocks = append(unlocks, domain.UnlockedAchievement{Key: key, UnlockedAt: stamp})
	}

	record := domain.SessionRecord{
		SessionID:       result.SessionID,
		UserID:          userID,
		OverallScore:    result.OverallScore,
		Difficulty:      result.Difficulty,
		DurationMinutes: result.DurationMinutes,
		XPEarned:        plan.XPEarned,
		AchievementXP:   plan.AchievementXP,
		XPAfter:         plan.Next.XP,
		LevelBefore:     plan.LevelBefore,
		LevelAfter:      plan.LevelAfter,
		StreakAfter:     plan.Next.CurrentStreak,
		UnlockedKeys:    plan.UnlockedKeys,
		CompletedAt:     stamp,
	}

	start := time.Now()
	err = s.store.CommitSession(ctx, domain.SessionCommit{
		UserID:   userID,
		Expected: state,
		Next:     plan.Next,
		Unlocks:  unlocks,
		Session:  record,
	})
	metrics.CommitLatency.WithLabelValues(s.driver).Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx, userID)
	s.observe(plan, catalog, result.Difficulty)

	out := &SessionOutcome{
		SessionID:     result.SessionID,
		XPEarned:      plan.XPEarned,
		Breakdown:     &plan.Breakdown,
		AchievementXP: plan.AchievementXP,
		TotalXP:       plan.Next.XP,
		Level:         plan.LevelAfter,
		LeveledUp:     plan.LeveledUp(),
		Streak:        plan.Next.CurrentStreak,
		Unlocked:      DefinitionsFor(catalog, plan.UnlockedKeys),
	}
	if out.LeveledUp {
		lvl := plan.LevelAfter
		out.NewLevel = &lvl
	}

	s.log.Info("session completed",
		"user", userID,
		"session", result.SessionID,
		"xp", plan.XPEarned,
		"achievement_xp", plan.AchievementXP,
		"level", plan.LevelAfter,
		"streak", plan.Next.CurrentStreak,
		"unlocked", len(plan.UnlockedKeys))
	return out, nil
}

// replay returns the stored outcome of a recorded session, or nil if the
// session has not been recorded yet.
func (s *Service) replay(ctx context.Context, userID, sessionID string) (*SessionOutcome, error) {
	rec, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	if rec == nil {
		return nil, nil
	}
	if rec.UserID != userID {
		return nil, fmt.Errorf("%w: %s belongs to another user", domain.ErrSessionRecorded, sessionID)
	}

	catalog, err := s.store.ListActiveAchievements(ctx)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}

	metrics.SessionsReplayed.Inc()
	s.log.Debug("session replayed", "user", userID, "session", sessionID)

	out := &SessionOutcome{
		SessionID:     rec.SessionID,
		XPEarned:      rec.XPEarned,
		AchievementXP: rec.AchievementXP,
		TotalXP:       rec.XPAfter,
		Level:         rec.LevelAfter,
		LeveledUp:     rec.LevelAfter > rec.LevelBefore,
		Streak:        rec.StreakAfter,
		Unlocked:      DefinitionsFor(catalog, rec.UnlockedKeys),
		Replayed:      true,
	}
	if out.LeveledUp {
		lvl := rec.LevelAfter
		out.NewLevel = &lvl
	}
	return out, nil
}

func (s *Service) loadOrCreate(ctx context.Context, userID string) (domain.ProgressionState, error) {
	state, err := s.store.GetProgression(ctx, userID)
	if err == nil || !errors.Is(err, domain.ErrProfileNotFound) || !s.autoCreate {
		return state, err
	}

	state, err = s.store.CreateProfile(ctx, userID)
	if errors.Is(err, domain.ErrProfileExists) {
		return s.store.GetProgression(ctx, userID)
	}
	if err == nil {
		s.log.Info("profile created", "user", userID)
	}
	return state, err
}

func (s *Service) observe(plan SessionPlan, catalog []domain.AchievementDefinition, d domain.Difficulty) {
	metrics.SessionsCompleted.WithLabelValues(string(d)).Inc()
	metrics.SessionAward.Observe(float64(plan.XPEarned))
	metrics.XPAwarded.WithLabelValues("session").Add(float64(plan.XPEarned))
	if plan.AchievementXP > 0 {
		metrics.XPAwarded.WithLabelValues("achievement").Add(float64(plan.AchievementXP))
	}
	if plan.LeveledUp() {
		metrics.LevelUps.Inc()
	}
	if plan.StreakReset {
		metrics.StreakResets.Inc()
	}
	for _, def := range DefinitionsFor(catalog, plan.UnlockedKeys) {
		metrics.AchievementsUnlocked.WithLabelValues(string(def.Category)).Inc()
	}
}

// ─── Read Views ─────────────────────────────────────────────────────────────

// AchievementStatus is a catalog entry annotated with the user's unlock.
type AchievementStatus struct {
	domain.AchievementDefinition
	Unlocked   bool       `json:"unlocked"`
	UnlockedAt *time.Time `json:"unlocked_at,omitempty"`
}

// AchievementGroup is the statuses of one category.
type AchievementGroup struct {
	Category     domain.AchievementCategory `json:"category"`
	Achievements []AchievementStatus        `json:"achievements"`
}

// StreakView describes the user's streak as of today.
type StreakView struct {
	Current          int         `json:"current"`
	Longest          int         `json:"longest"`
	LastPracticeDate domain.Date `json:"last_practice_date"`
	AtRisk           bool        `json:"at_risk"`
	Message          string      `json:"message"`
}

// ProgressView is everything the progress page shows for one user.
type ProgressView struct {
	UserID               string             `json:"user_id"`
	XP                   int64              `json:"xp"`
	Level                int                `json:"level"`
	Title                string             `json:"title"`
	LevelProgress        int                `json:"level_progress"`
	CurrentLevelXP       int64              `json:"current_level_xp"`
	NextLevelXP          int64              `json:"next_level_xp"`
	XPToNextLevel        int64              `json:"xp_to_next_level"`
	TotalConversations   int                `json:"total_conversations"`
	TotalPracticeMinutes int                `json:"total_practice_minutes"`
	Streak               StreakView         `json:"streak"`
	UnlockedCount        int                `json:"unlocked_count"`
	AchievementCount     int                `json:"achievement_count"`
	Achievements         []AchievementGroup `json:"achievements"`
}

// Progress returns the user's progress view.
func (s *Service) Progress(ctx context.Context, userID string) (*ProgressView, error) {
	snap, err := s.snapshot(ctx, userID)
	if err != nil {
		return nil, err
	}
	catalog, err := s.store.ListActiveAchievements(ctx)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}

	st := snap.State
	level := LevelFromXP(st.XP)
	groups := GroupAchievements(catalog, snap.Unlocked)

	view := &ProgressView{
		UserID:               userID,
		XP:                   st.XP,
		Level:                level,
		Title:                LevelTitle(level),
		LevelProgress:        LevelProgress(st.XP),
		CurrentLevelXP:       XPForLevel(level),
		NextLevelXP:          XPForLevel(level + 1),
		XPToNextLevel:        XPToNextLevel(st.XP),
		TotalConversations:   st.TotalConversations,
		TotalPracticeMinutes: st.TotalPracticeMinutes,
		Streak:               s.streakView(st),
		Achievements:         groups,
	}
	for _, g := range groups {
		for _, a := range g.Achievements {
			view.AchievementCount++
			if a.Unlocked {
				view.UnlockedCount++
			}
		}
	}
	return view, nil
}

// Streak returns the user's streak view.
func (s *Service) Streak(ctx context.Context, userID string) (*StreakView, error) {
	snap, err := s.snapshot(ctx, userID)
	if err != nil {
		return nil, err
	}
	v := s.streakView(snap.State)
	return &v, nil
}

// Achievements returns the active catalog grouped by category with the
// user's unlock status.
func (s *Service) Achievements(ctx context.Context, userID string) ([]AchievementGroup, error) {
	snap, err := s.snapshot(ctx, userID)
	if err != nil {
		return nil, err
	}
	catalog, err := s.store.ListActiveAchievements(ctx)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	return GroupAchievements(catalog, snap.Unlocked), nil
}

// Catalog returns the active achievement catalog.
func (s *Service) Catalog(ctx context.Context) ([]domain.AchievementDefinition, error) {
	return s.store.ListActiveAchievements(ctx)
}

// SeedCatalog validates defs and upserts them into the store. Keys without
// an unlock rule are stored but logged, since they can never unlock.
func (s *Service) SeedCatalog(ctx context.Context, defs []domain.AchievementDefinition) error {
	if err := ValidateCatalog(defs); err != nil {
		return err
	}
	for _, key := range UnmappedKeys(defs) {
		s.log.Warn("achievement has no unlock rule", "key", key)
	}
	if err := s.store.UpsertAchievements(ctx, defs); err != nil {
		return fmt.Errorf("seed catalog: %w", err)
	}
	s.log.Info("achievement catalog seeded", "count", len(defs))
	return nil
}

func (s *Service) streakView(st domain.ProgressionState) StreakView {
	today := domain.DateOf(s.now().In(s.loc))
	return StreakView{
		Current:          st.CurrentStreak,
		Longest:          st.LongestStreak,
		LastPracticeDate: st.LastPracticeDate,
		AtRisk:           IsStreakAtRisk(st.LastPracticeDate, today),
		Message:          StreakMessage(st.CurrentStreak),
	}
}

// GroupAchievements annotates catalog with unlocked and groups it by
// category in display order. Categories with no entries are omitted.
func GroupAchievements(catalog []domain.AchievementDefinition, unlocked []domain.UnlockedAchievement) []AchievementGroup {
	at := make(map[string]time.Time, len(unlocked))
	for _, u := range unlocked {
		at[u.Key] = u.UnlockedAt
	}

	byCat := make(map[domain.AchievementCategory][]AchievementStatus)
	for _, def := range catalog {
		st := AchievementStatus{AchievementDefinition: def}
		if ts, ok := at[def.Key]; ok {
			st.Unlocked = true
			st.UnlockedAt = &ts
		}
		byCat[def.Category] = append(byCat[def.Category], st)
	}

	groups := make([]AchievementGroup, 0, len(domain.Categories))
	for _, cat := range domain.Categories {
		if len(byCat[cat]) == 0 {
			continue
		}
		groups = append(groups, AchievementGroup{Category: cat, Achievements: byCat[cat]})
	}
	return groups
}

// snapshot reads the cache first and falls back to the store. The cache is
// refilled only if no commit invalidated the user while the store was read.
// Cache failures are logged and never fail the read.
func (s *Service) snapshot(ctx context.Context, userID string) (domain.ProfileSnapshot, error) {
	if userID == "" {
		return domain.ProfileSnapshot{}, domain.ErrInvalidUserID
	}

	var gen int64
	fill := false
	if s.cache != nil {
		snap, err := s.cache.Get(ctx, userID)
		switch {
		case err == nil:
			metrics.CacheRequests.WithLabelValues("hit").Inc()
			return snap, nil
		case errors.Is(err, domain.ErrCacheMiss):
			metrics.CacheRequests.WithLabelValues("miss").Inc()
		default:
			metrics.CacheRequests.WithLabelValues("error").Inc()
			s.log.Warn("cache read failed", "user", userID, "err", err)
		}

		// Taken before the store read so a commit landing in between is seen.
		if gen, err = s.cache.Generation(ctx, userID); err != nil {
			s.log.Warn("cache generation read failed", "user", userID, "err", err)
		} else {
			fill = true
		}
	}

	state, err := s.store.GetProgression(ctx, userID)
	if err != nil {
		return domain.ProfileSnapshot{}, err
	}
	unlocked, err := s.store.ListUnlockedAchievements(ctx, userID)
	if err != nil {
		return domain.ProfileSnapshot{}, fmt.Errorf("list unlocked achievements: %w", err)
	}
	snap := domain.ProfileSnapshot{UserID: userID, State: state, Unlocked: unlocked}

	if fill {
		err := s.cache.Set(ctx, snap, gen)
		switch {
		case errors.Is(err, domain.ErrStaleSnapshot):
			metrics.CacheRequests.WithLabelValues("stale").Inc()
			s.log.Debug("snapshot invalidated during read, not cached", "user", userID)
		case err != nil:
			s.log.Warn("cache write failed", "user", userID, "err", err)
		}
	}
	return snap, nil
}

func (s *Service) invalidate(ctx context.Context, userID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, userID); err != nil {
		s.log.Warn("cache invalidate failed", "user", userID, "err", err)
	}
}
