// Package metrics provides Prometheus metrics for Whispie.
// Counters, gauges and histograms for sessions, XP, achievements, store
// commits, the snapshot cache, HTTP traffic and health.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "whispie"

// ─── Sessions ───────────────────────────────────────────────────────────────

// SessionsCompleted tracks sessions applied to a profile, by difficulty.
var SessionsCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "sessions_completed_total",
	Help:      "Total completed practice sessions.",
}, []string{"difficulty"})

// SessionsReplayed tracks repeated completions answered from the session record.
var SessionsReplayed = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "sessions_replayed_total",
	Help:      "Total session completions replayed without awarding XP.",
})

// SessionsFailed tracks sessions that could not be applied, by reason.
var SessionsFailed = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "sessions_failed_total",
	Help:      "Total session completions that failed.",
}, []string{"reason"})

// SessionAward tracks the session XP award distribution.
var SessionAward = promauto.NewHistogram(prometheus.HistogramOpts{
	Namespace: namespace,
	Name:      "session_award_xp",
	Help:      "XP awarded per session before achievement rewards.",
	Buckets:   []float64{10, 15, 20, 30, 40, 50, 75, 100, 150, 200},
})

// ─── Progression ────────────────────────────────────────────────────────────

// XPAwarded tracks XP granted by source (session, achievement).
var XPAwarded = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "xp_awarded_total",
	Help:      "Total XP granted by source.",
}, []string{"source"})

// LevelUps tracks sessions that raised a user's level.
var LevelUps = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "level_ups_total",
	Help:      "Total level ups.",
})

// AchievementsUnlocked tracks unlocks by category.
var AchievementsUnlocked = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "achievements_unlocked_total",
	Help:      "Total achievements unlocked by category.",
}, []string{"category"})

// StreakResets tracks sessions that restarted a non-empty streak.
var StreakResets = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "streak_resets_total",
	Help:      "Total streaks restarted after a missed day.",
})

// ─── Store ──────────────────────────────────────────────────────────────────

// CommitConflicts tracks optimistic commit conflicts that forced a retry.
var CommitConflicts = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "commit_conflicts_total",
	Help:      "Total session commits rejected because the profile changed.",
})

// CommitLatency tracks the duration of session commits.
var CommitLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: namespace,
	Name:      "commit_latency_seconds",
	Help:      "Session commit duration in seconds.",
	Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
}, []string{"driver"})

// ─── Cache ──────────────────────────────────────────────────────────────────

// CacheRequests tracks snapshot cache lookups by result (hit, miss, error)
// and fills skipped because a commit invalidated the user (stale).
var CacheRequests = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "cache_requests_total",
	Help:      "Snapshot cache lookups by result.",
}, []string{"result"})

// ─── HTTP ───────────────────────────────────────────────────────────────────

// HTTPRequests tracks API requests by route pattern and status code.
var HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "http_requests_total",
	Help:      "Total HTTP requests by route and status.",
}, []string{"route", "status"})

// HTTPLatency tracks API request duration by route pattern.
var HTTPLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: namespace,
	Name:      "http_request_duration_seconds",
	Help:      "HTTP request duration in seconds.",
	Buckets:   prometheus.DefBuckets,
}, []string{"route"})

// ─── Health ─────────────────────────────────────────────────────────────────

// HealthCheckStatus tracks health check results (1=healthy, 0=unhealthy).
var HealthCheckStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: namespace,
	Name:      "health_check_status",
	Help:      "Health check result per component (1=healthy, 0=unhealthy).",
}, []string{"check"})
