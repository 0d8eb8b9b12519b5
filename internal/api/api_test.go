package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/whispie/whispie/internal/app/progression"
	"github.com/whispie/whispie/internal/domain"
	"github.com/whispie/whispie/internal/health"
	"github.com/whispie/whispie/internal/infra/sqlite"
)

var testNow = time.Date(2025, time.July, 8, 12, 0, 0, 0, time.UTC)

func newTestServer(t *testing.T) (*Server, *sqlite.DB) {
	t.Helper()
	db, err := sqlite.Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	svc := progression.NewService(db, progression.Options{
		AutoCreateProfiles: true,
		Driver:             "sqlite",
		Now:                func() time.Time { return testNow },
	})
	if err := svc.SeedCatalog(context.Background(), progression.DefaultCatalog()); err != nil {
		t.Fatalf("SeedCatalog: %v", err)
	}
	return NewServer(svc, "test"), db
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(v); err != nil {
		t.Fatalf("decode body: %v", err)
	}
}

// ─── Health & Version ───────────────────────────────────────────────────────

func TestAPI_Health(t *testing.T) {
	srv, db := newTestServer(t)
	checker := health.NewChecker(time.Minute, nil, health.PingCheck("sqlite", db, false))
	checker.RunOnce(context.Background())
	srv.SetChecker(checker)

	w := do(t, srv.Handler(), "GET", "/health", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var body healthResponse
	decode(t, w, &body)
	if body.Status != "ok" || len(body.Checks) != 1 {
		t.Errorf("body = %+v", body)
	}
}

func TestAPI_Health_Unhealthy(t *testing.T) {
	srv, _ := newTestServer(t)
	checker := health.NewChecker(time.Minute, nil, health.Check{
		Name:    "store",
		CheckFn: func(context.Context) error { return errors.New("down") },
	})
	checker.RunOnce(context.Background())
	srv.SetChecker(checker)

	w := do(t, srv.Handler(), "GET", "/health", "")
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", w.Code, http.StatusServiceUnavailable)
	}
}

func TestAPI_Version(t *testing.T) {
	srv, _ := newTestServer(t)
	w := do(t, srv.Handler(), "GET", "/api/version", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var body map[string]string
	decode(t, w, &body)
	if body["version"] != "test" {
		t.Errorf("version = %q, want test", body["version"])
	}
}

// ─── Levels & Catalog ───────────────────────────────────────────────────────

func TestAPI_Levels(t *testing.T) {
	srv, _ := newTestServer(t)
	w := do(t, srv.Handler(), "GET", "/api/levels?from=1&to=5", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body: %s", w.Code, w.Body.String())
	}
	var body struct {
		Levels []progression.LevelStep `json:"levels"`
	}
	decode(t, w, &body)
	if len(body.Levels) != 5 {
		t.Fatalf("levels = %d, want 5", len(body.Levels))
	}
	if body.Levels[0].XPRequired != 0 || body.Levels[4].XPRequired != 400 {
		t.Errorf("curve = %+v", body.Levels)
	}
}

func TestAPI_Levels_BadParams(t *testing.T) {
	srv, _ := newTestServer(t)
	for _, q := range []string{"from=x", "from=5&to=2", "from=0", "from=1&to=100000"} {
		w := do(t, srv.Handler(), "GET", "/api/levels?"+q, "")
		if w.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", q, w.Code)
		}
	}
}

func TestAPI_Catalog(t *testing.T) {
	srv, _ := newTestServer(t)
	w := do(t, srv.Handler(), "GET", "/api/achievements", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var body struct {
		Achievements []domain.AchievementDefinition `json:"achievements"`
	}
	decode(t, w, &body)
	if len(body.Achievements) != len(progression.DefaultCatalog()) {
		t.Errorf("achievements = %d, want %d", len(body.Achievements), len(progression.DefaultCatalog()))
	}
}

// ─── Sessions ───────────────────────────────────────────────────────────────

func TestAPI_CompleteSession(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Handler()
	body := `{"session_id":"s1","overall_score":45,"difficulty":"easy","duration_minutes":7}`

	w := do(t, h, "POST", "/api/users/u1/sessions", body)
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201, body: %s", w.Code, w.Body.String())
	}
	var out progression.SessionOutcome
	decode(t, w, &out)
	if out.XPEarned != 35 || out.AchievementXP != 10 || out.TotalXP != 45 {
		t.Errorf("outcome = %+v", out)
	}
	if len(out.Unlocked) != 1 || out.Unlocked[0].Key != "first_conversation" {
		t.Errorf("unlocked = %+v", out.Unlocked)
	}

	// Same session again is a replay.
	w = do(t, h, "POST", "/api/users/u1/sessions", body)
	if w.Code != http.StatusOK {
		t.Fatalf("replay status = %d, want 200", w.Code)
	}
	var replay progression.SessionOutcome
	decode(t, w, &replay)
	if !replay.Replayed || replay.TotalXP != 45 {
		t.Errorf("replay = %+v", replay)
	}
}

func TestAPI_CompleteSession_Invalid(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Handler()

	cases := map[string]string{
		"bad json":        `{`,
		"missing score":   `{"difficulty":"easy"}`,
		"score too high":  `{"overall_score":101,"difficulty":"easy"}`,
		"bad difficulty":  `{"overall_score":50,"difficulty":"extreme"}`,
		"negative length": `{"overall_score":50,"difficulty":"easy","duration_minutes":-1}`,
		"unknown field":   `{"overall_score":50,"difficulty":"easy","xp":9999}`,
	}
	for name, body := range cases {
		w := do(t, h, "POST", "/api/users/u1/sessions", body)
		if w.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", name, w.Code)
		}
	}
}

func TestAPI_CompleteSession_OtherUsersSession(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Handler()
	body := `{"session_id":"shared","overall_score":50,"difficulty":"easy"}`

	if w := do(t, h, "POST", "/api/users/u1/sessions", body); w.Code != http.StatusCreated {
		t.Fatalf("first status = %d", w.Code)
	}
	if w := do(t, h, "POST", "/api/users/u2/sessions", body); w.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", w.Code)
	}
}

// ─── Read Views ─────────────────────────────────────────────────────────────

func TestAPI_Progress(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Handler()

	do(t, h, "POST", "/api/users/u1/sessions",
		`{"session_id":"s1","overall_score":45,"difficulty":"easy","duration_minutes":7}`)

	w := do(t, h, "GET", "/api/users/u1/progress", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body: %s", w.Code, w.Body.String())
	}
	var view progression.ProgressView
	decode(t, w, &view)
	if view.XP != 45 || view.Level != 1 || view.XPToNextLevel != 5 {
		t.Errorf("view = %+v", view)
	}
	if view.Streak.Current != 1 || view.Streak.AtRisk {
		t.Errorf("streak = %+v", view.Streak)
	}
	if view.UnlockedCount != 1 || view.AchievementCount != 15 {
		t.Errorf("counts = %d/%d", view.UnlockedCount, view.AchievementCount)
	}
}

func TestAPI_Progress_UnknownUser(t *testing.T) {
	srv, _ := newTestServer(t)
	w := do(t, srv.Handler(), "GET", "/api/users/nobody/progress", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestAPI_Streak(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Handler()
	do(t, h, "POST", "/api/users/u1/sessions", `{"overall_score":80,"difficulty":"medium"}`)

	w := do(t, h, "GET", "/api/users/u1/streak", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var view progression.StreakView
	decode(t, w, &view)
	if view.Current != 1 || view.Longest != 1 || view.LastPracticeDate.String() != "2025-07-08" {
		t.Errorf("streak = %+v", view)
	}
}

func TestAPI_UserAchievements(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Handler()
	do(t, h, "POST", "/api/users/u1/sessions", `{"overall_score":85,"difficulty":"easy"}`)

	w := do(t, h, "GET", "/api/users/u1/achievements", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var body struct {
		Categories []progression.AchievementGroup `json:"categories"`
	}
	decode(t, w, &body)
	if len(body.Categories) != 4 {
		t.Fatalf("categories = %d, want 4", len(body.Categories))
	}
	unlocked := map[string]bool{}
	for _, g := range body.Categories {
		for _, a := range g.Achievements {
			if a.Unlocked {
				unlocked[a.Key] = true
			}
		}
	}
	if !unlocked["first_conversation"] || !unlocked["score_80"] || unlocked["score_90"] {
		t.Errorf("unlocked = %v", unlocked)
	}
}

// ─── Errors, CORS & Metrics ─────────────────────────────────────────────────

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{domain.ErrInvalidScore, http.StatusBadRequest},
		{fmt.Errorf("wrapped: %w", domain.ErrInvalidDifficulty), http.StatusBadRequest},
		{domain.ErrInvalidUserID, http.StatusBadRequest},
		{domain.ErrUnauthorized, http.StatusUnauthorized},
		{domain.ErrForbidden, http.StatusForbidden},
		{domain.ErrProfileNotFound, http.StatusNotFound},
		{domain.ErrConcurrentUpdate, http.StatusConflict},
		{domain.ErrSessionRecorded, http.StatusConflict},
		{errors.New("disk full"), http.StatusInternalServerError},
	}
	for _, c := range cases {
		if got := statusFor(c.err); got != c.want {
			t.Errorf("statusFor(%v) = %d, want %d", c.err, got, c.want)
		}
	}
}

func TestAPI_CORS(t *testing.T) {
	srv, _ := newTestServer(t)
	w := do(t, srv.Handler(), "OPTIONS", "/api/levels", "")
	if w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("CORS: Access-Control-Allow-Origin should be *")
	}
}

func TestAPI_CORS_AllowList(t *testing.T) {
	srv, _ := newTestServer(t)
	srv.SetCORSOrigins([]string{"https://app.whispie.dev"})
	h := srv.Handler()

	req := httptest.NewRequest("OPTIONS", "/api/levels", nil)
	req.Header.Set("Origin", "https://app.whispie.dev")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://app.whispie.dev" {
		t.Errorf("allowed origin = %q", got)
	}

	req = httptest.NewRequest("OPTIONS", "/api/levels", nil)
	req.Header.Set("Origin", "https://evil.example")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("foreign origin got %q", got)
	}
}

func TestAPI_Metrics(t *testing.T) {
	srv, _ := newTestServer(t)
	if w := do(t, srv.Handler(), "GET", "/metrics", ""); w.Code != http.StatusNotFound {
		t.Errorf("metrics disabled: status = %d, want 404", w.Code)
	}

	srv.EnableMetrics()
	h := srv.Handler()
	do(t, h, "GET", "/api/levels", "")
	w := do(t, h, "GET", "/metrics", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `whispie_http_requests_total{route="/api/levels",status="200"}`) {
		t.Error("expected per-route request counter in /metrics output")
	}
}
