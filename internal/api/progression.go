package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/whispie/whispie/internal/app/progression"
	"github.com/whispie/whispie/internal/domain"
	"github.com/whispie/whispie/internal/health"
)

// maxCurveRows caps a single /api/levels response.
const maxCurveRows = 200

// maxSessionBody caps the POST /sessions request body.
const maxSessionBody = 1 << 16

// ─── Public Routes ──────────────────────────────────────────────────────────

type healthResponse struct {
	Status string          `json:"status"`
	Checks []health.Status `json:"checks"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok", Checks: []health.Status{}}
	status := http.StatusOK
	if s.checker != nil {
		resp.Checks = s.checker.Statuses()
		switch {
		case !s.checker.IsHealthy():
			resp.Status = "unhealthy"
			status = http.StatusServiceUnavailable
		case s.checker.Degraded():
			resp.Status = "degraded"
		}
	}
	writeJSON(w, status, resp)
}

func (s *Server) handleLevels(w http.ResponseWriter, r *http.Request) {
	from, err := intParam(r, "from", 1)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	to, err := intParam(r, "to", 20)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if from < 1 || to < from {
		writeError(w, http.StatusBadRequest, "need 1 <= from <= to")
		return
	}
	if to-from+1 > maxCurveRows {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("at most %d levels per request", maxCurveRows))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"levels": progression.LevelCurve(from, to),
	})
}

func (s *Server) handleCatalog(w http.ResponseWriter, r *http.Request) {
	defs, err := s.svc.Catalog(r.Context())
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"achievements": defs,
	})
}

// ─── User Routes ────────────────────────────────────────────────────────────

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	view, err := s.svc.Progress(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleStreak(w http.ResponseWriter, r *http.Request) {
	view, err := s.svc.Streak(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleUserAchievements(w http.ResponseWriter, r *http.Request) {
	groups, err := s.svc.Achievements(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"categories": groups,
	})
}

// completeSessionRequest is the POST /sessions body. Score is a pointer so a
// missing field is told apart from a zero score.
type completeSessionRequest struct {
	SessionID       string            `json:"session_id"`
	OverallScore    *int              `json:"overall_score"`
	Difficulty      domain.Difficulty `json:"difficulty"`
	DurationMinutes int               `json:"duration_minutes"`
}

func (s *Server) handleCompleteSession(w http.ResponseWriter, r *http.Request) {
	var req completeSessionRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxSessionBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	if req.OverallScore == nil {
		writeError(w, http.StatusBadRequest, "overall_score is required")
		return
	}

	out, err := s.svc.CompleteSession(r.Context(), chi.URLParam(r, "userID"), domain.SessionResult{
		SessionID:       req.SessionID,
		OverallScore:    *req.OverallScore,
		Difficulty:      req.Difficulty,
		DurationMinutes: req.DurationMinutes,
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	status := http.StatusCreated
	if out.Replayed {
		status = http.StatusOK
	}
	writeJSON(w, status, out)
}

func intParam(r *http.Request, name string, def int) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer", name)
	}
	return n, nil
}
