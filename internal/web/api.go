package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/btouchard/firstblood/internal/store"
	"github.com/btouchard/firstblood/internal/web/middleware"
)

const maxBodyBytes = 64 << 10

// APIHandler serves the platform ingestion API.
type APIHandler struct {
	store store.Store
}

func NewAPIHandler(s store.Store) *APIHandler {
	return &APIHandler{store: s}
}

type namedRequest struct {
	Name     string `json:"name"`
	Category string `json:"category,omitempty"`
}

type solveRequest struct {
	ChallengeID int64 `json:"challenge_id"`
	UserID      int64 `json:"user_id"`
	TeamID      int64 `json:"team_id,omitempty"`
}

type firstBloodView struct {
	SolveID       int64     `json:"solve_id"`
	ChallengeID   int64     `json:"challenge_id"`
	ChallengeName string    `json:"challenge_name"`
	UserID        int64     `json:"user_id"`
	TeamID        int64     `json:"team_id,omitempty"`
	SolverName    string    `json:"solver_name"`
	SolvedAt      time.Time `json:"solved_at"`
}

func (h *APIHandler) CreateChallenge(w http.ResponseWriter, r *http.Request) {
	var req namedRequest
	if !decodeNamed(w, r, &req) {
		return
	}
	c := &store.ChallengeRecord{Name: req.Name, Category: strings.TrimSpace(req.Category)}
	if err := h.store.CreateChallenge(r.Context(), c); err != nil {
		internalError(w, "create challenge", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]int64{"id": c.ID})
}

func (h *APIHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req namedRequest
	if !decodeNamed(w, r, &req) {
		return
	}
	u := &store.UserRecord{Name: req.Name}
	if err := h.store.CreateUser(r.Context(), u); err != nil {
		internalError(w, "create user", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]int64{"id": u.ID})
}

func (h *APIHandler) CreateTeam(w http.ResponseWriter, r *http.Request) {
	var req namedRequest
	if !decodeNamed(w, r, &req) {
		return
	}
	t := &store.TeamRecord{Name: req.Name}
	if err := h.store.CreateTeam(r.Context(), t); err != nil {
		internalError(w, "create team", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]int64{"id": t.ID})
}

// CreateSolve records a solve. First blood detection runs inside this insert.
func (h *APIHandler) CreateSolve(w http.ResponseWriter, r *http.Request) {
	var req solveRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	switch {
	case req.ChallengeID <= 0:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "challenge_id is required"})
		return
	case req.UserID <= 0:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "user_id is required"})
		return
	case req.TeamID < 0:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "team_id must be positive"})
		return
	}

	s := &store.SolveRecord{ChallengeID: req.ChallengeID, UserID: req.UserID, TeamID: req.TeamID}
	if err := h.store.CreateSolve(r.Context(), s); err != nil {
		internalError(w, "create solve", err)
		return
	}
	slog.Debug("solve recorded",
		"solve_id", s.ID,
		"challenge_id", s.ChallengeID,
		"token", middleware.TokenName(r.Context()))
	writeJSON(w, http.StatusCreated, map[string]int64{"id": s.ID})
}

func (h *APIHandler) ListFirstBloods(w http.ResponseWriter, r *http.Request) {
	records, err := h.store.ListFirstBloods(r.Context())
	if err != nil {
		internalError(w, "list first bloods", err)
		return
	}

	views := make([]firstBloodView, 0, len(records))
	for _, fb := range records {
		views = append(views, firstBloodView{
			SolveID:       fb.SolveID,
			ChallengeID:   fb.ChallengeID,
			ChallengeName: fb.ChallengeName,
			UserID:        fb.UserID,
			TeamID:        fb.TeamID,
			SolverName:    fb.SolverName,
			SolvedAt:      fb.SolvedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"first_bloods": views})
}

func decodeNamed(w http.ResponseWriter, r *http.Request, req *namedRequest) bool {
	if err := decodeJSON(w, r, req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return false
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "name is required"})
		return false
	}
	return true
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return errors.New("request body too large")
		}
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

// internalError logs err and answers 500 without leaking it.
func internalError(w http.ResponseWriter, op string, err error) {
	slog.Error("api request failed", "op", op, "error", err)
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
