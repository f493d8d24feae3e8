package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/fluentcare/parley/internal/admission"
	"github.com/fluentcare/parley/internal/identity"
	"github.com/fluentcare/parley/internal/session"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server is the engine's HTTP surface: session lifecycle REST endpoints,
// the realtime websocket upgrade, health and metrics.
type Server struct {
	manager  *session.Manager
	verifier identity.Verifier
	realtime http.Handler
}

func NewServer(manager *session.Manager, verifier identity.Verifier, realtime http.Handler) *Server {
	return &Server{manager: manager, verifier: verifier, realtime: realtime}
}

func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/sessions", s.handleStartSession)
	mux.HandleFunc("DELETE /v1/sessions/{id}", s.handleEndSession)
	mux.HandleFunc("GET /v1/sessions/{id}/analysis", s.handleGetAnalysis)
	mux.Handle("GET /v1/realtime", s.realtime)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("GET /metrics", promhttp.Handler())
	return mux
}

type startSessionRequest struct {
	ScenarioID string `json:"scenario_id"`
}

type startSessionResponse struct {
	SessionID       string `json:"session_id"`
	SessionState    string `json:"session_state"`
	ConnectionState string `json:"connection_state"`
	AudioState      string `json:"audio_state"`
}

func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.authenticate(w, r)
	if !ok {
		return
	}

	var req startSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ScenarioID == "" {
		writeError(w, http.StatusBadRequest, "scenario_id is required")
		return
	}

	result, err := s.manager.StartSession(r.Context(), userID, req.ScenarioID)
	if err != nil {
		var tooMany *admission.TooManySessionsError
		switch {
		case errors.As(err, &tooMany):
			writeJSON(w, http.StatusTooManyRequests, map[string]any{
				"error":              "too many live sessions",
				"limit":              tooMany.Limit,
				"active_session_ids": tooMany.ActiveSessionIDs,
			})
		case errors.Is(err, session.ErrSessionExists):
			writeError(w, http.StatusConflict, "a session for this scenario is already live")
		default:
			slog.Error("session start failed", "user_id", userID, "error", err)
			writeError(w, http.StatusInternalServerError, "failed to start session")
		}
		return
	}

	writeJSON(w, http.StatusCreated, startSessionResponse{
		SessionID:       result.SessionID,
		SessionState:    string(result.State.Session),
		ConnectionState: string(result.State.Connection),
		AudioState:      string(result.State.Audio),
	})
}

func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.authenticate(w, r)
	if !ok {
		return
	}
	sessionID := r.PathValue("id")

	err := s.manager.EndSession(r.Context(), sessionID, userID, session.EndReasonUser)
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, session.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, "session not found")
	case errors.Is(err, session.ErrSessionTerminated):
		writeError(w, http.StatusConflict, "session already ended")
	case errors.Is(err, session.ErrAccessDenied):
		writeError(w, http.StatusForbidden, "access denied")
	default:
		slog.Error("session end failed", "session_id", sessionID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to end session")
	}
}

type analysisResponse struct {
	SessionID     string   `json:"session_id"`
	Status        string   `json:"status"`
	Overall       float64  `json:"overall_score"`
	Fluency       float64  `json:"fluency_score"`
	Pronunciation float64  `json:"pronunciation_score"`
	Vocabulary    float64  `json:"vocabulary_score"`
	Grammar       float64  `json:"grammar_score"`
	Strengths     []string `json:"strengths"`
	Improvements  []string `json:"improvements"`
	Suggestions   []string `json:"suggestions"`
}

func (s *Server) handleGetAnalysis(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.authenticate(w, r)
	if !ok {
		return
	}
	sessionID := r.PathValue("id")

	record, err := s.manager.GetAnalysis(r.Context(), sessionID, userID)
	if err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		if errors.Is(err, session.ErrAccessDenied) {
			writeError(w, http.StatusForbidden, "access denied")
			return
		}
		slog.Error("analysis fetch failed", "session_id", sessionID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to fetch analysis")
		return
	}

	writeJSON(w, http.StatusOK, analysisResponse{
		SessionID:     record.SessionID,
		Status:        record.Status,
		Overall:       record.Overall,
		Fluency:       record.Fluency,
		Pronunciation: record.Pronunciation,
		Vocabulary:    record.Vocabulary,
		Grammar:       record.Grammar,
		Strengths:     record.Strengths,
		Improvements:  record.Improvements,
		Suggestions:   record.Suggestions,
	})
}

func (s *Server) authenticate(w http.ResponseWriter, r *http.Request) (string, bool) {
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	if token == "" {
		writeError(w, http.StatusUnauthorized, "missing bearer token")
		return "", false
	}
	userID, err := s.verifier.Verify(r.Context(), token)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid token")
		return "", false
	}
	return userID, true
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Debug("response encode failed", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
