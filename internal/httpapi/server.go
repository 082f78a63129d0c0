// Package httpapi wires the HTTP/WebSocket surface (spec §6), grounded on
// the teacher's pkg/server/server.go: one http.ServeMux, one handler per
// route, a background sweeper started alongside ListenAndServe.
package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/silapakurthi/collabboard/internal/auth"
	"github.com/silapakurthi/collabboard/internal/metrics"
	"github.com/silapakurthi/collabboard/internal/observability"
	"github.com/silapakurthi/collabboard/pkg/agent"
	"github.com/silapakurthi/collabboard/pkg/board"
	"github.com/silapakurthi/collabboard/pkg/mutation"
	"github.com/silapakurthi/collabboard/pkg/presence"
)

// Server is the top-level HTTP handler for the board backend.
type Server struct {
	mux *http.ServeMux

	registry  *board.Registry
	mutations *mutation.API
	presences *presence.Tracker
	executor  *agent.Executor
	authMgr   *auth.Manager
	tracer    *observability.Tracer
	metrics   *metrics.Metrics
}

func NewServer(
	registry *board.Registry,
	mutations *mutation.API,
	presences *presence.Tracker,
	executor *agent.Executor,
	authMgr *auth.Manager,
	tracer *observability.Tracer,
	m *metrics.Metrics,
) *Server {
	s := &Server{
		mux:       http.NewServeMux(),
		registry:  registry,
		mutations: mutations,
		presences: presences,
		executor:  executor,
		authMgr:   authMgr,
		tracer:    tracer,
		metrics:   m,
	}

	s.mux.HandleFunc("GET /healthz", s.handleHealthz)
	s.mux.Handle("GET /metrics", promhttp.Handler())
	s.mux.HandleFunc("POST /observabilityCheck", s.handleObservabilityCheck)
	s.mux.HandleFunc("/boardAgent", s.authMgr.RequireUser(s.handleBoardAgent))
	s.mux.HandleFunc("GET /ws/{boardId}", s.handleBoardSocket)

	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	s.mux.ServeHTTP(w, r)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (s *Server) handleObservabilityCheck(w http.ResponseWriter, r *http.Request) {
	if err := s.tracer.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"status": "error", "message": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type boardAgentRequest struct {
	BoardID    string           `json:"boardId"`
	Command    string           `json:"command"`
	BoardState []map[string]any `json:"boardState,omitempty"`
}

type boardAgentResponse struct {
	Actions []agent.ActionRecord `json:"actions"`
	Summary string               `json:"summary"`
}

// handleBoardAgent is the C7 entry point (spec §6 POST /boardAgent).
func (s *Server) handleBoardAgent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req boardAgentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.BoardID == "" || req.Command == "" {
		http.Error(w, "boardId and command are required", http.StatusBadRequest)
		return
	}

	userID, _ := auth.UserID(r.Context())

	result, err := s.executor.Run(r.Context(), req.BoardID, userID, req.Command)
	if err != nil {
		log.Warn().Err(err).Str("board_id", req.BoardID).Msg("agent run failed")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, boardAgentResponse{Actions: result.Actions, Summary: result.Summary})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
