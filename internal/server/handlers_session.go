package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/loom-engine/loom/internal/agent"
	"github.com/loom-engine/loom/internal/storage"
	"github.com/loom-engine/loom/pkg/types"
)

// listSessions handles GET /session
func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	metas, err := s.svc.ListSessions(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}
	if metas == nil {
		metas = []types.SessionMeta{}
	}
	writeJSON(w, http.StatusOK, metas)
}

// createSession handles POST /session
func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AgentID string `json:"agentID"`
	}
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req) // empty body means defaults
	}

	session, err := s.svc.CreateSession(r.Context(), req.AgentID)
	if err != nil {
		writeError(w, errorStatus(err), errorCode(err), err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, session)
}

// getSession handles GET /session/{sessionID}
func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	session, err := s.svc.GetSession(r.Context(), sessionID)
	if err != nil {
		writeError(w, errorStatus(err), errorCode(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, session)
}

// deleteSession handles DELETE /session/{sessionID}
func (s *Server) deleteSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if err := s.svc.DeleteSession(r.Context(), sessionID); err != nil {
		writeError(w, errorStatus(err), errorCode(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

// getStatus handles GET /session/status
func (s *Server) getStatus(w http.ResponseWriter, r *http.Request) {
	exec := s.svc.Executor()
	writeJSON(w, http.StatusOK, map[string]any{
		"isSending":       exec.IsSending(),
		"generatingNodes": exec.GeneratingNodes(),
	})
}

// listAgents handles GET /agent
func (s *Server) listAgents(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.agents.List())
}

// listModels handles GET /model
func (s *Server) listModels(w http.ResponseWriter, r *http.Request) {
	type modelInfo struct {
		ID         string `json:"id"`
		Name       string `json:"name"`
		ProviderID string `json:"providerID"`
	}
	var out []modelInfo
	for _, m := range s.providers.Models() {
		out = append(out, modelInfo{ID: m.ID, Name: m.Name, ProviderID: m.ProviderID})
	}
	writeJSON(w, http.StatusOK, out)
}

// errorStatus maps engine errors to HTTP status codes.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, types.ErrNodeNotFound), errors.Is(err, storage.ErrNotFound),
		errors.Is(err, agent.ErrAgentNotFound), errors.Is(err, agent.ErrProfileNotFound):
		return http.StatusNotFound
	case errors.Is(err, types.ErrCycleWouldBeCreated), errors.Is(err, types.ErrInvalidMutation):
		return http.StatusUnprocessableEntity
	case errors.Is(err, types.ErrPersistenceFailure):
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// errorCode maps engine errors to API error codes.
func errorCode(err error) string {
	switch {
	case errors.Is(err, types.ErrNodeNotFound), errors.Is(err, storage.ErrNotFound),
		errors.Is(err, agent.ErrAgentNotFound), errors.Is(err, agent.ErrProfileNotFound):
		return ErrCodeNotFound
	case errors.Is(err, types.ErrCycleWouldBeCreated), errors.Is(err, types.ErrInvalidMutation):
		return ErrCodeInvalidRequest
	default:
		return ErrCodeInternalError
	}
}
