package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/loom-engine/loom/internal/branch"
	"github.com/loom-engine/loom/pkg/types"
)

// sendMessage handles POST /session/{sessionID}/message. The call returns
// once the turn has settled; live progress flows over the SSE feed.
func (s *Server) sendMessage(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	var req struct {
		Text        string        `json:"text"`
		Attachments []types.Asset `json:"attachments,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid request body")
		return
	}

	if err := s.svc.SendMessage(r.Context(), sessionID, req.Text, req.Attachments); err != nil {
		writeError(w, errorStatus(err), errorCode(err), err.Error())
		return
	}

	session, err := s.svc.GetSession(r.Context(), sessionID)
	if err != nil {
		writeError(w, errorStatus(err), errorCode(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, session)
}

// regenerate handles POST /session/{sessionID}/regenerate
func (s *Server) regenerate(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	var req struct {
		NodeID string `json:"nodeID"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.NodeID == "" {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "nodeID required")
		return
	}

	if err := s.svc.RegenerateFrom(r.Context(), sessionID, req.NodeID); err != nil {
		writeError(w, errorStatus(err), errorCode(err), err.Error())
		return
	}

	session, err := s.svc.GetSession(r.Context(), sessionID)
	if err != nil {
		writeError(w, errorStatus(err), errorCode(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, session)
}

// abort handles POST /session/{sessionID}/abort. An empty body (or empty
// nodeID) aborts every stream feeding the session.
func (s *Server) abort(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	var req struct {
		NodeID string `json:"nodeID,omitempty"`
	}
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	s.svc.Abort(sessionID, req.NodeID)
	writeJSON(w, http.StatusOK, map[string]bool{"aborted": true})
}

// editNode handles PATCH /session/{sessionID}/node/{nodeID}
func (s *Server) editNode(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	nodeID := chi.URLParam(r, "nodeID")

	var req struct {
		Text        string        `json:"text"`
		Attachments []types.Asset `json:"attachments,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid request body")
		return
	}

	if err := s.svc.EditContent(r.Context(), sessionID, nodeID, req.Text, req.Attachments); err != nil {
		writeError(w, errorStatus(err), errorCode(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"updated": true})
}

// toggleEnabled handles POST /session/{sessionID}/node/{nodeID}/toggle
func (s *Server) toggleEnabled(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	nodeID := chi.URLParam(r, "nodeID")

	if err := s.svc.ToggleEnabled(r.Context(), sessionID, nodeID); err != nil {
		writeError(w, errorStatus(err), errorCode(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"updated": true})
}

// deleteSubtree handles DELETE /session/{sessionID}/node/{nodeID}
func (s *Server) deleteSubtree(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	nodeID := chi.URLParam(r, "nodeID")

	if err := s.svc.DeleteSubtree(r.Context(), sessionID, nodeID); err != nil {
		writeError(w, errorStatus(err), errorCode(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

// moveNode handles POST /session/{sessionID}/node/{nodeID}/move
func (s *Server) moveNode(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	nodeID := chi.URLParam(r, "nodeID")

	var req struct {
		NewParentID string `json:"newParentID"`
		Index       *int   `json:"index,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.NewParentID == "" {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "newParentID required")
		return
	}
	index := -1
	if req.Index != nil {
		index = *req.Index
	}

	if err := s.svc.MoveNode(r.Context(), sessionID, nodeID, req.NewParentID, index); err != nil {
		writeError(w, errorStatus(err), errorCode(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"moved": true})
}

// createBranch handles POST /session/{sessionID}/node/{nodeID}/branch
func (s *Server) createBranch(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	nodeID := chi.URLParam(r, "nodeID")

	newID, err := s.svc.CreateBranch(r.Context(), sessionID, nodeID)
	if err != nil {
		writeError(w, errorStatus(err), errorCode(err), err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"nodeID": newID})
}

// switchActiveLeaf handles POST /session/{sessionID}/node/{nodeID}/activate
func (s *Server) switchActiveLeaf(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	nodeID := chi.URLParam(r, "nodeID")

	if err := s.svc.SwitchActiveLeaf(r.Context(), sessionID, nodeID); err != nil {
		writeError(w, errorStatus(err), errorCode(err), err.Error())
		return
	}

	session, err := s.svc.GetSession(r.Context(), sessionID)
	if err != nil {
		writeError(w, errorStatus(err), errorCode(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"activeLeafID": session.ActiveLeafID})
}

// switchSibling handles POST /session/{sessionID}/node/{nodeID}/sibling
func (s *Server) switchSibling(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	nodeID := chi.URLParam(r, "nodeID")

	var req struct {
		Direction string `json:"direction"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid request body")
		return
	}
	dir := branch.Direction(req.Direction)
	if dir != branch.DirPrev && dir != branch.DirNext {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "direction must be prev or next")
		return
	}

	if err := s.svc.SwitchSibling(r.Context(), sessionID, nodeID, dir); err != nil {
		writeError(w, errorStatus(err), errorCode(err), err.Error())
		return
	}

	session, err := s.svc.GetSession(r.Context(), sessionID)
	if err != nil {
		writeError(w, errorStatus(err), errorCode(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"activeLeafID": session.ActiveLeafID})
}

// undo handles POST /session/{sessionID}/undo
func (s *Server) undo(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if err := s.svc.Undo(r.Context(), sessionID); err != nil {
		writeError(w, errorStatus(err), errorCode(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"done": true})
}

// redo handles POST /session/{sessionID}/redo
func (s *Server) redo(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if err := s.svc.Redo(r.Context(), sessionID); err != nil {
		writeError(w, errorStatus(err), errorCode(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"done": true})
}

// previewContext handles GET /session/{sessionID}/preview
func (s *Server) previewContext(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	nodeID := r.URL.Query().Get("nodeID")

	data, err := s.svc.PreviewContext(r.Context(), sessionID, nodeID)
	if err != nil {
		writeError(w, errorStatus(err), errorCode(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, data)
}
