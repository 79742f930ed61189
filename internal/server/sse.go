package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/loom-engine/loom/internal/event"
	"github.com/loom-engine/loom/internal/logging"
)

// wireEvent is the on-the-wire envelope for one SSE event.
type wireEvent struct {
	Type       event.EventType `json:"type"`
	Properties any             `json:"properties"`
}

const (
	// SSEHeartbeatInterval is the interval for SSE heartbeats.
	SSEHeartbeatInterval = 30 * time.Second
)

// sseWriter wraps http.ResponseWriter for SSE.
type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
	rc      *http.ResponseController
}

// newSSEWriter creates a new SSE writer.
func newSSEWriter(w http.ResponseWriter) (*sseWriter, error) {
	rc := http.NewResponseController(w)

	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("streaming not supported")
	}

	return &sseWriter{w: w, flusher: flusher, rc: rc}, nil
}

// writeEvent writes one SSE event frame and flushes it.
func (s *sseWriter) writeEvent(eventType string, data any) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}

	_, err = fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", eventType, jsonData)
	if err != nil {
		return err
	}

	// Flush via ResponseController first; it works through middleware
	// wrappers where the plain Flusher interface may not.
	if flushErr := s.rc.Flush(); flushErr != nil {
		s.flusher.Flush()
	}

	return nil
}

// writeHeartbeat writes an SSE heartbeat comment.
func (s *sseWriter) writeHeartbeat() {
	fmt.Fprintf(s.w, ": heartbeat\n\n")
	s.flusher.Flush()
}

// globalEvents handles GET /event: every engine event, unfiltered.
func (srv *Server) globalEvents(w http.ResponseWriter, r *http.Request) {
	srv.streamEvents(w, r, func(event.Event) bool { return true })
}

// sessionEvents handles GET /session/{sessionID}/event: only events
// belonging to that session.
func (srv *Server) sessionEvents(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if sessionID == "" {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "sessionID required")
		return
	}
	srv.streamEvents(w, r, func(e event.Event) bool {
		return eventBelongsToSession(e, sessionID)
	})
}

// streamEvents is the shared SSE loop: subscribe, forward matching events
// published from then on to the client, heartbeat until it disconnects.
func (srv *Server) streamEvents(w http.ResponseWriter, r *http.Request, match func(event.Event) bool) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	sse, err := newSSEWriter(w)
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}

	// Flush headers immediately so the client sees the stream open before
	// the first event arrives.
	w.WriteHeader(http.StatusOK)
	sse.flusher.Flush()

	if err := sse.writeEvent("message", wireEvent{Type: "server.connected", Properties: map[string]any{}}); err != nil {
		return
	}

	// Small buffer for low-latency streaming; overflow drops rather than
	// blocks the publisher.
	events := make(chan event.Event, 16)
	unsub := event.SubscribeAll(func(e event.Event) {
		if !match(e) {
			return
		}
		select {
		case events <- e:
		default:
			logging.Warn().
				Str("eventType", string(e.Type)).
				Msg("SSE event dropped: channel full")
		}
	})
	defer unsub()

	ticker := time.NewTicker(SSEHeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case e := <-events:
			if err := sse.writeEvent("message", wireEvent{Type: e.Type, Properties: e.Data}); err != nil {
				return
			}
		case <-ticker.C:
			sse.writeHeartbeat()
		}
	}
}

// eventBelongsToSession checks if an event belongs to a session.
func eventBelongsToSession(e event.Event, sessionID string) bool {
	switch data := e.Data.(type) {
	case event.SessionCreatedData:
		return data.Info != nil && data.Info.ID == sessionID
	case event.SessionUpdatedData:
		return data.Info != nil && data.Info.ID == sessionID
	case event.SessionDeletedData:
		return data.SessionID == sessionID
	case event.NodeCreatedData:
		return data.SessionID == sessionID
	case event.NodeUpdatedData:
		return data.SessionID == sessionID
	case event.NodeDeletedData:
		return data.SessionID == sessionID
	case event.RelationChangedData:
		return data.SessionID == sessionID
	case event.HistoryChangedData:
		return data.SessionID == sessionID
	case event.ActiveLeafChangedData:
		return data.SessionID == sessionID
	case event.StreamDeltaData:
		return data.SessionID == sessionID
	case event.StreamFinalizedData:
		return data.SessionID == sessionID
	}
	return false
}
