package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// keepAliveInterval is how often an SSE comment is written to hold
// idle connections open through proxies.
const keepAliveInterval = 25 * time.Second

// handleEvents streams graph changes as server-sent events. Each change
// becomes one "node" event with a JSON payload; delivery is best-effort
// and clients re-read /api/nodes after reconnecting.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.bus == nil {
		writeError(w, http.StatusServiceUnavailable, "event feed not configured")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	// Subscribe before the headers go out so no change published after
	// the client sees the stream open can be missed.
	changes, cancel := s.bus.Subscribe(0)
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	keepAlive := time.NewTicker(keepAliveInterval)
	defer keepAlive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-keepAlive.C:
			fmt.Fprint(w, ": keep-alive\n\n")
			flusher.Flush()
		case change, open := <-changes:
			if !open {
				return
			}
			payload, err := json.Marshal(change)
			if err != nil {
				s.logger.Error("event encode failed", "error", err)
				continue
			}
			fmt.Fprintf(w, "event: node\nid: %s\ndata: %s\n\n", change.ID, payload)
			flusher.Flush()
		}
	}
}
