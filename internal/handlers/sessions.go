package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/ttrenholm/gatehouse/internal/notify"
	pkghttp "github.com/ttrenholm/gatehouse/pkg/http"
)

// SessionCounter reports the number of live sessions across all replicas.
type SessionCounter interface {
	CountActive(ctx context.Context) (int, error)
}

// SessionsHandler exposes the live session count, both as a point-in-time
// read and as a server-sent event stream fed by the notify hub.
type SessionsHandler struct {
	counter SessionCounter
	hub     *notify.Hub
}

func NewSessionsHandler(counter SessionCounter, hub *notify.Hub) *SessionsHandler {
	return &SessionsHandler{counter: counter, hub: hub}
}

// Count returns the current active session count
// @Summary Active session count
// @Produce json
// @Success 200 {object} notify.CountUpdate
// @Router /sessions/count [get]
func (h *SessionsHandler) Count(w http.ResponseWriter, r *http.Request) {
	count, err := h.counter.CountActive(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(notify.CountUpdate{ActiveSessions: count})
}

// Stream pushes session-count updates over SSE until the client disconnects
// @Summary Live session-count stream
// @Produce text/event-stream
// @Router /sessions/stream [get]
func (h *SessionsHandler) Stream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		pkghttp.WriteInternalError(w, "Streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	obs := h.hub.Register()
	defer obs.Cancel()

	// The hub replays the last known count on registration, so a fresh
	// client gets a baseline before the next session change.
	for {
		select {
		case update, open := <-obs.C:
			if !open {
				return
			}
			payload, err := json.Marshal(update)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: session_count\ndata: %s\n\n", payload)
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}
