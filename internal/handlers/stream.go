package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/phishguard/phishguard-go/internal/sse"
	"github.com/phishguard/phishguard-go/internal/store"
)

// StreamHandler serves the SSE stream of verdicts.
type StreamHandler struct {
	hub       *sse.Hub
	store     store.Store
	keepalive time.Duration
}

// NewStreamHandler creates a new StreamHandler.
func NewStreamHandler(hub *sse.Hub, s store.Store) *StreamHandler {
	return &StreamHandler{hub: hub, store: s, keepalive: 30 * time.Second}
}

// HandleSSE handles GET /api/stream/events
// It sends the current stats and the most recent verdicts, then streams live
// verdicts with periodic keepalives.
func (sh *StreamHandler) HandleSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	// subscribe before hydrating so nothing recorded in between is lost
	ch, cancel := sh.hub.Subscribe(sse.TopicVerdicts)
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	if stats, err := sh.store.Stats(r.Context()); err == nil {
		data, _ := json.Marshal(stats)
		fmt.Fprintf(w, "event: stats\ndata: %s\n\n", data)
	}
	recent, _ := sh.store.Recent(r.Context(), 20)
	for i := len(recent) - 1; i >= 0; i-- {
		data, _ := json.Marshal(recent[i])
		fmt.Fprintf(w, "event: verdict\ndata: %s\n\n", data)
	}
	flusher.Flush()

	keepalive := time.NewTicker(sh.keepalive)
	defer keepalive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case event, ok := <-ch:
			if !ok {
				return
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, event.Data)
			flusher.Flush()
		case <-keepalive.C:
			fmt.Fprintf(w, ": keepalive\n\n")
			flusher.Flush()
		}
	}
}
