package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/lattice-dev/lattice/internal/event"
)

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

func newSSEWriter(w http.ResponseWriter) (*sseWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("streaming not supported")
	}
	return &sseWriter{w: w, flusher: flusher, rc: http.NewResponseController(w)}, nil
}

// writeEvent writes one SSE event and flushes it.
func (s *sseWriter) writeEvent(eventType string, data any) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", eventType, jsonData); err != nil {
		return err
	}
	if flushErr := s.rc.Flush(); flushErr != nil {
		s.flusher.Flush()
	}
	return nil
}

func (s *sseWriter) writeHeartbeat() {
	fmt.Fprintf(s.w, ": heartbeat\n\n")
	s.flusher.Flush()
}

func setSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // disable nginx buffering
}

// processFeed streams the session's ledger snapshots. Each event carries the
// full snapshot; consumers discard anything older than the newest Seq they
// have applied. The subscription is torn down with the request context, so a
// dropped client releases its ledger listener.
func (s *Server) processFeed(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	_, ledger, err := s.sessions.Get(sessionID)
	if err != nil {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, err.Error())
		return
	}

	setSSEHeaders(w)
	sse, err := newSSEWriter(w)
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}
	w.WriteHeader(http.StatusOK)

	snapshots := ledger.Subscribe(r.Context())
	heartbeat := time.NewTicker(SSEHeartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case snap, ok := <-snapshots:
			if !ok {
				return
			}
			if err := sse.writeEvent("processes", snap); err != nil {
				return
			}
		case <-heartbeat.C:
			sse.writeHeartbeat()
		case <-r.Context().Done():
			return
		}
	}
}

// allEvents streams every bus event to the client.
func (s *Server) allEvents(w http.ResponseWriter, r *http.Request) {
	setSSEHeaders(w)
	sse, err := newSSEWriter(w)
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}
	w.WriteHeader(http.StatusOK)

	events := make(chan event.Event, 64)
	unsubscribe := s.bus.SubscribeAll(func(e event.Event) {
		select {
		case events <- e:
		default: // slow consumer drops events rather than blocking the bus
		}
	})
	defer unsubscribe()

	heartbeat := time.NewTicker(SSEHeartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case e := <-events:
			if err := sse.writeEvent(string(e.Type), e.Data); err != nil {
				return
			}
		case <-heartbeat.C:
			sse.writeHeartbeat()
		case <-r.Context().Done():
			return
		}
	}
}
