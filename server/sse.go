package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/homecanvas/homecanvas/events"
	"github.com/homecanvas/homecanvas/pkg/logging"
)

// handleEvents streams project events over SSE. The stream opens with a
// connected event, relays bus events as they arrive, and sends a keepalive
// on idle so proxies don't reap the connection. Client disconnect ends the
// stream only; any in-flight generation keeps running.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	projectID := r.PathValue("projectID")
	if projectID == "" {
		writeError(w, http.StatusBadRequest, "missing project id")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	sub := s.bus.Subscribe(projectID)
	defer sub.Close()

	log := logging.WithComponent("server").With("project_id", projectID)
	log.Info("event stream opened")

	if err := writeEvent(w, flusher, events.Event{
		Type:      events.TypeConnected,
		ProjectID: projectID,
		Timestamp: time.Now().UTC(),
	}); err != nil {
		return
	}

	// The keepalive measures idle time only; every delivered event re-arms
	// the timer.
	keepalive := time.NewTimer(s.config.KeepaliveInterval)
	defer keepalive.Stop()

	for {
		select {
		case <-r.Context().Done():
			log.Info("event stream closed by client")
			return
		case ev, ok := <-sub.C():
			if !ok {
				return
			}
			if err := writeEvent(w, flusher, ev); err != nil {
				log.Warn("event stream write failed", "error", err)
				return
			}
			keepalive.Reset(s.config.KeepaliveInterval)
		case <-keepalive.C:
			if err := writeEvent(w, flusher, events.Event{
				Type:      events.TypeKeepalive,
				ProjectID: projectID,
				Timestamp: time.Now().UTC(),
			}); err != nil {
				return
			}
			keepalive.Reset(s.config.KeepaliveInterval)
		}
	}
}

func writeEvent(w http.ResponseWriter, flusher http.Flusher, ev events.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}
