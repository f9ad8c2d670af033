package httpapi

import (
	"fmt"
	"net/http"
	"time"
)

type pushEvent struct {
	eventType string
	payload   []byte
}

// handleEvents streams the requester's progress and lifecycle events as
// server-sent events until the client goes away.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	fl, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "streaming unsupported"})
		return
	}

	w.Header().Set("content-type", "text/event-stream")
	w.Header().Set("cache-control", "no-cache")
	w.WriteHeader(http.StatusOK)
	fl.Flush()

	requester := requesterFrom(r.Context())

	// The buffer absorbs bursts; a client too slow to drain it loses
	// events rather than stalling the transfer loop.
	events := make(chan pushEvent, 256)
	id := s.Bridge.RegisterProgressListener(requester, func(eventType string, payload []byte) {
		select {
		case events <- pushEvent{eventType: eventType, payload: payload}:
		default:
			s.logger().Warn("dropping push event for slow client", "user", requester.Username, "event", eventType)
		}
	})
	defer s.Bridge.UnregisterProgressListener(requester, id)

	keepalive := time.NewTicker(30 * time.Second)
	defer keepalive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev := <-events:
			payload := ev.payload
			if len(payload) == 0 {
				payload = []byte("{}")
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.eventType, payload)
			fl.Flush()
		case <-keepalive.C:
			fmt.Fprint(w, ": keepalive\n\n")
			fl.Flush()
		}
	}
}
