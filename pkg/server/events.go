package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// handleEventStream serves the live audit feed as server-sent events. Each
// audit event becomes one SSE message with the event type in the SSE event
// field and the full record as JSON data. A comment ping goes out every 15
// seconds so idle connections and intermediaries stay open.
func (s *Server) handleEventStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.badRequest(w, "streaming unsupported by connection")
		return
	}

	sub := s.bus.Subscribe(0)
	defer func() {
		s.bus.Unsubscribe(sub)
		if s.collector != nil {
			s.collector.SetEventSubscribers(s.bus.SubscriberCount())
		}
	}()
	if s.collector != nil {
		s.collector.SetEventSubscribers(s.bus.SubscriberCount())
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ping := time.NewTicker(15 * time.Second)
	defer ping.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ping.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case e, open := <-sub.Events():
			if !open {
				return
			}
			data, err := json.Marshal(e)
			if err != nil {
				continue
			}
			if sub.Lagged() {
				fmt.Fprint(w, "event: lagged\ndata: {}\n\n")
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", e.EventType, data)
			flusher.Flush()
		}
	}
}
