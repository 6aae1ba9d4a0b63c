package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	applog "finanzas/internal/log"
)

// handleEvents streams the status as server-sent events: one "snapshot"
// event on connect and one after every session change. Changes that happen
// while a client is slow are coalesced into the latest state.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	rc := http.NewResponseController(w)
	changes, cancel := s.app.Watch()
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	atomic.AddInt64(&s.appMetrics.openStreams, 1)
	defer atomic.AddInt64(&s.appMetrics.openStreams, -1)

	logger := applog.FromContext(r.Context())
	logger.DebugContext(r.Context(), "Event stream opened")

	heartbeat := time.NewTicker(s.heartbeat)
	defer heartbeat.Stop()

	var last uint64
	send := func() error {
		st := newStatusView(s.app.Status())
		if st.Version == last && last != 0 {
			return nil
		}
		last = st.Version
		payload, err := json.Marshal(st)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "id: %d\nevent: snapshot\ndata: %s\n\n", st.Version, payload); err != nil {
			return err
		}
		return rc.Flush()
	}

	if err := send(); err != nil {
		logger.WarnContext(r.Context(), "Event stream failed", applog.FieldError, err)
		return
	}
	for {
		select {
		case <-r.Context().Done():
			logger.DebugContext(r.Context(), "Event stream closed")
			return
		case _, ok := <-changes:
			if !ok {
				return
			}
			if err := send(); err != nil {
				logger.DebugContext(r.Context(), "Event stream write failed", applog.FieldError, err)
				return
			}
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		}
	}
}
