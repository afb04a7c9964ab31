package web

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// wsPingInterval keeps idle connections alive while a long acquisition
// run produces no counter changes.
const wsPingInterval = 30 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The UI is served from the same binary; cross-origin checks buy
	// nothing here.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleWebSocket streams one acquisition job's counters (done/total,
// succeeded, failed) to the client until the job settles or the client
// goes away.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	jobID := r.URL.Query().Get("job_id")
	if jobID == "" {
		http.Error(w, "job_id is required", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("WebSocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	updates := s.jobMgr.Subscribe(jobID)
	defer s.jobMgr.Unsubscribe(jobID, updates)

	// Current snapshot first, so a late subscriber sees the counters
	// immediately instead of waiting for the next track to settle.
	if job, err := s.jobMgr.GetJob(jobID); err == nil {
		if !s.writeJobUpdate(conn, job) || jobSettled(job.Status) {
			return
		}
	}

	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	for {
		select {
		case job, ok := <-updates:
			if !ok {
				return
			}
			if !s.writeJobUpdate(conn, job) || jobSettled(job.Status) {
				return
			}
		case <-ticker.C:
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// writeJobUpdate sends one job snapshot. It reports false when the
// connection is no longer usable; marshal failures only skip the
// snapshot.
func (s *Server) writeJobUpdate(conn *websocket.Conn, job *Job) bool {
	data, err := json.Marshal(s.jobToResponse(job))
	if err != nil {
		s.logger.Error("Failed to marshal job update: %v", err)
		return true
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		s.logger.Error("Failed to write job update: %v", err)
		return false
	}
	return true
}

// jobSettled reports whether a job reached a terminal status, after
// which the stream has nothing more to say.
func jobSettled(status JobStatus) bool {
	switch status {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}
