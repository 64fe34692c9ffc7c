package gateway

import (
	"net/http"
	"time"
)

// HealthResponse is the JSON body for GET /health.
type HealthResponse struct {
	Status          string  `json:"status"`
	Version         string  `json:"version"`
	UptimeS         float64 `json:"uptime_s"`
	PendingApproval bool    `json:"pending_approval"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, HealthResponse{
		Status:          "ok",
		Version:         s.version,
		UptimeS:         time.Since(s.startedAt).Seconds(),
		PendingApproval: s.session.HasPendingApproval(),
	})
}
