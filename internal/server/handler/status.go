package handler

import (
	"net/http"
	"time"

	"github.com/alanyoungcy/metaquote/internal/stream"
)

// StatusSource reports the stream session status.
type StatusSource interface {
	Status() stream.Status
}

// StatusHandler serves the backend status (mode, uptime, stream) for
// dashboards.
type StatusHandler struct {
	Mode    string
	started time.Time
	stream  StatusSource
}

// NewStatusHandler creates a StatusHandler for the given mode.
func NewStatusHandler(mode string, src StatusSource) *StatusHandler {
	return &StatusHandler{Mode: mode, started: time.Now(), stream: src}
}

// GetStatus responds with the current backend mode and stream status.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"mode":           h.Mode,
		"uptime_seconds": int64(time.Since(h.started).Seconds()),
		"stream":         h.stream.Status(),
	})
}
