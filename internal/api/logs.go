package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/dennisdiepolder/pbxetl/internal/logbuffer"
)

// LogsHandler serves recent in-memory log entries
type LogsHandler struct {
	buffer *logbuffer.Buffer
	logger zerolog.Logger
}

// NewLogsHandler creates a new LogsHandler
func NewLogsHandler(buffer *logbuffer.Buffer, logger zerolog.Logger) *LogsHandler {
	return &LogsHandler{
		buffer: buffer,
		logger: logger.With().Str("component", "logs_handler").Logger(),
	}
}

// GetLogs returns the newest captured log entries
// GET /api/logs?limit=100&level=error&since=2026-08-27T00:00:00Z
func (h *LogsHandler) GetLogs(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]any{
				"success": false,
				"error":   "limit must be a positive integer",
			})
			return
		}
		limit = parsed
	}

	level := r.URL.Query().Get("level")

	var since time.Time
	if raw := r.URL.Query().Get("since"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{
				"success": false,
				"error":   "since must be an RFC3339 timestamp",
			})
			return
		}
		since = parsed
	}

	entries := h.buffer.Recent(0)
	filtered := make([]logbuffer.Entry, 0, limit)
	for _, entry := range entries {
		if level != "" && entry.Level != level {
			continue
		}
		if !since.IsZero() && entry.Timestamp.Before(since) {
			continue
		}
		filtered = append(filtered, entry)
		if len(filtered) == limit {
			break
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"logs":    filtered,
		"count":   len(filtered),
	})
}
