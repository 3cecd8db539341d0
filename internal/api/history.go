package api

import (
	"net/http"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/dennisdiepolder/pbxetl/internal/history"
	"github.com/dennisdiepolder/pbxetl/internal/types"
)

// HistoryHandler provides REST endpoints for the execution ledger
type HistoryHandler struct {
	ledger *history.Ledger
	logger zerolog.Logger
}

// NewHistoryHandler creates a new HistoryHandler
func NewHistoryHandler(ledger *history.Ledger, logger zerolog.Logger) *HistoryHandler {
	return &HistoryHandler{
		ledger: ledger,
		logger: logger.With().Str("component", "history_handler").Logger(),
	}
}

// GetHistory returns recent executions plus aggregate stats
// GET /api/history?limit=50
func (h *HistoryHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	limit := 50
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

	outcomes := h.ledger.Recent(r.Context(), limit)
	if outcomes == nil {
		outcomes = []types.Outcome{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"history": outcomes,
		"stats":   h.ledger.ComputeStats(r.Context()),
		"count":   len(outcomes),
	})
}

// GetHistoryStats returns the aggregate stats over the retained ledger
// GET /api/history/stats
func (h *HistoryHandler) GetHistoryStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"stats":   h.ledger.ComputeStats(r.Context()),
	})
}

// GetStats returns the last-execution snapshot for dashboards
// GET /api/stats
func (h *HistoryHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	last, ok := h.ledger.Last(r.Context())
	if !ok {
		writeJSON(w, http.StatusOK, map[string]any{
			"chamadas":        0,
			"pausas":          0,
			"lastExecution":   nil,
			"periodProcessed": nil,
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"chamadas":        last.ChamadasCount,
		"pausas":          last.PausasCount,
		"lastExecution":   last.StartTime,
		"periodProcessed": last.Period,
	})
}
