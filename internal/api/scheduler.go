// Package api exposes the control surface: scheduler commands, execution
// history, stats and recent logs.
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/dennisdiepolder/pbxetl/internal/scheduler"
)

// SchedulerHandler provides REST endpoints for scheduler control
type SchedulerHandler struct {
	sched  *scheduler.Scheduler
	logger zerolog.Logger
}

// NewSchedulerHandler creates a new SchedulerHandler
func NewSchedulerHandler(sched *scheduler.Scheduler, logger zerolog.Logger) *SchedulerHandler {
	return &SchedulerHandler{
		sched:  sched,
		logger: logger.With().Str("component", "scheduler_handler").Logger(),
	}
}

// startRequest is the body of POST /api/scheduler/start.
type startRequest struct {
	Time      string `json:"time"`      // HH:MM, defaults to 00:00
	Frequency string `json:"frequency"` // daily (default) | once
}

// GetStatus returns the scheduler snapshot
// GET /api/scheduler/status
func (h *SchedulerHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.sched.Status(r.Context()))
}

// Start activates a schedule
// POST /api/scheduler/start
func (h *SchedulerHandler) Start(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if r.Body != nil {
		// An empty body means the defaults.
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	if req.Time == "" {
		req.Time = "00:00"
	}

	var err error
	if req.Frequency == "once" {
		err = h.sched.StartOnceToday(req.Time)
	} else {
		err = h.sched.StartDaily(req.Time)
	}

	switch {
	case errors.Is(err, scheduler.ErrAlreadyActive):
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"success": false,
			"error":   "Scheduler já está ativo",
		})
	case errors.Is(err, scheduler.ErrTimePassed):
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"success": false,
			"error":   "O horário especificado já passou hoje. Escolha um horário futuro.",
		})
	case err != nil:
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"success": false,
			"error":   err.Error(),
		})
	default:
		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"message": "Scheduler iniciado com sucesso",
			"status":  h.sched.Status(r.Context()),
		})
	}
}

// Stop deactivates the schedule
// POST /api/scheduler/stop
func (h *SchedulerHandler) Stop(w http.ResponseWriter, r *http.Request) {
	if err := h.sched.Stop(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"success": false,
			"error":   "Scheduler não está ativo",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Scheduler parado com sucesso",
	})
}

// Run triggers a manual execution in the background
// POST /api/scheduler/run
func (h *SchedulerHandler) Run(w http.ResponseWriter, r *http.Request) {
	h.sched.TriggerNow()
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Execução manual iniciada. Verifique os logs para acompanhar o progresso.",
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
