// Package engine runs one complete ETL execution: fetch both reports,
// normalize, validate, append to the sinks and record the outcome.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dennisdiepolder/pbxetl/internal/history"
	"github.com/dennisdiepolder/pbxetl/internal/metrics"
	"github.com/dennisdiepolder/pbxetl/internal/normalize"
	"github.com/dennisdiepolder/pbxetl/internal/period"
	"github.com/dennisdiepolder/pbxetl/internal/sheets"
	"github.com/dennisdiepolder/pbxetl/internal/types"
	"github.com/dennisdiepolder/pbxetl/internal/validate"
)

// ErrAlreadyRunning is returned when a run is requested while another one is
// still in flight. The caller decides whether that is an error or a skip.
var ErrAlreadyRunning = errors.New("execution already in progress")

// Fetcher pulls one raw report payload for a window.
type Fetcher interface {
	FetchReport(ctx context.Context, kind types.ReportKind, w period.Window) (any, error)
}

// Notifier dispatches an outcome to the configured channels. Implementations
// must not block indefinitely; failures are theirs to log.
type Notifier interface {
	NotifyOutcome(ctx context.Context, outcome types.Outcome)
}

// Broadcaster pushes an event to connected status clients.
type Broadcaster interface {
	Broadcast(event any)
}

// Engine coordinates one ETL pipeline. At most one execution runs at a time;
// concurrent triggers are rejected, never queued.
type Engine struct {
	fetcher      Fetcher
	chamadasSink sheets.Sink
	pausasSink   sheets.Sink
	ledger       *history.Ledger
	notifier     Notifier
	broadcaster  Broadcaster
	logger       zerolog.Logger

	running atomic.Bool

	// overridable in tests
	now   func() time.Time
	newID func() string
}

// New creates an engine. Notifier and broadcaster may be nil.
func New(fetcher Fetcher, chamadasSink, pausasSink sheets.Sink, ledger *history.Ledger, notifier Notifier, broadcaster Broadcaster, logger zerolog.Logger) *Engine {
	return &Engine{
		fetcher:      fetcher,
		chamadasSink: chamadasSink,
		pausasSink:   pausasSink,
		ledger:       ledger,
		notifier:     notifier,
		broadcaster:  broadcaster,
		logger:       logger.With().Str("component", "engine").Logger(),
		now:          time.Now,
		newID:        uuid.NewString,
	}
}

// IsRunning reports whether an execution is currently in flight.
func (e *Engine) IsRunning() bool {
	return e.running.Load()
}

// Run executes the pipeline for yesterday's business day.
func (e *Engine) Run(ctx context.Context) (types.Outcome, error) {
	return e.RunWindow(ctx, period.Yesterday(e.now()))
}

// RunWindow executes the pipeline for an explicit window. The returned
// outcome is already appended to the history ledger and dispatched to
// notifications; callers only inspect it.
func (e *Engine) RunWindow(ctx context.Context, w period.Window) (types.Outcome, error) {
	if !e.running.CompareAndSwap(false, true) {
		e.logger.Warn().Msg("execution already in progress, skipping")
		return types.Outcome{}, ErrAlreadyRunning
	}
	defer e.running.Store(false)

	start := e.now()
	outcome := types.Outcome{
		ID:        strconv.FormatInt(start.UnixMilli(), 10) + "-" + e.newID(),
		StartTime: start,
		Period:    w.Label(),
		Errors:    []string{},
	}

	e.logger.Info().Str("period", outcome.Period).Msg("execution started")
	e.broadcast("execution_started", outcome)

	func() {
		defer func() {
			if r := recover(); r != nil {
				e.logger.Error().Interface("panic", r).Msg("execution panicked")
				outcome.Errors = append(outcome.Errors, fmt.Sprintf("panic: %v", r))
			}
		}()

		count, err := e.processKind(ctx, types.ReportCalls, w, e.chamadasSink, normalize.CallHeaders, normalize.Calls, validate.Calls)
		if err != nil {
			outcome.Errors = append(outcome.Errors, "Chamadas: "+err.Error())
		} else {
			outcome.ChamadasCount = count
		}

		count, err = e.processKind(ctx, types.ReportPauses, w, e.pausasSink, normalize.PauseHeaders, normalize.Pauses, validate.Pauses)
		if err != nil {
			outcome.Errors = append(outcome.Errors, "Pausas: "+err.Error())
		} else {
			outcome.PausasCount = count
		}
	}()

	end := e.now()
	outcome.EndTime = end
	outcome.Duration = end.Sub(start).Milliseconds()
	outcome.Success = len(outcome.Errors) == 0

	metrics.Get().RecordRun(outcome.Success, end.Sub(start))
	e.ledger.Append(ctx, outcome)

	if outcome.Success {
		e.logger.Info().
			Str("period", outcome.Period).
			Int("chamadas", outcome.ChamadasCount).
			Int("pausas", outcome.PausasCount).
			Int64("durationMs", outcome.Duration).
			Msg("execution finished")
	} else {
		e.logger.Error().
			Str("period", outcome.Period).
			Strs("errors", outcome.Errors).
			Msg("execution finished with errors")
	}

	e.broadcast("execution_finished", outcome)
	if e.notifier != nil {
		e.notifier.NotifyOutcome(ctx, outcome)
	}

	return outcome, nil
}

// processKind runs the fetch-normalize-validate-append pipeline for one
// report kind and returns how many rows were appended.
func (e *Engine) processKind(
	ctx context.Context,
	kind types.ReportKind,
	w period.Window,
	sink sheets.Sink,
	headers []string,
	normalizeFn func(any) ([]types.Record, error),
	validateFn func([]types.Record) validate.Result,
) (int, error) {
	raw, err := e.fetcher.FetchReport(ctx, kind, w)
	if err != nil {
		return 0, err
	}

	records, err := normalizeFn(raw)
	if err != nil {
		// A non-tabular or aggregate payload means no record details for the
		// window, not a failed run.
		e.logger.Warn().
			Str("report", string(kind)).
			Err(err).
			Msg("payload yielded no records")
		return 0, nil
	}

	res := validateFn(records)
	if len(res.Invalid) > 0 {
		metrics.Get().RecordValidationRejects(len(res.Invalid))
		e.logger.Warn().
			Str("report", string(kind)).
			Int("total", len(records)).
			Int("invalid", len(res.Invalid)).
			Msg("invalid records discarded")
	}
	if res.Truncated > 0 {
		e.logger.Warn().
			Str("report", string(kind)).
			Int("truncated", res.Truncated).
			Msg("oversized cells truncated")
	}

	if len(res.Valid) == 0 {
		e.logger.Info().Str("report", string(kind)).Msg("no records for period")
		return 0, nil
	}

	if err := sink.AppendRows(ctx, headers, res.Valid); err != nil {
		return 0, err
	}

	metrics.Get().RecordRowsAppended(string(kind), len(res.Valid))
	return len(res.Valid), nil
}

func (e *Engine) broadcast(event string, outcome types.Outcome) {
	if e.broadcaster == nil {
		return
	}
	e.broadcaster.Broadcast(map[string]any{
		"type":      event,
		"execution": outcome,
	})
}
