package history

import (
	"context"
	"math"
	"sync"

	"github.com/rs/zerolog"

	"github.com/dennisdiepolder/pbxetl/internal/types"
)

// maxEntries bounds the ledger; older outcomes fall off.
const maxEntries = 100

// Stats is the aggregate view over the whole retained ledger, recomputed on
// demand.
type Stats struct {
	Total         int     `json:"total"`
	Successful    int     `json:"successful"`
	Failed        int     `json:"failed"`
	SuccessRate   float64 `json:"successRate"`
	AvgDuration   int64   `json:"avgDuration"` // milliseconds
	TotalChamadas int     `json:"totalChamadas"`
	TotalPausas   int     `json:"totalPausas"`
}

// Ledger is the bounded, persisted execution history. All methods are safe
// for concurrent use.
type Ledger struct {
	mu     sync.Mutex
	store  Store
	logger zerolog.Logger
}

// NewLedger wraps a store.
func NewLedger(store Store, logger zerolog.Logger) *Ledger {
	return &Ledger{
		store:  store,
		logger: logger.With().Str("component", "history").Logger(),
	}
}

// Append adds one outcome, prunes to the newest 100 entries and persists the
// result. A persistence failure is logged but never fails the run that
// produced the outcome.
func (l *Ledger) Append(ctx context.Context, outcome types.Outcome) {
	l.mu.Lock()
	defer l.mu.Unlock()

	outcomes, err := l.store.Load(ctx)
	if err != nil {
		l.logger.Error().Err(err).Msg("failed to load execution history")
		outcomes = nil
	}

	outcomes = append(outcomes, outcome)
	if len(outcomes) > maxEntries {
		outcomes = outcomes[len(outcomes)-maxEntries:]
	}

	if err := l.store.Save(ctx, outcomes); err != nil {
		l.logger.Error().Err(err).Msg("failed to save execution history")
	}
}

// Recent returns up to limit outcomes, newest first.
func (l *Ledger) Recent(ctx context.Context, limit int) []types.Outcome {
	l.mu.Lock()
	defer l.mu.Unlock()

	outcomes, err := l.store.Load(ctx)
	if err != nil {
		l.logger.Error().Err(err).Msg("failed to load execution history")
		return nil
	}

	if limit > 0 && len(outcomes) > limit {
		outcomes = outcomes[len(outcomes)-limit:]
	}

	reversed := make([]types.Outcome, 0, len(outcomes))
	for i := len(outcomes) - 1; i >= 0; i-- {
		reversed = append(reversed, outcomes[i])
	}
	return reversed
}

// Last returns the most recent outcome, or false when the ledger is empty.
func (l *Ledger) Last(ctx context.Context) (types.Outcome, bool) {
	recent := l.Recent(ctx, 1)
	if len(recent) == 0 {
		return types.Outcome{}, false
	}
	return recent[0], true
}

// ComputeStats recomputes aggregate statistics over the retained ledger.
func (l *Ledger) ComputeStats(ctx context.Context) Stats {
	l.mu.Lock()
	defer l.mu.Unlock()

	outcomes, err := l.store.Load(ctx)
	if err != nil {
		l.logger.Error().Err(err).Msg("failed to load execution history")
		return Stats{}
	}
	if len(outcomes) == 0 {
		return Stats{}
	}

	stats := Stats{Total: len(outcomes)}
	var durationSum int64
	var durationCount int

	for _, o := range outcomes {
		if o.Success {
			stats.Successful++
		}
		if o.Duration > 0 {
			durationSum += o.Duration
			durationCount++
		}
		stats.TotalChamadas += o.ChamadasCount
		stats.TotalPausas += o.PausasCount
	}

	stats.Failed = stats.Total - stats.Successful
	stats.SuccessRate = float64(stats.Successful) / float64(stats.Total) * 100
	if durationCount > 0 {
		stats.AvgDuration = int64(math.Round(float64(durationSum) / float64(durationCount)))
	}
	return stats
}
