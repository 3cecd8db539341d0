// Package history keeps the bounded execution ledger: the last 100 run
// outcomes, persisted across restarts.
package history

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/dennisdiepolder/pbxetl/internal/config"
	"github.com/dennisdiepolder/pbxetl/internal/types"
)

// Store persists the full ledger. Implementations load the complete slice
// and save the complete (already pruned) slice; ordering is oldest first.
type Store interface {
	Load(ctx context.Context) ([]types.Outcome, error)
	Save(ctx context.Context, outcomes []types.Outcome) error
}

// NewStore creates the appropriate store based on configuration
func NewStore(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (Store, error) {
	switch cfg.HistoryMode {
	case "dynamo":
		return NewDynamoDBStore(ctx, LoadDynamoConfig(), logger)
	default:
		return &FileStore{Path: cfg.HistoryFile}, nil
	}
}

// FileStore keeps the ledger as one pretty-printed JSON file. A missing or
// unreadable file loads as an empty ledger rather than failing the run.
type FileStore struct {
	Path string
}

func (s *FileStore) Load(_ context.Context) ([]types.Outcome, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, nil
	}

	var outcomes []types.Outcome
	if err := json.Unmarshal(data, &outcomes); err != nil {
		// A corrupt file must not block future executions.
		return nil, nil
	}
	return outcomes, nil
}

func (s *FileStore) Save(_ context.Context, outcomes []types.Outcome) error {
	if dir := filepath.Dir(s.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create history directory: %w", err)
		}
	}

	data, err := json.MarshalIndent(outcomes, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal history: %w", err)
	}
	if err := os.WriteFile(s.Path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write history file: %w", err)
	}
	return nil
}

// MemStore is the in-memory store used in tests.
type MemStore struct {
	Outcomes []types.Outcome
}

func (s *MemStore) Load(_ context.Context) ([]types.Outcome, error) {
	out := make([]types.Outcome, len(s.Outcomes))
	copy(out, s.Outcomes)
	return out, nil
}

func (s *MemStore) Save(_ context.Context, outcomes []types.Outcome) error {
	s.Outcomes = make([]types.Outcome, len(outcomes))
	copy(s.Outcomes, outcomes)
	return nil
}
