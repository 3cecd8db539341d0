// Package sheets appends normalized records to Google-Sheets-backed
// destinations.
package sheets

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2/jwt"
	"google.golang.org/api/option"
	sheetsapi "google.golang.org/api/sheets/v4"

	"github.com/dennisdiepolder/pbxetl/internal/config"
	"github.com/dennisdiepolder/pbxetl/internal/types"
)

// Sink is one append-only destination for tabular records. Rows are appended
// in the given header order; the header row is created when the sheet is
// still empty.
type Sink interface {
	AppendRows(ctx context.Context, headers []string, records []types.Record) error
}

// GoogleSink writes to one spreadsheet tab through the Sheets API using a
// service account.
type GoogleSink struct {
	svc           *sheetsapi.Service
	spreadsheetID string
	tab           string
	logger        zerolog.Logger
}

// NewGoogleSink authenticates a service-account JWT and binds it to one
// spreadsheet tab.
func NewGoogleSink(ctx context.Context, cfg *config.Config, spreadsheetID string, logger zerolog.Logger) (*GoogleSink, error) {
	conf := &jwt.Config{
		Email:      cfg.GoogleServiceAccountEmail,
		PrivateKey: []byte(cfg.GooglePrivateKey),
		Scopes:     []string{"https://www.googleapis.com/auth/spreadsheets"},
		TokenURL:   "https://oauth2.googleapis.com/token",
	}

	svc, err := sheetsapi.NewService(ctx, option.WithHTTPClient(conf.Client(ctx)))
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets service: %w", err)
	}

	return &GoogleSink{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		tab:           cfg.SheetTabName,
		logger:        logger.With().Str("component", "sheets").Str("spreadsheet", spreadsheetID).Logger(),
	}, nil
}

// AppendRows ensures the header row exists and appends every record as one
// row in header order. Empty batches are a no-op.
func (s *GoogleSink) AppendRows(ctx context.Context, headers []string, records []types.Record) error {
	if len(records) == 0 {
		return nil
	}

	if err := s.ensureHeader(ctx, headers); err != nil {
		return err
	}

	values := make([][]any, 0, len(records))
	for _, rec := range records {
		row := make([]any, len(headers))
		for i, h := range headers {
			row[i] = rec[h]
		}
		values = append(values, row)
	}

	_, err := s.svc.Spreadsheets.Values.
		Append(s.spreadsheetID, s.tab, &sheetsapi.ValueRange{Values: values}).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("failed to append rows to %s: %w", s.spreadsheetID, err)
	}

	s.logger.Info().Int("rows", len(values)).Msg("rows appended")
	return nil
}

// ensureHeader writes the header row when the first sheet row is empty. An
// existing header is left untouched even if it differs.
func (s *GoogleSink) ensureHeader(ctx context.Context, headers []string) error {
	rng := s.tab + "!1:1"

	resp, err := s.svc.Spreadsheets.Values.Get(s.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to read header row of %s: %w", s.spreadsheetID, err)
	}
	if len(resp.Values) > 0 && len(resp.Values[0]) > 0 {
		return nil
	}

	row := make([]any, len(headers))
	for i, h := range headers {
		row[i] = h
	}

	_, err = s.svc.Spreadsheets.Values.
		Update(s.spreadsheetID, rng, &sheetsapi.ValueRange{Values: [][]any{row}}).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("failed to write header row of %s: %w", s.spreadsheetID, err)
	}

	s.logger.Info().Int("columns", len(headers)).Msg("header row created")
	return nil
}

// LogSink is the dry-run destination used when no spreadsheet is configured.
// Rows are logged and discarded.
type LogSink struct {
	Name   string
	Logger zerolog.Logger
}

func (s *LogSink) AppendRows(_ context.Context, headers []string, records []types.Record) error {
	s.Logger.Info().
		Str("sink", s.Name).
		Int("rows", len(records)).
		Int("columns", len(headers)).
		Msg("dry-run append")
	return nil
}
