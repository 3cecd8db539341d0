// Package pbx is the resilient client for the 55PBX-style metrics report
// API.
package pbx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/dennisdiepolder/pbxetl/internal/config"
	"github.com/dennisdiepolder/pbxetl/internal/metrics"
	"github.com/dennisdiepolder/pbxetl/internal/normalize"
	"github.com/dennisdiepolder/pbxetl/internal/period"
	"github.com/dennisdiepolder/pbxetl/internal/types"
)

const (
	requestTimeout = 30 * time.Second
	maxAttempts    = 3
	initialDelay   = 2 * time.Second
)

// Client fetches report payloads with bounded retry and envelope
// unwrapping.
type Client struct {
	baseURL string
	token   string
	queue   string
	number  string
	agent   string
	quizID  string
	tz      string

	http   *http.Client
	logger zerolog.Logger

	// retry knobs, overridable in tests
	attempts uint64
	delay    time.Duration
}

// NewClient creates a report API client from configuration.
func NewClient(cfg *config.Config, logger zerolog.Logger) *Client {
	return &Client{
		baseURL:  cfg.PBXBaseURL,
		token:    cfg.PBXToken,
		queue:    cfg.PBXQueue,
		number:   cfg.PBXNumber,
		agent:    cfg.PBXAgent,
		quizID:   cfg.PBXQuizID,
		tz:       cfg.PBXTimezone,
		http:     &http.Client{Timeout: requestTimeout},
		logger:   logger.With().Str("component", "pbx").Logger(),
		attempts: maxAttempts,
		delay:    initialDelay,
	}
}

// FetchReport fetches one report kind for the given window, retrying
// retryable failures up to 3 attempts with delays of 0/2000/4000ms. On
// success the response envelope is unwrapped down to the record array when
// one of the recognized wrapper keys is present.
func (c *Client) FetchReport(ctx context.Context, kind types.ReportKind, w period.Window) (any, error) {
	url := c.reportURL(kind, w)

	attempt := 0
	op := func() (any, error) {
		attempt++
		metrics.Get().RecordFetchAttempt()
		if attempt > 1 {
			metrics.Get().RecordFetchRetry()
			c.logger.Warn().
				Str("report", string(kind)).
				Int("attempt", attempt).
				Msg("retrying report fetch")
		}

		payload, err := c.doRequest(ctx, url)
		if err != nil {
			var ue *UpstreamError
			if errors.As(err, &ue) && !ue.Retryable {
				return nil, backoff.Permanent(err)
			}
			return nil, err
		}
		return payload, nil
	}

	payload, err := backoff.RetryWithData(op,
		backoff.WithContext(backoff.WithMaxRetries(c.newBackOff(), c.attempts-1), ctx))
	if err != nil {
		c.logger.Error().Err(err).
			Str("report", string(kind)).
			Int("attempts", attempt).
			Msg("report fetch failed")
		return nil, err
	}

	return normalize.UnwrapEnvelope(payload), nil
}

// newBackOff builds the deterministic 2s/4s retry ladder. Randomization is
// disabled so the delay contract is exact.
func (c *Client) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.delay
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = 1 * time.Hour
	b.MaxElapsedTime = 0
	return b
}

func (c *Client) doRequest(ctx context.Context, url string) (any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	// The upstream accepts the token under either header name depending on
	// gateway generation; send both.
	req.Header.Set("key", c.token)
	req.Header.Set("Chave", c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		// Network-level failures (reset, timeout, DNS) are retryable.
		return nil, err
	}
	defer resp.Body.Close()

	if ue := classifyStatus(resp.StatusCode); ue != nil {
		return nil, ue
	}

	var payload any
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode report response: %w", err)
	}
	return payload, nil
}

// reportURL builds the positional report path. Segment order is a fixed
// upstream contract.
func (c *Client) reportURL(kind types.ReportKind, w period.Window) string {
	return fmt.Sprintf("%s/%s/%s/%s/%s/%s/%s/%s/%s",
		c.baseURL,
		period.FormatUpstream(w.Start),
		period.FormatUpstream(w.End),
		c.queue,
		c.number,
		c.agent,
		reportSegment(kind),
		c.quizID,
		c.tz,
	)
}

func reportSegment(kind types.ReportKind) string {
	switch kind {
	case "1", "2", "4":
		return "report_0" + string(kind)
	default:
		return "report_" + string(kind)
	}
}
