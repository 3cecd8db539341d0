// Package notify dispatches execution outcomes to the configured webhook and
// email channels. Delivery is best effort: a failed notification is logged
// and never fails the execution that produced it.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/smtp"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/dennisdiepolder/pbxetl/internal/config"
	"github.com/dennisdiepolder/pbxetl/internal/types"
)

const webhookTimeout = 10 * time.Second

// Service fans an outcome out to whichever channels are enabled.
type Service struct {
	cfg    *config.Config
	http   *http.Client
	logger zerolog.Logger

	// sendMail is swapped out in tests
	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// New creates the notification service.
func New(cfg *config.Config, logger zerolog.Logger) *Service {
	return &Service{
		cfg:      cfg,
		http:     &http.Client{Timeout: webhookTimeout},
		logger:   logger.With().Str("component", "notify").Logger(),
		sendMail: smtp.SendMail,
	}
}

// NotifyOutcome dispatches one execution outcome. Email goes out on every
// failure and, when configured, on success too; the webhook fires on both.
func (s *Service) NotifyOutcome(ctx context.Context, outcome types.Outcome) {
	if !s.cfg.NotificationsEnabled {
		return
	}

	status := "error"
	if outcome.Success {
		status = "success"
	}

	s.sendWebhook(ctx, map[string]any{
		"event":     "etl_execution",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"status":    status,
		"execution": map[string]any{
			"startTime":       outcome.StartTime.UTC().Format(time.RFC3339),
			"endTime":         outcome.EndTime.UTC().Format(time.RFC3339),
			"duration":        outcome.Duration,
			"periodProcessed": outcome.Period,
			"chamadasCount":   outcome.ChamadasCount,
			"pausasCount":     outcome.PausasCount,
			"errors":          outcome.Errors,
		},
	})

	if !outcome.Success || s.cfg.EmailOnSuccess {
		s.sendOutcomeEmail(outcome)
	}
}

// NotifyCriticalError reports a failure outside the normal execution flow,
// like a crashed scheduler bootstrap.
func (s *Service) NotifyCriticalError(ctx context.Context, err error, context map[string]any) {
	if !s.cfg.NotificationsEnabled {
		return
	}

	s.sendWebhook(ctx, map[string]any{
		"event":     "critical_error",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"error": map[string]any{
			"message": err.Error(),
			"context": context,
		},
	})

	subject := "ERRO CRÍTICO - ETL 55PBX"
	body := criticalErrorBody(err, context)
	s.sendEmail(subject, body)
}

func (s *Service) sendWebhook(ctx context.Context, payload map[string]any) {
	if !s.cfg.WebhookEnabled {
		return
	}
	if s.cfg.WebhookURL == "" {
		s.logger.Warn().Msg("webhook enabled but no URL configured")
		return
	}

	body, err := json.Marshal(payload)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to marshal webhook payload")
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.WebhookURL, bytes.NewReader(body))
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to build webhook request")
		return
	}
	req.Header.Set("Content-Type", "application/json")
	if s.cfg.WebhookSecret != "" {
		req.Header.Set("X-Webhook-Secret", s.cfg.WebhookSecret)
	}

	resp, err := s.http.Do(req)
	if err != nil {
		s.logger.Error().Err(err).Str("url", s.cfg.WebhookURL).Msg("webhook delivery failed")
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		s.logger.Error().
			Str("url", s.cfg.WebhookURL).
			Int("status", resp.StatusCode).
			Msg("webhook rejected")
		return
	}

	s.logger.Info().Int("status", resp.StatusCode).Msg("webhook delivered")
}

func (s *Service) sendOutcomeEmail(outcome types.Outcome) {
	status := "ERRO"
	if outcome.Success {
		status = "SUCESSO"
	}
	subject := fmt.Sprintf("ETL 55PBX - %s - %s", status, outcome.StartTime.Format("02/01/2006 15:04"))
	s.sendEmail(subject, outcomeBody(outcome, status))
}

func (s *Service) sendEmail(subject, htmlBody string) {
	if !s.cfg.EmailEnabled {
		return
	}
	if len(s.cfg.EmailTo) == 0 {
		s.logger.Warn().Msg("email enabled but no recipients configured")
		return
	}
	if s.cfg.EmailHost == "" || s.cfg.EmailUser == "" || s.cfg.EmailPass == "" {
		s.logger.Warn().Msg("email enabled but SMTP not configured")
		return
	}

	var msg strings.Builder
	msg.WriteString(fmt.Sprintf("From: %s\r\n", s.cfg.EmailFrom))
	msg.WriteString(fmt.Sprintf("To: %s\r\n", strings.Join(s.cfg.EmailTo, ", ")))
	msg.WriteString(fmt.Sprintf("Subject: %s\r\n", subject))
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/html; charset=UTF-8\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(htmlBody)

	addr := fmt.Sprintf("%s:%d", s.cfg.EmailHost, s.cfg.EmailPort)
	auth := smtp.PlainAuth("", s.cfg.EmailUser, s.cfg.EmailPass, s.cfg.EmailHost)

	if err := s.sendMail(addr, auth, s.cfg.EmailFrom, s.cfg.EmailTo, []byte(msg.String())); err != nil {
		s.logger.Error().Err(err).Msg("email delivery failed")
		return
	}

	s.logger.Info().Strs("to", s.cfg.EmailTo).Msg("email delivered")
}

func outcomeBody(outcome types.Outcome, status string) string {
	var b strings.Builder
	b.WriteString("<html><body>")
	b.WriteString(fmt.Sprintf("<h2>ETL 55PBX - %s</h2>", status))
	b.WriteString(fmt.Sprintf("<p>Período Processado: <strong>%s</strong></p>", outcome.Period))
	b.WriteString(fmt.Sprintf("<p>Duração: %.2fs</p>", float64(outcome.Duration)/1000))
	b.WriteString(fmt.Sprintf("<p>Chamadas Processadas: %d</p>", outcome.ChamadasCount))
	b.WriteString(fmt.Sprintf("<p>Pausas Processadas: %d</p>", outcome.PausasCount))
	if len(outcome.Errors) > 0 {
		b.WriteString("<p><strong>Erros encontrados:</strong></p><ul>")
		for _, e := range outcome.Errors {
			b.WriteString("<li>" + e + "</li>")
		}
		b.WriteString("</ul>")
	}
	b.WriteString("</body></html>")
	return b.String()
}

func criticalErrorBody(err error, context map[string]any) string {
	var b strings.Builder
	b.WriteString("<html><body>")
	b.WriteString("<h2>Erro Crítico no ETL 55PBX</h2>")
	b.WriteString(fmt.Sprintf("<p><strong>%s</strong></p>", err.Error()))
	if len(context) > 0 {
		if data, jsonErr := json.MarshalIndent(context, "", "  "); jsonErr == nil {
			b.WriteString("<h4>Contexto:</h4><pre>" + string(data) + "</pre>")
		}
	}
	b.WriteString("</body></html>")
	return b.String()
}
