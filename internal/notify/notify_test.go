package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/smtp"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/dennisdiepolder/pbxetl/internal/config"
	"github.com/dennisdiepolder/pbxetl/internal/types"
)

func testLogger() zerolog.Logger {
	return zerolog.New(os.Stderr).Level(zerolog.Disabled)
}

func testOutcome(success bool) types.Outcome {
	start := time.Date(2025, 12, 5, 3, 0, 0, 0, time.UTC)
	o := types.Outcome{
		ID:            "run-1",
		StartTime:     start,
		EndTime:       start.Add(3 * time.Second),
		Duration:      3000,
		Success:       success,
		ChamadasCount: 42,
		PausasCount:   7,
		Errors:        []string{},
		Period:        "2025-12-04",
	}
	if !success {
		o.Errors = []string{"Chamadas: Erro 500: Erro interno do 55PBX. Tente novamente mais tarde."}
	}
	return o
}

func TestWebhookPayload(t *testing.T) {
	var got map[string]any
	var gotSecret string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSecret = r.Header.Get("X-Webhook-Secret")
		json.NewDecoder(r.Body).Decode(&got)
	}))
	defer server.Close()

	cfg := &config.Config{
		NotificationsEnabled: true,
		WebhookEnabled:       true,
		WebhookURL:           server.URL,
		WebhookSecret:        "s3cret",
	}
	s := New(cfg, testLogger())
	s.NotifyOutcome(context.Background(), testOutcome(true))

	if got == nil {
		t.Fatal("webhook was not called")
	}
	if gotSecret != "s3cret" {
		t.Errorf("X-Webhook-Secret = %q", gotSecret)
	}
	if got["event"] != "etl_execution" {
		t.Errorf("event = %v", got["event"])
	}
	if got["status"] != "success" {
		t.Errorf("status = %v", got["status"])
	}

	exec, ok := got["execution"].(map[string]any)
	if !ok {
		t.Fatal("missing execution block")
	}
	if exec["periodProcessed"] != "2025-12-04" {
		t.Errorf("periodProcessed = %v", exec["periodProcessed"])
	}
	if exec["chamadasCount"] != float64(42) {
		t.Errorf("chamadasCount = %v", exec["chamadasCount"])
	}
}

func TestWebhookErrorStatus(t *testing.T) {
	var got map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
	}))
	defer server.Close()

	cfg := &config.Config{
		NotificationsEnabled: true,
		WebhookEnabled:       true,
		WebhookURL:           server.URL,
	}
	s := New(cfg, testLogger())
	s.NotifyOutcome(context.Background(), testOutcome(false))

	if got["status"] != "error" {
		t.Errorf("status = %v, want error", got["status"])
	}
}

func TestNotificationsDisabled(t *testing.T) {
	called := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer server.Close()

	cfg := &config.Config{
		NotificationsEnabled: false,
		WebhookEnabled:       true,
		WebhookURL:           server.URL,
	}
	s := New(cfg, testLogger())
	s.NotifyOutcome(context.Background(), testOutcome(false))

	if called {
		t.Error("webhook must not fire when notifications are disabled")
	}
}

func TestEmailOnFailure(t *testing.T) {
	var sentTo []string
	var sentMsg string

	cfg := &config.Config{
		NotificationsEnabled: true,
		EmailEnabled:         true,
		EmailHost:            "smtp.example.com",
		EmailPort:            587,
		EmailUser:            "etl@example.com",
		EmailPass:            "pass",
		EmailFrom:            "etl@example.com",
		EmailTo:              []string{"ops@example.com"},
	}
	s := New(cfg, testLogger())
	s.sendMail = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		sentTo = to
		sentMsg = string(msg)
		return nil
	}

	s.NotifyOutcome(context.Background(), testOutcome(false))

	if len(sentTo) != 1 || sentTo[0] != "ops@example.com" {
		t.Fatalf("email recipients = %v", sentTo)
	}
	if !strings.Contains(sentMsg, "Subject: ETL 55PBX - ERRO") {
		t.Errorf("subject missing error status:\n%s", sentMsg)
	}
	if !strings.Contains(sentMsg, "Erro 500") {
		t.Errorf("body missing error detail")
	}
	if !strings.Contains(sentMsg, "2025-12-04") {
		t.Errorf("body missing processed period")
	}
}

func TestEmailSkippedOnSuccessByDefault(t *testing.T) {
	called := false
	cfg := &config.Config{
		NotificationsEnabled: true,
		EmailEnabled:         true,
		EmailHost:            "smtp.example.com",
		EmailUser:            "etl@example.com",
		EmailPass:            "pass",
		EmailTo:              []string{"ops@example.com"},
	}
	s := New(cfg, testLogger())
	s.sendMail = func(string, smtp.Auth, string, []string, []byte) error {
		called = true
		return nil
	}

	s.NotifyOutcome(context.Background(), testOutcome(true))
	if called {
		t.Error("success must not email without EMAIL_ON_SUCCESS")
	}

	cfg.EmailOnSuccess = true
	s.NotifyOutcome(context.Background(), testOutcome(true))
	if !called {
		t.Error("EMAIL_ON_SUCCESS must email on success")
	}
}

func TestCriticalErrorPayload(t *testing.T) {
	var got map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
	}))
	defer server.Close()

	cfg := &config.Config{
		NotificationsEnabled: true,
		WebhookEnabled:       true,
		WebhookURL:           server.URL,
	}
	s := New(cfg, testLogger())
	s.NotifyCriticalError(context.Background(), context.DeadlineExceeded, map[string]any{"stage": "bootstrap"})

	if got["event"] != "critical_error" {
		t.Errorf("event = %v", got["event"])
	}
	errBlock, ok := got["error"].(map[string]any)
	if !ok {
		t.Fatal("missing error block")
	}
	if errBlock["message"] != context.DeadlineExceeded.Error() {
		t.Errorf("message = %v", errBlock["message"])
	}
}
