package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	Port           string
	AllowedOrigins []string
	LogLevel       string

	// WebSocket status stream
	WSReadTimeout  time.Duration
	WSWriteTimeout time.Duration
	PingPeriod     time.Duration
	PongWait       time.Duration
	WriteWait      time.Duration
	MaxMessageSize int64

	// Upstream report API
	PBXBaseURL  string
	PBXToken    string
	PBXQueue    string
	PBXNumber   string
	PBXAgent    string
	PBXQuizID   string
	PBXTimezone string

	// Spreadsheet destinations
	SheetsMode                string // google | none
	SheetChamadasID           string
	SheetPausasID             string
	SheetTabName              string
	GoogleServiceAccountEmail string
	GooglePrivateKey          string

	// Execution history
	HistoryMode string // file | dynamo
	HistoryFile string

	// Scheduler bootstrap
	AutoStartSchedule bool
	ScheduleTime      string // HH:MM, business timezone

	// Notifications
	NotificationsEnabled bool
	EmailEnabled         bool
	EmailHost            string
	EmailPort            int
	EmailSecure          bool
	EmailUser            string
	EmailPass            string
	EmailFrom            string
	EmailTo              []string
	EmailOnSuccess       bool
	WebhookEnabled       bool
	WebhookURL           string
	WebhookSecret        string

	// Control surface auth
	AuthMode      string // none | key | jwt
	APIKey        string
	AuthIssuerURL string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	config := &Config{
		Port:           getEnv("PORT", "8080"),
		AllowedOrigins: strings.Split(getEnv("ALLOWED_ORIGINS", "http://localhost:5173"), ","),
		LogLevel:       getEnv("LOG_LEVEL", "info"),

		PBXBaseURL:  getEnv("PBX_BASE_URL", "https://reportapi02.55pbx.com:50500/api/pbx/reports/metrics"),
		PBXToken:    getEnv("PBX_TOKEN", ""),
		PBXQueue:    getEnv("PBX_QUEUE", "all_queues"),
		PBXNumber:   getEnv("PBX_NUMBER", "all_numbers"),
		PBXAgent:    getEnv("PBX_AGENT", "all_agent"),
		PBXQuizID:   getEnv("PBX_QUIZ_ID", "undefined"),
		PBXTimezone: getEnv("PBX_TIMEZONE", "-3"),

		SheetsMode:                getEnv("SHEETS_MODE", "google"),
		SheetChamadasID:           getEnv("SHEET_CHAMADAS_ID", ""),
		SheetPausasID:             getEnv("SHEET_PAUSAS_ID", ""),
		SheetTabName:              getEnv("SHEET_TAB_NAME", "Página1"),
		GoogleServiceAccountEmail: getEnv("GOOGLE_SERVICE_ACCOUNT_EMAIL", ""),
		// Private keys carry literal \n sequences when set through
		// single-line env files.
		GooglePrivateKey: strings.ReplaceAll(getEnv("GOOGLE_PRIVATE_KEY", ""), `\n`, "\n"),

		HistoryMode: getEnv("HISTORY_MODE", "file"),
		HistoryFile: getEnv("HISTORY_FILE", "logs/execution-history.json"),

		AutoStartSchedule: getEnv("AUTO_START_SCHEDULE", "false") == "true",
		ScheduleTime:      getEnv("SCHEDULE_TIME", "00:00"),

		NotificationsEnabled: getEnv("NOTIFICATIONS_ENABLED", "false") == "true",
		EmailEnabled:         getEnv("EMAIL_ENABLED", "false") == "true",
		EmailHost:            getEnv("EMAIL_HOST", ""),
		EmailSecure:          getEnv("EMAIL_SECURE", "false") == "true",
		EmailUser:            getEnv("EMAIL_USER", ""),
		EmailPass:            getEnv("EMAIL_PASS", ""),
		EmailOnSuccess:       getEnv("EMAIL_ON_SUCCESS", "false") == "true",
		WebhookEnabled:       getEnv("WEBHOOK_ENABLED", "false") == "true",
		WebhookURL:           getEnv("WEBHOOK_URL", ""),
		WebhookSecret:        getEnv("WEBHOOK_SECRET", ""),

		AuthMode:      getEnv("AUTH_MODE", "none"),
		APIKey:        getEnv("API_KEY", ""),
		AuthIssuerURL: getEnv("AUTH_ISSUER_URL", ""),
	}

	emailPort, err := strconv.Atoi(getEnv("EMAIL_PORT", "587"))
	if err != nil {
		return nil, fmt.Errorf("invalid EMAIL_PORT: %w", err)
	}
	config.EmailPort = emailPort

	config.EmailFrom = getEnv("EMAIL_FROM", config.EmailUser)
	if to := getEnv("EMAIL_TO", ""); to != "" {
		for _, addr := range strings.Split(to, ",") {
			config.EmailTo = append(config.EmailTo, strings.TrimSpace(addr))
		}
	}

	// Parse WebSocket timeouts
	wsReadTimeout, err := strconv.Atoi(getEnv("WS_READ_TIMEOUT", "60"))
	if err != nil {
		return nil, fmt.Errorf("invalid WS_READ_TIMEOUT: %w", err)
	}
	config.WSReadTimeout = time.Duration(wsReadTimeout) * time.Second

	wsWriteTimeout, err := strconv.Atoi(getEnv("WS_WRITE_TIMEOUT", "10"))
	if err != nil {
		return nil, fmt.Errorf("invalid WS_WRITE_TIMEOUT: %w", err)
	}
	config.WSWriteTimeout = time.Duration(wsWriteTimeout) * time.Second

	// Calculate WebSocket constants
	config.PongWait = config.WSReadTimeout
	config.PingPeriod = (config.PongWait * 9) / 10 // Must be less than pongWait
	config.WriteWait = config.WSWriteTimeout
	config.MaxMessageSize = 512

	// Trim spaces from allowed origins
	for i, origin := range config.AllowedOrigins {
		config.AllowedOrigins[i] = strings.TrimSpace(origin)
	}

	return config, nil
}

// Validate checks that everything required for a real ETL run is present.
// Called at startup rather than in Load so tooling and tests can build
// partial configurations.
func (c *Config) Validate() error {
	if c.PBXToken == "" {
		return fmt.Errorf("PBX_TOKEN not configured")
	}
	if c.SheetsMode == "google" {
		if c.SheetChamadasID == "" {
			return fmt.Errorf("SHEET_CHAMADAS_ID not configured")
		}
		if c.SheetPausasID == "" {
			return fmt.Errorf("SHEET_PAUSAS_ID not configured")
		}
		if c.GoogleServiceAccountEmail == "" {
			return fmt.Errorf("GOOGLE_SERVICE_ACCOUNT_EMAIL not configured")
		}
		if c.GooglePrivateKey == "" {
			return fmt.Errorf("GOOGLE_PRIVATE_KEY not configured")
		}
	}
	if c.AuthMode == "key" && c.APIKey == "" {
		return fmt.Errorf("AUTH_MODE=key requires API_KEY")
	}
	if c.AuthMode == "jwt" && c.AuthIssuerURL == "" {
		return fmt.Errorf("AUTH_MODE=jwt requires AUTH_ISSUER_URL")
	}
	return nil
}

// getEnv gets an environment variable with a fallback default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
