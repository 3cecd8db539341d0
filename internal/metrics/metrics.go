package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"
)

// Metrics holds all application metrics
type Metrics struct {
	mu sync.RWMutex

	// ETL run metrics
	RunsTotal       int64
	RunsSucceeded   int64
	RunsFailed      int64
	lastRunDuration time.Duration

	// Upstream fetch metrics
	FetchAttemptsTotal int64
	FetchRetriesTotal  int64

	// Record metrics
	recordsAppended        map[string]int64 // report kind -> rows
	ValidationRejectsTotal int64

	// HTTP metrics
	httpRequestsTotal map[string]map[int]int64 // endpoint -> status -> count

	// Timing
	startTime time.Time
}

// Global metrics instance
var instance *Metrics
var once sync.Once

// Get returns the singleton metrics instance
func Get() *Metrics {
	once.Do(func() {
		instance = &Metrics{
			recordsAppended:   make(map[string]int64),
			httpRequestsTotal: make(map[string]map[int]int64),
			startTime:         time.Now(),
		}
	})
	return instance
}

// RecordRun records one completed ETL run
func (m *Metrics) RecordRun(success bool, duration time.Duration) {
	m.mu.Lock()
	m.RunsTotal++
	if success {
		m.RunsSucceeded++
	} else {
		m.RunsFailed++
	}
	m.lastRunDuration = duration
	m.mu.Unlock()
}

// RecordFetchAttempt increments the upstream request counter
func (m *Metrics) RecordFetchAttempt() {
	m.mu.Lock()
	m.FetchAttemptsTotal++
	m.mu.Unlock()
}

// RecordFetchRetry increments the retry counter
func (m *Metrics) RecordFetchRetry() {
	m.mu.Lock()
	m.FetchRetriesTotal++
	m.mu.Unlock()
}

// RecordRowsAppended adds appended row counts for a report kind
func (m *Metrics) RecordRowsAppended(kind string, n int) {
	m.mu.Lock()
	m.recordsAppended[kind] += int64(n)
	m.mu.Unlock()
}

// RecordValidationRejects adds discarded record counts
func (m *Metrics) RecordValidationRejects(n int) {
	m.mu.Lock()
	m.ValidationRejectsTotal += int64(n)
	m.mu.Unlock()
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(endpoint string, statusCode int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.httpRequestsTotal[endpoint] == nil {
		m.httpRequestsTotal[endpoint] = make(map[int]int64)
	}
	m.httpRequestsTotal[endpoint][statusCode]++
}

// Handler returns an HTTP handler for the /metrics endpoint
func (m *Metrics) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m.mu.RLock()
		defer m.mu.RUnlock()

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")

		// Helper to write metric
		write := func(name string, value interface{}, labels ...string) {
			labelStr := ""
			if len(labels) > 0 {
				labelStr = "{"
				for i := 0; i < len(labels); i += 2 {
					if i > 0 {
						labelStr += ","
					}
					labelStr += labels[i] + "=\"" + labels[i+1] + "\""
				}
				labelStr += "}"
			}

			switch v := value.(type) {
			case int:
				w.Write([]byte(name + labelStr + " " + strconv.Itoa(v) + "\n"))
			case int64:
				w.Write([]byte(name + labelStr + " " + strconv.FormatInt(v, 10) + "\n"))
			case float64:
				w.Write([]byte(name + labelStr + " " + strconv.FormatFloat(v, 'f', 6, 64) + "\n"))
			}
		}

		// System metrics
		write("pbxetl_uptime_seconds", time.Since(m.startTime).Seconds())

		// Run metrics
		write("pbxetl_runs_total", m.RunsTotal)
		write("pbxetl_runs_succeeded_total", m.RunsSucceeded)
		write("pbxetl_runs_failed_total", m.RunsFailed)
		write("pbxetl_last_run_duration_seconds", m.lastRunDuration.Seconds())

		// Upstream metrics
		write("pbxetl_fetch_attempts_total", m.FetchAttemptsTotal)
		write("pbxetl_fetch_retries_total", m.FetchRetriesTotal)

		// Record metrics
		for kind, count := range m.recordsAppended {
			write("pbxetl_rows_appended_total", count, "report", kind)
		}
		write("pbxetl_validation_rejects_total", m.ValidationRejectsTotal)

		// HTTP metrics
		for endpoint, statusCodes := range m.httpRequestsTotal {
			for status, count := range statusCodes {
				write("pbxetl_http_requests_total", count, "endpoint", endpoint, "status", strconv.Itoa(status))
			}
		}
	}
}
