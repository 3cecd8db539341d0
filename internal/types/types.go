package types

import "time"

// ReportKind selects which upstream dataset to fetch.
type ReportKind string

const (
	// ReportCalls is the per-call detail report (report_02).
	ReportCalls ReportKind = "2"
	// ReportPauses is the operator pause/activity report (report_04).
	ReportPauses ReportKind = "4"
)

// Record is one normalized spreadsheet row. Keys are the destination column
// names; values are always present (empty string when the source field was
// missing).
type Record = map[string]string

// Outcome is the immutable result of one ETL run. It is created once per run,
// appended to the execution history and dispatched to notifications; it is
// never mutated afterwards.
type Outcome struct {
	ID            string    `json:"id" dynamodbav:"ID"`
	StartTime     time.Time `json:"startTime" dynamodbav:"StartTime"`
	EndTime       time.Time `json:"endTime" dynamodbav:"EndTime"`
	Duration      int64     `json:"duration" dynamodbav:"Duration"` // milliseconds
	Success       bool      `json:"success" dynamodbav:"Success"`
	ChamadasCount int       `json:"chamadasCount" dynamodbav:"ChamadasCount"`
	PausasCount   int       `json:"pausasCount" dynamodbav:"PausasCount"`
	Errors        []string  `json:"errors" dynamodbav:"Errors"`
	Period        string    `json:"periodProcessed" dynamodbav:"Period"`
}
