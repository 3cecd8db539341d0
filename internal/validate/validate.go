// Package validate filters normalized records before they reach a sink.
//
// A record is kept when at least one of its identifying columns carries a
// value; fully anonymous rows are rejected with a reason instead of being
// silently dropped. Oversized cell values are truncated so a single runaway
// field cannot blow up the sheet row.
package validate

import (
	"github.com/dennisdiepolder/pbxetl/internal/types"
)

// maxCellLen bounds a single cell value. Anything longer is cut and marked.
const maxCellLen = 50000

const truncationMark = "... [TRUNCADO]"

// callIdentifiers are the columns at least one of which must be non-empty
// for a call record to count as real data.
var callIdentifiers = []string{"Chamada", "Operador", "Data", "Numero"}

// pauseIdentifiers is the pause-record equivalent.
var pauseIdentifiers = []string{"Operador", "Ramal", "Event_id", "Data Inicial"}

// Rejection describes one discarded record.
type Rejection struct {
	Index  int    `json:"index"`
	Reason string `json:"reason"`
}

// Result carries the filtered records plus what was discarded.
type Result struct {
	Valid     []types.Record
	Invalid   []Rejection
	Truncated int
}

// Calls validates call-detail records.
func Calls(records []types.Record) Result {
	return run(records, callIdentifiers)
}

// Pauses validates pause/activity records.
func Pauses(records []types.Record) Result {
	return run(records, pauseIdentifiers)
}

func run(records []types.Record, identifiers []string) Result {
	res := Result{Valid: make([]types.Record, 0, len(records))}

	for i, rec := range records {
		if !identified(rec, identifiers) {
			res.Invalid = append(res.Invalid, Rejection{
				Index:  i,
				Reason: "Item sem identificador válido",
			})
			continue
		}
		res.Truncated += truncateCells(rec)
		res.Valid = append(res.Valid, rec)
	}
	return res
}

func identified(rec types.Record, identifiers []string) bool {
	for _, col := range identifiers {
		if rec[col] != "" {
			return true
		}
	}
	return false
}

// truncateCells caps oversized values in place and returns how many cells
// were cut. The first 50000 characters are kept and the marker appended.
func truncateCells(rec types.Record) int {
	n := 0
	for col, v := range rec {
		if len(v) > maxCellLen {
			rec[col] = v[:maxCellLen] + truncationMark
			n++
		}
	}
	return n
}
