package normalize

import (
	"encoding/json"
	"errors"
	"testing"
)

func decode(t *testing.T, s string) any {
	t.Helper()
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		t.Fatalf("bad test payload: %v", err)
	}
	return v
}

const callItem = `{
	"type_call": "call_attended",
	"name": "Maria",
	"call_date": "2025-12-04",
	"wb_call_hour": "09:12:33",
	"call_number": "11987654321",
	"queue_name": "Suporte",
	"call_time_URA": "00:00:42",
	"call_id": "abc-123"
}`

func TestCallsEnvelopeTransparency(t *testing.T) {
	payloads := []string{
		`[` + callItem + `]`,
		`{"data_report02": [` + callItem + `]}`,
		`{"data": [` + callItem + `]}`,
		`{"results": [` + callItem + `]}`,
		`{"items": [` + callItem + `]}`,
	}

	var first map[string]string
	for i, p := range payloads {
		records, err := Calls(decode(t, p))
		if err != nil {
			t.Fatalf("payload %d: unexpected error: %v", i, err)
		}
		if len(records) != 1 {
			t.Fatalf("payload %d: expected 1 record, got %d", i, len(records))
		}
		if first == nil {
			first = records[0]
			continue
		}
		for k, v := range first {
			if records[0][k] != v {
				t.Errorf("payload %d: field %q = %q, want %q", i, k, records[0][k], v)
			}
		}
	}
}

func TestCallsFieldCompleteness(t *testing.T) {
	records, err := Calls(decode(t, `[{"name": "Maria"}]`))
	if err != nil {
		t.Fatal(err)
	}
	rec := records[0]
	if len(rec) != len(CallHeaders) {
		t.Fatalf("expected %d fields, got %d", len(CallHeaders), len(rec))
	}
	for _, h := range CallHeaders {
		v, ok := rec[h]
		if !ok {
			t.Errorf("missing column %q", h)
		}
		if h != "Operador" && v != "" {
			t.Errorf("column %q should default to empty, got %q", h, v)
		}
	}
}

func TestCallStatusMapping(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"call_attended", "Atendida"},
		{"call_abandoned", "Abandonada"},
		{"queue_abandoned_overflow", "Abandonada"},
		{"call_retained_ura", "Retida na URA"},
		{"ivr_retained_night", "Retida na URA"},
		{"call_refused", "Recusada"},
		{"call_future_new_type", "call_future_new_type"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got := callStatus(map[string]any{"type_call": tt.raw})
			if got != tt.want {
				t.Errorf("callStatus(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

func TestUraTimeRejectsOptionLabels(t *testing.T) {
	tests := []struct {
		name string
		item map[string]any
		want string
	}{
		{"explicit duration wins", map[string]any{"call_time_URA": "00:01:10", "way_ura": "Opcao - 1"}, "00:01:10"},
		{"way_ura with colon accepted", map[string]any{"way_ura": "00:00:31"}, "00:00:31"},
		{"way_ura all digits accepted", map[string]any{"way_ura": "42"}, "42"},
		{"option label discarded", map[string]any{"way_ura": "Opcao - 1"}, ""},
		{"option label variant discarded", map[string]any{"way_ura": "Opcao - 2"}, ""},
		{"nothing present", map[string]any{}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := uraTime(tt.item); got != tt.want {
				t.Errorf("uraTime() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestIvrPathName(t *testing.T) {
	item := map[string]any{
		"wk_ivr_1_name": "",
		"wk_ivr_3_name": "Menu Principal",
		"wk_ivr_7_name": "Later Step",
		"wkivr_name":    "Fallback",
	}
	if got := ivrPathName(item); got != "Menu Principal" {
		t.Errorf("expected first non-empty step, got %q", got)
	}
	if got := ivrPathName(map[string]any{"wkivr_name": "Fallback"}); got != "Fallback" {
		t.Errorf("expected fallback key, got %q", got)
	}
	if got := ivrPathName(map[string]any{}); got != "" {
		t.Errorf("expected empty, got %q", got)
	}
}

func TestAttendedHourPadding(t *testing.T) {
	records, err := Calls(decode(t, `[{"wl_attended_hour": 9}]`))
	if err != nil {
		t.Fatal(err)
	}
	if got := records[0]["Hora Atendimento"]; got != "09:00" {
		t.Errorf("expected 09:00, got %q", got)
	}

	records, err = Calls(decode(t, `[{"wl_attended_hour": "14:35"}]`))
	if err != nil {
		t.Fatal(err)
	}
	if got := records[0]["Hora Atendimento"]; got != "14:35" {
		t.Errorf("expected 14:35, got %q", got)
	}
}

func TestQueueOverflowJoin(t *testing.T) {
	records, err := Calls(decode(t, `[{"wx_queue_overflow": ["Fila A", "Fila B"]}]`))
	if err != nil {
		t.Fatal(err)
	}
	if got := records[0]["Fluxo De Filas"]; got != "Fila A; Fila B" {
		t.Errorf("expected joined list, got %q", got)
	}

	records, err = Calls(decode(t, `[{"wx_queue_overflow": "Fila C"}]`))
	if err != nil {
		t.Fatal(err)
	}
	if got := records[0]["Fluxo De Filas"]; got != "Fila C" {
		t.Errorf("expected scalar passthrough, got %q", got)
	}
}

func TestCallsAggregatePayload(t *testing.T) {
	_, err := Calls(decode(t, `{"totalData": 10, "totalCallAttended": 8}`))
	if !errors.Is(err, ErrAggregatePayload) {
		t.Errorf("expected ErrAggregatePayload, got %v", err)
	}
}

func TestCallsNotTabular(t *testing.T) {
	_, err := Calls(decode(t, `{"unexpected": {"shape": true}}`))
	if !errors.Is(err, ErrNotTabular) {
		t.Errorf("expected ErrNotTabular, got %v", err)
	}
}

func TestPausesProjection(t *testing.T) {
	payload := `{"data_report04": [{
		"name": "João",
		"branch": "2001",
		"pause_id": "ev-9",
		"queue_name": "Vendas",
		"event": "pause",
		"date": "2025-12-04",
		"hour_start": "10:00:00",
		"date_end": "2025-12-04",
		"hour_end": "10:15:00",
		"duration": "00:15:00",
		"pause_reason": "Almoço",
		"difTime": "00:45:00",
		"quantity": 2,
		"wz_branchNumber_id": ["55", "56"]
	}]}`

	records, err := Pauses(decode(t, payload))
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	rec := records[0]

	if len(rec) != len(PauseHeaders) {
		t.Fatalf("expected %d fields, got %d", len(PauseHeaders), len(rec))
	}
	if rec["Operador"] != "João" {
		t.Errorf("Operador = %q", rec["Operador"])
	}
	if rec["Ramal"] != "2001" {
		t.Errorf("Ramal = %q", rec["Ramal"])
	}
	if rec["Event_id"] != "ev-9" {
		t.Errorf("Event_id = %q", rec["Event_id"])
	}
	if rec["Motivo Da Pausa"] != "Almoço" {
		t.Errorf("Motivo Da Pausa = %q", rec["Motivo Da Pausa"])
	}
	if rec["Quantidade"] != "2" {
		t.Errorf("Quantidade = %q", rec["Quantidade"])
	}
	if rec["Wz_branchNumber_id"] != "55; 56" {
		t.Errorf("Wz_branchNumber_id = %q", rec["Wz_branchNumber_id"])
	}

	// Pause records must never contain call columns.
	for _, h := range []string{"Chamada", "Tempo Na Ura", "Caminho U R A"} {
		if _, ok := rec[h]; ok {
			t.Errorf("pause record leaked call column %q", h)
		}
	}
}

func TestPausesNoCrossKindFallback(t *testing.T) {
	// branch_number and wx_queue_id look similar to Ramal/Queue_id source
	// fields but must not be borrowed.
	payload := `[{"name": "João", "branch_number": "9999", "wx_queue_id": "q-1"}]`
	records, err := Pauses(decode(t, payload))
	if err != nil {
		t.Fatal(err)
	}
	if got := records[0]["Ramal"]; got != "" {
		t.Errorf("Ramal borrowed from branch_number: %q", got)
	}
	if got := records[0]["Queue_id"]; got != "" {
		t.Errorf("Queue_id borrowed from wx_queue_id: %q", got)
	}
}

func TestPausesEmptyArray(t *testing.T) {
	records, err := Pauses(decode(t, `[]`))
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 0 {
		t.Errorf("expected no records, got %d", len(records))
	}
}

func TestNonObjectEntriesBecomeEmptyRecords(t *testing.T) {
	records, err := Calls(decode(t, `["garbage", 42]`))
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	for _, rec := range records {
		for k, v := range rec {
			if v != "" {
				t.Errorf("field %q should be empty for non-object entry, got %q", k, v)
			}
		}
	}
}
