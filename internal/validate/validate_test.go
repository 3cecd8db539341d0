package validate

import (
	"strings"
	"testing"

	"github.com/dennisdiepolder/pbxetl/internal/types"
)

func TestCallsKeepsIdentifiedRecords(t *testing.T) {
	records := []types.Record{
		{"Chamada": "Atendida", "Operador": "", "Data": "", "Numero": ""},
		{"Chamada": "", "Operador": "Maria", "Data": "", "Numero": ""},
		{"Chamada": "", "Operador": "", "Data": "2025-12-04", "Numero": ""},
		{"Chamada": "", "Operador": "", "Data": "", "Numero": "11987654321"},
	}

	res := Calls(records)
	if len(res.Valid) != 4 {
		t.Errorf("expected 4 valid records, got %d", len(res.Valid))
	}
	if len(res.Invalid) != 0 {
		t.Errorf("expected no rejections, got %d", len(res.Invalid))
	}
}

func TestCallsRejectsAnonymousRecords(t *testing.T) {
	records := []types.Record{
		{"Chamada": "Atendida"},
		{"Chamada": "", "Operador": "", "Data": "", "Numero": "", "Fila": "Suporte"},
		{"Numero": "11911112222"},
	}

	res := Calls(records)
	if len(res.Valid) != 2 {
		t.Fatalf("expected 2 valid records, got %d", len(res.Valid))
	}
	if len(res.Invalid) != 1 {
		t.Fatalf("expected 1 rejection, got %d", len(res.Invalid))
	}
	if res.Invalid[0].Index != 1 {
		t.Errorf("rejection index = %d, want 1", res.Invalid[0].Index)
	}
	if res.Invalid[0].Reason != "Item sem identificador válido" {
		t.Errorf("unexpected reason: %q", res.Invalid[0].Reason)
	}
}

func TestPausesIdentifierSet(t *testing.T) {
	tests := []struct {
		name  string
		rec   types.Record
		valid bool
	}{
		{"operador", types.Record{"Operador": "João"}, true},
		{"ramal", types.Record{"Ramal": "2001"}, true},
		{"event id", types.Record{"Event_id": "ev-9"}, true},
		{"data inicial", types.Record{"Data Inicial": "2025-12-04"}, true},
		{"call identifier does not count", types.Record{"Chamada": "Atendida", "Numero": "119"}, false},
		{"empty", types.Record{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Pauses([]types.Record{tt.rec})
			if got := len(res.Valid) == 1; got != tt.valid {
				t.Errorf("valid = %v, want %v", got, tt.valid)
			}
		})
	}
}

func TestTruncatesOversizedCells(t *testing.T) {
	long := strings.Repeat("x", maxCellLen+500)
	records := []types.Record{
		{"Operador": "Maria", "Caminho U R A": long},
	}

	res := Calls(records)
	if len(res.Valid) != 1 {
		t.Fatalf("expected record to survive truncation")
	}
	if res.Truncated != 1 {
		t.Errorf("Truncated = %d, want 1", res.Truncated)
	}

	got := res.Valid[0]["Caminho U R A"]
	if !strings.HasSuffix(got, truncationMark) {
		t.Errorf("expected truncation marker suffix")
	}
	if len(got) != maxCellLen+len(truncationMark) {
		t.Errorf("truncated length = %d, want %d", len(got), maxCellLen+len(truncationMark))
	}
}

func TestExactLimitNotTruncated(t *testing.T) {
	exact := strings.Repeat("x", maxCellLen)
	res := Calls([]types.Record{{"Operador": "Maria", "Pedido": exact}})
	if res.Truncated != 0 {
		t.Errorf("value at the limit must not be truncated")
	}
	if got := res.Valid[0]["Pedido"]; got != exact {
		t.Errorf("value changed unexpectedly")
	}
}

func TestEmptyInput(t *testing.T) {
	res := Pauses(nil)
	if len(res.Valid) != 0 || len(res.Invalid) != 0 {
		t.Errorf("expected empty result, got %+v", res)
	}
}
