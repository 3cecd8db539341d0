// Package normalize maps raw upstream report payloads into flat spreadsheet
// records.
//
// The upstream API is inconsistent about both envelope shape (bare array vs.
// object-wrapped array) and field types (numbers vs. strings, arrays vs.
// scalars), so every rule here is defensive: a missing or unusable source
// value always becomes an empty string, never a null.
package normalize

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/dennisdiepolder/pbxetl/internal/types"
)

// ErrNotTabular reports a payload that is not a record array under any
// recognized envelope. Callers treat it as zero records, not as a run
// failure.
var ErrNotTabular = errors.New("payload is not a record array")

// ErrAggregatePayload reports a report_01-style aggregate object arriving
// where per-record details were expected.
var ErrAggregatePayload = errors.New("aggregate report payload instead of record details")

// wrapperKeys are the object keys the upstream may wrap the record array
// under, probed in order.
var wrapperKeys = []string{"data_report02", "data_report04", "data", "results", "items"}

// UnwrapEnvelope strips a recognized wrapper object, returning the inner
// record array. Arrays pass through unchanged; unrecognized objects are
// returned as-is for the caller to judge.
func UnwrapEnvelope(v any) any {
	if _, ok := v.([]any); ok {
		return v
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return v
	}
	for _, key := range wrapperKeys {
		if arr, ok := obj[key].([]any); ok {
			return arr
		}
	}
	return v
}

// CallHeaders is the canonical ordered column set for call-detail records.
// One canonical set is used for every envelope shape.
var CallHeaders = []string{
	"Chamada",
	"Audio E Transcrições",
	"Operador",
	"Data",
	"Hora",
	"Data Atendimento",
	"Hora Atendimento",
	"País",
	"DDD",
	"Numero",
	"Fila",
	"Tempo Na Ura",
	"Tempo De Espera",
	"Tempo Falado",
	"Tempo Total",
	"Desconexão",
	"Telefone Entrada",
	"Caminho U R A",
	"Cpf/Cnpj",
	"Pedido",
	"Id Ligação",
	"Id Ligação De Origem",
	"I D Do Ticket",
	"Fluxo De Filas",
	"Wh_quality_reason",
	"Wh_humor_reason",
	"Questionário De Qualidade",
	"Pergunta2 1 PERGUNTA ATENDENTE",
	"Pergunta2 2 PERGUNTA SOLUCAO",
}

// PauseHeaders is the canonical ordered column set for pause/activity
// records.
var PauseHeaders = []string{
	"Operador",
	"Wz_branchNumber_id",
	"Event_id",
	"Ramal",
	"Number",
	"User_email",
	"Fila",
	"Queue_id",
	"Time",
	"Atividade",
	"Data Inicial",
	"Horário Início",
	"Data Final",
	"Horário Fim",
	"Duração",
	"Motivo Da Pausa",
	"Tempo Restante",
	"Quantidade",
}

// fieldRule maps one destination column to a resolver over the raw item.
// Rules are evaluated in the canonical column order.
type fieldRule struct {
	column  string
	resolve func(item map[string]any) string
}

// key returns a resolver that reads a single source key.
func key(name string) func(map[string]any) string {
	return func(item map[string]any) string {
		return stringOf(item[name])
	}
}

// anyKey returns a resolver taking the first non-empty value among the named
// source keys.
func anyKey(names ...string) func(map[string]any) string {
	return func(item map[string]any) string {
		for _, name := range names {
			if s := stringOf(item[name]); s != "" {
				return s
			}
		}
		return ""
	}
}

// joined returns a resolver that joins array values with "; " and passes
// scalars through.
func joined(name string) func(map[string]any) string {
	return func(item map[string]any) string {
		if arr, ok := item[name].([]any); ok {
			parts := make([]string, 0, len(arr))
			for _, v := range arr {
				parts = append(parts, stringOf(v))
			}
			return strings.Join(parts, "; ")
		}
		return stringOf(item[name])
	}
}

var callRules = []fieldRule{
	{"Chamada", callStatus},
	{"Audio E Transcrições", key("call_url_audio")},
	{"Operador", key("name")},
	{"Data", key("call_date")},
	{"Hora", key("wb_call_hour")},
	{"Data Atendimento", key("wl_attended_date")},
	{"Hora Atendimento", attendedHour},
	{"País", key("wf_states")},
	{"DDD", key("call_area_code")},
	{"Numero", key("call_number")},
	{"Fila", key("queue_name")},
	{"Tempo Na Ura", uraTime},
	{"Tempo De Espera", key("call_time_waiting")},
	{"Tempo Falado", key("call_time_spoken")},
	{"Tempo Total", key("call_time_total_duration")},
	{"Desconexão", key("call_disconnection")},
	{"Telefone Entrada", key("call_number_input")},
	{"Caminho U R A", ivrPathName},
	{"Cpf/Cnpj", key("call_document")},
	{"Pedido", key("call_order")},
	{"Id Ligação", key("call_id")},
	{"Id Ligação De Origem", key("call_id_origin")},
	{"I D Do Ticket", key("ws_ticket_id")},
	{"Fluxo De Filas", joined("wx_queue_overflow")},
	{"Wh_quality_reason", key("wh_call_quality")},
	{"Wh_humor_reason", key("wh_humor")},
	{"Questionário De Qualidade", anyKey("wh_a_quiz_name", "whquestion_")},
	{"Pergunta2 1 PERGUNTA ATENDENTE", key("wh_question_2_1_PERGUNTA_ATENDENTE")},
	{"Pergunta2 2 PERGUNTA SOLUCAO", key("wh_question_2_2_PERGUNTA_SOLUCAO")},
}

// Pause rules are a flat projection: no cross-kind fallback, a field absent
// in the source stays empty rather than borrowing a similar call field.
var pauseRules = []fieldRule{
	{"Operador", key("name")},
	{"Wz_branchNumber_id", joined("wz_branchNumber_id")},
	{"Event_id", anyKey("pause_id", "event_id")},
	{"Ramal", key("branch")},
	{"Number", key("number")},
	{"User_email", anyKey("wy_branch_email_agent", "user_email")},
	{"Fila", key("queue_name")},
	{"Queue_id", key("queue_id")},
	{"Time", key("time")},
	{"Atividade", key("event")},
	{"Data Inicial", key("date")},
	{"Horário Início", key("hour_start")},
	{"Data Final", key("date_end")},
	{"Horário Fim", key("hour_end")},
	{"Duração", key("duration")},
	{"Motivo Da Pausa", key("pause_reason")},
	{"Tempo Restante", key("difTime")},
	{"Quantidade", key("quantity")},
}

// Calls normalizes a raw report_02 payload into call records.
func Calls(raw any) ([]types.Record, error) {
	arr, err := recordArray(raw)
	if err != nil {
		return nil, err
	}
	return apply(callRules, arr), nil
}

// Pauses normalizes a raw report_04 payload into pause records.
func Pauses(raw any) ([]types.Record, error) {
	arr, err := recordArray(raw)
	if err != nil {
		return nil, err
	}
	return apply(pauseRules, arr), nil
}

func recordArray(raw any) ([]any, error) {
	v := UnwrapEnvelope(raw)
	arr, ok := v.([]any)
	if !ok {
		if obj, isObj := v.(map[string]any); isObj {
			_, hasTotal := obj["totalData"]
			_, hasAttended := obj["totalCallAttended"]
			if hasTotal || hasAttended {
				return nil, ErrAggregatePayload
			}
		}
		return nil, ErrNotTabular
	}
	return arr, nil
}

func apply(rules []fieldRule, arr []any) []types.Record {
	records := make([]types.Record, 0, len(arr))
	for _, entry := range arr {
		// Non-object entries produce an all-empty record; the validator
		// rejects those downstream.
		item, _ := entry.(map[string]any)
		rec := make(types.Record, len(rules))
		for _, rule := range rules {
			rec[rule.column] = rule.resolve(item)
		}
		records = append(records, rec)
	}
	return records
}

// callStatus derives the human status label from the raw call type. Unknown
// codes pass through unchanged so new upstream types surface instead of
// disappearing.
func callStatus(item map[string]any) string {
	raw := stringOf(item["type_call"])
	switch {
	case raw == "":
		return ""
	case raw == "call_attended":
		return "Atendida"
	case strings.Contains(raw, "abandoned"):
		return "Abandonada"
	case strings.Contains(raw, "retained"):
		return "Retida na URA"
	case raw == "call_refused":
		return "Recusada"
	default:
		return raw
	}
}

// ivrPathName scans wk_ivr_1_name..wk_ivr_10_name in order and takes the
// first non-empty value, falling back to wkivr_name.
func ivrPathName(item map[string]any) string {
	for i := 1; i <= 10; i++ {
		if s := stringOf(item[fmt.Sprintf("wk_ivr_%d_name", i)]); s != "" {
			return s
		}
	}
	return stringOf(item["wkivr_name"])
}

// uraTime prefers the explicit call_time_URA duration. way_ura is accepted
// only when it looks like a duration: the upstream sometimes puts an IVR
// option label ("Opcao - 1") there, which must be discarded, not surfaced.
func uraTime(item map[string]any) string {
	if s := stringOf(item["call_time_URA"]); s != "" {
		return s
	}
	s := stringOf(item["way_ura"])
	if s == "" {
		return ""
	}
	if strings.Contains(s, ":") || allDigits(strings.TrimSpace(s)) {
		return s
	}
	return ""
}

// attendedHour stringifies wl_attended_hour, zero-padding hour-only numeric
// values to HH:00.
func attendedHour(item map[string]any) string {
	v, ok := item["wl_attended_hour"]
	if !ok || v == nil {
		return ""
	}
	if isNumber(v) {
		s := stringOf(v)
		if s == "" {
			return ""
		}
		if len(s) == 1 {
			s = "0" + s
		}
		return s + ":00"
	}
	return stringOf(v)
}

func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func isNumber(v any) bool {
	switch v.(type) {
	case float64, float32, int, int32, int64:
		return true
	}
	return false
}

// stringOf renders any JSON scalar as its string form. Zero numbers, empty
// strings and nil all collapse to "" to mirror the upstream's "falsy means
// absent" convention.
func stringOf(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		if x == 0 {
			return ""
		}
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		if x == 0 {
			return ""
		}
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case int:
		if x == 0 {
			return ""
		}
		return strconv.Itoa(x)
	case int32:
		if x == 0 {
			return ""
		}
		return strconv.FormatInt(int64(x), 10)
	case int64:
		if x == 0 {
			return ""
		}
		return strconv.FormatInt(x, 10)
	case bool:
		if !x {
			return ""
		}
		return "true"
	default:
		return fmt.Sprintf("%v", x)
	}
}
