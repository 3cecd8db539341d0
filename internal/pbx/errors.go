package pbx

import "fmt"

// UpstreamError is a classified failure from the report API. Retryable
// decides once, at classification time, whether the bounded-retry loop may
// try again.
type UpstreamError struct {
	Status    int
	Message   string
	Retryable bool
}

func (e *UpstreamError) Error() string {
	return e.Message
}

// classifyStatus maps an HTTP status to an UpstreamError, or nil for
// success. Messages follow the upstream operator runbook wording.
func classifyStatus(status int) *UpstreamError {
	switch {
	case status >= 200 && status < 400:
		return nil
	case status == 400:
		return &UpstreamError{Status: status, Retryable: false,
			Message: "Erro 400: Parâmetro obrigatório faltando ou incorreto. Verifique os parâmetros da requisição."}
	case status == 401:
		return &UpstreamError{Status: status, Retryable: false,
			Message: "Erro 401: Falta de autorização. Verifique se o token está correto."}
	case status == 404:
		return &UpstreamError{Status: status, Retryable: false,
			Message: "Erro 404: Endpoint não encontrado. Verifique a URL da requisição."}
	case status == 429:
		return &UpstreamError{Status: status, Retryable: true,
			Message: "Erro 429: Limite de requisições excedido. Tente novamente mais tarde."}
	case status >= 500:
		return &UpstreamError{Status: status, Retryable: true,
			Message: fmt.Sprintf("Erro %d: Erro interno do 55PBX. Tente novamente mais tarde.", status)}
	default:
		return &UpstreamError{Status: status, Retryable: false,
			Message: fmt.Sprintf("Erro %d: Falha na requisição ao 55PBX.", status)}
	}
}
