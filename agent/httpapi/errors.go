package httpapi

import (
	"encoding/json"
	"net/http"

	contractx "github.com/tanpawarit/Chative-Digital-Twin/agent/contract"
)

type errorBody struct {
	Error contractx.TurnError `json:"error"`
}

func statusFor(code contractx.ErrorCode) int {
	switch code {
	case contractx.CodeInvalidRequest:
		return http.StatusBadRequest
	case contractx.CodeNotFound:
		return http.StatusNotFound
	case contractx.CodeRateLimited:
		return http.StatusTooManyRequests
	case contractx.CodeSchemaValidation:
		return http.StatusUnprocessableEntity
	case contractx.CodeAuthRejected, contractx.CodeUpstream, contractx.CodeUpstreamDisconnect:
		return http.StatusBadGateway
	case contractx.CodeTurnTimeout:
		return http.StatusGatewayTimeout
	case contractx.CodeCanceled:
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError answers with the error's code and public message only.
func writeError(w http.ResponseWriter, err error) {
	code := contractx.CodeOf(err)
	writeJSON(w, statusFor(code), errorBody{Error: contractx.TurnError{
		Code:    code,
		Message: contractx.PublicMessage(err),
	}})
}
