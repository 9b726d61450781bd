package httputil

import (
	"encoding/json"
	"net/http"

	apperrors "github.com/openclaw/node-relay-go/internal/errors"
)

func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// ErrorResponse is the standard error shape on the JSON API. Error carries
// the wire code so HTTP and WebSocket callers see the same vocabulary.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// WriteError maps an error to a JSON response with the right status code.
func WriteError(w http.ResponseWriter, err error) {
	appErr, ok := apperrors.AsAppError(err)
	if !ok {
		appErr = apperrors.Relay("unexpected error")
	}

	WriteJSON(w, StatusFromCode(appErr.Code), ErrorResponse{
		Error:   string(appErr.Code),
		Message: appErr.Message,
	})
}

// StatusFromCode maps a wire code to an HTTP status for the control API.
func StatusFromCode(code apperrors.Code) int {
	switch code {
	case apperrors.CodeInvalidOrExpired:
		return http.StatusBadRequest
	case apperrors.CodeRateLimited, apperrors.CodeTooManyPending:
		return http.StatusTooManyRequests
	case apperrors.CodeMessageTooLarge:
		return http.StatusRequestEntityTooLarge
	case apperrors.CodeNodeNotConnected, apperrors.CodeNodeDisconnected:
		return http.StatusBadGateway
	case apperrors.CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
