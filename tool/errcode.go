package tool

import (
	"net/http"

	"github.com/c360/socketkit/errors"
)

// ErrorPayload is the error shape returned to tool callers over any gateway.
type ErrorPayload struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// ErrorCode maps a dispatch error to its stable wire code.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, errors.ErrUnknownTool):
		return "unknown_tool"
	case errors.Is(err, errors.ErrNotFound):
		return "not_found"
	case errors.Is(err, errors.ErrDuplicateID):
		return "duplicate_id"
	case errors.Is(err, errors.ErrConnectFailed):
		return "connection_failed"
	case errors.Is(err, errors.ErrSendFailed):
		return "send_failed"
	case errors.Is(err, errors.ErrInvalidEncoding):
		return "invalid_encoding"
	case errors.IsInvalid(err):
		return "invalid_argument"
	default:
		return "internal_error"
	}
}

// HTTPStatus maps a dispatch error to the HTTP status the gateway responds
// with. Tool-level failures that the caller can act on are 4xx; transport and
// upstream failures are 5xx.
func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, errors.ErrUnknownTool), errors.Is(err, errors.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, errors.ErrDuplicateID):
		return http.StatusConflict
	case errors.Is(err, errors.ErrConnectFailed), errors.Is(err, errors.ErrSendFailed):
		return http.StatusBadGateway
	case errors.IsInvalid(err):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// NewErrorPayload builds the wire error payload for a dispatch error.
func NewErrorPayload(err error) ErrorPayload {
	return ErrorPayload{
		Error:   ErrorCode(err),
		Message: err.Error(),
	}
}
