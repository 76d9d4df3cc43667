package gateway

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/flemzord/rolechat/internal/chat"
	"github.com/flemzord/rolechat/internal/provider"
	"github.com/flemzord/rolechat/internal/security"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// writeErr maps err to a status code and writes it.
func (g *Gateway) writeErr(w http.ResponseWriter, r *http.Request, err error) {
	status := errorStatus(err)
	if status >= http.StatusInternalServerError {
		g.logger.Warn("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	writeError(w, status, err.Error())
}

func errorStatus(err error) int {
	switch {
	case errors.Is(err, chat.ErrUnknownCharacter), errors.Is(err, chat.ErrMessageNotFound):
		return http.StatusNotFound
	case errors.Is(err, chat.ErrEmptyMessage),
		errors.Is(err, security.ErrMessageTooLarge),
		errors.Is(err, security.ErrInvalidUTF8),
		errors.Is(err, security.ErrInvalidJSON),
		errors.Is(err, security.ErrJSONTooDeep):
		return http.StatusBadRequest
	case errors.Is(err, security.ErrBodyTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, chat.ErrBusy), errors.Is(err, chat.ErrAbandoned):
		return http.StatusConflict
	case errors.Is(err, chat.ErrNothingToRegenerate), errors.Is(err, chat.ErrNotEnoughTurns):
		return http.StatusUnprocessableEntity
	case errors.Is(err, security.ErrRateLimited), errors.Is(err, provider.ErrRateLimit):
		return http.StatusTooManyRequests
	case errors.Is(err, provider.ErrUnsupported):
		return http.StatusNotImplemented
	case errors.Is(err, chat.ErrNoProvider), errors.Is(err, provider.ErrConfig), errors.Is(err, provider.ErrProviderDown):
		return http.StatusServiceUnavailable
	case errors.Is(err, provider.ErrTransport), errors.Is(err, provider.ErrSessionInit):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// decode reads a bounded JSON body into v.
func decode(r *http.Request, v any) error {
	return security.DecodeJSON(r.Body, v)
}
