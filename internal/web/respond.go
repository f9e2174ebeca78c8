package web

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"
)

const ContentTypeJSON = "application/json; charset=utf-8"

// WriteJSON writes v with the given status code
func WriteJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", ContentTypeJSON)
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("failed to encode response")
	}
}

// WriteJSONError writes an OAuth2 style error response
func WriteJSONError(w http.ResponseWriter, errorCode, description string, statusCode int) {
	WriteJSON(w, statusCode, map[string]string{
		"error":             errorCode,
		"error_description": description,
	})
}

// WriteDetail writes the {"detail": ...} error shape used by the broker and the services
func WriteDetail(w http.ResponseWriter, statusCode int, detail string) {
	WriteJSON(w, statusCode, map[string]string{"detail": detail})
}

// BearerToken extracts the token from an "Authorization: Bearer" header
func BearerToken(r *http.Request) (string, bool) {
	scheme, token, found := strings.Cut(r.Header.Get("Authorization"), " ")
	if !found || !strings.EqualFold(scheme, "bearer") || strings.TrimSpace(token) == "" {
		return "", false
	}
	return strings.TrimSpace(token), true
}
