package api

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/jrsteele09/go-token-broker/broker/sessions"
	"github.com/jrsteele09/go-token-broker/internal/errors"
	"github.com/jrsteele09/go-token-broker/internal/logging"
	"github.com/jrsteele09/go-token-broker/internal/web"
	"github.com/rs/zerolog/log"
)

// CreateSessionRequest hands a token pair to the broker. Expiries are in seconds.
type CreateSessionRequest struct {
	AccessToken      string   `json:"access_token"`
	RefreshToken     string   `json:"refresh_token"`
	ExpiresIn        *int     `json:"expires_in,omitempty"`
	RefreshExpiresIn *int     `json:"refresh_expires_in,omitempty"`
	Scopes           []string `json:"scopes"`
	UserID           string   `json:"user_id"`
}

type CreateSessionResponse struct {
	SessionID string   `json:"session_id"`
	UserID    string   `json:"user_id"`
	Scopes    []string `json:"scopes"`
	Message   string   `json:"message"`
}

type ToolResponse struct {
	Tool    string `json:"tool"`
	Content string `json:"content"`
}

type HealthResponse struct {
	Status           string `json:"status"`
	Service          string `json:"service"`
	HasActiveSession bool   `json:"has_active_session"`
	Sessions         int    `json:"sessions"`
}

// CreateSession stores the caller's token pair. The tokens are never returned by any route.
func (s *Server) CreateSession() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateSessionRequest
		if err := json.NewDecoder(io.LimitReader(r.Body, maxRequestBodyBytes)).Decode(&req); err != nil {
			web.WriteDetail(w, http.StatusBadRequest, "Invalid JSON body")
			return
		}
		if req.AccessToken == "" || req.RefreshToken == "" || strings.TrimSpace(req.UserID) == "" {
			web.WriteDetail(w, http.StatusBadRequest, "access_token, refresh_token and user_id are required")
			return
		}

		accessTTL, ok := seconds(req.ExpiresIn, s.config.GetDefaultAccessTTL())
		if !ok {
			web.WriteDetail(w, http.StatusBadRequest, "expires_in must be between 0 and " + strconv.Itoa(maxExpirySeconds))
			return
		}
		refreshTTL, ok := seconds(req.RefreshExpiresIn, s.config.GetDefaultRefreshTTL())
		if !ok {
			web.WriteDetail(w, http.StatusBadRequest, "refresh_expires_in must be between 0 and " + strconv.Itoa(maxExpirySeconds))
			return
		}

		id, err := s.store.Create(sessions.NewSession{
			UserID:       strings.TrimSpace(req.UserID),
			Scopes:       req.Scopes,
			AccessToken:  req.AccessToken,
			AccessTTL:    accessTTL,
			RefreshToken: req.RefreshToken,
			RefreshTTL:   refreshTTL,
		})
		if err != nil {
			log.Error().Err(err).Msg("failed to create session")
			web.WriteDetail(w, http.StatusInternalServerError, "Failed to create session")
			return
		}

		session, err := s.store.Get(id)
		if err != nil {
			web.WriteDetail(w, http.StatusInternalServerError, "Failed to create session")
			return
		}
		log.Info().Str("session_id", logging.ShortID(id)).Str("user_id", session.UserID).Strs("scopes", session.Scopes).Msg("session created")

		web.WriteJSON(w, http.StatusCreated, CreateSessionResponse{
			SessionID: id,
			UserID:    session.UserID,
			Scopes:    session.Scopes,
			Message:   "Session created. Tokens will be refreshed in the background.",
		})
	}
}

func (s *Server) GetSession() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session, err := s.store.Get(r.PathValue("id"))
		if err != nil {
			web.WriteDetail(w, http.StatusNotFound, "Session not found")
			return
		}
		web.WriteJSON(w, http.StatusOK, session.Info(s.store.Now()))
	}
}

func (s *Server) DeleteSession() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		if !s.store.Delete(id) {
			web.WriteDetail(w, http.StatusNotFound, "Session not found")
			return
		}
		log.Info().Str("session_id", logging.ShortID(id)).Msg("session deleted")
		web.WriteJSON(w, http.StatusOK, map[string]string{"message": "Session deleted"})
	}
}

func (s *Server) ActivateSession() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		if err := s.store.SetActive(id); err != nil {
			web.WriteDetail(w, http.StatusNotFound, "Session not found")
			return
		}
		session, err := s.store.Get(id)
		if err != nil {
			web.WriteDetail(w, http.StatusNotFound, "Session not found")
			return
		}
		log.Info().Str("session_id", logging.ShortID(id)).Str("user_id", session.UserID).Msg("session activated")
		web.WriteJSON(w, http.StatusOK, session.Info(s.store.Now()))
	}
}

func (s *Server) ActiveSessionInfo() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session, err := s.store.Active()
		if err != nil {
			web.WriteDetail(w, http.StatusNotFound, "No active session")
			return
		}
		web.WriteJSON(w, http.StatusOK, session.Info(s.store.Now()))
	}
}

func (s *Server) ListTools() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		web.WriteJSON(w, http.StatusOK, s.tools.Definitions())
	}
}

// CallTool runs a tool for the session named by X-Session-ID, or the active session
func (s *Server) CallTool() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := r.PathValue("name")
		sessionID := strings.TrimSpace(r.Header.Get(HeaderSessionID))
		if sessionID == "" {
			active, err := s.store.Active()
			if err != nil {
				web.WriteDetail(w, http.StatusUnauthorized, "No session. Send "+HeaderSessionID+" or activate a session first.")
				return
			}
			sessionID = active.ID
		}

		input, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBodyBytes))
		if err != nil {
			web.WriteDetail(w, http.StatusBadRequest, "Failed to read request body")
			return
		}

		text, err := s.tools.Call(r.Context(), name, sessionID, input)
		switch {
		case err == nil:
			web.WriteJSON(w, http.StatusOK, ToolResponse{Tool: name, Content: text})
		case errors.Is(err, errors.ErrNotFound):
			web.WriteDetail(w, http.StatusNotFound, "Unknown tool "+name)
		case errors.Is(err, errors.ErrInvalidRequest):
			web.WriteDetail(w, http.StatusUnprocessableEntity, err.Error())
		default:
			log.Error().Err(err).Str("tool", name).Msg("tool call failed")
			web.WriteDetail(w, http.StatusInternalServerError, "Tool call failed")
		}
	}
}

func (s *Server) Health() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, err := s.store.Active()
		web.WriteJSON(w, http.StatusOK, HealthResponse{
			Status:           "ok",
			Service:          serviceName,
			HasActiveSession: err == nil,
			Sessions:         s.store.Len(),
		})
	}
}

// maxExpirySeconds is one year
const maxExpirySeconds = 365 * 24 * 60 * 60

// seconds converts an optional seconds count, falling back to def when absent
func seconds(v *int, def time.Duration) (time.Duration, bool) {
	if v == nil {
		return def, true
	}
	if *v < 0 || *v > maxExpirySeconds {
		return 0, false
	}
	return time.Duration(*v) * time.Second, true
}
