package server

import (
	"encoding/json"
	"net/http"

	"github.com/jrsteele09/go-token-broker/internal/errors"
	"github.com/jrsteele09/go-token-broker/internal/web"
	"github.com/jrsteele09/go-token-broker/oauth2"
	"github.com/rs/zerolog/log"
)

// WellKnownOpenIDConfig serves the OIDC discovery document
func (s *Server) WellKnownOpenIDConfig() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		baseURL := s.config.GetIssuer()

		resp := map[string]any{
			"issuer":                 baseURL,
			"authorization_endpoint": baseURL + RouteAuthorize,
			"token_endpoint":         baseURL + RouteToken,
			"userinfo_endpoint":      baseURL + RouteUserInfo,
			"jwks_uri":               baseURL + RouteWellKnownJWKS,
			"revocation_endpoint":    baseURL + RouteOAuth2Revoke,
			"introspection_endpoint": baseURL + RouteOAuth2Introspect,

			"response_types_supported":              []string{string(oauth2.CodeResponseType)},
			"subject_types_supported":               []string{"public"},
			"id_token_signing_alg_values_supported": []string{"RS256"},
			"scopes_supported":                      []string{"assets:read", "risk:analyze", "investments:write"},
			"token_endpoint_auth_methods_supported": []string{"client_secret_post", "none"},
			"grant_types_supported": []string{
				string(oauth2.AuthorizationCodeGrant),
				string(oauth2.RefreshTokenCodeGrant),
			},
			"claims_supported": []string{"sub", "iss", "aud", "exp", "iat", "jti", "scope", "client_id", "token_type"},
		}

		w.Header().Set("Cache-Control", "public, max-age=3600") // Cache for 1 hour
		web.WriteJSON(w, http.StatusOK, resp)
	}
}

// JWKS returns the JSON Web Key Set used to validate tokens
func (s *Server) JWKS() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		set, err := s.auth.JWKS()
		if err != nil {
			web.WriteJSONError(w, oauth2.ErrorCodeServerError, "failed to build JWKS", http.StatusInternalServerError)
			return
		}
		body, err := json.Marshal(set)
		if err != nil {
			web.WriteJSONError(w, oauth2.ErrorCodeServerError, "failed to encode JWKS", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", web.ContentTypeJSON)
		w.Header().Set("Cache-Control", "public, max-age=300")
		_, _ = w.Write(body)
	}
}

// Authorize checks credentials passed in the query and returns a code directly
func (s *Server) Authorize() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		resp, err := s.auth.Authorize(&oauth2.AuthorizationRequest{
			Username:     q.Get("username"),
			Password:     q.Get("password"),
			ClientID:     q.Get("client_id"),
			ResponseType: oauth2.ResponseType(q.Get("response_type")),
			State:        q.Get("state"),
		})
		if err != nil {
			switch {
			case errors.Is(err, errors.ErrInvalidClient):
				web.WriteJSONError(w, oauth2.ErrorCodeInvalidClient, "unknown client", http.StatusBadRequest)
			case errors.Is(err, errors.ErrUnsupportedResponseType):
				web.WriteJSONError(w, oauth2.ErrorCodeUnsupportedResponseType, "only response_type=code is supported", http.StatusBadRequest)
			case errors.Is(err, errors.ErrInvalidCredentials):
				web.WriteJSONError(w, oauth2.ErrorCodeAccessDenied, "invalid username or password", http.StatusUnauthorized)
			default:
				log.Error().Err(err).Msg("authorize failed")
				web.WriteJSONError(w, oauth2.ErrorCodeServerError, "authorization failed", http.StatusInternalServerError)
			}
			return
		}
		web.WriteJSON(w, http.StatusOK, resp)
	}
}

// Token exchanges a code or refresh token for a new token pair
func (s *Server) Token() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			web.WriteJSONError(w, oauth2.ErrorCodeInvalidRequest, "Failed to parse form data", http.StatusBadRequest)
			return
		}

		tokenReq := &oauth2.TokenRequest{
			GrantType:    oauth2.GrantType(r.FormValue("grant_type")),
			ClientID:     r.FormValue("client_id"),
			ClientSecret: r.FormValue("client_secret"),
			Code:         r.FormValue("code"),
			RefreshToken: r.FormValue("refresh_token"),
		}

		tokenResponse, err := s.auth.Token(r.Context(), tokenReq)
		if err != nil {
			writeTokenError(w, err)
			return
		}
		web.WriteJSON(w, http.StatusOK, tokenResponse)
	}
}

func writeTokenError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errors.ErrInvalidClient):
		web.WriteJSONError(w, oauth2.ErrorCodeInvalidClient, "client authentication failed", http.StatusBadRequest)
	case errors.Is(err, errors.ErrUnsupportedGrantType):
		web.WriteJSONError(w, oauth2.ErrorCodeUnsupportedGrantType, err.Error(), http.StatusBadRequest)
	case errors.Is(err, errors.ErrInvalidRequest):
		web.WriteJSONError(w, oauth2.ErrorCodeInvalidRequest, err.Error(), http.StatusBadRequest)
	case errors.Is(err, errors.ErrTokenReuseDetected):
		web.WriteJSONError(w, oauth2.ErrorCodeInvalidGrant, oauth2.DescriptionTokenReuseDetected, http.StatusBadRequest)
	case errors.Is(err, errors.ErrTokenExpired):
		web.WriteJSONError(w, oauth2.ErrorCodeInvalidGrant, oauth2.DescriptionTokenExpired, http.StatusBadRequest)
	case errors.Is(err, errors.ErrInvalidGrant):
		web.WriteJSONError(w, oauth2.ErrorCodeInvalidGrant, err.Error(), http.StatusBadRequest)
	default:
		log.Error().Err(err).Msg("token request failed")
		web.WriteJSONError(w, oauth2.ErrorCodeServerError, "token request failed", http.StatusInternalServerError)
	}
}

// Introspect reports whether a token is active, following RFC 7662
func (s *Server) Introspect() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			web.WriteJSONError(w, oauth2.ErrorCodeInvalidRequest, "Failed to parse form data", http.StatusBadRequest)
			return
		}
		token := r.FormValue("token")
		if token == "" {
			web.WriteJSONError(w, oauth2.ErrorCodeInvalidRequest, "token parameter is required", http.StatusBadRequest)
			return
		}
		web.WriteJSON(w, http.StatusOK, s.auth.Introspect(token))
	}
}

// Revoke revokes a refresh token and the rest of its chain
func (s *Server) Revoke() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			web.WriteJSONError(w, oauth2.ErrorCodeInvalidRequest, "Failed to parse form data", http.StatusBadRequest)
			return
		}

		token := r.FormValue("token")
		if token == "" {
			web.WriteJSONError(w, oauth2.ErrorCodeInvalidRequest, "token parameter is required", http.StatusBadRequest)
			return
		}

		n, err := s.auth.RevokeChain(r.Context(), token, r.FormValue("client_id"))
		switch {
		case err == nil:
			log.Info().Int("revoked", n).Msg("refresh chain revoked")
		case errors.Is(err, errors.ErrNotFound):
			// unknown tokens are not an error for the caller
		case errors.Is(err, errors.ErrInvalidClient):
			web.WriteJSONError(w, oauth2.ErrorCodeInvalidClient, "token was not issued to this client", http.StatusUnauthorized)
			return
		default:
			log.Error().Err(err).Msg("revoke failed")
			web.WriteJSONError(w, oauth2.ErrorCodeServerError, "revocation failed", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// UserInfo returns information about the user
func (s *Server) UserInfo() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		accessToken, ok := web.BearerToken(r)
		if !ok {
			web.WriteJSONError(w, oauth2.ErrorCodeInvalidToken, "Missing or malformed Authorization header", http.StatusUnauthorized)
			return
		}

		userInfo, err := s.auth.UserInfo(r.Context(), accessToken)
		if err != nil {
			web.WriteJSONError(w, oauth2.ErrorCodeInvalidToken, err.Error(), http.StatusUnauthorized)
			return
		}
		web.WriteJSON(w, http.StatusOK, userInfo)
	}
}

func (s *Server) Health() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		web.WriteJSON(w, http.StatusOK, map[string]string{
			"status":  "healthy",
			"service": "oidc-server",
		})
	}
}
