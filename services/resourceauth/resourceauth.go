// Package resourceauth verifies bearer tokens issued by the issuer against its published JWKS.
package resourceauth

import (
	"context"
	"fmt"
	"net/http"
	"slices"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/jrsteele09/go-token-broker/internal/errors"
	"github.com/jrsteele09/go-token-broker/internal/web"
	"github.com/jrsteele09/go-token-broker/oauth2"
	"github.com/rs/zerolog/log"
)

type claimsKey struct{}

// Claims are the access token claims the services act on
type Claims struct {
	Subject   string   `json:"sub"`
	ClientID  string   `json:"client_id"`
	Scopes    []string `json:"scopes"`
	TokenType string   `json:"token_type"`
}

func (c *Claims) HasScope(scope string) bool {
	return slices.Contains(c.Scopes, scope)
}

type Authenticator struct {
	verifier *oidc.IDTokenVerifier
}

// New fetches keys from jwksURL on demand and accepts RS256 tokens for issuer and audience
func New(ctx context.Context, issuer, jwksURL, audience string) *Authenticator {
	keySet := oidc.NewRemoteKeySet(ctx, jwksURL)
	return &Authenticator{
		verifier: oidc.NewVerifier(issuer, keySet, &oidc.Config{
			ClientID:             audience,
			SupportedSigningAlgs: []string{oidc.RS256},
		}),
	}
}

// Verify checks signature, issuer, audience and expiry, and rejects refresh tokens
func (a *Authenticator) Verify(ctx context.Context, raw string) (*Claims, error) {
	token, err := a.verifier.Verify(ctx, raw)
	if err != nil {
		var expired *oidc.TokenExpiredError
		if errors.As(err, &expired) {
			return nil, errors.ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %w", errors.ErrInvalidToken, err)
	}

	var claims Claims
	if err := token.Claims(&claims); err != nil {
		return nil, fmt.Errorf("%w: %w", errors.ErrInvalidToken, err)
	}
	if claims.TokenType != string(oauth2.AccessTokenType) {
		return nil, fmt.Errorf("%w: not an access token", errors.ErrInvalidToken)
	}
	return &claims, nil
}

// RequireScope answers 401 for a missing or invalid bearer token and 403 when the token lacks scope
func (a *Authenticator) RequireScope(scope string) web.Middleware {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			raw, ok := web.BearerToken(r)
			if !ok {
				web.WriteDetail(w, http.StatusUnauthorized, "Not authenticated")
				return
			}

			claims, err := a.Verify(r.Context(), raw)
			switch {
			case errors.Is(err, errors.ErrTokenExpired):
				web.WriteDetail(w, http.StatusUnauthorized, "Token has expired")
				return
			case err != nil:
				log.Debug().Err(err).Str("path", r.URL.Path).Msg("bearer token rejected")
				web.WriteDetail(w, http.StatusUnauthorized, "Invalid token")
				return
			}

			if !claims.HasScope(scope) {
				web.WriteDetail(w, http.StatusForbidden, fmt.Sprintf("Insufficient permissions. Required scope: %s", scope))
				return
			}
			next(w, r.WithContext(context.WithValue(r.Context(), claimsKey{}, claims)))
		}
	}
}

// ClaimsFromContext returns the claims RequireScope stored on the request
func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(claimsKey{}).(*Claims)
	return claims, ok
}
