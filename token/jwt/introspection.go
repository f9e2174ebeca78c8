package jwt

import (
	"strings"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/go-token-broker/internal/utils"
	"github.com/jrsteele09/go-token-broker/oauth2"
)

// TokenIntrospection represents the metadata information of an OAuth 2.0 token.
// The struct is designed to capture details from an introspection endpoint.
// The 'active' field indicates the state of the token - if it's false, other fields may not be populated.
type TokenIntrospection struct {
	Active    bool             `json:"active"`               // True or false - Is the token valid
	Aud       *string          `json:"aud,omitempty"`        // Audience - the API the token is intended for
	Exp       *int64           `json:"exp,omitempty"`        // Expiration
	Iat       *int64           `json:"iat,omitempty"`        // Issued at time
	Iss       *string          `json:"iss,omitempty"`        // Issuer of the token
	Scope     string           `json:"scope,omitempty"`      // Space separated granted scopes
	ClientID  string           `json:"client_id,omitempty"`  // Client the token was issued to
	TokenType oauth2.TokenType `json:"token_type,omitempty"` // access or refresh
	Sub       *string          `json:"sub,omitempty"`        // Users unique ID
}

// RevokedChecker is an interface for checking if a refresh token has been revoked
type RevokedChecker interface {
	IsRevoked(token string) bool
}

// Inspector handles JWT token introspection
type Inspector struct {
	verifier       *Verifier
	revokedChecker RevokedChecker
}

// NewInspector creates a new JWT inspector
func NewInspector(verifier *Verifier, revokedChecker RevokedChecker) *Inspector {
	return &Inspector{
		verifier:       verifier,
		revokedChecker: revokedChecker,
	}
}

// Introspect validates and extracts information from a JWT token.
// Invalid, expired and revoked tokens all report Active=false without an error.
func (i *Inspector) Introspect(rawToken string) *TokenIntrospection {
	if strings.TrimSpace(rawToken) == "" {
		return &TokenIntrospection{Active: false}
	}

	claims, err := i.verifier.Verify(rawToken, "")
	if err != nil {
		return &TokenIntrospection{Active: false}
	}

	if claims.TokenType == oauth2.RefreshTokenType && i.revokedChecker != nil && i.revokedChecker.IsRevoked(rawToken) {
		return &TokenIntrospection{Active: false}
	}

	var aud string
	if len(claims.Audience) > 0 {
		aud = claims.Audience[0]
	}

	return &TokenIntrospection{
		Active:    true,
		Aud:       &aud,
		Exp:       unixPtr(claims.ExpiresAt),
		Iat:       unixPtr(claims.IssuedAt),
		Iss:       &claims.Issuer,
		Scope:     claims.Scope,
		ClientID:  claims.ClientID,
		TokenType: claims.TokenType,
		Sub:       &claims.Subject,
	}
}

func unixPtr(d *jwtlib.NumericDate) *int64 {
	if d == nil {
		return nil
	}
	return utils.Ptr(d.Unix())
}
