package jwt

import (
	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/go-token-broker/oauth2"
)

// Claims is the claim set carried by both access and refresh tokens.
// TokenType tells them apart so a refresh token can never be presented as an access token.
type Claims struct {
	jwtlib.RegisteredClaims
	Scope     string           `json:"scope,omitempty"`
	Scopes    []string         `json:"scopes,omitempty"`
	ClientID  string           `json:"client_id,omitempty"`
	TokenType oauth2.TokenType `json:"token_type,omitempty"`
}

// HasAudience reports whether aud is one of the token's audiences
func (c *Claims) HasAudience(aud string) bool {
	for _, a := range c.Audience {
		if a == aud {
			return true
		}
	}
	return false
}
