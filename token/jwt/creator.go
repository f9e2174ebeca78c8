package jwt

import (
	"fmt"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jrsteele09/go-token-broker/internal/config"
	"github.com/jrsteele09/go-token-broker/oauth2"
	"github.com/jrsteele09/go-token-broker/token/keys"
)

// NowTimeFunc returns the current time. It can be overridden in tests.
var NowTimeFunc = time.Now

// SignedToken is a freshly minted token and the times baked into it
type SignedToken struct {
	Raw       string
	ID        string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Creator handles JWT token creation (access tokens and refresh tokens)
type Creator struct {
	config config.OAuthConfig
	signer keys.Signer
}

// NewCreator creates a new JWT creator
func NewCreator(cfg config.OAuthConfig, signer keys.Signer) *Creator {
	return &Creator{
		config: cfg,
		signer: signer,
	}
}

// CreateAccessToken creates an OAuth2 access token presented to downstream services
func (c *Creator) CreateAccessToken(subject, clientID string, scopes []string) (*SignedToken, error) {
	return c.create(subject, clientID, scopes, oauth2.AccessTokenType, c.config.GetAccessTokenExpiry())
}

// CreateRefreshToken creates a refresh token. Its claims mirror the access token
// apart from token_type and lifetime.
func (c *Creator) CreateRefreshToken(subject, clientID string, scopes []string) (*SignedToken, error) {
	return c.create(subject, clientID, scopes, oauth2.RefreshTokenType, c.config.GetRefreshTokenExpiry())
}

func (c *Creator) create(subject, clientID string, scopes []string, tokenType oauth2.TokenType, ttl time.Duration) (*SignedToken, error) {
	now := NowTimeFunc()
	expiresAt := now.Add(ttl)
	jti := uuid.New().String()

	claims := &Claims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			Issuer:    c.config.GetIssuer(),
			Subject:   subject,
			Audience:  jwtlib.ClaimStrings{c.config.GetAudience()},
			IssuedAt:  jwtlib.NewNumericDate(now),
			ExpiresAt: jwtlib.NewNumericDate(expiresAt),
			ID:        jti, // keeps two tokens minted in the same second distinct
		},
		Scope:     strings.Join(scopes, " "),
		Scopes:    append([]string(nil), scopes...),
		ClientID:  clientID,
		TokenType: tokenType,
	}

	raw, err := c.signer.Sign(claims)
	if err != nil {
		return nil, fmt.Errorf("failed to sign JWT token: %w", err)
	}

	return &SignedToken{
		Raw:       raw,
		ID:        jti,
		IssuedAt:  now,
		ExpiresAt: expiresAt,
	}, nil
}
