package auth

import (
	"context"
	"strings"
	"time"

	"github.com/jrsteele09/go-token-broker/auth/codes"
	"github.com/jrsteele09/go-token-broker/clients"
	"github.com/jrsteele09/go-token-broker/internal/config"
	"github.com/jrsteele09/go-token-broker/internal/errors"
	"github.com/jrsteele09/go-token-broker/internal/logging"
	"github.com/jrsteele09/go-token-broker/oauth2"
	"github.com/jrsteele09/go-token-broker/token/jwt"
	"github.com/jrsteele09/go-token-broker/token/keys"
	"github.com/jrsteele09/go-token-broker/token/refresh"
	"github.com/jrsteele09/go-token-broker/users"
	"github.com/lestrrat-go/jwx/v3/jwk"
	"github.com/rs/zerolog/log"
)

// Repos holds all repository dependencies for the AuthorizationService
type Repos struct {
	Users   users.UserRepo // Repository for user data
	Clients clients.Repo   // Repository for OAuth2 client data
	Codes   codes.Repo     // Outstanding authorization codes
}

// Tokens holds the token machinery the service mints and checks with
type Tokens struct {
	Signer   keys.Signer
	Creator  *jwt.Creator
	Verifier *jwt.Verifier
	Refresh  *refresh.Manager
}

// UserInfo is the /userinfo view of the token subject
type UserInfo struct {
	Sub    string   `json:"sub"`
	Name   string   `json:"name,omitempty"`
	Email  string   `json:"email,omitempty"`
	Scopes []string `json:"scopes"`
}

// AuthorizationService issues codes and token pairs and enforces refresh rotation.
type AuthorizationService struct {
	config    config.OAuthConfig
	repos     Repos            // All repository dependencies
	tokens    Tokens           // Create and check tokens
	inspector *jwt.Inspector   // Introspection with revocation awareness
	nowTime   func() time.Time // nowTime function (injectable for testing)
}

// AuthorizationServiceOption defines a function type to modify the AuthorizationService instance.
type AuthorizationServiceOption func(*AuthorizationService)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) AuthorizationServiceOption {
	return func(as *AuthorizationService) {
		as.nowTime = nowFunc
	}
}

// NewAuthorizationService initializes a new AuthorizationService with required dependencies.
// Optional configuration can be provided via options (e.g., WithNowTime for testing).
func NewAuthorizationService(
	cfg config.OAuthConfig,
	repos Repos,
	tokens Tokens,
	options ...AuthorizationServiceOption,
) (*AuthorizationService, error) {
	// Validate required parameters
	if cfg == nil {
		return nil, errors.New("[NewAuthorizationService] config is required")
	}
	if repos.Users == nil {
		return nil, errors.New("[NewAuthorizationService] Users repo is required")
	}
	if repos.Clients == nil {
		return nil, errors.New("[NewAuthorizationService] Clients repo is required")
	}
	if repos.Codes == nil {
		return nil, errors.New("[NewAuthorizationService] Codes repo is required")
	}
	if tokens.Signer == nil || tokens.Creator == nil || tokens.Verifier == nil || tokens.Refresh == nil {
		return nil, errors.New("[NewAuthorizationService] signer, creator, verifier and refresh manager are required")
	}

	authService := &AuthorizationService{
		config:    cfg,
		repos:     repos,
		tokens:    tokens,
		inspector: jwt.NewInspector(tokens.Verifier, tokens.Refresh),
		nowTime:   time.Now,
	}

	// Apply optional configuration
	for _, opt := range options {
		opt(authService)
	}

	return authService, nil
}

// Authorize checks the user's credentials and issues a short-lived single use code
// bound to the user's scopes and the requesting client.
func (as *AuthorizationService) Authorize(req *oauth2.AuthorizationRequest) (*oauth2.AuthorizationResponse, error) {
	client, err := as.repos.Clients.Get(req.ClientID)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrInvalidClient, "[Authorize] client %q", req.ClientID)
	}
	if req.ResponseType != oauth2.CodeResponseType {
		return nil, errors.Wrapf(errors.ErrUnsupportedResponseType, "[Authorize] response_type %q", req.ResponseType)
	}

	user, err := as.repos.Users.GetByUsername(req.Username)
	if err != nil || user.Blocked || !user.CheckPassword(req.Password) {
		return nil, errors.Wrapf(errors.ErrInvalidCredentials, "[Authorize]")
	}

	value, err := codes.Generate(as.config.GetCodeGenerationLength())
	if err != nil {
		return nil, errors.Wrapf(err, "[Authorize] failed generating auth code")
	}
	if err := as.repos.Codes.Store(&codes.Code{
		Value:     value,
		ClientID:  client.ID,
		Subject:   user.ID,
		Scopes:    client.FilterScopes(user.Scopes),
		ExpiresAt: as.nowTime().Add(as.config.GetAuthCodeTimeout()),
	}); err != nil {
		return nil, errors.Wrapf(err, "[Authorize] failed to store auth code")
	}

	log.Debug().Str("sub", user.ID).Str("client_id", client.ID).Msg("authorization code issued")
	return &oauth2.AuthorizationResponse{Code: value, State: req.State}, nil
}

// Token authenticates the client and dispatches on the grant type
func (as *AuthorizationService) Token(ctx context.Context, req *oauth2.TokenRequest) (*oauth2.TokenResponse, error) {
	client, err := as.repos.Clients.Get(req.ClientID)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrInvalidClient, "[Token] client %q", req.ClientID)
	}
	if err := client.Authenticate(req.ClientSecret); err != nil {
		return nil, errors.Wrapf(err, "[Token] client %q", req.ClientID)
	}

	switch req.GrantType {
	case oauth2.AuthorizationCodeGrant:
		if req.Code == "" {
			return nil, errors.Wrapf(errors.ErrInvalidRequest, "[Token] code is required")
		}
		return as.ExchangeCode(ctx, req.Code, client.ID)
	case oauth2.RefreshTokenCodeGrant:
		if req.RefreshToken == "" {
			return nil, errors.Wrapf(errors.ErrInvalidRequest, "[Token] refresh_token is required")
		}
		return as.ExchangeRefresh(ctx, req.RefreshToken, client.ID)
	default:
		return nil, errors.Wrapf(errors.ErrUnsupportedGrantType, "[Token] grant_type %q", req.GrantType)
	}
}

// ExchangeCode redeems an authorization code for the first pair of a new refresh chain
func (as *AuthorizationService) ExchangeCode(ctx context.Context, code, clientID string) (*oauth2.TokenResponse, error) {
	consumed, err := as.repos.Codes.Consume(code, clientID, as.nowTime())
	if err != nil {
		return nil, errors.Wrapf(errors.ErrInvalidGrant, "[ExchangeCode] %v", err)
	}

	access, err := as.tokens.Creator.CreateAccessToken(consumed.Subject, clientID, consumed.Scopes)
	if err != nil {
		return nil, errors.Wrapf(err, "[ExchangeCode] access token")
	}
	record, err := as.tokens.Refresh.Create(ctx, consumed.Subject, clientID, consumed.Scopes)
	if err != nil {
		return nil, errors.Wrapf(err, "[ExchangeCode] refresh token")
	}

	log.Info().Str("sub", consumed.Subject).Str("client_id", clientID).Str("chain", record.ID).Msg("code exchanged")
	return as.tokenResponse(access, record), nil
}

// ExchangeRefresh trades a live refresh token for a new pair. A revoked token means the chain
// leaked: the caller gets ErrTokenReuseDetected and, if configured, every descendant is revoked.
func (as *AuthorizationService) ExchangeRefresh(ctx context.Context, refreshToken, clientID string) (*oauth2.TokenResponse, error) {
	claims, err := as.tokens.Verifier.Verify(refreshToken, oauth2.RefreshTokenType)
	// An expired signature still identifies the record, so reuse is detected on stale replays.
	// The record's own expiry decides liveness since Extend moves it past the JWT exp.
	if err != nil && !errors.Is(err, errors.ErrTokenExpired) {
		return nil, errors.Wrapf(errors.ErrInvalidGrant, "[ExchangeRefresh] %v", err)
	}

	record, err := as.tokens.Refresh.Get(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			return nil, errors.Wrapf(errors.ErrInvalidGrant, "[ExchangeRefresh] unknown refresh token")
		}
		return nil, errors.Wrapf(err, "[ExchangeRefresh] lookup")
	}
	if record.ClientID != clientID || record.Subject != claims.Subject {
		return nil, errors.Wrapf(errors.ErrInvalidGrant, "[ExchangeRefresh] token bound to another client")
	}
	if record.Revoked {
		return nil, as.reuseDetected(ctx, record)
	}
	if as.tokens.Refresh.IsExpired(record) {
		return nil, errors.Wrapf(errors.ErrTokenExpired, "[ExchangeRefresh]")
	}

	var next *refresh.TokenRecord
	if as.config.GetRotateRefreshTokens() {
		next, err = as.tokens.Refresh.Rotate(ctx, record)
		if errors.Is(err, errors.ErrTokenReuseDetected) {
			// lost a race against another presentation of the same token
			return nil, as.reuseDetected(ctx, record)
		}
	} else {
		next, err = as.tokens.Refresh.Extend(ctx, record)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "[ExchangeRefresh] store")
	}

	access, err := as.tokens.Creator.CreateAccessToken(next.Subject, clientID, next.Scopes)
	if err != nil {
		return nil, errors.Wrapf(err, "[ExchangeRefresh] access token")
	}

	log.Debug().Str("sub", next.Subject).Str("chain", logging.ShortID(next.ID)).Msg("refresh token rotated")
	return as.tokenResponse(access, next), nil
}

// RevokeChain revokes a refresh token and everything issued from it. The caller must own the token.
func (as *AuthorizationService) RevokeChain(ctx context.Context, refreshToken, clientID string) (int, error) {
	record, err := as.tokens.Refresh.Get(ctx, refreshToken)
	if err != nil {
		return 0, err
	}
	if record.ClientID != clientID {
		return 0, errors.Wrapf(errors.ErrInvalidClient, "[RevokeChain] token bound to another client")
	}
	return as.tokens.Refresh.RevokeChain(ctx, refreshToken)
}

// UserInfo returns user information based on an access token
func (as *AuthorizationService) UserInfo(ctx context.Context, accessToken string) (*UserInfo, error) {
	claims, err := as.tokens.Verifier.Verify(accessToken, oauth2.AccessTokenType)
	if err != nil {
		return nil, err
	}

	info := &UserInfo{Sub: claims.Subject, Scopes: claims.Scopes}
	if user, err := as.repos.Users.GetByID(claims.Subject); err == nil {
		info.Name = user.Name
		info.Email = user.Email
	}
	return info, nil
}

// Introspect returns metadata about an access or refresh token for resource servers
func (as *AuthorizationService) Introspect(rawToken string) *jwt.TokenIntrospection {
	return as.inspector.Introspect(rawToken)
}

// JWKS returns the JSON Web Key Set for public key distribution
func (as *AuthorizationService) JWKS() (jwk.Set, error) {
	return as.tokens.Signer.GetJWKS()
}

// CleanupExpiredCodes drops authorization codes that can no longer be redeemed
func (as *AuthorizationService) CleanupExpiredCodes() int {
	return as.repos.Codes.PurgeExpired(as.nowTime())
}

func (as *AuthorizationService) reuseDetected(ctx context.Context, record *refresh.TokenRecord) error {
	event := log.Warn().Str("sub", record.Subject).Str("client_id", record.ClientID).Str("record", record.ID)
	if as.config.GetRevokeChainOnReuse() {
		n, err := as.tokens.Refresh.RevokeChain(ctx, record.Token)
		if err != nil {
			log.Error().Err(err).Str("record", record.ID).Msg("failed to revoke chain after reuse")
		}
		event = event.Int("revoked", n)
	}
	event.Msg("refresh token reuse detected")
	return errors.Wrapf(errors.ErrTokenReuseDetected, "[ExchangeRefresh]")
}

func (as *AuthorizationService) tokenResponse(access *jwt.SignedToken, record *refresh.TokenRecord) *oauth2.TokenResponse {
	accessToken := access.Raw
	refreshToken := record.Token
	return &oauth2.TokenResponse{
		AccessToken:      &accessToken,
		TokenType:        oauth2.BearerTokenType,
		ExpiresIn:        int(as.config.GetAccessTokenExpiry() / time.Second),
		RefreshToken:     &refreshToken,
		RefreshExpiresIn: int(as.config.GetRefreshTokenExpiry() / time.Second),
		Scope:            strings.Join(record.Scopes, " "),
	}
}
