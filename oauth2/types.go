package oauth2

// ResponseType represents the OAuth 2.0 response type.
// Determines what is returned from the authorization endpoint.
type ResponseType string

const (
	// CodeResponseType indicates the authorization code flow.
	// Returns an authorization code that must be exchanged for tokens at the token endpoint.
	// Example: /authorize?response_type=code&client_id=...
	CodeResponseType ResponseType = "code"
)

// GrantType represents the OAuth 2.0 grant type used at the token endpoint.
// Determines what credentials are required to obtain tokens.
type GrantType string

const (
	// AuthorizationCodeGrant exchanges an authorization code for tokens.
	// Token request includes: code, client_id
	// Returns: access_token, refresh_token
	AuthorizationCodeGrant GrantType = "authorization_code"

	// RefreshTokenCodeGrant exchanges a refresh token for new tokens.
	// Token request includes: refresh_token, client_id
	// Returns: new access_token and, with rotation enabled, a new refresh_token.
	// With rotation enabled the presented refresh_token is revoked.
	RefreshTokenCodeGrant GrantType = "refresh_token"
)

// TokenType distinguishes access tokens from refresh tokens inside the JWT claims.
type TokenType string

const (
	AccessTokenType  TokenType = "access"
	RefreshTokenType TokenType = "refresh"
)

// BearerTokenType is the token_type returned from the token endpoint
const BearerTokenType = "Bearer"
