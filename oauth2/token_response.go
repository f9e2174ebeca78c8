package oauth2

// TokenResponse represents the response from an OAuth2 token request.
// This is the standard OAuth2 token endpoint response format as defined in RFC 6749.
// Returned from the /token endpoint for both grant types.
type TokenResponse struct {
	// AccessToken is the signed JWT used to access protected resources.
	// Usage: Include in Authorization header: "Bearer <access_token>"
	// Lifespan: Short-lived (seconds to minutes)
	AccessToken *string `json:"access_token,omitempty"`

	// TokenType indicates how to use the access token (always "Bearer").
	TokenType string `json:"token_type,omitempty"`

	// ExpiresIn is the lifetime in seconds of the access token.
	// Note: This is a hint - actual expiration is in the JWT's "exp" claim
	ExpiresIn int `json:"expires_in,omitempty"`

	// RefreshToken is a signed JWT with token_type "refresh".
	// Usage: Send to /token endpoint with grant_type=refresh_token
	// Security: Single use, rotates on each use. Presenting it twice is treated as theft.
	RefreshToken *string `json:"refresh_token,omitempty"`

	// RefreshExpiresIn is the lifetime in seconds of the refresh token.
	RefreshExpiresIn int `json:"refresh_expires_in,omitempty"`

	// Scope indicates the access token's granted permissions.
	// Example: "assets:read risk:analyze"
	Scope string `json:"scope,omitempty"`
}

// ErrorResponse is the JSON body of an OAuth2 error
type ErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

// OAuth2 error codes returned from the token and authorize endpoints
const (
	ErrorCodeInvalidRequest          = "invalid_request"
	ErrorCodeInvalidClient           = "invalid_client"
	ErrorCodeInvalidGrant            = "invalid_grant"
	ErrorCodeUnsupportedGrantType    = "unsupported_grant_type"
	ErrorCodeUnsupportedResponseType = "unsupported_response_type"
	ErrorCodeAccessDenied            = "access_denied"
	ErrorCodeInvalidToken            = "invalid_token"
	ErrorCodeServerError             = "server_error"
)

// Descriptions returned with invalid_grant. Clients match on them to tell
// replay and expiry apart from other grant failures.
const (
	DescriptionTokenReuseDetected = "refresh token reuse detected"
	DescriptionTokenExpired       = "refresh token expired"
)
