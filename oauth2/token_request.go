package oauth2

// TokenRequest holds parameters for the OAuth2 token request.
// This represents the form body sent to the /token endpoint.
type TokenRequest struct {
	// GrantType selects authorization_code or refresh_token.
	GrantType GrantType

	// ClientID identifies the OAuth2 client making the request.
	// Required: Yes (for all grant types)
	// Example: "capital-planning-client"
	ClientID string

	// ClientSecret is the secret credential for confidential clients.
	// Required: only for confidential clients
	// Security: Never log or expose this value
	ClientSecret string

	// Code is the authorization code received from the authorization endpoint.
	// Required: Yes (only for authorization_code grant)
	// Usage: Exchanged once for tokens, then becomes invalid
	Code string

	// RefreshToken is used to obtain new access tokens without re-authentication.
	// Required: Yes (only for refresh_token grant)
	// Behavior: Rotated - old refresh token revoked, new one issued
	RefreshToken string
}

// AuthorizationRequest holds the parameters of the simplified /authorize endpoint,
// which takes the user's credentials directly instead of rendering a login page.
type AuthorizationRequest struct {
	Username     string
	Password     string
	ClientID     string
	ResponseType ResponseType
	State        string
}

// AuthorizationResponse is returned by /authorize
type AuthorizationResponse struct {
	Code  string `json:"code"`
	State string `json:"state"`
}
