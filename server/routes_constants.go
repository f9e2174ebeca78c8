package server

// Route path constants
// All issuer routes are defined here to ensure consistency and prevent typos
const (
	RouteWellKnownOpenIDConfig = "/.well-known/openid-configuration"
	RouteWellKnownJWKS         = "/.well-known/jwks.json"
	RouteJWKS                  = "/jwks"
	RouteAuthorize             = "/authorize"
	RouteToken                 = "/token"
	RouteOAuth2Introspect      = "/oauth2/introspect"
	RouteOAuth2Revoke          = "/oauth2/revoke"
	RouteUserInfo              = "/userinfo"
	RouteHealth                = "/health"
)
