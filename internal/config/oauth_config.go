package config

import "time"

type OAuthConfig interface {
	GetIssuer() string
	GetAudience() string
	GetAuthCodeTimeout() time.Duration
	GetCodeGenerationLength() int
	GetAccessTokenExpiry() time.Duration
	GetRefreshTokenExpiry() time.Duration
	GetClockSkewLeeway() time.Duration
	GetRotateRefreshTokens() bool
	GetRevokeChainOnReuse() bool
	GetRSAKeyBits() int
}

type OAuth struct{}

var _ OAuthConfig = OAuth{}

func (OAuth) GetIssuer() string {
	return GetEnv("OAUTH_ISSUER", "http://localhost:8000")
}

func (OAuth) GetAudience() string {
	return GetEnv("OAUTH_AUDIENCE", "capital-planning-api")
}

func (OAuth) GetAuthCodeTimeout() time.Duration {
	return GetEnvDuration("OAUTH_CODE_TTL", 60*time.Second)
}

func (OAuth) GetCodeGenerationLength() int {
	return 32
}

func (OAuth) GetAccessTokenExpiry() time.Duration {
	return GetEnvDuration("OAUTH_ACCESS_TOKEN_TTL", 10*time.Second)
}

func (OAuth) GetRefreshTokenExpiry() time.Duration {
	return GetEnvDuration("OAUTH_REFRESH_TOKEN_TTL", 30*time.Second)
}

func (OAuth) GetClockSkewLeeway() time.Duration {
	return GetEnvDuration("OAUTH_LEEWAY", 10*time.Second)
}

func (OAuth) GetRotateRefreshTokens() bool {
	return GetEnvBool("OAUTH_ROTATE_REFRESH_TOKENS", true)
}

// GetRevokeChainOnReuse controls whether a replayed refresh token also revokes
// every token issued after it in the same chain.
func (OAuth) GetRevokeChainOnReuse() bool {
	return GetEnvBool("OAUTH_REVOKE_CHAIN_ON_REUSE", true)
}

func (OAuth) GetRSAKeyBits() int {
	return 2048
}
