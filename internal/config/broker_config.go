package config

import "time"

type BrokerConfig interface {
	GetIssuerURL() string
	GetClientID() string
	GetClientSecret() string
	GetServicesURL() string
	GetHeartbeatInterval() time.Duration
	GetRefreshTimeout() time.Duration
	GetShutdownGrace() time.Duration
	GetRefreshRetryAttempts() int
	GetRefreshConcurrency() int
	GetReaperEnabled() bool
	GetDefaultAccessTTL() time.Duration
	GetDefaultRefreshTTL() time.Duration
	GetFallbackRefreshTTL() time.Duration
	GetLogTokenEvents() bool
	GetMeterName() string
}

type Broker struct{}

var _ BrokerConfig = Broker{}

func (Broker) GetIssuerURL() string {
	return GetEnv("OIDC_SERVER_URL", "http://localhost:8000")
}

func (Broker) GetClientID() string {
	return GetEnv("OIDC_CLIENT_ID", "capital-planning-client")
}

func (Broker) GetClientSecret() string {
	return GetEnv("OIDC_CLIENT_SECRET", "")
}

func (Broker) GetServicesURL() string {
	return GetEnv("SERVICES_BASE_URL", "http://localhost:8001")
}

// GetHeartbeatInterval must stay below both the access and refresh token lifetimes of the issuer
func (Broker) GetHeartbeatInterval() time.Duration {
	return GetEnvDuration("TOKEN_REFRESH_HEARTBEAT", 8*time.Second)
}

func (Broker) GetRefreshTimeout() time.Duration {
	return GetEnvDuration("BROKER_REFRESH_TIMEOUT", 10*time.Second)
}

func (Broker) GetShutdownGrace() time.Duration {
	return GetEnvDuration("BROKER_SHUTDOWN_GRACE", 5*time.Second)
}

func (Broker) GetRefreshRetryAttempts() int {
	return GetEnvInt("BROKER_REFRESH_RETRIES", 3)
}

func (Broker) GetRefreshConcurrency() int {
	return GetEnvInt("BROKER_REFRESH_CONCURRENCY", 8)
}

func (Broker) GetReaperEnabled() bool {
	return GetEnvBool("BROKER_REAPER_ENABLED", true)
}

// GetDefaultAccessTTL applies when a session is created without expires_in
func (Broker) GetDefaultAccessTTL() time.Duration {
	return 1 * time.Second
}

// GetDefaultRefreshTTL applies when a session is created without refresh_expires_in
func (Broker) GetDefaultRefreshTTL() time.Duration {
	return 1 * time.Hour
}

// GetFallbackRefreshTTL applies when the issuer rotates the refresh token without refresh_expires_in
func (Broker) GetFallbackRefreshTTL() time.Duration {
	return GetEnvDuration("BROKER_FALLBACK_REFRESH_TTL", 30*time.Second)
}

func (Broker) GetLogTokenEvents() bool {
	return GetEnvBool("LOG_TOKEN_EVENTS", true)
}

func (Broker) GetMeterName() string {
	return GetEnv("OTEL_METER_NAME", "github.com/jrsteele09/go-token-broker/broker")
}
