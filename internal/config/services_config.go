package config

type ServicesConfig interface {
	GetServicesPort() string
	GetBrokerPort() string
	GetJWKSURL() string
	GetServicesAudience() string
	GetSimulateLatency() bool
}

type Services struct{}

var _ ServicesConfig = Services{}

func (Services) GetServicesPort() string {
	return Port("SERVICES_PORT", "8001")
}

func (Services) GetBrokerPort() string {
	return Port("BROKER_PORT", "8002")
}

// GetJWKSURL is where the downstream services fetch the issuer's verification keys
func (Services) GetJWKSURL() string {
	return GetEnv("JWKS_URL", GetEnv("OIDC_SERVER_URL", "http://localhost:8000")+"/jwks")
}

func (Services) GetServicesAudience() string {
	return GetEnv("OAUTH_AUDIENCE", "capital-planning-api")
}

// GetSimulateLatency adds the slow endpoint delays that outlast an access token
func (Services) GetSimulateLatency() bool {
	return GetEnvBool("SERVICES_SIMULATE_LATENCY", false)
}
