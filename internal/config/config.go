package config

import (
	"sync"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

type Config interface {
	EnvConfig
	CorsConfig
	OAuthConfig
	BrokerConfig
	ServicesConfig
	RedisConfig
}

type EnvConfig interface {
	GetPort() string
	GetAppName() string
	GetEnv() string
	GetBaseURL() string
	GetLogLevel() string
}

type CorsConfig interface {
	GetAllowedOrigins() AllowedOrigins
	GetAllowedMethods() []string
	GetAllowedHeaders() []string
}

type RedisConfig interface {
	GetRedisAddr() string
	GetRedisPassword() string
	GetRedisDB() int
}

type mainConfig struct {
	EnvVars
	Cors
	OAuth
	Broker
	Services
	Redis
}

var loadDotEnv sync.Once

// New loads an optional .env file once and returns the environment backed config.
func New() Config {
	loadDotEnv.Do(func() {
		if err := godotenv.Load(); err != nil {
			log.Debug().Err(err).Msg("no .env file loaded")
		}
	})
	return mainConfig{}
}
