package main

import (
	"context"
	"net/http"
	"os"

	"github.com/jrsteele09/go-token-broker/internal/config"
	"github.com/jrsteele09/go-token-broker/internal/logging"
	"github.com/jrsteele09/go-token-broker/internal/process"
	"github.com/jrsteele09/go-token-broker/services/capital"
	"github.com/jrsteele09/go-token-broker/services/resourceauth"
	"github.com/rs/zerolog/log"
)

func main() {
	c := config.New()
	logging.Setup(c.GetEnv(), c.GetLogLevel())
	process.DisplayAppName("Capital Services")

	auth := resourceauth.New(context.Background(), c.GetIssuer(), c.GetJWKSURL(), c.GetServicesAudience())
	log.Info().
		Str("issuer", c.GetIssuer()).
		Str("jwks", c.GetJWKSURL()).
		Str("audience", c.GetServicesAudience()).
		Bool("simulate_latency", c.GetSimulateLatency()).
		Msg("capital services ready")

	srv := &http.Server{Addr: c.GetServicesPort(), Handler: capital.New(c, auth)}
	if err := process.Run(srv); err != nil {
		log.Error().Err(err).Msg("services stopped with error")
		os.Exit(1)
	}
}
