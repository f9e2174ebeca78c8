package main

import (
	"context"
	"net/http"
	"os"

	"github.com/jrsteele09/go-token-broker/internal/config"
	"github.com/jrsteele09/go-token-broker/internal/logging"
	"github.com/jrsteele09/go-token-broker/internal/process"
	"github.com/jrsteele09/go-token-broker/server"
	"github.com/jrsteele09/go-token-broker/token/refresh"
	"github.com/jrsteele09/go-token-broker/token/refresh/redisrepo"
	"github.com/rs/zerolog/log"
)

func main() {
	c := config.New()
	logging.Setup(c.GetEnv(), c.GetLogLevel())
	process.DisplayAppName(c.GetAppName())

	if err := run(c); err != nil {
		log.Error().Err(err).Msg("issuer stopped with error")
		os.Exit(1)
	}
	log.Info().Msg("issuer stopped")
}

func run(c config.Config) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var refreshRepo refresh.Repo
	if c.GetRedisAddr() != "" {
		client, err := redisrepo.Connect(ctx, c)
		if err != nil {
			return err
		}
		defer client.Close()
		refreshRepo = redisrepo.New(client, redisrepo.WithRetention(2*c.GetRefreshTokenExpiry()))
		log.Info().Str("addr", c.GetRedisAddr()).Msg("refresh records stored in redis")
	}

	deps, err := server.NewInMemoryDependencies(c, refreshRepo)
	if err != nil {
		return err
	}
	issuer, err := server.New(c, deps)
	if err != nil {
		return err
	}
	go issuer.RunCodeJanitor(ctx, c.GetAuthCodeTimeout())

	return process.Run(&http.Server{Addr: c.GetPort(), Handler: issuer})
}
