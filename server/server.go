package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/jrsteele09/go-token-broker/auth"
	"github.com/jrsteele09/go-token-broker/auth/codes"
	"github.com/jrsteele09/go-token-broker/clients"
	"github.com/jrsteele09/go-token-broker/internal/config"
	"github.com/jrsteele09/go-token-broker/internal/web"
	"github.com/jrsteele09/go-token-broker/token/jwt"
	"github.com/jrsteele09/go-token-broker/token/keys"
	"github.com/jrsteele09/go-token-broker/token/refresh"
	"github.com/jrsteele09/go-token-broker/users"
	"github.com/rs/zerolog/log"
)

// Dependencies are the stores and key material the issuer runs on
type Dependencies struct {
	Repos       auth.Repos
	RefreshRepo refresh.Repo
	KeyPair     *keys.KeyPair
}

// NewInMemoryDependencies generates a fresh signing key and seeds the demo users and client.
// Pass a non-nil refreshRepo to keep refresh records elsewhere.
func NewInMemoryDependencies(cfg config.OAuthConfig, refreshRepo refresh.Repo) (Dependencies, error) {
	kp, err := keys.GenerateRSAKeyPair("", cfg.GetRSAKeyBits())
	if err != nil {
		return Dependencies{}, err
	}

	userRepo := users.NewInMemoryRepo()
	if err := users.Seed(userRepo, users.DemoAccounts); err != nil {
		return Dependencies{}, err
	}
	if refreshRepo == nil {
		refreshRepo = refresh.NewInMemoryRepo()
	}

	return Dependencies{
		Repos: auth.Repos{
			Users:   userRepo,
			Clients: clients.NewInMemoryRepo(clients.DemoClient),
			Codes:   codes.NewInMemoryRepo(),
		},
		RefreshRepo: refreshRepo,
		KeyPair:     kp,
	}, nil
}

// Server is the issuer's HTTP surface
type Server struct {
	router *web.Router
	config config.Config
	auth   *auth.AuthorizationService
}

func New(cfg config.Config, deps Dependencies, options ...auth.AuthorizationServiceOption) (*Server, error) {
	if deps.KeyPair == nil || deps.RefreshRepo == nil {
		return nil, fmt.Errorf("[Server New] key pair and refresh repo are required")
	}

	signer := keys.NewKeyPairSigner(deps.KeyPair)
	creator := jwt.NewCreator(cfg, signer)
	authService, err := auth.NewAuthorizationService(cfg, deps.Repos, auth.Tokens{
		Signer:   signer,
		Creator:  creator,
		Verifier: jwt.NewVerifier(cfg, signer),
		Refresh:  refresh.NewManager(deps.RefreshRepo, creator, cfg),
	}, options...)
	if err != nil {
		return nil, fmt.Errorf("[Server New] failed to create authorization service: %w", err)
	}

	s := &Server{
		router: web.NewRouter(cfg.GetEnv(), cfg),
		config: cfg,
		auth:   authService,
	}
	s.initRoutes()
	s.router.LogRoutes()

	log.Info().
		Str("issuer", cfg.GetIssuer()).
		Str("kid", signer.KeyID()).
		Dur("access_ttl", cfg.GetAccessTokenExpiry()).
		Dur("refresh_ttl", cfg.GetRefreshTokenExpiry()).
		Bool("rotation", cfg.GetRotateRefreshTokens()).
		Msg("issuer ready")
	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// RunCodeJanitor purges expired authorization codes until ctx is done
func (s *Server) RunCodeJanitor(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.auth.CleanupExpiredCodes(); n > 0 {
				log.Debug().Int("purged", n).Msg("expired authorization codes removed")
			}
		}
	}
}
