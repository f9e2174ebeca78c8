// Package api is the broker's HTTP surface: session handover, introspection and tool calls.
package api

import (
	"net/http"

	"github.com/jrsteele09/go-token-broker/broker/sessions"
	"github.com/jrsteele09/go-token-broker/broker/tools"
	"github.com/jrsteele09/go-token-broker/internal/config"
	"github.com/jrsteele09/go-token-broker/internal/web"
	"github.com/rs/zerolog/log"
)

const (
	RouteSessions       = "/sessions"
	RouteSession        = "/sessions/{id}"
	RouteActivate       = "/sessions/{id}/activate"
	RouteActiveInfo     = "/sessions/active/info"
	RouteTools          = "/tools"
	RouteTool           = "/tools/{name}"
	RouteHealth         = "/health"
	HeaderSessionID     = "X-Session-ID"
	serviceName         = "capital-planning-broker"
	maxRequestBodyBytes = 1 << 20
)

// Config is what the broker API needs from the environment
type Config interface {
	config.EnvConfig
	config.CorsConfig
	config.BrokerConfig
}

type Server struct {
	router *web.Router
	config Config
	store  *sessions.Store
	tools  *tools.Tools
}

func New(cfg Config, store *sessions.Store, t *tools.Tools) *Server {
	s := &Server{
		router: web.NewRouter(cfg.GetEnv(), cfg),
		config: cfg,
		store:  store,
		tools:  t,
	}
	s.initRoutes()
	s.router.LogRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) initRoutes() {
	api := s.router.APIMiddleware()
	credentials := s.router.APIMiddleware(web.NoStoreMiddleware)

	// Sessions
	s.router.RegisterRouteHandler("POST "+RouteSessions, web.ChainMiddleware(s.CreateSession(), credentials...))
	s.router.RegisterRouteHandler("GET "+RouteActiveInfo, web.ChainMiddleware(s.ActiveSessionInfo(), api...))
	s.router.RegisterRouteHandler("GET "+RouteSession, web.ChainMiddleware(s.GetSession(), api...))
	s.router.RegisterRouteHandler("DELETE "+RouteSession, web.ChainMiddleware(s.DeleteSession(), api...))
	s.router.RegisterRouteHandler("POST "+RouteActivate, web.ChainMiddleware(s.ActivateSession(), api...))

	// Tools
	s.router.RegisterRouteHandler("GET "+RouteTools, web.ChainMiddleware(s.ListTools(), api...))
	s.router.RegisterRouteHandler("POST "+RouteTool, web.ChainMiddleware(s.CallTool(), api...))

	s.router.RegisterRouteHandler("GET "+RouteHealth, web.ChainMiddleware(s.Health(), api...))

	log.Debug().Int("routes", len(s.router.Routes())).Msg("broker routes registered")
}
