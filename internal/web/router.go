// Package web holds the HTTP plumbing shared by the issuer, the broker and the downstream services.
package web

import (
	"net/http"
	"strings"

	"github.com/jrsteele09/go-token-broker/internal/config"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
)

// Router is a ServeMux that remembers its patterns and applies CORS ahead of routing,
// so preflight requests are answered even for method-qualified patterns.
type Router struct {
	env     string
	mux     *http.ServeMux
	routes  []string
	handler http.Handler
}

func NewRouter(env string, corsConfig config.CorsConfig) *Router {
	mux := http.NewServeMux()
	return &Router{
		env:     env,
		mux:     mux,
		handler: NewCors(corsConfig).Handler(mux),
	}
}

// NewCors builds the rs/cors policy from config. A "*" origin disables credentials.
func NewCors(corsConfig config.CorsConfig) *cors.Cors {
	origins := corsConfig.GetAllowedOrigins()
	return cors.New(cors.Options{
		AllowedOrigins:   origins.List(),
		AllowedMethods:   corsConfig.GetAllowedMethods(),
		AllowedHeaders:   corsConfig.GetAllowedHeaders(),
		AllowCredentials: !origins.IsAllowedOrigin("*"),
		MaxAge:           86400,
	})
}

func (rt *Router) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rt.handler.ServeHTTP(w, r)
}

func (rt *Router) Env() string {
	return rt.env
}

func (rt *Router) RegisterRouteHandler(pattern string, handler http.Handler) {
	rt.routes = append(rt.routes, pattern)
	rt.mux.Handle(pattern, handler)
}

func (rt *Router) RegisterRouteFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	rt.routes = append(rt.routes, pattern)
	rt.mux.HandleFunc(pattern, handler)
}

// Routes returns the registered patterns in registration order
func (rt *Router) Routes() []string {
	return append([]string(nil), rt.routes...)
}

func (rt *Router) LogRoutes() {
	if rt.env != "DEV" {
		return // Skip logging in non-development environments
	}
	for _, route := range rt.routes {
		method, path, found := strings.Cut(route, " ")
		if !found {
			method, path = "", route
		}
		log.Info().Msgf("[%-19s] %s", colourMethod(method), path)
	}
}
