package server

import "github.com/jrsteele09/go-token-broker/internal/web"

func (s *Server) initRoutes() {
	api := s.router.APIMiddleware()
	credentials := s.router.APIMiddleware(web.NoStoreMiddleware)

	// Discovery and key material
	s.router.RegisterRouteHandler("GET "+RouteWellKnownOpenIDConfig, web.ChainMiddleware(s.WellKnownOpenIDConfig(), api...))
	s.router.RegisterRouteHandler("GET "+RouteWellKnownJWKS, web.ChainMiddleware(s.JWKS(), api...))
	s.router.RegisterRouteHandler("GET "+RouteJWKS, web.ChainMiddleware(s.JWKS(), api...))

	// Grants
	s.router.RegisterRouteHandler("GET "+RouteAuthorize, web.ChainMiddleware(s.Authorize(), credentials...))
	s.router.RegisterRouteHandler("POST "+RouteToken, web.ChainMiddleware(s.Token(), credentials...))

	// Token management
	s.router.RegisterRouteHandler("POST "+RouteOAuth2Introspect, web.ChainMiddleware(s.Introspect(), api...))
	s.router.RegisterRouteHandler("POST "+RouteOAuth2Revoke, web.ChainMiddleware(s.Revoke(), api...))
	s.router.RegisterRouteHandler("GET "+RouteUserInfo, web.ChainMiddleware(s.UserInfo(), api...))

	s.router.RegisterRouteHandler("GET "+RouteHealth, web.ChainMiddleware(s.Health(), api...))
}
