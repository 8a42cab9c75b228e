package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Server) initRoutes() {
	s.RegisterRouteFunc(http.MethodGet, RouteHome, ChainMiddleware(s.HomeHandler(), s.HTMLMiddleWare()...))
	s.RegisterRouteFunc(http.MethodGet, RouteProfile, ChainMiddleware(s.ProfileHandler(), s.HTMLMiddleWare(NoStoreMiddleware)...))
	s.RegisterRouteFunc(http.MethodGet, RouteLoginFail, ChainMiddleware(s.LoginFailHandler(), s.HTMLMiddleWare()...))

	// LOGIN
	s.RegisterRouteFunc(http.MethodGet, RouteAuth, ChainMiddleware(s.AuthInitiateHandler(), s.HTMLMiddleWare(s.limiter.Middleware)...))
	s.RegisterRouteFunc(http.MethodGet, RouteAuthCallback, ChainMiddleware(s.AuthCallbackHandler(), s.HTMLMiddleWare(s.limiter.Middleware)...))
	s.RegisterRouteFunc(http.MethodGet, RouteLogout, ChainMiddleware(s.LogoutHandler(), s.HTMLMiddleWare()...))

	s.RegisterRouteFunc(http.MethodGet, RouteHealth, ChainMiddleware(s.HealthHandler(), s.RecoverMiddleware))
	s.RegisterRouteHandler(http.MethodGet, RouteMetrics, promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
}
