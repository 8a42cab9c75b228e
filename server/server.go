package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jrsteele09/go-oauth-login/identity"
	"github.com/jrsteele09/go-oauth-login/identity/statetoken"
	"github.com/jrsteele09/go-oauth-login/internal/config"
	"github.com/jrsteele09/go-oauth-login/internal/secrets"
	"github.com/jrsteele09/go-oauth-login/principal"
	"github.com/jrsteele09/go-oauth-login/server/authflowrepo"
	"github.com/jrsteele09/go-oauth-login/session"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/hlog"
	"github.com/rs/zerolog/log"
)

const flowPurgeInterval = time.Minute

// IdentityProvider is the part of identity.Adapter the controller needs
type IdentityProvider interface {
	Name() string
	AuthorizationURL(scopes []string, flow identity.Flow) string
	Exchange(ctx context.Context, params identity.CallbackParams) (principal.Principal, error)
}

var _ IdentityProvider = (*identity.Adapter)(nil)

// Deps are the collaborators the server is built from
type Deps struct {
	Provider  IdentityProvider
	Sessions  *session.Manager
	AuthFlows authflowrepo.Repo
	Registry  *prometheus.Registry
}

type Server struct {
	env       string // Environment (e.g., "DEV", "PROD")
	router    chi.Router
	routes    []string
	config    config.Config
	provider  IdentityProvider
	sessions  *session.Manager
	authFlows authflowrepo.Repo
	states    *statetoken.Issuer
	cookies   *cookieCodec
	metrics   *Metrics
	limiter   *RateLimiter
	registry  *prometheus.Registry

	stopOnce sync.Once
	stopCh   chan struct{}
}

func New(c config.Config, deps Deps) (*Server, error) {
	if deps.Provider == nil || deps.Sessions == nil {
		return nil, errors.New("[Server New] provider and session manager are required")
	}
	if deps.Registry == nil {
		deps.Registry = prometheus.NewRegistry()
	}

	stateKey, err := secrets.Derive(c.GetSessionSecret(), secrets.PurposeState, 32)
	if err != nil {
		return nil, fmt.Errorf("[Server New] failed to derive state key: %w", err)
	}
	states := statetoken.New(stateKey, statetoken.DefaultTTL)
	if deps.AuthFlows == nil {
		deps.AuthFlows = authflowrepo.NewInMemoryRepo(states.TTL())
	}
	cookies, err := newCookieCodec(c.GetSessionSecret(), deps.Sessions.MaxAge(), states.TTL(), c.GetCookieSecure())
	if err != nil {
		return nil, fmt.Errorf("[Server New] failed to create cookie codec: %w", err)
	}

	s := &Server{
		env:       c.GetEnv(),
		router:    chi.NewRouter(),
		config:    c,
		provider:  deps.Provider,
		sessions:  deps.Sessions,
		authFlows: deps.AuthFlows,
		states:    states,
		cookies:   cookies,
		limiter:   NewRateLimiter(c.GetAuthRateLimit(), c.GetAuthRateBurst(), 5*time.Minute),
		registry:  deps.Registry,
		stopCh:    make(chan struct{}),
	}
	s.metrics = NewMetrics(deps.Registry, Gauges{
		ActiveSessions: s.activeSessions,
		PendingFlows:   func() float64 { return float64(s.authFlows.Len()) },
		LimitedClients: func() float64 { return float64(s.limiter.Len()) },
	})

	s.router.Use(
		middleware.RealIP,
		hlog.NewHandler(log.Logger),
		hlog.RemoteAddrHandler("ip"),
		hlog.UserAgentHandler("user_agent"),
		hlog.AccessHandler(s.accessLog),
	)
	s.initRoutes()
	s.logRoutes()

	go s.purgeAuthFlows()

	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Close stops the background goroutines owned by the server
func (s *Server) Close() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
		s.limiter.Stop()
	})
}

func (s *Server) RegisterRouteHandler(method, pattern string, handler http.Handler) {
	s.routes = append(s.routes, method+" "+pattern)
	s.router.Method(method, pattern, handler)
}

func (s *Server) RegisterRouteFunc(method, pattern string, handler http.HandlerFunc) {
	s.RegisterRouteHandler(method, pattern, handler)
}

func (s *Server) logRoutes() {
	if s.env != "DEV" {
		return // Skip logging in non-development environments
	}
	for _, route := range s.routes {
		parts := strings.SplitN(route, " ", 2)

		if len(parts) > 1 {
			logRoute(parts[0], parts[1])
		} else {
			logRoute("", parts[0])
		}
	}
}

func logRoute(method, path string) {
	log.Info().Msgf("[%-19s] %s", colourMethod(method), path)
}

func colourMethod(method string) string {
	paddedMethod := fmt.Sprintf(" %-7s", method)
	if color, ok := methodColors[method]; ok {
		return color + paddedMethod + ResetColor
	}
	return Gray + paddedMethod + ResetColor
}

func (s *Server) activeSessions() float64 {
	n, err := s.sessions.Active(context.Background())
	if err != nil {
		log.Err(err).Msg("Failed to count active sessions")
		return 0
	}
	return float64(n)
}

func (s *Server) purgeAuthFlows() {
	ticker := time.NewTicker(flowPurgeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if n := s.authFlows.Purge(); n > 0 {
				log.Debug().Int("removed", n).Msg("Abandoned login flows removed")
			}
		case <-s.stopCh:
			return
		}
	}
}

// Helper function to determine the scheme (http/https)
func getScheme(r *http.Request) string {
	if r.TLS != nil {
		return "https"
	}
	if scheme := r.Header.Get("X-Forwarded-Proto"); scheme != "" {
		return scheme
	}
	return "http"
}
