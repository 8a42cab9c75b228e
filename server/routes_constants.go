package server

// Route path constants
// All application routes are defined here to ensure consistency and prevent typos
const (
	RouteHome      = "/"
	RouteProfile   = "/profile"
	RouteLoginFail = "/login-fail"

	// Auth Routes
	RouteAuth         = "/auth/{provider}"
	RouteAuthCallback = "/auth/{provider}/callback"
	RouteLogout       = "/logout"

	// Operational Routes
	RouteHealth  = "/healthz"
	RouteMetrics = "/metrics"
)

// authPath returns the initiate route for a provider
func authPath(provider string) string {
	return "/auth/" + provider
}
