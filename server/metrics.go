package server

import "github.com/prometheus/client_golang/prometheus"

// Login outcomes reported on oauth_login_attempts_total
const (
	outcomeSuccess       = "success"
	outcomeDenied        = "denied"
	outcomeProviderError = "provider_error"
	outcomeInvalidState  = "invalid_state"
)

// Metrics holds the login counters exported at /metrics
type Metrics struct {
	started  prometheus.Counter
	attempts *prometheus.CounterVec
	logouts  prometheus.Counter
}

// Gauges are sampled on every scrape
type Gauges struct {
	ActiveSessions func() float64
	PendingFlows   func() float64
	LimitedClients func() float64
}

// NewMetrics registers the login metrics with reg
func NewMetrics(reg prometheus.Registerer, gauges Gauges) *Metrics {
	m := &Metrics{
		started: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "oauth_login_started_total",
			Help: "Logins redirected to the identity provider",
		}),
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "oauth_login_attempts_total",
			Help: "Completed login callbacks by outcome",
		}, []string{"outcome"}),
		logouts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "oauth_logouts_total",
			Help: "Logout requests",
		}),
	}
	for _, outcome := range []string{outcomeSuccess, outcomeDenied, outcomeProviderError, outcomeInvalidState} {
		m.attempts.WithLabelValues(outcome)
	}

	reg.MustRegister(
		m.started,
		m.attempts,
		m.logouts,
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "oauth_active_sessions",
			Help: "Unexpired sessions held by the session store",
		}, gauges.ActiveSessions),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "oauth_login_pending_flows",
			Help: "Logins redirected to the provider and not yet called back",
		}, gauges.PendingFlows),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "oauth_auth_rate_limited_clients",
			Help: "Client addresses tracked by the /auth rate limiter",
		}, gauges.LimitedClients),
	)
	return m
}

func (m *Metrics) RecordStarted() {
	m.started.Inc()
}

func (m *Metrics) RecordAttempt(outcome string) {
	m.attempts.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RecordLogout() {
	m.logouts.Inc()
}
