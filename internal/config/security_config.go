package config

import "golang.org/x/time/rate"

type SecurityConfig interface {
	GetAuthRateLimit() rate.Limit
	GetAuthRateBurst() int
}

// Security holds the per-client limits applied to the /auth routes
type Security struct {
	AuthRatePerSecond float64 `env:"AUTH_RATE_LIMIT" envDefault:"1"`
	AuthRateBurst     int     `env:"AUTH_RATE_BURST" envDefault:"10"`
}

var _ SecurityConfig = Security{}

func (s Security) GetAuthRateLimit() rate.Limit {
	return rate.Limit(s.AuthRatePerSecond)
}

func (s Security) GetAuthRateBurst() int {
	return s.AuthRateBurst
}
