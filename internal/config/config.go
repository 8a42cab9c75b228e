package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	apperrors "github.com/jrsteele09/go-oauth-login/internal/errors"
)

type Config interface {
	EnvConfig
	ProviderConfig
	SessionConfig
	SecurityConfig
}

type EnvConfig interface {
	GetPort() string
	GetAppName() string
	GetEnv() string
	GetLogLevel() string
}

type ProviderConfig interface {
	GetProviderName() string
	GetClientID() string
	GetClientSecret() string
	GetCallbackURL() string
	GetIssuerURL() string
	GetAuthURL() string
	GetTokenURL() string
	GetUserInfoURL() string
	GetScopes() []string
	GetProviderTimeout() time.Duration
}

type SessionConfig interface {
	GetSessionSecret() string
	GetSessionMaxAge() time.Duration
	GetSessionStore() string
	GetSessionDBPath() string
	GetSessionSweepInterval() time.Duration
	GetCookieSecure() bool
}

type mainConfig struct {
	EnvVars
	Provider
	Session
	Security
}

// Load reads the configuration from the environment. Missing credentials are
// reported as ErrConfigMissing and should abort startup.
func Load() (Config, error) {
	var c mainConfig
	if err := env.Parse(&c); err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrConfigInvalid, err)
	}
	if err := validate(c); err != nil {
		return nil, err
	}
	return c, nil
}

func validate(c mainConfig) error {
	required := []struct {
		key   string
		value string
	}{
		{sessionSecretVar, c.SessionSecret},
		{clientIDVar, c.ClientID},
		{clientSecretVar, c.ClientSecret},
		{callbackURLVar, c.CallbackURL},
	}
	for _, r := range required {
		if r.value == "" {
			return fmt.Errorf("%w: %s is required", apperrors.ErrConfigMissing, r.key)
		}
	}

	if len(c.Scopes) == 0 {
		return fmt.Errorf("%w: %s must name at least one scope", apperrors.ErrConfigInvalid, scopesVar)
	}
	if c.ProviderTimeout <= 0 {
		return fmt.Errorf("%w: %s must be positive", apperrors.ErrConfigInvalid, providerTimeoutVar)
	}
	if c.SessionMaxAge <= 0 {
		return fmt.Errorf("%w: %s must be positive", apperrors.ErrConfigInvalid, sessionMaxAgeVar)
	}
	if c.SweepInterval <= 0 {
		return fmt.Errorf("%w: %s must be positive", apperrors.ErrConfigInvalid, sweepIntervalVar)
	}
	if c.AuthRateBurst <= 0 {
		return fmt.Errorf("%w: %s must be positive", apperrors.ErrConfigInvalid, authRateBurstVar)
	}
	if c.AuthRatePerSecond < 0 {
		return fmt.Errorf("%w: %s must not be negative", apperrors.ErrConfigInvalid, authRateLimitVar)
	}
	switch c.Store {
	case StoreMemory, StoreSQLite:
	default:
		return fmt.Errorf("%w: %s must be %q or %q", apperrors.ErrConfigInvalid, sessionStoreVar, StoreMemory, StoreSQLite)
	}
	return nil
}
