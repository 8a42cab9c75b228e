package config

import (
	"strings"
	"time"
)

const (
	sessionSecretVar   = "SESSION_SECRET"
	clientIDVar        = "OAUTH_CLIENT_ID"
	clientSecretVar    = "OAUTH_CLIENT_SECRET"
	callbackURLVar     = "OAUTH_CALLBACK_URL"
	scopesVar          = "OAUTH_SCOPES"
	providerTimeoutVar = "OAUTH_TIMEOUT"
	sessionMaxAgeVar   = "SESSION_MAX_AGE"
	sessionStoreVar    = "SESSION_STORE"
	sweepIntervalVar   = "SESSION_SWEEP_INTERVAL"
	authRateLimitVar   = "AUTH_RATE_LIMIT"
	authRateBurstVar   = "AUTH_RATE_BURST"
)

// Session store backends
const (
	StoreMemory = "memory"
	StoreSQLite = "sqlite"
)

type EnvVars struct {
	Port     string `env:"PORT" envDefault:"3000"`
	AppName  string `env:"APP_NAME" envDefault:"OAuth Login"`
	Env      string `env:"ENV" envDefault:"DEV"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

var _ EnvConfig = EnvVars{}

func (e EnvVars) GetPort() string {
	if strings.HasPrefix(e.Port, ":") {
		return e.Port
	}
	return ":" + e.Port
}

func (e EnvVars) GetAppName() string {
	return e.AppName
}

func (e EnvVars) GetEnv() string {
	return e.Env
}

func (e EnvVars) GetLogLevel() string {
	return e.LogLevel
}

type Provider struct {
	Name            string        `env:"OAUTH_PROVIDER" envDefault:"google"`
	ClientID        string        `env:"OAUTH_CLIENT_ID"`
	ClientSecret    string        `env:"OAUTH_CLIENT_SECRET"`
	CallbackURL     string        `env:"OAUTH_CALLBACK_URL"`
	IssuerURL       string        `env:"OAUTH_ISSUER_URL"`
	AuthURL         string        `env:"OAUTH_AUTH_URL"`
	TokenURL        string        `env:"OAUTH_TOKEN_URL"`
	UserInfoURL     string        `env:"OAUTH_USERINFO_URL"`
	Scopes          []string      `env:"OAUTH_SCOPES" envDefault:"profile,email" envSeparator:","`
	ProviderTimeout time.Duration `env:"OAUTH_TIMEOUT" envDefault:"10s"`
}

var _ ProviderConfig = Provider{}

func (p Provider) GetProviderName() string { return p.Name }
func (p Provider) GetClientID() string { return p.ClientID }
func (p Provider) GetClientSecret() string { return p.ClientSecret }
func (p Provider) GetCallbackURL() string { return p.CallbackURL }
func (p Provider) GetIssuerURL() string { return p.IssuerURL }
func (p Provider) GetAuthURL() string { return p.AuthURL }
func (p Provider) GetTokenURL() string { return p.TokenURL }
func (p Provider) GetUserInfoURL() string { return p.UserInfoURL }
func (p Provider) GetProviderTimeout() time.Duration { return p.ProviderTimeout }

// GetScopes returns the configured scopes with blanks removed
func (p Provider) GetScopes() []string {
	scopes := make([]string, 0, len(p.Scopes))
	for _, s := range p.Scopes {
		if s = strings.TrimSpace(s); s != "" {
			scopes = append(scopes, s)
		}
	}
	return scopes
}

type Session struct {
	SessionSecret string        `env:"SESSION_SECRET"`
	SessionMaxAge time.Duration `env:"SESSION_MAX_AGE" envDefault:"24h"`
	Store         string        `env:"SESSION_STORE" envDefault:"memory"`
	DBPath        string        `env:"SESSION_DB_PATH" envDefault:"./data/sessions.db"`
	SweepInterval time.Duration `env:"SESSION_SWEEP_INTERVAL" envDefault:"5m"`
	CookieSecure  bool          `env:"COOKIE_SECURE" envDefault:"false"`
}

var _ SessionConfig = Session{}

func (s Session) GetSessionSecret() string { return s.SessionSecret }
func (s Session) GetSessionMaxAge() time.Duration { return s.SessionMaxAge }
func (s Session) GetSessionStore() string { return s.Store }
func (s Session) GetSessionDBPath() string { return s.DBPath }
func (s Session) GetSessionSweepInterval() time.Duration { return s.SweepInterval }
func (s Session) GetCookieSecure() bool { return s.CookieSecure }
