// Package identity speaks the OAuth2 authorization-code flow to a single
// external identity provider and maps the returned profile to a Principal.
package identity

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	apperrors "github.com/jrsteele09/go-oauth-login/internal/errors"
	"github.com/jrsteele09/go-oauth-login/principal"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"
)

const (
	googleProvider    = "google"
	googleUserInfoURL = "https://openidconnect.googleapis.com/v1/userinfo"

	defaultTimeout = 10 * time.Second
)

// Config describes the client registration at the provider. Empty endpoint
// URLs fall back to the provider's well-known values where one exists.
type Config struct {
	Name         string
	ClientID     string
	ClientSecret string
	RedirectURL  string

	AuthURL     string
	TokenURL    string
	UserInfoURL string

	// Timeout bounds the whole server-to-server exchange
	Timeout    time.Duration
	HTTPClient *http.Client
	Verifier   IDTokenVerifier
}

// IDTokenVerifier is satisfied by *oidc.IDTokenVerifier
type IDTokenVerifier interface {
	Verify(ctx context.Context, rawIDToken string) (*oidc.IDToken, error)
}

// Flow carries the per-login values added to the authorization request
type Flow struct {
	State    string
	Verifier string // PKCE code verifier, sent as an S256 challenge
	Nonce    string
}

// CallbackParams are the values returned on the redirect back from the provider
type CallbackParams struct {
	Code             string
	Error            string
	ErrorDescription string
	Verifier         string
	Nonce            string
}

// Adapter is the client side of one OAuth2 provider
type Adapter struct {
	name        string
	oauth       oauth2.Config
	userInfoURL string
	timeout     time.Duration
	client      *http.Client
	verifier    IDTokenVerifier
}

// New creates an adapter with static endpoints
func New(cfg Config) (*Adapter, error) {
	if cfg.Name == "" {
		cfg.Name = googleProvider
	}
	if cfg.Name == googleProvider {
		if cfg.AuthURL == "" {
			cfg.AuthURL = endpoints.Google.AuthURL
		}
		if cfg.TokenURL == "" {
			cfg.TokenURL = endpoints.Google.TokenURL
		}
		if cfg.UserInfoURL == "" {
			cfg.UserInfoURL = googleUserInfoURL
		}
	}
	if cfg.AuthURL == "" || cfg.TokenURL == "" {
		return nil, fmt.Errorf("%w: provider %q needs authorization and token URLs", apperrors.ErrConfigMissing, cfg.Name)
	}
	if cfg.UserInfoURL == "" && cfg.Verifier == nil {
		return nil, fmt.Errorf("%w: provider %q needs a userinfo URL or an id_token verifier", apperrors.ErrConfigMissing, cfg.Name)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}

	return &Adapter{
		name: cfg.Name,
		oauth: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint: oauth2.Endpoint{
				AuthURL:  cfg.AuthURL,
				TokenURL: cfg.TokenURL,
			},
		},
		userInfoURL: cfg.UserInfoURL,
		timeout:     cfg.Timeout,
		client:      client,
		verifier:    cfg.Verifier,
	}, nil
}

// NewFromIssuer discovers the provider's endpoints from its OpenID
// configuration and verifies id_tokens returned by the exchange.
func NewFromIssuer(ctx context.Context, issuerURL string, cfg Config) (*Adapter, error) {
	if cfg.HTTPClient != nil {
		ctx = oidc.ClientContext(ctx, cfg.HTTPClient)
	}
	provider, err := oidc.NewProvider(ctx, issuerURL)
	if err != nil {
		return nil, fmt.Errorf("%w: discover %s: %w", apperrors.ErrProviderError, issuerURL, err)
	}

	var discovered struct {
		UserInfoURL string `json:"userinfo_endpoint"`
	}
	if err := provider.Claims(&discovered); err != nil {
		return nil, fmt.Errorf("%w: read discovery document: %w", apperrors.ErrProviderError, err)
	}

	endpoint := provider.Endpoint()
	if cfg.AuthURL == "" {
		cfg.AuthURL = endpoint.AuthURL
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = endpoint.TokenURL
	}
	if cfg.UserInfoURL == "" {
		cfg.UserInfoURL = discovered.UserInfoURL
	}
	if cfg.Verifier == nil {
		cfg.Verifier = provider.Verifier(&oidc.Config{ClientID: cfg.ClientID})
	}
	return New(cfg)
}

// Name is the provider name used in routes and on the Principal
func (a *Adapter) Name() string {
	return a.name
}

// AuthorizationURL builds the provider URL the browser is sent to. The scope
// parameter carries exactly the given scopes.
func (a *Adapter) AuthorizationURL(scopes []string, flow Flow) string {
	c := a.oauth
	c.Scopes = scopes

	var opts []oauth2.AuthCodeOption
	if flow.Verifier != "" {
		opts = append(opts, oauth2.S256ChallengeOption(flow.Verifier))
	}
	if flow.Nonce != "" {
		opts = append(opts, oidc.Nonce(flow.Nonce))
	}
	return c.AuthCodeURL(flow.State, opts...)
}

// Exchange trades the callback's authorization code for the user's profile.
// A provider error or a missing code fails with ErrAuthDenied before any
// network call; everything that goes wrong talking to the provider fails
// with ErrProviderError.
func (a *Adapter) Exchange(ctx context.Context, params CallbackParams) (principal.Principal, error) {
	if params.Error != "" {
		return principal.Principal{}, fmt.Errorf("%w: %s %s", apperrors.ErrAuthDenied, params.Error, params.ErrorDescription)
	}
	if params.Code == "" {
		return principal.Principal{}, fmt.Errorf("%w: missing authorization code", apperrors.ErrAuthDenied)
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	ctx = context.WithValue(ctx, oauth2.HTTPClient, a.client)

	var opts []oauth2.AuthCodeOption
	if params.Verifier != "" {
		opts = append(opts, oauth2.VerifierOption(params.Verifier))
	}
	token, err := a.oauth.Exchange(ctx, params.Code, opts...)
	if err != nil {
		return principal.Principal{}, providerError("token exchange", err)
	}

	var idToken *oidc.IDToken
	if raw, ok := token.Extra("id_token").(string); ok && raw != "" && a.verifier != nil {
		if idToken, err = a.verifyIDToken(ctx, raw, params.Nonce); err != nil {
			return principal.Principal{}, err
		}
	}

	var p profile
	switch {
	case a.userInfoURL != "":
		if p, err = a.fetchProfile(ctx, token); err != nil {
			return principal.Principal{}, err
		}
	case idToken != nil:
		if err := idToken.Claims(&p); err != nil {
			return principal.Principal{}, providerError("id_token claims", err)
		}
	default:
		return principal.Principal{}, providerError("profile", errors.New("no userinfo endpoint and no id_token"))
	}

	// Some providers omit the subject from the profile; the name or an email
	// is then all there is to show.
	id := p.id()
	if idToken != nil {
		switch {
		case id == "":
			id = idToken.Subject
		case idToken.Subject != id:
			return principal.Principal{}, providerError("profile", errors.New("id_token subject does not match profile"))
		}
	}
	user := principal.New(a.name, id, p.displayName(), p.emails()...)
	if user.IsZero() {
		return principal.Principal{}, providerError("profile", errors.New("profile has no subject, name or email"))
	}
	return user, nil
}

func (a *Adapter) verifyIDToken(ctx context.Context, raw, nonce string) (*oidc.IDToken, error) {
	idToken, err := a.verifier.Verify(ctx, raw)
	if err != nil {
		return nil, providerError("id_token", err)
	}
	if nonce != "" && idToken.Nonce != nonce {
		return nil, providerError("id_token", errors.New("nonce mismatch"))
	}
	return idToken, nil
}

func (a *Adapter) fetchProfile(ctx context.Context, token *oauth2.Token) (profile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.userInfoURL, nil)
	if err != nil {
		return profile{}, providerError("userinfo request", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := a.oauth.Client(ctx, token).Do(req)
	if err != nil {
		return profile{}, providerError("userinfo", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return profile{}, providerError("userinfo", fmt.Errorf("status %d", resp.StatusCode))
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" && !strings.Contains(ct, "json") {
		return profile{}, providerError("userinfo", fmt.Errorf("unexpected content type %q", ct))
	}
	return decodeProfile(resp.Body)
}

func providerError(step string, err error) error {
	return fmt.Errorf("%w: %s: %w", apperrors.ErrProviderError, step, err)
}
