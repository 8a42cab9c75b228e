package identity_test

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/go-oauth-login/identity"
	apperrors "github.com/jrsteele09/go-oauth-login/internal/errors"
	"github.com/stretchr/testify/require"
)

const (
	testClientID     = "client-1"
	testClientSecret = "secret-1"
	testRedirectURL  = "http://localhost:3000/auth/google/callback"
	testCode         = "auth-code-1"
	testAccessToken  = "access-token-1"
)

// fakeProvider is a minimal OAuth2 provider with token and userinfo endpoints
type fakeProvider struct {
	server *httptest.Server
	hits   atomic.Int32

	mu           sync.Mutex
	tokenStatus  int
	tokenDelay   time.Duration
	idToken      string
	profile      string
	userStatus   int
	codeVerifier string
}

func newFakeProvider(t *testing.T) *fakeProvider {
	t.Helper()
	fp := &fakeProvider{
		tokenStatus: http.StatusOK,
		userStatus:  http.StatusOK,
		profile:     `{"id":"1234","displayName":"Ada","emails":[{"value":"ada@example.com"}]}`,
	}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /token", fp.token)
	mux.HandleFunc("GET /userinfo", fp.userInfo)
	fp.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fp.hits.Add(1)
		mux.ServeHTTP(w, r)
	}))
	t.Cleanup(fp.server.Close)
	return fp
}

func (fp *fakeProvider) token(w http.ResponseWriter, r *http.Request) {
	fp.mu.Lock()
	status, delay, idToken := fp.tokenStatus, fp.tokenDelay, fp.idToken
	fp.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return
		}
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}
	if r.PostForm.Get("code") != testCode {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"invalid_grant"}`))
		return
	}
	fp.mu.Lock()
	fp.codeVerifier = r.PostForm.Get("code_verifier")
	fp.mu.Unlock()

	if status != http.StatusOK {
		http.Error(w, "boom", status)
		return
	}
	resp := map[string]any{
		"access_token": testAccessToken,
		"token_type":   "Bearer",
		"expires_in":   3600,
	}
	if idToken != "" {
		resp["id_token"] = idToken
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func (fp *fakeProvider) userInfo(w http.ResponseWriter, r *http.Request) {
	fp.mu.Lock()
	status, body := fp.userStatus, fp.profile
	fp.mu.Unlock()

	if r.Header.Get("Authorization") != "Bearer "+testAccessToken {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if status != http.StatusOK {
		http.Error(w, "boom", status)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(body))
}

func (fp *fakeProvider) set(f func(fp *fakeProvider)) {
	fp.mu.Lock()
	defer fp.mu.Unlock()
	f(fp)
}

func (fp *fakeProvider) config() identity.Config {
	return identity.Config{
		Name:         "google",
		ClientID:     testClientID,
		ClientSecret: testClientSecret,
		RedirectURL:  testRedirectURL,
		AuthURL:      fp.server.URL + "/authorize",
		TokenURL:     fp.server.URL + "/token",
		UserInfoURL:  fp.server.URL + "/userinfo",
		Timeout:      2 * time.Second,
	}
}

func newAdapter(t *testing.T, cfg identity.Config) *identity.Adapter {
	t.Helper()
	a, err := identity.New(cfg)
	require.NoError(t, err)
	return a
}

func TestAuthorizationURL(t *testing.T) {
	fp := newFakeProvider(t)
	a := newAdapter(t, fp.config())

	raw := a.AuthorizationURL([]string{"profile", "email"}, identity.Flow{
		State:    "state-1",
		Verifier: "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk",
		Nonce:    "nonce-1",
	})
	u, err := url.Parse(raw)
	require.NoError(t, err)

	provider, _ := url.Parse(fp.server.URL)
	require.Equal(t, provider.Host, u.Host)
	require.Equal(t, "/authorize", u.Path)

	q := u.Query()
	require.Equal(t, "profile email", q.Get("scope"))
	require.Equal(t, testClientID, q.Get("client_id"))
	require.Equal(t, testRedirectURL, q.Get("redirect_uri"))
	require.Equal(t, "code", q.Get("response_type"))
	require.Equal(t, "state-1", q.Get("state"))
	require.Equal(t, "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM", q.Get("code_challenge"))
	require.Equal(t, "S256", q.Get("code_challenge_method"))
	require.Equal(t, "nonce-1", q.Get("nonce"))
	require.Zero(t, fp.hits.Load())
}

func TestAuthorizationURL_Minimal(t *testing.T) {
	fp := newFakeProvider(t)
	a := newAdapter(t, fp.config())

	u, err := url.Parse(a.AuthorizationURL([]string{"email"}, identity.Flow{State: "s"}))
	require.NoError(t, err)
	require.Equal(t, "email", u.Query().Get("scope"))
	require.False(t, u.Query().Has("code_challenge"))
	require.False(t, u.Query().Has("nonce"))
}

func TestNew_Defaults(t *testing.T) {
	t.Run("google endpoints", func(t *testing.T) {
		a := newAdapter(t, identity.Config{ClientID: testClientID, RedirectURL: testRedirectURL})
		require.Equal(t, "google", a.Name())

		u, err := url.Parse(a.AuthorizationURL([]string{"profile"}, identity.Flow{State: "s"}))
		require.NoError(t, err)
		require.Equal(t, "accounts.google.com", u.Host)
	})

	t.Run("unknown provider needs endpoints", func(t *testing.T) {
		_, err := identity.New(identity.Config{Name: "acme", ClientID: testClientID})
		require.ErrorIs(t, err, apperrors.ErrConfigMissing)
	})
}

func TestExchange_Denied(t *testing.T) {
	fp := newFakeProvider(t)
	a := newAdapter(t, fp.config())

	t.Run("missing code", func(t *testing.T) {
		_, err := a.Exchange(context.Background(), identity.CallbackParams{})
		require.ErrorIs(t, err, apperrors.ErrAuthDenied)
	})

	t.Run("provider error", func(t *testing.T) {
		_, err := a.Exchange(context.Background(), identity.CallbackParams{Code: testCode, Error: "access_denied"})
		require.ErrorIs(t, err, apperrors.ErrAuthDenied)
	})

	require.Zero(t, fp.hits.Load(), "denied callbacks must not reach the provider")
}

func TestExchange_Success(t *testing.T) {
	fp := newFakeProvider(t)
	a := newAdapter(t, fp.config())

	p, err := a.Exchange(context.Background(), identity.CallbackParams{Code: testCode, Verifier: "verifier-1"})
	require.NoError(t, err)
	require.Equal(t, "google", p.Provider)
	require.Equal(t, "1234", p.ID)
	require.Equal(t, "Ada", p.DisplayName)
	require.Equal(t, []string{"ada@example.com"}, p.Emails)

	fp.mu.Lock()
	defer fp.mu.Unlock()
	require.Equal(t, "verifier-1", fp.codeVerifier)
}

func TestExchange_ProfileWithoutSubject(t *testing.T) {
	fp := newFakeProvider(t)
	fp.set(func(fp *fakeProvider) {
		fp.profile = `{"displayName":"Ada","emails":[{"value":"ada@example.com"}]}`
	})
	a := newAdapter(t, fp.config())

	p, err := a.Exchange(context.Background(), identity.CallbackParams{Code: testCode})
	require.NoError(t, err)
	require.Equal(t, "google", p.Provider)
	require.Empty(t, p.ID)
	require.Equal(t, "Ada", p.DisplayName)
	require.Equal(t, []string{"ada@example.com"}, p.Emails)
	require.False(t, p.IsZero())
}

func TestExchange_ProfileShapes(t *testing.T) {
	tests := []struct {
		name    string
		profile string
		id      string
		display string
		emails  []string
	}{
		{
			name:    "openid claims",
			profile: `{"sub":"110169484474386276334","name":"Ada Lovelace","email":"ada@example.com","email_verified":true}`,
			id:      "110169484474386276334",
			display: "Ada Lovelace",
			emails:  []string{"ada@example.com"},
		},
		{
			name:    "numeric id and split name",
			profile: `{"id":583231,"given_name":"Grace","family_name":"Hopper","email":"grace@example.com"}`,
			id:      "583231",
			display: "Grace Hopper",
			emails:  []string{"grace@example.com"},
		},
		{
			name:    "duplicate emails",
			profile: `{"id":"7","displayName":"Ada","emails":[{"value":"a@example.com"},{"value":"b@example.com"}],"email":"a@example.com"}`,
			id:      "7",
			display: "Ada",
			emails:  []string{"a@example.com", "b@example.com"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fp := newFakeProvider(t)
			fp.set(func(fp *fakeProvider) { fp.profile = tt.profile })
			a := newAdapter(t, fp.config())

			p, err := a.Exchange(context.Background(), identity.CallbackParams{Code: testCode})
			require.NoError(t, err)
			require.Equal(t, tt.id, p.ID)
			require.Equal(t, tt.display, p.DisplayName)
			require.Equal(t, tt.emails, p.Emails)
		})
	}
}

func TestExchange_ProviderErrors(t *testing.T) {
	tests := []struct {
		name   string
		setup  func(fp *fakeProvider)
		params identity.CallbackParams
	}{
		{
			name:   "token endpoint failure",
			setup:  func(fp *fakeProvider) { fp.tokenStatus = http.StatusInternalServerError },
			params: identity.CallbackParams{Code: testCode},
		},
		{
			name:   "invalid grant",
			setup:  func(fp *fakeProvider) {},
			params: identity.CallbackParams{Code: "stale-code"},
		},
		{
			name:   "userinfo failure",
			setup:  func(fp *fakeProvider) { fp.userStatus = http.StatusBadGateway },
			params: identity.CallbackParams{Code: testCode},
		},
		{
			name:   "malformed profile",
			setup:  func(fp *fakeProvider) { fp.profile = `{"id":` },
			params: identity.CallbackParams{Code: testCode},
		},
		{
			name:   "empty profile",
			setup:  func(fp *fakeProvider) { fp.profile = `{"displayName":"  ","emails":[{"value":""}]}` },
			params: identity.CallbackParams{Code: testCode},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fp := newFakeProvider(t)
			fp.set(tt.setup)
			a := newAdapter(t, fp.config())

			_, err := a.Exchange(context.Background(), tt.params)
			require.ErrorIs(t, err, apperrors.ErrProviderError)
			require.NotErrorIs(t, err, apperrors.ErrAuthDenied)
		})
	}
}

func TestExchange_Timeout(t *testing.T) {
	fp := newFakeProvider(t)
	fp.set(func(fp *fakeProvider) { fp.tokenDelay = time.Second })
	cfg := fp.config()
	cfg.Timeout = 50 * time.Millisecond
	a := newAdapter(t, cfg)

	start := time.Now()
	_, err := a.Exchange(context.Background(), identity.CallbackParams{Code: testCode})
	require.ErrorIs(t, err, apperrors.ErrProviderError)
	require.Less(t, time.Since(start), 900*time.Millisecond)
}

func TestExchange_ProviderUnreachable(t *testing.T) {
	fp := newFakeProvider(t)
	cfg := fp.config()
	fp.server.Close()
	a := newAdapter(t, cfg)

	_, err := a.Exchange(context.Background(), identity.CallbackParams{Code: testCode})
	require.ErrorIs(t, err, apperrors.ErrProviderError)
}

func signIDToken(t *testing.T, key *rsa.PrivateKey, claims jwt.MapClaims) string {
	t.Helper()
	raw, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(key)
	require.NoError(t, err)
	return raw
}

func TestExchange_IDToken(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	claims := func(issuer, sub, nonce string) jwt.MapClaims {
		return jwt.MapClaims{
			"iss":   issuer,
			"aud":   testClientID,
			"sub":   sub,
			"nonce": nonce,
			"iat":   time.Now().Unix(),
			"exp":   time.Now().Add(time.Hour).Unix(),
		}
	}

	setupWithProfile := func(t *testing.T, profile string, idClaims func(issuer string) jwt.MapClaims) *identity.Adapter {
		fp := newFakeProvider(t)
		fp.set(func(fp *fakeProvider) {
			fp.idToken = signIDToken(t, key, idClaims(fp.server.URL))
			if profile != "" {
				fp.profile = profile
			}
		})
		cfg := fp.config()
		cfg.Verifier = oidc.NewVerifier(fp.server.URL,
			&oidc.StaticKeySet{PublicKeys: []crypto.PublicKey{&key.PublicKey}},
			&oidc.Config{ClientID: testClientID})
		return newAdapter(t, cfg)
	}
	setup := func(t *testing.T, idClaims func(issuer string) jwt.MapClaims) *identity.Adapter {
		return setupWithProfile(t, "", idClaims)
	}

	t.Run("valid", func(t *testing.T) {
		a := setup(t, func(iss string) jwt.MapClaims { return claims(iss, "1234", "nonce-1") })
		p, err := a.Exchange(context.Background(), identity.CallbackParams{Code: testCode, Nonce: "nonce-1"})
		require.NoError(t, err)
		require.Equal(t, "1234", p.ID)
	})

	t.Run("nonce mismatch", func(t *testing.T) {
		a := setup(t, func(iss string) jwt.MapClaims { return claims(iss, "1234", "nonce-2") })
		_, err := a.Exchange(context.Background(), identity.CallbackParams{Code: testCode, Nonce: "nonce-1"})
		require.ErrorIs(t, err, apperrors.ErrProviderError)
	})

	t.Run("subject mismatch", func(t *testing.T) {
		a := setup(t, func(iss string) jwt.MapClaims { return claims(iss, "9999", "nonce-1") })
		_, err := a.Exchange(context.Background(), identity.CallbackParams{Code: testCode, Nonce: "nonce-1"})
		require.ErrorIs(t, err, apperrors.ErrProviderError)
	})

	t.Run("subject from id_token", func(t *testing.T) {
		a := setupWithProfile(t, `{"displayName":"Ada","emails":[{"value":"ada@example.com"}]}`,
			func(iss string) jwt.MapClaims { return claims(iss, "1234", "nonce-1") })
		p, err := a.Exchange(context.Background(), identity.CallbackParams{Code: testCode, Nonce: "nonce-1"})
		require.NoError(t, err)
		require.Equal(t, "1234", p.ID)
		require.Equal(t, "Ada", p.DisplayName)
	})

	t.Run("wrong issuer", func(t *testing.T) {
		a := setup(t, func(string) jwt.MapClaims { return claims("https://evil.example.com", "1234", "nonce-1") })
		_, err := a.Exchange(context.Background(), identity.CallbackParams{Code: testCode, Nonce: "nonce-1"})
		require.ErrorIs(t, err, apperrors.ErrProviderError)
	})
}

func TestNewFromIssuer(t *testing.T) {
	fp := newFakeProvider(t)
	var discovery *httptest.Server
	discovery = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/.well-known/openid-configuration" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"issuer":                 discovery.URL,
			"authorization_endpoint": fp.server.URL + "/authorize",
			"token_endpoint":         fp.server.URL + "/token",
			"userinfo_endpoint":      fp.server.URL + "/userinfo",
			"jwks_uri":               discovery.URL + "/jwks",
		})
	}))
	t.Cleanup(discovery.Close)

	a, err := identity.NewFromIssuer(context.Background(), discovery.URL, identity.Config{
		Name:         "acme",
		ClientID:     testClientID,
		ClientSecret: testClientSecret,
		RedirectURL:  testRedirectURL,
	})
	require.NoError(t, err)
	require.Equal(t, "acme", a.Name())

	u, err := url.Parse(a.AuthorizationURL([]string{"openid", "email"}, identity.Flow{State: "s"}))
	require.NoError(t, err)
	require.Equal(t, fp.server.URL+"/authorize", u.Scheme+"://"+u.Host+u.Path)

	// no id_token in the response, so the profile comes from the discovered userinfo endpoint
	p, err := a.Exchange(context.Background(), identity.CallbackParams{Code: testCode})
	require.NoError(t, err)
	require.Equal(t, "Ada", p.DisplayName)
}

func TestNewFromIssuer_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	_, err := identity.NewFromIssuer(context.Background(), srv.URL, identity.Config{ClientID: testClientID})
	require.ErrorIs(t, err, apperrors.ErrProviderError)
}
