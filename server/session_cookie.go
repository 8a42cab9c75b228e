package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/securecookie"
	"github.com/gorilla/sessions"
	apperrors "github.com/jrsteele09/go-oauth-login/internal/errors"
	"github.com/jrsteele09/go-oauth-login/internal/secrets"
)

const (
	// sessionCookieName carries the session token for a logged in browser
	sessionCookieName = "sid"
	// flowCookieName ties a callback to the browser that started the login
	flowCookieName = "oauth_flow"
	flowCookiePath = "/auth"
)

// cookieCodec signs and encrypts cookie values with keys derived from the
// session secret
type cookieCodec struct {
	codec   *securecookie.SecureCookie
	secure  bool
	session sessions.Options
	flow    sessions.Options
}

func newCookieCodec(secret string, sessionMaxAge, flowTTL time.Duration, secure bool) (*cookieCodec, error) {
	hashKey, err := secrets.Derive(secret, secrets.PurposeCookieHash, 32)
	if err != nil {
		return nil, err
	}
	blockKey, err := secrets.Derive(secret, secrets.PurposeCookieBlock, 32)
	if err != nil {
		return nil, err
	}

	codec := securecookie.New(hashKey, blockKey)
	codec.MaxAge(int(max(sessionMaxAge, flowTTL).Seconds()))

	return &cookieCodec{
		codec:  codec,
		secure: secure,
		session: sessions.Options{
			Path:     "/",
			MaxAge:   int(sessionMaxAge.Seconds()),
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		},
		flow: sessions.Options{
			Path:     flowCookiePath,
			MaxAge:   int(flowTTL.Seconds()),
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		},
	}, nil
}

func (c *cookieCodec) SetSession(w http.ResponseWriter, r *http.Request, token string) error {
	return c.set(w, r, sessionCookieName, token, c.session)
}

// SessionToken returns ErrSessionNotFound when there is no cookie and
// ErrSessionInvalid when the cookie fails verification
func (c *cookieCodec) SessionToken(r *http.Request) (string, error) {
	return c.get(r, sessionCookieName)
}

func (c *cookieCodec) ClearSession(w http.ResponseWriter, r *http.Request) {
	c.clear(w, r, sessionCookieName, c.session)
}

func (c *cookieCodec) SetFlow(w http.ResponseWriter, r *http.Request, flowID string) error {
	return c.set(w, r, flowCookieName, flowID, c.flow)
}

func (c *cookieCodec) FlowID(r *http.Request) (string, error) {
	return c.get(r, flowCookieName)
}

func (c *cookieCodec) ClearFlow(w http.ResponseWriter, r *http.Request) {
	c.clear(w, r, flowCookieName, c.flow)
}

func (c *cookieCodec) set(w http.ResponseWriter, r *http.Request, name, value string, opts sessions.Options) error {
	encoded, err := c.codec.Encode(name, value)
	if err != nil {
		return fmt.Errorf("encode %s cookie: %w", name, err)
	}
	opts.Secure = c.secure || getScheme(r) == "https"
	http.SetCookie(w, sessions.NewCookie(name, encoded, &opts))
	return nil
}

func (c *cookieCodec) get(r *http.Request, name string) (string, error) {
	cookie, err := r.Cookie(name)
	if err != nil || cookie.Value == "" {
		return "", apperrors.ErrSessionNotFound
	}
	var value string
	if err := c.codec.Decode(name, cookie.Value, &value); err != nil {
		return "", fmt.Errorf("%w: %s cookie: %w", apperrors.ErrSessionInvalid, name, err)
	}
	return value, nil
}

func (c *cookieCodec) clear(w http.ResponseWriter, r *http.Request, name string, opts sessions.Options) {
	opts.MaxAge = -1
	opts.Secure = c.secure || getScheme(r) == "https"
	http.SetCookie(w, sessions.NewCookie(name, "", &opts))
}
