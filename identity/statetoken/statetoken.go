// Package statetoken issues the signed, short-lived values sent as the OAuth2
// state parameter.
package statetoken

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	apperrors "github.com/jrsteele09/go-oauth-login/internal/errors"
)

const issuer = "oauth-login"

// DefaultTTL is how long a user has to complete the provider's login
const DefaultTTL = 10 * time.Minute

// NowTimeFunc returns the current time. It can be overridden in tests.
var NowTimeFunc = time.Now

type Issuer struct {
	key []byte
	ttl time.Duration
}

func New(key []byte, ttl time.Duration) *Issuer {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Issuer{key: key, ttl: ttl}
}

// TTL is the lifetime of issued tokens
func (i *Issuer) TTL() time.Duration {
	return i.ttl
}

// Issue signs a state token that carries the flow id
func (i *Issuer) Issue(flowID string) (string, error) {
	now := NowTimeFunc()
	claims := jwt.RegisteredClaims{
		ID:        flowID,
		Issuer:    issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.key)
	if err != nil {
		return "", fmt.Errorf("sign state: %w", err)
	}
	return signed, nil
}

// Parse verifies a state token and returns its flow id
func (i *Issuer) Parse(token string) (string, error) {
	if token == "" {
		return "", fmt.Errorf("%w: empty", apperrors.ErrInvalidState)
	}

	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(token, &claims,
		func(*jwt.Token) (interface{}, error) { return i.key, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(NowTimeFunc),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %w", apperrors.ErrInvalidState, err)
	}
	if claims.ID == "" {
		return "", fmt.Errorf("%w: no flow id", apperrors.ErrInvalidState)
	}
	return claims.ID, nil
}
