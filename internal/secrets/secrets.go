// Package secrets derives independent keys from the single session secret.
package secrets

import (
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// Key purposes
const (
	PurposeCookieHash  = "session-cookie-hash"
	PurposeCookieBlock = "session-cookie-block"
	PurposeState       = "oauth-state"
)

// Derive returns n bytes of key material bound to purpose
func Derive(secret, purpose string, n int) ([]byte, error) {
	if secret == "" {
		return nil, fmt.Errorf("secret is empty")
	}
	key := make([]byte, n)
	r := hkdf.New(sha256.New, []byte(secret), nil, []byte(purpose))
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("derive %s key: %w", purpose, err)
	}
	return key, nil
}
