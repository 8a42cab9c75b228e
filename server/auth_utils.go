package server

import (
	"crypto/rand"
	"encoding/base64"
	"net/http"
)

// generateRandomString creates a random base64url string
func generateRandomString(length int) string {
	b := make([]byte, length)
	rand.Read(b)
	return base64.RawURLEncoding.EncodeToString(b)
}

// redirect sends a 302 so the browser repeats the request as a GET
func redirect(w http.ResponseWriter, r *http.Request, path string) {
	http.Redirect(w, r, path, http.StatusFound)
}

// redirectLoginFail sends the browser to the failure view. No details are
// passed along; the cause is only logged.
func redirectLoginFail(w http.ResponseWriter, r *http.Request) {
	redirect(w, r, RouteLoginFail)
}
