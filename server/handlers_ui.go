package server

import (
	"encoding/json"
	"net/http"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/jrsteele09/go-oauth-login/principal"
)

// UIPageData is the template model for every page
type UIPageData struct {
	AppName       string
	ProviderTitle string
	LoginURL      string
	LoggedIn      bool
	Principal     principal.Principal
}

func (s *Server) pageData(p principal.Principal, loggedIn bool) UIPageData {
	return UIPageData{
		AppName:       s.config.GetAppName(),
		ProviderTitle: providerTitle(s.provider.Name()),
		LoginURL:      authPath(s.provider.Name()),
		LoggedIn:      loggedIn,
		Principal:     p,
	}
}

// currentPrincipal resolves the session cookie. A cookie that cannot be
// decoded or points at no live session counts as logged out.
func (s *Server) currentPrincipal(r *http.Request) (principal.Principal, bool) {
	token, err := s.cookies.SessionToken(r)
	if err != nil {
		return principal.Principal{}, false
	}
	return s.sessions.Resolve(r.Context(), token)
}

// HomeHandler greets the visitor and offers the login link
func (s *Server) HomeHandler() http.HandlerFunc {
	tmpl := mustParseTemplate("home.html")
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := s.currentPrincipal(r)
		render(w, r, tmpl, http.StatusOK, s.pageData(p, ok))
	}
}

// ProfileHandler shows the logged in principal, or sends anonymous visitors home
func (s *Server) ProfileHandler() http.HandlerFunc {
	tmpl := mustParseTemplate("profile.html")
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := s.currentPrincipal(r)
		if !ok {
			redirect(w, r, RouteHome)
			return
		}
		render(w, r, tmpl, http.StatusOK, s.pageData(p, true))
	}
}

func (s *Server) LoginFailHandler() http.HandlerFunc {
	tmpl := mustParseTemplate("login_fail.html")
	return func(w http.ResponseWriter, r *http.Request) {
		render(w, r, tmpl, http.StatusOK, s.pageData(principal.Principal{}, false))
	}
}

func (s *Server) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}
}

// providerTitle turns "google" into "Google" for display
func providerTitle(name string) string {
	r, size := utf8.DecodeRuneInString(name)
	if r == utf8.RuneError {
		return name
	}
	return string(unicode.ToUpper(r)) + strings.ToLower(name[size:])
}
