package server

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jrsteele09/go-oauth-login/identity"
	apperrors "github.com/jrsteele09/go-oauth-login/internal/errors"
	"github.com/jrsteele09/go-oauth-login/server/authflowrepo"
	"github.com/rs/zerolog/hlog"
	"golang.org/x/oauth2"
)

// AuthInitiateHandler starts the authorization-code flow: it remembers the
// PKCE verifier and nonce under a fresh flow id and redirects to the provider
func (s *Server) AuthInitiateHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.knownProvider(r) {
			http.NotFound(w, r)
			return
		}
		logger := hlog.FromRequest(r)

		flowID := uuid.NewString()
		state, err := s.states.Issue(flowID)
		if err != nil {
			logger.Err(err).Msg("Failed to issue state")
			redirectLoginFail(w, r)
			return
		}

		flow := identity.Flow{
			State:    state,
			Verifier: oauth2.GenerateVerifier(),
			Nonce:    generateRandomString(16),
		}
		err = s.authFlows.Put(flowID, &authflowrepo.AuthFlowState{
			Provider:     s.provider.Name(),
			CodeVerifier: flow.Verifier,
			Nonce:        flow.Nonce,
			ReturnURL:    RouteProfile,
		})
		if err != nil {
			logger.Err(err).Msg("Failed to store login flow")
			redirectLoginFail(w, r)
			return
		}
		if err := s.cookies.SetFlow(w, r, flowID); err != nil {
			logger.Err(err).Msg("Failed to set flow cookie")
			redirectLoginFail(w, r)
			return
		}

		s.metrics.RecordStarted()
		redirect(w, r, s.provider.AuthorizationURL(s.config.GetScopes(), flow))
	}
}

// AuthCallbackHandler completes the flow. Every failure ends on the failure
// view; a success binds the principal to a new session.
func (s *Server) AuthCallbackHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.knownProvider(r) {
			http.NotFound(w, r)
			return
		}
		logger := hlog.FromRequest(r)
		ctx := r.Context()
		query := r.URL.Query()

		flow, err := s.takeFlow(w, r, query.Get("state"))
		if err != nil {
			logger.Warn().Err(err).Msg("Rejected login callback")
			s.metrics.RecordAttempt(outcomeInvalidState)
			redirectLoginFail(w, r)
			return
		}

		params := identity.CallbackParams{
			Code:             query.Get("code"),
			Error:            query.Get("error"),
			ErrorDescription: query.Get("error_description"),
			Verifier:         flow.CodeVerifier,
			Nonce:            flow.Nonce,
		}
		if params.Error != "" || params.Code == "" {
			logger.Info().Str("error", params.Error).Msg("Login denied at provider")
			s.metrics.RecordAttempt(outcomeDenied)
			redirectLoginFail(w, r)
			return
		}

		p, err := s.provider.Exchange(ctx, params)
		switch {
		case err == nil:
		case apperrors.Is(err, apperrors.ErrAuthDenied):
			logger.Info().Err(err).Msg("Login denied")
			s.metrics.RecordAttempt(outcomeDenied)
			redirectLoginFail(w, r)
			return
		default:
			logger.Err(err).Msg("Login failed")
			s.metrics.RecordAttempt(outcomeProviderError)
			redirectLoginFail(w, r)
			return
		}

		previous, _ := s.cookies.SessionToken(r)
		token, err := s.sessions.CreateOrUpdate(ctx, previous, p)
		if err != nil {
			logger.Err(err).Msg("Failed to create session")
			s.metrics.RecordAttempt(outcomeProviderError)
			redirectLoginFail(w, r)
			return
		}
		if err := s.cookies.SetSession(w, r, token); err != nil {
			logger.Err(err).Msg("Failed to set session cookie")
			redirectLoginFail(w, r)
			return
		}

		logger.Info().Str("provider", p.Provider).Str("subject", p.ID).Msg("Login succeeded")
		s.metrics.RecordAttempt(outcomeSuccess)
		redirect(w, r, flow.ReturnURL)
	}
}

// takeFlow validates the state parameter against the flow cookie and consumes
// the stored flow, so each state can complete at most once
func (s *Server) takeFlow(w http.ResponseWriter, r *http.Request, state string) (*authflowrepo.AuthFlowState, error) {
	cookieFlowID, cookieErr := s.cookies.FlowID(r)
	if cookieErr == nil || !apperrors.Is(cookieErr, apperrors.ErrSessionNotFound) {
		s.cookies.ClearFlow(w, r)
	}

	flowID, err := s.states.Parse(state)
	if err != nil {
		return nil, err
	}
	if cookieErr != nil {
		return nil, errors.Join(apperrors.ErrInvalidState, cookieErr)
	}
	if cookieFlowID != flowID {
		return nil, apperrors.Wrapf(apperrors.ErrInvalidState, "flow cookie does not match state")
	}

	flow, err := s.authFlows.Take(flowID)
	if err != nil {
		return nil, err
	}
	if flow.Provider != s.provider.Name() {
		return nil, apperrors.Wrapf(apperrors.ErrInvalidState, "flow started for provider %q", flow.Provider)
	}
	if flow.ReturnURL == "" {
		flow.ReturnURL = RouteProfile
	}
	return flow, nil
}

// LogoutHandler ends the session, if any, and always lands on the home page
func (s *Server) LogoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if token, err := s.cookies.SessionToken(r); err == nil {
			if err := s.sessions.Destroy(r.Context(), token); err != nil {
				hlog.FromRequest(r).Err(err).Msg("Failed to destroy session")
			}
		}
		s.cookies.ClearSession(w, r)
		s.metrics.RecordLogout()
		redirect(w, r, RouteHome)
	}
}

func (s *Server) knownProvider(r *http.Request) bool {
	return chi.URLParam(r, "provider") == s.provider.Name()
}
