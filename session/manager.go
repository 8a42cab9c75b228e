package session

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	apperrors "github.com/jrsteele09/go-oauth-login/internal/errors"
	"github.com/jrsteele09/go-oauth-login/principal"
	"github.com/rs/zerolog/log"
)

// NowTimeFunc returns the current time. It can be overridden in tests.
var NowTimeFunc = time.Now

const DefaultSweepInterval = 5 * time.Minute

// Manager binds opaque session tokens to principals on top of a Repo
type Manager struct {
	repo   Repo
	maxAge time.Duration
}

// NewManager creates a session manager whose sessions live for maxAge
func NewManager(repo Repo, maxAge time.Duration) *Manager {
	return &Manager{
		repo:   repo,
		maxAge: maxAge,
	}
}

// MaxAge is the lifetime given to new sessions
func (m *Manager) MaxAge() time.Duration {
	return m.maxAge
}

// CreateOrUpdate starts a new session for p and returns its token. When the
// browser already held a session token it is destroyed, so a login always
// yields a fresh token.
func (m *Manager) CreateOrUpdate(ctx context.Context, previous string, p principal.Principal) (string, error) {
	if p.IsZero() {
		return "", fmt.Errorf("principal is empty")
	}
	if previous != "" {
		if err := m.repo.Delete(ctx, previous); err != nil {
			return "", fmt.Errorf("destroy previous session: %w", err)
		}
	}

	now := NowTimeFunc()
	s := Session{
		Token:     uuid.NewString(),
		Principal: p.Clone(),
		CreatedAt: now,
		ExpiresAt: now.Add(m.maxAge),
	}
	if err := m.repo.Upsert(ctx, s); err != nil {
		return "", fmt.Errorf("store session: %w", err)
	}
	return s.Token, nil
}

// Lookup returns the session for token. Expired sessions are removed and
// reported as ErrSessionExpired.
func (m *Manager) Lookup(ctx context.Context, token string) (Session, error) {
	s, err := m.repo.Get(ctx, token)
	if err != nil {
		return Session{}, err
	}
	if s.Expired(NowTimeFunc()) {
		if err := m.repo.Delete(ctx, token); err != nil {
			log.Err(err).Msg("Failed to delete expired session")
		}
		return Session{}, apperrors.ErrSessionExpired
	}
	return s, nil
}

// Resolve returns the principal bound to token, if the session is valid
func (m *Manager) Resolve(ctx context.Context, token string) (principal.Principal, bool) {
	if token == "" {
		return principal.Principal{}, false
	}
	s, err := m.Lookup(ctx, token)
	if err != nil {
		if !apperrors.Is(err, apperrors.ErrSessionNotFound) && !apperrors.Is(err, apperrors.ErrSessionExpired) {
			log.Err(err).Msg("Failed to resolve session")
		}
		return principal.Principal{}, false
	}
	return s.Principal, true
}

// Destroy invalidates the session. Destroying an unknown token is a no-op.
func (m *Manager) Destroy(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	if err := m.repo.Delete(ctx, token); err != nil {
		return fmt.Errorf("destroy session: %w", err)
	}
	return nil
}

// Sweep removes all expired sessions and returns how many were removed
func (m *Manager) Sweep(ctx context.Context) (int, error) {
	return m.repo.DeleteExpired(ctx, NowTimeFunc())
}

// Active returns the number of unexpired sessions, swept or not
func (m *Manager) Active(ctx context.Context) (int, error) {
	return m.repo.CountActive(ctx, NowTimeFunc())
}

// RunSweeper calls Sweep every interval until ctx is cancelled. A
// non-positive interval falls back to DefaultSweepInterval.
func (m *Manager) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		log.Warn().Dur("interval", interval).Msg("Invalid sweep interval, using default")
		interval = DefaultSweepInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			removed, err := m.Sweep(ctx)
			if err != nil {
				log.Err(err).Msg("Session sweep failed")
				continue
			}
			if removed > 0 {
				log.Debug().Int("removed", removed).Msg("Expired sessions removed")
			}
		case <-ctx.Done():
			return
		}
	}
}
