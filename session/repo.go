package session

import (
	"context"
	"time"

	"github.com/jrsteele09/go-oauth-login/principal"
)

type Session struct {
	Token     string
	Principal principal.Principal
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Expired reports whether the session is no longer valid at now
func (s Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// Repo persists sessions by token. Implementations must be safe for
// concurrent use. Get returns ErrSessionNotFound for unknown tokens and
// Delete of an unknown token is not an error.
type Repo interface {
	Upsert(ctx context.Context, session Session) error
	Get(ctx context.Context, token string) (Session, error)
	Delete(ctx context.Context, token string) error
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
	// CountActive counts sessions that have not expired at now
	CountActive(ctx context.Context, now time.Time) (int, error)
}
