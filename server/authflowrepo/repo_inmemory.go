package authflowrepo

import (
	"errors"
	"fmt"
	"sync"
	"time"

	apperrors "github.com/jrsteele09/go-oauth-login/internal/errors"
)

// InMemoryRepo is a thread-safe in-memory implementation of the Repo interface
type InMemoryRepo struct {
	mu     sync.Mutex
	ttl    time.Duration
	states map[string]AuthFlowState
}

// NewInMemoryRepo creates a new in-memory auth flow state repository.
// A non-positive ttl selects DefaultTTL.
func NewInMemoryRepo(ttl time.Duration) *InMemoryRepo {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &InMemoryRepo{
		ttl:    ttl,
		states: make(map[string]AuthFlowState),
	}
}

// Put stores an auth flow state. CreatedAt is stamped when unset.
func (r *InMemoryRepo) Put(flowID string, state *AuthFlowState) error {
	if flowID == "" {
		return errors.New("flow id cannot be empty")
	}
	if state == nil {
		return errors.New("state cannot be nil")
	}

	s := *state
	if s.CreatedAt.IsZero() {
		s.CreatedAt = NowTimeFunc()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.states[flowID] = s
	return nil
}

// Take retrieves and deletes the state for flowID
func (r *InMemoryRepo) Take(flowID string) (*AuthFlowState, error) {
	if flowID == "" {
		return nil, fmt.Errorf("%w: empty flow id", apperrors.ErrInvalidState)
	}

	r.mu.Lock()
	s, exists := r.states[flowID]
	delete(r.states, flowID)
	r.mu.Unlock()

	if !exists {
		return nil, fmt.Errorf("%w: unknown flow", apperrors.ErrInvalidState)
	}
	if r.expired(s, NowTimeFunc()) {
		return nil, fmt.Errorf("%w: flow expired", apperrors.ErrInvalidState)
	}
	return &s, nil
}

// Purge drops abandoned flows and returns how many were removed
func (r *InMemoryRepo) Purge() int {
	now := NowTimeFunc()

	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for id, s := range r.states {
		if r.expired(s, now) {
			delete(r.states, id)
			n++
		}
	}
	return n
}

func (r *InMemoryRepo) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.states)
}

func (r *InMemoryRepo) expired(s AuthFlowState, now time.Time) bool {
	return now.Sub(s.CreatedAt) > r.ttl
}
