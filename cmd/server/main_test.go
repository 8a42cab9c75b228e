package main

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jrsteele09/go-oauth-login/session"
	"github.com/stretchr/testify/require"
)

// closingRepo records sweeps that reach the store after it was closed
type closingRepo struct {
	*session.InMemoryRepo

	mu          sync.Mutex
	closed      bool
	sweeps      int
	afterClosed int
}

func (r *closingRepo) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	r.mu.Lock()
	r.sweeps++
	if r.closed {
		r.afterClosed++
	}
	r.mu.Unlock()
	return r.InMemoryRepo.DeleteExpired(ctx, now)
}

func (r *closingRepo) close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
}

func (r *closingRepo) sweepCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sweeps
}

func TestStartSweeper_StopsBeforeClose(t *testing.T) {
	repo := &closingRepo{InMemoryRepo: session.NewInMemoryRepo()}
	sessions := session.NewManager(repo, time.Hour)

	stop := startSweeper(context.Background(), sessions, time.Millisecond, repo.close)
	require.Eventually(t, func() bool { return repo.sweepCount() > 2 }, time.Second, time.Millisecond)
	stop()

	sweeps := repo.sweepCount()
	time.Sleep(10 * time.Millisecond)

	repo.mu.Lock()
	defer repo.mu.Unlock()
	require.True(t, repo.closed)
	require.Zero(t, repo.afterClosed)
	require.Equal(t, sweeps, repo.sweeps)
}
