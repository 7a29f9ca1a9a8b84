package refresh

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"account_service/internal/models"
	"account_service/internal/storage/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestStore(t *testing.T) (*Store, *memory.Storage, *clock) {
	t.Helper()

	clk := &clock{t: time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)}
	repo := memory.NewWithClock(clk.Now)

	return New(discardLogger(), repo, 7*24*time.Hour, WithClock(clk.Now)), repo, clk
}

func TestIssue_PersistsActiveToken(t *testing.T) {
	s, repo, clk := newTestStore(t)
	ctx := context.Background()

	rt, err := s.Issue(ctx, 1)
	require.NoError(t, err)
	assert.NotEmpty(t, rt.Token)
	assert.Equal(t, time.UTC, rt.ExpiresAt.Location())
	assert.True(t, clk.Now().Add(7*24*time.Hour).Equal(rt.ExpiresAt))

	stored, err := repo.RefreshToken(ctx, rt.Token)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stored.UserID)
	assert.False(t, stored.Revoked)
}

func TestIssue_TokensAreUnique(t *testing.T) {
	s, _, _ := newTestStore(t)

	seen := make(map[string]struct{})
	for i := 0; i < 100; i++ {
		rt, err := s.Issue(context.Background(), 1)
		require.NoError(t, err)

		_, dup := seen[rt.Token]
		require.False(t, dup)
		seen[rt.Token] = struct{}{}
	}
}

func TestIssue_PropagatesStorageError(t *testing.T) {
	_, repo, clk := newTestStore(t)

	s := New(discardLogger(), repo, time.Hour, WithClock(clk.Now), WithTokenGenerator(func() string { return "fixed" }))

	_, err := s.Issue(context.Background(), 1)
	require.NoError(t, err)

	_, err = s.Issue(context.Background(), 1)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	s, _, clk := newTestStore(t)
	ctx := context.Background()

	rt, err := s.Issue(ctx, 5)
	require.NoError(t, err)

	uid, ok, err := s.Validate(ctx, rt.Token)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(5), uid)

	_, ok, err = s.Validate(ctx, "unknown")
	require.NoError(t, err)
	assert.False(t, ok)

	clk.Advance(7 * 24 * time.Hour)

	_, ok, err = s.Validate(ctx, rt.Token)
	require.NoError(t, err)
	assert.False(t, ok, "expires_at == now is expired")
}

func TestRevoke_Idempotent(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()

	rt, err := s.Issue(ctx, 1)
	require.NoError(t, err)

	found, err := s.Revoke(ctx, rt.Token)
	require.NoError(t, err)
	assert.True(t, found)

	found, err = s.Revoke(ctx, rt.Token)
	require.NoError(t, err)
	assert.True(t, found)

	_, ok, err := s.Validate(ctx, rt.Token)
	require.NoError(t, err)
	assert.False(t, ok)

	found, err = s.Revoke(ctx, "unknown")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestRotate(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()

	t1, err := s.Issue(ctx, 3)
	require.NoError(t, err)

	t2, err := s.Rotate(ctx, t1.Token)
	require.NoError(t, err)
	assert.NotEqual(t, t1.Token, t2.Token)
	assert.Equal(t, int64(3), t2.UserID)

	_, err = s.Rotate(ctx, t1.Token)
	assert.ErrorIs(t, err, ErrTokenNotActive)

	t3, err := s.Rotate(ctx, t2.Token)
	require.NoError(t, err)
	assert.Equal(t, int64(3), t3.UserID)
}

func TestRotate_ExpiredToken(t *testing.T) {
	s, _, clk := newTestStore(t)
	ctx := context.Background()

	t1, err := s.Issue(ctx, 3)
	require.NoError(t, err)

	clk.Advance(8 * 24 * time.Hour)

	_, err = s.Rotate(ctx, t1.Token)
	assert.ErrorIs(t, err, ErrTokenNotActive)
}

func TestRotate_ConcurrentSingleSuccess(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()

	t1, err := s.Issue(ctx, 3)
	require.NoError(t, err)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		failures  int
	)

	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			_, err := s.Rotate(ctx, t1.Token)

			mu.Lock()
			defer mu.Unlock()

			switch {
			case err == nil:
				successes++
			case errors.Is(err, ErrTokenNotActive):
				failures++
			}
		}()
	}

	wg.Wait()
	assert.Equal(t, 1, successes)
	assert.Equal(t, 1, failures)
}

func TestRevokeAll(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()

	a, err := s.Issue(ctx, 1)
	require.NoError(t, err)
	b, err := s.Issue(ctx, 1)
	require.NoError(t, err)
	other, err := s.Issue(ctx, 2)
	require.NoError(t, err)

	n, err := s.RevokeAll(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	for _, tok := range []models.RefreshToken{a, b} {
		_, ok, err := s.Validate(ctx, tok.Token)
		require.NoError(t, err)
		assert.False(t, ok)
	}

	_, ok, err := s.Validate(ctx, other.Token)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSweepExpired(t *testing.T) {
	s, repo, clk := newTestStore(t)
	ctx := context.Background()

	short := New(discardLogger(), repo, time.Hour, WithClock(clk.Now))

	expiring, err := short.Issue(ctx, 1)
	require.NoError(t, err)
	live, err := s.Issue(ctx, 1)
	require.NoError(t, err)
	revoked, err := s.Issue(ctx, 1)
	require.NoError(t, err)
	_, err = s.Revoke(ctx, revoked.Token)
	require.NoError(t, err)

	clk.Advance(2 * time.Hour)

	n, err := s.SweepExpired(ctx, clk.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = repo.RefreshToken(ctx, expiring.Token)
	assert.Error(t, err)

	_, err = repo.RefreshToken(ctx, live.Token)
	assert.NoError(t, err)

	_, err = repo.RefreshToken(ctx, revoked.Token)
	assert.NoError(t, err)
}

func TestRunSweeper_StopsOnCancel(t *testing.T) {
	s, _, clk := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())

	short := New(discardLogger(), s.repo, time.Minute, WithClock(clk.Now))
	_, err := short.Issue(ctx, 1)
	require.NoError(t, err)
	clk.Advance(time.Hour)

	swept := make(chan int64, 1)
	done := make(chan struct{})

	go func() {
		defer close(done)
		s.RunSweeper(ctx, 10*time.Millisecond, func(n int64) {
			select {
			case swept <- n:
			default:
			}
		})
	}()

	select {
	case n := <-swept:
		assert.Equal(t, int64(1), n)
	case <-time.After(2 * time.Second):
		t.Fatal("sweeper did not run")
	}

	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("sweeper did not stop")
	}
}
