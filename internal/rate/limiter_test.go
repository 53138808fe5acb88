package rate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestLimiter(t *testing.T, cfg Config) (*miniredis.Miniredis, *Limiter) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = client.Close()
		mr.Close()
	})
	return mr, New(client, cfg)
}

func TestLoginBudgetAndReset(t *testing.T) {
	ctx := context.Background()
	mr, l := newTestLimiter(t, Config{
		EnableIPThrottle:      true,
		MaxLoginAttempts:      3,
		LoginCooldownDuration: time.Minute,
	})

	for i := 0; i < 3; i++ {
		if err := l.CheckLogin(ctx, "alice", "10.0.0.1"); err != nil {
			t.Fatalf("attempt %d: unexpected limit: %v", i, err)
		}
		if err := l.IncrementLogin(ctx, "alice", "10.0.0.1"); err != nil {
			t.Fatalf("attempt %d: increment failed: %v", i, err)
		}
	}
	if err := l.CheckLogin(ctx, "alice", "10.0.0.1"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	if n, _ := l.GetLoginAttempts(ctx, "alice"); n != 3 {
		t.Fatalf("expected 3 attempts, got %d", n)
	}
	if ttl := mr.TTL("al:alice"); ttl != time.Minute {
		t.Fatalf("expected window ttl 1m, got %v", ttl)
	}

	if err := l.ResetLogin(ctx, "alice", "10.0.0.1"); err != nil {
		t.Fatalf("reset failed: %v", err)
	}
	if n, _ := l.GetLoginAttempts(ctx, "alice"); n != 0 {
		t.Fatalf("expected 0 attempts after reset, got %d", n)
	}
	if err := l.CheckLogin(ctx, "alice", "10.0.0.1"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected IP budget to survive username reset, got %v", err)
	}

	mr.FastForward(time.Minute + time.Second)
	if err := l.CheckLogin(ctx, "alice", "10.0.0.1"); err != nil {
		t.Fatalf("expected window to reset, got %v", err)
	}
}

func TestRefreshThrottle(t *testing.T) {
	ctx := context.Background()
	_, l := newTestLimiter(t, Config{
		KeyPrefix:               "app:",
		EnableRefreshThrottle:   true,
		MaxRefreshAttempts:      2,
		RefreshCooldownDuration: time.Minute,
	})

	if err := l.CheckRefresh(ctx, "alice"); err != nil {
		t.Fatalf("first refresh limited: %v", err)
	}
	if err := l.CheckRefresh(ctx, "alice"); err != nil {
		t.Fatalf("second refresh limited: %v", err)
	}
	if err := l.CheckRefresh(ctx, "alice"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	if err := l.CheckRefresh(ctx, "bob"); err != nil {
		t.Fatalf("expected independent budget per subject, got %v", err)
	}
}

func TestRefreshThrottleDisabled(t *testing.T) {
	_, l := newTestLimiter(t, Config{MaxRefreshAttempts: 0})
	for i := 0; i < 5; i++ {
		if err := l.CheckRefresh(context.Background(), "alice"); err != nil {
			t.Fatalf("disabled throttle returned %v", err)
		}
	}
}

func TestRedisUnavailable(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer client.Close()
	l := New(client, Config{EnableRefreshThrottle: true, MaxRefreshAttempts: 1, RefreshCooldownDuration: time.Minute})
	mr.Close()

	if err := l.CheckRefresh(context.Background(), "alice"); !errors.Is(err, ErrRedisUnavailable) {
		t.Fatalf("expected ErrRedisUnavailable, got %v", err)
	}
}
