package goToken

import (
	"context"
	"io"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func newBenchmarkEngine(b *testing.B) (*Engine, *memUserProvider, func()) {
	b.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		b.Fatalf("miniredis.Run failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	cfg := testConfig()
	cfg.Security.EnableLoginThrottle = false
	up := newMemUserProvider()
	up.add("alice", "correct-password-123", "user")

	engine, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithUserProvider(up).
		WithLogger(zerolog.New(io.Discard)).
		Build()
	if err != nil {
		b.Fatalf("Build failed: %v", err)
	}

	return engine, up, func() {
		engine.Close()
		_ = rdb.Close()
		mr.Close()
	}
}

func BenchmarkValidate(b *testing.B) {
	engine, _, cleanup := newBenchmarkEngine(b)
	defer cleanup()

	pair, err := engine.Issue(context.Background(), "alice", "user")
	if err != nil {
		b.Fatalf("issue failed: %v", err)
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := engine.Validate(context.Background(), pair.AccessToken); err != nil {
			b.Fatalf("validate failed: %v", err)
		}
	}
}

func BenchmarkRefresh(b *testing.B) {
	engine, _, cleanup := newBenchmarkEngine(b)
	defer cleanup()

	pair, err := engine.Issue(context.Background(), "alice", "user")
	if err != nil {
		b.Fatalf("issue failed: %v", err)
	}
	refresh := pair.RefreshToken

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		next, err := engine.Refresh(context.Background(), refresh)
		if err != nil {
			b.Fatalf("refresh failed: %v", err)
		}
		refresh = next.RefreshToken
	}
}

func BenchmarkLogin(b *testing.B) {
	engine, _, cleanup := newBenchmarkEngine(b)
	defer cleanup()

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		pair, err := engine.Login(context.Background(), "alice", "correct-password-123")
		if err != nil {
			b.Fatalf("login failed: %v", err)
		}
		_ = engine.Logout(context.Background(), pair.AccessToken)
	}
}
