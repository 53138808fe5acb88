package goToken

import (
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})
	return mr, rdb
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.JWT.SigningMethod = "hs256"
	cfg.JWT.PrivateKey = []byte(testSecret)
	cfg.JWT.AccessTTL = 15 * time.Minute
	cfg.JWT.RefreshTTL = time.Hour
	cfg.Security.EnableRefreshThrottle = false
	return cfg
}

type memUserProvider struct {
	mu    sync.Mutex
	users map[string]memUser
	fail  error
}

type memUser struct {
	password string
	identity Identity
}

func newMemUserProvider() *memUserProvider {
	return &memUserProvider{users: map[string]memUser{}}
}

func (p *memUserProvider) add(username, password, role string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.users[username] = memUser{password: password, identity: Identity{Subject: "user-" + username, Role: role}}
}

func (p *memUserProvider) VerifyCredentials(_ context.Context, username, password string) (Identity, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail != nil {
		return Identity{}, p.fail
	}
	u, ok := p.users[username]
	if !ok || u.password != password {
		return Identity{}, ErrInvalidCredentials
	}
	return u.identity, nil
}

func (p *memUserProvider) CreateAccount(_ context.Context, info RegistrationInfo) (Identity, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail != nil {
		return Identity{}, p.fail
	}
	key := strings.ToLower(info.Username)
	if _, ok := p.users[key]; ok {
		return Identity{}, ErrAccountExists
	}
	id := Identity{Subject: "user-" + key, Role: "user"}
	p.users[key] = memUser{password: info.Password, identity: id}
	return id, nil
}

func newTestEngine(t *testing.T, cfg Config) (*Engine, *miniredis.Miniredis, *memUserProvider) {
	t.Helper()

	mr, rdb := newTestRedis(t)
	up := newMemUserProvider()
	engine, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithUserProvider(up).
		WithLogger(zerolog.New(io.Discard)).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)
	return engine, mr, up
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Now().Truncate(time.Second)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newClockedEngine(t *testing.T, cfg Config, clock *fakeClock) (*Engine, *miniredis.Miniredis) {
	t.Helper()

	mr, rdb := newTestRedis(t)
	b := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithLogger(zerolog.New(io.Discard))
	b.now = clock.Now
	engine, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)
	return engine, mr
}
