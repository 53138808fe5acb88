package goToken

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/MrEthical07/goToken/session"
	"github.com/MrEthical07/goToken/session/badgerstore"
	"github.com/rs/zerolog"
)

func TestIssueClaimsCarrySubjectAndRole(t *testing.T) {
	engine, _, _ := newTestEngine(t, testConfig())
	ctx := context.Background()

	pair, err := engine.Issue(ctx, "alice", "admin")
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Fatal("expected both tokens")
	}

	res, err := engine.Validate(ctx, pair.AccessToken)
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if res.Subject != "alice" || res.Role != "admin" {
		t.Fatalf("unexpected access claims %+v", res)
	}
	if res.ExpiresAt.IsZero() || res.TokenID == "" {
		t.Fatalf("expected exp and jti on access token, got %+v", res)
	}

	claims, err := engine.jwtManager.ParseRefresh(pair.RefreshToken)
	if err != nil {
		t.Fatalf("ParseRefresh failed: %v", err)
	}
	if claims.Subject != "alice" || claims.Role != "admin" || claims.ID == "" {
		t.Fatalf("unexpected refresh claims %+v", claims)
	}
}

func TestIssueRejectsEmptySubject(t *testing.T) {
	engine, _, _ := newTestEngine(t, testConfig())
	if _, err := engine.Issue(context.Background(), "  ", "user"); !errors.Is(err, ErrIssueFailed) {
		t.Fatalf("expected ErrIssueFailed, got %v", err)
	}
}

func TestRefreshIsOneTime(t *testing.T) {
	engine, _, _ := newTestEngine(t, testConfig())
	ctx := context.Background()

	pair, err := engine.Issue(ctx, "alice", "user")
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	next, err := engine.Refresh(ctx, pair.RefreshToken)
	if err != nil {
		t.Fatalf("first refresh failed: %v", err)
	}
	if next.RefreshToken == pair.RefreshToken {
		t.Fatal("expected a new refresh token")
	}

	if _, err := engine.Refresh(ctx, pair.RefreshToken); !errors.Is(err, ErrRefreshReuse) {
		t.Fatalf("expected ErrRefreshReuse, got %v", err)
	}
}

func TestLoginRefreshReuseEndsFamily(t *testing.T) {
	engine, mr, up := newTestEngine(t, testConfig())
	up.add("alice", "correct", "user")
	ctx := context.Background()

	first, err := engine.Login(ctx, "alice", "correct")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	second, err := engine.Refresh(ctx, first.RefreshToken)
	if err != nil {
		t.Fatalf("refresh failed: %v", err)
	}

	res := engine.RefreshWithResult(ctx, first.RefreshToken)
	if res.Outcome != RefreshReuseDetected || !errors.Is(res.Err, ErrRefreshReuse) {
		t.Fatalf("expected reuse outcome, got %v (%v)", res.Outcome, res.Err)
	}
	if res.Subject != "user-alice" {
		t.Fatalf("expected subject on reuse result, got %q", res.Subject)
	}
	if mr.Exists("refresh:user-alice") {
		t.Fatal("expected session pointer deleted on reuse")
	}

	// the legitimate successor is now orphaned
	if _, err := engine.Refresh(ctx, second.RefreshToken); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound for successor, got %v", err)
	}
}

func TestRevokedAccessRejected(t *testing.T) {
	engine, mr, _ := newTestEngine(t, testConfig())
	ctx := context.Background()

	pair, err := engine.Issue(ctx, "alice", "user")
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	if err := engine.RevokeAccess(ctx, pair.AccessToken); err != nil {
		t.Fatalf("RevokeAccess failed: %v", err)
	}
	if _, err := engine.Validate(ctx, pair.AccessToken); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid after revoke, got %v", err)
	}

	keys := mr.Keys()
	var blacklisted bool
	for _, k := range keys {
		if strings.HasPrefix(k, "blacklist:") {
			blacklisted = true
			if ttl := mr.TTL(k); ttl <= 0 || ttl > 15*time.Minute {
				t.Fatalf("blacklist ttl %v outside access lifetime", ttl)
			}
		}
	}
	if !blacklisted {
		t.Fatalf("expected a blacklist key, got %v", keys)
	}
}

func TestRevokeAccessInvalidToken(t *testing.T) {
	engine, _, _ := newTestEngine(t, testConfig())
	if err := engine.RevokeAccess(context.Background(), "not-a-token"); !errors.Is(err, ErrAccessInvalid) {
		t.Fatalf("expected ErrAccessInvalid, got %v", err)
	}
}

func TestRevokeAccessRejectsRefreshToken(t *testing.T) {
	engine, _, _ := newTestEngine(t, testConfig())
	pair, err := engine.Issue(context.Background(), "alice", "user")
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	if err := engine.RevokeAccess(context.Background(), pair.RefreshToken); !errors.Is(err, ErrAccessInvalid) {
		t.Fatalf("expected ErrAccessInvalid for refresh token, got %v", err)
	}
	if _, err := engine.Validate(context.Background(), pair.RefreshToken); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected refresh token to fail access validation, got %v", err)
	}
}

func TestLogoutThenRefreshFails(t *testing.T) {
	engine, _, up := newTestEngine(t, testConfig())
	up.add("alice", "correct", "user")
	ctx := context.Background()

	pair, err := engine.Login(ctx, "alice", "correct")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if !engine.Logout(ctx, pair.AccessToken) {
		t.Fatal("expected logout to succeed")
	}
	if _, err := engine.Validate(ctx, pair.AccessToken); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected access token rejected after logout, got %v", err)
	}
	if _, err := engine.Refresh(ctx, pair.RefreshToken); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound after logout, got %v", err)
	}
}

func TestLogoutFailSoft(t *testing.T) {
	engine, mr, _ := newTestEngine(t, testConfig())
	ctx := context.Background()

	if engine.Logout(ctx, "garbage") {
		t.Fatal("expected logout of garbage token to report false")
	}

	pair, err := engine.Issue(ctx, "alice", "user")
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	mr.Close()
	if engine.Logout(ctx, pair.AccessToken) {
		t.Fatal("expected logout to report false with store down")
	}
}

func TestLogoutFailureLogLevels(t *testing.T) {
	mr, rdb := newTestRedis(t)
	var buf bytes.Buffer
	engine, err := New().
		WithConfig(testConfig()).
		WithRedis(rdb).
		WithLogger(zerolog.New(&buf)).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)
	ctx := context.Background()

	pair, err := engine.Issue(ctx, "alice", "user")
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	_ = engine.Logout(ctx, "garbage")
	mr.SetError("connection refused")
	_ = engine.Logout(ctx, pair.AccessToken)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected one log line per failed logout, got %d: %q", len(lines), buf.String())
	}
	want := []struct{ level, reason string }{
		{"info", "invalid_token"},
		{"error", "pointer_delete_failed"},
	}
	for i, line := range lines {
		var rec map[string]any
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			t.Fatalf("line %d not json: %v", i, err)
		}
		if rec["level"] != want[i].level || rec["reason"] != want[i].reason {
			t.Fatalf("line %d: expected %s/%s, got %v/%v", i, want[i].level, want[i].reason, rec["level"], rec["reason"])
		}
	}
}

func TestAdminRevoke(t *testing.T) {
	engine, mr, up := newTestEngine(t, testConfig())
	up.add("alice", "correct", "user")
	ctx := context.Background()

	pair, err := engine.Login(ctx, "alice", "correct")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if !mr.Exists("refresh:user-alice") {
		t.Fatal("expected session pointer after login")
	}
	if !engine.AdminRevoke(ctx, pair.AccessToken) {
		t.Fatal("expected AdminRevoke to succeed")
	}
	if _, err := engine.Validate(ctx, pair.AccessToken); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected revoked token rejected, got %v", err)
	}
	if mr.Exists("refresh:user-alice") {
		t.Fatal("expected session pointer deleted")
	}
	if _, err := engine.Refresh(ctx, pair.RefreshToken); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
	if engine.AdminRevoke(ctx, "garbage") {
		t.Fatal("expected AdminRevoke of garbage to fail")
	}
	if err := engine.AdminRevokeAccess(ctx, "garbage"); !errors.Is(err, ErrAccessInvalid) {
		t.Fatalf("expected ErrAccessInvalid, got %v", err)
	}

	other, err := engine.Issue(ctx, "bob", "user")
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	mr.SetError("connection refused")
	if err := engine.AdminRevokeAccess(ctx, other.AccessToken); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable during outage, got %v", err)
	}
	mr.SetError("")
}

func TestExpiredTokensFailRegardlessOfStore(t *testing.T) {
	clock := newFakeClock()
	engine, mr := newClockedEngine(t, testConfig(), clock)
	ctx := context.Background()

	pair, err := engine.Issue(ctx, "alice", "user")
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	if _, err := engine.Validate(ctx, pair.AccessToken); err != nil {
		t.Fatalf("fresh token rejected: %v", err)
	}

	clock.Advance(15*time.Minute + time.Second)
	if _, err := engine.Validate(ctx, pair.AccessToken); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected expired access token rejected, got %v", err)
	}

	mr.Close()
	if _, err := engine.Validate(ctx, pair.AccessToken); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected expired token rejected with store down, got %v", err)
	}

	clock.Advance(time.Hour)
	if _, err := engine.Refresh(ctx, pair.RefreshToken); !errors.Is(err, ErrRefreshInvalid) {
		t.Fatalf("expected expired refresh token invalid, got %v", err)
	}
}

func TestStoreOutageIsNotInvalidToken(t *testing.T) {
	engine, mr, _ := newTestEngine(t, testConfig())
	ctx := context.Background()

	pair, err := engine.Issue(ctx, "alice", "user")
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	mr.Close()

	if _, err := engine.Validate(ctx, pair.AccessToken); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable from Validate, got %v", err)
	}
	res := engine.RefreshWithResult(ctx, pair.RefreshToken)
	if res.Outcome != RefreshStoreUnavailable || !errors.Is(res.Err, ErrStoreUnavailable) {
		t.Fatalf("expected store outage from refresh, got %v (%v)", res.Outcome, res.Err)
	}
	if err := engine.RevokeAccess(ctx, pair.AccessToken); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable from RevokeAccess, got %v", err)
	}
	if _, err := engine.Issue(ctx, "bob", "user"); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable from Issue, got %v", err)
	}
	if h := engine.Health(ctx); h.Available {
		t.Fatal("expected health to report unavailable")
	}
}

func TestSupersedePolicy(t *testing.T) {
	ctx := context.Background()

	t.Run("keep superseded", func(t *testing.T) {
		engine, _, _ := newTestEngine(t, testConfig())
		first, err := engine.Issue(ctx, "alice", "user")
		if err != nil {
			t.Fatalf("Issue failed: %v", err)
		}
		if _, err := engine.Issue(ctx, "alice", "user"); err != nil {
			t.Fatalf("second Issue failed: %v", err)
		}
		if _, err := engine.Refresh(ctx, first.RefreshToken); err != nil {
			t.Fatalf("expected superseded token to stay exchangeable, got %v", err)
		}
	})

	t.Run("revoke superseded", func(t *testing.T) {
		cfg := testConfig()
		cfg.Session.RevokeSupersededOnIssue = true
		engine, mr, _ := newTestEngine(t, cfg)
		first, err := engine.Issue(ctx, "alice", "user")
		if err != nil {
			t.Fatalf("Issue failed: %v", err)
		}
		if _, err := engine.Issue(ctx, "alice", "user"); err != nil {
			t.Fatalf("second Issue failed: %v", err)
		}
		if _, err := engine.Refresh(ctx, first.RefreshToken); !errors.Is(err, ErrRefreshReuse) {
			t.Fatalf("expected superseded token treated as reuse, got %v", err)
		}
		if mr.Exists("refresh:alice") {
			t.Fatal("expected pointer deleted after reuse")
		}
	})
}

func TestRefreshRateLimited(t *testing.T) {
	cfg := testConfig()
	cfg.Security.EnableRefreshThrottle = true
	cfg.Security.MaxRefreshAttempts = 1
	cfg.Security.RefreshCooldownDuration = time.Minute
	engine, _, _ := newTestEngine(t, cfg)
	ctx := context.Background()

	pair, err := engine.Issue(ctx, "alice", "user")
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	next, err := engine.Refresh(ctx, pair.RefreshToken)
	if err != nil {
		t.Fatalf("first refresh failed: %v", err)
	}
	res := engine.RefreshWithResult(ctx, next.RefreshToken)
	if res.Outcome != RefreshRateLimited || !errors.Is(res.Err, ErrRefreshRateLimited) {
		t.Fatalf("expected rate limited, got %v (%v)", res.Outcome, res.Err)
	}
	// the throttled token was not consumed
	if v, err := engine.sessionStore.GetRefreshValidity(ctx, mustJTI(t, engine, next.RefreshToken)); err != nil || v != session.ValidityValid {
		t.Fatalf("expected throttled token still valid, got %q (%v)", v, err)
	}
}

func mustJTI(t *testing.T, engine *Engine, refresh string) string {
	t.Helper()
	claims, err := engine.jwtManager.ParseRefresh(refresh)
	if err != nil {
		t.Fatalf("ParseRefresh failed: %v", err)
	}
	return claims.ID
}

func TestLoginThrottle(t *testing.T) {
	cfg := testConfig()
	cfg.Security.MaxLoginAttempts = 2
	engine, _, up := newTestEngine(t, cfg)
	up.add("alice", "correct", "user")
	ctx := WithClientIP(context.Background(), "203.0.113.7")

	for i := 0; i < 2; i++ {
		if _, err := engine.Login(ctx, "alice", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("attempt %d: expected ErrInvalidCredentials, got %v", i, err)
		}
	}
	if _, err := engine.Login(ctx, "alice", "correct"); !errors.Is(err, ErrLoginRateLimited) {
		t.Fatalf("expected ErrLoginRateLimited, got %v", err)
	}
}

func TestLoginErrors(t *testing.T) {
	engine, _, up := newTestEngine(t, testConfig())
	ctx := context.Background()

	if _, err := engine.Login(ctx, "", "x"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for empty username, got %v", err)
	}
	if _, err := engine.Login(ctx, "nobody", "x"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for unknown user, got %v", err)
	}

	up.fail = errors.New("db down")
	if _, err := engine.Login(ctx, "alice", "x"); !errors.Is(err, ErrProviderUnavailable) {
		t.Fatalf("expected ErrProviderUnavailable, got %v", err)
	}
}

func TestRegister(t *testing.T) {
	engine, _, _ := newTestEngine(t, testConfig())
	ctx := context.Background()

	pair, err := engine.Register(ctx, RegistrationInfo{Username: "carol", Password: "pw", Name: "Carol"})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	res, err := engine.Validate(ctx, pair.AccessToken)
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if res.Subject != "user-carol" || res.Role != "user" {
		t.Fatalf("unexpected identity %+v", res)
	}

	if _, err := engine.Register(ctx, RegistrationInfo{Username: "carol", Password: "pw"}); !errors.Is(err, ErrAccountExists) {
		t.Fatalf("expected ErrAccountExists, got %v", err)
	}
	if _, err := engine.Register(ctx, RegistrationInfo{Username: "dave"}); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for empty password, got %v", err)
	}
}

func TestEngineNotReady(t *testing.T) {
	var e *Engine
	ctx := context.Background()
	if _, err := e.Issue(ctx, "a", "b"); !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("expected ErrEngineNotReady, got %v", err)
	}
	if _, err := (&Engine{}).Validate(ctx, "x"); !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("expected ErrEngineNotReady, got %v", err)
	}

	_, rdb := newTestRedis(t)
	engine, err := New().WithConfig(testConfig()).WithRedis(rdb).WithLogger(zerolog.New(io.Discard)).Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer engine.Close()
	if _, err := engine.Login(ctx, "alice", "pw"); !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("expected ErrEngineNotReady without provider, got %v", err)
	}
}

func TestBuilderErrors(t *testing.T) {
	if _, err := New().WithConfig(testConfig()).Build(); err == nil {
		t.Fatal("expected error without store")
	}

	_, rdb := newTestRedis(t)
	bad := testConfig()
	bad.JWT.PrivateKey = []byte("short")
	if _, err := New().WithConfig(bad).WithRedis(rdb).Build(); err == nil {
		t.Fatal("expected error for short hs256 secret")
	}

	b := New().WithConfig(testConfig()).WithRedis(rdb).WithLogger(zerolog.New(io.Discard))
	engine, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer engine.Close()
	if _, err := b.Build(); err == nil {
		t.Fatal("expected error on builder reuse")
	}
}

func TestBuilderCopiesKeyMaterial(t *testing.T) {
	_, rdb := newTestRedis(t)
	cfg := testConfig()
	key := []byte(testSecret)
	cfg.JWT.PrivateKey = key

	engine, err := New().WithConfig(cfg).WithRedis(rdb).WithLogger(zerolog.New(io.Discard)).Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer engine.Close()

	pair, err := engine.Issue(context.Background(), "alice", "user")
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	for i := range key {
		key[i] = 'x'
	}
	if _, err := engine.Validate(context.Background(), pair.AccessToken); err != nil {
		t.Fatalf("expected engine unaffected by caller key mutation, got %v", err)
	}
}

func TestKeyPrefixApplied(t *testing.T) {
	cfg := testConfig()
	cfg.Store.KeyPrefix = "app:"
	engine, mr, _ := newTestEngine(t, cfg)

	if _, err := engine.Issue(context.Background(), "alice", "user"); err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	if !mr.Exists("app:refresh:alice") {
		t.Fatalf("expected prefixed pointer key, got %v", mr.Keys())
	}
}

func TestBadgerBackendLifecycle(t *testing.T) {
	store, err := badgerstore.Open(badgerstore.Options{InMemory: true, Logger: zerolog.New(io.Discard)})
	if err != nil {
		t.Fatalf("badgerstore.Open failed: %v", err)
	}
	defer store.Close()

	engine, err := New().
		WithConfig(testConfig()).
		WithBackend(store).
		WithLogger(zerolog.New(io.Discard)).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer engine.Close()
	ctx := context.Background()

	pair, err := engine.Issue(ctx, "alice", "user")
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	next, err := engine.Refresh(ctx, pair.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if _, err := engine.Refresh(ctx, pair.RefreshToken); !errors.Is(err, ErrRefreshReuse) {
		t.Fatalf("expected ErrRefreshReuse, got %v", err)
	}
	if !engine.Logout(ctx, next.AccessToken) {
		t.Fatal("expected logout to succeed")
	}
	if _, err := engine.Validate(ctx, next.AccessToken); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected revoked token rejected, got %v", err)
	}
	if h := engine.Health(ctx); !h.Available {
		t.Fatal("expected badger backend healthy")
	}
}

func TestEngineMetrics(t *testing.T) {
	cfg := testConfig()
	cfg.Metrics.Enabled = true
	cfg.Metrics.EnableLatencyHistograms = true
	engine, _, _ := newTestEngine(t, cfg)
	ctx := context.Background()

	pair, err := engine.Issue(ctx, "alice", "user")
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	if _, err := engine.Refresh(ctx, pair.RefreshToken); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	_, _ = engine.Refresh(ctx, pair.RefreshToken)
	_, _ = engine.Validate(ctx, "garbage")

	snap := engine.MetricsSnapshot()
	checks := map[MetricID]uint64{
		MetricIssueSuccess:         1,
		MetricRefreshSuccess:       1,
		MetricRefreshReuseDetected: 1,
		MetricValidateFailure:      1,
	}
	for id, want := range checks {
		if got := snap.Counters[id]; got != want {
			t.Fatalf("metric %d: expected %d, got %d", id, want, got)
		}
	}

	var refreshObs uint64
	for _, v := range snap.Histograms[MetricRefreshLatency] {
		refreshObs += v
	}
	if refreshObs != 2 {
		t.Fatalf("expected 2 refresh latency observations, got %d", refreshObs)
	}
}
