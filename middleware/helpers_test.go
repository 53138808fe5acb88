package middleware

import (
	"io"
	"testing"
	"time"

	goToken "github.com/MrEthical07/goToken"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func newEngine(t *testing.T) *goToken.Engine {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = rdb.Close() })

	cfg := goToken.DefaultConfig()
	cfg.JWT.SigningMethod = "hs256"
	cfg.JWT.PrivateKey = []byte("middleware-test-secret-0123456789")
	cfg.JWT.AccessTTL = 15 * time.Minute
	cfg.JWT.RefreshTTL = time.Hour

	engine, err := goToken.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithLogger(zerolog.New(io.Discard)).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)
	return engine
}
