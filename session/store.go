package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/goToken/internal"
	"github.com/redis/go-redis/v9"
)

const (
	validityPrefix  = "used_refresh_token:"
	pointerPrefix   = "refresh:"
	blacklistPrefix = "blacklist:"
)

const consumeRefreshScript = `
local state = redis.call("GET", KEYS[1])
if not state then
  redis.call("DEL", KEYS[2])
  return 0
end
if state ~= "valid" then
  redis.call("DEL", KEYS[2])
  return 1
end
if redis.call("EXISTS", KEYS[2]) == 0 then
  return 2
end
local ttl = redis.call("PTTL", KEYS[1])
if ttl <= 0 then
  ttl = tonumber(ARGV[1])
end
redis.call("SET", KEYS[1], "revoked", "PX", ttl)
return 3
`

var consumeRefreshLua = redis.NewScript(consumeRefreshScript)

const revokeRefreshScript = `
local ttl = redis.call("PTTL", KEYS[1])
if ttl == -2 then
  return 0
end
if ttl > 0 then
  redis.call("SET", KEYS[1], "revoked", "PX", ttl)
else
  redis.call("SET", KEYS[1], "revoked")
end
return 1
`

var revokeRefreshLua = redis.NewScript(revokeRefreshScript)

const setValidityScript = `
local current = redis.call("GET", KEYS[1])
if current == "revoked" and ARGV[1] ~= "revoked" then
  return 0
end
redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[2])
return 1
`

var setValidityLua = redis.NewScript(setValidityScript)

// Store is the Redis implementation of [Backend].
type Store struct {
	redis  redis.UniversalClient
	prefix string
}

var _ Backend = (*Store)(nil)

// NewStore creates a [Store] over the given client. prefix is prepended to
// every key and may be empty.
func NewStore(client redis.UniversalClient, prefix string) *Store {
	return &Store{redis: client, prefix: prefix}
}

func (s *Store) validityKey(jti string) string {
	return s.prefix + validityPrefix + jti
}

func (s *Store) pointerKey(subject string) string {
	return s.prefix + pointerPrefix + subject
}

func (s *Store) blacklistKey(token string) string {
	return s.prefix + blacklistPrefix + internal.HashToken(token)
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}

// SaveIssued writes the validity record and the session pointer in one
// MULTI/EXEC so readers never see one without the other.
func (s *Store) SaveIssued(ctx context.Context, subject, jti, refreshToken string, ttl time.Duration) error {
	if ttl <= 0 {
		return errors.New("non-positive ttl")
	}
	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.validityKey(jti), string(ValidityValid), ttl)
		pipe.Set(ctx, s.pointerKey(subject), refreshToken, ttl)
		return nil
	})
	if err != nil {
		return unavailable(err)
	}
	return nil
}

// SetRefreshValidity writes v for jti. Writing valid over revoked fails with
// [ErrRevokedIrreversible].
func (s *Store) SetRefreshValidity(ctx context.Context, jti string, v Validity, ttl time.Duration) error {
	if v != ValidityValid && v != ValidityRevoked {
		return fmt.Errorf("invalid validity %q", v)
	}
	if ttl <= 0 {
		return errors.New("non-positive ttl")
	}
	res, err := setValidityLua.Run(ctx, s.redis, []string{s.validityKey(jti)}, string(v), ttl.Milliseconds()).Int64()
	if err != nil {
		return unavailable(err)
	}
	if res == 0 {
		return ErrRevokedIrreversible
	}
	return nil
}

// GetRefreshValidity returns the stored state, or [ValidityAbsent].
func (s *Store) GetRefreshValidity(ctx context.Context, jti string) (Validity, error) {
	v, err := s.redis.Get(ctx, s.validityKey(jti)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ValidityAbsent, nil
		}
		return ValidityAbsent, unavailable(err)
	}
	return Validity(v), nil
}

// ConsumeRefresh runs the rotation check-and-mark as one Lua script.
//
//	Performance: 1 EVALSHA.
//	Security: concurrent callers with the same jti see exactly one ConsumeRotated.
func (s *Store) ConsumeRefresh(ctx context.Context, jti, subject string, fallbackTTL time.Duration) (ConsumeStatus, error) {
	if fallbackTTL <= 0 {
		fallbackTTL = time.Second
	}
	code, err := consumeRefreshLua.Run(
		ctx,
		s.redis,
		[]string{s.validityKey(jti), s.pointerKey(subject)},
		fallbackTTL.Milliseconds(),
	).Int64()
	if err != nil {
		return 0, unavailable(err)
	}

	status := ConsumeStatus(code)
	switch status {
	case ConsumeReuseAbsent, ConsumeReuseRevoked, ConsumeSessionNotFound, ConsumeRotated:
		return status, nil
	default:
		return 0, fmt.Errorf("%w: unknown consume status %d", ErrStoreUnavailable, code)
	}
}

// RevokeRefresh marks jti revoked, preserving its remaining TTL.
func (s *Store) RevokeRefresh(ctx context.Context, jti string) error {
	if err := revokeRefreshLua.Run(ctx, s.redis, []string{s.validityKey(jti)}).Err(); err != nil {
		return unavailable(err)
	}
	return nil
}

func (s *Store) SetSessionPointer(ctx context.Context, subject, refreshToken string, ttl time.Duration) error {
	if ttl <= 0 {
		return errors.New("non-positive ttl")
	}
	if err := s.redis.Set(ctx, s.pointerKey(subject), refreshToken, ttl).Err(); err != nil {
		return unavailable(err)
	}
	return nil
}

// GetSessionPointer returns the subject's current refresh token, if any.
func (s *Store) GetSessionPointer(ctx context.Context, subject string) (string, bool, error) {
	token, err := s.redis.Get(ctx, s.pointerKey(subject)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, unavailable(err)
	}
	return token, true, nil
}

// DeleteSessionPointer is idempotent.
func (s *Store) DeleteSessionPointer(ctx context.Context, subject string) error {
	if err := s.redis.Del(ctx, s.pointerKey(subject)).Err(); err != nil {
		return unavailable(err)
	}
	return nil
}

// BlacklistAccess records accessToken as revoked for ttl. A non-positive ttl
// is a no-op since the token is already expired.
func (s *Store) BlacklistAccess(ctx context.Context, accessToken string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	if err := s.redis.Set(ctx, s.blacklistKey(accessToken), "1", ttl).Err(); err != nil {
		return unavailable(err)
	}
	return nil
}

func (s *Store) IsBlacklisted(ctx context.Context, accessToken string) (bool, error) {
	n, err := s.redis.Exists(ctx, s.blacklistKey(accessToken)).Result()
	if err != nil {
		return false, unavailable(err)
	}
	return n == 1, nil
}

// Ping returns a point-in-time Redis availability check and latency.
func (s *Store) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return time.Since(start), unavailable(err)
	}
	return time.Since(start), nil
}
