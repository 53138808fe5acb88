package session

import (
	"context"
	"errors"
	"time"
)

// ErrStoreUnavailable is returned (wrapped) for every infrastructure failure:
// connection errors, timeouts, cancelled contexts and unexpected script replies.
var ErrStoreUnavailable = errors.New("session store unavailable")

// ErrRevokedIrreversible is returned when a caller attempts to mark a revoked
// refresh record valid again.
var ErrRevokedIrreversible = errors.New("refresh record already revoked")

// Validity is the state of a refresh validity record.
type Validity string

const (
	// ValidityAbsent means no record exists (never issued, or expired).
	ValidityAbsent  Validity = ""
	ValidityValid   Validity = "valid"
	ValidityRevoked Validity = "revoked"
)

// ConsumeStatus is the outcome of an atomic refresh consumption.
type ConsumeStatus int

const (
	// ConsumeReuseAbsent: no validity record existed. The session pointer was deleted.
	ConsumeReuseAbsent ConsumeStatus = iota
	// ConsumeReuseRevoked: the record was already revoked. The session pointer was deleted.
	ConsumeReuseRevoked
	// ConsumeSessionNotFound: the record was valid but the subject has no
	// session pointer. Nothing was mutated.
	ConsumeSessionNotFound
	// ConsumeRotated: the record was valid and is now revoked.
	ConsumeRotated
)

// IsReuse reports whether the status indicates a replayed refresh token.
func (s ConsumeStatus) IsReuse() bool {
	return s == ConsumeReuseAbsent || s == ConsumeReuseRevoked
}

// String returns a short label used in logs and audit metadata.
func (s ConsumeStatus) String() string {
	switch s {
	case ConsumeReuseAbsent:
		return "reuse_absent"
	case ConsumeReuseRevoked:
		return "reuse_revoked"
	case ConsumeSessionNotFound:
		return "session_not_found"
	case ConsumeRotated:
		return "rotated"
	default:
		return "unknown"
	}
}

// Backend is the shared TTL key-value store used by the token engine. All
// methods are safe for concurrent use across processes sharing the store.
type Backend interface {
	// SaveIssued writes validity=valid for jti and points subject at
	// refreshToken, both with ttl, as one unit.
	SaveIssued(ctx context.Context, subject, jti, refreshToken string, ttl time.Duration) error
	SetRefreshValidity(ctx context.Context, jti string, v Validity, ttl time.Duration) error
	GetRefreshValidity(ctx context.Context, jti string) (Validity, error)
	// ConsumeRefresh atomically checks the record for jti and the pointer for
	// subject and applies the rotation state transition. fallbackTTL is used
	// when the record's remaining lifetime cannot be determined.
	ConsumeRefresh(ctx context.Context, jti, subject string, fallbackTTL time.Duration) (ConsumeStatus, error)
	// RevokeRefresh marks jti revoked while keeping its remaining TTL. Absent
	// records are left absent.
	RevokeRefresh(ctx context.Context, jti string) error

	SetSessionPointer(ctx context.Context, subject, refreshToken string, ttl time.Duration) error
	GetSessionPointer(ctx context.Context, subject string) (string, bool, error)
	DeleteSessionPointer(ctx context.Context, subject string) error

	BlacklistAccess(ctx context.Context, accessToken string, ttl time.Duration) error
	IsBlacklisted(ctx context.Context, accessToken string) (bool, error)

	Ping(ctx context.Context) (time.Duration, error)
}
