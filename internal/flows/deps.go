package flows

import (
	"context"
	"time"

	"github.com/MrEthical07/goToken/jwt"
	"github.com/MrEthical07/goToken/session"
)

// TokenCodec is the subset of jwt.Manager the flows depend on.
type TokenCodec interface {
	CreateAccess(subject, role string) (string, error)
	CreateRefresh(subject, role string) (string, string, error)
	ParseAccess(token string) (*jwt.Claims, error)
	ParseRefresh(token string) (*jwt.Claims, error)
	Remaining(claims *jwt.Claims) time.Duration
	RefreshTTL() time.Duration
}

// Deps groups flow dependency sets. Root engine builds this once and delegates
// request methods to the matching flow implementation.
type Deps struct {
	Issue    IssueDeps
	Refresh  RefreshDeps
	Revoke   RevokeDeps
	Validate ValidateDeps
	Login    LoginDeps
	Register RegisterDeps
}

// bounded derives the per-call store context.
func bounded(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

func getPointer(ctx context.Context, store session.Backend, timeout time.Duration, subject string) (string, bool, error) {
	cctx, cancel := bounded(ctx, timeout)
	defer cancel()
	return store.GetSessionPointer(cctx, subject)
}
