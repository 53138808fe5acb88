package flows

import (
	"context"
	"time"

	"github.com/MrEthical07/goToken/session"
)

// RevokeFailureKind classifies access revocation failures. Each kind maps
// to a distinct logout log reason.
type RevokeFailureKind int

const (
	RevokeFailureNone RevokeFailureKind = iota
	RevokeFailureInvalid
	RevokeFailurePointerDelete
	RevokeFailureBlacklist
)

// String returns the log reason for the failure kind.
func (k RevokeFailureKind) String() string {
	switch k {
	case RevokeFailureNone:
		return "ok"
	case RevokeFailureInvalid:
		return "invalid_token"
	case RevokeFailurePointerDelete:
		return "pointer_delete_failed"
	case RevokeFailureBlacklist:
		return "blacklist_failed"
	default:
		return "unknown"
	}
}

// RevokeResult reports what revocation did.
type RevokeResult struct {
	Failure   RevokeFailureKind
	Err       error
	Subject   string
	Remaining time.Duration
}

// RevokeDeps captures revoke/logout flow dependencies.
type RevokeDeps struct {
	Codec        TokenCodec
	Store        session.Backend
	StoreTimeout time.Duration
}

// RunRevokeAccess ends the subject's session and blacklists accessToken for
// the rest of its natural lifetime. Steps stop at the first failure.
func RunRevokeAccess(ctx context.Context, accessToken string, deps RevokeDeps) RevokeResult {
	claims, err := deps.Codec.ParseAccess(accessToken)
	if err != nil {
		return RevokeResult{Failure: RevokeFailureInvalid, Err: err}
	}
	res := RevokeResult{Subject: claims.Subject, Remaining: deps.Codec.Remaining(claims)}

	cctx, cancel := bounded(ctx, deps.StoreTimeout)
	err = deps.Store.DeleteSessionPointer(cctx, claims.Subject)
	cancel()
	if err != nil {
		res.Failure = RevokeFailurePointerDelete
		res.Err = err
		return res
	}

	cctx, cancel = bounded(ctx, deps.StoreTimeout)
	err = deps.Store.BlacklistAccess(cctx, accessToken, res.Remaining)
	cancel()
	if err != nil {
		res.Failure = RevokeFailureBlacklist
		res.Err = err
		return res
	}

	return res
}
