package flows

import (
	"context"
	"time"

	"github.com/MrEthical07/goToken/session"
)

// IssueFailureKind classifies issue flow failures for root-level mapping.
type IssueFailureKind int

const (
	IssueFailureNone IssueFailureKind = iota
	IssueFailureSign
	IssueFailureStore
)

// IssueResult carries the new pair or failure metadata.
type IssueResult struct {
	Failure       IssueFailureKind
	Err           error
	AccessToken   string
	RefreshToken  string
	RefreshJTI    string
	SupersededJTI string
}

// IssueDeps captures issue flow dependencies.
type IssueDeps struct {
	Codec        TokenCodec
	Store        session.Backend
	StoreTimeout time.Duration
	// RevokeSuperseded marks the refresh token currently behind the subject's
	// pointer revoked before the pointer is overwritten.
	RevokeSuperseded bool
}

// RunIssue mints an access/refresh pair for subject and records the refresh
// validity and session pointer.
func RunIssue(ctx context.Context, subject, role string, deps IssueDeps) IssueResult {
	return runIssue(ctx, subject, role, deps, deps.RevokeSuperseded)
}

func runIssue(ctx context.Context, subject, role string, deps IssueDeps, revokeSuperseded bool) IssueResult {
	access, err := deps.Codec.CreateAccess(subject, role)
	if err != nil {
		return IssueResult{Failure: IssueFailureSign, Err: err}
	}
	refresh, jti, err := deps.Codec.CreateRefresh(subject, role)
	if err != nil {
		return IssueResult{Failure: IssueFailureSign, Err: err}
	}

	var superseded string
	if revokeSuperseded {
		superseded, err = revokeCurrent(ctx, subject, deps)
		if err != nil {
			return IssueResult{Failure: IssueFailureStore, Err: err}
		}
	}

	cctx, cancel := bounded(ctx, deps.StoreTimeout)
	defer cancel()
	if err := deps.Store.SaveIssued(cctx, subject, jti, refresh, deps.Codec.RefreshTTL()); err != nil {
		return IssueResult{Failure: IssueFailureStore, Err: err}
	}

	return IssueResult{
		AccessToken:   access,
		RefreshToken:  refresh,
		RefreshJTI:    jti,
		SupersededJTI: superseded,
	}
}

// revokeCurrent revokes the record behind the subject's pointer. A pointer
// that no longer parses (expired, rotated keys) is skipped.
func revokeCurrent(ctx context.Context, subject string, deps IssueDeps) (string, error) {
	current, ok, err := getPointer(ctx, deps.Store, deps.StoreTimeout, subject)
	if err != nil || !ok {
		return "", err
	}
	claims, err := deps.Codec.ParseRefresh(current)
	if err != nil {
		return "", nil
	}

	cctx, cancel := bounded(ctx, deps.StoreTimeout)
	defer cancel()
	if err := deps.Store.RevokeRefresh(cctx, claims.ID); err != nil {
		return "", err
	}
	return claims.ID, nil
}
