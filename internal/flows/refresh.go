package flows

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/goToken/session"
)

// RefreshFailureKind classifies refresh flow failures for root-level mapping.
type RefreshFailureKind int

const (
	RefreshFailureNone RefreshFailureKind = iota
	RefreshFailureInvalid
	RefreshFailureRateLimited
	RefreshFailureReuse
	RefreshFailureSessionNotFound
	RefreshFailureStore
	RefreshFailureIssue
)

// RefreshResult carries either the issued token pair or failure metadata.
// Status is set whenever the store consumption step ran.
type RefreshResult struct {
	Failure      RefreshFailureKind
	Err          error
	Subject      string
	Role         string
	JTI          string
	Status       session.ConsumeStatus
	AccessToken  string
	RefreshToken string
	NextJTI      string
}

type RefreshRateLimiter interface {
	CheckRefresh(ctx context.Context, subject string) error
}

// RefreshDeps captures refresh flow dependencies.
type RefreshDeps struct {
	Issue        IssueDeps
	RateLimiter  RefreshRateLimiter
	RateLimited  error
	StoreTimeout time.Duration
}

// RunRefresh verifies refreshToken, consumes its validity record atomically
// and issues a replacement pair. On reuse the store has already dropped the
// subject's session pointer by the time this returns.
//
// The throttle only counts tokens whose record is still valid. Replays of
// rotated or revoked tokens go straight to ConsumeRefresh so reuse handling
// runs even when the subject's window is spent.
func RunRefresh(ctx context.Context, refreshToken string, deps RefreshDeps) RefreshResult {
	claims, err := deps.Issue.Codec.ParseRefresh(refreshToken)
	if err != nil {
		return RefreshResult{Failure: RefreshFailureInvalid, Err: err}
	}

	res := RefreshResult{
		Subject: claims.Subject,
		Role:    claims.Role,
		JTI:     claims.ID,
	}

	if deps.RateLimiter != nil {
		cctx, cancel := bounded(ctx, deps.StoreTimeout)
		state, err := deps.Issue.Store.GetRefreshValidity(cctx, claims.ID)
		cancel()
		if err != nil {
			res.Failure = RefreshFailureStore
			res.Err = err
			return res
		}
		if state == session.ValidityValid {
			cctx, cancel := bounded(ctx, deps.StoreTimeout)
			err := deps.RateLimiter.CheckRefresh(cctx, claims.Subject)
			cancel()
			if err != nil {
				res.Err = err
				res.Failure = RefreshFailureStore
				if deps.RateLimited != nil && errors.Is(err, deps.RateLimited) {
					res.Failure = RefreshFailureRateLimited
				}
				return res
			}
		}
	}

	cctx, cancel := bounded(ctx, deps.StoreTimeout)
	status, err := deps.Issue.Store.ConsumeRefresh(cctx, claims.ID, claims.Subject, deps.Issue.Codec.Remaining(claims))
	cancel()
	if err != nil {
		res.Failure = RefreshFailureStore
		res.Err = err
		return res
	}
	res.Status = status

	switch status {
	case session.ConsumeReuseAbsent, session.ConsumeReuseRevoked:
		res.Failure = RefreshFailureReuse
		return res
	case session.ConsumeSessionNotFound:
		res.Failure = RefreshFailureSessionNotFound
		return res
	}

	issued := runIssue(ctx, claims.Subject, claims.Role, deps.Issue, false)
	switch issued.Failure {
	case IssueFailureNone:
	case IssueFailureStore:
		res.Failure = RefreshFailureStore
		res.Err = issued.Err
		return res
	default:
		res.Failure = RefreshFailureIssue
		res.Err = issued.Err
		return res
	}

	res.AccessToken = issued.AccessToken
	res.RefreshToken = issued.RefreshToken
	res.NextJTI = issued.RefreshJTI
	return res
}
