package flows

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Identity is the flow-local view of an authenticated account.
type Identity struct {
	Subject string
	Role    string
}

// LoginFailureKind classifies login and register failures.
type LoginFailureKind int

const (
	LoginFailureNone LoginFailureKind = iota
	LoginFailureInvalidInput
	LoginFailureRateLimited
	LoginFailureCredentials
	LoginFailureAccountExists
	LoginFailureProvider
	LoginFailureIssue
)

// LoginResult carries the issued pair or failure metadata.
type LoginResult struct {
	Failure      LoginFailureKind
	Err          error
	Identity     Identity
	AccessToken  string
	RefreshToken string
	Issue        IssueResult
}

type LoginRateLimiter interface {
	CheckLogin(ctx context.Context, username, ip string) error
	IncrementLogin(ctx context.Context, username, ip string) error
	ResetLogin(ctx context.Context, username, ip string) error
}

// LoginDeps captures login flow dependencies.
type LoginDeps struct {
	Issue               IssueDeps
	VerifyCredentials   func(ctx context.Context, username, password string) (Identity, error)
	ClientIPFromContext func(context.Context) string
	RateLimiter         LoginRateLimiter
	RateLimited         error
	InvalidCredentials  error
	StoreTimeout        time.Duration
	Warn                func(error, string)
}

// RunLogin verifies credentials through the provider and issues a pair.
// Failed attempts count against the login limiter; success resets it.
func RunLogin(ctx context.Context, username, password string, deps LoginDeps) LoginResult {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return LoginResult{Failure: LoginFailureInvalidInput, Err: deps.InvalidCredentials}
	}

	ip := ""
	if deps.ClientIPFromContext != nil {
		ip = deps.ClientIPFromContext(ctx)
	}

	if deps.RateLimiter != nil {
		cctx, cancel := bounded(ctx, deps.StoreTimeout)
		err := deps.RateLimiter.CheckLogin(cctx, username, ip)
		cancel()
		if err != nil {
			if deps.RateLimited != nil && errors.Is(err, deps.RateLimited) {
				return LoginResult{Failure: LoginFailureRateLimited, Err: err}
			}
			return LoginResult{Failure: LoginFailureProvider, Err: err}
		}
	}

	identity, err := deps.VerifyCredentials(ctx, username, password)
	if err != nil {
		if deps.InvalidCredentials == nil || !errors.Is(err, deps.InvalidCredentials) {
			return LoginResult{Failure: LoginFailureProvider, Err: err}
		}
		if deps.RateLimiter != nil {
			cctx, cancel := bounded(ctx, deps.StoreTimeout)
			incErr := deps.RateLimiter.IncrementLogin(cctx, username, ip)
			cancel()
			if incErr != nil {
				if deps.RateLimited != nil && errors.Is(incErr, deps.RateLimited) {
					return LoginResult{Failure: LoginFailureRateLimited, Err: incErr}
				}
				warn(deps.Warn, incErr, "login attempt counter update failed")
			}
		}
		return LoginResult{Failure: LoginFailureCredentials, Err: err}
	}

	if deps.RateLimiter != nil {
		cctx, cancel := bounded(ctx, deps.StoreTimeout)
		err := deps.RateLimiter.ResetLogin(cctx, username, ip)
		cancel()
		if err != nil {
			warn(deps.Warn, err, "login attempt counter reset failed")
		}
	}

	return issueFor(ctx, identity, deps.Issue)
}

// RegisterDeps captures register flow dependencies.
type RegisterDeps struct {
	Issue         IssueDeps
	CreateAccount func(ctx context.Context, username, password, name, phone string) (Identity, error)
	AccountExists error
}

// RunRegister creates the account through the provider and issues a pair.
func RunRegister(ctx context.Context, username, password, name, phone string, deps RegisterDeps) LoginResult {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return LoginResult{Failure: LoginFailureInvalidInput}
	}

	identity, err := deps.CreateAccount(ctx, username, password, name, phone)
	if err != nil {
		if deps.AccountExists != nil && errors.Is(err, deps.AccountExists) {
			return LoginResult{Failure: LoginFailureAccountExists, Err: err}
		}
		return LoginResult{Failure: LoginFailureProvider, Err: err}
	}

	return issueFor(ctx, identity, deps.Issue)
}

func issueFor(ctx context.Context, identity Identity, deps IssueDeps) LoginResult {
	issued := RunIssue(ctx, identity.Subject, identity.Role, deps)
	if issued.Failure != IssueFailureNone {
		return LoginResult{Failure: LoginFailureIssue, Err: issued.Err, Identity: identity, Issue: issued}
	}
	return LoginResult{
		Identity:     identity,
		AccessToken:  issued.AccessToken,
		RefreshToken: issued.RefreshToken,
		Issue:        issued,
	}
}

func warn(fn func(error, string), err error, msg string) {
	if fn != nil {
		fn(err, msg)
	}
}
