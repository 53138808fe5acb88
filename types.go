package goToken

import (
	"context"
	"time"
)

// TokenPair is the result of issue, login, register and refresh.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// AuthResult defines a public type used by goToken APIs.
//
// AuthResult is returned by Validate for a verified, non-blacklisted access token.
type AuthResult struct {
	Subject   string
	Role      string
	TokenID   string
	ExpiresAt time.Time
}

// Identity is what a [UserProvider] reports for an authenticated or newly
// created account. Subject becomes the token's sub claim.
type Identity struct {
	Subject string
	Role    string
}

// RegistrationInfo carries registration input to [UserProvider.CreateAccount].
type RegistrationInfo struct {
	Username string
	Password string
	Name     string
	Phone    string
}

// UserProvider is the credential store consumed by Login and Register.
//
// VerifyCredentials must return an error matching [ErrInvalidCredentials] for
// an unknown user or a wrong password. CreateAccount must return an error
// matching [ErrAccountExists] for a duplicate username. Any other error is
// reported as [ErrProviderUnavailable].
type UserProvider interface {
	VerifyCredentials(ctx context.Context, username, password string) (Identity, error)
	CreateAccount(ctx context.Context, info RegistrationInfo) (Identity, error)
}

// RefreshOutcome tags the result of a refresh exchange.
type RefreshOutcome int

const (
	RefreshOK RefreshOutcome = iota
	RefreshInvalid
	RefreshReuseDetected
	RefreshSessionNotFound
	RefreshRateLimited
	RefreshStoreUnavailable
	RefreshIssueFailed
)

func (o RefreshOutcome) String() string {
	switch o {
	case RefreshOK:
		return "ok"
	case RefreshInvalid:
		return "invalid"
	case RefreshReuseDetected:
		return "reuse_detected"
	case RefreshSessionNotFound:
		return "session_not_found"
	case RefreshRateLimited:
		return "rate_limited"
	case RefreshStoreUnavailable:
		return "store_unavailable"
	case RefreshIssueFailed:
		return "issue_failed"
	default:
		return "unknown"
	}
}

// RefreshResult is the tagged form of a refresh exchange. Err is the
// sentinel Refresh would have returned; Pair is set only for RefreshOK.
type RefreshResult struct {
	Outcome RefreshOutcome
	Pair    TokenPair
	Subject string
	Err     error
}

// HealthStatus reports session store reachability.
type HealthStatus struct {
	Available bool
	Latency   time.Duration
}
