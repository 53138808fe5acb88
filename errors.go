package goToken

import (
	"errors"

	"github.com/MrEthical07/goToken/session"
)

var (
	// ErrTokenInvalid is returned for any access token that fails verification
	// or has been revoked. Parse details are never exposed.
	ErrTokenInvalid = errors.New("invalid token")
	// ErrAccessInvalid is an exported constant or variable used by the token engine.
	ErrAccessInvalid = errors.New("invalid access token")
	// ErrRefreshInvalid is an exported constant or variable used by the token engine.
	ErrRefreshInvalid = errors.New("invalid refresh token")
	// ErrRefreshReuse is returned when an already-consumed or revoked refresh
	// token is presented again. The subject's session has been ended.
	ErrRefreshReuse = errors.New("refresh token reuse detected")
	// ErrSessionNotFound is an exported constant or variable used by the token engine.
	ErrSessionNotFound = errors.New("session not found")
	// ErrStoreUnavailable is an alias of session.ErrStoreUnavailable so callers
	// can match infrastructure failures without importing session.
	ErrStoreUnavailable = session.ErrStoreUnavailable
	// ErrIssueFailed is returned when a token pair could not be signed.
	ErrIssueFailed = errors.New("token issue failed")
	// ErrUnauthorized is an exported constant or variable used by the token engine.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrInvalidCredentials is an exported constant or variable used by the token engine.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountExists is an exported constant or variable used by the token engine.
	ErrAccountExists = errors.New("account already exists")
	// ErrProviderUnavailable is returned when the credential provider fails for
	// reasons other than bad credentials.
	ErrProviderUnavailable = errors.New("credential provider unavailable")
	// ErrLoginRateLimited is an exported constant or variable used by the token engine.
	ErrLoginRateLimited = errors.New("login rate limited")
	// ErrRefreshRateLimited is an exported constant or variable used by the token engine.
	ErrRefreshRateLimited = errors.New("refresh rate limited")
	// ErrEngineNotReady is an exported constant or variable used by the token engine.
	ErrEngineNotReady = errors.New("engine not initialized")
)
