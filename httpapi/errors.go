package httpapi

import (
	"errors"
	"net/http"

	goToken "github.com/MrEthical07/goToken"
)

type apiError struct {
	status  int
	code    string
	message string
}

// errorFor maps engine sentinels to HTTP status and a stable error code.
func errorFor(err error) apiError {
	switch {
	case errors.Is(err, goToken.ErrInvalidCredentials):
		return apiError{http.StatusUnauthorized, "INVALID_CREDENTIALS", "invalid username or password"}
	case errors.Is(err, goToken.ErrAccountExists):
		return apiError{http.StatusConflict, "ACCOUNT_EXISTS", "account already exists"}
	case errors.Is(err, goToken.ErrLoginRateLimited), errors.Is(err, goToken.ErrRefreshRateLimited):
		return apiError{http.StatusTooManyRequests, "RATE_LIMITED", "too many attempts"}
	case errors.Is(err, goToken.ErrRefreshReuse):
		return apiError{http.StatusUnauthorized, "REFRESH_REUSED", "refresh token already used; session ended"}
	case errors.Is(err, goToken.ErrSessionNotFound):
		return apiError{http.StatusUnauthorized, "SESSION_NOT_FOUND", "no active session"}
	case errors.Is(err, goToken.ErrRefreshInvalid):
		return apiError{http.StatusUnauthorized, "INVALID_REFRESH_TOKEN", "invalid refresh token"}
	case errors.Is(err, goToken.ErrAccessInvalid), errors.Is(err, goToken.ErrTokenInvalid):
		return apiError{http.StatusUnauthorized, "INVALID_TOKEN", "invalid access token"}
	case errors.Is(err, goToken.ErrStoreUnavailable), errors.Is(err, goToken.ErrProviderUnavailable):
		return apiError{http.StatusServiceUnavailable, "UNAVAILABLE", "service temporarily unavailable"}
	default:
		return apiError{http.StatusInternalServerError, "INTERNAL", "internal error"}
	}
}
