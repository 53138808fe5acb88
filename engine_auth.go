package goToken

import (
	"context"
	"errors"

	"github.com/MrEthical07/goToken/internal/flows"
	"github.com/MrEthical07/goToken/internal/rate"
)

// Register creates an account through the configured [UserProvider] and
// issues the first token pair for it.
//
// Register returns [ErrAccountExists] for a duplicate username and
// [ErrInvalidCredentials] when username or password is empty.
func (e *Engine) Register(ctx context.Context, info RegistrationInfo) (TokenPair, error) {
	if e == nil || !e.flows.Initialized() || e.userProvider == nil {
		return TokenPair{}, ErrEngineNotReady
	}

	res := e.flows.Register(ctx, info.Username, info.Password, info.Name, info.Phone)
	if res.Failure != flows.LoginFailureNone {
		err := e.loginError(ctx, res)
		switch res.Failure {
		case flows.LoginFailureAccountExists:
			e.metricInc(MetricRegisterDuplicate)
			e.emitAudit(ctx, auditEventRegisterDuplicate, false, "", "", err, func() map[string]string {
				return map[string]string{"identifier": info.Username}
			})
		default:
			e.emitAudit(ctx, auditEventRegisterFailure, false, res.Identity.Subject, "", err, nil)
		}
		return TokenPair{}, err
	}

	e.metricInc(MetricRegisterSuccess)
	e.emitAudit(ctx, auditEventRegisterSuccess, true, res.Identity.Subject, res.Issue.RefreshJTI, nil, nil)
	return TokenPair{AccessToken: res.AccessToken, RefreshToken: res.RefreshToken}, nil
}

// Login verifies credentials through the configured [UserProvider] and
// issues a token pair. When login throttling is enabled, failed attempts
// count against the username (and client IP) window.
//
// Login describes failures only as [ErrInvalidCredentials],
// [ErrLoginRateLimited], [ErrProviderUnavailable], [ErrStoreUnavailable] or
// [ErrIssueFailed].
func (e *Engine) Login(ctx context.Context, username, password string) (TokenPair, error) {
	if e == nil || !e.flows.Initialized() || e.userProvider == nil {
		return TokenPair{}, ErrEngineNotReady
	}

	res := e.flows.Login(ctx, username, password)
	if res.Failure != flows.LoginFailureNone {
		err := e.loginError(ctx, res)
		if res.Failure == flows.LoginFailureRateLimited {
			e.metricInc(MetricLoginRateLimited)
			e.emitAudit(ctx, auditEventLoginRateLimited, false, "", "", err, func() map[string]string {
				return map[string]string{"identifier": username}
			})
			return TokenPair{}, err
		}
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, res.Identity.Subject, "", err, func() map[string]string {
			return map[string]string{"identifier": username}
		})
		return TokenPair{}, err
	}

	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, auditEventLoginSuccess, true, res.Identity.Subject, res.Issue.RefreshJTI, nil, nil)
	return TokenPair{AccessToken: res.AccessToken, RefreshToken: res.RefreshToken}, nil
}

func (e *Engine) loginError(ctx context.Context, res flows.LoginResult) error {
	switch res.Failure {
	case flows.LoginFailureInvalidInput, flows.LoginFailureCredentials:
		return ErrInvalidCredentials
	case flows.LoginFailureRateLimited:
		return ErrLoginRateLimited
	case flows.LoginFailureAccountExists:
		return ErrAccountExists
	case flows.LoginFailureIssue:
		return e.issueError(ctx, res.Issue)
	default:
		if errors.Is(res.Err, rate.ErrRedisUnavailable) {
			e.metricInc(MetricStoreUnavailable)
			e.log(ctx).Error().Err(res.Err).Msg("login throttle unavailable")
			return ErrStoreUnavailable
		}
		e.log(ctx).Error().Err(res.Err).Msg("credential provider failed")
		return ErrProviderUnavailable
	}
}

// AdminRevoke revokes the given access token on behalf of an operator and
// reports whether both the session pointer and the blacklist were updated.
func (e *Engine) AdminRevoke(ctx context.Context, accessToken string) bool {
	return e.AdminRevokeAccess(ctx, accessToken) == nil
}

// AdminRevokeAccess is AdminRevoke with the failure cause: [ErrAccessInvalid]
// for an unverifiable token, [ErrStoreUnavailable] when a store step fails.
func (e *Engine) AdminRevokeAccess(ctx context.Context, accessToken string) error {
	if e == nil || !e.flows.Initialized() {
		return ErrEngineNotReady
	}

	res := e.flows.RevokeAccess(ctx, accessToken)
	if err := e.revokeError(res); err != nil {
		e.log(ctx).Warn().Str("reason", res.Failure.String()).Str("subject", res.Subject).Msg("admin revoke failed")
		e.emitAudit(ctx, auditEventAdminRevoke, false, res.Subject, "", err, func() map[string]string {
			return map[string]string{"reason": res.Failure.String()}
		})
		return err
	}

	e.metricInc(MetricAccessRevoked)
	e.emitAudit(ctx, auditEventAdminRevoke, true, res.Subject, "", nil, nil)
	return nil
}
