package goToken

import (
	"context"
	"errors"
	"time"
)

const (
	auditEventIssue                   = "token_issued"
	auditEventLoginSuccess            = "login_success"
	auditEventLoginFailure            = "login_failure"
	auditEventLoginRateLimited        = "login_rate_limited"
	auditEventRegisterSuccess         = "register_success"
	auditEventRegisterFailure         = "register_failure"
	auditEventRegisterDuplicate       = "register_duplicate"
	auditEventRefreshSuccess          = "refresh_success"
	auditEventRefreshInvalid          = "refresh_invalid"
	auditEventRefreshRateLimited      = "refresh_rate_limited"
	auditEventRefreshReuseDetected    = "refresh_reuse_detected"
	auditEventRefreshSessionNotFound  = "refresh_session_not_found"
	auditEventRefreshStoreUnavailable = "refresh_store_unavailable"
	auditEventAccessRevoked           = "access_revoked"
	auditEventLogout                  = "logout"
	auditEventAdminRevoke             = "admin_revoke"
)

// AuditErrorCode is the stable, non-sensitive error label carried in
// [AuditEvent.Error].
type AuditErrorCode string

const (
	auditErrUnauthorized       AuditErrorCode = "unauthorized"
	auditErrInvalidCredentials AuditErrorCode = "invalid_credentials"
	auditErrRateLimited        AuditErrorCode = "rate_limited"
	auditErrRefreshReuse       AuditErrorCode = "refresh_reuse"
	auditErrInvalidToken       AuditErrorCode = "invalid_token"
	auditErrSessionNotFound    AuditErrorCode = "session_not_found"
	auditErrDuplicate          AuditErrorCode = "duplicate"
	auditErrIssueFailed        AuditErrorCode = "issue_failed"
	auditErrUnavailable        AuditErrorCode = "backend_unavailable"
	auditErrInternal           AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	subject string,
	jti string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		Subject:   subject,
		JTI:       jti,
		IP:        clientIPFromContext(ctx),
		RequestID: requestIDFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrUnauthorized):
		return auditErrUnauthorized
	case errors.Is(err, ErrInvalidCredentials):
		return auditErrInvalidCredentials
	case errors.Is(err, ErrLoginRateLimited),
		errors.Is(err, ErrRefreshRateLimited):
		return auditErrRateLimited
	case errors.Is(err, ErrRefreshReuse):
		return auditErrRefreshReuse
	case errors.Is(err, ErrRefreshInvalid),
		errors.Is(err, ErrAccessInvalid),
		errors.Is(err, ErrTokenInvalid):
		return auditErrInvalidToken
	case errors.Is(err, ErrSessionNotFound):
		return auditErrSessionNotFound
	case errors.Is(err, ErrAccountExists):
		return auditErrDuplicate
	case errors.Is(err, ErrIssueFailed):
		return auditErrIssueFailed
	case errors.Is(err, ErrStoreUnavailable),
		errors.Is(err, ErrProviderUnavailable):
		return auditErrUnavailable
	default:
		return auditErrInternal
	}
}
