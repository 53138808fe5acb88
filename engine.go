package goToken

import (
	"context"
	"strings"
	"time"

	"github.com/MrEthical07/goToken/internal/flows"
	"github.com/MrEthical07/goToken/internal/rate"
	"github.com/MrEthical07/goToken/jwt"
	"github.com/MrEthical07/goToken/session"
	"github.com/rs/zerolog"
)

// Engine defines a public type used by goToken APIs.
//
// Engine instances are built once by [Builder.Build] and are safe for concurrent use.
// All mutable state lives in the session store.
type Engine struct {
	config       Config
	jwtManager   *jwt.Manager
	sessionStore session.Backend
	rateLimiter  *rate.Limiter
	flows        flows.Service
	audit        *auditDispatcher
	metrics      *Metrics
	userProvider UserProvider
	logger       zerolog.Logger
}

// Close flushes pending audit events. It does not close the store.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped describes the auditdropped operation and its observable behavior.
//
// AuditDropped does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot describes the metricssnapshot operation and its observable behavior.
//
// MetricsSnapshot does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:      map[MetricID]uint64{},
			Histograms:    map[MetricID][]uint64{},
			HistogramSums: map[MetricID]time.Duration{},
		}
	}
	return e.metrics.Snapshot()
}

// AccessTTL returns the configured access token lifetime.
func (e *Engine) AccessTTL() time.Duration {
	return e.config.JWT.AccessTTL
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) observe(id MetricID, start time.Time) {
	if e == nil || !e.metrics.LatencyEnabled() {
		return
	}
	e.metrics.Observe(id, time.Since(start))
}

func (e *Engine) log(ctx context.Context) *zerolog.Logger {
	l := e.logger
	if id := requestIDFromContext(ctx); id != "" {
		l = l.With().Str("request_id", id).Logger()
	}
	return &l
}

// Issue mints a new access/refresh pair for subject, records the refresh
// token as valid and points the subject's session at it.
//
// Issue returns [ErrIssueFailed] when signing fails and [ErrStoreUnavailable]
// when the session store cannot be written.
func (e *Engine) Issue(ctx context.Context, subject, role string) (TokenPair, error) {
	if e == nil || !e.flows.Initialized() {
		return TokenPair{}, ErrEngineNotReady
	}
	if strings.TrimSpace(subject) == "" {
		return TokenPair{}, ErrIssueFailed
	}

	res := e.flows.Issue(ctx, subject, role)
	if res.Failure != flows.IssueFailureNone {
		err := e.issueError(ctx, res)
		e.metricInc(MetricIssueFailure)
		e.emitAudit(ctx, auditEventIssue, false, subject, "", err, nil)
		return TokenPair{}, err
	}

	e.metricInc(MetricIssueSuccess)
	e.emitAudit(ctx, auditEventIssue, true, subject, res.RefreshJTI, nil, func() map[string]string {
		if res.SupersededJTI == "" {
			return nil
		}
		return map[string]string{"superseded_jti": res.SupersededJTI}
	})
	return TokenPair{AccessToken: res.AccessToken, RefreshToken: res.RefreshToken}, nil
}

func (e *Engine) issueError(ctx context.Context, res flows.IssueResult) error {
	if res.Failure == flows.IssueFailureStore {
		e.metricInc(MetricStoreUnavailable)
		e.log(ctx).Error().Err(res.Err).Msg("session store write failed during issue")
		return ErrStoreUnavailable
	}
	e.log(ctx).Error().Err(res.Err).Msg("token signing failed")
	return ErrIssueFailed
}

// Refresh exchanges a refresh token for a new pair. The presented token is
// consumed atomically; presenting it again is treated as theft and ends the
// subject's session.
//
// Refresh returns [ErrRefreshInvalid], [ErrRefreshReuse], [ErrSessionNotFound],
// [ErrRefreshRateLimited], [ErrStoreUnavailable] or [ErrIssueFailed].
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	res := e.RefreshWithResult(ctx, refreshToken)
	if res.Outcome != RefreshOK {
		return TokenPair{}, res.Err
	}
	return res.Pair, nil
}

// RefreshWithResult is Refresh with a tagged outcome so callers can branch
// without matching errors.
func (e *Engine) RefreshWithResult(ctx context.Context, refreshToken string) RefreshResult {
	if e == nil || !e.flows.Initialized() {
		return RefreshResult{Outcome: RefreshStoreUnavailable, Err: ErrEngineNotReady}
	}
	start := time.Now()
	defer e.observe(MetricRefreshLatency, start)

	res := e.flows.Refresh(ctx, refreshToken)
	out := RefreshResult{Subject: res.Subject}

	switch res.Failure {
	case flows.RefreshFailureNone:
		out.Outcome = RefreshOK
		out.Pair = TokenPair{AccessToken: res.AccessToken, RefreshToken: res.RefreshToken}
		e.metricInc(MetricRefreshSuccess)
		e.emitAudit(ctx, auditEventRefreshSuccess, true, res.Subject, res.JTI, nil, func() map[string]string {
			return map[string]string{"next_jti": res.NextJTI}
		})
		return out

	case flows.RefreshFailureInvalid:
		out.Outcome, out.Err = RefreshInvalid, ErrRefreshInvalid
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, "", "", out.Err, nil)

	case flows.RefreshFailureRateLimited:
		out.Outcome, out.Err = RefreshRateLimited, ErrRefreshRateLimited
		e.metricInc(MetricRefreshRateLimited)
		e.emitAudit(ctx, auditEventRefreshRateLimited, false, res.Subject, res.JTI, out.Err, nil)

	case flows.RefreshFailureReuse:
		out.Outcome, out.Err = RefreshReuseDetected, ErrRefreshReuse
		e.metricInc(MetricRefreshReuseDetected)
		e.log(ctx).Warn().
			Str("subject", res.Subject).
			Str("jti", res.JTI).
			Str("status", res.Status.String()).
			Msg("refresh token reuse detected; session ended")
		e.emitAudit(ctx, auditEventRefreshReuseDetected, false, res.Subject, res.JTI, out.Err, func() map[string]string {
			return map[string]string{"status": res.Status.String()}
		})

	case flows.RefreshFailureSessionNotFound:
		out.Outcome, out.Err = RefreshSessionNotFound, ErrSessionNotFound
		e.metricInc(MetricRefreshSessionNotFound)
		e.emitAudit(ctx, auditEventRefreshSessionNotFound, false, res.Subject, res.JTI, out.Err, nil)

	case flows.RefreshFailureStore:
		out.Outcome, out.Err = RefreshStoreUnavailable, ErrStoreUnavailable
		e.metricInc(MetricStoreUnavailable)
		e.log(ctx).Error().Err(res.Err).Str("subject", res.Subject).Msg("session store unavailable during refresh")
		e.emitAudit(ctx, auditEventRefreshStoreUnavailable, false, res.Subject, res.JTI, out.Err, nil)

	default:
		out.Outcome, out.Err = RefreshIssueFailed, ErrIssueFailed
		e.metricInc(MetricRefreshFailure)
		e.log(ctx).Error().Err(res.Err).Str("subject", res.Subject).Msg("token signing failed during refresh")
	}

	return out
}

// RevokeAccess ends the session of the access token's subject and blacklists
// the token for the rest of its lifetime.
//
// RevokeAccess returns [ErrAccessInvalid] for an unverifiable token and
// [ErrStoreUnavailable] when either store step fails.
func (e *Engine) RevokeAccess(ctx context.Context, accessToken string) error {
	if e == nil || !e.flows.Initialized() {
		return ErrEngineNotReady
	}

	res := e.flows.RevokeAccess(ctx, accessToken)
	if err := e.revokeError(res); err != nil {
		e.emitAudit(ctx, auditEventAccessRevoked, false, res.Subject, "", err, func() map[string]string {
			return map[string]string{"reason": res.Failure.String()}
		})
		return err
	}

	e.metricInc(MetricAccessRevoked)
	e.emitAudit(ctx, auditEventAccessRevoked, true, res.Subject, "", nil, nil)
	return nil
}

func (e *Engine) revokeError(res flows.RevokeResult) error {
	switch res.Failure {
	case flows.RevokeFailureNone:
		return nil
	case flows.RevokeFailureInvalid:
		return ErrAccessInvalid
	default:
		e.metricInc(MetricStoreUnavailable)
		return ErrStoreUnavailable
	}
}

// Logout is the fail-soft form of RevokeAccess. It reports success as a
// bool and logs each failure reason separately.
func (e *Engine) Logout(ctx context.Context, accessToken string) bool {
	if e == nil || !e.flows.Initialized() {
		return false
	}

	res := e.flows.RevokeAccess(ctx, accessToken)
	if err := e.revokeError(res); err != nil {
		e.metricInc(MetricLogoutFailure)
		level := zerolog.InfoLevel
		if res.Failure != flows.RevokeFailureInvalid {
			level = zerolog.ErrorLevel
		}
		e.log(ctx).WithLevel(level).
			Err(res.Err).
			Str("reason", res.Failure.String()).
			Str("subject", res.Subject).
			Msg("logout failed")
		e.emitAudit(ctx, auditEventLogout, false, res.Subject, "", err, func() map[string]string {
			return map[string]string{"reason": res.Failure.String()}
		})
		return false
	}

	e.metricInc(MetricLogout)
	e.emitAudit(ctx, auditEventLogout, true, res.Subject, "", nil, nil)
	return true
}

// Validate verifies an access token and checks it against the blacklist.
//
// Validate returns [ErrTokenInvalid] for a token that fails verification or
// was revoked, and [ErrStoreUnavailable] when the blacklist cannot be read.
func (e *Engine) Validate(ctx context.Context, accessToken string) (*AuthResult, error) {
	if e == nil || !e.flows.Initialized() {
		return nil, ErrEngineNotReady
	}
	start := time.Now()
	defer e.observe(MetricValidateLatency, start)

	res := e.flows.Validate(ctx, accessToken)
	switch res.Failure {
	case flows.ValidateFailureNone:
	case flows.ValidateFailureBlacklisted:
		e.metricInc(MetricBlacklistHit)
		e.metricInc(MetricValidateFailure)
		return nil, ErrTokenInvalid
	case flows.ValidateFailureStore:
		e.metricInc(MetricStoreUnavailable)
		e.log(ctx).Error().Err(res.Err).Msg("blacklist lookup failed")
		return nil, ErrStoreUnavailable
	default:
		e.metricInc(MetricValidateFailure)
		return nil, ErrTokenInvalid
	}

	e.metricInc(MetricValidateSuccess)
	out := &AuthResult{
		Subject: res.Claims.Subject,
		Role:    res.Claims.Role,
		TokenID: res.Claims.ID,
	}
	if res.Claims.ExpiresAt != nil {
		out.ExpiresAt = res.Claims.ExpiresAt.Time
	}
	return out, nil
}

// Health pings the session store within the configured operation timeout.
func (e *Engine) Health(ctx context.Context) HealthStatus {
	if e == nil || e.sessionStore == nil {
		return HealthStatus{}
	}

	cctx, cancel := context.WithTimeout(ctx, e.config.Store.OperationTimeout)
	defer cancel()

	latency, err := e.sessionStore.Ping(cctx)
	if err != nil {
		e.log(ctx).Warn().Err(err).Msg("session store ping failed")
		return HealthStatus{Latency: latency}
	}
	return HealthStatus{Available: true, Latency: latency}
}
