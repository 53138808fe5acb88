package internaldefs

import (
	goToken "github.com/MrEthical07/goToken"
)

// CounterDef binds an engine counter to its exported name.
type CounterDef struct {
	ID   goToken.MetricID
	Name string
	Help string
}

// HistogramDef binds an engine latency histogram to its exported name.
type HistogramDef struct {
	ID   goToken.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported engine counter.
var CounterDefs = []CounterDef{
	{ID: goToken.MetricIssueSuccess, Name: "gotoken_issue_success_total", Help: "Token pairs issued."},
	{ID: goToken.MetricIssueFailure, Name: "gotoken_issue_failure_total", Help: "Failed token pair issues."},
	{ID: goToken.MetricLoginSuccess, Name: "gotoken_login_success_total", Help: "Successful login attempts."},
	{ID: goToken.MetricLoginFailure, Name: "gotoken_login_failure_total", Help: "Failed login attempts."},
	{ID: goToken.MetricLoginRateLimited, Name: "gotoken_login_rate_limited_total", Help: "Rate-limited login attempts."},
	{ID: goToken.MetricRegisterSuccess, Name: "gotoken_register_success_total", Help: "Successful registrations."},
	{ID: goToken.MetricRegisterDuplicate, Name: "gotoken_register_duplicate_total", Help: "Registrations rejected as duplicate."},
	{ID: goToken.MetricRefreshSuccess, Name: "gotoken_refresh_success_total", Help: "Successful refresh exchanges."},
	{ID: goToken.MetricRefreshFailure, Name: "gotoken_refresh_failure_total", Help: "Refresh exchanges rejected as invalid or failed to sign."},
	{ID: goToken.MetricRefreshReuseDetected, Name: "gotoken_refresh_reuse_detected_total", Help: "Detected refresh token reuses."},
	{ID: goToken.MetricRefreshSessionNotFound, Name: "gotoken_refresh_session_not_found_total", Help: "Refresh exchanges without a live session."},
	{ID: goToken.MetricRefreshRateLimited, Name: "gotoken_refresh_rate_limited_total", Help: "Rate-limited refresh attempts."},
	{ID: goToken.MetricAccessRevoked, Name: "gotoken_access_revoked_total", Help: "Access tokens revoked."},
	{ID: goToken.MetricLogout, Name: "gotoken_logout_total", Help: "Successful logouts."},
	{ID: goToken.MetricLogoutFailure, Name: "gotoken_logout_failure_total", Help: "Failed logouts."},
	{ID: goToken.MetricValidateSuccess, Name: "gotoken_validate_success_total", Help: "Access tokens accepted."},
	{ID: goToken.MetricValidateFailure, Name: "gotoken_validate_failure_total", Help: "Access tokens rejected."},
	{ID: goToken.MetricBlacklistHit, Name: "gotoken_blacklist_hit_total", Help: "Access tokens rejected by the blacklist."},
	{ID: goToken.MetricStoreUnavailable, Name: "gotoken_store_unavailable_total", Help: "Operations failed by session store errors."},
}

// HistogramDefs lists every exported latency histogram.
var HistogramDefs = []HistogramDef{
	{ID: goToken.MetricValidateLatency, Name: "gotoken_validate_latency_seconds", Help: "Validate latency histogram."},
	{ID: goToken.MetricRefreshLatency, Name: "gotoken_refresh_latency_seconds", Help: "Refresh latency histogram."},
}

// HistogramUpperBounds are the finite bucket bounds in seconds. The last
// engine bucket is +Inf.
var HistogramUpperBounds = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

// HistogramBoundSuffix names each bucket, +Inf included, for exporters that
// publish buckets as separate instruments.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets copies raw into a fixed eight-bucket array.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets converts per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
