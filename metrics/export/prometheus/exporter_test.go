package prometheus

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	goToken "github.com/MrEthical07/goToken"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type fakeSource struct {
	snapshot goToken.MetricsSnapshot
	dropped  uint64
}

func (f fakeSource) MetricsSnapshot() goToken.MetricsSnapshot { return f.snapshot }
func (f fakeSource) AuditDropped() uint64                     { return f.dropped }

func TestCollectEmptyWhenMetricsDisabled(t *testing.T) {
	exp := NewPrometheusExporterFromSource(fakeSource{
		snapshot: goToken.MetricsSnapshot{
			Counters:   map[goToken.MetricID]uint64{},
			Histograms: map[goToken.MetricID][]uint64{},
		},
	})

	if n := testutil.CollectAndCount(exp); n != 0 {
		t.Fatalf("expected no samples for disabled metrics, got %d", n)
	}
}

func TestCollectCounterAndHistogram(t *testing.T) {
	exp := NewPrometheusExporterFromSource(fakeSource{
		snapshot: goToken.MetricsSnapshot{
			Counters: map[goToken.MetricID]uint64{
				goToken.MetricRefreshReuseDetected: 7,
			},
			Histograms: map[goToken.MetricID][]uint64{
				goToken.MetricValidateLatency: {1, 2, 3, 4, 5, 6, 7, 8},
			},
			HistogramSums: map[goToken.MetricID]time.Duration{
				goToken.MetricValidateLatency: 1500 * time.Millisecond,
			},
		},
		dropped: 2,
	})

	expected := `
# HELP gotoken_refresh_reuse_detected_total Detected refresh token reuses.
# TYPE gotoken_refresh_reuse_detected_total counter
gotoken_refresh_reuse_detected_total 7
# HELP gotoken_audit_dropped_total Dropped audit events due to dispatcher backpressure.
# TYPE gotoken_audit_dropped_total counter
gotoken_audit_dropped_total 2
# HELP gotoken_validate_latency_seconds Validate latency histogram.
# TYPE gotoken_validate_latency_seconds histogram
gotoken_validate_latency_seconds_bucket{le="0.005"} 1
gotoken_validate_latency_seconds_bucket{le="0.01"} 3
gotoken_validate_latency_seconds_bucket{le="0.025"} 6
gotoken_validate_latency_seconds_bucket{le="0.05"} 10
gotoken_validate_latency_seconds_bucket{le="0.1"} 15
gotoken_validate_latency_seconds_bucket{le="0.25"} 21
gotoken_validate_latency_seconds_bucket{le="0.5"} 28
gotoken_validate_latency_seconds_bucket{le="+Inf"} 36
gotoken_validate_latency_seconds_sum 1.5
gotoken_validate_latency_seconds_count 36
`
	err := testutil.CollectAndCompare(exp, strings.NewReader(expected),
		"gotoken_refresh_reuse_detected_total",
		"gotoken_audit_dropped_total",
		"gotoken_validate_latency_seconds",
	)
	if err != nil {
		t.Fatalf("unexpected exposition: %v", err)
	}
}

func TestCollectorLint(t *testing.T) {
	exp := NewPrometheusExporterFromSource(fakeSource{
		snapshot: goToken.MetricsSnapshot{
			Counters: map[goToken.MetricID]uint64{goToken.MetricLoginSuccess: 1},
		},
	})
	problems, err := testutil.CollectAndLint(exp)
	if err != nil {
		t.Fatalf("lint failed: %v", err)
	}
	if len(problems) != 0 {
		t.Fatalf("unexpected lint problems: %v", problems)
	}
}

func TestHandlerServesExposition(t *testing.T) {
	exp := NewPrometheusExporterFromSource(fakeSource{
		snapshot: goToken.MetricsSnapshot{
			Counters: map[goToken.MetricID]uint64{goToken.MetricLoginSuccess: 1},
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	exp.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "gotoken_login_success_total 1") {
		t.Fatalf("expected login counter in body, got:\n%s", rec.Body.String())
	}
}

func BenchmarkCollect(b *testing.B) {
	exp := NewPrometheusExporterFromSource(fakeSource{
		snapshot: goToken.MetricsSnapshot{
			Counters: map[goToken.MetricID]uint64{
				goToken.MetricLoginSuccess:   1000,
				goToken.MetricRefreshSuccess: 800,
				goToken.MetricBlacklistHit:   3,
			},
			Histograms: map[goToken.MetricID][]uint64{
				goToken.MetricValidateLatency: {10, 20, 30, 40, 50, 60, 70, 80},
			},
		},
	})

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = testutil.CollectAndCount(exp)
	}
}
