package otel

import (
	"context"
	"sync"
	"testing"
	"time"

	goToken "github.com/MrEthical07/goToken"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

type fakeSource struct {
	mu       sync.RWMutex
	snapshot goToken.MetricsSnapshot
	dropped  uint64
}

func (f *fakeSource) MetricsSnapshot() goToken.MetricsSnapshot {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := goToken.MetricsSnapshot{
		Counters:      make(map[goToken.MetricID]uint64, len(f.snapshot.Counters)),
		Histograms:    make(map[goToken.MetricID][]uint64, len(f.snapshot.Histograms)),
		HistogramSums: make(map[goToken.MetricID]time.Duration, len(f.snapshot.HistogramSums)),
	}
	for k, v := range f.snapshot.Counters {
		out.Counters[k] = v
	}
	for k, buckets := range f.snapshot.Histograms {
		next := make([]uint64, len(buckets))
		copy(next, buckets)
		out.Histograms[k] = next
	}
	for k, v := range f.snapshot.HistogramSums {
		out.HistogramSums[k] = v
	}
	return out
}

func (f *fakeSource) AuditDropped() uint64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.dropped
}

func newTestMeter() (*sdkmetric.ManualReader, *sdkmetric.MeterProvider) {
	reader := sdkmetric.NewManualReader()
	return reader, sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
}

func findMetric(rm metricdata.ResourceMetrics, name string) (metricdata.Metrics, bool) {
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name == name {
				return m, true
			}
		}
	}
	return metricdata.Metrics{}, false
}

func TestExporterRegistersAndCollects(t *testing.T) {
	reader, provider := newTestMeter()
	meter := provider.Meter("gotoken-test")

	src := &fakeSource{
		snapshot: goToken.MetricsSnapshot{
			Counters: map[goToken.MetricID]uint64{
				goToken.MetricRefreshReuseDetected: 3,
			},
			Histograms: map[goToken.MetricID][]uint64{
				goToken.MetricRefreshLatency: {1, 1, 1, 1, 1, 1, 1, 1},
			},
			HistogramSums: map[goToken.MetricID]time.Duration{
				goToken.MetricRefreshLatency: 2 * time.Second,
			},
		},
		dropped: 1,
	}

	exp, err := NewOTelExporterFromSource(meter, src)
	if err != nil {
		t.Fatalf("NewOTelExporterFromSource failed: %v", err)
	}
	defer func() {
		if err := exp.Close(); err != nil {
			t.Fatalf("Close failed: %v", err)
		}
	}()

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect failed: %v", err)
	}

	reuse, ok := findMetric(rm, "gotoken_refresh_reuse_detected_total")
	if !ok {
		t.Fatal("reuse counter not collected")
	}
	sum, ok := reuse.Data.(metricdata.Sum[int64])
	if !ok || len(sum.DataPoints) != 1 || sum.DataPoints[0].Value != 3 {
		t.Fatalf("unexpected reuse counter data %+v", reuse.Data)
	}

	inf, ok := findMetric(rm, "gotoken_refresh_latency_seconds_bucket_le_inf")
	if !ok {
		t.Fatal("inf bucket gauge not collected")
	}
	gauge, ok := inf.Data.(metricdata.Gauge[int64])
	if !ok || len(gauge.DataPoints) != 1 || gauge.DataPoints[0].Value != 8 {
		t.Fatalf("unexpected inf bucket data %+v", inf.Data)
	}

	secs, ok := findMetric(rm, "gotoken_refresh_latency_seconds_sum")
	if !ok {
		t.Fatal("sum gauge not collected")
	}
	fg, ok := secs.Data.(metricdata.Gauge[float64])
	if !ok || len(fg.DataPoints) != 1 || fg.DataPoints[0].Value != 2 {
		t.Fatalf("unexpected sum data %+v", secs.Data)
	}
}

func TestExporterRejectsNilInputs(t *testing.T) {
	_, provider := newTestMeter()
	meter := provider.Meter("gotoken-test")

	if _, err := NewOTelExporterFromSource(meter, nil); err != ErrNilSource {
		t.Fatalf("expected ErrNilSource, got %v", err)
	}
	if _, err := NewOTelExporterFromSource(nil, &fakeSource{}); err != ErrNilMeter {
		t.Fatalf("expected ErrNilMeter, got %v", err)
	}
}

func TestExporterConcurrentCollectNoPanic(t *testing.T) {
	reader, provider := newTestMeter()
	meter := provider.Meter("gotoken-test")

	src := &fakeSource{
		snapshot: goToken.MetricsSnapshot{
			Counters: map[goToken.MetricID]uint64{
				goToken.MetricValidateSuccess: 1,
			},
			Histograms: map[goToken.MetricID][]uint64{
				goToken.MetricValidateLatency: {1, 0, 0, 0, 0, 0, 0, 0},
			},
		},
	}

	exp, err := NewOTelExporterFromSource(meter, src)
	if err != nil {
		t.Fatalf("NewOTelExporterFromSource failed: %v", err)
	}
	defer func() {
		if err := exp.Close(); err != nil {
			t.Fatalf("Close failed: %v", err)
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(v uint64) {
			defer wg.Done()
			src.mu.Lock()
			src.snapshot.Counters[goToken.MetricValidateSuccess] = v
			src.mu.Unlock()

			var rm metricdata.ResourceMetrics
			_ = reader.Collect(context.Background(), &rm)
		}(uint64(i + 1))
	}
	wg.Wait()
}
