package prometheus

import (
	"net/http"

	goToken "github.com/MrEthical07/goToken"
	"github.com/MrEthical07/goToken/metrics/export/internaldefs"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type metricsSource interface {
	MetricsSnapshot() goToken.MetricsSnapshot
	AuditDropped() uint64
}

const auditDroppedName = "gotoken_audit_dropped_total"

// PrometheusExporter is a [prom.Collector] over engine metrics. Values are
// read from a fresh snapshot on every scrape.
type PrometheusExporter struct {
	source     metricsSource
	counters   map[goToken.MetricID]*prom.Desc
	histograms map[goToken.MetricID]*prom.Desc
	dropped    *prom.Desc
}

// NewPrometheusExporter creates a collector that reads from the given [goToken.Engine].
func NewPrometheusExporter(engine *goToken.Engine) *PrometheusExporter {
	return NewPrometheusExporterFromSource(engine)
}

// NewPrometheusExporterFromSource creates a collector from any snapshot source.
func NewPrometheusExporterFromSource(source metricsSource) *PrometheusExporter {
	p := &PrometheusExporter{
		source:     source,
		counters:   make(map[goToken.MetricID]*prom.Desc, len(internaldefs.CounterDefs)),
		histograms: make(map[goToken.MetricID]*prom.Desc, len(internaldefs.HistogramDefs)),
		dropped:    prom.NewDesc(auditDroppedName, "Dropped audit events due to dispatcher backpressure.", nil, nil),
	}
	for _, def := range internaldefs.CounterDefs {
		p.counters[def.ID] = prom.NewDesc(def.Name, def.Help, nil, nil)
	}
	for _, def := range internaldefs.HistogramDefs {
		p.histograms[def.ID] = prom.NewDesc(def.Name, def.Help, nil, nil)
	}
	return p
}

// Describe implements prom.Collector.
func (p *PrometheusExporter) Describe(ch chan<- *prom.Desc) {
	for _, def := range internaldefs.CounterDefs {
		ch <- p.counters[def.ID]
	}
	for _, def := range internaldefs.HistogramDefs {
		ch <- p.histograms[def.ID]
	}
	ch <- p.dropped
}

// Collect implements prom.Collector. Disabled metrics produce no samples.
func (p *PrometheusExporter) Collect(ch chan<- prom.Metric) {
	if p == nil || p.source == nil {
		return
	}

	snapshot := p.source.MetricsSnapshot()
	dropped := p.source.AuditDropped()
	if len(snapshot.Counters) == 0 && len(snapshot.Histograms) == 0 && dropped == 0 {
		return
	}

	for _, def := range internaldefs.CounterDefs {
		ch <- prom.MustNewConstMetric(p.counters[def.ID], prom.CounterValue, float64(snapshot.Counters[def.ID]))
	}

	for _, def := range internaldefs.HistogramDefs {
		raw, ok := snapshot.Histograms[def.ID]
		if !ok {
			continue
		}
		cumulative := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(raw))
		buckets := make(map[float64]uint64, len(internaldefs.HistogramUpperBounds))
		for i, le := range internaldefs.HistogramUpperBounds {
			buckets[le] = cumulative[i]
		}
		count := cumulative[len(cumulative)-1]
		sum := snapshot.HistogramSums[def.ID].Seconds()
		ch <- prom.MustNewConstHistogram(p.histograms[def.ID], count, sum, buckets)
	}

	ch <- prom.MustNewConstMetric(p.dropped, prom.CounterValue, float64(dropped))
}

// Handler serves this collector alone from a private registry, so nothing
// is registered globally.
func (p *PrometheusExporter) Handler() http.Handler {
	reg := prom.NewRegistry()
	reg.MustRegister(p)
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
