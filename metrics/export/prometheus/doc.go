// Package prometheus exposes goToken engine metrics as a client_golang
// collector.
//
// [NewPrometheusExporter] accepts a [goToken.Engine] and returns a collector
// that can be registered with any registry, or served standalone through
// [PrometheusExporter.Handler]. Counter names are prefixed gotoken_*_total;
// latency histograms are gotoken_validate_latency_seconds and
// gotoken_refresh_latency_seconds.
//
// # What this package must NOT do
//
//   - Register metrics in the global Prometheus registry.
//   - Mutate engine state.
package prometheus
