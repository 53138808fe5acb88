// Package otel mirrors goToken engine metrics into OpenTelemetry instruments.
//
// [NewOTelExporter] registers an Int64ObservableCounter per engine counter and,
// per latency histogram, cumulative Int64ObservableGauge buckets plus count
// and sum gauges. A single callback reads [goToken.Engine.MetricsSnapshot] on
// each collection cycle.
//
// # What this package must NOT do
//
//   - Own the OTel MeterProvider. Callers supply the Meter.
//   - Mutate engine state.
package otel
