// Package otel publishes ledgergate client metrics through an OpenTelemetry
// Meter.
//
// [NewExporter] registers one Int64ObservableCounter per counter family, with
// the outcome, event or decision as an attribute, plus one
// Int64ObservableGauge per latency bucket. A single callback reads the
// client's MetricsSnapshot on each collection.
//
// # What this package must NOT do
//
//   - Own the MeterProvider; callers supply the Meter.
//   - Mutate client state.
package otel
