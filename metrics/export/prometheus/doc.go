// Package prometheus renders ledgergate client metrics in Prometheus text
// exposition format.
//
// Call outcomes, session events and navigation decisions are each one
// labeled counter family (ledgergate_calls_total{outcome=...} and so on).
// Call latency is the histogram ledgergate_call_latency_seconds.
//
// # What this package must NOT do
//
//   - Register metrics in a global Prometheus registry; callers mount Handler.
//   - Mutate client state.
package prometheus
