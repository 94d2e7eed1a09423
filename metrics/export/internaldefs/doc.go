// Package internaldefs holds the metric names, labels and bucket bounds the
// Prometheus and OTel exporters share, so both publish identical series.
//
// # What this package must NOT do
//
//   - Import an exporter package.
//   - Perform I/O.
package internaldefs
