package prometheus

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/ledgerops/ledgergate"
	"github.com/ledgerops/ledgergate/metrics/export/internaldefs"
)

// MetricsSource is satisfied by *ledgergate.Client.
type MetricsSource interface {
	MetricsSnapshot() ledgergate.MetricsSnapshot
	AuditDropped() uint64
}

// Exporter renders gateway metrics in Prometheus text exposition format.
type Exporter struct {
	source MetricsSource
}

func NewExporter(source MetricsSource) *Exporter {
	return &Exporter{source: source}
}

// Handler serves Render on every request.
func (e *Exporter) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		_, _ = w.Write([]byte(e.Render()))
	})
}

// Render returns the current metrics. Disabled metrics with no audit drops
// render as the empty string.
func (e *Exporter) Render() string {
	if e == nil || e.source == nil {
		return ""
	}

	snapshot := e.source.MetricsSnapshot()
	dropped := e.source.AuditDropped()
	if len(snapshot.Counters) == 0 && len(snapshot.Histograms) == 0 && dropped == 0 {
		return ""
	}

	var b strings.Builder
	b.Grow(4096)

	family := ""
	for _, def := range internaldefs.CounterDefs {
		if def.Family != family {
			family = def.Family
			writeHeader(&b, def.Family, def.Help, "counter")
		}
		writeSample(&b, def.Family, def.Label, snapshot.Counters[def.ID])
	}

	for _, def := range internaldefs.HistogramDefs {
		writeHistogram(&b, def, internaldefs.CumulativeBuckets(snapshot.Histograms[def.ID]))
	}

	writeHeader(&b, internaldefs.AuditDropped, "Audit events dropped by dispatcher backpressure.", "counter")
	writeSample(&b, internaldefs.AuditDropped, internaldefs.Label{}, dropped)

	return b.String()
}

func writeHeader(b *strings.Builder, name, help, kind string) {
	b.WriteString("# HELP ")
	b.WriteString(name)
	b.WriteByte(' ')
	b.WriteString(escapeHelp(help))
	b.WriteString("\n# TYPE ")
	b.WriteString(name)
	b.WriteByte(' ')
	b.WriteString(kind)
	b.WriteByte('\n')
}

func writeSample(b *strings.Builder, name string, label internaldefs.Label, value uint64) {
	b.WriteString(name)
	if label.Key != "" {
		b.WriteByte('{')
		b.WriteString(label.Key)
		b.WriteString("=\"")
		b.WriteString(label.Value)
		b.WriteString("\"}")
	}
	b.WriteByte(' ')
	b.WriteString(strconv.FormatUint(value, 10))
	b.WriteByte('\n')
}

func writeHistogram(b *strings.Builder, def internaldefs.HistogramDef, cumulative [8]uint64) {
	writeHeader(b, def.Name, def.Help, "histogram")
	for i, le := range internaldefs.HistogramBounds {
		writeSample(b, def.Name+"_bucket", internaldefs.Label{Key: "le", Value: le}, cumulative[i])
	}
	writeSample(b, def.Name+"_count", internaldefs.Label{}, cumulative[len(cumulative)-1])
	// Snapshots carry bucket counts only.
	b.WriteString(def.Name)
	b.WriteString("_sum 0\n")
}

func escapeHelp(help string) string {
	help = strings.ReplaceAll(help, "\\", "\\\\")
	help = strings.ReplaceAll(help, "\n", "\\n")
	return help
}
