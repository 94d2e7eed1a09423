package prometheus

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ledgerops/ledgergate"
)

type fakeSource struct {
	snapshot ledgergate.MetricsSnapshot
	dropped  uint64
}

func (f fakeSource) MetricsSnapshot() ledgergate.MetricsSnapshot { return f.snapshot }
func (f fakeSource) AuditDropped() uint64                        { return f.dropped }

func TestRenderEmptyWhenMetricsDisabled(t *testing.T) {
	m := ledgergate.NewMetrics(ledgergate.MetricsConfig{Enabled: false})
	exp := NewExporter(fakeSource{snapshot: m.Snapshot()})

	if got := exp.Render(); got != "" {
		t.Fatalf("expected empty output for disabled metrics, got:\n%s", got)
	}
}

func TestRenderLabeledFamiliesAndHistogram(t *testing.T) {
	exp := NewExporter(fakeSource{
		snapshot: ledgergate.MetricsSnapshot{
			Counters: map[ledgergate.MetricID]uint64{
				ledgergate.MetricCallSuccess:         7,
				ledgergate.MetricCallUnauthenticated: 3,
				ledgergate.MetricNavDeny:             1,
			},
			Histograms: map[ledgergate.MetricID][]uint64{
				ledgergate.MetricCallLatency: {1, 2, 3, 4, 5, 6, 7, 8},
			},
		},
		dropped: 2,
	})

	out := exp.Render()
	for _, want := range []string{
		`ledgergate_calls_total{outcome="success"} 7`,
		`ledgergate_calls_total{outcome="unauthenticated"} 3`,
		`ledgergate_calls_total{outcome="forbidden"} 0`,
		`ledgergate_navigation_decisions_total{decision="deny"} 1`,
		`ledgergate_call_latency_seconds_bucket{le="0.005"} 1`,
		`ledgergate_call_latency_seconds_bucket{le="+Inf"} 36`,
		`ledgergate_call_latency_seconds_count 36`,
		`ledgergate_audit_dropped_total 2`,
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output, got:\n%s", want, out)
		}
	}
	if n := strings.Count(out, "# TYPE ledgergate_calls_total counter"); n != 1 {
		t.Fatalf("expected one TYPE line for the calls family, got %d", n)
	}
}

func TestRenderFromClient(t *testing.T) {
	c, err := ledgergate.New().Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer c.Close()

	out := NewExporter(c).Render()
	if !strings.Contains(out, `ledgergate_session_events_total{event="login"} 0`) {
		t.Fatalf("expected zeroed session counters, got:\n%s", out)
	}
}

func TestHandlerWritesPrometheusContentType(t *testing.T) {
	exp := NewExporter(fakeSource{
		snapshot: ledgergate.MetricsSnapshot{
			Counters:   map[ledgergate.MetricID]uint64{ledgergate.MetricSessionLogin: 1},
			Histograms: map[ledgergate.MetricID][]uint64{},
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	exp.Handler().ServeHTTP(rec, req)

	if got := rec.Header().Get("Content-Type"); !strings.Contains(got, "text/plain") {
		t.Fatalf("expected prometheus content type, got %q", got)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func BenchmarkRender(b *testing.B) {
	exp := NewExporter(fakeSource{
		snapshot: ledgergate.MetricsSnapshot{
			Counters: map[ledgergate.MetricID]uint64{
				ledgergate.MetricCallSuccess:         1000,
				ledgergate.MetricCallUnauthenticated: 40,
				ledgergate.MetricSessionLogin:        800,
				ledgergate.MetricNavAllow:            900,
			},
			Histograms: map[ledgergate.MetricID][]uint64{
				ledgergate.MetricCallLatency: {10, 20, 30, 40, 50, 60, 70, 80},
			},
		},
	})

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = exp.Render()
	}
}
