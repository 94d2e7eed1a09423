package ledgergate

import (
	"sync/atomic"
	"time"

	"github.com/ledgerops/ledgergate/guard"
	"github.com/ledgerops/ledgergate/pipeline"
)

// MetricID identifies one counter or histogram.
type MetricID uint16

const (
	MetricCallSuccess MetricID = iota
	MetricCallUnauthenticated
	MetricCallForbidden
	MetricCallNotFound
	MetricCallValidationError
	MetricCallServerError
	MetricCallUnexpectedStatus
	MetricCallNetworkError
	MetricCallConfigError
	MetricCallLogicalFailure

	MetricSessionLogin
	MetricSessionLoginFailure
	MetricSessionLogout
	MetricSessionExpired
	MetricSessionRestored
	MetricSessionRestoreFailure
	MetricStorageFailure

	MetricNavAllow
	MetricNavRedirectToLogin
	MetricNavDeny
	MetricNavRedirectToHome
	MetricNavRedirect

	// MetricCallLatency is the only histogram.
	MetricCallLatency
	metricIDCount
)

var outcomeMetrics = map[pipeline.Outcome]MetricID{
	pipeline.Success:          MetricCallSuccess,
	pipeline.Unauthenticated:  MetricCallUnauthenticated,
	pipeline.Forbidden:        MetricCallForbidden,
	pipeline.NotFound:         MetricCallNotFound,
	pipeline.ValidationError:  MetricCallValidationError,
	pipeline.ServerError:      MetricCallServerError,
	pipeline.UnexpectedStatus: MetricCallUnexpectedStatus,
	pipeline.NetworkError:     MetricCallNetworkError,
	pipeline.ConfigError:      MetricCallConfigError,
	pipeline.LogicalFailure:   MetricCallLogicalFailure,
}

var decisionMetrics = map[guard.Kind]MetricID{
	guard.Allow:           MetricNavAllow,
	guard.RedirectToLogin: MetricNavRedirectToLogin,
	guard.Deny:            MetricNavDeny,
	guard.RedirectToHome:  MetricNavRedirectToHome,
	guard.Redirect:        MetricNavRedirect,
}

// OutcomeMetric returns the counter for a call outcome.
func OutcomeMetric(o pipeline.Outcome) (MetricID, bool) {
	id, ok := outcomeMetrics[o]
	return id, ok
}

// DecisionMetric returns the counter for a guard decision.
func DecisionMetric(k guard.Kind) (MetricID, bool) {
	id, ok := decisionMetrics[k]
	return id, ok
}

const (
	histBucketCount = 8
	cacheLineSize   = 64
)

type metricHistogram struct {
	buckets [histBucketCount]uint64
}

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics is a fixed set of lock-free counters plus the call latency
// histogram. A nil or disabled *Metrics ignores every update.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [metricIDCount]paddedCounter
	histograms    [metricIDCount]metricHistogram
}

// MetricsSnapshot is a point-in-time copy of every metric. Histogram buckets
// are non-cumulative and follow the bounds 5ms, 10ms, 25ms, 50ms, 100ms,
// 250ms, 500ms, +Inf.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

func (m *Metrics) LatencyEnabled() bool {
	return m != nil && m.enableLatency
}

func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// Observe records d into the histogram for id. Only MetricCallLatency has a
// histogram; other ids are ignored.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enabled || !m.enableLatency || id != MetricCallLatency {
		return
	}
	b := bucketIndex(d)
	atomic.AddUint64(&m.histograms[id].buckets[b], 1)
}

func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

// Snapshot copies every counter. A disabled Metrics yields empty maps.
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil || !m.enabled {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}

	s := MetricsSnapshot{
		Counters:   make(map[MetricID]uint64, int(metricIDCount)),
		Histograms: make(map[MetricID][]uint64, 1),
	}
	for id := MetricID(0); id < metricIDCount; id++ {
		if id == MetricCallLatency {
			continue
		}
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}

	if m.enableLatency {
		buckets := make([]uint64, histBucketCount)
		for i := 0; i < histBucketCount; i++ {
			buckets[i] = atomic.LoadUint64(&m.histograms[MetricCallLatency].buckets[i])
		}
		s.Histograms[MetricCallLatency] = buckets
	}

	return s
}

func bucketIndex(d time.Duration) int {
	ms := d.Milliseconds()

	switch {
	case ms <= 5:
		return 0
	case ms <= 10:
		return 1
	case ms <= 25:
		return 2
	case ms <= 50:
		return 3
	case ms <= 100:
		return 4
	case ms <= 250:
		return 5
	case ms <= 500:
		return 6
	default:
		return 7
	}
}
