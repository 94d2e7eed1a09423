package otel

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/ledgerops/ledgergate"
	"github.com/ledgerops/ledgergate/metrics/export/internaldefs"
)

var (
	ErrNilMeter  = errors.New("nil meter")
	ErrNilSource = errors.New("nil metrics source")
)

// MetricsSource is satisfied by *ledgergate.Client.
type MetricsSource interface {
	MetricsSnapshot() ledgergate.MetricsSnapshot
	AuditDropped() uint64
}

type observedSeries struct {
	id         ledgergate.MetricID
	instrument metric.Int64ObservableCounter
	attrs      metric.ObserveOption
}

type observedHistogram struct {
	id      ledgergate.MetricID
	buckets [8]metric.Int64ObservableGauge
	count   metric.Int64ObservableGauge
}

// Exporter publishes gateway metrics through an OTel Meter. Counter families
// become one observable counter each, with the family label as an attribute.
type Exporter struct {
	source       MetricsSource
	registration metric.Registration
	series       []observedSeries
	histograms   []observedHistogram
	auditDropped metric.Int64ObservableCounter
}

func NewExporter(meter metric.Meter, source MetricsSource) (*Exporter, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	if source == nil {
		return nil, ErrNilSource
	}

	e := &Exporter{
		source: source,
		series: make([]observedSeries, 0, len(internaldefs.CounterDefs)),
	}
	families := make(map[string]metric.Int64ObservableCounter)
	var observables []metric.Observable

	for _, def := range internaldefs.CounterDefs {
		ins, ok := families[def.Family]
		if !ok {
			var err error
			ins, err = meter.Int64ObservableCounter(def.Family, metric.WithDescription(def.Help))
			if err != nil {
				return nil, fmt.Errorf("create observable counter %s: %w", def.Family, err)
			}
			families[def.Family] = ins
			observables = append(observables, ins)
		}
		s := observedSeries{id: def.ID, instrument: ins}
		if def.Label.Key != "" {
			s.attrs = metric.WithAttributes(attribute.String(def.Label.Key, def.Label.Value))
		}
		e.series = append(e.series, s)
	}

	for _, def := range internaldefs.HistogramDefs {
		h := observedHistogram{id: def.ID}
		for i, suffix := range internaldefs.HistogramBoundSuffix {
			name := def.Name + "_bucket_le_" + suffix
			ins, err := meter.Int64ObservableGauge(name, metric.WithDescription("Cumulative histogram bucket count."))
			if err != nil {
				return nil, fmt.Errorf("create histogram bucket gauge %s: %w", name, err)
			}
			h.buckets[i] = ins
			observables = append(observables, ins)
		}
		count, err := meter.Int64ObservableGauge(def.Name+"_count", metric.WithDescription(def.Help))
		if err != nil {
			return nil, fmt.Errorf("create histogram count gauge %s: %w", def.Name, err)
		}
		h.count = count
		observables = append(observables, count)
		e.histograms = append(e.histograms, h)
	}

	dropped, err := meter.Int64ObservableCounter(internaldefs.AuditDropped,
		metric.WithDescription("Audit events dropped by dispatcher backpressure."))
	if err != nil {
		return nil, fmt.Errorf("create audit dropped counter: %w", err)
	}
	e.auditDropped = dropped
	observables = append(observables, dropped)

	e.registration, err = meter.RegisterCallback(e.observe, observables...)
	if err != nil {
		return nil, fmt.Errorf("register callback: %w", err)
	}
	return e, nil
}

func (e *Exporter) observe(_ context.Context, o metric.Observer) error {
	snapshot := e.source.MetricsSnapshot()
	for _, s := range e.series {
		if s.attrs != nil {
			o.ObserveInt64(s.instrument, int64(snapshot.Counters[s.id]), s.attrs)
		} else {
			o.ObserveInt64(s.instrument, int64(snapshot.Counters[s.id]))
		}
	}
	for _, h := range e.histograms {
		cumulative := internaldefs.CumulativeBuckets(snapshot.Histograms[h.id])
		for i, v := range cumulative {
			o.ObserveInt64(h.buckets[i], int64(v))
		}
		o.ObserveInt64(h.count, int64(cumulative[len(cumulative)-1]))
	}
	o.ObserveInt64(e.auditDropped, int64(e.source.AuditDropped()))
	return nil
}

// Close unregisters the callback.
func (e *Exporter) Close() error {
	if e == nil || e.registration == nil {
		return nil
	}
	return e.registration.Unregister()
}
