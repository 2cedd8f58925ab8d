package events

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/baiwei0427/Lurker/pkg/pipeline"
)

// MetricsSink counts events by kind.
type MetricsSink struct {
	events   *prometheus.CounterVec
	byKind   []prometheus.Counter
	shrunk   prometheus.Counter
	tracking prometheus.GaugeFunc
}

// NewMetricsSink registers the event counters on reg. live reports the
// number of tracked flows for the lurker_flows_live gauge.
func NewMetricsSink(reg prometheus.Registerer, live func() float64) (*MetricsSink, error) {
	s := &MetricsSink{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lurker",
			Name:      "flow_events_total",
			Help:      "Flow table events by kind.",
		}, []string{"kind"}),
		shrunk: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "lurker",
			Name:      "window_bytes_removed_total",
			Help:      "Sum of advertised window reductions, in window units.",
		}),
		tracking: prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "lurker",
			Name:      "flows_live",
			Help:      "Connections currently tracked.",
		}, live),
	}

	for _, c := range []prometheus.Collector{s.events, s.shrunk, s.tracking} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register metric: %w", err)
		}
	}

	// Export every kind from the start so rates work before the first event.
	kinds := pipeline.EventKinds()
	s.byKind = make([]prometheus.Counter, len(kinds))
	for _, k := range kinds {
		s.byKind[k] = s.events.WithLabelValues(k.String())
	}
	return s, nil
}

// Observe implements pipeline.Observer.
func (s *MetricsSink) Observe(ev pipeline.Event) {
	if ev.Kind < 0 || int(ev.Kind) >= len(s.byKind) {
		return
	}
	s.byKind[ev.Kind].Inc()
	if ev.Kind == pipeline.EventRewritten && ev.OldWindow > ev.NewWindow {
		s.shrunk.Add(float64(ev.OldWindow - ev.NewWindow))
	}
}
