package bridge

import (
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "peerbridge"

type metrics struct {
	events   *prometheus.CounterVec
	connects *prometheus.CounterVec
}

func newMetrics(reg prometheus.Registerer, b *Bridge) (*metrics, error) {
	m := &metrics{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "events_total",
			Help:      "Events staged in the event ring, by type.",
		}, []string{"type"}),
		connects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "connects_total",
			Help:      "Finished connect attempts, by mode and outcome.",
		}, []string{"mode", "outcome"}),
	}

	collectors := []prometheus.Collector{
		m.events,
		m.connects,
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "hosts",
			Help:      "Live entries in the host table.",
		}, func() float64 { return float64(b.hosts.Len()) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "peers",
			Help:      "Live entries in the peer table.",
		}, func() float64 { return float64(b.peers.Len()) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "connect_operations",
			Help:      "Tracked async connect operations.",
		}, func() float64 { return float64(b.connects.Len()) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "event_overwrites_total",
			Help:      "Ring pushes that replaced an occupied slot.",
		}, func() float64 { return float64(b.events.Overwrites()) }),
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register metrics: %w", err)
		}
	}
	return m, nil
}

func (m *metrics) observeConnect(mode string, err error) {
	outcome := "succeeded"
	switch {
	case err == nil:
	case errors.Is(err, ErrTimeout):
		outcome = "timeout"
	default:
		outcome = "failed"
	}
	m.connects.WithLabelValues(mode, outcome).Inc()
}
