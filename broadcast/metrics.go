package broadcast

import "github.com/prometheus/client_golang/prometheus"

type Metrics struct {
	broadcasts *prometheus.CounterVec
	relays     *prometheus.CounterVec
	dropped    prometheus.Counter
}

// NewMetrics registers the broadcast metrics on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		broadcasts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "highfives_broadcasts_total",
			Help: "Acknowledgment broadcasts by result.",
		}, []string{"result"}),
		relays: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "highfives_relay_publishes_total",
			Help: "Publish attempts by relay and result.",
		}, []string{"relay", "result"}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "highfives_broadcast_queue_dropped_total",
			Help: "Acknowledgments not broadcast because the queue was full.",
		}),
	}
	reg.MustRegister(m.broadcasts, m.relays, m.dropped)
	return m
}

func (m *Metrics) broadcast(ok bool) {
	if m == nil {
		return
	}
	m.broadcasts.WithLabelValues(result(ok)).Inc()
}

func (m *Metrics) relay(url string, ok bool) {
	if m == nil {
		return
	}
	m.relays.WithLabelValues(url, result(ok)).Inc()
}

func (m *Metrics) drop() {
	if m == nil {
		return
	}
	m.dropped.Inc()
}

func result(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}
