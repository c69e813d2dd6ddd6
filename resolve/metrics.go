package resolve

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	resolutions *prometheus.CounterVec
	duration    *prometheus.HistogramVec
}

// NewMetrics registers the resolution metrics on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		resolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "highfives_resolutions_total",
			Help: "Recipient resolutions by outcome (instruction kind or error kind).",
		}, []string{"outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "highfives_resolution_duration_seconds",
			Help:    "Time spent resolving a recipient, by recipient shape.",
			Buckets: []float64{.05, .1, .25, .5, 1, 2, 4, 8},
		}, []string{"shape"}),
	}
	reg.MustRegister(m.resolutions, m.duration)
	return m
}

func (m *Metrics) observe(shape string, outcome string, started time.Time) {
	if m == nil {
		return
	}
	m.resolutions.WithLabelValues(outcome).Inc()
	m.duration.WithLabelValues(shape).Observe(time.Since(started).Seconds())
}
