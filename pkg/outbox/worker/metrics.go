package worker

import "github.com/prometheus/client_golang/prometheus"

type Metrics struct {
	Published prometheus.Counter
	Failed    prometheus.Counter
	Pending   prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer, service string) *Metrics {
	labels := prometheus.Labels{"service": service}

	m := &Metrics{
		Published: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "outbox_events_published_total",
			Help:        "Outbox entries acknowledged by the broker.",
			ConstLabels: labels,
		}),
		Failed: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "outbox_publish_failures_total",
			Help:        "Failed publish attempts.",
			ConstLabels: labels,
		}),
		Pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "outbox_pending_events",
			Help:        "Entries waiting in the outbox after the last batch.",
			ConstLabels: labels,
		}),
	}

	reg.MustRegister(m.Published, m.Failed, m.Pending)

	return m
}

func (m *Metrics) published() {
	if m != nil {
		m.Published.Inc()
	}
}

func (m *Metrics) failed() {
	if m != nil {
		m.Failed.Inc()
	}
}
