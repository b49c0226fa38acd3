package reminder

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/nhle/chattask/internal/model"
)

// Metrics counts reminder lifecycle events. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	scheduledTotal prometheus.Counter
	deliveredTotal *prometheus.CounterVec
	failuresTotal  prometheus.Counter
	failedTotal    prometheus.Counter
	canceledTotal  prometheus.Counter
	requeuedTotal  prometheus.Counter
}

// NewMetrics registers the reminder collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chattask",
			Subsystem: "reminders",
			Name:      name,
			Help:      help,
		})
	}
	m := &Metrics{
		scheduledTotal: counter("scheduled_total", "Reminders scheduled."),
		deliveredTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chattask",
			Subsystem: "reminders",
			Name:      "delivered_total",
			Help:      "Reminders delivered by delivery mode.",
		}, []string{"mode"}),
		failuresTotal: counter("delivery_failures_total", "Failed delivery attempts."),
		failedTotal:   counter("failed_total", "Reminders that exhausted their retries."),
		canceledTotal: counter("canceled_total", "Reminders cancelled before delivery."),
		requeuedTotal: counter("requeued_total", "Stuck reminders requeued by the sweeper."),
	}
	reg.MustRegister(
		m.scheduledTotal, m.deliveredTotal, m.failuresTotal,
		m.failedTotal, m.canceledTotal, m.requeuedTotal,
	)
	return m
}

func (m *Metrics) scheduled() {
	if m == nil {
		return
	}
	m.scheduledTotal.Inc()
}

func (m *Metrics) delivered(mode model.DeliveryMode) {
	if m == nil {
		return
	}
	m.deliveredTotal.WithLabelValues(string(mode)).Inc()
}

func (m *Metrics) deliveryFailed() {
	if m == nil {
		return
	}
	m.failuresTotal.Inc()
}

func (m *Metrics) failed() {
	if m == nil {
		return
	}
	m.failedTotal.Inc()
}

func (m *Metrics) canceled() {
	if m == nil {
		return
	}
	m.canceledTotal.Inc()
}

func (m *Metrics) swept(n int) {
	if m == nil || n == 0 {
		return
	}
	m.requeuedTotal.Add(float64(n))
}
