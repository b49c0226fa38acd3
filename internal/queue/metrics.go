package queue

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics reports queue activity to Prometheus.
type Metrics struct {
	outcomes *prometheus.CounterVec
	duration prometheus.Histogram
	running  prometheus.Gauge
}

// NewMetrics registers the queue's collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chattask",
			Subsystem: "queue",
			Name:      "jobs_total",
			Help:      "Processed jobs by outcome.",
		}, []string{"outcome"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "chattask",
			Subsystem: "queue",
			Name:      "job_duration_seconds",
			Help:      "Time spent in job handlers.",
			Buckets:   prometheus.DefBuckets,
		}),
		running: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "chattask",
			Subsystem: "queue",
			Name:      "jobs_running",
			Help:      "Jobs currently being handled.",
		}),
	}
	reg.MustRegister(m.outcomes, m.duration, m.running)
	return m
}

func (m *Metrics) outcome(o string) {
	if m == nil {
		return
	}
	m.outcomes.WithLabelValues(o).Inc()
}

func (m *Metrics) jobStarted() {
	if m == nil {
		return
	}
	m.running.Inc()
}

func (m *Metrics) jobFinished(d time.Duration) {
	if m == nil {
		return
	}
	m.running.Dec()
	m.duration.Observe(d.Seconds())
}

var statsDesc = prometheus.NewDesc(
	"chattask_queue_jobs",
	"Stored jobs by state.",
	[]string{"state"}, nil,
)

// StatsCollector exports Queue.Stats as a gauge per state at scrape time.
type StatsCollector struct {
	q *Queue
}

// NewStatsCollector returns a collector over q.
func NewStatsCollector(q *Queue) *StatsCollector {
	return &StatsCollector{q: q}
}

// Describe implements prometheus.Collector.
func (c *StatsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- statsDesc
}

// Collect implements prometheus.Collector.
func (c *StatsCollector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	stats, err := c.q.Stats(ctx)
	if err != nil {
		ch <- prometheus.NewInvalidMetric(statsDesc, err)
		return
	}
	for state, n := range map[string]int{
		"waiting":   stats.Waiting,
		"active":    stats.Active,
		"completed": stats.Completed,
		"failed":    stats.Failed,
		"delayed":   stats.Delayed,
	} {
		ch <- prometheus.MustNewConstMetric(statsDesc, prometheus.GaugeValue, float64(n), state)
	}
}
