package ensemble

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics records per-job timings and failures. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	jobDuration *prometheus.HistogramVec
	jobFailures *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg when reg is
// not nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "stackml",
			Subsystem: "ensemble",
			Name:      "job_duration_seconds",
			Help:      "Time spent fitting or predicting one estimator on one slice.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 10),
		}, []string{"stage", "estimator"}),
		jobFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "stackml",
			Subsystem: "ensemble",
			Name:      "job_failures_total",
			Help:      "Estimator fits or predictions that returned an error.",
		}, []string{"stage", "estimator"}),
	}
	if reg != nil {
		reg.MustRegister(m.jobDuration, m.jobFailures)
	}
	return m
}

func (m *Metrics) observe(stage, estimator string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.jobDuration.WithLabelValues(stage, estimator).Observe(d.Seconds())
	if err != nil {
		m.jobFailures.WithLabelValues(stage, estimator).Inc()
	}
}
