package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type Set struct {
	Operations    *prometheus.CounterVec
	Duration      *prometheus.HistogramVec
	Notifications *prometheus.CounterVec
	FinesIssued   prometheus.Counter
}

func New(reg prometheus.Registerer) *Set {
	s := &Set{
		Operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "circulation_operations_total",
			Help: "Circulation operations by type and outcome.",
		}, []string{"op", "outcome"}),
		Duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "circulation_operation_seconds",
			Help:    "Circulation operation latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"op"}),
		Notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "circulation_notifications_total",
			Help: "Notification events published by type.",
		}, []string{"type"}),
		FinesIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "circulation_fines_issued_total",
			Help: "Fine records created by circulation.",
		}),
	}
	reg.MustRegister(s.Operations, s.Duration, s.Notifications, s.FinesIssued)
	return s
}

func (s *Set) Observe(op string, start time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	s.Operations.WithLabelValues(op, outcome).Inc()
	s.Duration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}
