package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector exposes the service's Prometheus metrics.
type Collector struct {
	sweepsTotal        *prometheus.CounterVec
	sweepDuration      prometheus.Histogram
	escalationsTotal   *prometheus.CounterVec
	escalationFailures prometheus.Counter
	openComplaints     *prometheus.GaugeVec
	notificationsTotal *prometheus.CounterVec
}

// NewCollector creates a collector registered against the given registerer.
func NewCollector(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		sweepsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "complaint_escalation_sweeps_total",
			Help: "Total number of escalation sweeps by outcome",
		}, []string{"outcome"}),
		sweepDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "complaint_escalation_sweep_duration_seconds",
			Help:    "Duration of escalation sweeps",
			Buckets: prometheus.DefBuckets,
		}),
		escalationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "complaint_escalations_total",
			Help: "Total number of complaint escalations by trigger and severity",
		}, []string{"trigger", "severity"}),
		escalationFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "complaint_escalation_failures_total",
			Help: "Total number of failed escalation transactions",
		}),
		openComplaints: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "complaint_open_total",
			Help: "Open (unresolved) complaints by severity",
		}, []string{"severity"}),
		notificationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "complaint_notifications_total",
			Help: "Notification delivery attempts by channel and outcome",
		}, []string{"channel", "outcome"}),
	}
}

// ObserveSweep records one sweep execution.
func (c *Collector) ObserveSweep(duration time.Duration, success bool) {
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	c.sweepsTotal.WithLabelValues(outcome).Inc()
	c.sweepDuration.Observe(duration.Seconds())
}

// IncEscalated records one committed escalation.
func (c *Collector) IncEscalated(trigger, severity string) {
	c.escalationsTotal.WithLabelValues(trigger, severity).Inc()
}

// IncEscalationFailed records one rolled-back escalation.
func (c *Collector) IncEscalationFailed() {
	c.escalationFailures.Inc()
}

// SetOpenComplaints updates the open-complaints gauge for a severity.
func (c *Collector) SetOpenComplaints(severity string, count int) {
	c.openComplaints.WithLabelValues(severity).Set(float64(count))
}

// IncNotification records one notification delivery attempt.
func (c *Collector) IncNotification(channel string, success bool) {
	outcome := "sent"
	if !success {
		outcome = "failed"
	}
	c.notificationsTotal.WithLabelValues(channel, outcome).Inc()
}
