package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	EmailsSent = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "emails_sent_total",
			Help: "Total emails sent",
		},
	)

	EmailFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "email_failures_total",
			Help: "Total failed emails",
		},
	)

	FollowUpsSent = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "followups_sent_total",
			Help: "Total follow-up emails sent",
		},
	)

	AuditWriteFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "audit_write_failures_total",
			Help: "Audit records that could not be persisted after retry",
		},
	)

	JobsStarted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "email_jobs_started_total",
			Help: "Email jobs admitted for processing",
		},
	)

	JobsCompleted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "email_jobs_completed_total",
			Help: "Email jobs finished, by terminal status",
		},
		[]string{"status"},
	)

	ActiveJobs = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "email_jobs_active",
			Help: "Jobs currently processing",
		},
	)
)

func Init() {
	prometheus.MustRegister(
		EmailsSent,
		EmailFailures,
		FollowUpsSent,
		AuditWriteFailures,
		JobsStarted,
		JobsCompleted,
		ActiveJobs,
	)
}
