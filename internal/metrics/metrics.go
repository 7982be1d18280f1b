// Package metrics exposes Prometheus instruments for sessions, external calls and submissions.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/Ananth-NQI/kb-request-bot/internal/session"
)

// Recorder implements retry.Observer and session.Observer. A nil *Recorder is a no-op.
type Recorder struct {
	sessionsCreated   prometheus.Counter
	sessionsDestroyed *prometheus.CounterVec
	sessionsActive    prometheus.Gauge
	externalAttempts  *prometheus.CounterVec
	submissions       *prometheus.CounterVec
	submitDuration    prometheus.Histogram
	filesAttached     *prometheus.CounterVec
	inboundMessages   *prometheus.CounterVec
}

// NewRecorder registers all instruments with reg.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		sessionsCreated: f.NewCounter(prometheus.CounterOpts{
			Name: "kbbot_sessions_created_total",
			Help: "Conversations started",
		}),
		sessionsDestroyed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "kbbot_sessions_destroyed_total",
			Help: "Conversations ended, by reason",
		}, []string{"reason"}),
		sessionsActive: f.NewGauge(prometheus.GaugeOpts{
			Name: "kbbot_sessions_active",
			Help: "Conversations currently in progress",
		}),
		externalAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "kbbot_external_call_attempts_total",
			Help: "Attempts against external services by outcome",
		}, []string{"service", "attempt", "outcome"}),
		submissions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "kbbot_submissions_total",
			Help: "Submissions processed by result",
		}, []string{"result"}),
		submitDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "kbbot_submission_duration_seconds",
			Help:    "Time from submit to board record",
			Buckets: prometheus.DefBuckets,
		}),
		filesAttached: f.NewCounterVec(prometheus.CounterOpts{
			Name: "kbbot_files_total",
			Help: "File uploads by result",
		}, []string{"result"}),
		inboundMessages: f.NewCounterVec(prometheus.CounterOpts{
			Name: "kbbot_inbound_messages_total",
			Help: "Inbound user events by platform and kind",
		}, []string{"platform", "kind"}),
	}
}

// ObserveAttempt records one external call attempt.
func (r *Recorder) ObserveAttempt(service string, attempt int, outcome string) {
	if r == nil {
		return
	}
	r.externalAttempts.WithLabelValues(service, strconv.Itoa(attempt), outcome).Inc()
}

// SessionCreated records a new conversation.
func (r *Recorder) SessionCreated(session.Session) {
	if r == nil {
		return
	}
	r.sessionsCreated.Inc()
	r.sessionsActive.Inc()
}

// SessionDestroyed records the end of a conversation.
func (r *Recorder) SessionDestroyed(_ session.Session, reason session.DestroyReason) {
	if r == nil {
		return
	}
	r.sessionsDestroyed.WithLabelValues(string(reason)).Inc()
	r.sessionsActive.Dec()
}

// ObserveSubmission records a finished submission.
func (r *Recorder) ObserveSubmission(result string, d time.Duration) {
	if r == nil {
		return
	}
	r.submissions.WithLabelValues(result).Inc()
	r.submitDuration.Observe(d.Seconds())
}

// ObserveFiles records upload results.
func (r *Recorder) ObserveFiles(attached, failed int) {
	if r == nil {
		return
	}
	r.filesAttached.WithLabelValues("attached").Add(float64(attached))
	r.filesAttached.WithLabelValues("failed").Add(float64(failed))
}

// ObserveInbound records an inbound user event.
func (r *Recorder) ObserveInbound(platform, kind string) {
	if r == nil {
		return
	}
	r.inboundMessages.WithLabelValues(platform, kind).Inc()
}
