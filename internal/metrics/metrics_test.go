package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/Ananth-NQI/kb-request-bot/internal/session"
)

func TestRecorderCountsSessions(t *testing.T) {
	r := NewRecorder(prometheus.NewRegistry())

	r.SessionCreated(session.Session{})
	r.SessionCreated(session.Session{})
	r.SessionDestroyed(session.Session{}, session.ReasonSubmitted)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.sessionsCreated))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.sessionsActive))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.sessionsDestroyed.WithLabelValues("submitted")))
}

func TestRecorderCountsAttemptsAndSubmissions(t *testing.T) {
	r := NewRecorder(prometheus.NewRegistry())

	r.ObserveAttempt("monday", 1, "retry")
	r.ObserveAttempt("monday", 2, "success")
	r.ObserveSubmission("success", 2*time.Second)
	r.ObserveFiles(2, 1)

	assert.Equal(t, 1.0, testutil.ToFloat64(r.externalAttempts.WithLabelValues("monday", "1", "retry")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.submissions.WithLabelValues("success")))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.filesAttached.WithLabelValues("attached")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.filesAttached.WithLabelValues("failed")))
}

func TestNilRecorderIsNoop(t *testing.T) {
	var r *Recorder
	assert.NotPanics(t, func() {
		r.ObserveAttempt("x", 1, "success")
		r.SessionCreated(session.Session{})
		r.SessionDestroyed(session.Session{}, session.ReasonExpired)
		r.ObserveSubmission("failed", time.Second)
		r.ObserveFiles(1, 1)
		r.ObserveInbound("slack", "message")
	})
}
