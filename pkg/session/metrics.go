package session

import "github.com/prometheus/client_golang/prometheus"

const namespace = "voicerelay"

// Metrics are the session counters exported on /metrics.
type Metrics struct {
	SessionsActive     prometheus.Gauge
	SessionsTotal      prometheus.Counter
	AudioBytesTotal    prometheus.Counter
	Identifications    *prometheus.CounterVec
	Enrollments        *prometheus.CounterVec
	EnrollmentProgress prometheus.Histogram
}

// NewMetrics creates the session metrics and registers them on reg. A nil
// reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		SessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Sessions opened and not yet closed",
		}),
		SessionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Sessions opened",
		}),
		AudioBytesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_bytes_total",
			Help:      "Audio bytes uploaded",
		}),
		Identifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "identifications_total",
			Help:      "Speaker identification attempts by result",
		}, []string{"result"}),
		Enrollments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "enrollments_total",
			Help:      "Enrollment feeds by result",
		}, []string{"result"}),
		EnrollmentProgress: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "enrollment_progress",
			Help:      "Enrollment progress percentage reported at session close",
			Buckets:   []float64{10, 25, 50, 75, 90, 100},
		}),
	}
	if reg != nil {
		reg.MustRegister(
			m.SessionsActive,
			m.SessionsTotal,
			m.AudioBytesTotal,
			m.Identifications,
			m.Enrollments,
			m.EnrollmentProgress,
		)
	}
	return m
}

// Identification and enrollment result labels.
const (
	resultMatch       = "match"
	resultNoMatch     = "no_match"
	resultBound       = "bound"
	resultPartial     = "partial"
	resultEnrolled    = "enrolled"
	resultSkipped     = "skipped"
	resultDiscarded   = "discarded"
	resultPersistFail = "persist_failed"
)
