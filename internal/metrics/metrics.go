package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Submission sources.
const (
	SourceRecording = "recording"
	SourceUpload    = "upload"
)

// Metrics holds the Prometheus collectors for capture and submission.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	RecordingsStarted prometheus.Counter
	RecordingDuration prometheus.Histogram
	CaptureFailures   *prometheus.CounterVec

	Submissions        *prometheus.CounterVec
	SubmissionDuration prometheus.Histogram
	WAVBytes           prometheus.Histogram
	InFlight           prometheus.Gauge

	ChatHistories prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		RecordingsStarted: factory.NewCounter(prometheus.CounterOpts{
			Name: "moodmic_recordings_started_total",
			Help: "Total number of recordings started",
		}),
		RecordingDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "moodmic_recording_duration_seconds",
			Help:    "Length of decoded recordings",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 8), // 0.5s to ~1 minute
		}),
		CaptureFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "moodmic_capture_failures_total",
			Help: "Recordings that produced no audio, by reason",
		}, []string{"reason"}),

		Submissions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "moodmic_submissions_total",
			Help: "Audio submissions to the analysis service",
		}, []string{"source", "outcome"}),
		SubmissionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "moodmic_submission_duration_seconds",
			Help:    "Round trip time of analysis requests",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~1 minute
		}),
		WAVBytes: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "moodmic_wav_bytes",
			Help:    "Size of submitted WAV payloads",
			Buckets: prometheus.ExponentialBuckets(1024, 2, 12), // 1KB to ~4MB
		}),
		InFlight: factory.NewGauge(prometheus.GaugeOpts{
			Name: "moodmic_submissions_in_flight",
			Help: "1 while a submission is outstanding",
		}),

		ChatHistories: factory.NewGauge(prometheus.GaugeOpts{
			Name: "moodmic_chat_histories",
			Help: "Number of saved conversations",
		}),
	}
}

func (m *Metrics) RecordingStarted() {
	if m == nil {
		return
	}
	m.RecordingsStarted.Inc()
}

func (m *Metrics) RecordingDecoded(d time.Duration) {
	if m == nil {
		return
	}
	m.RecordingDuration.Observe(d.Seconds())
}

func (m *Metrics) CaptureFailed(reason string) {
	if m == nil {
		return
	}
	m.CaptureFailures.WithLabelValues(reason).Inc()
}

// SubmissionStarted marks a submission in flight and records its payload size.
func (m *Metrics) SubmissionStarted(size int) {
	if m == nil {
		return
	}
	m.InFlight.Set(1)
	m.WAVBytes.Observe(float64(size))
}

// SubmissionFinished records the outcome of a submission started with SubmissionStarted.
func (m *Metrics) SubmissionFinished(source, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.InFlight.Set(0)
	m.Submissions.WithLabelValues(source, outcome).Inc()
	m.SubmissionDuration.Observe(d.Seconds())
}

// SubmissionRejected counts a submission refused before reaching the network.
func (m *Metrics) SubmissionRejected(source, reason string) {
	if m == nil {
		return
	}
	m.Submissions.WithLabelValues(source, reason).Inc()
}

func (m *Metrics) SetHistories(n int) {
	if m == nil {
		return
	}
	m.ChatHistories.Set(float64(n))
}
