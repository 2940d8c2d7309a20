package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "livebridge"

// Metrics contains all Prometheus metrics of the bridge. It implements
// bridge.MetricsRecorder.
type Metrics struct {
	// Session metrics
	ActiveSessions    prometheus.Gauge
	SessionsCreated   prometheus.Counter
	SessionsClosed    *prometheus.CounterVec
	SessionDuration   prometheus.Histogram
	SessionsRejected  prometheus.Counter
	UpstreamConnect   prometheus.Histogram
	EventsRelayed     *prometheus.CounterVec
	AudioBytes        prometheus.Counter
	AudioFragments    prometheus.Counter
	FeedRejections    *prometheus.CounterVec
	FragmentSizeBytes prometheus.Histogram

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPErrors          *prometheus.CounterVec
}

// NewMetrics creates all metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Current number of live transcription sessions",
		}),
		SessionsCreated: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_created_total",
			Help:      "Total number of sessions created",
		}),
		SessionsClosed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_closed_total",
			Help:      "Total number of sessions closed, by close reason",
		}, []string{"reason"}),
		SessionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "session_duration_seconds",
			Help:      "Lifetime of sessions in seconds",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12), // 1s to ~34 minutes
		}),
		SessionsRejected: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_rejected_total",
			Help:      "Total number of sessions rejected because the session limit was reached",
		}),
		UpstreamConnect: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upstream_connect_duration_seconds",
			Help:      "Time to open the speech recognition connection",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 8), // 50ms to ~6s
		}),
		EventsRelayed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_relayed_total",
			Help:      "Total number of frames written to push streams, by event",
		}, []string{"event"}),
		AudioBytes: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_bytes_total",
			Help:      "Total number of audio bytes forwarded upstream",
		}),
		AudioFragments: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_fragments_total",
			Help:      "Total number of audio fragments forwarded upstream",
		}),
		FeedRejections: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_rejected_total",
			Help:      "Total number of audio fragments rejected, by reason",
		}, []string{"reason"}),
		FragmentSizeBytes: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "audio_fragment_size_bytes",
			Help:      "Size of accepted audio fragments in bytes",
			Buckets:   prometheus.ExponentialBuckets(256, 2, 10), // 256B to 128KB
		}),

		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
		HTTPErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_errors_total",
			Help:      "Total number of HTTP errors",
		}, []string{"method", "endpoint", "error_type"}),
	}
}

func (m *Metrics) SessionOpened() {
	m.SessionsCreated.Inc()
	m.ActiveSessions.Inc()
}

func (m *Metrics) SessionClosed(reason string, lifetime time.Duration) {
	m.ActiveSessions.Dec()
	m.SessionsClosed.WithLabelValues(reason).Inc()
	m.SessionDuration.Observe(lifetime.Seconds())
}

func (m *Metrics) CapacityRejected() {
	m.SessionsRejected.Inc()
}

func (m *Metrics) UpstreamConnected(latency time.Duration) {
	m.UpstreamConnect.Observe(latency.Seconds())
}

func (m *Metrics) AudioFed(bytes int) {
	m.AudioFragments.Inc()
	m.AudioBytes.Add(float64(bytes))
	m.FragmentSizeBytes.Observe(float64(bytes))
}

func (m *Metrics) FeedRejected(reason string) {
	m.FeedRejections.WithLabelValues(reason).Inc()
}

func (m *Metrics) EventRelayed(kind string) {
	m.EventsRelayed.WithLabelValues(kind).Inc()
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, durationSeconds float64) {
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}

// RecordHTTPError records an HTTP error
func (m *Metrics) RecordHTTPError(method, endpoint, errorType string) {
	m.HTTPErrors.WithLabelValues(method, endpoint, errorType).Inc()
}
