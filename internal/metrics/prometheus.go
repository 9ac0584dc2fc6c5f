package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the audio ingest service
type Metrics struct {
	// Upload metrics
	UploadsReceived prometheus.Counter
	UploadsStored   prometheus.Counter
	UploadsRejected prometheus.Counter
	StorageFailures prometheus.Counter
	BytesStored     prometheus.Counter
	UploadSize      prometheus.Histogram
	AudioDuration   prometheus.Histogram
	WriteDuration   prometheus.Histogram

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPErrors          *prometheus.CounterVec
}

// NewMetrics creates all Prometheus metrics and registers them with reg.
// Pass prometheus.DefaultRegisterer in production and a fresh registry in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		UploadsReceived: factory.NewCounter(prometheus.CounterOpts{
			Name: "trio_uploads_received_total",
			Help: "Total number of upload requests received",
		}),
		UploadsStored: factory.NewCounter(prometheus.CounterOpts{
			Name: "trio_uploads_stored_total",
			Help: "Total number of audio artifacts written to disk",
		}),
		UploadsRejected: factory.NewCounter(prometheus.CounterOpts{
			Name: "trio_uploads_rejected_total",
			Help: "Total number of uploads rejected for a missing file field",
		}),
		StorageFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "trio_storage_failures_total",
			Help: "Total number of uploads that failed to be stored",
		}),
		BytesStored: factory.NewCounter(prometheus.CounterOpts{
			Name: "trio_bytes_stored_total",
			Help: "Total number of audio bytes written to disk",
		}),
		UploadSize: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "trio_upload_size_bytes",
			Help:    "Size of uploaded audio artifacts in bytes",
			Buckets: prometheus.ExponentialBuckets(1024, 4, 10), // 1KB to ~256MB
		}),
		AudioDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "trio_upload_audio_duration_seconds",
			Help:    "Duration of uploaded audio when the payload carries a WAV header",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10), // 0.5s to ~4 minutes
		}),
		WriteDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "trio_storage_write_duration_seconds",
			Help:    "Time spent writing artifacts to disk",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12), // 0.5ms to ~1s
		}),

		// HTTP API metrics
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "trio_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "trio_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
		HTTPErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "trio_http_errors_total",
			Help: "Total number of HTTP errors",
		}, []string{"method", "endpoint", "error_type"}),
	}
}

// RecordUploadReceived increments the uploads received counter
func (m *Metrics) RecordUploadReceived() {
	m.UploadsReceived.Inc()
}

// RecordUploadRejected increments the rejected uploads counter
func (m *Metrics) RecordUploadRejected() {
	m.UploadsRejected.Inc()
}

// RecordUploadStored records a successfully stored artifact
func (m *Metrics) RecordUploadStored(sizeBytes int, writeSeconds float64) {
	m.UploadsStored.Inc()
	m.BytesStored.Add(float64(sizeBytes))
	m.UploadSize.Observe(float64(sizeBytes))
	m.WriteDuration.Observe(writeSeconds)
}

// RecordStorageFailure increments the storage failures counter
func (m *Metrics) RecordStorageFailure() {
	m.StorageFailures.Inc()
}

// RecordAudioDuration observes the duration of a WAV payload
func (m *Metrics) RecordAudioDuration(seconds float64) {
	m.AudioDuration.Observe(seconds)
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
