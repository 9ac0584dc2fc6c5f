package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Khalid-000-ME/Trio/internal/audio"
	"github.com/Khalid-000-ME/Trio/internal/config"
	"github.com/Khalid-000-ME/Trio/internal/metrics"
	"github.com/Khalid-000-ME/Trio/internal/storage"
)

const (
	serviceName    = "trio-audio-ingest"
	serviceVersion = "1.0.0"

	requestIDHeader = "X-Request-ID"
)

// ErrNoFile is returned when an upload carries no file part
var ErrNoFile = errors.New("no file provided")

// Response bodies are fixed so clients never see internal paths or causes.
const (
	msgNoFile       = "No file provided"
	msgStoreFailure = "Failed to store audio file"
)

// HTTPServer provides the audio ingest API and monitoring endpoints
type HTTPServer struct {
	server   *http.Server
	handler  http.Handler
	logger   *slog.Logger
	config   *config.Config
	store    storage.Store
	metrics  *metrics.Metrics
	gatherer prometheus.Gatherer

	// Server state
	startTime time.Time
	mu        sync.RWMutex
	stats     IngestStats
}

// IngestStats represents upload statistics since start
type IngestStats struct {
	UploadsReceived uint64    `json:"uploads_received"`
	UploadsStored   uint64    `json:"uploads_stored"`
	UploadsRejected uint64    `json:"uploads_rejected"`
	StorageFailures uint64    `json:"storage_failures"`
	BytesStored     uint64    `json:"bytes_stored"`
	LastStored      string    `json:"last_stored,omitempty"`
	LastStoredAt    time.Time `json:"last_stored_at,omitempty"`
}

type ctxKey struct{}

// NewHTTPServer creates a new ingest server. gatherer backs the metrics
// endpoint and should be the registry m was registered with.
func NewHTTPServer(cfg *config.Config, logger *slog.Logger, store storage.Store,
	m *metrics.Metrics, gatherer prometheus.Gatherer) *HTTPServer {

	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	h := &HTTPServer{
		logger:    logger,
		config:    cfg,
		store:     store,
		metrics:   m,
		gatherer:  gatherer,
		startTime: time.Now(),
	}

	mux := http.NewServeMux()
	h.setupRoutes(mux)
	h.handler = h.withRequestID(mux)

	h.server = &http.Server{
		Addr:         cfg.HTTP.Addr(),
		Handler:      h.handler,
		ReadTimeout:  cfg.HTTP.GetReadTimeoutDuration(),
		WriteTimeout: cfg.HTTP.GetWriteTimeoutDuration(),
		IdleTimeout:  60 * time.Second,
	}

	return h
}

// setupRoutes configures HTTP API routes
func (h *HTTPServer) setupRoutes(mux *http.ServeMux) {
	// Ingest endpoint
	route := h.config.Upload.Route
	mux.HandleFunc(route, h.withMetrics(route, h.handleStoreAudio))

	// Stored artifacts
	if h.config.Storage.Serve {
		prefix := strings.TrimSuffix(h.config.Storage.PublicPath, "/") + "/"
		files := http.StripPrefix(prefix, http.FileServer(http.Dir(h.config.Storage.Dir)))
		mux.HandleFunc(prefix, h.withMetrics(prefix+"{filename}", h.serveFiles(files)))
	}

	mux.HandleFunc("/health", h.withMetrics("/health", h.handleHealth))
	mux.HandleFunc("/stats", h.withMetrics("/stats", h.handleStats))

	// Prometheus metrics endpoint (no metrics needed for metrics endpoint)
	if h.config.Metrics.Enabled {
		mux.Handle(h.config.Metrics.Path, promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))
	}

	// Root endpoint with API documentation
	mux.HandleFunc("/", h.withMetrics("/", h.handleRoot))
}

// Handler returns the full handler chain, for embedding and tests
func (h *HTTPServer) Handler() http.Handler {
	return h.handler
}

// withRequestID tags each request with an id, taken from the client when
// supplied, and echoes it back.
func (h *HTTPServer) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, id)))
	})
}

// requestLogger returns the server logger annotated with the request id
func (h *HTTPServer) requestLogger(r *http.Request) *slog.Logger {
	if id, ok := r.Context().Value(ctxKey{}).(string); ok {
		return h.logger.With(slog.String("request_id", id))
	}
	return h.logger
}

// withMetrics wraps an HTTP handler with metrics collection
func (h *HTTPServer) withMetrics(endpoint string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()

		// Create a response writer wrapper to capture status code
		ww := &responseWriter{ResponseWriter: w, statusCode: 200}

		handler(ww, r)

		duration := time.Since(startTime).Seconds()
		statusCode := fmt.Sprintf("%d", ww.statusCode)

		h.metrics.RecordHTTPRequest(r.Method, endpoint, statusCode, duration)

		if ww.statusCode >= 400 {
			errorType := "client_error"
			if ww.statusCode >= 500 {
				errorType = "server_error"
			}
			h.metrics.RecordHTTPError(r.Method, endpoint, errorType)
		}
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Start starts the HTTP server
func (h *HTTPServer) Start() error {
	h.logger.Info("Starting HTTP ingest server",
		slog.String("address", h.server.Addr),
		slog.String("route", h.config.Upload.Route),
	)

	go func() {
		if err := h.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			h.logger.Error("HTTP server error", slog.String("error", err.Error()))
		}
	}()

	return nil
}

// Stop gracefully stops the HTTP server
func (h *HTTPServer) Stop(ctx context.Context) error {
	h.logger.Info("Stopping HTTP ingest server...")

	return h.server.Shutdown(ctx)
}

// Stats returns upload statistics since start
func (h *HTTPServer) Stats() IngestStats {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.stats
}

// handleStoreAudio implements the store-audio endpoint: it materializes the
// "file" part and writes it verbatim under a generated name.
func (h *HTTPServer) handleStoreAudio(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	logger := h.requestLogger(r)
	h.metrics.RecordUploadReceived()
	h.count(func(s *IngestStats) { s.UploadsReceived++ })

	data, filename, err := h.readUpload(r)
	if errors.Is(err, ErrNoFile) {
		logger.Warn("Upload rejected", slog.String("reason", err.Error()))
		h.metrics.RecordUploadRejected()
		h.count(func(s *IngestStats) { s.UploadsRejected++ })
		writeJSON(w, logger, http.StatusBadRequest, map[string]string{"error": msgNoFile})
		return
	}
	if err != nil {
		h.storeFailed(w, logger, err)
		return
	}

	writeStart := time.Now()
	stored, err := h.store.Save(r.Context(), data)
	if err != nil {
		h.storeFailed(w, logger, err)
		return
	}
	writeSeconds := time.Since(writeStart).Seconds()

	h.metrics.RecordUploadStored(stored.Size, writeSeconds)
	if info, err := audio.GetWAVInfo(data); err == nil {
		h.metrics.RecordAudioDuration(info.Duration)
	}
	h.count(func(s *IngestStats) {
		s.UploadsStored++
		s.BytesStored += uint64(stored.Size)
		s.LastStored = stored.Filename
		s.LastStoredAt = stored.StoredAt
	})

	logger.Info("Audio stored",
		slog.String("client_filename", filename),
		slog.String("filename", stored.Filename),
		slog.String("path", stored.Path),
		slog.Int("bytes", stored.Size),
	)

	writeJSON(w, logger, http.StatusOK, map[string]interface{}{
		"success":  true,
		"filename": stored.Filename,
		"path":     stored.Path,
	})
}

// readUpload returns the bytes and client filename of the file part. A body
// that is not multipart, or has no file part, yields ErrNoFile.
func (h *HTTPServer) readUpload(r *http.Request) ([]byte, string, error) {
	if err := r.ParseMultipartForm(h.config.Upload.MaxMemory); err != nil {
		if errors.Is(err, http.ErrNotMultipart) || errors.Is(err, http.ErrMissingBoundary) {
			return nil, "", fmt.Errorf("%w: %v", ErrNoFile, err)
		}
		return nil, "", fmt.Errorf("parse multipart form: %w", err)
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile(h.config.Upload.FieldName)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return nil, "", ErrNoFile
		}
		return nil, "", fmt.Errorf("open form file: %w", err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, "", fmt.Errorf("read form file: %w", err)
	}

	return data, header.Filename, nil
}

func (h *HTTPServer) storeFailed(w http.ResponseWriter, logger *slog.Logger, err error) {
	logger.Error("Failed to store audio", slog.String("error", err.Error()))
	h.metrics.RecordStorageFailure()
	h.count(func(s *IngestStats) { s.StorageFailures++ })
	writeJSON(w, logger, http.StatusInternalServerError, map[string]string{"error": msgStoreFailure})
}

func (h *HTTPServer) count(update func(*IngestStats)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	update(&h.stats)
}

// serveFiles serves single stored artifacts; directory listings are refused.
func (h *HTTPServer) serveFiles(files http.Handler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if strings.HasSuffix(r.URL.Path, "/") {
			http.NotFound(w, r)
			return
		}
		files.ServeHTTP(w, r)
	}
}

// handleHealth implements the /health endpoint
func (h *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	stats := h.Stats()

	health := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"uptime":    time.Since(h.startTime).String(),
		"service": map[string]interface{}{
			"name":    serviceName,
			"version": serviceVersion,
		},
		"components": map[string]interface{}{
			"ingest": map[string]interface{}{
				"status":           "running",
				"route":            h.config.Upload.Route,
				"uploads_stored":   stats.UploadsStored,
				"storage_failures": stats.StorageFailures,
			},
			"storage": map[string]interface{}{
				"status":      "running",
				"dir":         h.config.Storage.Dir,
				"public_path": h.config.Storage.PublicPath,
				"naming":      h.config.Storage.Naming,
			},
		},
	}

	writeJSON(w, h.requestLogger(r), http.StatusOK, health)
}

// handleStats implements the /stats endpoint
func (h *HTTPServer) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	stats := map[string]interface{}{
		"uptime":    time.Since(h.startTime).String(),
		"timestamp": time.Now().UTC(),
		"uploads":   h.Stats(),
	}

	writeJSON(w, h.requestLogger(r), http.StatusOK, stats)
}

// handleRoot implements the / endpoint with API documentation
func (h *HTTPServer) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	endpoints := map[string]interface{}{
		"GET /":       "API documentation",
		"GET /health": "Service health check",
		"GET /stats":  "Upload statistics",
	}
	endpoints["POST "+h.config.Upload.Route] = fmt.Sprintf("Store an audio file (multipart field %q)", h.config.Upload.FieldName)
	if h.config.Storage.Serve {
		endpoints["GET "+h.config.Storage.PublicPath+"/{filename}"] = "Download a stored audio file"
	}
	if h.config.Metrics.Enabled {
		endpoints["GET "+h.config.Metrics.Path] = "Prometheus metrics"
	}

	apiDoc := map[string]interface{}{
		"service":   "Trio Audio Ingest Service",
		"version":   serviceVersion,
		"endpoints": endpoints,
		"timestamp": time.Now().UTC(),
	}

	writeJSON(w, h.requestLogger(r), http.StatusOK, apiDoc)
}

// writeJSON sends v with the given status. The status is already on the wire
// when encoding fails, so the failure, typically a client that went away, is
// only logged.
func writeJSON(w http.ResponseWriter, logger *slog.Logger, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debug("Failed to encode response", slog.Int("status", status), slog.String("error", err.Error()))
	}
}
