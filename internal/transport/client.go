package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"sync"
	"time"

	"github.com/Khalid-000-ME/Trio/internal/capture"
	"github.com/Khalid-000-ME/Trio/internal/notify"
)

// ErrUploadFailed wraps every upload failure, whether the request never
// completed or the endpoint answered with a non-2xx status.
var ErrUploadFailed = errors.New("upload failed")

// Client posts recordings to the ingest endpoint
type Client struct {
	config     Config
	httpClient *http.Client
	notifier   notify.Notifier
	logger     *slog.Logger

	// Statistics
	totalRequests   uint64
	successRequests uint64
	failedRequests  uint64
	bytesSent       uint64
	avgResponseTime time.Duration

	mu sync.RWMutex
}

// Config contains upload client configuration
type Config struct {
	Endpoint    string
	Timeout     time.Duration // zero means no timeout
	FieldName   string
	ContentType string
	UserAgent   string
}

// Receipt is the endpoint's acknowledgement of a stored upload
type Receipt struct {
	Success  bool   `json:"success"`
	Filename string `json:"filename"`
	Path     string `json:"path"`
}

// StatusError carries the status and body of a rejected upload
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("HTTP error %d", e.StatusCode)
	}
	return fmt.Sprintf("HTTP error %d: %s", e.StatusCode, e.Body)
}

// ClientStats represents client statistics
type ClientStats struct {
	TotalRequests   uint64        `json:"total_requests"`
	SuccessRequests uint64        `json:"success_requests"`
	FailedRequests  uint64        `json:"failed_requests"`
	SuccessRate     float64       `json:"success_rate"`
	BytesSent       uint64        `json:"bytes_sent"`
	AvgResponseTime time.Duration `json:"avg_response_time"`
}

// NewClient creates a new upload client. notifier and logger may be nil.
func NewClient(config Config, notifier notify.Notifier, logger *slog.Logger) (*Client, error) {
	if config.Endpoint == "" {
		return nil, fmt.Errorf("endpoint cannot be empty")
	}
	if !strings.HasPrefix(config.Endpoint, "http://") && !strings.HasPrefix(config.Endpoint, "https://") {
		return nil, fmt.Errorf("endpoint must be an http or https URL, got %q", config.Endpoint)
	}
	if config.Timeout < 0 {
		return nil, fmt.Errorf("timeout cannot be negative")
	}

	if config.FieldName == "" {
		config.FieldName = "file"
	}
	if config.ContentType == "" {
		config.ContentType = "audio/wav"
	}
	if config.UserAgent == "" {
		config.UserAgent = "Trio-Recorder/1.0"
	}
	if notifier == nil {
		notifier = notify.Discard{}
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	httpClient := &http.Client{
		Timeout: config.Timeout,
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConns:        10,
			MaxIdleConnsPerHost: 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	return &Client{
		config:     config,
		httpClient: httpClient,
		notifier:   notifier,
		logger:     logger,
	}, nil
}

// Upload sends data as one multipart part and returns the endpoint's
// receipt. It makes exactly one attempt.
func (c *Client) Upload(ctx context.Context, data []byte, filename string) (*Receipt, error) {
	startTime := time.Now()
	c.incrementTotalRequests()

	receipt, err := c.doRequest(ctx, data, filename)
	if err != nil {
		c.incrementFailedRequests()
		return nil, fmt.Errorf("%w: %w", ErrUploadFailed, err)
	}

	c.recordSuccess(len(data), time.Since(startTime))
	return receipt, nil
}

// Deliver uploads a finished recording and tells the user how it went.
// It satisfies capture.Sink.
func (c *Client) Deliver(ctx context.Context, artifact *capture.Artifact) error {
	c.notifier.Info(fmt.Sprintf("Uploading %s (%d bytes)", artifact.Filename, len(artifact.Data)))

	receipt, err := c.Upload(ctx, artifact.Data, artifact.Filename)
	if err != nil {
		c.logger.Error("Upload failed",
			slog.String("filename", artifact.Filename),
			slog.Int("bytes", len(artifact.Data)),
			slog.String("error", err.Error()),
		)
		c.notifier.Error("Failed to save recording", err)
		return err
	}

	c.logger.Info("Upload stored",
		slog.String("filename", receipt.Filename),
		slog.String("path", receipt.Path),
		slog.Int("bytes", len(artifact.Data)),
	)
	c.notifier.Success("Audio saved at " + receipt.Path)
	return nil
}

// doRequest performs a single HTTP request to the ingest endpoint
func (c *Client) doRequest(ctx context.Context, data []byte, filename string) (*Receipt, error) {
	body, contentType, err := c.createMultipartRequest(data, filename)
	if err != nil {
		return nil, fmt.Errorf("failed to create multipart request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.Endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}

	httpReq.Header.Set("Content-Type", contentType)
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", c.config.UserAgent)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(respBody))}
	}

	var receipt Receipt
	if err := json.Unmarshal(respBody, &receipt); err != nil {
		return nil, fmt.Errorf("failed to parse response JSON: %w", err)
	}

	return &receipt, nil
}

// createMultipartRequest builds a body holding the single file part. The
// part header is written by hand so its Content-Type is the audio type
// rather than application/octet-stream.
func (c *Client) createMultipartRequest(data []byte, filename string) (io.Reader, string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
		escapeQuotes(c.config.FieldName), escapeQuotes(filename)))
	header.Set("Content-Type", c.config.ContentType)

	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, "", fmt.Errorf("failed to write audio data: %w", err)
	}

	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to close multipart writer: %w", err)
	}

	return &buf, writer.FormDataContentType(), nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}

// Statistics methods
func (c *Client) incrementTotalRequests() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.totalRequests++
}

func (c *Client) incrementFailedRequests() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failedRequests++
}

func (c *Client) recordSuccess(size int, responseTime time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.successRequests++
	c.bytesSent += uint64(size)

	// Simple moving average
	if c.avgResponseTime == 0 {
		c.avgResponseTime = responseTime
	} else {
		c.avgResponseTime = (c.avgResponseTime + responseTime) / 2
	}
}

// Stats returns current client statistics
func (c *Client) Stats() ClientStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	successRate := float64(0)
	if c.totalRequests > 0 {
		successRate = float64(c.successRequests) / float64(c.totalRequests) * 100
	}

	return ClientStats{
		TotalRequests:   c.totalRequests,
		SuccessRequests: c.successRequests,
		FailedRequests:  c.failedRequests,
		SuccessRate:     successRate,
		BytesSent:       c.bytesSent,
		AvgResponseTime: c.avgResponseTime,
	}
}
