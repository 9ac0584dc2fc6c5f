package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// envPrefix prefixes every environment override recognised by Load.
const envPrefix = "TRIO_"

// Config represents the complete service configuration
type Config struct {
	HTTP    HTTPConfig    `yaml:"http" toml:"http"`
	Storage StorageConfig `yaml:"storage" toml:"storage"`
	Upload  UploadConfig  `yaml:"upload" toml:"upload"`
	Client  ClientConfig  `yaml:"client" toml:"client"`
	Capture CaptureConfig `yaml:"capture" toml:"capture"`
	Logging LoggingConfig `yaml:"logging" toml:"logging"`
	Metrics MetricsConfig `yaml:"metrics" toml:"metrics"`
}

// HTTPConfig contains HTTP ingest server configuration
type HTTPConfig struct {
	Port            int    `yaml:"port" toml:"port"`
	Address         string `yaml:"address" toml:"address"`
	ReadTimeout     int    `yaml:"read_timeout" toml:"read_timeout"`         // seconds, 0 disables
	WriteTimeout    int    `yaml:"write_timeout" toml:"write_timeout"`       // seconds, 0 disables
	ShutdownTimeout int    `yaml:"shutdown_timeout" toml:"shutdown_timeout"` // seconds
}

// StorageConfig controls where uploaded artifacts land and how they are named
type StorageConfig struct {
	Dir        string `yaml:"dir" toml:"dir"`
	PublicPath string `yaml:"public_path" toml:"public_path"` // logical prefix returned to clients
	Naming     string `yaml:"naming" toml:"naming"`           // "timestamp" or "uuid"
	Prefix     string `yaml:"prefix" toml:"prefix"`
	Extension  string `yaml:"extension" toml:"extension"`
	CreateDir  bool   `yaml:"create_dir" toml:"create_dir"`
	Serve      bool   `yaml:"serve" toml:"serve"` // expose stored files over HTTP
}

// UploadConfig contains multipart parsing parameters
type UploadConfig struct {
	Route     string `yaml:"route" toml:"route"`
	FieldName string `yaml:"field_name" toml:"field_name"`
	MaxMemory int64  `yaml:"max_memory" toml:"max_memory"` // bytes kept in memory before spilling to temp files
}

// ClientConfig contains the recorder's transport configuration
type ClientConfig struct {
	Endpoint    string `yaml:"endpoint" toml:"endpoint"`
	Timeout     int    `yaml:"timeout" toml:"timeout"` // seconds, 0 means wait indefinitely
	Filename    string `yaml:"filename" toml:"filename"`
	ContentType string `yaml:"content_type" toml:"content_type"`
}

// CaptureConfig contains microphone capture parameters
type CaptureConfig struct {
	Command    string `yaml:"command" toml:"command"` // empty selects pw-record, then arecord
	Device     string `yaml:"device" toml:"device"`
	SampleRate int    `yaml:"sample_rate" toml:"sample_rate"`
	Channels   int    `yaml:"channels" toml:"channels"`
	ChunkMs    int    `yaml:"chunk_ms" toml:"chunk_ms"`
	Format     string `yaml:"format" toml:"format"` // "raw" PCM or "wav" stream
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
	Output string `yaml:"output" toml:"output"`
}

// MetricsConfig toggles the Prometheus endpoint
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" toml:"enabled"`
	Path    string `yaml:"path" toml:"path"`
}

// Default returns a configuration matching the stock deployment
func Default() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Port:            3000,
			Address:         "0.0.0.0",
			ShutdownTimeout: 10,
		},
		Storage: StorageConfig{
			Dir:        filepath.Join("public", "uploads"),
			PublicPath: "/uploads",
			Naming:     "timestamp",
			Prefix:     "audio_",
			Extension:  ".wav",
			CreateDir:  true,
			Serve:      true,
		},
		Upload: UploadConfig{
			Route:     "/api/store-audio",
			FieldName: "file",
			MaxMemory: 32 << 20,
		},
		Client: ClientConfig{
			Endpoint:    "http://localhost:3000/api/store-audio",
			Filename:    "recording.wav",
			ContentType: "audio/wav",
		},
		Capture: CaptureConfig{
			SampleRate: 16000,
			Channels:   1,
			ChunkMs:    250,
			Format:     "raw",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stdout",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}

// Load reads and parses the configuration file. An empty path yields the
// defaults. Values from a .env file and TRIO_* variables override the file.
func Load(path string) (*Config, error) {
	config := Default()

	if path != "" {
		if err := decodeFile(path, config); err != nil {
			return nil, err
		}
	}

	// A missing .env is the common case.
	_ = godotenv.Load()

	if err := applyEnvOverrides(config); err != nil {
		return nil, fmt.Errorf("environment overrides: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

func decodeFile(path string, config *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.Decode(string(data), config); err != nil {
			return fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	case ".yaml", ".yml", "":
		if err := yaml.Unmarshal(data, config); err != nil {
			return fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	default:
		return fmt.Errorf("unsupported config format %q", filepath.Ext(path))
	}

	return nil
}

func applyEnvOverrides(c *Config) error {
	if v := os.Getenv(envPrefix + "HTTP_ADDRESS"); v != "" {
		c.HTTP.Address = v
	}
	if v := os.Getenv(envPrefix + "HTTP_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%sHTTP_PORT: %w", envPrefix, err)
		}
		c.HTTP.Port = port
	}
	if v := os.Getenv(envPrefix + "UPLOADS_DIR"); v != "" {
		c.Storage.Dir = v
	}
	if v := os.Getenv(envPrefix + "NAMING"); v != "" {
		c.Storage.Naming = v
	}
	if v := os.Getenv(envPrefix + "ENDPOINT"); v != "" {
		c.Client.Endpoint = v
	}
	if v := os.Getenv(envPrefix + "CAPTURE_DEVICE"); v != "" {
		c.Capture.Device = v
	}
	if v := os.Getenv(envPrefix + "LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	return nil
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	if err := c.HTTP.Validate(); err != nil {
		return fmt.Errorf("http config: %w", err)
	}

	if err := c.Storage.Validate(); err != nil {
		return fmt.Errorf("storage config: %w", err)
	}

	if err := c.Upload.Validate(); err != nil {
		return fmt.Errorf("upload config: %w", err)
	}

	if err := c.Client.Validate(); err != nil {
		return fmt.Errorf("client config: %w", err)
	}

	if err := c.Capture.Validate(); err != nil {
		return fmt.Errorf("capture config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	if err := c.Metrics.Validate(); err != nil {
		return fmt.Errorf("metrics config: %w", err)
	}

	return c.validateRoutes()
}

// validateRoutes rejects configurations whose endpoints would collide on one mux
func (c *Config) validateRoutes() error {
	routes := map[string]string{
		"/":       "root",
		"/health": "health",
		"/stats":  "stats",
	}
	claim := func(route, owner string) error {
		if other, taken := routes[route]; taken {
			return fmt.Errorf("%s route %q collides with %s", owner, route, other)
		}
		routes[route] = owner
		return nil
	}

	if err := claim(c.Upload.Route, "upload"); err != nil {
		return err
	}
	if c.Metrics.Enabled {
		if err := claim(c.Metrics.Path, "metrics"); err != nil {
			return err
		}
	}
	if c.Storage.Serve {
		prefix := strings.TrimSuffix(c.Storage.PublicPath, "/") + "/"
		if err := claim(prefix, "storage"); err != nil {
			return err
		}
		if strings.HasPrefix(c.Upload.Route, prefix) {
			return fmt.Errorf("upload route %q is shadowed by public_path %q", c.Upload.Route, c.Storage.PublicPath)
		}
	}
	return nil
}

// Validate validates HTTP configuration
func (h *HTTPConfig) Validate() error {
	if h.Port < 1 || h.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", h.Port)
	}

	if h.Address == "" {
		return fmt.Errorf("address cannot be empty")
	}

	if h.ReadTimeout < 0 || h.WriteTimeout < 0 {
		return fmt.Errorf("timeouts cannot be negative")
	}

	if h.ShutdownTimeout < 1 {
		return fmt.Errorf("shutdown_timeout must be at least 1 second, got %d", h.ShutdownTimeout)
	}

	return nil
}

// Validate validates storage configuration
func (s *StorageConfig) Validate() error {
	if s.Dir == "" {
		return fmt.Errorf("dir cannot be empty")
	}

	if !strings.HasPrefix(s.PublicPath, "/") {
		return fmt.Errorf("public_path must start with '/', got '%s'", s.PublicPath)
	}

	validNaming := map[string]bool{"timestamp": true, "uuid": true}
	if !validNaming[s.Naming] {
		return fmt.Errorf("naming must be 'timestamp' or 'uuid', got '%s'", s.Naming)
	}

	if strings.ContainsAny(s.Prefix+s.Extension, `/\`) {
		return fmt.Errorf("prefix and extension cannot contain path separators")
	}

	return nil
}

// Validate validates upload configuration
func (u *UploadConfig) Validate() error {
	if !strings.HasPrefix(u.Route, "/") {
		return fmt.Errorf("route must start with '/', got '%s'", u.Route)
	}

	if u.FieldName == "" {
		return fmt.Errorf("field_name cannot be empty")
	}

	if u.MaxMemory < 1024 {
		return fmt.Errorf("max_memory must be at least 1024 bytes, got %d", u.MaxMemory)
	}

	return nil
}

// Validate validates client configuration
func (cl *ClientConfig) Validate() error {
	if !strings.HasPrefix(cl.Endpoint, "http://") && !strings.HasPrefix(cl.Endpoint, "https://") {
		return fmt.Errorf("endpoint must be an http(s) URL, got '%s'", cl.Endpoint)
	}

	if cl.Timeout < 0 {
		return fmt.Errorf("timeout cannot be negative, got %d", cl.Timeout)
	}

	if cl.Filename == "" {
		return fmt.Errorf("filename cannot be empty")
	}

	if cl.ContentType == "" {
		return fmt.Errorf("content_type cannot be empty")
	}

	return nil
}

// Validate validates capture configuration
func (a *CaptureConfig) Validate() error {
	if a.SampleRate < 8000 || a.SampleRate > 192000 {
		return fmt.Errorf("sample_rate must be between 8000 and 192000 Hz, got %d", a.SampleRate)
	}

	if a.Channels != 1 && a.Channels != 2 {
		return fmt.Errorf("channels must be 1 or 2, got %d", a.Channels)
	}

	if a.ChunkMs < 10 || a.ChunkMs > 5000 {
		return fmt.Errorf("chunk_ms must be between 10 and 5000, got %d", a.ChunkMs)
	}

	validFormats := map[string]bool{"raw": true, "wav": true}
	if !validFormats[a.Format] {
		return fmt.Errorf("format must be 'raw' or 'wav', got '%s'", a.Format)
	}

	if a.Command != "" && strings.TrimSpace(a.Command) == "" {
		return fmt.Errorf("command must name a program when set")
	}

	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'text', got '%s'", l.Format)
	}

	// Output accepts stdout, stderr or any file path.
	return nil
}

// Validate validates metrics configuration
func (m *MetricsConfig) Validate() error {
	if m.Enabled && !strings.HasPrefix(m.Path, "/") {
		return fmt.Errorf("path must start with '/', got '%s'", m.Path)
	}
	return nil
}

// Addr returns the listen address in host:port form
func (h *HTTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", h.Address, h.Port)
}

// GetReadTimeoutDuration returns the read timeout as a time.Duration
func (h *HTTPConfig) GetReadTimeoutDuration() time.Duration {
	return time.Duration(h.ReadTimeout) * time.Second
}

// GetWriteTimeoutDuration returns the write timeout as a time.Duration
func (h *HTTPConfig) GetWriteTimeoutDuration() time.Duration {
	return time.Duration(h.WriteTimeout) * time.Second
}

// GetShutdownTimeoutDuration returns the graceful shutdown budget
func (h *HTTPConfig) GetShutdownTimeoutDuration() time.Duration {
	return time.Duration(h.ShutdownTimeout) * time.Second
}

// GetTimeoutDuration returns the upload timeout; zero means none
func (cl *ClientConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(cl.Timeout) * time.Second
}

// GetChunkDuration returns the capture read size as a time.Duration
func (a *CaptureConfig) GetChunkDuration() time.Duration {
	return time.Duration(a.ChunkMs) * time.Millisecond
}

// ChunkBytes returns the byte size of one capture chunk of 16-bit PCM
func (a *CaptureConfig) ChunkBytes() int {
	return a.SampleRate * a.Channels * 2 * a.ChunkMs / 1000
}
