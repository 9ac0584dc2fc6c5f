package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Khalid-000-ME/Trio/internal/audio"
	"github.com/Khalid-000-ME/Trio/internal/notify"
)

// ErrAlreadyRecording is returned by Start while a session is active.
var ErrAlreadyRecording = errors.New("recording already in progress")

// abortWait bounds how long a Stop whose context ended waits for an aborted
// stream to give the device back.
const abortWait = 2 * time.Second

// State is the recorder's session state
type State int

const (
	StateIdle State = iota
	StateRecording
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRecording:
		return "recording"
	default:
		return "unknown"
	}
}

// Artifact is the audio assembled from one capture session
type Artifact struct {
	Data        []byte
	Filename    string
	ContentType string
	Chunks      int
	StartedAt   time.Time
	StoppedAt   time.Time
}

// Duration returns the wall-clock length of the session
func (a *Artifact) Duration() time.Duration {
	return a.StoppedAt.Sub(a.StartedAt)
}

// Sink receives finished artifacts
type Sink interface {
	Deliver(ctx context.Context, artifact *Artifact) error
}

// SinkFunc adapts a function to Sink
type SinkFunc func(ctx context.Context, artifact *Artifact) error

func (f SinkFunc) Deliver(ctx context.Context, artifact *Artifact) error {
	return f(ctx, artifact)
}

// RecorderConfig contains recorder configuration
type RecorderConfig struct {
	Filename    string // suggested filename for artifacts
	ContentType string
	SizeHint    int // initial buffer capacity in bytes
}

// Recorder turns a start/stop gesture pair into one artifact. It holds at
// most one device stream at a time.
type Recorder struct {
	device   Device
	sink     Sink
	notifier notify.Notifier
	logger   *slog.Logger
	config   RecorderConfig

	mu       sync.Mutex
	state    State
	current  *session
	sessions uint64
}

// session owns its buffer, so a stream still draining after a cancelled
// Stop cannot write into the next session.
type session struct {
	stream    Stream
	buffer    *audio.ChunkBuffer
	done      chan struct{}
	startedAt time.Time
}

// RecorderStats represents recorder statistics
type RecorderStats struct {
	State       string    `json:"state"`
	Sessions    uint64    `json:"sessions"`
	Chunks      int       `json:"chunks"`
	Bytes       int       `json:"bytes"`
	StartedAt   time.Time `json:"started_at,omitempty"`
	LastChunkAt time.Time `json:"last_chunk_at,omitempty"`
}

// NewRecorder creates an idle recorder. sink may be nil, in which case
// Stop only returns the artifact.
func NewRecorder(device Device, sink Sink, notifier notify.Notifier, logger *slog.Logger, cfg RecorderConfig) *Recorder {
	if cfg.Filename == "" {
		cfg.Filename = "recording.wav"
	}
	if cfg.ContentType == "" {
		cfg.ContentType = "audio/wav"
	}
	if notifier == nil {
		notifier = notify.Discard{}
	}

	return &Recorder{
		device:   device,
		sink:     sink,
		notifier: notifier,
		logger:   logger,
		config:   cfg,
	}
}

// Start acquires the device and begins accumulating fragments. A device
// failure is returned to the caller and not retried. ctx bounds the device
// for the whole session.
func (r *Recorder) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state == StateRecording {
		return ErrAlreadyRecording
	}

	stream, err := r.device.Open(ctx)
	if err != nil {
		r.logger.Error("Failed to acquire capture device", slog.String("error", err.Error()))
		r.notifier.Error("Could not access microphone", err)
		return fmt.Errorf("acquire capture device: %w", err)
	}

	s := &session{
		stream:    stream,
		buffer:    audio.NewChunkBuffer(r.config.SizeHint),
		done:      make(chan struct{}),
		startedAt: time.Now(),
	}
	r.current = s
	r.state = StateRecording
	r.sessions++

	go r.collect(s)

	r.logger.Info("Recording started", slog.Uint64("session", r.sessions))
	r.notifier.Info("Recording started")
	return nil
}

// Stop finishes the active session: it releases the device, waits for every
// pending fragment, concatenates them and hands the artifact to the sink.
// Stop while idle is a no-op and returns (nil, nil). The returned error is the
// sink's delivery error, if any. When ctx ends before the stream drains the
// stream is aborted and the captured audio is dropped.
func (r *Recorder) Stop(ctx context.Context) (*Artifact, error) {
	artifact, err := r.finish(ctx)
	if err != nil || artifact == nil {
		return nil, err
	}

	r.logger.Info("Recording stopped",
		slog.Int("chunks", artifact.Chunks),
		slog.Int("bytes", len(artifact.Data)),
		slog.Duration("duration", artifact.Duration()),
	)

	if r.sink == nil {
		return artifact, nil
	}

	if err := r.sink.Deliver(ctx, artifact); err != nil {
		return artifact, fmt.Errorf("deliver artifact: %w", err)
	}
	return artifact, nil
}

func (r *Recorder) finish(ctx context.Context) (*Artifact, error) {
	r.mu.Lock()
	if r.state != StateRecording {
		r.mu.Unlock()
		return nil, nil
	}
	s := r.current
	r.current = nil
	r.state = StateIdle
	r.mu.Unlock()

	// The drain runs unlocked so State and Stats keep answering.
	if err := s.stream.Close(); err != nil {
		r.logger.Warn("Error releasing capture device", slog.String("error", err.Error()))
	}

	select {
	case <-s.done:
	case <-ctx.Done():
		r.abort(s)
		return nil, fmt.Errorf("waiting for capture stream to drain: %w", ctx.Err())
	}

	return &Artifact{
		Data:        s.buffer.Bytes(),
		Filename:    r.config.Filename,
		ContentType: r.config.ContentType,
		Chunks:      s.buffer.Chunks(),
		StartedAt:   s.startedAt,
		StoppedAt:   time.Now(),
	}, nil
}

// abort tears down a stream that did not drain in time and waits briefly
// for it to give the device back.
func (r *Recorder) abort(s *session) {
	if a, ok := s.stream.(Aborter); ok {
		if err := a.Abort(); err != nil {
			r.logger.Warn("Failed to abort capture stream", slog.String("error", err.Error()))
		}
	}

	timer := time.NewTimer(abortWait)
	defer timer.Stop()

	select {
	case <-s.done:
	case <-timer.C:
		r.logger.Warn("Capture stream still draining after abort")
	}
}

// collect is the only writer to the buffer for a session, so fragments land
// in the order the stream delivered them.
func (r *Recorder) collect(s *session) {
	for chunk := range s.stream.Chunks() {
		s.buffer.Append(chunk)
	}
	close(s.done)

	r.mu.Lock()
	if r.current != s {
		// Stop owns the teardown.
		r.mu.Unlock()
		return
	}

	err := s.stream.Err()
	if err == nil {
		// The device stopped cleanly without Stop, e.g. it was interrupted
		// from the terminal. Stop still assembles what was captured.
		r.mu.Unlock()
		r.logger.Info("Capture device stopped, waiting for stop", slog.Int("bytes", s.buffer.Len()))
		r.notifier.Info("Microphone stopped, finishing recording")
		return
	}

	r.current = nil
	r.state = StateIdle
	r.mu.Unlock()

	_ = s.stream.Close()

	r.logger.Error("Capture device failed during recording",
		slog.String("error", err.Error()),
		slog.Int("discarded_bytes", s.buffer.Len()),
	)
	r.notifier.Error("Recording interrupted", err)
}

// StreamEnded reports whether the active session's device has stopped
// producing audio. Stop is still needed to collect the recording.
func (r *Recorder) StreamEnded() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.current == nil {
		return false
	}
	select {
	case <-r.current.done:
		return true
	default:
		return false
	}
}

// State returns the current session state
func (r *Recorder) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Stats returns current recorder statistics
func (r *Recorder) Stats() RecorderStats {
	r.mu.Lock()
	defer r.mu.Unlock()

	stats := RecorderStats{
		State:    r.state.String(),
		Sessions: r.sessions,
	}
	if r.current != nil {
		bs := r.current.buffer.GetStats()
		stats.Chunks = bs.Chunks
		stats.Bytes = bs.Bytes
		stats.StartedAt = r.current.startedAt
		stats.LastChunkAt = bs.LastUpdated
	}
	return stats
}
