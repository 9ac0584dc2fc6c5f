package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Khalid-000-ME/Trio/internal/config"
)

var (
	// ErrDeviceUnavailable is returned when no capture backend can be started.
	ErrDeviceUnavailable = errors.New("capture device unavailable")
	// ErrDeviceBusy is returned when the device already has an open stream.
	ErrDeviceBusy = errors.New("capture device busy")
	// ErrStreamEnded is reported when a stream stops without being closed.
	ErrStreamEnded = errors.New("capture stream ended unexpectedly")
)

// Stream is a live capture handle. Chunks is closed once the device has
// stopped producing; Err then reports why, and is nil when the device stopped
// cleanly. Close asks the device to stop and every chunk produced before that
// is still delivered.
type Stream interface {
	Chunks() <-chan []byte
	Err() error
	Close() error
}

// Device acquires exclusive capture streams
type Device interface {
	Open(ctx context.Context) (Stream, error)
}

// Aborter is implemented by streams that can be torn down at once, without
// waiting for the device to flush.
type Aborter interface {
	Abort() error
}

// defaultStopGrace is how long a recorder may keep running after Close
// before it is killed.
const defaultStopGrace = 3 * time.Second

// ExecDevice captures from the microphone by reading a recorder subprocess's
// stdout: pw-record when present, arecord otherwise, or a configured command.
type ExecDevice struct {
	command    string
	device     string
	sampleRate int
	channels   int
	chunkBytes int
	format     string
	stopGrace  time.Duration

	lookPath func(string) (string, error)

	mu   sync.Mutex
	open bool
}

// NewExecDevice creates a subprocess-backed capture device
func NewExecDevice(cfg config.CaptureConfig) *ExecDevice {
	return &ExecDevice{
		command:    cfg.Command,
		device:     cfg.Device,
		sampleRate: cfg.SampleRate,
		channels:   cfg.Channels,
		chunkBytes: cfg.ChunkBytes(),
		format:     cfg.Format,
		stopGrace:  defaultStopGrace,
		lookPath:   exec.LookPath,
	}
}

// Open starts the recorder process in its own process group, so a Ctrl+C
// aimed at the calling program does not reach it. The process lives until
// the stream is closed or ctx is cancelled.
func (d *ExecDevice) Open(ctx context.Context) (Stream, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.open {
		return nil, ErrDeviceBusy
	}

	args, err := d.buildArgs()
	if err != nil {
		return nil, err
	}

	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}

	stderr := &limitedBuffer{limit: 4096}
	cmd.Stderr = stderr
	isolate(cmd)

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: start %s: %v", ErrDeviceUnavailable, args[0], err)
	}

	d.open = true
	s := &execStream{
		cmd:    cmd,
		stdout: stdout,
		stderr: stderr,
		grace:  d.stopGrace,
		chunks: make(chan []byte, 16),
		exited: make(chan struct{}),
		release: func() {
			d.mu.Lock()
			d.open = false
			d.mu.Unlock()
		},
	}
	go s.read(d.chunkBytes)

	return s, nil
}

func (d *ExecDevice) buildArgs() ([]string, error) {
	if d.command != "" {
		args := strings.Fields(d.command)
		if len(args) == 0 {
			return nil, fmt.Errorf("%w: capture command is blank", ErrDeviceUnavailable)
		}
		if _, err := d.lookPath(args[0]); err != nil {
			return nil, fmt.Errorf("%w: %s not found", ErrDeviceUnavailable, args[0])
		}
		return args, nil
	}

	// Prefer pw-record (PipeWire) for raw PCM, fall back to arecord (ALSA).
	if d.format == "raw" {
		if _, err := d.lookPath("pw-record"); err == nil {
			args := []string{
				"pw-record",
				"--format=s16",
				"--rate=" + strconv.Itoa(d.sampleRate),
				"--channels=" + strconv.Itoa(d.channels),
			}
			if d.device != "" {
				args = append(args, "--target="+d.device)
			}
			return append(args, "-"), nil
		}
	}

	if _, err := d.lookPath("arecord"); err != nil {
		return nil, fmt.Errorf("%w: neither pw-record nor arecord found", ErrDeviceUnavailable)
	}

	fileType := "raw"
	if d.format == "wav" {
		fileType = "wav"
	}
	args := []string{
		"arecord",
		"-f", "S16_LE",
		"-r", strconv.Itoa(d.sampleRate),
		"-c", strconv.Itoa(d.channels),
		"-t", fileType,
		"-q",
	}
	if d.device != "" {
		args = append(args, "-D", d.device)
	}
	return append(args, "-"), nil
}

type execStream struct {
	cmd     *exec.Cmd
	stdout  io.ReadCloser
	stderr  *limitedBuffer
	grace   time.Duration
	chunks  chan []byte
	exited  chan struct{} // closed once the process has been reaped
	release func()

	mu      sync.Mutex
	closing bool
	err     error
}

func (s *execStream) Chunks() <-chan []byte {
	return s.chunks
}

func (s *execStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close interrupts the recorder so it can flush what it has captured. A
// recorder still running after the grace period is killed.
func (s *execStream) Close() error {
	if !s.markClosing() {
		return nil
	}

	if err := interruptProcess(s.cmd.Process); err != nil {
		if errors.Is(err, os.ErrProcessDone) {
			return nil
		}
		return killProcess(s.cmd.Process)
	}

	go s.escalate()
	return nil
}

// Abort kills the recorder without waiting for it to flush.
func (s *execStream) Abort() error {
	s.markClosing()

	select {
	case <-s.exited:
		return nil
	default:
	}
	if err := killProcess(s.cmd.Process); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	return nil
}

// markClosing records that the stream is being shut down on purpose. It
// reports false when that already happened or the process is gone.
func (s *execStream) markClosing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closing {
		return false
	}
	s.closing = true

	select {
	case <-s.exited:
		return false
	default:
		return true
	}
}

func (s *execStream) escalate() {
	timer := time.NewTimer(s.grace)
	defer timer.Stop()

	select {
	case <-s.exited:
	case <-timer.C:
		_ = killProcess(s.cmd.Process)
	}
}

func (s *execStream) read(chunkBytes int) {
	// release runs first so the device can be reopened once Chunks closes.
	defer close(s.chunks)
	defer s.release()

	if chunkBytes <= 0 {
		chunkBytes = 4096
	}

	buf := make([]byte, chunkBytes)
	var readErr error
	for {
		n, err := io.ReadFull(s.stdout, buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			s.chunks <- chunk
		}
		if err != nil {
			if err != io.EOF && err != io.ErrUnexpectedEOF {
				readErr = err
			}
			break
		}
	}

	waitErr := s.cmd.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()
	close(s.exited)

	switch {
	case s.closing:
		s.err = nil
	case exitedOnInterrupt(waitErr):
		// Interrupted from outside: the recording is intact and Stop still
		// collects it.
		s.err = nil
	case readErr != nil:
		s.err = fmt.Errorf("read capture stream: %w", readErr)
	case waitErr != nil:
		s.err = fmt.Errorf("%w: %v: %s", ErrStreamEnded, waitErr, strings.TrimSpace(s.stderr.String()))
	default:
		s.err = ErrStreamEnded
	}
}

// limitedBuffer keeps the first limit bytes written to it
type limitedBuffer struct {
	limit int
	mu    sync.Mutex
	buf   bytes.Buffer
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if room := b.limit - b.buf.Len(); room > 0 {
		if len(p) > room {
			b.buf.Write(p[:room])
		} else {
			b.buf.Write(p)
		}
	}
	return len(p), nil
}

func (b *limitedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
