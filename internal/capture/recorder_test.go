package capture

import (
	"bytes"
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Khalid-000-ME/Trio/internal/logging"
)

// fakeStream is fed by the test; Close and fail both end the chunk channel.
type fakeStream struct {
	chunks chan []byte
	once   sync.Once
	mu     sync.Mutex
	err    error
	aborts int
	dev    *fakeDevice
}

func (s *fakeStream) Chunks() <-chan []byte { return s.chunks }

func (s *fakeStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *fakeStream) Close() error {
	s.end(nil)
	return nil
}

func (s *fakeStream) fail(err error) {
	s.end(err)
}

func (s *fakeStream) end(err error) {
	s.once.Do(func() {
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
		s.dev.release()
		close(s.chunks)
	})
}

// stuckStream ignores Close, so only Abort ends it.
type stuckStream struct {
	*fakeStream
}

func (s *stuckStream) Close() error { return nil }

func (s *stuckStream) Abort() error {
	s.mu.Lock()
	s.aborts++
	s.mu.Unlock()
	s.end(nil)
	return nil
}

type fakeDevice struct {
	openErr error
	stuck   bool

	mu      sync.Mutex
	opens   int
	active  int
	maxOpen int
	streams []*fakeStream
}

func (d *fakeDevice) Open(ctx context.Context) (Stream, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.openErr != nil {
		return nil, d.openErr
	}

	d.opens++
	d.active++
	if d.active > d.maxOpen {
		d.maxOpen = d.active
	}
	s := &fakeStream{chunks: make(chan []byte, 1024), dev: d}
	d.streams = append(d.streams, s)
	if d.stuck {
		return &stuckStream{fakeStream: s}, nil
	}
	return s, nil
}

func (d *fakeDevice) release() {
	d.mu.Lock()
	d.active--
	d.mu.Unlock()
}

func (s *fakeStream) abortCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.aborts
}

func (d *fakeDevice) last() *fakeStream {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.streams[len(d.streams)-1]
}

type captureSink struct {
	mu        sync.Mutex
	artifacts []*Artifact
	err       error
}

func (s *captureSink) Deliver(ctx context.Context, a *Artifact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.artifacts = append(s.artifacts, a)
	return s.err
}

func (s *captureSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.artifacts)
}

type countingNotifier struct {
	mu     sync.Mutex
	errors []string
	infos  []string
}

func (n *countingNotifier) Info(msg string) {
	n.mu.Lock()
	n.infos = append(n.infos, msg)
	n.mu.Unlock()
}

func (n *countingNotifier) Success(string) {}

func (n *countingNotifier) Error(msg string, err error) {
	n.mu.Lock()
	n.errors = append(n.errors, msg)
	n.mu.Unlock()
}

func (n *countingNotifier) errorCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.errors)
}

func newTestRecorder(dev Device, sink Sink, n *countingNotifier) *Recorder {
	return NewRecorder(dev, sink, n, logging.Discard(), RecorderConfig{})
}

func TestRecorderAssemblesChunksInArrivalOrder(t *testing.T) {
	rng := rand.New(rand.NewSource(7))

	for trial := 0; trial < 20; trial++ {
		dev := &fakeDevice{}
		sink := &captureSink{}
		rec := newTestRecorder(dev, sink, &countingNotifier{})

		require.NoError(t, rec.Start(context.Background()))
		assert.Equal(t, StateRecording, rec.State())

		var expected []byte
		stream := dev.last()
		n := rng.Intn(100) + 1
		for i := 0; i < n; i++ {
			chunk := make([]byte, rng.Intn(700))
			rng.Read(chunk)
			expected = append(expected, chunk...)
			stream.chunks <- chunk
		}

		artifact, err := rec.Stop(context.Background())
		require.NoError(t, err)
		require.NotNil(t, artifact)

		assert.True(t, bytes.Equal(expected, artifact.Data), "trial %d: artifact differs from concatenation", trial)
		assert.Equal(t, "recording.wav", artifact.Filename)
		assert.Equal(t, "audio/wav", artifact.ContentType)
		assert.Equal(t, StateIdle, rec.State())

		require.Equal(t, 1, sink.count())
		assert.Same(t, artifact, sink.artifacts[0])
	}
}

func TestRecorderStopWhileIdleIsNoop(t *testing.T) {
	dev := &fakeDevice{}
	sink := &captureSink{}
	rec := newTestRecorder(dev, sink, &countingNotifier{})

	artifact, err := rec.Stop(context.Background())
	assert.NoError(t, err)
	assert.Nil(t, artifact)
	assert.Equal(t, 0, sink.count())
	assert.Equal(t, 0, dev.opens)

	// A second stop after a completed session is also a no-op.
	require.NoError(t, rec.Start(context.Background()))
	_, err = rec.Stop(context.Background())
	require.NoError(t, err)

	artifact, err = rec.Stop(context.Background())
	assert.NoError(t, err)
	assert.Nil(t, artifact)
	assert.Equal(t, 1, sink.count())
}

func TestRecorderStartDeviceFailure(t *testing.T) {
	denied := errors.New("permission denied")
	dev := &fakeDevice{openErr: denied}
	notifier := &countingNotifier{}
	rec := newTestRecorder(dev, &captureSink{}, notifier)

	err := rec.Start(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, denied)
	assert.Equal(t, StateIdle, rec.State())
	assert.Equal(t, 1, notifier.errorCount())
	assert.Equal(t, uint64(0), rec.Stats().Sessions)
}

func TestRecorderStartWhileRecording(t *testing.T) {
	dev := &fakeDevice{}
	rec := newTestRecorder(dev, nil, &countingNotifier{})

	require.NoError(t, rec.Start(context.Background()))
	err := rec.Start(context.Background())
	assert.ErrorIs(t, err, ErrAlreadyRecording)

	assert.Equal(t, 1, dev.opens)
	assert.Equal(t, 1, dev.maxOpen)

	_, err = rec.Stop(context.Background())
	require.NoError(t, err)
}

func TestRecorderNeverHoldsTwoHandles(t *testing.T) {
	dev := &fakeDevice{}
	rec := newTestRecorder(dev, nil, &countingNotifier{})

	for i := 0; i < 10; i++ {
		require.NoError(t, rec.Start(context.Background()))
		dev.last().chunks <- []byte{byte(i)}
		artifact, err := rec.Stop(context.Background())
		require.NoError(t, err)
		// Each session starts with an empty buffer.
		assert.Equal(t, []byte{byte(i)}, artifact.Data)
	}

	assert.Equal(t, 10, dev.opens)
	assert.Equal(t, 1, dev.maxOpen)
	assert.Equal(t, 0, dev.active)
}

func TestRecorderDeviceErrorReturnsToIdle(t *testing.T) {
	dev := &fakeDevice{}
	sink := &captureSink{}
	notifier := &countingNotifier{}
	rec := newTestRecorder(dev, sink, notifier)

	require.NoError(t, rec.Start(context.Background()))
	stream := dev.last()
	stream.chunks <- []byte("partial")
	stream.fail(errors.New("device unplugged"))

	require.Eventually(t, func() bool { return rec.State() == StateIdle }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, notifier.errorCount())

	artifact, err := rec.Stop(context.Background())
	assert.NoError(t, err)
	assert.Nil(t, artifact)
	assert.Equal(t, 0, sink.count())

	// The device is free again.
	require.NoError(t, rec.Start(context.Background()))
	_, err = rec.Stop(context.Background())
	require.NoError(t, err)
}

func TestRecorderCleanDeviceStopKeepsRecording(t *testing.T) {
	dev := &fakeDevice{}
	notifier := &countingNotifier{}
	rec := newTestRecorder(dev, nil, notifier)

	require.NoError(t, rec.Start(context.Background()))
	assert.False(t, rec.StreamEnded())

	stream := dev.last()
	stream.chunks <- []byte("kept")
	stream.end(nil)

	require.Eventually(t, rec.StreamEnded, time.Second, 5*time.Millisecond)
	assert.Equal(t, StateRecording, rec.State())
	assert.Zero(t, notifier.errorCount())

	artifact, err := rec.Stop(context.Background())
	require.NoError(t, err)
	require.NotNil(t, artifact)
	assert.Equal(t, []byte("kept"), artifact.Data)
	assert.False(t, rec.StreamEnded())
}

func TestRecorderStopDeadlineAbortsStream(t *testing.T) {
	dev := &fakeDevice{stuck: true}
	rec := newTestRecorder(dev, nil, &countingNotifier{})

	require.NoError(t, rec.Start(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	artifact, err := rec.Stop(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Nil(t, artifact)
	assert.Equal(t, 1, dev.last().abortCount())
	assert.Equal(t, 0, dev.active)

	dev.stuck = false
	require.NoError(t, rec.Start(context.Background()))
	_, err = rec.Stop(context.Background())
	require.NoError(t, err)
}

func TestRecorderStateDuringDrain(t *testing.T) {
	dev := &fakeDevice{stuck: true}
	rec := newTestRecorder(dev, nil, &countingNotifier{})

	require.NoError(t, rec.Start(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan error, 1)
	go func() {
		_, err := rec.Stop(ctx)
		stopped <- err
	}()

	require.Eventually(t, func() bool { return rec.State() == StateIdle }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "idle", rec.Stats().State)

	cancel()
	assert.ErrorIs(t, <-stopped, context.Canceled)
}

func TestRecorderSinkFailure(t *testing.T) {
	dev := &fakeDevice{}
	sink := &captureSink{err: errors.New("HTTP error 500")}
	rec := newTestRecorder(dev, sink, &countingNotifier{})

	require.NoError(t, rec.Start(context.Background()))
	dev.last().chunks <- []byte("audio")

	artifact, err := rec.Stop(context.Background())
	require.Error(t, err)
	require.NotNil(t, artifact)
	assert.Equal(t, []byte("audio"), artifact.Data)
	assert.Equal(t, StateIdle, rec.State())
}

func TestRecorderSinkFunc(t *testing.T) {
	dev := &fakeDevice{}
	var delivered []byte
	rec := newTestRecorder(dev, SinkFunc(func(ctx context.Context, a *Artifact) error {
		delivered = a.Data
		return nil
	}), &countingNotifier{})

	require.NoError(t, rec.Start(context.Background()))
	dev.last().chunks <- []byte("hello")
	_, err := rec.Stop(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []byte("hello"), delivered)
}

func TestRecorderStats(t *testing.T) {
	dev := &fakeDevice{}
	rec := newTestRecorder(dev, nil, &countingNotifier{})

	assert.Equal(t, "idle", rec.Stats().State)

	require.NoError(t, rec.Start(context.Background()))
	dev.last().chunks <- make([]byte, 320)
	dev.last().chunks <- make([]byte, 320)

	require.Eventually(t, func() bool { return rec.Stats().Chunks == 2 }, time.Second, 5*time.Millisecond)
	stats := rec.Stats()
	assert.Equal(t, "recording", stats.State)
	assert.Equal(t, 640, stats.Bytes)
	assert.Equal(t, uint64(1), stats.Sessions)
	assert.False(t, stats.StartedAt.IsZero())

	_, err := rec.Stop(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, rec.Stats().Bytes)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "recording", StateRecording.String())
	assert.Equal(t, "unknown", State(9).String())
}
