package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Khalid-000-ME/Trio/internal/audio"
	"github.com/Khalid-000-ME/Trio/internal/capture"
	"github.com/Khalid-000-ME/Trio/internal/config"
)

var (
	errInterrupted = errors.New("recording was interrupted by a device error")
	errNoAudio     = errors.New("no audio captured")
)

func NewRecordCmd(deps *Dependencies) *cobra.Command {
	var duration time.Duration

	cmd := &cobra.Command{
		Use:   "record",
		Short: "Record from the microphone and upload on stop",
		Long:  "Starts recording immediately. Press Enter or Ctrl+C to stop; the recording is then uploaded.\nUse --duration to stop automatically.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			device := deps.Device
			if device == nil {
				device = capture.NewExecDevice(deps.Config.Capture)
			}

			rec := capture.NewRecorder(device,
				newUploadSink(deps.Config.Capture, deps.Client),
				deps.Notifier,
				deps.Logger,
				capture.RecorderConfig{
					Filename:    deps.Config.Client.Filename,
					ContentType: deps.Config.Client.ContentType,
					SizeHint:    deps.Config.Capture.ChunkBytes() * 64,
				},
			)

			// The device outlives signal cancellation so Stop can flush it.
			if err := rec.Start(context.Background()); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if duration > 0 {
				deps.Notifier.Info(fmt.Sprintf("Recording for %s (Enter or Ctrl+C stops early)", duration))
			} else {
				deps.Notifier.Info("Press Enter or Ctrl+C to stop")
			}
			waitForStop(ctx, cmd.InOrStdin(), duration, rec)

			artifact, err := rec.Stop(context.Background())
			if err != nil {
				return err
			}
			if artifact == nil {
				return errInterrupted
			}
			return nil
		},
	}

	cmd.Flags().DurationVarP(&duration, "duration", "d", 0, "Stop automatically after this long")

	return cmd
}

// waitForStop blocks until the user presses Enter, ctx ends, the duration
// elapses, the device stops producing, or the recorder drops to idle on its own. EOF on in is ignored so
// non-interactive runs wait for a signal or the duration.
func waitForStop(ctx context.Context, in io.Reader, duration time.Duration, rec *capture.Recorder) {
	enter := make(chan struct{})
	go func() {
		if _, err := bufio.NewReader(in).ReadString('\n'); err == nil {
			close(enter)
		}
	}()

	var timeout <-chan time.Time
	if duration > 0 {
		timer := time.NewTimer(duration)
		defer timer.Stop()
		timeout = timer.C
	}

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-enter:
			return
		case <-ctx.Done():
			return
		case <-timeout:
			return
		case <-ticker.C:
			if rec.State() == capture.StateIdle || rec.StreamEnded() {
				return
			}
		}
	}
}

// newUploadSink frames raw PCM captures as WAV before they reach next.
// Devices that already emit WAV are passed through untouched.
func newUploadSink(cfg config.CaptureConfig, next capture.Sink) capture.Sink {
	if cfg.Format != "raw" {
		return next
	}

	return capture.SinkFunc(func(ctx context.Context, artifact *capture.Artifact) error {
		framed, err := frameWAV(artifact.Data, cfg.SampleRate, cfg.Channels)
		if err != nil {
			return err
		}

		out := *artifact
		out.Data = framed
		return next.Deliver(ctx, &out)
	})
}

// frameWAV drops a trailing partial frame, left when the recorder is
// interrupted mid-write, and prepends a WAV header.
func frameWAV(pcm []byte, sampleRate, channels int) ([]byte, error) {
	frame := channels * 2
	pcm = pcm[:len(pcm)-len(pcm)%frame]
	if len(pcm) == 0 {
		return nil, errNoAudio
	}
	return audio.EncodeWAV(pcm, sampleRate, channels)
}
