// Package cli implements the recorder command line: capture a recording from
// the microphone and upload it, or upload an existing file.
package cli

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Khalid-000-ME/Trio/internal/capture"
	"github.com/Khalid-000-ME/Trio/internal/config"
	"github.com/Khalid-000-ME/Trio/internal/logging"
	"github.com/Khalid-000-ME/Trio/internal/notify"
	"github.com/Khalid-000-ME/Trio/internal/transport"
)

const version = "1.0.0"

// Dependencies are built once flags are parsed and shared by subcommands
type Dependencies struct {
	Config   *config.Config
	Logger   *slog.Logger
	Notifier notify.Notifier
	Client   *transport.Client

	// Device overrides the configured capture device when set
	Device capture.Device

	logCloser io.Closer
}

type rootOptions struct {
	configPath string
	endpoint   string
}

func NewRootCmd() *cobra.Command {
	return newRootCmd(&Dependencies{})
}

func newRootCmd(deps *Dependencies) *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:           "trio-recorder",
		Short:         "Record audio and upload it to the Trio ingest endpoint",
		Long:          "Captures microphone audio between a start and a stop gesture, assembles it into one recording, and uploads it as multipart/form-data.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return deps.load(opts, cmd.OutOrStdout())
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if deps.logCloser != nil {
				return deps.logCloser.Close()
			}
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Path to a YAML or TOML configuration file")
	rootCmd.PersistentFlags().StringVarP(&opts.endpoint, "endpoint", "e", "", "Upload endpoint URL (overrides config)")

	rootCmd.AddCommand(NewRecordCmd(deps))
	rootCmd.AddCommand(NewUploadCmd(deps))

	return rootCmd
}

func (d *Dependencies) load(opts *rootOptions, out io.Writer) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if opts.endpoint != "" {
		cfg.Client.Endpoint = opts.endpoint
		if err := cfg.Client.Validate(); err != nil {
			return fmt.Errorf("invalid --endpoint: %w", err)
		}
	}

	logger, closer := logging.New(cfg.Logging)

	notifier := notify.Multi{
		notify.NewTerminalNotifier(out),
		notify.NewLogNotifier(logger),
	}

	client, err := transport.NewClient(transport.Config{
		Endpoint:    cfg.Client.Endpoint,
		Timeout:     cfg.Client.GetTimeoutDuration(),
		ContentType: cfg.Client.ContentType,
	}, notifier, logger)
	if err != nil {
		closer.Close()
		return fmt.Errorf("initializing upload client: %w", err)
	}

	d.Config = cfg
	d.Logger = logger
	d.Notifier = notifier
	d.Client = client
	d.logCloser = closer
	return nil
}
