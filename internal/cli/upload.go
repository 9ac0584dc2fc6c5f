package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Khalid-000-ME/Trio/internal/capture"
)

func NewUploadCmd(deps *Dependencies) *cobra.Command {
	var filename string

	cmd := &cobra.Command{
		Use:   "upload <file>",
		Short: "Upload an existing audio file",
		Long:  "Sends a file to the ingest endpoint exactly as a finished recording would be sent.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("reading %s: %w", args[0], err)
			}

			if filename == "" {
				filename = filepath.Base(args[0])
			}

			return deps.Client.Deliver(cmd.Context(), &capture.Artifact{
				Data:        data,
				Filename:    filename,
				ContentType: deps.Config.Client.ContentType,
			})
		},
	}

	cmd.Flags().StringVarP(&filename, "name", "n", "", "Filename to send (defaults to the file's base name)")

	return cmd
}
