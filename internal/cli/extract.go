package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/spf13/cobra"

	"coursedocs-backend/internal/extract"
)

func newExtractCmd() *cobra.Command {
	var mimeType string
	cmd := &cobra.Command{
		Use:   "extract <file>",
		Short: "Run an extractor against a local file",
		Long: `Run the extractor registered for the file's type and print the text.
The type is sniffed from the content unless --mime is given.

Examples:
  docctl extract syllabus.pdf
  docctl extract notes.dat --mime text/plain`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(filepath.Clean(args[0]))
			if err != nil {
				return fmt.Errorf("read %s: %w", args[0], err)
			}
			if strings.TrimSpace(mimeType) == "" {
				mimeType = mimetype.Detect(data).String()
			}
			text, err := extract.DefaultRegistry().ExtractBytes(cmd.Context(), data, mimeType)
			if err != nil {
				return fmt.Errorf("extract %s as %s: %w", args[0], mimeType, err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), text)
			return nil
		},
	}
	cmd.Flags().StringVar(&mimeType, "mime", "", "mime type to extract as")
	return cmd
}
