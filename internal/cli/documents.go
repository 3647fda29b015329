package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"coursedocs-backend/internal/documents"
)

func newSweepCmd(st *state) *cobra.Command {
	var staleAfter time.Duration
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Re-enqueue documents stuck in pending",
		Long: `Run one reconciler pass: every document still pending after --stale-after
is enqueued for extraction again.

Examples:
  docctl sweep
  docctl sweep --stale-after 30m`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			app, err := st.appFor(ctx)
			if err != nil {
				return err
			}
			reconciler := app.Reconciler
			if staleAfter > 0 {
				opts := reconciler.Opts
				opts.StaleAfter = staleAfter
				reconciler = documents.NewReconciler(app.Repo, app.Queue, opts)
			}
			n, err := reconciler.SweepOnce(ctx)
			if err != nil {
				return fmt.Errorf("sweep: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "re-enqueued %d document(s)\n", n)
			return nil
		},
	}
	cmd.Flags().DurationVar(&staleAfter, "stale-after", 0, "override STALE_AFTER for this run")
	return cmd
}

func newStatusCmd(st *state) *cobra.Command {
	var showText bool
	cmd := &cobra.Command{
		Use:   "status <document-id>",
		Short: "Show a document's processing state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			app, err := st.appFor(ctx)
			if err != nil {
				return err
			}
			doc, err := app.Documents.Get(ctx, args[0])
			if err != nil {
				return fmt.Errorf("get %s: %w", args[0], err)
			}
			printDocument(cmd.OutOrStdout(), doc, showText)
			return nil
		},
	}
	cmd.Flags().BoolVar(&showText, "text", false, "print the extracted text")
	return cmd
}

func newRequeueCmd(st *state) *cobra.Command {
	return &cobra.Command{
		Use:   "requeue <document-id>",
		Short: "Enqueue extraction for a pending document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			app, err := st.appFor(ctx)
			if err != nil {
				return err
			}
			doc, err := app.Documents.Requeue(ctx, args[0])
			if err != nil {
				return fmt.Errorf("requeue %s: %w", args[0], err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "enqueued %s\n", doc.ID)
			return nil
		},
	}
}

func printDocument(w io.Writer, doc documents.Document, showText bool) {
	fmt.Fprintf(w, "id:        %s\n", doc.ID)
	fmt.Fprintf(w, "file:      %s (%s, %d bytes)\n", doc.OriginalFilename, doc.MimeType, doc.SizeBytes)
	fmt.Fprintf(w, "container: %s\n", doc.ContainerID)
	fmt.Fprintf(w, "uploaded:  %s\n", doc.UploadedAt.Format(time.RFC3339))
	fmt.Fprintf(w, "state:     %s\n", doc.State)
	fmt.Fprintf(w, "version:   %d\n", doc.Version)
	if doc.ProcessedAt != nil {
		fmt.Fprintf(w, "processed: %s\n", doc.ProcessedAt.Format(time.RFC3339))
	}
	if doc.ErrorMessage != nil {
		fmt.Fprintf(w, "error:     %s\n", *doc.ErrorMessage)
	}
	if showText && doc.ExtractedText != nil {
		fmt.Fprintf(w, "\n%s\n", *doc.ExtractedText)
	}
}
