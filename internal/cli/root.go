// Package cli provides the docctl admin command line.
package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"coursedocs-backend/internal/bootstrap"
	"coursedocs-backend/internal/shared/config"
	"coursedocs-backend/internal/shared/telemetry"
)

// Version is set at build time.
var Version = "0.1.0"

// BuildFunc constructs the application for a command.
type BuildFunc func(ctx context.Context, cfg config.Config) (*bootstrap.App, error)

// DefaultBuild builds the app with the admin role.
func DefaultBuild(ctx context.Context, cfg config.Config) (*bootstrap.App, error) {
	return bootstrap.Build(ctx, cfg, bootstrap.RoleAdmin)
}

type state struct {
	build BuildFunc
	cfg   config.Config
	app   *bootstrap.App
}

// appFor builds the app lazily so commands that need no dependencies stay cheap.
func (s *state) appFor(ctx context.Context) (*bootstrap.App, error) {
	if s.app != nil {
		return s.app, nil
	}
	app, err := s.build(ctx, s.cfg)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: %w", err)
	}
	s.app = app
	return app, nil
}

// NewRootCmd returns the docctl command tree.
func NewRootCmd(build BuildFunc) *cobra.Command {
	if build == nil {
		build = DefaultBuild
	}
	st := &state{build: build}

	root := &cobra.Command{
		Use:   "docctl",
		Short: "Operate the course document pipeline",
		Long: `docctl inspects and repairs the document ingestion pipeline.

It reads the same configuration as the API and worker (CONFIG_FILE, .env and
environment variables).`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			st.cfg = config.Load()
			telemetry.Setup(st.cfg.LogLevel, "")
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if st.app == nil {
				return
			}
			if err := st.app.Close(); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "Warning: failed to close dependencies: %v\n", err)
			}
			st.app = nil
		},
	}

	root.AddCommand(
		newMigrateCmd(st),
		newSweepCmd(st),
		newStatusCmd(st),
		newRequeueCmd(st),
		newExtractCmd(),
	)
	return root
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd(nil).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
