package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"coursedocs-backend/internal/shared/storage/db"
)

func newMigrateCmd(st *state) *cobra.Command {
	var status bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		Long: `Apply pending goose migrations to DATABASE_URL.

Examples:
  docctl migrate
  docctl migrate --status`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			app, err := st.appFor(ctx)
			if err != nil {
				return err
			}
			if app.DB == nil {
				return fmt.Errorf("migrate requires DATABASE_URL")
			}
			if status {
				return db.MigrationStatus(ctx, app.DB)
			}
			if err := db.RunMigrations(ctx, app.DB); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	}
	cmd.Flags().BoolVar(&status, "status", false, "print migration status instead of migrating")
	return cmd
}
