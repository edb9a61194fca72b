package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/storefront/internal/storage/postgres"
)

func newMigrateCmd() *cobra.Command {
	var steps int
	cmd := &cobra.Command{
		Use:       "migrate [up|down]",
		Short:     "Applies or rolls back the Postgres schema",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{string(postgres.Up), string(postgres.Down)},
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := resolveRuntime(cmd.Context())
			if err != nil {
				return err
			}
			if steps < 0 {
				return fmt.Errorf("--steps must be >= 0")
			}
			return postgres.Migrate(cmd.Context(), rt.cfg.DB.DSN, postgres.Direction(args[0]), steps, rt.logger)
		},
	}
	cmd.Flags().IntVar(&steps, "steps", 0, "number of migrations to apply (0 means all)")
	return cmd
}
