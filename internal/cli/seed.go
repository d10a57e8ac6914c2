package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func (a *app) seedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Load the pattern corpus into the database",
		Long: `Make the built-in patterns in the database match the corpus (the embedded one,
or --corpus). Seeding is idempotent and never touches trained patterns.

Examples:
  pybot seed
  pybot seed --corpus ./my-corpus.yaml --db pybot.db`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := a.seed(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), a.theme.successStyle().Render(
				fmt.Sprintf("Seeded %d patterns (%d stale removed)", res.Upserted, res.Removed)))
			return nil
		},
	}
}
