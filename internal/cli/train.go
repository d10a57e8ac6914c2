package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jeefy/pybot/internal/models"
)

func (a *app) trainCmd() *cobra.Command {
	var category string
	cmd := &cobra.Command{
		Use:   "train <pattern> <response>",
		Short: "Teach PyBot a new answer",
		Long: `Store a trained pattern. Trained patterns are matched after the built-in
corpus and survive reseeding. Training the same pattern again replaces its
response.

Examples:
  pybot train "walrus operator" "Use := to assign inside an expression."
  pybot train "f-string" "Prefix a string with f to interpolate: f'{name}'" --category strings`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := a.service().Train(cmd.Context(), models.TrainRequest{
				Pattern:  args[0],
				Response: args[1],
				Category: category,
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), a.theme.successStyle().Render(
				fmt.Sprintf("Training pattern added successfully (id %d)", id)))
			return nil
		},
	}
	cmd.Flags().StringVarP(&category, "category", "c", models.CategoryCustom, "pattern category")
	return cmd
}
