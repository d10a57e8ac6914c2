package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jeefy/pybot/internal/models"
	"github.com/jeefy/pybot/internal/style"
)

func (a *app) askCmd() *cobra.Command {
	var styleName string
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask PyBot a question from the terminal",
		Long: `Ask a question and print the answer. Messages containing Python code get a
code check report instead. The exchange is recorded like an API request.

Examples:
  pybot ask "how do I define a function"
  pybot ask "what is a list comprehension" --style beginner
  pybot ask 'check this: for i in range(3): print(i)'`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if _, err := a.seed(ctx); err != nil {
				return err
			}
			resp, err := a.service().Respond(ctx, models.ChatRequest{
				Message: strings.Join(args, " "),
				Style:   styleName,
			})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, resp.Message)
			fmt.Fprintln(out)
			fmt.Fprintln(out, a.theme.hintStyle().Render(
				fmt.Sprintf("category: %s, confidence: %.2f, style: %s", resp.Category, resp.Confidence, resp.Style)))
			return nil
		},
	}
	cmd.Flags().StringVarP(&styleName, "style", "s", string(style.Balanced), "answer style: balanced, detailed, concise, beginner")
	return cmd
}
